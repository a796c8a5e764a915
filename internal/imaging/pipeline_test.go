// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pdiddy/taglink/internal/client"
	"github.com/pdiddy/taglink/pkg/types"
)

func testSvc(ts *httptest.Server) *client.Client {
	return client.New(types.ServiceConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second},
		BaseURL:    ts.URL,
	})
}

func TestProbeExistingNotFoundIsSilent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	var log strings.Builder
	p := NewPipeline(testSvc(ts), "42", types.ImageConfig{}, &log)

	_, _, ok := p.ProbeExisting(context.Background())
	if ok {
		t.Error("probe reported an image for a 404")
	}
	if log.Len() != 0 {
		t.Errorf("404 probe logged %q; a missing image is a normal outcome", log.String())
	}
}

func TestProbeExistingTransportFailureIsLoggedOnly(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	var log strings.Builder
	p := NewPipeline(testSvc(ts), "42", types.ImageConfig{}, &log)

	_, _, ok := p.ProbeExisting(context.Background())
	if ok {
		t.Error("probe reported an image on server failure")
	}
	if !strings.Contains(log.String(), "image probe") {
		t.Errorf("expected a logged warning, got %q", log.String())
	}
}

func TestProbeExistingReturnsImage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xFF, 0xD8, 0xFF})
	}))
	defer ts.Close()

	p := NewPipeline(testSvc(ts), "42", types.ImageConfig{}, io.Discard)
	data, ctype, ok := p.ProbeExisting(context.Background())
	if !ok || len(data) != 3 || ctype != "image/jpeg" {
		t.Errorf("probe = (%d bytes, %q, %v)", len(data), ctype, ok)
	}
}

func TestSaveWithoutStagedFileIsLocal(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	p := NewPipeline(testSvc(ts), "42", types.ImageConfig{}, io.Discard)
	err := p.Save(context.Background())
	if !errors.Is(err, ErrNothingToSave) {
		t.Errorf("err = %v, want ErrNothingToSave", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("empty save issued %d network requests", n)
	}
}

func TestSaveWithClearedRegionIsLocal(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "photo.png")
	writePNG(t, path, 64, 64)

	p := NewPipeline(testSvc(ts), "42", types.ImageConfig{}, io.Discard)
	if err := p.Stage(context.Background(), path, SourceUpload); err != nil {
		t.Fatal(err)
	}
	p.SetRegion(Region{})

	if err := p.Save(context.Background()); !errors.Is(err, ErrNothingToSave) {
		t.Errorf("err = %v, want ErrNothingToSave", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("save without region issued %d network requests", n)
	}
}

func TestStageInitializesCenteredRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	writePNG(t, path, 200, 100)

	p := NewPipeline(testSvc(httptest.NewServer(http.NotFoundHandler())), "42", types.ImageConfig{}, io.Discard)
	if err := p.Stage(context.Background(), path, SourceCapture); err != nil {
		t.Fatal(err)
	}

	r, ok := p.CurrentRegion()
	if !ok {
		t.Fatal("no region after staging")
	}
	if r != (Region{X: 50, Y: 0, W: 100, H: 100}) {
		t.Errorf("region = %+v, want centered {50 0 100 100}", r)
	}
}

func TestSetViewportClampsZoomAndRecomputes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	writePNG(t, path, 300, 300)

	p := NewPipeline(testSvc(httptest.NewServer(http.NotFoundHandler())), "42", types.ImageConfig{}, io.Discard)
	if err := p.Stage(context.Background(), path, SourceUpload); err != nil {
		t.Fatal(err)
	}

	r, err := p.SetViewport(Viewport{Zoom: 99})
	if err != nil {
		t.Fatal(err)
	}
	if r.W != 100 || r.H != 100 {
		t.Errorf("region side = %dx%d, want 100x100 (zoom clamped to 3)", r.W, r.H)
	}

	if _, err := NewPipeline(testSvc(httptest.NewServer(http.NotFoundHandler())), "42", types.ImageConfig{}, io.Discard).
		SetViewport(Viewport{Zoom: 1}); err == nil {
		t.Error("SetViewport without a staged image should fail")
	}
}

func TestSaveUploadsCroppedJPEG(t *testing.T) {
	var uploaded []byte
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("image")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		uploaded, _ = io.ReadAll(f)
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "photo.png")
	writePNG(t, path, 400, 300)

	p := NewPipeline(testSvc(ts), "42", types.ImageConfig{}, io.Discard)
	if err := p.Stage(context.Background(), path, SourceUpload); err != nil {
		t.Fatal(err)
	}
	p.SetRegion(Region{X: 20, Y: 20, W: 128, H: 128})

	if err := p.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if gotPath != "/instruments/42/image" {
		t.Errorf("upload path = %q", gotPath)
	}

	img, err := jpeg.Decode(bytes.NewReader(uploaded))
	if err != nil {
		t.Fatalf("uploaded blob is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 128 || b.Dy() != 128 {
		t.Errorf("uploaded crop = %dx%d, want 128x128", b.Dx(), b.Dy())
	}

	if p.Staged() != nil {
		t.Error("session not closed after a successful save")
	}
}

func TestSaveAppliesMaxEdge(t *testing.T) {
	var uploaded []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(8 << 20)
		f, _, err := r.FormFile("image")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		uploaded, _ = io.ReadAll(f)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "photo.png")
	writePNG(t, path, 600, 600)

	p := NewPipeline(testSvc(ts), "42", types.ImageConfig{MaxEdge: 256}, io.Discard)
	if err := p.Stage(context.Background(), path, SourceUpload); err != nil {
		t.Fatal(err)
	}

	if err := p.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(uploaded))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 256 || b.Dy() != 256 {
		t.Errorf("uploaded crop = %dx%d, want bounded to 256x256", b.Dx(), b.Dy())
	}
}

func TestSaveFailureKeepsSessionForRetry(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":"disk full"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "photo.png")
	writePNG(t, path, 64, 64)

	p := NewPipeline(testSvc(ts), "42", types.ImageConfig{}, io.Discard)
	if err := p.Stage(context.Background(), path, SourceUpload); err != nil {
		t.Fatal(err)
	}

	if err := p.Save(context.Background()); err == nil {
		t.Fatal("expected upload failure")
	}
	if p.Staged() == nil {
		t.Fatal("failed save discarded the staged image; retry would need re-selection")
	}

	fail.Store(false)
	if err := p.Save(context.Background()); err != nil {
		t.Errorf("retry after failure: %v", err)
	}
}

func TestRenderPreviewMasksCorners(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	writePNG(t, path, 80, 80)

	p := NewPipeline(testSvc(httptest.NewServer(http.NotFoundHandler())), "42", types.ImageConfig{}, io.Discard)
	if err := p.Stage(context.Background(), path, SourceUpload); err != nil {
		t.Fatal(err)
	}

	data, err := p.RenderPreview()
	if err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}
	if len(data) == 0 {
		t.Error("empty preview")
	}
}
