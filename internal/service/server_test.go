// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/taglink/internal/client"
	"github.com/pdiddy/taglink/internal/service"
	"github.com/pdiddy/taglink/pkg/types"
)

func newTestServer(t *testing.T) (*httptest.Server, *service.Store) {
	t.Helper()
	store, err := service.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(service.NewServer(store, log).Router())
	t.Cleanup(srv.Close)
	return srv, store
}

func seedStrat(t *testing.T, store *service.Store, tag string) {
	t.Helper()
	err := store.Add(context.Background(), service.Instrument{
		InstrumentRecord: types.InstrumentRecord{
			TagID:           tag,
			Name:            "Strat",
			Manufacturer:    "Fender",
			Model:           "American Std",
			Serial:          "US12345",
			ManufactureDate: "2019",
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestExistsEndpoint(t *testing.T) {
	srv, store := newTestServer(t)

	resp, err := http.Get(srv.URL + "/instruments/42/exists")
	if err != nil {
		t.Fatalf("GET exists: %v", err)
	}
	var body struct {
		Exists bool `json:"exists"`
	}
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body.Exists {
		t.Errorf("expected exists=false with 200, got %d exists=%v", resp.StatusCode, body.Exists)
	}

	seedStrat(t, store, "42")

	resp, err = http.Get(srv.URL + "/instruments/42/exists")
	if err != nil {
		t.Fatalf("GET exists: %v", err)
	}
	decodeBody(t, resp, &body)
	if !body.Exists {
		t.Error("expected exists=true after seeding")
	}
}

func TestFetchEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedStrat(t, store, "42")

	resp, err := http.Get(srv.URL + "/instruments/42")
	if err != nil {
		t.Fatalf("GET record: %v", err)
	}
	var rec types.InstrumentRecord
	decodeBody(t, resp, &rec)
	if rec.Name != "Strat" || rec.Serial != "US12345" {
		t.Errorf("unexpected record: %+v", rec)
	}

	resp, err = http.Get(srv.URL + "/instruments/99")
	if err != nil {
		t.Fatalf("GET missing record: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown tag, got %d", resp.StatusCode)
	}
}

func TestPairEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		seedTag    string
		body       string
		wantStatus int
		wantErrSub string
	}{
		{
			name:       "success",
			body:       `{"serial":"US12345"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown serial",
			body:       `{"serial":"NOPE"}`,
			wantStatus: http.StatusNotFound,
			wantErrSub: "no instrument found with serial number: NOPE",
		},
		{
			name:       "blank serial",
			body:       `{"serial":""}`,
			wantStatus: http.StatusBadRequest,
			wantErrSub: "serial is required",
		},
		{
			name:       "instrument already paired",
			seedTag:    "7",
			body:       `{"serial":"US12345"}`,
			wantStatus: http.StatusConflict,
			wantErrSub: "already paired with tag: 7",
		},
		{
			name:       "malformed body",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newTestServer(t)
			seedStrat(t, store, tt.seedTag)

			resp, err := http.Post(srv.URL+"/instruments/42/pair",
				"application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST pair: %v", err)
			}
			var body struct {
				Error string `json:"error"`
			}
			decodeBody(t, resp, &body)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantErrSub != "" && !strings.Contains(body.Error, tt.wantErrSub) {
				t.Errorf("error %q does not contain %q", body.Error, tt.wantErrSub)
			}
		})
	}
}

func TestPairThenUnpair(t *testing.T) {
	srv, store := newTestServer(t)
	seedStrat(t, store, "")

	resp, err := http.Post(srv.URL+"/instruments/42/pair",
		"application/json", strings.NewReader(`{"serial":"US12345"}`))
	if err != nil {
		t.Fatalf("POST pair: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pairing failed with status %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/instruments/42/pair", nil)
	if err != nil {
		t.Fatalf("building DELETE: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE pair: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unpair failed with status %d", resp.StatusCode)
	}

	exists, err := store.TagExists(context.Background(), "42")
	if err != nil {
		t.Fatalf("TagExists: %v", err)
	}
	if exists {
		t.Error("tag should be free after unpairing")
	}
}

func TestImageUploadAndFetch(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/instruments/42/image")
	if err != nil {
		t.Fatalf("GET image: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 before upload, got %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "42.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte("jpeg-bytes"))
	mw.Close()

	resp, err = http.Post(srv.URL+"/instruments/42/image", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST image: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload failed with status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/instruments/42/image")
	if err != nil {
		t.Fatalf("GET image: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("reading image: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("image round trip mismatch: %q", data)
	}
}

func TestInvalidTagRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/instruments/..%2f..%2fetc/exists")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Errorf("expected traversal-shaped tag to be rejected, got %d", resp.StatusCode)
	}
}

// The client package and this server agree on the wire contract; drive
// one through the other to prove it.
func TestClientAgainstServer(t *testing.T) {
	srv, store := newTestServer(t)
	seedStrat(t, store, "")

	c := client.New(types.ServiceConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second},
		BaseURL:    srv.URL,
	})
	ctx := context.Background()

	exists, err := c.CheckTag(ctx, "42")
	if err != nil {
		t.Fatalf("CheckTag: %v", err)
	}
	if exists {
		t.Error("tag should not exist before pairing")
	}

	if err := c.Pair(ctx, "42", "US12345"); err != nil {
		t.Fatalf("Pair: %v", err)
	}

	rec, err := c.FetchRecord(ctx, "42")
	if err != nil {
		t.Fatalf("FetchRecord: %v", err)
	}
	if rec.Name != "Strat" || rec.TagID != "42" {
		t.Errorf("unexpected record: %+v", rec)
	}

	err = c.Pair(ctx, "43", "US12345")
	var svcErr *client.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError for double pairing, got %v", err)
	}
	if !strings.Contains(svcErr.Message, "already paired") {
		t.Errorf("unexpected conflict message: %q", svcErr.Message)
	}

	if err := c.UploadImage(ctx, "42", []byte("jpeg-bytes")); err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	data, _, err := c.FetchImage(ctx, "42")
	if err != nil {
		t.Fatalf("FetchImage: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("image round trip mismatch: %q", data)
	}
}
