// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/pdiddy/taglink/internal/client"
	"github.com/pdiddy/taglink/pkg/types"
)

// ErrNothingToSave reports a save attempted before an image was staged
// and cropped. It is local and never triggers a network call; it guards
// the race where a save fires immediately after the session opens.
var ErrNothingToSave = errors.New("select and crop an image before saving")

const defaultJPEGQuality = 90

// Source records how a file reached the pipeline. Capture hints that the
// device preferred a live camera; both sources funnel into the same
// staging path and accept any image-typed file.
type Source int

const (
	SourceUpload Source = iota
	SourceCapture
)

func (s Source) String() string {
	if s == SourceCapture {
		return "capture"
	}
	return "upload"
}

// StagedImage is the selected file plus its decoded preview. It lives
// only for the duration of one upload session.
type StagedImage struct {
	Path   string
	Source Source
	Img    image.Image
	Format string
}

// Pipeline is one image upload session for a tag identifier. It runs
// independently of the pairing state: the existing-image probe fires
// regardless of whether the tag is paired.
type Pipeline struct {
	svc *client.Client
	tag string
	cfg types.ImageConfig
	tr  Transcoder
	w   io.Writer

	staged    *StagedImage
	viewport  Viewport
	region    Region
	hasRegion bool
}

// NewPipeline builds a pipeline for tag. The HEIC pre-decode stage is
// wired only when a converter is configured.
func NewPipeline(svc *client.Client, tag string, cfg types.ImageConfig, w io.Writer) *Pipeline {
	if w == nil {
		w = io.Discard
	}
	p := &Pipeline{svc: svc, tag: tag, cfg: cfg, w: w}
	if cfg.HEICConverter != "" {
		p.tr = &CommandTranscoder{Converter: cfg.HEICConverter}
	}
	return p
}

// ProbeExisting fetches the persisted image for the tag, if any. A
// not-found outcome is normal and silent (the caller shows a
// placeholder); any other failure is logged and likewise non-fatal.
func (p *Pipeline) ProbeExisting(ctx context.Context) (data []byte, contentType string, ok bool) {
	data, contentType, err := p.svc.FetchImage(ctx, p.tag)
	if err != nil {
		if !errors.Is(err, client.ErrNotFound) {
			fmt.Fprintf(p.w, "warning: image probe for tag %s failed: %v\n", p.tag, err)
		}
		return nil, "", false
	}
	return data, contentType, true
}

// Stage decodes path into the session and initializes the viewport to a
// centered zoom-1.0 square. Replaces any previously staged file.
func (p *Pipeline) Stage(ctx context.Context, path string, src Source) error {
	img, format, err := DecodeFile(ctx, path, p.tr)
	if err != nil {
		return err
	}

	p.staged = &StagedImage{Path: path, Source: src, Img: img, Format: format}
	b := img.Bounds()
	p.viewport = CenteredViewport(b.Dx(), b.Dy())
	p.region = RegionForViewport(b.Dx(), b.Dy(), p.viewport)
	p.hasRegion = true

	fmt.Fprintf(p.w, "staged %s (%s, %dx%d, %s)\n", path, format, b.Dx(), b.Dy(), src)
	return nil
}

// Staged returns the current staged image, or nil.
func (p *Pipeline) Staged() *StagedImage { return p.staged }

// SetViewport applies a pan/zoom change and returns the recomputed pixel
// region. Zoom is clamped to its bounds. Errors when nothing is staged.
func (p *Pipeline) SetViewport(vp Viewport) (Region, error) {
	if p.staged == nil {
		return Region{}, fmt.Errorf("no image staged")
	}
	vp.Zoom = ClampZoom(vp.Zoom)
	b := p.staged.Img.Bounds()
	p.viewport = vp
	p.region = RegionForViewport(b.Dx(), b.Dy(), vp)
	p.hasRegion = true
	return p.region, nil
}

// SetRegion overrides the crop region directly, bypassing the viewport.
func (p *Pipeline) SetRegion(r Region) {
	p.region = r
	p.hasRegion = !r.Empty()
}

// CurrentRegion returns the active crop region, if one is set.
func (p *Pipeline) CurrentRegion() (Region, bool) {
	return p.region, p.hasRegion
}

// RenderPreview rasterizes the current crop with the circular
// presentation mask applied, as PNG.
func (p *Pipeline) RenderPreview() ([]byte, error) {
	if p.staged == nil || !p.hasRegion {
		return nil, ErrNothingToSave
	}
	crop, err := Rasterize(p.staged.Img, p.region)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, CircleMask(crop)); err != nil {
		return nil, fmt.Errorf("encoding preview: %w", err)
	}
	return buf.Bytes(), nil
}

// Save persists the crop: phase one rasterizes and encodes the staged
// image against the last known region, phase two uploads the blob. Phase
// one completes fully before phase two starts. On success the session is
// closed; on failure it is kept so a retry needs no re-staging.
func (p *Pipeline) Save(ctx context.Context) error {
	if p.staged == nil || !p.hasRegion || p.region.Empty() {
		return ErrNothingToSave
	}

	crop, err := Rasterize(p.staged.Img, p.region)
	if err != nil {
		return err
	}

	out := ScaleToLimit(crop, p.cfg.MaxEdge)
	quality := p.cfg.JPEGQuality
	if quality <= 0 {
		quality = defaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encoding crop: %w", err)
	}

	if err := p.svc.UploadImage(ctx, p.tag, buf.Bytes()); err != nil {
		return fmt.Errorf("saving image: %w", err)
	}

	fmt.Fprintf(p.w, "uploaded %d bytes for tag %s\n", buf.Len(), p.tag)
	p.Close()
	return nil
}

// Close discards the staged file, viewport, and region.
func (p *Pipeline) Close() {
	p.staged = nil
	p.viewport = Viewport{}
	p.region = Region{}
	p.hasRegion = false
}
