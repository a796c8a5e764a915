// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package imaging owns the image capture/crop/upload pipeline: staging a
// source photo, mapping an interactive pan/zoom viewport to a pixel
// region, rasterizing the crop, and submitting it to the service.
package imaging

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Zoom bounds for the crop viewport.
const (
	MinZoom = 1.0
	MaxZoom = 3.0
)

// Region is a crop rectangle in source-image pixel space. It is the sole
// state rasterization needs; the pan/zoom parameters that produced it are
// not required at save time.
type Region struct {
	X, Y, W, H int
}

// Empty reports whether the region selects no pixels.
func (r Region) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Viewport is the interactive pan/zoom state over a staged image. Offsets
// are the region origin in source pixels; Zoom shrinks the visible square.
type Viewport struct {
	OffsetX float64
	OffsetY float64
	Zoom    float64
}

// ClampZoom bounds a zoom factor to [MinZoom, MaxZoom].
func ClampZoom(z float64) float64 {
	switch {
	case z < MinZoom:
		return MinZoom
	case z > MaxZoom:
		return MaxZoom
	default:
		return z
	}
}

// RegionForViewport maps a pan/zoom viewport over a srcW by srcH image to
// the square pixel region it selects. The side is the shorter source edge
// divided by the clamped zoom; the origin is clamped so the region stays
// inside the source.
func RegionForViewport(srcW, srcH int, vp Viewport) Region {
	zoom := ClampZoom(vp.Zoom)

	short := srcW
	if srcH < short {
		short = srcH
	}
	side := int(math.Round(float64(short) / zoom))
	if side < 1 {
		side = 1
	}

	x := clampInt(int(math.Round(vp.OffsetX)), 0, srcW-side)
	y := clampInt(int(math.Round(vp.OffsetY)), 0, srcH-side)
	return Region{X: x, Y: y, W: side, H: side}
}

// CenteredViewport returns the initial viewport for a freshly staged
// image: zoom 1.0 with the square centered over the longer axis.
func CenteredViewport(srcW, srcH int) Viewport {
	short := srcW
	if srcH < short {
		short = srcH
	}
	return Viewport{
		OffsetX: float64(srcW-short) / 2,
		OffsetY: float64(srcH-short) / 2,
		Zoom:    MinZoom,
	}
}

// Rasterize crops src to region and returns the result. The output
// dimensions equal the region's, locked to 1:1: a non-square region is
// reduced to its shorter side. Pure and synchronous; the interactive
// viewport never reaches this function.
func Rasterize(src image.Image, r Region) (*image.RGBA, error) {
	if r.Empty() {
		return nil, fmt.Errorf("crop region is empty")
	}

	side := r.W
	if r.H < side {
		side = r.H
	}

	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	sp := image.Pt(src.Bounds().Min.X+r.X, src.Bounds().Min.Y+r.Y)
	draw.Draw(dst, dst.Bounds(), src, sp, draw.Src)
	return dst, nil
}

// ScaleToLimit downscales img so its longer edge is at most maxEdge,
// preserving aspect. Returns img unchanged when it already fits or when
// maxEdge is zero. Upscaling never happens.
func ScaleToLimit(img image.Image, maxEdge int) image.Image {
	if maxEdge <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	long := w
	if h > long {
		long = h
	}
	if long <= maxEdge {
		return img
	}

	scale := float64(maxEdge) / float64(long)
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// CircleMask applies the presentation mask: pixels outside the inscribed
// circle become transparent. Used for previews only; the persisted crop
// stays square.
func CircleMask(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	cx := float64(b.Dx()) / 2
	cy := float64(b.Dy()) / 2
	radius := math.Min(cx, cy)

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dx := float64(x) + 0.5 - cx
			dy := float64(y) + 0.5 - cy
			if math.Hypot(dx, dy) > radius {
				i := dst.PixOffset(x, y)
				dst.Pix[i+3] = 0
			}
		}
	}
	return dst
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
