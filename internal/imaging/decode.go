// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package imaging

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Runner executes an external command. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

// Transcoder is the pluggable pre-decode stage for container formats the
// Go decoders cannot preview. Transcode returns the path of a decodable
// file and a cleanup func (may be nil).
type Transcoder interface {
	Transcode(ctx context.Context, src string) (string, func(), error)
}

// CommandTranscoder converts HEIC/HEIF files to PNG via an external tool:
// heif-convert, magick, or sips.
type CommandTranscoder struct {
	Converter string
	Runner    Runner
}

// Transcode writes a PNG into a fresh temp directory and returns its path.
func (t *CommandTranscoder) Transcode(ctx context.Context, src string) (string, func(), error) {
	runner := t.Runner
	if runner == nil {
		runner = execRunner{}
	}

	tmpDir, err := os.MkdirTemp("", "taglink-heic-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(tmpDir) }
	out := filepath.Join(tmpDir, "staged.png")

	switch t.Converter {
	case "heif-convert":
		err = runner.Run(ctx, "heif-convert", src, out)
	case "magick":
		err = runner.Run(ctx, "magick", src, out)
	case "sips":
		err = runner.Run(ctx, "sips", "-s", "format", "png", src, "--out", out)
	default:
		cleanup()
		return "", nil, fmt.Errorf("unsupported HEIC converter %q: use heif-convert, magick, or sips", t.Converter)
	}
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("transcoding %s: %w", src, err)
	}

	if _, statErr := os.Stat(out); statErr != nil {
		cleanup()
		return "", nil, fmt.Errorf("transcoding produced no output: %v", statErr)
	}
	return out, cleanup, nil
}

// heicBrands are the ISO BMFF major brands used by HEIC/HEIF containers.
var heicBrands = map[string]bool{
	"heic": true, "heix": true, "hevc": true, "hevx": true,
	"heif": true, "mif1": true, "msf1": true,
}

// IsHEIC sniffs an ISO BMFF ftyp box with a HEIC/HEIF brand from the
// first bytes of a file.
func IsHEIC(header []byte) bool {
	if len(header) < 12 {
		return false
	}
	if string(header[4:8]) != "ftyp" {
		return false
	}
	return heicBrands[string(header[8:12])]
}

// DecodeFile decodes an image file, routing HEIC/HEIF containers through
// the transcoder first. A nil transcoder with a HEIC input is an error
// telling the user to configure a converter. Returns the decoded image
// and its format name.
func DecodeFile(ctx context.Context, path string, tr Transcoder) (image.Image, string, error) {
	header := make([]byte, 12)
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", path, err)
	}
	n, _ := f.Read(header)
	f.Close()

	if IsHEIC(header[:n]) {
		if tr == nil {
			return nil, "", fmt.Errorf("%s is a HEIC/HEIF container: configure image.heic_converter to stage it", path)
		}
		converted, cleanup, err := tr.Transcode(ctx, path)
		if err != nil {
			return nil, "", err
		}
		if cleanup != nil {
			defer cleanup()
		}
		path = converted
	}

	f, err = os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, format, nil
}
