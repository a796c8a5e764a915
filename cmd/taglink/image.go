// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/taglink/internal/client"
	"github.com/pdiddy/taglink/internal/imaging"
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage instrument images (status, save, fetch)",
	Long: `Image manages the square photo attached to a paired instrument.
"save" stages a local file, crops it to a square through the pan/zoom
viewport, and uploads the result. "status" and "fetch" inspect what the
service currently holds.`,
}

var imageStatusCmd = &cobra.Command{
	Use:   "status <tag>",
	Short: "Report whether the service holds an image for a tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runImageStatus,
}

var imageSaveCmd = &cobra.Command{
	Use:   "save <tag>",
	Short: "Crop a local photo to a square and upload it for a tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runImageSave,
}

var imageFetchCmd = &cobra.Command{
	Use:   "fetch <tag>",
	Short: "Download the stored image for a tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runImageFetch,
}

func init() {
	imageSaveCmd.Flags().String("file", "", "path to the source photo (required)")
	imageSaveCmd.Flags().Bool("capture", false, "mark the photo as a camera capture rather than an upload")
	imageSaveCmd.Flags().Float64("zoom", imaging.MinZoom, "zoom factor, clamped to [1.0, 3.0]")
	imageSaveCmd.Flags().Float64("offset-x", -1, "crop origin X in source pixels (default: centered)")
	imageSaveCmd.Flags().Float64("offset-y", -1, "crop origin Y in source pixels (default: centered)")
	imageSaveCmd.Flags().String("preview", "", "also write a circular PNG preview of the crop to this path")
	imageSaveCmd.MarkFlagRequired("file")

	imageFetchCmd.Flags().StringP("output", "o", "", "output path (default: <tag>.jpg)")

	imageCmd.AddCommand(imageStatusCmd)
	imageCmd.AddCommand(imageSaveCmd)
	imageCmd.AddCommand(imageFetchCmd)
	rootCmd.AddCommand(imageCmd)
}

func runImageStatus(cmd *cobra.Command, args []string) error {
	tag := args[0]

	cfg := loadConfig()
	svc := client.New(cfg.Service)
	pipe := imaging.NewPipeline(svc, tag, cfg.Image, os.Stderr)

	data, contentType, ok := pipe.ProbeExisting(context.Background())
	if !ok {
		fmt.Printf("No image stored for tag %s.\n", tag)
		return nil
	}
	fmt.Printf("Tag %s has a stored image: %d bytes (%s).\n", tag, len(data), contentType)
	return nil
}

func runImageSave(cmd *cobra.Command, args []string) error {
	tag := args[0]
	path, _ := cmd.Flags().GetString("file")
	capture, _ := cmd.Flags().GetBool("capture")

	cfg := loadConfig()
	svc := client.New(cfg.Service)
	pipe := imaging.NewPipeline(svc, tag, cfg.Image, os.Stderr)
	ctx := context.Background()

	src := imaging.SourceUpload
	if capture {
		src = imaging.SourceCapture
	}
	if err := pipe.Stage(ctx, path, src); err != nil {
		return err
	}

	if err := applyViewportFlags(cmd, pipe); err != nil {
		return err
	}

	if previewPath, _ := cmd.Flags().GetString("preview"); previewPath != "" {
		png, err := pipe.RenderPreview()
		if err != nil {
			return err
		}
		if err := os.WriteFile(previewPath, png, 0o644); err != nil {
			return fmt.Errorf("writing preview: %w", err)
		}
		fmt.Printf("Preview written to %s.\n", previewPath)
	}

	if err := pipe.Save(ctx); err != nil {
		return err
	}
	fmt.Printf("Image saved for tag %s.\n", tag)
	return nil
}

// applyViewportFlags adjusts the staged crop when any pan/zoom flag was
// set; otherwise the centered default from staging stands.
func applyViewportFlags(cmd *cobra.Command, pipe *imaging.Pipeline) error {
	if !cmd.Flags().Changed("zoom") &&
		!cmd.Flags().Changed("offset-x") &&
		!cmd.Flags().Changed("offset-y") {
		return nil
	}

	staged := pipe.Staged()
	if staged == nil {
		return fmt.Errorf("no image staged")
	}
	bounds := staged.Img.Bounds()
	vp := imaging.CenteredViewport(bounds.Dx(), bounds.Dy())

	if cmd.Flags().Changed("zoom") {
		vp.Zoom, _ = cmd.Flags().GetFloat64("zoom")
	}
	if cmd.Flags().Changed("offset-x") {
		vp.OffsetX, _ = cmd.Flags().GetFloat64("offset-x")
	}
	if cmd.Flags().Changed("offset-y") {
		vp.OffsetY, _ = cmd.Flags().GetFloat64("offset-y")
	}

	region, err := pipe.SetViewport(vp)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "crop region: %dx%d at (%d,%d)\n", region.W, region.H, region.X, region.Y)
	return nil
}

func runImageFetch(cmd *cobra.Command, args []string) error {
	tag := args[0]
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = tag + ".jpg"
	}

	cfg := loadConfig()
	svc := client.New(cfg.Service)

	data, _, err := svc.FetchImage(context.Background(), tag)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}

	fmt.Printf("Wrote %d bytes to %s.\n", len(data), out)
	return nil
}
