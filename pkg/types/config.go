// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings for components that talk to the
// instrument service.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "taglink/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ServiceConfig holds settings for the instrument service client.
type ServiceConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the root of the instrument service (e.g. "http://localhost:2000").
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// ImageConfig holds settings for the image capture/crop/upload pipeline.
type ImageConfig struct {
	// MaxEdge bounds the longer edge of the uploaded crop in pixels.
	// Zero disables downscaling.
	MaxEdge int `json:"max_edge" yaml:"max_edge"`

	// JPEGQuality is the encoder quality for uploaded crops (default 90).
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality"`

	// HEICConverter selects the external tool used to pre-decode HEIC/HEIF
	// containers: heif-convert, magick, or sips. Empty disables the stage.
	HEICConverter string `json:"heic_converter,omitempty" yaml:"heic_converter,omitempty"`
}

// ServeConfig holds settings for running the instrument service itself.
type ServeConfig struct {
	// Addr is the listen address (default ":2000").
	Addr string `json:"addr" yaml:"addr"`

	// DataDir is the base directory for service state (contains the SQLite
	// database and the images/ directory).
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// Config groups all taglink configuration.
type Config struct {
	Service ServiceConfig `json:"service" yaml:"service"`
	Image   ImageConfig   `json:"image" yaml:"image"`
	Serve   ServeConfig   `json:"serve" yaml:"serve"`
}
