// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the taglink CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/taglink/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the taglink CLI.
var rootCmd = &cobra.Command{
	Use:   "taglink",
	Short: "Pair NFC tags with instruments and manage their images",
	Long: `taglink resolves NFC tags against an instrument inventory service.
Scanning a paired tag shows the instrument's record; scanning an unbound
tag starts the pairing workflow. The image subcommands crop and upload a
square photo for a paired instrument.

Run "taglink serve" to host the inventory service itself.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./taglink.yaml or ~/.config/taglink/config.yaml)")
	rootCmd.PersistentFlags().String("service-url", "", "instrument service base URL (overrides config)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("taglink")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "taglink"))
		}
	}

	viper.SetEnvPrefix("TAGLINK")
	viper.AutomaticEnv()

	viper.SetDefault("service.base_url", "http://localhost:2000")
	viper.SetDefault("service.timeout", 10*time.Second)
	viper.SetDefault("service.user_agent", "taglink/"+version)
	viper.SetDefault("image.max_edge", 1024)
	viper.SetDefault("image.jpeg_quality", 90)
	viper.SetDefault("serve.addr", ":2000")
	viper.SetDefault("serve.data_dir", "data")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig assembles the effective configuration from viper and
// persistent flags.
func loadConfig() types.Config {
	cfg := types.Config{
		Service: types.ServiceConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("service.timeout"),
				UserAgent: viper.GetString("service.user_agent"),
			},
			BaseURL: viper.GetString("service.base_url"),
		},
		Image: types.ImageConfig{
			MaxEdge:       viper.GetInt("image.max_edge"),
			JPEGQuality:   viper.GetInt("image.jpeg_quality"),
			HEICConverter: viper.GetString("image.heic_converter"),
		},
		Serve: types.ServeConfig{
			Addr:    viper.GetString("serve.addr"),
			DataDir: viper.GetString("serve.data_dir"),
		},
	}

	if override, _ := rootCmd.PersistentFlags().GetString("service-url"); override != "" {
		cfg.Service.BaseURL = override
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
