// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/taglink/internal/service"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load instruments from a YAML fixture into the inventory",
	Long: `Seed reads an inventory fixture and inserts its instruments into the
service database. Entries with a blank or already-present serial are
skipped. Run against the same data dir the service uses.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().String("data-dir", "", "data directory (overrides config)")

	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg := loadConfig().Serve
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	items, err := service.LoadSeed(args[0])
	if err != nil {
		return err
	}

	store, err := service.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	_, _, err = store.Seed(context.Background(), items, os.Stdout)
	return err
}
