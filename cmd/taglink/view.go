// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/taglink/internal/client"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var viewCmd = &cobra.Command{
	Use:   "view <tag>",
	Short: "Show the instrument record paired with a tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runView,
}

func init() {
	viewCmd.Flags().Bool("json", false, "output the record as JSON")

	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	tag := args[0]

	cfg := loadConfig()
	svc := client.New(cfg.Service)
	ctx := context.Background()

	rec, err := svc.FetchRecord(ctx, tag)
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("no instrument paired with tag: %s", tag)
	}
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(rec)
	}
	printRecord(rec)

	// Image presence is informational only.
	if _, _, err := svc.FetchImage(ctx, tag); err == nil {
		fmt.Printf("%-17s yes\n", "Image:")
	} else if errors.Is(err, client.ErrNotFound) {
		fmt.Printf("%-17s no\n", "Image:")
	}
	return nil
}
