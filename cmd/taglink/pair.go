// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/taglink/internal/client"
	"github.com/pdiddy/taglink/internal/session"
)

var pairCmd = &cobra.Command{
	Use:   "pair <tag> <serial>",
	Short: "Pair a tag with the instrument carrying the given serial",
	Args:  cobra.ExactArgs(2),
	RunE:  runPair,
}

var unpairCmd = &cobra.Command{
	Use:   "unpair <tag>",
	Short: "Remove the pairing between a tag and its instrument",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnpair,
}

func init() {
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(unpairCmd)
}

func runPair(cmd *cobra.Command, args []string) error {
	tag, serial := args[0], args[1]

	cfg := loadConfig()
	svc := client.New(cfg.Service)
	sess := session.New(svc, tag, os.Stderr)
	ctx := context.Background()

	if sess.Resolve(ctx) == session.StatePaired {
		rec := sess.Record(ctx)
		return fmt.Errorf("tag %s is already paired with instrument: %s", tag, rec.Name)
	}
	return submitPairing(ctx, sess, serial)
}

func runUnpair(cmd *cobra.Command, args []string) error {
	tag := args[0]

	cfg := loadConfig()
	svc := client.New(cfg.Service)
	ctx := context.Background()

	err := svc.Unpair(ctx, tag)
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("no instrument paired with tag: %s", tag)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Unpaired tag %s.\n", tag)
	return nil
}
