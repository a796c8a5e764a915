// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/taglink/internal/client"
	"github.com/pdiddy/taglink/internal/session"
	"github.com/pdiddy/taglink/pkg/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan [tag or scan URL]",
	Short: "Resolve a scanned tag and show or pair its instrument",
	Long: `Scan accepts either a bare tag identifier or the full URL an NFC scan
produces (the tag rides in the "nfc" query parameter). A tag paired to an
instrument prints the instrument's record. An unbound tag starts the
pairing workflow; pass --serial to complete it in one step.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().String("serial", "", "serial number to pair an unbound tag with")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	tag, ok := session.ExtractTag(args[0])
	if !ok {
		return fmt.Errorf("no tag identifier in %q", args[0])
	}

	cfg := loadConfig()
	svc := client.New(cfg.Service)
	sess := session.New(svc, tag, os.Stderr)
	ctx := context.Background()

	switch sess.Resolve(ctx) {
	case session.StatePaired:
		printRecord(sess.Record(ctx))
		return nil
	case session.StateUnpaired:
		serial, _ := cmd.Flags().GetString("serial")
		if serial == "" {
			fmt.Printf("Tag %s is not paired with any instrument.\n", tag)
			fmt.Printf("Pair it with: taglink pair %s <serial>\n", tag)
			return nil
		}
		return submitPairing(ctx, sess, serial)
	default:
		return fmt.Errorf("could not resolve tag %s", tag)
	}
}

// submitPairing drives one pairing attempt and reports the outcome.
func submitPairing(ctx context.Context, sess *session.Session, serial string) error {
	sess.SetSerial(serial)
	state := sess.SubmitPair(ctx)

	switch state {
	case session.SubmitSucceeded:
		fmt.Printf("Paired tag %s with serial %s.\n", sess.Tag(), serial)
		sess.Reset(ctx)
		printRecord(sess.Record(ctx))
		return nil
	case session.SubmitError:
		_, msg := sess.SubmitStatus()
		return fmt.Errorf("%s", msg)
	default:
		return fmt.Errorf("pairing did not complete")
	}
}

func printRecord(rec types.InstrumentRecord) {
	for _, f := range rec.Fields() {
		fmt.Printf("%-17s %s\n", f.Label+":", f.Value)
	}
}
