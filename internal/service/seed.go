// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package service

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"
)

// SeedFile is the YAML layout for inventory fixtures.
type SeedFile struct {
	Instruments []Instrument `yaml:"instruments"`
}

// LoadSeed reads an inventory fixture file.
func LoadSeed(path string) ([]Instrument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return f.Instruments, nil
}

// Seed inserts instruments into the inventory, skipping entries whose
// serial is blank or already present. Progress lines go to w.
func (s *Store) Seed(ctx context.Context, items []Instrument, w io.Writer) (added, skipped int, err error) {
	if w == nil {
		w = io.Discard
	}

	for _, inst := range items {
		if inst.Serial == "" {
			fmt.Fprintf(w, "skipped %s: no serial\n", inst.Name)
			skipped++
			continue
		}

		exists, err := s.HasSerial(ctx, inst.Serial)
		if err != nil {
			return added, skipped, err
		}
		if exists {
			fmt.Fprintf(w, "skipped %s: serial %s already present\n", inst.Name, inst.Serial)
			skipped++
			continue
		}

		if err := s.Add(ctx, inst); err != nil {
			return added, skipped, err
		}
		fmt.Fprintf(w, "added %s (serial %s)\n", inst.Name, inst.Serial)
		added++
	}

	fmt.Fprintf(w, "seeded %d instruments, skipped %d\n", added, skipped)
	return added, skipped, nil
}
