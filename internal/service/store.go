// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package service is the instrument record service: a SQLite-backed store
// of instruments, the pairing rules that bind tags to them, and the HTTP
// surface the client consumes.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/taglink/pkg/types"
)

const (
	dbFile    = "taglink.db"
	imagesDir = "images"
)

// ErrNoInstrument reports that no instrument matches the given key.
var ErrNoInstrument = errors.New("no instrument")

// ErrSerialUnknown reports a pairing attempt against a serial the
// inventory does not contain.
var ErrSerialUnknown = errors.New("serial not in inventory")

// ConflictError reports a pairing that would double-bind a tag or an
// instrument. The message is user-facing.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// Instrument is a stored inventory row: a record plus its stable ID.
// TagID stays empty until the instrument is paired.
type Instrument struct {
	ID                     string `yaml:"id"`
	types.InstrumentRecord `yaml:",inline"`
}

// Store manages the instrument inventory database and the image files
// under the data directory.
type Store struct {
	db      *sql.DB
	dataDir string
}

// Open opens or creates the inventory database at dataDir/taglink.db and
// the images directory next to it, creating the schema if needed.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, imagesDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dataDir: dataDir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS instruments (
			id TEXT PRIMARY KEY,
			tag_id TEXT UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			manufacturer TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			serial TEXT NOT NULL UNIQUE,
			manufacture_date TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_instruments_tag ON instruments(tag_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// TagExists reports whether any instrument is paired to tag.
func (s *Store) TagExists(ctx context.Context, tag string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM instruments WHERE tag_id = ?`, tag,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking tag: %w", err)
	}
	return n > 0, nil
}

// RecordByTag returns the instrument paired to tag, or ErrNoInstrument.
func (s *Store) RecordByTag(ctx context.Context, tag string) (types.InstrumentRecord, error) {
	var rec types.InstrumentRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT tag_id, name, manufacturer, model, serial, manufacture_date
		 FROM instruments WHERE tag_id = ?`, tag,
	).Scan(&rec.TagID, &rec.Name, &rec.Manufacturer, &rec.Model, &rec.Serial, &rec.ManufactureDate)
	if errors.Is(err, sql.ErrNoRows) {
		return types.InstrumentRecord{}, ErrNoInstrument
	}
	if err != nil {
		return types.InstrumentRecord{}, fmt.Errorf("fetching record: %w", err)
	}
	return rec, nil
}

// Pair binds tag to the instrument with the given serial. Fails with a
// ConflictError when the tag is already paired or the instrument already
// carries another tag, and with ErrSerialUnknown when no instrument has
// that serial. Returns the updated record on success.
func (s *Store) Pair(ctx context.Context, tag, serial string) (types.InstrumentRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.InstrumentRecord{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Refuse when the tag is already bound.
	var pairedName string
	err = tx.QueryRowContext(ctx,
		`SELECT name FROM instruments WHERE tag_id = ?`, tag,
	).Scan(&pairedName)
	if err == nil {
		return types.InstrumentRecord{}, &ConflictError{
			Message: fmt.Sprintf("tag %s is already paired with instrument: %s", tag, pairedName),
		}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.InstrumentRecord{}, fmt.Errorf("checking tag: %w", err)
	}

	// Find the instrument by serial.
	var id string
	var existingTag sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT id, tag_id FROM instruments WHERE serial = ?`, serial,
	).Scan(&id, &existingTag)
	if errors.Is(err, sql.ErrNoRows) {
		return types.InstrumentRecord{}, ErrSerialUnknown
	}
	if err != nil {
		return types.InstrumentRecord{}, fmt.Errorf("looking up serial: %w", err)
	}
	if existingTag.Valid && existingTag.String != "" {
		return types.InstrumentRecord{}, &ConflictError{
			Message: fmt.Sprintf("this instrument is already paired with tag: %s", existingTag.String),
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE instruments SET tag_id = ? WHERE id = ?`, tag, id,
	); err != nil {
		return types.InstrumentRecord{}, fmt.Errorf("binding tag: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return types.InstrumentRecord{}, fmt.Errorf("committing pairing: %w", err)
	}

	return s.RecordByTag(ctx, tag)
}

// Unpair removes the binding between tag and its instrument, returning
// the instrument's name. ErrNoInstrument when nothing is paired to tag.
func (s *Store) Unpair(ctx context.Context, tag string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM instruments WHERE tag_id = ?`, tag,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoInstrument
	}
	if err != nil {
		return "", fmt.Errorf("looking up tag: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE instruments SET tag_id = NULL WHERE tag_id = ?`, tag,
	); err != nil {
		return "", fmt.Errorf("clearing tag: %w", err)
	}
	return name, nil
}

// Add inserts an instrument into the inventory, assigning a UUID when the
// ID is empty.
func (s *Store) Add(ctx context.Context, inst Instrument) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}

	var tag any
	if inst.TagID != "" {
		tag = inst.TagID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instruments (id, tag_id, name, manufacturer, model, serial, manufacture_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, tag, inst.Name, inst.Manufacturer, inst.Model, inst.Serial, inst.ManufactureDate,
	)
	if err != nil {
		return fmt.Errorf("inserting instrument %s: %w", inst.Serial, err)
	}
	return nil
}

// HasSerial reports whether the inventory already contains serial.
func (s *Store) HasSerial(ctx context.Context, serial string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM instruments WHERE serial = ?`, serial,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking serial: %w", err)
	}
	return n > 0, nil
}

// ImagePath returns the on-disk path for a tag's image.
func (s *Store) ImagePath(tag string) string {
	return filepath.Join(s.dataDir, imagesDir, tag+".jpg")
}

// SaveImage persists an uploaded image for tag, writing through a temp
// file and renaming so a failed upload never leaves a partial image.
func (s *Store) SaveImage(tag string, r io.Reader) error {
	destPath := s.ImagePath(tag)

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".upload-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, r)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing image: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
