// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session owns the tag-resolution and pairing state machine. A
// Session classifies a scanned tag as paired or unpaired, drives the
// pairing submission lifecycle, and resets itself after a successful
// mutation so no stale state survives.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pdiddy/taglink/internal/client"
	"github.com/pdiddy/taglink/pkg/types"
)

// PairingState classifies a tag identifier. A session starts Unknown and
// transitions exactly once per resolution; only Reset returns it to
// Unknown.
type PairingState int

const (
	StateUnknown PairingState = iota
	StateUnpaired
	StatePaired
)

func (s PairingState) String() string {
	switch s {
	case StateUnpaired:
		return "unpaired"
	case StatePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// SubmitState is the pairing submission lifecycle.
type SubmitState int

const (
	SubmitIdle SubmitState = iota
	SubmitInFlight
	SubmitError
	SubmitSucceeded
)

func (s SubmitState) String() string {
	switch s {
	case SubmitInFlight:
		return "submitting"
	case SubmitError:
		return "error"
	case SubmitSucceeded:
		return "succeeded"
	default:
		return "idle"
	}
}

const msgSerialRequired = "serial number is required"
const msgPairGeneric = "pairing failed, please try again"

// Session holds the per-scan state for one tag identifier. Exactly one of
// the pairing workflow and the read-only record view is active at a time,
// driven solely by the pairing state.
type Session struct {
	svc *client.Client
	tag string
	w   io.Writer

	mu           sync.Mutex
	state        PairingState
	record       types.InstrumentRecord
	recordLoaded bool
	serial       string
	submit       SubmitState
	submitMsg    string
}

// New builds a session for tag. tag may be empty (no-tag scan); the
// session then resolves to unpaired without touching the network.
// Warnings are written to w.
func New(svc *client.Client, tag string, w io.Writer) *Session {
	if w == nil {
		w = io.Discard
	}
	return &Session{svc: svc, tag: tag, w: w}
}

// Tag returns the tag identifier this session was opened for.
func (s *Session) Tag() string { return s.tag }

// State returns the current pairing state.
func (s *Session) State() PairingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resolve runs the existence probe and settles the pairing state. The
// probe runs at most once per session; later calls return the settled
// state. A missing tag resolves to unpaired with no network call.
func (s *Session) Resolve(ctx context.Context) PairingState {
	s.mu.Lock()
	if s.state != StateUnknown {
		st := s.state
		s.mu.Unlock()
		return st
	}
	s.mu.Unlock()

	if s.tag == "" {
		s.mu.Lock()
		s.state = StateUnpaired
		s.mu.Unlock()
		return StateUnpaired
	}

	exists, err := s.svc.CheckTag(ctx, s.tag)
	if err != nil {
		fmt.Fprintf(s.w, "warning: existence check for tag %s failed: %v\n", s.tag, err)
	}
	st := ClassifyExistence(exists, err)

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return st
}

// ClassifyExistence maps an existence probe outcome to a pairing state.
// Fail-open: any probe failure resolves to unpaired so a broken check
// never blocks the pairing path.
func ClassifyExistence(exists bool, err error) PairingState {
	if err != nil {
		return StateUnpaired
	}
	if exists {
		return StatePaired
	}
	return StateUnpaired
}

// Record fetches the paired instrument, once per session. Fetch failure is
// logged and yields a record whose fields are empty strings with the tag
// identifier filled in; the view layer never sees a missing record.
func (s *Session) Record(ctx context.Context) types.InstrumentRecord {
	s.mu.Lock()
	if s.recordLoaded {
		rec := s.record
		s.mu.Unlock()
		return rec
	}
	s.mu.Unlock()

	rec, err := s.svc.FetchRecord(ctx, s.tag)
	if err != nil {
		fmt.Fprintf(s.w, "warning: record fetch for tag %s failed: %v\n", s.tag, err)
		rec = types.InstrumentRecord{TagID: s.tag}
	}

	s.mu.Lock()
	s.record = rec
	s.recordLoaded = true
	s.mu.Unlock()
	return rec
}

// SetSerial stores the serial input. Editing while an error is shown
// clears the error; it belongs to the last submission, not to the current
// input.
func (s *Session) SetSerial(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serial = v
	if s.submit == SubmitError {
		s.submit = SubmitIdle
		s.submitMsg = ""
	}
}

// Serial returns the current serial input. It is preserved across failed
// submissions so the user can correct and resubmit.
func (s *Session) Serial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serial
}

// SubmitStatus returns the submission state and, in the error state, the
// user-facing message.
func (s *Session) SubmitStatus() (SubmitState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submit, s.submitMsg
}

// SubmitPair runs one pairing submission for the stored serial. A blank
// serial (after trimming) short-circuits to the error state without any
// network call. While a submission is in flight further calls are refused;
// that gate is the only safeguard against duplicate pairings.
func (s *Session) SubmitPair(ctx context.Context) SubmitState {
	s.mu.Lock()
	if s.submit == SubmitInFlight {
		s.mu.Unlock()
		return SubmitInFlight
	}

	trimmed := strings.TrimSpace(s.serial)
	if trimmed == "" {
		s.submit = SubmitError
		s.submitMsg = msgSerialRequired
		s.mu.Unlock()
		return SubmitError
	}

	s.submit = SubmitInFlight
	s.submitMsg = ""
	s.mu.Unlock()

	err := s.svc.Pair(ctx, s.tag, trimmed)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.submit = SubmitError
		s.submitMsg = PairFailureMessage(trimmed, err)
		return SubmitError
	}
	s.submit = SubmitSucceeded
	return SubmitSucceeded
}

// PairFailureMessage derives the user-facing message for a failed pairing.
// Priority: a structured message from the service body, then the
// not-found mapping, then a generic fallback.
func PairFailureMessage(serial string, err error) string {
	var sErr *client.ServiceError
	if errors.As(err, &sErr) && sErr.Message != "" {
		return sErr.Message
	}
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Sprintf("no instrument found with serial number: %s", serial)
	}
	return msgPairGeneric
}

// Reset discards all per-session state and re-resolves. This is the
// recovery path after any state-changing success: rather than reconcile
// partial client state with the changed server record, the whole session
// is rebuilt from a fresh probe.
func (s *Session) Reset(ctx context.Context) PairingState {
	s.mu.Lock()
	s.state = StateUnknown
	s.record = types.InstrumentRecord{}
	s.recordLoaded = false
	s.serial = ""
	s.submit = SubmitIdle
	s.submitMsg = ""
	s.mu.Unlock()
	return s.Resolve(ctx)
}
