package state

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Load when no usable state exists yet —
// first run, missing file, or a corrupt record that was set aside.
var ErrNotFound = errors.New("state: no saved state")

// Protection modes as persisted. Mirrors engine.Mode; kept as plain strings
// here so the durable format does not depend on the engine package.
const (
	ModeActive   = "active"
	ModeInactive = "inactive"
)

// State is the durable record of the protection decision. Mode and Since are
// what a restart needs to resume consistently; the rest is diagnostic context
// written alongside so an operator inspecting the record can tell why the
// daemon last did what it did.
type State struct {
	Mode  string    `json:"mode"`
	Since time.Time `json:"since"`

	LastCheck      time.Time `json:"last_check"`
	NormalizedLoad float64   `json:"normalized_load"`
	ThresholdUsed  float64   `json:"threshold_used"`
	Reason         string    `json:"reason"`
}

// Valid reports whether the record holds a usable mode. Readers treat an
// invalid record like a missing one.
func (s State) Valid() bool {
	return s.Mode == ModeActive || s.Mode == ModeInactive
}

// Store is the durable state backend. Save is best-effort: callers log
// failures and continue with in-memory state as authoritative.
type Store interface {
	// Load returns the saved state, or ErrNotFound when none exists.
	Load(ctx context.Context) (State, error)

	// Save durably writes the state, replacing any previous record.
	Save(ctx context.Context, s State) error
}
