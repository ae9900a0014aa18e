package status

import (
	"sync"
	"time"
)

// Snapshot is an immutable view of the control loop's state after one tick.
// The loop publishes a fresh value each tick; everything outside the loop
// (health handler, WebSocket hub, metrics page) reads these copies and never
// touches live loop state.
type Snapshot struct {
	Timestamp time.Time

	NormalizedLoad float64
	RawLoad        float64
	CPUCount       int

	Baseline        float64
	BaselineOK      bool
	BaselineSamples int

	Verdict string

	UpperBound     float64
	LowerBound     float64
	RelativeBounds bool

	Mode  string
	Since time.Time

	// LastError is the most recent per-tick recoverable failure, empty when
	// the last tick was clean.
	LastError string
}

// Board is the synchronized hand-off point between the single-threaded
// control loop and its concurrent readers.
type Board struct {
	mu   sync.RWMutex
	snap Snapshot
	set  bool
}

// NewBoard returns an empty Board.
func NewBoard() *Board {
	return &Board{}
}

// Publish replaces the current snapshot.
func (b *Board) Publish(s Snapshot) {
	b.mu.Lock()
	b.snap = s
	b.set = true
	b.mu.Unlock()
}

// Current returns the latest snapshot and whether one has been published yet.
func (b *Board) Current() (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap, b.set
}
