package engine

import (
	"time"

	"github.com/uamguard/uamguard/internal/threshold"
)

// Mode is the protection mode.
type Mode string

const (
	ModeInactive Mode = "inactive"
	ModeActive   Mode = "active"
)

// State is the protection mode together with when it was entered.
type State struct {
	Mode  Mode
	Since time.Time
}

// Machine is the hysteretic protection state machine. It owns the current
// State; all mutation goes through Commit so the control loop can perform
// the remote toggle before the in-memory transition becomes real.
//
// Not safe for concurrent use — confined to the control loop.
type Machine struct {
	cur         State
	minDuration time.Duration
}

// NewMachine starts from initial. minDuration is how long protection must
// stay engaged before low load may lift it.
func NewMachine(initial State, minDuration time.Duration) *Machine {
	return &Machine{cur: initial, minDuration: minDuration}
}

// Current returns the committed state.
func (m *Machine) Current() State {
	return m.cur
}

// Next computes the state this verdict would transition to, without
// committing it. changed is false when the verdict causes no transition:
// Neutral always, HighLoad while already active, LowLoad while inactive,
// and LowLoad while active but inside the minimum engagement duration.
//
// There is deliberately no dwell guard on entering protection — a fresh
// spike engages immediately, whatever just happened.
func (m *Machine) Next(v threshold.Verdict, now time.Time) (State, bool) {
	switch {
	case m.cur.Mode == ModeInactive && v == threshold.HighLoad:
		return State{Mode: ModeActive, Since: now}, true

	case m.cur.Mode == ModeActive && v == threshold.LowLoad:
		if now.Sub(m.cur.Since) < m.minDuration {
			return m.cur, false
		}
		return State{Mode: ModeInactive, Since: now}, true

	default:
		return m.cur, false
	}
}

// Commit makes s the current state. Callers only commit states returned by
// Next, and only after the corresponding remote toggle succeeded.
func (m *Machine) Commit(s State) {
	m.cur = s
}
