package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uamguard/uamguard/internal/cloudflare"
	"github.com/uamguard/uamguard/internal/state"
)

// LevelReader reads the zone's current security level. Implemented by
// cloudflare.Client.
type LevelReader interface {
	Current(ctx context.Context) (string, error)
}

// Bootstrap determines the protection state to start from.
//
// The durable record is consulted first; a missing or corrupt record means
// inactive-as-of-now. The result is then reconciled against the zone's actual
// security level: if Cloudflare disagrees with the record — an operator
// toggled the zone by hand, or a crash landed between toggle and save — the
// remote truth wins. A rejected credential is fatal here, just as it is
// mid-run.
func Bootstrap(ctx context.Context, store state.Store, lvl LevelReader, now time.Time) (State, error) {
	st := State{Mode: ModeInactive, Since: now}

	saved, err := store.Load(ctx)
	switch {
	case errors.Is(err, state.ErrNotFound):
		slog.Warn("engine: no saved state — starting inactive")
	case err != nil:
		slog.Warn("engine: could not load saved state — starting inactive", "err", err)
	default:
		st = State{Mode: Mode(saved.Mode), Since: saved.Since}
		slog.Info("engine: resuming from saved state", "mode", st.Mode, "since", st.Since)
	}

	remote, err := lvl.Current(ctx)
	if err != nil {
		if errors.Is(err, cloudflare.ErrUnauthorized) {
			return State{}, fmt.Errorf("engine: cannot verify zone state: %w", err)
		}
		slog.Warn("engine: could not read zone security level — trusting saved state", "err", err)
		return st, nil
	}

	remoteActive := remote == cloudflare.LevelUnderAttack
	if remoteActive != (st.Mode == ModeActive) {
		slog.Warn("engine: saved state disagrees with zone — adopting zone state",
			"saved", st.Mode, "zone_level", remote)
		if remoteActive {
			return State{Mode: ModeActive, Since: now}, nil
		}
		return State{Mode: ModeInactive, Since: now}, nil
	}
	return st, nil
}
