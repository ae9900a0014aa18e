package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uamguard/uamguard/internal/baseline"
	"github.com/uamguard/uamguard/internal/cloudflare"
	"github.com/uamguard/uamguard/internal/config"
	"github.com/uamguard/uamguard/internal/metrics"
	"github.com/uamguard/uamguard/internal/sampler"
	"github.com/uamguard/uamguard/internal/state"
	"github.com/uamguard/uamguard/internal/status"
	"github.com/uamguard/uamguard/internal/threshold"
)

// Sampler supplies one normalized load reading per call.
type Sampler interface {
	Sample(ctx context.Context) (sampler.Sample, error)
}

// Toggler flips the remote protection on and off. Implemented by
// cloudflare.Client; faked in tests.
type Toggler interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// Options wires an Engine together. All fields except OnTransition are
// required.
type Options struct {
	Config  *config.Config
	Sampler Sampler
	Tracker *baseline.Tracker
	Machine *Machine
	Toggler Toggler
	Store   state.Store
	Board   *status.Board
	Metrics *metrics.Recorder

	// OnTransition is called after a transition has been committed and
	// persisted. Used for notifications; may be nil.
	OnTransition func(from, to State, snap status.Snapshot)
}

// Engine drives the control loop: sample, track, evaluate, transition,
// toggle, persist. One tick runs at a time; a tick finishes (including any
// toggle retries) before the next is considered, and ticker ticks that fire
// while one is still running are simply dropped.
type Engine struct {
	cfg     *config.Config
	sampler Sampler
	tracker *baseline.Tracker
	machine *Machine
	toggler Toggler
	store   state.Store
	board   *status.Board
	rec     *metrics.Recorder

	onTransition func(from, to State, snap status.Snapshot)

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// New creates an Engine from the given options.
func New(o Options) *Engine {
	return &Engine{
		cfg:          o.Config,
		sampler:      o.Sampler,
		tracker:      o.Tracker,
		machine:      o.Machine,
		toggler:      o.Toggler,
		store:        o.Store,
		board:        o.Board,
		rec:          o.Metrics,
		onTransition: o.OnTransition,
		now:          time.Now,
		wait:         sleep,
	}
}

// Run executes the control loop until ctx is cancelled. The first evaluation
// happens immediately so a machine already under load is protected without
// waiting out a full interval. The returned error is non-nil only for fatal
// conditions (rejected credentials); cancellation returns nil.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine: control loop starting",
		"check_interval", e.cfg.Monitoring.CheckInterval,
		"mode", e.machine.Current().Mode,
	)

	if err := e.Tick(ctx); err != nil {
		return e.finish(err)
	}

	t := time.NewTicker(e.cfg.Monitoring.CheckInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine: control loop stopped")
			return nil
		case <-t.C:
			if err := e.Tick(ctx); err != nil {
				return e.finish(err)
			}
		}
	}
}

func (e *Engine) finish(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.Info("engine: control loop stopped mid-tick")
		return nil
	}
	return err
}

// Tick performs one full evaluation cycle. Recoverable failures are logged
// and absorbed; the returned error is fatal to the loop.
func (e *Engine) Tick(ctx context.Context) error {
	now := e.now()
	e.rec.Tick()

	smp, err := e.sampler.Sample(ctx)
	if err != nil {
		// Keep prior state and baseline; the next tick retries.
		e.rec.SamplingFailure()
		slog.Warn("engine: sampling failed — skipping tick", "err", err)
		e.publishError(now, err)
		return nil
	}

	e.tracker.Add(smp)
	bval, bok := e.tracker.Baseline(now)
	verdict, bounds := threshold.Decide(smp.Normalized, bval, bok, e.cfg.Thresholds)

	slog.Debug("engine: evaluated",
		"normalized", smp.Normalized,
		"verdict", verdict.String(),
		"upper", bounds.Upper,
		"lower", bounds.Lower,
		"relative_bounds", bounds.Relative,
	)

	prev := e.machine.Current()
	next, changed := e.machine.Next(verdict, now)

	var tickErr string
	if changed {
		switch err := e.applyToggle(ctx, next.Mode); {
		case err == nil:
			e.machine.Commit(next)
			e.rec.Transition(string(next.Mode))
			slog.Info("engine: protection state changed",
				"from", prev.Mode,
				"to", next.Mode,
				"normalized", smp.Normalized,
				"verdict", verdict.String(),
			)

		case errors.Is(err, cloudflare.ErrUnauthorized):
			return fmt.Errorf("engine: protection toggle rejected, cannot continue: %w", err)

		case ctx.Err() != nil:
			return ctx.Err()

		default:
			// Transition not committed — the next tick re-evaluates from the
			// unchanged state, so toggle and memory never diverge.
			slog.Error("engine: toggle failed — keeping previous state",
				"target", next.Mode, "err", err)
			next, changed = prev, false
			tickErr = err.Error()
		}
	}

	snap := e.snapshot(now, smp, bval, bok, verdict, bounds, tickErr)
	e.board.Publish(snap)
	e.rec.ObserveLoad(smp.Normalized)
	e.rec.ObserveBaseline(bval, bok, e.tracker.Len())
	e.rec.SetProtection(e.machine.Current().Mode == ModeActive)

	if changed {
		e.persist(ctx, now, smp, verdict, bounds, next)
		if e.onTransition != nil {
			e.onTransition(prev, next, snap)
		}
	}
	return nil
}

// applyToggle performs the remote call for the target mode with bounded
// retries. Rate-limit hints from the API take precedence over the computed
// backoff. Unauthorized aborts immediately.
func (e *Engine) applyToggle(ctx context.Context, target Mode) error {
	call := e.toggler.Enable
	if target == ModeInactive {
		call = e.toggler.Disable
	}

	maxAttempts := e.cfg.Cloudflare.MaxRetries
	bo := newBackoff()

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = call(ctx)
		if err == nil {
			e.rec.ToggleAttempt(metrics.ResultOK)
			return nil
		}
		if errors.Is(err, cloudflare.ErrUnauthorized) {
			e.rec.ToggleAttempt(metrics.ResultFatal)
			return err
		}

		e.rec.ToggleAttempt(metrics.ResultRetryable)
		if attempt == maxAttempts {
			break
		}

		delay := bo.next()
		var rl *cloudflare.RateLimitedError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			delay = rl.RetryAfter
		}
		slog.Warn("engine: toggle attempt failed — retrying",
			"target", target,
			"attempt", attempt,
			"retry_in", delay,
			"err", err,
		)
		if werr := e.wait(ctx, delay); werr != nil {
			return werr
		}
	}
	return fmt.Errorf("engine: toggle gave up after %d attempts: %w", maxAttempts, err)
}

// persist writes the committed state. Failure is recoverable: the in-memory
// state is authoritative for the rest of the process lifetime.
func (e *Engine) persist(ctx context.Context, now time.Time, smp sampler.Sample, v threshold.Verdict, b threshold.Bounds, st State) {
	rec := state.State{
		Mode:           string(st.Mode),
		Since:          st.Since,
		LastCheck:      now,
		NormalizedLoad: smp.Normalized,
		Reason:         transitionReason(smp.Normalized, v, b),
	}
	if st.Mode == ModeActive {
		rec.ThresholdUsed = b.Upper
	} else {
		rec.ThresholdUsed = b.Lower
	}

	if err := e.store.Save(ctx, rec); err != nil {
		e.rec.PersistenceFailure()
		slog.Warn("engine: could not persist state — continuing in memory", "err", err)
	}
}

func transitionReason(normalized float64, v threshold.Verdict, b threshold.Bounds) string {
	kind := "absolute"
	if b.Relative {
		kind = "baseline-relative"
	}
	if v == threshold.HighLoad {
		return fmt.Sprintf("normalized load %.2f above %s upper bound %.2f", normalized, kind, b.Upper)
	}
	return fmt.Sprintf("normalized load %.2f below %s lower bound %.2f", normalized, kind, b.Lower)
}

func (e *Engine) snapshot(now time.Time, smp sampler.Sample, bval float64, bok bool, v threshold.Verdict, b threshold.Bounds, tickErr string) status.Snapshot {
	cur := e.machine.Current()
	return status.Snapshot{
		Timestamp:       now,
		NormalizedLoad:  smp.Normalized,
		RawLoad:         smp.Raw,
		CPUCount:        smp.CPUCount,
		Baseline:        bval,
		BaselineOK:      bok,
		BaselineSamples: e.tracker.Len(),
		Verdict:         v.String(),
		UpperBound:      b.Upper,
		LowerBound:      b.Lower,
		RelativeBounds:  b.Relative,
		Mode:            string(cur.Mode),
		Since:           cur.Since,
		LastError:       tickErr,
	}
}

// publishError refreshes the board after a skipped tick so readers can see
// the daemon is alive but degraded. Prior load figures are kept.
func (e *Engine) publishError(now time.Time, err error) {
	snap, ok := e.board.Current()
	if !ok {
		cur := e.machine.Current()
		snap = status.Snapshot{Mode: string(cur.Mode), Since: cur.Since}
	}
	snap.Timestamp = now
	snap.Verdict = ""
	snap.LastError = err.Error()
	e.board.Publish(snap)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
