package baseline

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/uamguard/uamguard/internal/sampler"
)

// percentileRank is the percentile used as the baseline. The 95th tolerates
// occasional spikes in the window without dragging the baseline up.
const percentileRank = 95.0

// minSamples is the minimum number of qualifying samples needed before a
// baseline is reported at all.
const minSamples = 2

// Tracker keeps a bounded window of load samples and serves the 95th
// percentile of the recent ones as the "normal load" baseline.
//
// Tracker is not safe for concurrent use; it is owned by the control loop.
// Concurrent readers get values through the status board, never through
// the Tracker itself.
type Tracker struct {
	samples []sampler.Sample // insertion order == time order
	max     int

	window         time.Duration
	updateInterval time.Duration

	cached     float64
	cachedOK   bool
	computedAt time.Time
}

// New creates a Tracker bounded to maxSamples entries. Samples older than
// window are excluded from the percentile; the cached value is recomputed at
// most once per updateInterval.
func New(maxSamples int, window, updateInterval time.Duration) *Tracker {
	return &Tracker{
		samples:        make([]sampler.Sample, 0, maxSamples),
		max:            maxSamples,
		window:         window,
		updateInterval: updateInterval,
	}
}

// Add appends a sample to the window, evicting the oldest when full.
func (t *Tracker) Add(s sampler.Sample) {
	if len(t.samples) >= t.max {
		t.samples = t.samples[1:]
	}
	t.samples = append(t.samples, s)
}

// Len returns the number of samples currently held, qualifying or not.
func (t *Tracker) Len() int {
	return len(t.samples)
}

// Baseline returns the baseline normalized load, or ok=false when fewer than
// two samples fall inside the window.
//
// The cached value is served while it is younger than the update interval.
// A failed recomputation does not refresh the cache timestamp, so the next
// call tries again immediately — the baseline appears as soon as enough
// samples exist.
func (t *Tracker) Baseline(now time.Time) (float64, bool) {
	if t.cachedOK && now.Sub(t.computedAt) < t.updateInterval {
		return t.cached, true
	}

	cutoff := now.Add(-t.window)
	recent := make([]float64, 0, len(t.samples))
	for _, s := range t.samples {
		if !s.Timestamp.Before(cutoff) {
			recent = append(recent, s.Normalized)
		}
	}

	if len(recent) < minSamples {
		slog.Debug("baseline: not enough qualifying samples",
			"qualifying", len(recent), "held", len(t.samples))
		return 0, false
	}

	t.cached = percentile(recent, percentileRank)
	t.cachedOK = true
	t.computedAt = now

	slog.Info("baseline: recomputed",
		"baseline", t.cached,
		"qualifying", len(recent),
		"window", t.window,
	)
	return t.cached, true
}

// percentile computes the p-th percentile of vals by sorting and linear
// interpolation between the two nearest ranks. vals is not modified.
func percentile(vals []float64, p float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
