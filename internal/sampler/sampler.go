package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
)

// ErrUnavailable wraps any failure to read the OS load average.
// The control loop skips the tick when it sees this error.
var ErrUnavailable = errors.New("load average unavailable")

// cpuCountTTL is how long a successfully read CPU count is cached.
// Core counts change rarely (hotplug, VM resize) so a short TTL is enough.
const cpuCountTTL = 5 * time.Minute

// Sample is one load reading. Immutable once created.
type Sample struct {
	Timestamp time.Time

	// Raw is the 5-minute OS load average.
	Raw float64

	// CPUCount is the logical core count the reading was normalized by.
	CPUCount int

	// Normalized is Raw / CPUCount, making thresholds portable across
	// machine sizes.
	Normalized float64
}

// Sampler reads the system load average and normalizes it by CPU count.
//
// Sampler is not safe for concurrent use; it is owned by the control loop.
type Sampler struct {
	loadFn func(ctx context.Context) (*load.AvgStat, error)
	cpuFn  func(ctx context.Context, logical bool) (int, error)
	now    func() time.Time

	cachedCPUs int
	cachedAt   time.Time
}

// New returns a Sampler backed by gopsutil.
func New() *Sampler {
	return &Sampler{
		loadFn: load.AvgWithContext,
		cpuFn:  cpu.CountsWithContext,
		now:    time.Now,
	}
}

// Sample reads the current 5-minute load average and returns it normalized
// by the logical CPU count. The 5-minute figure is used rather than the
// 1-minute one so short scheduling blips do not trip the thresholds.
func (s *Sampler) Sample(ctx context.Context) (Sample, error) {
	avg, err := s.loadFn(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("sampler: %w: %w", ErrUnavailable, err)
	}

	cpus := s.cpuCount(ctx)
	smp := Sample{
		Timestamp:  s.now(),
		Raw:        avg.Load5,
		CPUCount:   cpus,
		Normalized: avg.Load5 / float64(cpus),
	}

	slog.Debug("sampler: load read",
		"raw", smp.Raw,
		"cpus", smp.CPUCount,
		"normalized", smp.Normalized,
	)
	return smp, nil
}

// cpuCount returns the logical CPU count, cached for cpuCountTTL.
// A count that cannot be determined is treated as 1 so normalization
// never divides by zero.
func (s *Sampler) cpuCount(ctx context.Context) int {
	now := s.now()
	if s.cachedCPUs > 0 && now.Sub(s.cachedAt) < cpuCountTTL {
		return s.cachedCPUs
	}

	n, err := s.cpuFn(ctx, true)
	if err != nil || n < 1 {
		slog.Warn("sampler: could not determine CPU count, assuming 1", "err", err)
		if s.cachedCPUs > 0 {
			return s.cachedCPUs
		}
		return 1
	}

	s.cachedCPUs = n
	s.cachedAt = now
	return n
}
