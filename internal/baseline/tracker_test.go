package baseline

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/uamguard/uamguard/internal/sampler"
)

var baseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const (
	testWindow   = 24 * time.Hour
	testInterval = 5 * time.Minute
)

// smp builds a sample with the given normalized load, aged by ago.
func smp(normalized float64, ago time.Duration) sampler.Sample {
	return sampler.Sample{
		Timestamp:  baseTime.Add(-ago),
		Raw:        normalized,
		CPUCount:   1,
		Normalized: normalized,
	}
}

func almostEqual(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestBaseline_LinearInterpolation(t *testing.T) {
	tr := New(1440, testWindow, testInterval)
	// Normalized loads 1..20. p95 rank over 19 intervals = 18.05,
	// so the expected value is 19 + 0.05*(20-19) = 19.05.
	for i := 1; i <= 20; i++ {
		tr.Add(smp(float64(i), time.Duration(20-i)*time.Minute))
	}

	got, ok := tr.Baseline(baseTime)
	if !ok {
		t.Fatal("Baseline: expected a value")
	}
	if !almostEqual(got, 19.05, 1e-9) {
		t.Errorf("Baseline: got %v, want 19.05", got)
	}
}

func TestBaseline_TwoSamples(t *testing.T) {
	tr := New(1440, testWindow, testInterval)
	tr.Add(smp(1.0, 2*time.Minute))
	tr.Add(smp(2.0, time.Minute))

	// rank = 0.95 over one interval: 1 + 0.95*(2-1) = 1.95.
	got, ok := tr.Baseline(baseTime)
	if !ok {
		t.Fatal("Baseline: expected a value with two samples")
	}
	if !almostEqual(got, 1.95, 1e-9) {
		t.Errorf("Baseline: got %v, want 1.95", got)
	}
}

func TestBaseline_OrderIndependent(t *testing.T) {
	vals := make([]float64, 50)
	for i := range vals {
		vals[i] = rand.Float64() * 10
	}

	ordered := New(1440, testWindow, testInterval)
	for i, v := range vals {
		ordered.Add(smp(v, time.Duration(i)*time.Minute))
	}
	want, ok := ordered.Baseline(baseTime)
	if !ok {
		t.Fatal("Baseline: expected a value")
	}

	shuffled := New(1440, testWindow, testInterval)
	perm := rand.Perm(len(vals))
	for i, j := range perm {
		shuffled.Add(smp(vals[j], time.Duration(i)*time.Minute))
	}
	got, ok := shuffled.Baseline(baseTime)
	if !ok {
		t.Fatal("Baseline (shuffled): expected a value")
	}

	if !almostEqual(got, want, 1e-9) {
		t.Errorf("Baseline depends on insertion order: got %v, want %v", got, want)
	}
}

func TestBaseline_InsufficientSamples(t *testing.T) {
	tr := New(1440, testWindow, testInterval)

	if _, ok := tr.Baseline(baseTime); ok {
		t.Error("Baseline on empty tracker: expected ok=false")
	}

	tr.Add(smp(1.0, time.Minute))
	if _, ok := tr.Baseline(baseTime); ok {
		t.Error("Baseline with one sample: expected ok=false")
	}
}

func TestBaseline_OldSamplesExcluded(t *testing.T) {
	tr := New(1440, testWindow, testInterval)
	// Stale entries are still in the buffer but outside the window.
	tr.Add(smp(100.0, 30*time.Hour))
	tr.Add(smp(100.0, 25*time.Hour))
	tr.Add(smp(1.0, 10*time.Minute))
	tr.Add(smp(2.0, 5*time.Minute))

	got, ok := tr.Baseline(baseTime)
	if !ok {
		t.Fatal("Baseline: expected a value from the two recent samples")
	}
	if got > 2.0 {
		t.Errorf("Baseline includes stale samples: got %v", got)
	}
}

func TestBaseline_CachedBetweenUpdates(t *testing.T) {
	tr := New(1440, testWindow, testInterval)
	tr.Add(smp(1.0, 2*time.Minute))
	tr.Add(smp(2.0, time.Minute))

	first, ok := tr.Baseline(baseTime)
	if !ok {
		t.Fatal("Baseline: expected a value")
	}

	// A much higher sample arrives, but the next call is still inside the
	// update interval — the cached value must be served.
	tr.Add(sampler.Sample{Timestamp: baseTime.Add(time.Minute), Normalized: 50.0, CPUCount: 1, Raw: 50.0})
	cached, ok := tr.Baseline(baseTime.Add(2 * time.Minute))
	if !ok || cached != first {
		t.Errorf("Baseline inside interval: got %v ok=%v, want cached %v", cached, ok, first)
	}

	// Past the interval the new sample is picked up.
	refreshed, ok := tr.Baseline(baseTime.Add(testInterval + time.Minute))
	if !ok {
		t.Fatal("Baseline after interval: expected a value")
	}
	if refreshed <= first {
		t.Errorf("Baseline after interval: got %v, want > %v", refreshed, first)
	}
}

func TestBaseline_FailedRecomputeRetriesNextTick(t *testing.T) {
	tr := New(1440, 10*time.Minute, testInterval)
	tr.Add(smp(1.0, 2*time.Minute))
	tr.Add(smp(2.0, time.Minute))

	if _, ok := tr.Baseline(baseTime); !ok {
		t.Fatal("initial Baseline: expected a value")
	}

	// Far in the future both samples have aged out: recompute fails.
	later := baseTime.Add(time.Hour)
	if _, ok := tr.Baseline(later); ok {
		t.Fatal("Baseline with aged-out samples: expected ok=false")
	}

	// Fresh samples arrive; the very next call must pick them up rather
	// than waiting out the update interval.
	tr.Add(sampler.Sample{Timestamp: later, Normalized: 3.0, CPUCount: 1, Raw: 3.0})
	tr.Add(sampler.Sample{Timestamp: later.Add(time.Second), Normalized: 4.0, CPUCount: 1, Raw: 4.0})
	if _, ok := tr.Baseline(later.Add(2 * time.Second)); !ok {
		t.Error("Baseline after new samples: expected immediate recompute")
	}
}

func TestAdd_EvictsOldest(t *testing.T) {
	const max = 10
	tr := New(max, testWindow, testInterval)
	for i := 0; i <= max; i++ { // max+1 adds
		tr.Add(smp(float64(i), time.Duration(max-i)*time.Second))
	}

	if tr.Len() != max {
		t.Fatalf("Len after %d adds: got %d, want %d", max+1, tr.Len(), max)
	}
	// The first sample (normalized 0) must be the one evicted.
	if tr.samples[0].Normalized != 1 {
		t.Errorf("oldest remaining sample: got %v, want 1", tr.samples[0].Normalized)
	}
}
