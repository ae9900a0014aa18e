package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Toggle attempt results, used as the label value on ToggleAttempt.
const (
	ResultOK        = "ok"
	ResultRetryable = "retryable"
	ResultFatal     = "fatal"
)

// Recorder owns the daemon's Prometheus collectors on a private registry.
// All methods are safe for concurrent use (the collectors lock internally),
// though in practice only the control loop writes.
type Recorder struct {
	registry *prometheus.Registry

	normalizedLoad   prometheus.Gauge
	baselineValue    prometheus.Gauge
	baselineSamples  prometheus.Gauge
	protectionActive prometheus.Gauge

	ticks               prometheus.Counter
	samplingFailures    prometheus.Counter
	persistenceFailures prometheus.Counter
	toggleAttempts      *prometheus.CounterVec
	transitions         *prometheus.CounterVec
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		normalizedLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uamguard_normalized_load",
			Help: "Most recent load average divided by CPU count.",
		}),
		baselineValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uamguard_baseline",
			Help: "Current 95th-percentile normalized load baseline (0 until computed).",
		}),
		baselineSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uamguard_baseline_samples",
			Help: "Number of samples held in the baseline window.",
		}),
		protectionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uamguard_protection_active",
			Help: "1 while Under Attack Mode is engaged, 0 otherwise.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uamguard_ticks_total",
			Help: "Evaluation ticks started.",
		}),
		samplingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uamguard_sampling_failures_total",
			Help: "Ticks skipped because the load average could not be read.",
		}),
		persistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uamguard_persistence_failures_total",
			Help: "State saves that failed (daemon continues with in-memory state).",
		}),
		toggleAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uamguard_toggle_attempts_total",
			Help: "Cloudflare toggle attempts by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uamguard_transitions_total",
			Help: "Committed protection transitions by target mode.",
		}, []string{"to"}),
	}

	reg.MustRegister(
		r.normalizedLoad, r.baselineValue, r.baselineSamples, r.protectionActive,
		r.ticks, r.samplingFailures, r.persistenceFailures,
		r.toggleAttempts, r.transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler returns the /metrics HTTP handler for the private registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Tick()               { r.ticks.Inc() }
func (r *Recorder) SamplingFailure()    { r.samplingFailures.Inc() }
func (r *Recorder) PersistenceFailure() { r.persistenceFailures.Inc() }

func (r *Recorder) ObserveLoad(normalized float64) {
	r.normalizedLoad.Set(normalized)
}

func (r *Recorder) ObserveBaseline(value float64, ok bool, samples int) {
	if ok {
		r.baselineValue.Set(value)
	} else {
		r.baselineValue.Set(0)
	}
	r.baselineSamples.Set(float64(samples))
}

func (r *Recorder) SetProtection(active bool) {
	if active {
		r.protectionActive.Set(1)
	} else {
		r.protectionActive.Set(0)
	}
}

func (r *Recorder) ToggleAttempt(result string) {
	r.toggleAttempts.WithLabelValues(result).Inc()
}

func (r *Recorder) Transition(to string) {
	r.transitions.WithLabelValues(to).Inc()
}
