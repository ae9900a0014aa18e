// Package metrics exposes the daemon's Prometheus instrumentation on a
// private registry, served at /metrics.
package metrics
