// Package engine is the decision core of uamguard.
//
// state.go holds the hysteretic protection state machine: high load engages
// protection immediately, low load lifts it only after a configurable
// minimum engagement, anything else is a no-op. The Next/Commit split keeps
// the remote toggle and the in-memory state atomic from the loop's point of
// view — a transition is only committed once Cloudflare accepted it.
//
// engine.go is the scheduler: a single goroutine ticks at the configured
// interval and runs the pipeline sample → baseline → verdict → transition →
// toggle → persist. Ticks never overlap; a ticker fire during a long tick
// (toggle retries) is dropped.
//
// bootstrap.go resolves the state to start from, reconciling the durable
// record against the zone's actual security level.
package engine
