// Package health implements the read-only HTTP surface for uamguard.
//
// New(board, staleAfter) returns an http.Handler that serves:
//
//	GET /api/v1/health  — liveness: ok | stale | starting (503 for the last two)
//	GET /api/v1/status  — full rendering of the latest control loop snapshot
//
// All endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. Responses are built from published snapshots only;
// the handler never blocks on the control loop.
package health
