package health

import (
	"time"

	"github.com/uamguard/uamguard/internal/status"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"` // "ok" | "stale" | "starting"
	Mode     string `json:"mode,omitempty"`
	LastTick string `json:"last_tick,omitempty"` // RFC3339
}

// StatusResponse is the payload for GET /api/v1/status and the WebSocket
// stream. It is a wire-friendly rendering of status.Snapshot.
type StatusResponse struct {
	Timestamp    string `json:"timestamp"` // RFC3339
	Mode         string `json:"mode"`
	Since        string `json:"since"`
	ProtectedFor string `json:"protected_for,omitempty"`

	NormalizedLoad float64 `json:"normalized_load"`
	RawLoad        float64 `json:"raw_load"`
	CPUCount       int     `json:"cpu_count"`

	Baseline        *float64 `json:"baseline,omitempty"`
	BaselineSamples int      `json:"baseline_samples"`

	Verdict        string  `json:"verdict,omitempty"`
	UpperBound     float64 `json:"upper_bound"`
	LowerBound     float64 `json:"lower_bound"`
	RelativeBounds bool    `json:"relative_bounds"`

	LastError string `json:"last_error,omitempty"`
}

// BuildStatus renders a snapshot for the wire. now is passed in so the
// protected-for duration is stable under test.
func BuildStatus(snap status.Snapshot, now time.Time) StatusResponse {
	resp := StatusResponse{
		Timestamp:       snap.Timestamp.Format(time.RFC3339),
		Mode:            snap.Mode,
		Since:           snap.Since.Format(time.RFC3339),
		NormalizedLoad:  snap.NormalizedLoad,
		RawLoad:         snap.RawLoad,
		CPUCount:        snap.CPUCount,
		BaselineSamples: snap.BaselineSamples,
		Verdict:         snap.Verdict,
		UpperBound:      snap.UpperBound,
		LowerBound:      snap.LowerBound,
		RelativeBounds:  snap.RelativeBounds,
		LastError:       snap.LastError,
	}
	if snap.BaselineOK {
		b := snap.Baseline
		resp.Baseline = &b
	}
	if snap.Mode == "active" {
		resp.ProtectedFor = now.Sub(snap.Since).Round(time.Second).String()
	}
	return resp
}
