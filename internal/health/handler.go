package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/uamguard/uamguard/internal/status"
)

// Handler serves the read-only HTTP surface over the status board.
// It never touches live control-loop state, only published snapshots.
type Handler struct {
	board      *status.Board
	staleAfter time.Duration
	now        func() time.Time
	mux        *http.ServeMux
}

// New creates a Handler. staleAfter is how long after the last published
// snapshot the daemon is reported unhealthy — callers pass a small multiple
// of the check interval.
func New(board *status.Board, staleAfter time.Duration) *Handler {
	h := &Handler{
		board:      board,
		staleAfter: staleAfter,
		now:        time.Now,
		mux:        http.NewServeMux(),
	}
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/status", h.status)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// health returns 200 while the control loop is ticking, 503 otherwise.
// Suitable as a liveness probe.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap, ok := h.board.Current()
	if !ok {
		jsonResp(w, http.StatusServiceUnavailable, HealthResponse{Status: "starting"})
		return
	}

	resp := HealthResponse{
		Status:   "ok",
		Mode:     snap.Mode,
		LastTick: snap.Timestamp.Format(time.RFC3339),
	}
	code := http.StatusOK
	if h.now().Sub(snap.Timestamp) > h.staleAfter {
		resp.Status = "stale"
		code = http.StatusServiceUnavailable
	}
	jsonResp(w, code, resp)
}

// status returns the full last-tick snapshot.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap, ok := h.board.Current()
	if !ok {
		jsonErr(w, http.StatusServiceUnavailable, "no status yet")
		return
	}
	jsonResp(w, http.StatusOK, BuildStatus(snap, h.now()))
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, map[string]string{"error": msg})
}
