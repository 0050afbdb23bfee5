// Package health provides the liveness and readiness probes for vadgate.
//
// Two endpoints are exposed:
//
//   - /healthz — liveness; a process that can serve HTTP is alive.
//   - /readyz  — readiness; 200 only when every registered [Check] passes.
//     A vadgate deployment typically registers a frame-flow check (the
//     pipeline processed a frame recently) and a backend check (at least
//     one VAD backend breaker is not open).
//
// Responses are JSON with a top-level "status" and a per-check map carrying
// each check's outcome and evaluation time.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check. Checks probe in-process
// state, so this is generous.
const checkTimeout = 2 * time.Second

// Check is a named readiness probe. Probe returns nil when the dependency
// is healthy; it must respect context cancellation.
type Check struct {
	// Name keys the check's entry in the JSON response.
	Name string

	// Probe evaluates the dependency.
	Probe func(ctx context.Context) error
}

// checkResult is one check's entry in the readiness response.
type checkResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed"`
}

// response is the JSON body for both endpoints.
type response struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves the health endpoints. The check list is fixed at
// construction; Handler is safe for concurrent use.
type Handler struct {
	checks []Check
}

// New creates a [Handler] evaluating the given checks, in order, on each
// /readyz request.
func New(checks ...Check) *Handler {
	c := make([]Check, len(checks))
	copy(c, checks)
	return &Handler{checks: c}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz returns 200 only when every check passes, 503 otherwise. Each
// check runs under a [checkTimeout] deadline derived from the request
// context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := response{
		Status: "ok",
		Checks: make(map[string]checkResult, len(h.checks)),
	}
	status := http.StatusOK

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		start := time.Now()
		err := c.Probe(ctx)
		elapsed := time.Since(start)
		cancel()

		cr := checkResult{Status: "ok", Elapsed: elapsed.String()}
		if err != nil {
			cr.Status = "fail"
			cr.Error = err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		}
		res.Checks[c.Name] = cr
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
