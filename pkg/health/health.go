// Package health tracks readiness for the HTTP transport and serves
// the probe endpoints.
package health

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Readiness states.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Checker tracks server readiness. Safe for concurrent use.
type Checker struct {
	state atomic.Int32
}

// NewChecker creates a Checker in the Starting state.
func NewChecker() *Checker {
	return &Checker{}
}

// SetReady marks the server ready to accept traffic.
func (c *Checker) SetReady() { c.state.Store(stateReady) }

// SetDraining marks the server as shutting down.
func (c *Checker) SetDraining() { c.state.Store(stateDraining) }

// IsReady reports whether the server accepts traffic.
func (c *Checker) IsReady() bool { return c.state.Load() == stateReady }

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

type probeResponse struct {
	Status string `json:"status"`
}

// Register attaches /healthz (liveness, always 200) and /readyz
// (readiness, 503 while starting or draining) to mux.
func (c *Checker) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if c.IsReady() {
			writeProbe(w, http.StatusOK, c.State())
			return
		}
		writeProbe(w, http.StatusServiceUnavailable, c.State())
	})
}

func writeProbe(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(probeResponse{Status: status})
}
