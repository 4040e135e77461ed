package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker tracks liveness and per-subsystem readiness for the /healthz
// and /readyz probes. The service is ready once every registered subsystem
// (database, event queue, state recovery) has reported ready.
type HealthChecker struct {
	mu        sync.RWMutex
	subsys    map[string]bool
	startTime time.Time
}

// NewHealthChecker creates a checker with no subsystems registered.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		subsys:    make(map[string]bool),
		startTime: time.Now(),
	}
}

// SetReady records one subsystem's readiness.
func (h *HealthChecker) SetReady(name string, ready bool) {
	h.mu.Lock()
	h.subsys[name] = ready
	h.mu.Unlock()
}

// IsReady reports whether every registered subsystem is ready. A checker with
// no subsystems is not ready.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.subsys) == 0 {
		return false
	}
	for _, ok := range h.subsys {
		if !ok {
			return false
		}
	}
	return true
}

// LivenessHandler returns HTTP 200 whenever the process is running.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 once all subsystems are ready, 503 with
// the per-subsystem states otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.IsReady() {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ready",
		})
		return
	}
	h.mu.RLock()
	states := make(map[string]bool, len(h.subsys))
	for k, v := range h.subsys {
		states[k] = v
	}
	h.mu.RUnlock()
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "not_ready",
		"subsystems": states,
	})
}
