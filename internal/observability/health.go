package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HealthChecker tracks liveness and per-dependency readiness. The service is
// ready once every registered component (NATS, Postgres, ...) has reported
// healthy.
type HealthChecker struct {
	ready     atomic.Bool
	startTime time.Time

	mu         sync.Mutex
	components map[string]bool
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime:  time.Now(),
		components: make(map[string]bool),
	}
}

// SetComponent records one dependency's health and recomputes readiness.
func (h *HealthChecker) SetComponent(name string, healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = healthy

	ready := true
	for _, ok := range h.components {
		if !ok {
			ready = false
			break
		}
	}
	h.ready.Store(ready)
}

// SetReady overrides readiness as a whole, for services without registered
// components.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// LivenessHandler answers 200 whenever the process runs.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler answers 200 only when every component is healthy.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	components := make(map[string]bool, len(h.components))
	for k, v := range h.components {
		components[k] = v
	}
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	code := http.StatusOK
	if !h.ready.Load() {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"components": components,
	})
}
