package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
)

// maxHealthyBacklog is the queued-push depth above which the sync path is
// reported as degraded. A backlog this deep means the directory has been
// unreachable for many cycles.
const maxHealthyBacklog = 1024

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker verifies component health.
type HealthChecker struct {
	source  StatsSource
	version string
}

// NewHealthChecker creates a HealthChecker. source may be nil when no engine
// is available (reports "not configured").
func NewHealthChecker(source StatsSource, version string) *HealthChecker {
	return &HealthChecker{source: source, version: version}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.source != nil {
		// GetSyncStats acquires the store lock - if this hangs, we have a problem
		stats := h.source.GetSyncStats()
		checks["store"] = fmt.Sprintf("ok: %d active sessions", stats.ActiveSessions)
		checks["devices"] = fmt.Sprintf("ok: %d tracked", stats.TrackedDevices)

		if stats.PendingPushes > maxHealthyBacklog {
			checks["sync"] = fmt.Sprintf("degraded: %d queued pushes", stats.PendingPushes)
			healthy = false
		} else {
			checks["sync"] = fmt.Sprintf("ok: %d queued pushes", stats.PendingPushes)
		}

		// Pull failures are a warning indicator, not unhealthy on their own,
		// since the engine keeps serving from local state while offline.
		if stats.PullFailures > 0 {
			checks["pull_failures"] = fmt.Sprintf("%d failed pulls", stats.PullFailures)
		}
	} else {
		checks["engine"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable) // 503
		} else {
			w.WriteHeader(http.StatusOK) // 200
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
