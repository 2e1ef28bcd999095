package http

import (
	"maps"
	"net/http"
	"slices"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func() bool

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health. Any failing check turns the response into a 503.
func Health(checks map[string]HealthCheck) http.HandlerFunc {
	names := slices.Sorted(maps.Keys(checks))
	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{Status: "ok", Checks: make(map[string]string, len(names))}
		code := http.StatusOK
		for _, name := range names {
			if checks[name]() {
				status.Checks[name] = "ok"
				continue
			}
			status.Checks[name] = "unavailable"
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}
