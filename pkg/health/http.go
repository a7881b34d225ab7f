package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// HealthResponse is the JSON body served by the probe endpoints.
type HealthResponse struct {
	Status  string                 `json:"status"` // healthy or unhealthy
	Checks  map[string]CheckStatus `json:"checks,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// CheckStatus is one check's entry in a HealthResponse.
type CheckStatus struct {
	Status  string `json:"status"` // ok or error
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// LivenessHandler serves the liveness probe: 200 while the process is
// working, 503 when it should be restarted.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return h.probeHandler(h.CheckLiveness)
}

// ReadinessHandler serves the readiness probe: 200 while every dependency
// is reachable, 503 otherwise.
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return h.probeHandler(h.CheckReadiness)
}

func (h *HealthChecker) probeHandler(probe func(context.Context) (*HealthStatus, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := probe(r.Context())
		h.writeHealthResponse(w, status, err)
	}
}

// Summarize maps each check result to its JSON form.
func Summarize(status *HealthStatus) map[string]CheckStatus {
	checks := make(map[string]CheckStatus, len(status.Checks))
	for _, r := range status.Checks {
		cs := CheckStatus{Status: "ok", Latency: r.Latency.String()}
		if !r.Healthy {
			cs.Status = "error"
			cs.Error = r.Error
		}
		checks[r.Name] = cs
	}
	return checks
}

func (h *HealthChecker) writeHealthResponse(w http.ResponseWriter, status *HealthStatus, err error) {
	response := HealthResponse{
		Status: "healthy",
		Checks: Summarize(status),
	}
	code := http.StatusOK
	if !status.Healthy {
		response.Status = "unhealthy"
		code = http.StatusServiceUnavailable
		if err != nil {
			response.Message = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", logger.ErrorField(err))
	}
}
