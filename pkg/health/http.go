package health

import (
	"encoding/json"
	"net/http"
)

// Response is the JSON body of both probe endpoints.
type Response struct {
	Status  string                 `json:"status"` // "healthy" | "unhealthy"
	Checks  map[string]CheckStatus `json:"checks,omitempty"`
	Message string                 `json:"message,omitempty"`
}

type CheckStatus struct {
	Status  string `json:"status"` // "ok" | "error"
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Handler serves probe: 200 when healthy, 503 otherwise.
func (c *Checker) Handler(probe Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context(), probe)

		resp := Response{Status: "healthy", Checks: make(map[string]CheckStatus, len(report.Results))}
		code := http.StatusOK
		if err := report.Err(); err != nil {
			resp.Status, resp.Message = "unhealthy", err.Error()
			code = http.StatusServiceUnavailable
		}
		for _, res := range report.Results {
			st := CheckStatus{Status: "ok", Latency: res.Latency.String()}
			if !res.Healthy {
				st.Status, st.Error = "error", res.Error
			}
			resp.Checks[res.Name] = st
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
