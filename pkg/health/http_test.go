package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	c := New()
	c.Register(Liveness, "process", func(context.Context) error { return nil })
	c.Register(Readiness, "storage", func(context.Context) error { return errDown })

	tests := []struct {
		name   string
		probe  Probe
		code   int
		status string
		check  string
		state  string
	}{
		{name: "live", probe: Liveness, code: http.StatusOK, status: "healthy", check: "process", state: "ok"},
		{name: "not ready", probe: Readiness, code: http.StatusServiceUnavailable, status: "unhealthy", check: "storage", state: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c.Handler(tt.probe)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var resp Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.state, resp.Checks[tt.check].Status)
		})
	}
}
