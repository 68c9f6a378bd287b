package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(t *testing.T) {
	t.Helper()
	healthChecker = NewHealthChecker()
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		want       string
	}{
		{"no components", nil, StatusHealthy},
		{"all healthy", map[string]bool{"store": true, "scheduler": true}, StatusHealthy},
		{"one unhealthy", map[string]bool{"store": true, "raft": false}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			for name, healthy := range tt.components {
				RegisterComponent(name, healthy, "reason")
			}
			health := GetHealth()
			assert.Equal(t, tt.want, health.Status)
			assert.Len(t, health.Components, len(tt.components))
		})
	}
}

func TestGetHealthReportsMessage(t *testing.T) {
	resetHealth(t)
	SetVersion("1.0.0")
	RegisterComponent("raft", false, "not connected")

	health := GetHealth()
	assert.Equal(t, "unhealthy: not connected", health.Components["raft"])
	assert.Equal(t, "1.0.0", health.Version)
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name       string
		critical   []string
		components map[string]bool
		want       string
		message    string
	}{
		{"all critical ready", nil, map[string]bool{"store": true, "scheduler": true}, StatusReady, ""},
		{"missing scheduler", nil, map[string]bool{"store": true}, StatusNotReady, "waiting for scheduler"},
		{"unhealthy store", nil, map[string]bool{"store": false, "scheduler": true}, StatusNotReady, "waiting for store"},
		{"raft required", []string{"store", "raft"}, map[string]bool{"store": true}, StatusNotReady, "waiting for raft"},
		{"extra components ignored", nil, map[string]bool{"store": true, "scheduler": true, "api": false}, StatusReady, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			if tt.critical != nil {
				SetCriticalComponents(tt.critical...)
			}
			for name, healthy := range tt.components {
				RegisterComponent(name, healthy, "")
			}
			readiness := GetReadiness()
			assert.Equal(t, tt.want, readiness.Status)
			assert.Equal(t, tt.message, readiness.Message)
		})
	}
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		healthy bool
		code    int
		status  string
	}{
		{"health ok", HealthHandler(), true, http.StatusOK, StatusHealthy},
		{"health failing", HealthHandler(), false, http.StatusServiceUnavailable, StatusUnhealthy},
		{"ready ok", ReadyHandler(), true, http.StatusOK, StatusReady},
		{"ready failing", ReadyHandler(), false, http.StatusServiceUnavailable, StatusNotReady},
		{"live", LivenessHandler(), false, http.StatusOK, "alive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			RegisterComponent("store", tt.healthy, "broken")
			RegisterComponent("scheduler", true, "")

			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.status, body["status"])
		})
	}
}
