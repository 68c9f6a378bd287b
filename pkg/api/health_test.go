package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCluster struct {
	leader bool
	addr   string
}

func (c fakeCluster) IsLeader() bool     { return c.leader }
func (c fakeCluster) LeaderAddr() string { return c.addr }

func newStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	metrics.RegisterComponent(ComponentStore, true, "")
	metrics.RegisterComponent(ComponentRaft, true, "")
	hs := NewHealthServer(newStore(t), nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/live", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
		{http.MethodPut, "/ready", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/live", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nonexistent", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := get(t, hs.Handler(), tt.method, tt.path)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestReady(t *testing.T) {
	t.Cleanup(func() { metrics.SetCriticalComponents(metrics.DefaultCriticalComponents...) })

	closed, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, closed.Close())

	tests := []struct {
		name      string
		store     Viewer
		cluster   Cluster
		critical  []string
		want      int
		component string
		message   string
	}{
		{
			name:     "store without raft",
			store:    newStore(t),
			critical: []string{ComponentStore},
			want:     http.StatusOK,
		},
		{
			name:      "closed store",
			store:     closed,
			critical:  []string{ComponentStore},
			want:      http.StatusServiceUnavailable,
			component: ComponentStore,
			message:   "not ready: ",
		},
		{
			name:      "no store",
			critical:  []string{ComponentStore},
			want:      http.StatusServiceUnavailable,
			component: ComponentStore,
			message:   "not ready: not initialized",
		},
		{
			name:     "raft leader",
			store:    newStore(t),
			cluster:  fakeCluster{leader: true},
			critical: []string{ComponentStore, ComponentRaft},
			want:     http.StatusOK,
		},
		{
			name:     "raft follower",
			store:    newStore(t),
			cluster:  fakeCluster{addr: "10.0.0.1:7946"},
			critical: []string{ComponentStore, ComponentRaft},
			want:     http.StatusOK,
		},
		{
			name:      "no leader",
			store:     newStore(t),
			cluster:   fakeCluster{},
			critical:  []string{ComponentStore, ComponentRaft},
			want:      http.StatusServiceUnavailable,
			component: ComponentRaft,
			message:   "not ready: no leader elected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics.SetCriticalComponents(tt.critical...)
			hs := NewHealthServer(tt.store, tt.cluster)

			w := get(t, hs.Handler(), http.MethodGet, "/ready")
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var status metrics.HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			if tt.want == http.StatusOK {
				assert.Equal(t, metrics.StatusReady, status.Status)
				return
			}
			assert.Equal(t, metrics.StatusNotReady, status.Status)
			assert.Contains(t, status.Components[tt.component], tt.message)
		})
	}
}
