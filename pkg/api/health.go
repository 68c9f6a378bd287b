package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/rs/zerolog"
)

// Components probed on every /ready request
const (
	ComponentStore = "store"
	ComponentRaft  = "raft"
)

// Viewer is the part of the store the readiness probe needs
type Viewer interface {
	View(fn func(storage.Reader) error) error
}

// Cluster reports the raft leadership of the node
type Cluster interface {
	IsLeader() bool
	LeaderAddr() string
}

// HealthServer provides the HTTP health, readiness and metrics endpoints
type HealthServer struct {
	store   Viewer
	cluster Cluster
	mux     *http.ServeMux
	server  *http.Server
	logger  zerolog.Logger
}

// NewHealthServer creates a health server. A nil cluster means the node
// runs without raft.
func NewHealthServer(store Viewer, cluster Cluster) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		store:   store,
		cluster: cluster,
		mux:     mux,
		logger:  log.WithComponent("api"),
	}

	mux.HandleFunc("/health", getOnly(metrics.HealthHandler()))
	mux.HandleFunc("/live", getOnly(metrics.LivenessHandler()))
	mux.HandleFunc("/ready", getOnly(hs.readyHandler))
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start serves on addr until Shutdown is called
func (hs *HealthServer) Start(addr string) error {
	hs.server = &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hs.logger.Info().Str("addr", addr).Msg("Health server listening")
	if err := hs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	if hs.server == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) Handler() http.Handler {
	return hs.mux
}

// readyHandler refreshes the probed components before answering
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	hs.probe()
	metrics.ReadyHandler()(w, r)
}

func (hs *HealthServer) probe() {
	if hs.store == nil {
		metrics.RegisterComponent(ComponentStore, false, "not initialized")
	} else if err := hs.store.View(func(storage.Reader) error { return nil }); err != nil {
		metrics.RegisterComponent(ComponentStore, false, err.Error())
	} else {
		metrics.RegisterComponent(ComponentStore, true, "")
	}

	if hs.cluster == nil {
		return
	}
	switch {
	case hs.cluster.IsLeader():
		metrics.RegisterComponent(ComponentRaft, true, "leader")
	case hs.cluster.LeaderAddr() != "":
		metrics.RegisterComponent(ComponentRaft, true, fmt.Sprintf("follower (leader: %s)", hs.cluster.LeaderAddr()))
	default:
		metrics.RegisterComponent(ComponentRaft, false, "no leader elected")
	}
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}
