package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/manager"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

const componentScheduler = "scheduler"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a burrow node",
	Long: `Run a burrow node: the scheduler loop allocating pending requests,
the metrics collector and the health server.

With raft enabled every committed change is replicated to the other
nodes and only the leader schedules.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("health-addr", "", "Address for the health and metrics endpoints")
	serveCmd.Flags().Bool("raft", false, "Replicate state through raft")
	serveCmd.Flags().String("node-id", "", "Unique raft node ID")
	serveCmd.Flags().String("bind-addr", "", "Address for raft communication")
	serveCmd.Flags().Bool("bootstrap", true, "Bootstrap a new cluster when no raft state exists")
}

// applyServeFlags copies the serve flags that were set into c
func applyServeFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Lookup("health-addr") == nil {
		return
	}
	if flags.Changed("health-addr") {
		c.HealthAddr, _ = flags.GetString("health-addr")
	}
	if flags.Changed("raft") {
		c.Raft.Enabled, _ = flags.GetBool("raft")
	}
	if flags.Changed("node-id") {
		c.Raft.NodeID, _ = flags.GetString("node-id")
	}
	if flags.Changed("bind-addr") {
		c.Raft.BindAddr, _ = flags.GetString("bind-addr")
	}
	if flags.Changed("bootstrap") {
		c.Raft.Bootstrap, _ = flags.GetBool("bootstrap")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("serve")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	metrics.RegisterComponent(api.ComponentStore, true, "")

	broker := events.NewBroker()
	broker.Start()
	stopAudit := broker.Audit(log.WithComponent("audit"))

	opts := []scheduler.Option{
		scheduler.WithPublisher(broker),
		scheduler.WithInterval(cfg.Scheduler.Interval, cfg.Scheduler.WorkingPeriod),
	}

	var mgr *manager.Manager
	var cluster api.Cluster
	var raftStats metrics.RaftStats
	if cfg.Raft.Enabled {
		mgr, err = startManager(store)
		if err != nil {
			stopAudit()
			broker.Stop()
			return multierr.Append(err, store.Close())
		}
		cluster, raftStats = mgr, mgr
		opts = append(opts, scheduler.WithApplier(mgr), scheduler.WithLeaderCheck(mgr.IsLeader))
		metrics.SetCriticalComponents(api.ComponentStore, componentScheduler, api.ComponentRaft)
	}

	sched := scheduler.NewScheduler(store, opts...)
	sched.Start()
	metrics.RegisterComponent(componentScheduler, true, "")
	fmt.Println("✓ Scheduler started")

	collector := metrics.NewCollector(store, raftStats)
	collector.Start()

	healthServer := api.NewHealthServer(store, cluster)
	errCh := make(chan error, 1)
	go func() {
		if err := healthServer.Start(cfg.HealthAddr); err != nil {
			errCh <- fmt.Errorf("health server error: %w", err)
		}
	}()

	fmt.Printf("✓ Health endpoints on http://%s\n", cfg.HealthAddr)
	fmt.Println()
	fmt.Println("Node is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Stopping after server failure")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics.RegisterComponent(componentScheduler, false, "shutting down")
	sched.Stop()
	collector.Stop()
	stopAudit()
	broker.Stop()
	err = multierr.Combine(runErr, healthServer.Shutdown(ctx))
	if mgr != nil {
		err = multierr.Append(err, mgr.Shutdown())
	}
	err = multierr.Append(err, store.Close())
	if err != nil {
		return err
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}

func startManager(store storage.Store) (*manager.Manager, error) {
	mgr, err := manager.NewManager(&manager.Config{
		NodeID:       cfg.Raft.NodeID,
		BindAddr:     cfg.Raft.BindAddr,
		DataDir:      filepath.Join(cfg.DataDir, "raft"),
		ApplyTimeout: cfg.Raft.ApplyTimeout,
	}, store)
	if err != nil {
		return nil, fmt.Errorf("failed to create manager: %w", err)
	}

	if !cfg.Raft.Bootstrap {
		if err := mgr.Start(); err != nil {
			return nil, fmt.Errorf("failed to start raft: %w", err)
		}
		fmt.Printf("✓ Raft started on %s, waiting to be added to a cluster\n", cfg.Raft.BindAddr)
		return mgr, nil
	}

	if err := mgr.Bootstrap(); err != nil {
		return nil, multierr.Append(err, mgr.Shutdown())
	}
	if err := mgr.WaitForLeader(10 * time.Second); err != nil {
		return nil, multierr.Append(err, mgr.Shutdown())
	}
	fmt.Printf("✓ Raft cluster ready (node %s, %s)\n", cfg.Raft.NodeID, cfg.Raft.BindAddr)
	return mgr, nil
}
