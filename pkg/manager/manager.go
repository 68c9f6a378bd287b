package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// DefaultApplyTimeout bounds how long a change set waits for a quorum
const DefaultApplyTimeout = 5 * time.Second

// Manager replicates committed change sets to every node through raft.
// It satisfies storage.Applier, so the scheduler writes through it
// unchanged; reads keep going to the local store.
type Manager struct {
	nodeID       string
	bindAddr     string
	dataDir      string
	applyTimeout time.Duration

	raft   *raft.Raft
	fsm    *ReservationFSM
	store  storage.Store
	closer []func() error
	logger zerolog.Logger
}

// Config holds configuration for creating a Manager
type Config struct {
	NodeID       string
	BindAddr     string
	DataDir      string
	ApplyTimeout time.Duration
}

// NewManager creates a manager replicating into store. Raft state lives
// in DataDir next to the store.
func NewManager(cfg *Config, store storage.Store) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	timeout := cfg.ApplyTimeout
	if timeout <= 0 {
		timeout = DefaultApplyTimeout
	}
	return &Manager{
		nodeID:       cfg.NodeID,
		bindAddr:     cfg.BindAddr,
		dataDir:      cfg.DataDir,
		applyTimeout: timeout,
		fsm:          NewReservationFSM(store),
		store:        store,
		logger:       log.WithComponent("manager"),
	}, nil
}

// Bootstrap starts raft and initializes a new single-node cluster
func (m *Manager) Bootstrap() error {
	transport, err := m.start()
	if err != nil {
		return err
	}

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      raft.ServerID(m.nodeID),
				Address: transport.LocalAddr(),
			},
		},
	}
	err = m.raft.BootstrapCluster(configuration).Error()
	if errors.Is(err, raft.ErrCantBootstrap) {
		m.logger.Info().Str("node_id", m.nodeID).Msg("Cluster already bootstrapped, resuming")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %w", err)
	}
	m.logger.Info().Str("node_id", m.nodeID).Str("addr", string(transport.LocalAddr())).Msg("Bootstrapped cluster")
	return nil
}

// Start starts raft without bootstrapping. The node waits until a leader
// adds it with AddVoter.
func (m *Manager) Start() error {
	transport, err := m.start()
	if err != nil {
		return err
	}
	m.logger.Info().Str("node_id", m.nodeID).Str("addr", string(transport.LocalAddr())).Msg("Waiting to join cluster")
	return nil
}

func (m *Manager) start() (raft.Transport, error) {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)

	// Faster failover on LAN deployments
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bind address: %w", err)
	}
	var advertise net.Addr = addr
	if addr.Port == 0 {
		advertise = nil
	}
	transport, err := raft.NewTCPTransport(m.bindAddr, advertise, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	m.closer = append(m.closer, transport.Close)

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log store: %w", err)
	}
	m.closer = append(m.closer, logStore.Close)

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create stable store: %w", err)
	}
	m.closer = append(m.closer, stableStore.Close)

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft: %w", err)
	}
	m.raft = r
	return transport, nil
}

// WaitForLeader blocks until the cluster has a leader or timeout expires
func (m *Manager) WaitForLeader(timeout time.Duration) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if addr, _ := m.raft.LeaderWithID(); addr != "" {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("no leader elected within %s", timeout)
}

// AddVoter adds a new manager node to the Raft cluster
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}

	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter: %w", err)
	}
	m.logger.Info().Str("node_id", nodeID).Str("addr", address).Msg("Added voter")
	return nil
}

// RemoveServer removes a server from the Raft cluster
func (m *Manager) RemoveServer(nodeID string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}

	future := m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to remove server: %w", err)
	}
	return nil
}

// GetClusterServers returns information about all servers in the Raft cluster
func (m *Manager) GetClusterServers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}

	future := m.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader returns true if this manager is the Raft leader
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	addr, _ := m.raft.LeaderWithID()
	return string(addr)
}

// GetRaftStats returns Raft statistics
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}

	stats := make(map[string]interface{})
	stats["state"] = m.raft.State().String()
	stats["last_log_index"] = m.raft.LastIndex()
	stats["applied_index"] = m.raft.AppliedIndex()
	stats["leader"] = m.LeaderAddr()
	return stats
}

// Apply submits a command to the Raft cluster and waits until it is
// applied locally
func (m *Manager) Apply(cmd Command) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	future := m.raft.Apply(data, m.applyTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to apply command: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// ApplyChanges replicates a change set; it implements storage.Applier
func (m *Manager) ApplyChanges(changes *storage.ChangeSet) error {
	if changes.IsEmpty() {
		return nil
	}
	data, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to marshal change set: %w", err)
	}
	return m.Apply(Command{Op: OpApplyChanges, Data: data})
}

// Reindex rebuilds the reservation index on every node
func (m *Manager) Reindex() error {
	return m.Apply(Command{Op: OpReindex})
}

// Shutdown stops raft and releases its stores. The reservation store is
// owned by the caller.
func (m *Manager) Shutdown() error {
	var err error
	if m.raft != nil {
		if shutdownErr := m.raft.Shutdown().Error(); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to shutdown raft: %w", shutdownErr))
		}
	}
	for i := len(m.closer) - 1; i >= 0; i-- {
		err = multierr.Append(err, m.closer[i]())
	}
	m.closer = nil
	return err
}
