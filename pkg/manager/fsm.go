package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/hashicorp/raft"
)

// Command operations
const (
	OpApplyChanges = "apply_changes"
	OpReindex      = "reindex"
)

// ReservationFSM applies committed raft log entries to the reservation store
type ReservationFSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewReservationFSM creates a new FSM instance
func NewReservationFSM(store storage.Store) *ReservationFSM {
	return &ReservationFSM{
		store: store,
	}
}

// Command represents a state change operation in the Raft log
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Apply applies a Raft log entry to the FSM
// This is called by Raft when a log entry is committed
func (f *ReservationFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case OpApplyChanges:
		var changes storage.ChangeSet
		if err := json.Unmarshal(cmd.Data, &changes); err != nil {
			return err
		}
		return f.store.ApplyChanges(&changes)

	case OpReindex:
		return f.store.Reindex()

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot creates a point-in-time snapshot of the FSM
func (f *ReservationFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snapshot := &ReservationSnapshot{}
	err := f.store.View(func(reader storage.Reader) error {
		var err error
		if snapshot.Resources, err = reader.ListResources(); err != nil {
			return fmt.Errorf("failed to list resources: %w", err)
		}
		if snapshot.Requests, err = reader.ListRequests(); err != nil {
			return fmt.Errorf("failed to list requests: %w", err)
		}
		if snapshot.Allocations, err = reader.ListAllocations(); err != nil {
			return fmt.Errorf("failed to list allocations: %w", err)
		}
		if snapshot.Reservations, err = reader.ListReservations(); err != nil {
			return fmt.Errorf("failed to list reservations: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Restore replaces the store contents with a snapshot. It runs when a
// node restarts or catches up with the leader.
func (f *ReservationFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot ReservationSnapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	changes := &storage.ChangeSet{
		PutResources:    snapshot.Resources,
		PutRequests:     snapshot.Requests,
		PutAllocations:  snapshot.Allocations,
		PutReservations: snapshot.Reservations,
	}
	err := f.store.View(func(reader storage.Reader) error {
		resources, err := reader.ListResources()
		if err != nil {
			return err
		}
		for _, r := range resources {
			changes.DeleteResources = append(changes.DeleteResources, r.ID)
		}
		requests, err := reader.ListRequests()
		if err != nil {
			return err
		}
		for _, r := range requests {
			changes.DeleteRequests = append(changes.DeleteRequests, r.ID)
		}
		allocations, err := reader.ListAllocations()
		if err != nil {
			return err
		}
		for _, a := range allocations {
			changes.DeleteAllocations = append(changes.DeleteAllocations, a.ID)
		}
		reservations, err := reader.ListReservations()
		if err != nil {
			return err
		}
		for _, r := range reservations {
			changes.DeleteReservations = append(changes.DeleteReservations, r.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read current state: %w", err)
	}
	if err := f.store.ApplyChanges(changes); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	return nil
}

// ReservationSnapshot is a point-in-time copy of the whole store
type ReservationSnapshot struct {
	Resources    []*types.Resource
	Requests     []*request.ReservationRequest
	Allocations  []*types.Allocation
	Reservations []*types.Reservation
}

// Persist writes the snapshot to the given SnapshotSink
func (s *ReservationSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}

	return err
}

// Release releases the snapshot resources
func (s *ReservationSnapshot) Release() {}
