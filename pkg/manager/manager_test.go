package manager

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func command(t *testing.T, op string, v interface{}) *raft.Log {
	t.Helper()
	cmd := Command{Op: op}
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		cmd.Data = data
	}
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	return &raft.Log{Data: data}
}

type sink struct {
	bytes.Buffer
	cancelled bool
}

func (s *sink) ID() string    { return "test" }
func (s *sink) Cancel() error { s.cancelled = true; return nil }
func (s *sink) Close() error  { return nil }

func TestFSMApply(t *testing.T) {
	store := newStore(t)
	fsm := NewReservationFSM(store)

	tests := []struct {
		name    string
		log     *raft.Log
		wantErr bool
	}{
		{
			name: "apply changes",
			log: command(t, OpApplyChanges, &storage.ChangeSet{
				PutResources: []*types.Resource{{ID: "codec", Allocatable: true}},
			}),
		},
		{name: "reindex", log: command(t, OpReindex, nil)},
		{name: "unknown op", log: command(t, "drop_everything", nil), wantErr: true},
		{name: "garbage", log: &raft.Log{Data: []byte("{")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := fsm.Apply(tt.log)
			if tt.wantErr {
				assert.Error(t, resp.(error))
				return
			}
			assert.Nil(t, resp)
		})
	}

	resource, err := store.GetResource("codec")
	require.NoError(t, err)
	assert.True(t, resource.Allocatable)
}

func TestFSMSnapshotRestore(t *testing.T) {
	source := newStore(t)
	require.NoError(t, source.ApplyChanges(&storage.ChangeSet{
		PutResources:   []*types.Resource{{ID: "codec", Allocatable: true}},
		PutAllocations: []*types.Allocation{{ID: "a", RequestID: "req-1", State: types.AllocationActive}},
		PutReservations: []*types.Reservation{{
			ID:           "r",
			Kind:         types.ReservationKindResource,
			TargetID:     "codec",
			AllocationID: "a",
			Slot:         types.NewInterval(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC), time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC)),
		}},
	}))

	snapshot, err := NewReservationFSM(source).Snapshot()
	require.NoError(t, err)
	out := &sink{}
	require.NoError(t, snapshot.Persist(out))
	assert.False(t, out.cancelled)

	target := newStore(t)
	require.NoError(t, target.ApplyChanges(&storage.ChangeSet{
		PutResources: []*types.Resource{{ID: "stale"}},
	}))
	require.NoError(t, NewReservationFSM(target).Restore(io.NopCloser(&out.Buffer)))

	resources, err := target.ListResources()
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "codec", resources[0].ID)

	overlapping, err := target.ListOverlapping("codec", types.NewInterval(
		time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.Len(t, overlapping, 1)
	assert.Equal(t, "r", overlapping[0].ID)

	allocation, err := target.GetAllocation("a")
	require.NoError(t, err)
	assert.Equal(t, "req-1", allocation.RequestID)
}

func TestManagerReplicatesChanges(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a raft node")
	}
	store := newStore(t)
	m, err := NewManager(&Config{NodeID: "node-1", BindAddr: "127.0.0.1:0", DataDir: t.TempDir()}, store)
	require.NoError(t, err)
	defer m.Shutdown()

	require.NoError(t, m.Bootstrap())
	require.NoError(t, m.WaitForLeader(10*time.Second))
	require.Eventually(t, m.IsLeader, 10*time.Second, 50*time.Millisecond)

	require.NoError(t, m.ApplyChanges(&storage.ChangeSet{
		PutResources: []*types.Resource{{ID: "codec", Allocatable: true}},
	}))
	_, err = store.GetResource("codec")
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), store.Revision())

	require.NoError(t, m.ApplyChanges(&storage.ChangeSet{}), "empty change sets are not replicated")
	assert.Equal(t, uint64(1), store.Revision())

	stats := m.GetRaftStats()
	assert.Equal(t, "Leader", stats["state"])

	servers, err := m.GetClusterServers()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, raft.ServerID("node-1"), servers[0].ID)
}
