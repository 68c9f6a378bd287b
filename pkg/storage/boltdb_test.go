package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

var base = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func slot(fromHour, toHour int) types.Interval {
	return types.NewInterval(base.Add(time.Duration(fromHour)*time.Hour), base.Add(time.Duration(toHour)*time.Hour))
}

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestApplyChangesAndRead(t *testing.T) {
	store := newTestStore(t)

	changes := &ChangeSet{
		PutResources: []*types.Resource{
			{ID: "mcu-2", Name: "second", Allocatable: true, CreatedAt: base.Add(time.Minute)},
			{ID: "mcu-1", Name: "first", Allocatable: true, CreatedAt: base},
		},
		PutRequests: []*request.ReservationRequest{{
			ID:            "req-1",
			Kind:          request.KindSingle,
			State:         request.StateActive,
			Slot:          slot(1, 2),
			Specification: specification.NewResource("mcu-1"),
		}},
		PutAllocations: []*types.Allocation{{ID: "alloc-1", RequestID: "req-1", State: types.AllocationActive}},
	}
	require.NoError(t, store.ApplyChanges(changes))
	assert.Equal(t, uint64(1), store.Revision())

	resources, err := store.ListResources()
	require.NoError(t, err)
	require.Len(t, resources, 2)
	assert.Equal(t, "mcu-1", resources[0].ID, "resources are listed in declaration order")

	req, err := store.GetRequest("req-1")
	require.NoError(t, err)
	assert.Equal(t, specification.KindResource, req.Specification.Kind)
	assert.True(t, req.Slot.Equal(slot(1, 2)))

	_, err = store.GetAllocation("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "allocation not found: missing")
}

func TestEmptyChangeSetKeepsRevision(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.ApplyChanges(&ChangeSet{}))
	assert.Equal(t, uint64(0), store.Revision())
}

func TestListOverlapping(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.ApplyChanges(&ChangeSet{PutReservations: []*types.Reservation{
		{ID: "r1", Kind: types.ReservationKindRoom, TargetID: "mcu", Slot: slot(0, 2)},
		{ID: "r2", Kind: types.ReservationKindRoom, TargetID: "mcu", Slot: slot(2, 4)},
		{ID: "r3", Kind: types.ReservationKindRoom, TargetID: "mcu", Slot: slot(5, 6)},
		{ID: "r4", Kind: types.ReservationKindRoom, TargetID: "mcu-other", Slot: slot(1, 3)},
		{ID: "r5", Kind: types.ReservationKindCompound, Slot: slot(1, 3)},
	}}))

	tests := []struct {
		name   string
		target string
		slot   types.Interval
		want   []string
	}{
		{"touching boundaries do not overlap", "mcu", slot(2, 4), []string{"r2"}},
		{"spanning", "mcu", slot(1, 6), []string{"r1", "r2", "r3"}},
		{"gap", "mcu", slot(4, 5), nil},
		{"other target", "mcu-other", slot(0, 10), []string{"r4"}},
		{"prefix of another target", "mc", slot(0, 10), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := store.ListOverlapping(tt.target, tt.slot)
			require.NoError(t, err)
			var ids []string
			for _, r := range found {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestPutReservationMovesIndexEntry(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.ApplyChanges(&ChangeSet{PutReservations: []*types.Reservation{
		{ID: "r1", Kind: types.ReservationKindResource, TargetID: "room-a", Slot: slot(0, 2)},
	}}))
	require.NoError(t, store.ApplyChanges(&ChangeSet{PutReservations: []*types.Reservation{
		{ID: "r1", Kind: types.ReservationKindResource, TargetID: "room-a", Slot: slot(0, 1)},
	}}))

	found, err := store.ListOverlapping("room-a", slot(1, 2))
	require.NoError(t, err)
	assert.Empty(t, found)

	require.NoError(t, store.ApplyChanges(&ChangeSet{DeleteReservations: []string{"r1"}}))
	found, err = store.ListOverlapping("room-a", slot(0, 2))
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, uint64(3), store.Revision())
}

func TestReindex(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.ApplyChanges(&ChangeSet{PutReservations: []*types.Reservation{
		{ID: "r1", Kind: types.ReservationKindResource, TargetID: "room-a", Slot: slot(0, 2)},
	}}))

	require.NoError(t, store.Reindex())

	found, err := store.ListOverlapping("room-a", slot(1, 3))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "r1", found[0].ID)
}

func TestCheckIndex(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.ApplyChanges(&ChangeSet{PutReservations: []*types.Reservation{
		{ID: "r1", Kind: types.ReservationKindResource, TargetID: "room-a", Slot: slot(0, 2)},
		{ID: "r2", Kind: types.ReservationKindResource, TargetID: "room-b", Slot: slot(1, 2)},
		{ID: "c1", Kind: types.ReservationKindCompound, Slot: slot(0, 2)},
	}}))

	report, err := store.CheckIndex()
	require.NoError(t, err)
	assert.Equal(t, IndexReport{Reservations: 2, Indexed: 2}, report)
	assert.True(t, report.Consistent())

	// Drop one entry and plant one for a reservation that does not exist
	require.NoError(t, store.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketReservationIndex)
		if err := index.Delete(indexKey(&types.Reservation{ID: "r1", TargetID: "room-a", Slot: slot(0, 2)})); err != nil {
			return err
		}
		return index.Put(indexKey(&types.Reservation{ID: "gone", TargetID: "room-a", Slot: slot(3, 4)}), nil)
	}))

	report, err = store.CheckIndex()
	require.NoError(t, err)
	assert.Equal(t, IndexReport{Reservations: 2, Indexed: 1, Missing: 1, Stale: 1}, report)
	assert.False(t, report.Consistent())

	require.NoError(t, store.Reindex())
	report, err = store.CheckIndex()
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestBackup(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.ApplyChanges(&ChangeSet{PutResources: []*types.Resource{{ID: "mcu", Name: "MCU"}}}))

	dir := t.TempDir()
	require.NoError(t, store.Backup(filepath.Join(dir, "burrow.db")))

	restored, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer restored.Close()

	resource, err := restored.GetResource("mcu")
	require.NoError(t, err)
	assert.Equal(t, "MCU", resource.Name)
	assert.Equal(t, store.Revision(), restored.Revision())
}

func TestReuseAndChildLookups(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.ApplyChanges(&ChangeSet{
		PutRequests: []*request.ReservationRequest{
			{ID: "c1", State: request.StateActive, ParentAllocationID: "set-alloc"},
			{ID: "c2", State: request.StateDeleted, ParentAllocationID: "set-alloc"},
			{ID: "other", State: request.StateActive},
		},
		PutReservations: []*types.Reservation{
			{ID: "room", Kind: types.ReservationKindRoom, AllocationID: "a1", TargetID: "mcu", Slot: slot(0, 4)},
			{ID: "reuse", Kind: types.ReservationKindExisting, AllocationID: "a2", Slot: slot(1, 2),
				Existing: &types.ExistingReservation{ReservationID: "room", AllocationID: "a1"}},
		},
	}))

	children, err := store.ListChildRequests("set-alloc")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "c1", children[0].ID)

	reused, err := store.IsAllocationReused("a1")
	require.NoError(t, err)
	assert.True(t, reused)

	reused, err = store.IsAllocationReused("a2")
	require.NoError(t, err)
	assert.False(t, reused)

	byAllocation, err := store.ListReservationsByAllocation("a2")
	require.NoError(t, err)
	require.Len(t, byAllocation, 1)
	assert.Equal(t, "reuse", byAllocation[0].ID)
}

func TestStoreReopenKeepsRevision(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.ApplyChanges(&ChangeSet{DeleteRequests: []string{"none"}}))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint64(1), reopened.Revision())
}

func TestChangeSetMerge(t *testing.T) {
	first := &ChangeSet{}
	first.PutRequest(&request.ReservationRequest{ID: "r1", Priority: 1})
	second := &ChangeSet{DeleteReservations: []string{"x"}}
	second.PutRequest(&request.ReservationRequest{ID: "r1", Priority: 2})
	second.PutAllocation(&types.Allocation{ID: "a1"})

	first.Merge(second)

	require.Len(t, first.PutRequests, 1)
	assert.Equal(t, 2, first.PutRequests[0].Priority)
	assert.Len(t, first.PutAllocations, 1)
	assert.Equal(t, []string{"x"}, first.DeleteReservations)
	assert.False(t, first.IsEmpty())
	assert.True(t, (&ChangeSet{}).IsEmpty())
}
