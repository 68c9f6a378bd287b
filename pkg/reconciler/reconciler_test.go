package reconciler

import (
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

func at(hour int) time.Time {
	return day.Add(time.Duration(hour) * time.Hour)
}

func reservation(id, allocationID string, from, to int) *types.Reservation {
	return &types.Reservation{
		ID:           id,
		Kind:         types.ReservationKindResource,
		TargetID:     "codec",
		AllocationID: allocationID,
		Slot:         types.NewInterval(at(from), at(to)),
	}
}

func newStore(t *testing.T, changes *storage.ChangeSet) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.ApplyChanges(changes))
	return store
}

func TestTruncate(t *testing.T) {
	past := reservation("past", "a", 6, 8)
	running := reservation("running", "a", 9, 12)
	future := reservation("future", "a", 11, 12)
	parent := reservation("parent", "a", 9, 12)
	parent.ChildIDs = []string{"child-running", "child-future"}
	childRunning := reservation("child-running", "a", 9, 12)
	childRunning.ParentID = "parent"
	childFuture := reservation("child-future", "a", 10, 12)
	childFuture.ParentID = "parent"

	changes, count := Truncate([]*types.Reservation{past, running, future, parent, childRunning, childFuture}, at(10), at(10))

	assert.ElementsMatch(t, []string{"future", "child-future"}, changes.DeleteReservations)
	assert.Equal(t, 5, count)

	updated := make(map[string]*types.Reservation)
	for _, r := range changes.PutReservations {
		updated[r.ID] = r
	}
	assert.NotContains(t, updated, "past")
	require.Contains(t, updated, "running")
	assert.True(t, updated["running"].Slot.End.Equal(at(10)))
	require.Contains(t, updated, "parent")
	assert.Equal(t, []string{"child-running"}, updated["parent"].ChildIDs)

	// Inputs are not modified
	assert.True(t, running.Slot.End.Equal(at(12)))
	assert.Len(t, parent.ChildIDs, 2)
}

func TestTruncateSeparateBounds(t *testing.T) {
	previous := []*types.Reservation{
		reservation("running", "a", 9, 12),
		reservation("upcoming", "a", 11, 13),
	}

	// A new reservation starting at 11 replaces the running one from there
	changes, count := Truncate(previous, at(10), at(11))
	assert.Equal(t, []string{"upcoming"}, changes.DeleteReservations)
	require.Len(t, changes.PutReservations, 1)
	assert.True(t, changes.PutReservations[0].Slot.End.Equal(at(11)))
	assert.Equal(t, 2, count)

	changes, count = Truncate(previous, at(8), at(8))
	assert.ElementsMatch(t, []string{"running", "upcoming"}, changes.DeleteReservations)
	assert.Empty(t, changes.PutReservations)
	assert.Equal(t, 2, count)
}

func TestRelease(t *testing.T) {
	allocation := &types.Allocation{
		ID:                   "a",
		RequestID:            "req-1",
		State:                types.AllocationActive,
		ReservationIDs:       []string{"running", "future"},
		CurrentReservationID: "future",
	}
	store := newStore(t, &storage.ChangeSet{
		PutAllocations:  []*types.Allocation{allocation},
		PutReservations: []*types.Reservation{reservation("running", "a", 9, 12), reservation("future", "a", 13, 14)},
	})

	changes, count, err := Release(store, allocation, at(10))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, changes.PutAllocations, 1)
	released := changes.PutAllocations[0]
	assert.Equal(t, types.AllocationDeleted, released.State)
	assert.Equal(t, []string{"running"}, released.ReservationIDs)
	assert.Equal(t, "running", released.CurrentReservationID)
	assert.Equal(t, types.AllocationActive, allocation.State, "the given allocation is not modified")

	require.NoError(t, store.ApplyChanges(changes))

	stored, err := store.GetAllocation("a")
	require.NoError(t, err)
	again, count, err := Release(store, stored, at(10))
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, again.IsEmpty(), "releasing twice changes nothing")
}

func TestPlan(t *testing.T) {
	live := &request.ReservationRequest{ID: "live", Kind: request.KindSingle, State: request.StateActive}
	deleted := &request.ReservationRequest{ID: "deleted", Kind: request.KindSingle, State: request.StateDeleted}
	store := newStore(t, &storage.ChangeSet{
		PutRequests: []*request.ReservationRequest{live, deleted},
		PutAllocations: []*types.Allocation{
			{ID: "a-live", RequestID: "live", State: types.AllocationActive, ReservationIDs: []string{"r-live"}},
			{ID: "a-deleted", RequestID: "deleted", State: types.AllocationActive, ReservationIDs: []string{"r-deleted"}},
			{ID: "a-missing", RequestID: "missing", State: types.AllocationActive, ReservationIDs: []string{"r-missing"}},
		},
		PutReservations: []*types.Reservation{
			reservation("r-live", "a-live", 9, 10),
			reservation("r-deleted", "a-deleted", 10, 11),
			reservation("r-missing", "a-missing", 11, 12),
			reservation("r-orphan", "gone", 12, 13),
		},
	})

	changes, published, err := NewReconciler().Plan(store, at(8))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"r-deleted", "r-missing", "r-orphan"}, changes.DeleteReservations)
	require.Len(t, published, 2)
	for _, event := range published {
		assert.Equal(t, events.EventAllocationReleased, event.Type)
	}
	var releasedIDs []string
	for _, allocation := range changes.PutAllocations {
		assert.Equal(t, types.AllocationDeleted, allocation.State)
		releasedIDs = append(releasedIDs, allocation.ID)
	}
	assert.ElementsMatch(t, []string{"a-deleted", "a-missing"}, releasedIDs)

	require.NoError(t, store.ApplyChanges(changes))
	changes, published, err = NewReconciler().Plan(store, at(8))
	require.NoError(t, err)
	assert.True(t, changes.IsEmpty())
	assert.Empty(t, published)
}
