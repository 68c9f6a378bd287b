package availability

import (
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

func slot(fromHour, toHour int) types.Interval {
	return types.NewInterval(day.Add(time.Duration(fromHour)*time.Hour), day.Add(time.Duration(toHour)*time.Hour))
}

type fixture struct {
	store     *storage.BoltStore
	scheduler *scheduler.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.ApplyChanges(&storage.ChangeSet{PutResources: []*types.Resource{
		{ID: "codec", Allocatable: true},
		{ID: "spare", Allocatable: true},
	}}))
	s := scheduler.NewScheduler(store,
		scheduler.WithClock(func() time.Time { return day.Add(8 * time.Hour) }),
		scheduler.WithIDGenerator(types.NewSequenceGenerator("id")),
	)
	return &fixture{store: store, scheduler: s}
}

// allocate persists and allocates a request for codec over 10:00-11:00
func (f *fixture) allocate(t *testing.T, id string, reusement request.Reusement) {
	t.Helper()
	require.NoError(t, f.store.ApplyChanges(&storage.ChangeSet{PutRequests: []*request.ReservationRequest{{
		ID:              id,
		Kind:            request.KindSingle,
		UserID:          "owner",
		State:           request.StateActive,
		AllocationState: request.AllocationComplete,
		Reusement:       reusement,
		CreatedAt:       day,
		Slot:            slot(10, 11),
		Specification:   specification.NewResource("codec"),
	}}}))
	allocated, err := f.scheduler.Allocate(id)
	require.NoError(t, err)
	require.True(t, allocated)
}

func TestCheckIgnoresOwnReservations(t *testing.T) {
	f := newFixture(t)
	f.allocate(t, "x", request.ReusementNone)
	checker := NewChecker(f.scheduler, f.store, 0)
	revision := f.store.Revision()

	tests := []struct {
		name      string
		query     Query
		available bool
		code      report.Code
	}{
		{
			name:  "conflict with another request",
			query: Query{Specification: specification.NewResource("codec"), Slot: slot(10, 12)},
			code:  report.CodeResourceAlreadyAllocated,
		},
		{
			name: "own reservation ignored",
			query: Query{
				Specification:    specification.NewResource("codec"),
				Slot:             slot(10, 12),
				IgnoredRequestID: "x",
			},
			available: true,
		},
		{
			name:      "free resource",
			query:     Query{Specification: specification.NewResource("spare"), Slot: slot(10, 12)},
			available: true,
		},
		{
			name:  "slot in the past",
			query: Query{Specification: specification.NewResource("spare"), Slot: slot(5, 6)},
			code:  report.CodeSlotInPast,
		},
		{
			name:  "invalid specification",
			query: Query{Specification: specification.NewResource(""), Slot: slot(10, 12)},
			code:  report.CodeSpecificationInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := checker.Check(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.available, result.Available)
			require.NotNil(t, result.Report)
			if !tt.available {
				assert.Equal(t, tt.code, result.Report.Code, result.Report.String())
			}
		})
	}

	assert.Equal(t, revision, f.store.Revision(), "checks never write")
	reservations, err := f.store.ListReservations()
	require.NoError(t, err)
	assert.Len(t, reservations, 1)
}

func TestCheckReusedRequest(t *testing.T) {
	f := newFixture(t)
	f.allocate(t, "shared", request.ReusementOwned)
	checker := NewChecker(f.scheduler, f.store, 0)

	result, err := checker.Check(Query{
		Specification:   specification.NewResource("codec"),
		Slot:            slot(10, 11),
		UserID:          "owner",
		ReusedRequestID: "shared",
	})
	require.NoError(t, err)
	assert.True(t, result.Available, result.Report.String())
	assert.Equal(t, report.CodeReusingReservation, result.Report.Code)

	result, err = checker.Check(Query{
		Specification:   specification.NewResource("codec"),
		Slot:            slot(10, 11),
		UserID:          "stranger",
		ReusedRequestID: "shared",
	})
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, report.CodeRequestNotReusable, result.Report.Code)
}

func TestCheckUnknownRequest(t *testing.T) {
	f := newFixture(t)
	checker := NewChecker(f.scheduler, f.store, 0)

	_, err := checker.Check(Query{
		Specification:    specification.NewResource("codec"),
		Slot:             slot(10, 11),
		IgnoredRequestID: "missing",
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCheckCachesByRevision(t *testing.T) {
	f := newFixture(t)
	checker := NewChecker(f.scheduler, f.store, time.Minute)
	query := Query{Specification: specification.NewResource("codec"), Slot: slot(10, 11)}

	first, err := checker.Check(query)
	require.NoError(t, err)
	assert.True(t, first.Available)

	first.Available = false
	second, err := checker.Check(query)
	require.NoError(t, err)
	assert.True(t, second.Available, "callers get their own copy of a cached result")
	assert.NotSame(t, first, second)

	f.allocate(t, "x", request.ReusementNone)

	third, err := checker.Check(query)
	require.NoError(t, err)
	assert.False(t, third.Available, "a new revision bypasses the cached result")
}

func TestCheckCacheFollowsClock(t *testing.T) {
	f := newFixture(t)
	now := day.Add(8 * time.Hour)
	s := scheduler.NewScheduler(f.store, scheduler.WithClock(func() time.Time { return now }))
	checker := NewChecker(s, f.store, time.Minute)
	query := Query{Specification: specification.NewResource("codec"), Slot: slot(10, 11)}

	first, err := checker.Check(query)
	require.NoError(t, err)
	assert.True(t, first.Available)

	tests := []struct {
		name string
		now  time.Time
	}{
		{"slot about to start", day.Add(10*time.Hour - 30*time.Second)},
		{"slot ended", day.Add(11*time.Hour + time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = tt.now
			result, err := checker.Check(query)
			require.NoError(t, err)
			uncached, err := NewChecker(s, f.store, 0).Check(query)
			require.NoError(t, err)
			assert.Equal(t, uncached.Available, result.Available)
		})
	}

	result, err := checker.Check(query)
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, report.CodeSlotInPast, result.Report.Code)
}
