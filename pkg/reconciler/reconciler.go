package reconciler

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Reconciler releases reservations that no live request owns anymore.
// It only plans changes; the caller applies them.
type Reconciler struct {
	logger zerolog.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler() *Reconciler {
	return &Reconciler{logger: log.WithComponent("reconciler")}
}

// Plan computes the changes of one reconciliation cycle at now
func (r *Reconciler) Plan(reader storage.Reader, now time.Time) (*storage.ChangeSet, []*events.Event, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	changes := &storage.ChangeSet{}
	var published []*events.Event

	allocations, err := reader.ListAllocations()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	known := make(map[string]bool, len(allocations))
	for _, allocation := range allocations {
		known[allocation.ID] = true
		dead, err := isDead(reader, allocation)
		if err != nil {
			return nil, nil, err
		}
		if !dead {
			continue
		}
		released, count, err := Release(reader, allocation, now)
		if err != nil {
			return nil, nil, err
		}
		if released.IsEmpty() {
			continue
		}
		changes.Merge(released)
		published = append(published, events.New(events.EventAllocationReleased,
			fmt.Sprintf("released %d reservations", count),
			"allocation", allocation.ID, "request", allocation.RequestID))
		r.logger.Info().
			Str("allocation_id", allocation.ID).
			Int("released", count).
			Msg("Released allocation")
	}

	reservations, err := reader.ListReservations()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	var orphans []*types.Reservation
	for _, reservation := range reservations {
		if !known[reservation.AllocationID] {
			orphans = append(orphans, reservation)
		}
	}
	if len(orphans) > 0 {
		released, count := Truncate(orphans, now, now)
		changes.Merge(released)
		if count > 0 {
			r.logger.Warn().Int("released", count).Msg("Released orphaned reservations")
		}
	}
	return changes, published, nil
}

// isDead reports whether the allocation lost its request
func isDead(reader storage.Reader, allocation *types.Allocation) (bool, error) {
	if allocation.State == types.AllocationDeleted {
		return true, nil
	}
	req, err := reader.GetRequest(allocation.RequestID)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load request %s: %w", allocation.RequestID, err)
	}
	// A modified request hands its allocation over to the new version.
	return req.State == request.StateDeleted, nil
}

// Release frees the part of the allocation after now: future reservations
// are deleted, running ones end at now and history is kept. The allocation
// is marked deleted. It returns the changes and the number of reservations
// deleted or shortened; an already released allocation yields no changes.
func Release(reader storage.Reader, allocation *types.Allocation, now time.Time) (*storage.ChangeSet, int, error) {
	reservations, err := reader.ListReservationsByAllocation(allocation.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reservations of allocation %s: %w", allocation.ID, err)
	}
	changes, count := Truncate(reservations, now, now)
	if count == 0 && allocation.State == types.AllocationDeleted {
		return &storage.ChangeSet{}, 0, nil
	}

	released := *allocation
	released.State = types.AllocationDeleted
	released.ReservationIDs = append([]string(nil), allocation.ReservationIDs...)
	for _, id := range changes.DeleteReservations {
		released.RemoveReservation(id)
	}
	changes.PutAllocation(&released)
	metrics.ReservationsReleased.Add(float64(count))
	return changes, count, nil
}

// Truncate deletes the reservations starting at or after deleteFrom and
// ends the remaining ones still running at endAt there. Deleted children
// are unlinked from their parents. It returns the changes and the number
// of reservations deleted or shortened.
func Truncate(reservations []*types.Reservation, deleteFrom, endAt time.Time) (*storage.ChangeSet, int) {
	changes := &storage.ChangeSet{}
	deleted := make(map[string]bool)
	for _, reservation := range reservations {
		if !reservation.Slot.Start.Before(deleteFrom) {
			deleted[reservation.ID] = true
			changes.DeleteReservations = append(changes.DeleteReservations, reservation.ID)
		}
	}
	count := len(deleted)
	for _, reservation := range reservations {
		if deleted[reservation.ID] {
			continue
		}
		updated := *reservation
		changed := false
		if updated.Slot.End.After(endAt) {
			updated.Slot.End = endAt
			changed = true
			count++
		}
		for _, childID := range reservation.ChildIDs {
			if deleted[childID] {
				updated.RemoveChild(childID)
				changed = true
			}
		}
		if changed {
			changes.PutReservations = append(changes.PutReservations, &updated)
		}
	}
	return changes, count
}
