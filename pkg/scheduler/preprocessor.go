package scheduler

import (
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/reconciler"
	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// preprocess keeps the child requests of every active set overlapping
// working in line with the set: one child per future slot, carrying the
// set's current specification.
func (s *Scheduler) preprocess(reader storage.Reader, working types.Interval, now time.Time) (*storage.ChangeSet, error) {
	requests, err := reader.ListRequests()
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	changes := &storage.ChangeSet{}
	for _, set := range requests {
		if !set.IsSet() || set.State != request.StateActive || !set.Overlaps(working) {
			continue
		}
		setChanges, err := s.preprocessSet(reader, set, now)
		if err != nil {
			return nil, fmt.Errorf("request set %s: %w", set.ID, err)
		}
		changes.Merge(setChanges)
	}
	return changes, nil
}

func (s *Scheduler) preprocessSet(reader storage.Reader, set *request.ReservationRequest, now time.Time) (*storage.ChangeSet, error) {
	changes := &storage.ChangeSet{}
	logger := log.WithRequestID(s.logger, set.ID)

	if set.AllocationID == "" {
		allocation := &types.Allocation{ID: s.ids.NewID(), RequestID: set.ID, State: types.AllocationActive}
		set.AllocationID = allocation.ID
		changes.PutAllocation(allocation)
		changes.PutRequest(set)
	}

	children, err := reader.ListChildRequests(set.AllocationID)
	if err != nil {
		return nil, err
	}
	bySlot := make(map[string]*request.ReservationRequest, len(children))
	for _, child := range children {
		bySlot[child.Slot.String()] = child
	}

	wanted := make(map[string]bool, len(set.Slots))
	for _, slot := range set.Slots {
		if !slot.End.After(now) {
			continue
		}
		key := slot.String()
		wanted[key] = true

		child, ok := bySlot[key]
		if !ok {
			child = set.NewChild(s.ids.NewID(), slot, now)
			changes.PutRequest(child)
			logger.Debug().Str("child_id", child.ID).Str("slot", key).Msg("Created child request")
			continue
		}
		if synchronizeChild(child, set) {
			child.UpdatedAt = now
			if err := child.Reallocate(); err != nil {
				return nil, err
			}
			changes.PutRequest(child)
			logger.Debug().Str("child_id", child.ID).Msg("Updated child request")
		}
	}

	for _, child := range children {
		if wanted[child.Slot.String()] || !child.Slot.End.After(now) {
			continue
		}
		if err := child.Fire(request.EventDelete); err != nil {
			return nil, err
		}
		child.UpdatedAt = now
		changes.PutRequest(child)
		if child.AllocationID == "" {
			continue
		}
		allocation, err := reader.GetAllocation(child.AllocationID)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		released, _, err := reconciler.Release(reader, allocation, now)
		if err != nil {
			return nil, err
		}
		changes.Merge(released)
		logger.Debug().Str("child_id", child.ID).Msg("Deleted child request")
	}
	return changes, nil
}

// synchronizeChild copies the attributes a child inherits from its set and
// reports whether anything changed.
func synchronizeChild(child, set *request.ReservationRequest) bool {
	changed := false
	if child.Specification == nil || set.Specification == nil || child.Specification.Kind != set.Specification.Kind {
		child.Specification = set.Specification.Clone()
		changed = true
	} else if child.Specification.SynchronizeFrom(set.Specification) {
		changed = true
	}
	if child.Description != set.Description || child.Purpose != set.Purpose || child.Priority != set.Priority {
		child.Description = set.Description
		child.Purpose = set.Purpose
		child.Priority = set.Priority
		changed = true
	}
	if child.ReusedAllocationID != set.ReusedAllocationID || child.ReusedAllocationMandatory != set.ReusedAllocationMandatory {
		child.ReusedAllocationID = set.ReusedAllocationID
		child.ReusedAllocationMandatory = set.ReusedAllocationMandatory
		changed = true
	}
	return changed
}
