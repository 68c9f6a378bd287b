package controller

import (
	"fmt"
	"sort"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/reconciler"
	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/storage"
)

// CreateRequest stores a new request owned by principal. The request is
// COMPLETE when its specification is ready and is allocated by the next
// scheduler pass.
func (c *Controller) CreateRequest(principal string, r *request.ReservationRequest) (*request.ReservationRequest, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var created *request.ReservationRequest
	err := c.scheduler.Exclusive(func() error {
		if r.ReusedAllocationID != "" {
			if err := c.checkReuse(principal, r.ReusedAllocationID); err != nil {
				return err
			}
		}
		now := c.scheduler.Now()
		created = r.Clone()
		created.ID = c.scheduler.IDs().NewID()
		created.UserID = principal
		created.CreatedAt = now
		created.UpdatedAt = now
		created.UpdatedBy = principal
		created.State = request.StateActive
		created.ModifiedRequestID = ""
		created.AllocationID = ""
		created.ParentAllocationID = ""
		if created.Reusement == "" {
			created.Reusement = request.ReusementNone
		}
		created.Specification.AssignIDs(c.scheduler.IDs())
		created.AllocationState = request.AllocationNotComplete
		created.Report = nil
		created.UpdateStateBySpecification()

		return c.scheduler.Apply(&storage.ChangeSet{PutRequests: []*request.ReservationRequest{created}})
	})
	if err != nil {
		return nil, err
	}

	logger := log.WithRequestID(c.logger, created.ID)
	logger.Info().
		Str("user_id", principal).
		Str("allocation_state", string(created.AllocationState)).
		Msg("Request created")
	c.publish(events.New(events.EventRequestCreated, "request created", "request", created.ID, "user", principal))
	return created, nil
}

// ModifyRequest replaces the request with a new version built from
// modified. The old version becomes MODIFIED and hands its allocation
// over, so the new version is reallocated in place of the old one.
func (c *Controller) ModifyRequest(principal, requestID string, modified *request.ReservationRequest) (*request.ReservationRequest, error) {
	if err := modified.Validate(); err != nil {
		return nil, err
	}

	var next *request.ReservationRequest
	err := c.scheduler.Exclusive(func() error {
		old, err := c.store.GetRequest(requestID)
		if err != nil {
			return err
		}
		if err := c.authorize(principal, old.ID, PermissionWrite); err != nil {
			return err
		}
		if err := request.CheckModifiable(c.store, old); err != nil {
			return err
		}
		if modified.ReusedAllocationID != "" && modified.ReusedAllocationID != old.ReusedAllocationID {
			if err := c.checkReuse(principal, modified.ReusedAllocationID); err != nil {
				return err
			}
		}

		now := c.scheduler.Now()
		next = modified.Clone()
		next.ID = c.scheduler.IDs().NewID()
		next.UserID = old.UserID
		next.CreatedAt = now
		next.UpdatedAt = now
		next.UpdatedBy = principal
		next.State = request.StateActive
		next.ModifiedRequestID = old.ID
		next.AllocationID = old.AllocationID
		next.ParentAllocationID = ""
		if next.Reusement == "" {
			next.Reusement = old.Reusement
		}
		next.Specification = nextSpecification(old, modified)
		next.Specification.AssignIDs(c.scheduler.IDs())
		next.AllocationState = request.AllocationNotComplete
		next.Report = nil
		next.UpdateStateBySpecification()

		if err := old.Fire(request.EventModify); err != nil {
			return err
		}
		old.UpdatedAt = now
		old.UpdatedBy = principal

		changes := &storage.ChangeSet{}
		changes.PutRequest(old)
		changes.PutRequest(next)
		if old.AllocationID != "" {
			allocation, err := c.store.GetAllocation(old.AllocationID)
			if err != nil {
				return err
			}
			allocation.RequestID = next.ID
			changes.PutAllocation(allocation)
		}
		return c.scheduler.Apply(changes)
	})
	if err != nil {
		return nil, err
	}

	logger := log.WithRequestID(c.logger, next.ID)
	logger.Info().
		Str("modified_request_id", requestID).
		Msg("Request modified")
	c.publish(events.New(events.EventRequestModified, "request modified",
		"request", next.ID, "previous", requestID))
	return next, nil
}

// nextSpecification keeps the identities of the old specification items
// that modified still contains, so the allocation can be reused.
func nextSpecification(old, modified *request.ReservationRequest) *specification.Specification {
	if old.Specification == nil || old.Specification.Kind != modified.Specification.Kind {
		return modified.Specification.Clone()
	}
	spec := old.Specification.Clone()
	spec.SynchronizeFrom(modified.Specification)
	return spec
}

// RevertRequest drops the latest version of a request and makes the
// version it modified active again. An allocated version cannot be
// reverted.
func (c *Controller) RevertRequest(principal, requestID string) (*request.ReservationRequest, error) {
	var previous *request.ReservationRequest
	err := c.scheduler.Exclusive(func() error {
		current, err := c.store.GetRequest(requestID)
		if err != nil {
			return err
		}
		if err := c.authorize(principal, current.ID, PermissionWrite); err != nil {
			return err
		}
		if err := request.CheckRevertible(current); err != nil {
			return err
		}
		previous, err = c.store.GetRequest(current.ModifiedRequestID)
		if err != nil {
			return err
		}
		if err := previous.Fire(request.EventRevert); err != nil {
			return err
		}
		previous.AllocationID = current.AllocationID
		previous.UpdatedAt = c.scheduler.Now()
		previous.UpdatedBy = principal

		changes := &storage.ChangeSet{DeleteRequests: []string{current.ID}}
		changes.PutRequest(previous)
		if current.AllocationID != "" {
			allocation, err := c.store.GetAllocation(current.AllocationID)
			if err != nil {
				return err
			}
			allocation.RequestID = previous.ID
			changes.PutAllocation(allocation)
		}
		return c.scheduler.Apply(changes)
	})
	if err != nil {
		return nil, err
	}

	logger := log.WithRequestID(c.logger, previous.ID)
	logger.Info().
		Str("reverted_request_id", requestID).
		Msg("Request reverted")
	c.publish(events.New(events.EventRequestReverted, "request reverted",
		"request", previous.ID, "reverted", requestID))
	return previous, nil
}

// DeleteRequest deletes a request and releases its allocation right away.
// Child requests of a set are deleted with it.
func (c *Controller) DeleteRequest(principal, requestID string) error {
	var released int
	err := c.scheduler.Exclusive(func() error {
		r, err := c.store.GetRequest(requestID)
		if err != nil {
			return err
		}
		if err := c.authorize(principal, r.ID, PermissionWrite); err != nil {
			return err
		}
		if err := request.CheckDeletable(c.store, r); err != nil {
			return err
		}

		now := c.scheduler.Now()
		changes := &storage.ChangeSet{}
		deleted := []*request.ReservationRequest{r}
		if r.IsSet() && r.AllocationID != "" {
			children, err := c.store.ListChildRequests(r.AllocationID)
			if err != nil {
				return err
			}
			deleted = append(deleted, children...)
		}
		for _, d := range deleted {
			if err := d.Fire(request.EventDelete); err != nil {
				return err
			}
			d.UpdatedAt = now
			d.UpdatedBy = principal
			changes.PutRequest(d)
			if d.AllocationID == "" {
				continue
			}
			allocation, err := c.store.GetAllocation(d.AllocationID)
			if err != nil {
				return err
			}
			releasedChanges, count, err := reconciler.Release(c.store, allocation, now)
			if err != nil {
				return err
			}
			changes.Merge(releasedChanges)
			released += count
		}
		return c.scheduler.Apply(changes)
	})
	if err != nil {
		return err
	}

	logger := log.WithRequestID(c.logger, requestID)
	logger.Info().Int("released", released).Msg("Request deleted")
	c.publish(events.New(events.EventRequestDeleted, "request deleted",
		"request", requestID, "released", fmt.Sprint(released)))
	return nil
}

// UpdateRequest retries a failed allocation of the request and of its
// child requests, and recomputes readiness from the specification.
func (c *Controller) UpdateRequest(principal, requestID string) (*request.ReservationRequest, error) {
	var updated *request.ReservationRequest
	err := c.scheduler.Exclusive(func() error {
		r, err := c.store.GetRequest(requestID)
		if err != nil {
			return err
		}
		if err := c.authorize(principal, r.ID, PermissionWrite); err != nil {
			return err
		}
		if r.State != request.StateActive {
			return request.CheckModifiable(c.store, r)
		}

		targets := []*request.ReservationRequest{r}
		if r.IsSet() && r.AllocationID != "" {
			children, err := c.store.ListChildRequests(r.AllocationID)
			if err != nil {
				return err
			}
			targets = append(targets, children...)
		}
		changes := &storage.ChangeSet{}
		now := c.scheduler.Now()
		for _, target := range targets {
			before := target.AllocationState
			if err := target.Retry(); err != nil {
				return err
			}
			target.UpdateStateBySpecification()
			if target.AllocationState != before {
				target.UpdatedAt = now
				target.UpdatedBy = principal
				changes.PutRequest(target)
			}
		}
		updated = r
		return c.scheduler.Apply(changes)
	})
	if err != nil {
		return nil, err
	}

	c.publish(events.New(events.EventRequestUpdated, "request updated",
		"request", updated.ID, "allocation_state", string(updated.AllocationState)))
	return updated, nil
}

// GetRequest returns a request readable by principal
func (c *Controller) GetRequest(principal, requestID string) (*request.ReservationRequest, error) {
	r, err := c.store.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(principal, r.ID, PermissionRead); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRequests returns the active requests readable by principal, oldest
// first. Child requests of sets are left out.
func (c *Controller) ListRequests(principal string) ([]*request.ReservationRequest, error) {
	requests, err := c.store.ListRequests()
	if err != nil {
		return nil, err
	}
	var result []*request.ReservationRequest
	for _, r := range requests {
		if r.State != request.StateActive || r.IsChild() {
			continue
		}
		if c.authorizer.HasPermission(principal, r.ID, PermissionRead) {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// checkReuse verifies that principal may reuse the allocation
func (c *Controller) checkReuse(principal, allocationID string) error {
	allocation, err := c.store.GetAllocation(allocationID)
	if err != nil {
		return err
	}
	owner, err := c.store.GetRequest(allocation.RequestID)
	if err != nil {
		return err
	}
	if err := c.authorize(principal, owner.ID, PermissionProvide); err != nil {
		return err
	}
	return request.CheckReusable(owner, principal)
}
