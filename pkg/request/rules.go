package request

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/report"
)

// Lookup is the read access the lifecycle rules need
type Lookup interface {
	// ListChildRequests returns the active requests generated for an allocation
	ListChildRequests(parentAllocationID string) ([]*ReservationRequest, error)
	// IsAllocationReused reports whether any reservation reuses the allocation
	IsAllocationReused(allocationID string) (bool, error)
}

// CheckModifiable returns a state error when r cannot be modified. A
// request generated from a set is never modifiable on its own, and a
// request whose child requests are blocked is not modifiable either.
func CheckModifiable(lookup Lookup, r *ReservationRequest) error {
	switch r.State {
	case StateModified:
		return report.Errorf(report.CodeRequestAlreadyModified, "request %s is already modified", r.ID)
	case StateDeleted:
		return report.Errorf(report.CodeRequestDeleted, "request %s is deleted", r.ID)
	}
	if r.IsChild() {
		return report.Errorf(report.CodeRequestNotModifiable,
			"request %s was created by request set allocation %s", r.ID, r.ParentAllocationID)
	}
	blocked, err := childrenBlocked(lookup, r)
	if err != nil {
		return err
	}
	if blocked {
		return report.Errorf(report.CodeRequestNotModifiable, "request %s has child requests in use", r.ID)
	}
	return nil
}

// CheckDeletable returns a state error when r cannot be deleted. On top
// of the modification rules the allocation must not be reused.
func CheckDeletable(lookup Lookup, r *ReservationRequest) error {
	if r.State == StateModified {
		return report.Errorf(report.CodeRequestNotDeletable, "request %s has a newer version", r.ID)
	}
	if err := CheckModifiable(lookup, r); err != nil {
		if r.State == StateDeleted {
			return err
		}
		return report.Errorf(report.CodeRequestNotDeletable, "request %s cannot be deleted: %s", r.ID, err)
	}
	if r.AllocationID == "" {
		return nil
	}
	reused, err := lookup.IsAllocationReused(r.AllocationID)
	if err != nil {
		return fmt.Errorf("failed to check reuse of allocation %s: %w", r.AllocationID, err)
	}
	if reused {
		return report.Errorf(report.CodeRequestNotDeletable,
			"allocation %s of request %s is reused", r.AllocationID, r.ID)
	}
	return nil
}

// CheckRevertible returns a state error when r has no previous version to
// return to or is already allocated.
func CheckRevertible(r *ReservationRequest) error {
	if r.State != StateActive || r.ModifiedRequestID == "" || r.AllocationState == AllocationAllocated {
		return report.Errorf(report.CodeRequestNotRevertible, "request %s cannot be reverted", r.ID)
	}
	return nil
}

// CheckReusable returns a state error when reused may not be reused by a
// request of userID.
func CheckReusable(reused *ReservationRequest, userID string) error {
	switch reused.Reusement {
	case ReusementArbitrary:
		return nil
	case ReusementOwned:
		if reused.UserID == userID {
			return nil
		}
	}
	return report.Errorf(report.CodeRequestNotReusable, "request %s cannot be reused", reused.ID)
}

// childrenBlocked walks the child requests of a set. The parent
// allocation clause does not apply to them; only their own children and
// the reuse of their allocations count.
func childrenBlocked(lookup Lookup, r *ReservationRequest) (bool, error) {
	if r.AllocationID == "" {
		return false, nil
	}
	children, err := lookup.ListChildRequests(r.AllocationID)
	if err != nil {
		return false, fmt.Errorf("failed to list child requests of %s: %w", r.ID, err)
	}
	for _, child := range children {
		if child.AllocationID != "" {
			reused, err := lookup.IsAllocationReused(child.AllocationID)
			if err != nil {
				return false, err
			}
			if reused {
				return true, nil
			}
		}
		blocked, err := childrenBlocked(lookup, child)
		if err != nil {
			return false, err
		}
		if blocked {
			return true, nil
		}
	}
	return false, nil
}
