package request

import (
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/mohae/deepcopy"
)

// Kind distinguishes single requests from request sets
type Kind string

const (
	// KindSingle requests one slot
	KindSingle Kind = "single"
	// KindSet requests several slots; one child request is created per slot
	KindSet Kind = "set"
)

// State is the versioning state of a request
type State string

const (
	StateActive   State = "ACTIVE"
	StateModified State = "MODIFIED"
	StateDeleted  State = "DELETED"
)

// AllocationState tracks the scheduling progress of a request
type AllocationState string

const (
	AllocationNotComplete AllocationState = "NOT_COMPLETE"
	AllocationComplete    AllocationState = "COMPLETE"
	AllocationAllocated   AllocationState = "ALLOCATED"
	AllocationFailed      AllocationState = "ALLOCATION_FAILED"
	AllocationDenied      AllocationState = "DENIED"
)

// Reusement controls whether other requests may reuse this request's allocation
type Reusement string

const (
	ReusementNone      Reusement = "NONE"
	ReusementArbitrary Reusement = "ARBITRARY"
	ReusementOwned     Reusement = "OWNED"
)

// ReservationRequest is a user's demand for resources over one slot (or,
// for sets, over several slots).
type ReservationRequest struct {
	ID          string        `yaml:"id"`
	Kind        Kind          `yaml:"kind"`
	UserID      string        `yaml:"userId"`
	Description string        `yaml:"description,omitempty"`
	Purpose     types.Purpose `yaml:"purpose,omitempty"`
	Priority    int           `yaml:"priority,omitempty"`

	CreatedAt time.Time `yaml:"-"`
	UpdatedAt time.Time `yaml:"-"`
	UpdatedBy string    `yaml:"-"`

	State State `yaml:"-"`
	// ModifiedRequestID is the version this request supersedes
	ModifiedRequestID string `yaml:"-"`
	AllocationID      string `yaml:"-"`
	// ParentAllocationID is set for the children generated from a set
	ParentAllocationID string `yaml:"-"`

	ReusedAllocationID        string    `yaml:"reusedAllocationId,omitempty"`
	ReusedAllocationMandatory bool      `yaml:"reusedAllocationMandatory,omitempty"`
	Reusement                 Reusement `yaml:"reusement,omitempty"`

	Slot          types.Interval               `yaml:"slot,omitempty"`
	Slots         []types.Interval             `yaml:"slots,omitempty"`
	Specification *specification.Specification `yaml:"specification"`

	AllocationState AllocationState `yaml:"-"`
	Report          *report.Report  `yaml:"-"`
}

// IsSet reports whether the request is a request set
func (r *ReservationRequest) IsSet() bool {
	return r.Kind == KindSet
}

// IsChild reports whether the request was generated from a set
func (r *ReservationRequest) IsChild() bool {
	return r.ParentAllocationID != ""
}

// Clone returns a deep copy of the request
func (r *ReservationRequest) Clone() *ReservationRequest {
	if r == nil {
		return nil
	}
	return deepcopy.Copy(r).(*ReservationRequest)
}

// Validate checks the request shape and its specification
func (r *ReservationRequest) Validate() error {
	switch r.Kind {
	case KindSingle:
		if r.Slot.IsEmpty() {
			return report.Errorf(report.CodeSlotEmpty, "request slot %s is empty", r.Slot)
		}
	case KindSet:
		if len(r.Slots) == 0 {
			return report.Errorf(report.CodeSpecificationInvalid, "request set has no slots")
		}
		for _, slot := range r.Slots {
			if slot.IsEmpty() {
				return report.Errorf(report.CodeSlotEmpty, "request slot %s is empty", slot)
			}
		}
	default:
		return report.Errorf(report.CodeSpecificationInvalid, "unknown request kind %q", r.Kind)
	}
	if r.Specification == nil {
		return report.Errorf(report.CodeSpecificationInvalid, "request has no specification")
	}
	return r.Specification.Validate()
}

// Overlaps reports whether any requested slot overlaps interval
func (r *ReservationRequest) Overlaps(interval types.Interval) bool {
	if r.Kind == KindSet {
		for _, slot := range r.Slots {
			if slot.Overlaps(interval) {
				return true
			}
		}
		return false
	}
	return r.Slot.Overlaps(interval)
}

// NewChild creates the child request of a set for one slot. The child
// gets its own copy of the specification.
func (r *ReservationRequest) NewChild(id string, slot types.Interval, now time.Time) *ReservationRequest {
	child := &ReservationRequest{
		ID:                        id,
		Kind:                      KindSingle,
		UserID:                    r.UserID,
		Description:               r.Description,
		Purpose:                   r.Purpose,
		Priority:                  r.Priority,
		CreatedAt:                 now,
		UpdatedAt:                 now,
		UpdatedBy:                 r.UserID,
		State:                     StateActive,
		ParentAllocationID:        r.AllocationID,
		ReusedAllocationID:        r.ReusedAllocationID,
		ReusedAllocationMandatory: r.ReusedAllocationMandatory,
		Reusement:                 r.Reusement,
		Slot:                      slot,
		Specification:             r.Specification.Clone(),
		AllocationState:           AllocationNotComplete,
	}
	child.UpdateStateBySpecification()
	return child
}

func (r *ReservationRequest) String() string {
	return fmt.Sprintf("request %s (%s, %s)", r.ID, r.State, r.AllocationState)
}
