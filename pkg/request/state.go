package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/looplab/fsm"
)

// Request versioning events
const (
	EventModify = "modify"
	EventRevert = "revert"
	EventDelete = "delete"
)

// Allocation state events
const (
	EventComplete   = "complete"
	EventIncomplete = "incomplete"
	EventAllocated  = "allocated"
	EventFailed     = "failed"
	EventRetry      = "retry"
	EventReallocate = "reallocate"
	EventDeny       = "deny"
)

var stateEvents = fsm.Events{
	{Name: EventModify, Src: []string{string(StateActive)}, Dst: string(StateModified)},
	{Name: EventRevert, Src: []string{string(StateModified)}, Dst: string(StateActive)},
	{Name: EventDelete, Src: []string{string(StateActive)}, Dst: string(StateDeleted)},
}

var allocationEvents = fsm.Events{
	{Name: EventComplete, Src: []string{string(AllocationNotComplete)}, Dst: string(AllocationComplete)},
	{Name: EventIncomplete, Src: []string{
		string(AllocationComplete), string(AllocationAllocated), string(AllocationFailed),
	}, Dst: string(AllocationNotComplete)},
	{Name: EventAllocated, Src: []string{
		string(AllocationComplete), string(AllocationAllocated), string(AllocationFailed),
	}, Dst: string(AllocationAllocated)},
	{Name: EventFailed, Src: []string{
		string(AllocationComplete), string(AllocationAllocated), string(AllocationFailed),
	}, Dst: string(AllocationFailed)},
	{Name: EventRetry, Src: []string{string(AllocationFailed)}, Dst: string(AllocationComplete)},
	{Name: EventReallocate, Src: []string{
		string(AllocationAllocated), string(AllocationFailed),
	}, Dst: string(AllocationComplete)},
	{Name: EventDeny, Src: []string{
		string(AllocationNotComplete), string(AllocationComplete),
		string(AllocationAllocated), string(AllocationFailed),
	}, Dst: string(AllocationDenied)},
}

// transition runs event on a machine positioned at current. A transition
// to the same state is not an error.
func transition(current string, events fsm.Events, event string) (string, error) {
	machine := fsm.NewFSM(current, events, fsm.Callbacks{})
	if err := machine.Event(context.Background(), event); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return current, nil
		}
		return current, fmt.Errorf("cannot %s from %s: %w", event, current, err)
	}
	return machine.Current(), nil
}

// CanTransition reports whether event is allowed in the current versioning state
func (r *ReservationRequest) CanTransition(event string) bool {
	return fsm.NewFSM(string(r.State), stateEvents, fsm.Callbacks{}).Can(event)
}

// Fire applies a versioning event to the request
func (r *ReservationRequest) Fire(event string) error {
	next, err := transition(string(r.State), stateEvents, event)
	if err != nil {
		return err
	}
	r.State = State(next)
	return nil
}

// FireAllocation applies an allocation event to the request
func (r *ReservationRequest) FireAllocation(event string) error {
	next, err := transition(string(r.AllocationState), allocationEvents, event)
	if err != nil {
		return err
	}
	r.AllocationState = AllocationState(next)
	return nil
}

// UpdateStateBySpecification moves a request between NOT_COMPLETE and
// COMPLETE depending on the readiness of its specification. An allocated
// or failed request whose specification is no longer ready becomes
// NOT_COMPLETE; other states are left untouched.
func (r *ReservationRequest) UpdateStateBySpecification() {
	if r.AllocationState == "" {
		r.AllocationState = AllocationNotComplete
	}
	notReady := r.Specification != nil && r.Specification.State() == specification.StateNotReady
	if notReady {
		if r.AllocationState != AllocationNotComplete && r.AllocationState != AllocationDenied {
			_ = r.FireAllocation(EventIncomplete)
			r.Report = report.Info(report.CodeSpecificationNotReady, "specification is not ready")
		}
		return
	}
	if r.AllocationState == AllocationNotComplete {
		_ = r.FireAllocation(EventComplete)
		r.Report = nil
	}
}

// MarkAllocated records a successful allocation attempt
func (r *ReservationRequest) MarkAllocated(rep *report.Report) error {
	if err := r.FireAllocation(EventAllocated); err != nil {
		return err
	}
	r.Report = rep
	return nil
}

// MarkFailed records a failed allocation attempt and its report
func (r *ReservationRequest) MarkFailed(rep *report.Report) error {
	if err := r.FireAllocation(EventFailed); err != nil {
		return err
	}
	r.Report = rep
	return nil
}

// Retry clears a failed allocation so the next scheduler pass picks the
// request up again.
func (r *ReservationRequest) Retry() error {
	if r.AllocationState != AllocationFailed {
		return nil
	}
	if err := r.FireAllocation(EventRetry); err != nil {
		return err
	}
	r.Report = nil
	r.UpdateStateBySpecification()
	return nil
}

// Reallocate returns an allocated or failed request to COMPLETE after its
// specification changed underneath the existing allocation.
func (r *ReservationRequest) Reallocate() error {
	if r.AllocationState != AllocationAllocated && r.AllocationState != AllocationFailed {
		r.UpdateStateBySpecification()
		return nil
	}
	if err := r.FireAllocation(EventReallocate); err != nil {
		return err
	}
	r.Report = nil
	r.UpdateStateBySpecification()
	return nil
}
