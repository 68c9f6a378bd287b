package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// Task allocates one specification for one slot. Composite kinds run a
// child task per contained specification.
type Task struct {
	ctx     *Context
	spec    *specification.Specification
	slot    types.Interval
	report  *report.Report
	reports []*report.Report
}

// NewTask creates a task allocating spec within slot
func NewTask(ctx *Context, spec *specification.Specification, slot types.Interval) *Task {
	return &Task{ctx: ctx, spec: spec, slot: slot}
}

// Perform runs the allocation. On success the returned reservation tree is
// registered in the context state; on failure the state is left as it was.
func (t *Task) Perform() (*types.Reservation, error) {
	if t.slot.IsEmpty() {
		return nil, report.Wrap(report.New(report.CodeSlotEmpty, "slot %s is empty", t.slot).
			WithParam("slot", t.slot.String()))
	}
	if !t.slot.End.After(t.ctx.now) {
		return nil, report.Wrap(report.New(report.CodeSlotInPast, "slot %s ends before %s",
			t.slot, t.ctx.now.Format(time.RFC3339)).WithParam("slot", t.slot.String()))
	}
	slot := t.slot.ClipStart(t.ctx.now)

	sp := t.ctx.state.Savepoint()
	reservation, err := t.perform(slot)
	if err != nil {
		sp.Revert()
		return nil, err
	}
	sp.Destroy()
	return reservation, nil
}

func (t *Task) perform(slot types.Interval) (*types.Reservation, error) {
	switch t.spec.Kind {
	case specification.KindResource:
		return t.allocateResource(slot, t.spec.Resource)
	case specification.KindAlias:
		return t.allocateAlias(slot, t.spec.Alias)
	case specification.KindAliasSet, specification.KindAliasGroup:
		return t.allocateAliasSet(slot, t.spec.AliasSet)
	case specification.KindRoom, specification.KindVirtualRoom:
		return t.allocateRoom(slot, t.spec.Room)
	case specification.KindValue:
		return t.allocateValue(slot, t.spec.Value)
	case specification.KindCompartment:
		return t.allocateCompartment(slot, t.spec)
	case specification.KindMultiCompartment:
		return t.allocateCompound(slot, t.spec.Children())
	default:
		return nil, report.Errorf(report.CodeSpecificationNotAllocatable,
			"specification kind %q cannot be allocated", t.spec.Kind)
	}
}

// Report returns the progress report of a performed task, child reports
// included.
func (t *Task) Report() *report.Report {
	if t.report == nil {
		t.report = report.Info(report.CodeAllocating, "allocated %s", t.spec.Kind)
	}
	top := *t.report
	top.Children = append(append([]*report.Report(nil), t.report.Children...), t.reports...)
	return &top
}

// Reports returns the reports of the child tasks
func (t *Task) Reports() []*report.Report {
	return t.reports
}

func (t *Task) setReport(r *report.Report) {
	t.report = r.WithParam("kind", string(t.spec.Kind))
}

// runChild performs spec as a child task under its own savepoint. A failed
// optional child is reverted and recorded as a warning; the returned
// reservation is then nil.
func (t *Task) runChild(spec *specification.Specification, slot types.Interval) (*types.Reservation, error) {
	child := NewTask(t.ctx, spec, slot)
	sp := t.ctx.state.Savepoint()
	reservation, err := child.Perform()
	if err != nil {
		sp.Revert()
		if !spec.Optional || !isReportError(err) {
			return nil, err
		}
		t.reports = append(t.reports, report.Warning(report.CodeOptionalChildSkipped,
			"optional %s skipped", spec.Kind).WithParam("kind", string(spec.Kind)).
			AddChild(report.ReportOf(err)))
		t.ctx.logger.Debug().Str("kind", string(spec.Kind)).Err(err).Msg("Optional specification skipped")
		return nil, nil
	}
	sp.Destroy()
	t.reports = append(t.reports, child.Report())
	return reservation, nil
}

// reuse creates an existing reservation referencing available
func (t *Task) reuse(available *types.Reservation, slot types.Interval) *types.Reservation {
	t.ctx.state.Consume(available.ID)
	reservation := t.ctx.allocate(&types.Reservation{
		Kind:       types.ReservationKindExisting,
		Slot:       slot,
		EndpointID: available.EndpointID,
		Existing: &types.ExistingReservation{
			ReservationID: available.ID,
			AllocationID:  available.AllocationID,
		},
	})
	t.setReport(report.Info(report.CodeReusingReservation, "reusing reservation %s", available.ID).
		WithParam("reservation", available.ID))
	return reservation
}

// allocateCompound creates a compound root with one child per spec
func (t *Task) allocateCompound(slot types.Interval, specs []*specification.Specification) (*types.Reservation, error) {
	root := t.ctx.allocate(&types.Reservation{Kind: types.ReservationKindCompound, Slot: slot})
	for _, spec := range specs {
		child, err := t.runChild(spec, slot)
		if err != nil {
			return nil, err
		}
		if child != nil {
			root.AddChild(child)
		}
	}
	t.setReport(report.Info(report.CodeAllocatingCompound, "allocated %d specifications", len(root.ChildIDs)))
	return root, nil
}

func isReportError(err error) bool {
	var reportErr *report.Error
	return errors.As(err, &reportErr)
}

// notFound maps a store lookup failure of a resource to a report error
func notFound(resourceID string, err error) error {
	if isNotFound(err) {
		return report.Wrap(report.New(report.CodeResourceNotFound, "resource %s does not exist", resourceID).
			WithParam("resource", resourceID))
	}
	return fmt.Errorf("failed to load resource %s: %w", resourceID, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
