package scheduler

import (
	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/types"
)

func (t *Task) allocateResource(slot types.Interval, spec *specification.ResourceSpec) (*types.Reservation, error) {
	resourceID := spec.ResourceID
	resource, err := t.ctx.reader.GetResource(resourceID)
	if err != nil {
		return nil, notFound(resourceID, err)
	}
	if !t.ctx.state.Reference(resourceID) {
		return nil, report.Wrap(report.New(report.CodeResourceMultipleRequested,
			"resource %s is requested multiple times", resourceID).WithParam("resource", resourceID))
	}
	if !resource.IsAvailableAt(slot, t.ctx.now) {
		return nil, report.Wrap(report.New(report.CodeResourceNotAllocatable,
			"resource %s cannot be allocated for %s", resourceID, slot).WithParam("resource", resourceID))
	}

	reusable := t.ctx.state.Available(Reusable, func(r *types.Reservation) bool {
		return r.TargetID == resourceID && r.IsExclusive() && r.Slot.Contains(slot)
	})
	if len(reusable) > 0 {
		return t.reuse(reusable[0], slot), nil
	}

	overlapping, err := t.ctx.Overlapping(resourceID, slot)
	if err != nil {
		return nil, err
	}
	if len(overlapping) > 0 {
		return nil, report.Wrap(report.New(report.CodeResourceAlreadyAllocated,
			"resource %s is already allocated in %s", resourceID, slot).
			WithParam("resource", resourceID).
			WithParam("reservation", overlapping[0].ID))
	}

	reservation := &types.Reservation{
		Kind:     types.ReservationKindResource,
		Slot:     slot,
		TargetID: resourceID,
	}
	if resource.IsTerminal() {
		reservation.Kind = types.ReservationKindEndpoint
		reservation.EndpointID = resourceID
	}
	t.ctx.allocate(reservation)

	if resource.ParentID != "" && !t.ctx.state.IsReferenced(resource.ParentID) {
		parent, err := t.runChild(specification.NewResource(resource.ParentID), slot)
		if err != nil {
			return nil, err
		}
		reservation.AddChild(parent)
	}

	t.setReport(report.Info(report.CodeAllocatingResource, "allocated resource %s", resourceID).
		WithParam("resource", resourceID))
	return reservation, nil
}
