package scheduler

import (
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/valueprovider"
)

func (t *Task) allocateValue(slot types.Interval, spec *specification.ValueSpec) (*types.Reservation, error) {
	providerID := spec.ValueProviderID
	if _, _, err := t.ctx.ValueProvider(providerID); err != nil {
		return nil, err
	}

	switch len(spec.Values) {
	case 0:
		return t.generateValue(providerID, slot)
	case 1:
		return t.requestValue(providerID, spec.Values[0], slot)
	}
	root := t.ctx.allocate(&types.Reservation{Kind: types.ReservationKindCompound, Slot: slot})
	for _, value := range spec.Values {
		child, err := t.requestValue(providerID, value, slot)
		if err != nil {
			return nil, err
		}
		root.AddChild(child)
	}
	t.setReport(report.Info(report.CodeAllocatingValue, "allocated %d values from %s", len(spec.Values), providerID).
		WithParam("resource", providerID))
	return root, nil
}

// usedValues returns the values of providerID taken during slot
func (t *Task) usedValues(providerID string, slot types.Interval) (map[string]bool, error) {
	overlapping, err := t.ctx.Overlapping(providerID, slot)
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool, len(overlapping))
	for _, r := range overlapping {
		if r.Value != nil {
			used[r.Value.Value] = true
		}
	}
	return used, nil
}

func (t *Task) reusableValue(providerID, value string, slot types.Interval) *types.Reservation {
	reusable := t.ctx.state.Available(Reusable, func(r *types.Reservation) bool {
		return r.Kind == types.ReservationKindValue && r.TargetID == providerID &&
			r.Slot.Contains(slot) && (value == "" || r.Value.Value == value)
	})
	if len(reusable) == 0 {
		return nil
	}
	return reusable[0]
}

func (t *Task) requestValue(providerID, value string, slot types.Interval) (*types.Reservation, error) {
	_, provider, err := t.ctx.ValueProvider(providerID)
	if err != nil {
		return nil, err
	}
	if !provider.IsValid(value) {
		return nil, report.Wrap(report.New(report.CodeValueInvalid, "value %q is not valid for %s", value, providerID).
			WithParam("value", value).WithParam("resource", providerID))
	}
	if reusable := t.reusableValue(providerID, value, slot); reusable != nil {
		return t.reuse(reusable, slot), nil
	}
	used, err := t.usedValues(providerID, slot)
	if err != nil {
		return nil, err
	}
	if used[value] {
		return nil, report.Wrap(report.New(report.CodeValueAlreadyAllocated, "value %q of %s is already allocated", value, providerID).
			WithParam("value", value).WithParam("resource", providerID))
	}
	t.setReport(report.Info(report.CodeAllocatingValue, "allocated value %s", value).WithParam("value", value))
	return t.newValue(providerID, value, slot), nil
}

func (t *Task) generateValue(providerID string, slot types.Interval) (*types.Reservation, error) {
	if reusable := t.reusableValue(providerID, "", slot); reusable != nil {
		return t.reuse(reusable, slot), nil
	}
	used, err := t.usedValues(providerID, slot)
	if err != nil {
		return nil, err
	}

	reallocatable := t.ctx.state.Available(Reallocatable, func(r *types.Reservation) bool {
		return r.Kind == types.ReservationKindValue && r.TargetID == providerID && !used[r.Value.Value]
	})
	if len(reallocatable) > 0 {
		value := reallocatable[0].Value.Value
		t.ctx.state.Consume(reallocatable[0].ID)
		t.setReport(report.Info(report.CodeReallocatingValue, "keeping value %s", value).WithParam("value", value))
		return t.newValue(providerID, value, slot), nil
	}

	_, provider, err := t.ctx.ValueProvider(providerID)
	if err != nil {
		return nil, err
	}
	value, err := provider.Generate(used)
	if errors.Is(err, valueprovider.ErrExhausted) {
		return nil, report.Wrap(report.New(report.CodeValueNotAvailable, "value provider %s has no free value", providerID).
			WithParam("resource", providerID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate value from %s: %w", providerID, err)
	}
	t.setReport(report.Info(report.CodeAllocatingValue, "allocated value %s", value).WithParam("value", value))
	return t.newValue(providerID, value, slot), nil
}

func (t *Task) newValue(providerID, value string, slot types.Interval) *types.Reservation {
	return t.ctx.allocate(&types.Reservation{
		Kind:     types.ReservationKindValue,
		Slot:     slot,
		TargetID: providerID,
		Value:    &types.ValueReservation{Value: value},
	})
}
