package scheduler

import (
	"fmt"
	"strings"

	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/types"
	"go.uber.org/multierr"
)

type aliasCandidate struct {
	resource *types.Resource
	provider *types.AliasProviderCapability
}

func (c aliasCandidate) target() string {
	return aliasTarget(c.resource.ID, c.provider.ID)
}

// valueProviderID returns the value provider filling the alias templates,
// "" for single occupancy providers.
func (c aliasCandidate) valueProviderID() string {
	if !c.provider.UsesValue() {
		return ""
	}
	if c.provider.ValueProviderID != "" {
		return c.provider.ValueProviderID
	}
	if c.resource.Capabilities.ValueProvider != nil {
		return c.resource.ID
	}
	return ""
}

// aliasTarget identifies an alias provider as a reservation target
func aliasTarget(resourceID, providerID string) string {
	return resourceID + "/" + providerID
}

func (t *Task) aliasCandidates(slot types.Interval, spec *specification.AliasSpec) ([]aliasCandidate, error) {
	resources, err := t.ctx.reader.ListResources()
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	var candidates []aliasCandidate
	for _, resource := range resources {
		if !resource.IsAvailableAt(slot, t.ctx.now) {
			continue
		}
		for _, provider := range resource.Capabilities.AliasProviders {
			candidate := aliasCandidate{resource: resource, provider: provider}
			ok, err := t.acceptsAlias(candidate, spec)
			if err != nil {
				return nil, err
			}
			if ok {
				candidates = append(candidates, candidate)
			}
		}
	}
	return candidates, nil
}

func (t *Task) acceptsAlias(c aliasCandidate, spec *specification.AliasSpec) (bool, error) {
	if spec.ProviderID != "" && c.provider.ID != spec.ProviderID {
		return false, nil
	}
	if c.provider.RestrictedToResource && c.resource.ID != spec.ResourceID {
		return false, nil
	}
	if spec.PermanentRoom && !c.provider.PermanentRoom {
		return false, nil
	}
	if len(spec.Technologies) > 0 && !c.provider.Technologies().ContainsAll(spec.Technologies) {
		return false, nil
	}
	for _, aliasType := range spec.AliasTypes {
		if !c.provider.ProvidesAliasType(aliasType) {
			return false, nil
		}
	}
	if spec.Value != "" {
		providerID := c.valueProviderID()
		if providerID == "" {
			return false, nil
		}
		_, provider, err := t.ctx.ValueProvider(providerID)
		if err != nil {
			if isReportError(err) {
				return false, nil
			}
			return false, err
		}
		if !provider.IsValid(spec.Value) {
			return false, nil
		}
	}
	return true, nil
}

func (t *Task) allocateAlias(slot types.Interval, spec *specification.AliasSpec) (*types.Reservation, error) {
	candidates, err := t.aliasCandidates(slot, spec)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, report.Wrap(report.New(report.CodeAliasNotAvailable, "no alias provider matches").
			WithParam("technologies", joinTechnologies(spec.Technologies)))
	}

	for _, candidate := range candidates {
		reusable := t.ctx.state.Available(Reusable, func(r *types.Reservation) bool {
			return r.Kind == types.ReservationKindAlias && r.Alias != nil &&
				r.Alias.ResourceID == candidate.resource.ID &&
				r.Alias.ProviderID == candidate.provider.ID &&
				r.Slot.Contains(slot) && t.reservesValue(r, spec.Value)
		})
		if len(reusable) > 0 {
			return t.reuse(reusable[0], slot), nil
		}
	}

	var errs error
	for _, candidate := range candidates {
		sp := t.ctx.state.Savepoint()
		reservation, err := t.allocateAliasFrom(candidate, slot, spec)
		if err == nil {
			sp.Destroy()
			t.setReport(report.Info(report.CodeAllocatingAlias, "allocated alias from %s", candidate.target()).
				WithParam("resource", candidate.resource.ID).
				WithParam("provider", candidate.provider.ID))
			return reservation, nil
		}
		sp.Revert()
		if !isReportError(err) {
			return nil, err
		}
		errs = multierr.Append(errs, err)
	}
	return nil, report.Combine(report.CodeAliasNotAvailable, errs, "no alias available from %d providers", len(candidates))
}

func (t *Task) allocateAliasFrom(c aliasCandidate, slot types.Interval, spec *specification.AliasSpec) (*types.Reservation, error) {
	reservation := &types.Reservation{
		Kind:     types.ReservationKindAlias,
		Slot:     slot,
		TargetID: c.target(),
		Alias: &types.AliasReservation{
			ResourceID:    c.resource.ID,
			ProviderID:    c.provider.ID,
			PermanentRoom: c.provider.PermanentRoom,
		},
	}

	var valueReservation *types.Reservation
	value := ""
	if providerID := c.valueProviderID(); providerID != "" {
		valueSpec := specification.NewValue(providerID)
		if spec.Value != "" {
			valueSpec = specification.NewValue(providerID, spec.Value)
		}
		child, err := t.runChild(valueSpec, slot)
		if err != nil {
			return nil, err
		}
		valueReservation = child
		value = child.Value.Value
	} else {
		overlapping, err := t.ctx.Overlapping(c.target(), slot)
		if err != nil {
			return nil, err
		}
		if len(overlapping) > 0 {
			return nil, report.Wrap(report.New(report.CodeAliasAlreadyAllocated,
				"alias provider %s is already allocated in %s", c.target(), slot).
				WithParam("resource", c.resource.ID).
				WithParam("provider", c.provider.ID))
		}
	}

	for _, alias := range c.provider.Aliases {
		alias.Value = strings.ReplaceAll(alias.Value, types.ValuePlaceholder, value)
		reservation.Alias.Aliases = append(reservation.Alias.Aliases, alias)
	}

	t.ctx.allocate(reservation)
	if valueReservation != nil {
		reservation.AddChild(valueReservation)
	}
	return reservation, nil
}

// reservesValue reports whether the alias reservation r was allocated for
// value: the value of its value child when it has one, otherwise one of
// its aliases verbatim.
func (t *Task) reservesValue(r *types.Reservation, value string) bool {
	if value == "" {
		return true
	}
	for _, childID := range r.ChildIDs {
		child, err := t.ctx.reader.GetReservation(childID)
		if err != nil {
			continue
		}
		if child.Kind == types.ReservationKindValue && child.Value != nil {
			return child.Value.Value == value
		}
	}
	for _, alias := range r.Alias.Aliases {
		if alias.Value == value {
			return true
		}
	}
	return false
}

// aliasesOf returns the aliases an alias reservation grants, following
// existing reservations to the reused one.
func (t *Task) aliasesOf(r *types.Reservation) ([]types.Alias, error) {
	if r.Alias != nil {
		return r.Alias.Aliases, nil
	}
	if r.Existing == nil {
		return nil, nil
	}
	reused, err := t.ctx.reader.GetReservation(r.Existing.ReservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reused reservation %s: %w", r.Existing.ReservationID, err)
	}
	return t.aliasesOf(reused)
}

// aliasesCover reports whether aliases already satisfy spec
func aliasesCover(aliases []types.Alias, spec specification.AliasSpec) bool {
	if len(aliases) == 0 {
		return false
	}
	var aliasTypes []types.AliasType
	var technologies types.TechnologySet
	for _, alias := range aliases {
		aliasTypes = append(aliasTypes, alias.Type)
		if technology := alias.Technology(); technology != "" {
			technologies = append(technologies, technology)
		}
	}
	for _, aliasType := range spec.AliasTypes {
		found := false
		for _, provided := range aliasTypes {
			found = found || provided == aliasType
		}
		if !found {
			return false
		}
	}
	return technologies.ContainsAll(spec.Technologies)
}

func joinTechnologies(technologies []types.Technology) string {
	parts := make([]string, len(technologies))
	for i, technology := range technologies {
		parts[i] = string(technology)
	}
	return strings.Join(parts, ",")
}

func (t *Task) allocateAliasSet(slot types.Interval, spec *specification.AliasSetSpec) (*types.Reservation, error) {
	root, err := t.allocateCompound(slot, spec.Aliases)
	if err != nil {
		return nil, err
	}
	if spec.SharedExecutable {
		root.EndpointID = t.ctx.ids.NewID()
		for _, reservation := range t.ctx.state.Allocated() {
			if reservation.ParentID == root.ID {
				reservation.EndpointID = root.EndpointID
			}
		}
	}
	t.setReport(report.Info(report.CodeAllocatingAliasSet, "allocated %d aliases", len(root.ChildIDs)))
	return root, nil
}
