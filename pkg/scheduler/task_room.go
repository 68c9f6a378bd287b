package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/types"
	"go.uber.org/multierr"
)

type roomCandidate struct {
	resource     *types.Resource
	technologies []types.Technology
	used         int
}

func (c roomCandidate) licenseCount() int {
	return c.resource.Capabilities.RoomProvider.LicenseCount
}

func (c roomCandidate) free() int {
	return c.licenseCount() - c.used
}

func (t *Task) allocateRoom(requested types.Interval, spec *specification.RoomSpec) (*types.Reservation, error) {
	slot := requested.Extend(
		time.Duration(spec.SlotMinutesBefore)*time.Minute,
		time.Duration(spec.SlotMinutesAfter)*time.Minute,
	).ClipStart(t.ctx.now)

	reusable := t.ctx.state.Available(Reusable, func(r *types.Reservation) bool {
		return r.Kind == types.ReservationKindRoom && r.Room != nil &&
			r.Slot.Contains(slot) && r.Room.LicenseCount >= spec.ParticipantCount &&
			coversVariant(r.Room.Technologies, spec.Variants) != nil
	})
	if len(reusable) > 0 {
		return t.reuse(reusable[0], slot), nil
	}

	resources, err := t.ctx.reader.ListResources()
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	var candidates []roomCandidate
	var errs error
	singleLimitOnly := true
	for _, resource := range resources {
		rp := resource.Capabilities.RoomProvider
		if rp == nil {
			continue
		}
		if spec.DeviceResourceID != "" && resource.ID != spec.DeviceResourceID {
			continue
		}
		variant := coversVariant(resource.Technologies, spec.Variants)
		if variant == nil || !resource.IsAvailableAt(slot, t.ctx.now) {
			continue
		}
		if rp.MaxLicencesPerRoom > 0 && spec.ParticipantCount > rp.MaxLicencesPerRoom {
			errs = multierr.Append(errs, report.Wrap(report.New(report.CodeRoomSingleLimitExceeded,
				"device %s allows at most %d licenses per room", resource.ID, rp.MaxLicencesPerRoom).
				WithParam("resource", resource.ID)))
			continue
		}
		used, err := t.usedLicenses(resource, slot)
		if err != nil {
			return nil, err
		}
		candidate := roomCandidate{resource: resource, technologies: variant, used: used}
		if candidate.free() < spec.ParticipantCount {
			singleLimitOnly = false
			errs = multierr.Append(errs, report.Wrap(report.New(report.CodeRoomCapacityExceeded,
				"device %s has %d of %d licenses free, %d requested",
				resource.ID, max(candidate.free(), 0), candidate.licenseCount(), spec.ParticipantCount).
				WithParam("resource", resource.ID)))
			continue
		}
		candidates = append(candidates, candidate)
	}

	if len(candidates) == 0 {
		switch {
		case errs == nil:
			return nil, report.Errorf(report.CodeRoomNotAvailable, "no device supports the requested technologies")
		case singleLimitOnly:
			return nil, report.Combine(report.CodeRoomSingleLimitExceeded, errs, "requested room exceeds the per room limit of every device")
		default:
			return nil, report.Combine(report.CodeRoomCapacityExceeded, errs, "not enough free licenses for %d participants", spec.ParticipantCount)
		}
	}

	// Fuller devices first, then larger ones; declaration order otherwise.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ua, ub := a.used*b.licenseCount(), b.used*a.licenseCount(); ua != ub {
			return ua > ub
		}
		return a.licenseCount() > b.licenseCount()
	})

	for _, candidate := range candidates {
		sp := t.ctx.state.Savepoint()
		reservation, err := t.allocateRoomOn(candidate, slot, spec)
		if err == nil {
			sp.Destroy()
			t.setReport(report.Info(report.CodeAllocatingRoom, "allocated %d licenses on %s",
				spec.ParticipantCount, candidate.resource.ID).WithParam("resource", candidate.resource.ID))
			return reservation, nil
		}
		sp.Revert()
		if !isReportError(err) {
			return nil, err
		}
		errs = multierr.Append(errs, err)
	}
	return nil, report.Combine(report.CodeRoomNotAvailable, errs, "no device could provide the room")
}

// usedLicenses returns the maximum number of licenses held concurrently on
// resource during slot. An exclusive reservation takes every license.
func (t *Task) usedLicenses(resource *types.Resource, slot types.Interval) (int, error) {
	overlapping, err := t.ctx.Overlapping(resource.ID, slot)
	if err != nil {
		return 0, err
	}
	var rooms []*types.Reservation
	for _, r := range overlapping {
		if r.IsExclusive() {
			return resource.Capabilities.RoomProvider.LicenseCount, nil
		}
		if r.Kind == types.ReservationKindRoom {
			rooms = append(rooms, r)
		}
	}
	return maxConcurrentLicenses(rooms), nil
}

// maxConcurrentLicenses sweeps slot boundaries and returns the peak sum of
// licenses held at once.
func maxConcurrentLicenses(reservations []*types.Reservation) int {
	type edge struct {
		at    time.Time
		delta int
	}
	edges := make([]edge, 0, 2*len(reservations))
	for _, r := range reservations {
		edges = append(edges, edge{r.Slot.Start, r.LicenseCount()}, edge{r.Slot.End, -r.LicenseCount()})
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].at.Equal(edges[j].at) {
			return edges[i].at.Before(edges[j].at)
		}
		return edges[i].delta < edges[j].delta
	})
	current, peak := 0, 0
	for _, e := range edges {
		current += e.delta
		peak = max(peak, current)
	}
	return peak
}

// coversVariant returns the first variant fully supported by technologies
func coversVariant(technologies []types.Technology, variants [][]types.Technology) []types.Technology {
	for _, variant := range variants {
		if types.TechnologySet(technologies).ContainsAll(variant) {
			return variant
		}
	}
	return nil
}

func (t *Task) allocateRoomOn(c roomCandidate, slot types.Interval, spec *specification.RoomSpec) (*types.Reservation, error) {
	room := t.ctx.allocate(&types.Reservation{
		Kind:       types.ReservationKindRoom,
		Slot:       slot,
		TargetID:   c.resource.ID,
		EndpointID: t.ctx.ids.NewID(),
		Room: &types.RoomReservation{
			LicenseCount: spec.ParticipantCount,
			Technologies: c.technologies,
		},
	})
	if !spec.WithAlias {
		return room, nil
	}
	var covered []types.Alias
	for _, aliasSpec := range roomAliases(c, spec) {
		if aliasesCover(covered, aliasSpec) {
			continue
		}
		alias, err := t.runChild(specification.NewAlias(aliasSpec), slot)
		if err != nil {
			return nil, err
		}
		alias.EndpointID = room.EndpointID
		room.AddChild(alias)
		aliases, err := t.aliasesOf(alias)
		if err != nil {
			return nil, err
		}
		covered = append(covered, aliases...)
	}
	return room, nil
}

// roomAliases returns one alias request per required alias type, or one
// per room technology when no type is required.
func roomAliases(c roomCandidate, spec *specification.RoomSpec) []specification.AliasSpec {
	aliasTypes := spec.AliasTypes
	if len(aliasTypes) == 0 {
		aliasTypes = c.resource.Capabilities.RoomProvider.RequiredAliasTypes
	}
	var result []specification.AliasSpec
	if len(aliasTypes) > 0 {
		for _, aliasType := range aliasTypes {
			result = append(result, specification.AliasSpec{
				AliasTypes: []types.AliasType{aliasType},
				ResourceID: c.resource.ID,
			})
		}
		return result
	}
	for _, technology := range c.technologies {
		result = append(result, specification.AliasSpec{
			Technologies: []types.Technology{technology},
			ResourceID:   c.resource.ID,
		})
	}
	return result
}
