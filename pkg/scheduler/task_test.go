package scheduler

import (
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func interval(fromHour, fromMinute, toHour, toMinute int) types.Interval {
	return types.NewInterval(at(fromHour, fromMinute), at(toHour, toMinute))
}

type fixture struct {
	t         *testing.T
	now       time.Time
	store     *storage.BoltStore
	scheduler *Scheduler
}

func newFixture(t *testing.T, resources ...*types.Resource) *fixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{t: t, now: at(8, 0), store: store}
	for i, resource := range resources {
		resource.CreatedAt = day.Add(time.Duration(i) * time.Second)
	}
	require.NoError(t, store.ApplyChanges(&storage.ChangeSet{PutResources: resources}))
	f.scheduler = NewScheduler(store,
		WithClock(func() time.Time { return f.now }),
		WithIDGenerator(types.NewSequenceGenerator("id")),
	)
	return f
}

func (f *fixture) persist(reservations ...*types.Reservation) {
	f.t.Helper()
	require.NoError(f.t, f.store.ApplyChanges(&storage.ChangeSet{PutReservations: reservations}))
}

func (f *fixture) dryRun(spec *specification.Specification, slot types.Interval) (*Outcome, error) {
	return f.scheduler.DryRun(spec, slot, DryRunOptions{IDs: types.NewSequenceGenerator("t")})
}

func mcu(id string, licenses int, technologies ...types.Technology) *types.Resource {
	return &types.Resource{
		ID:           id,
		Allocatable:  true,
		Technologies: technologies,
		Capabilities: types.Capabilities{
			RoomProvider: &types.RoomProviderCapability{LicenseCount: licenses},
		},
	}
}

func device(id string) *types.Resource {
	return &types.Resource{ID: id, Allocatable: true}
}

func valueProvider(id string, patterns ...string) *types.Resource {
	return &types.Resource{
		ID:           id,
		Allocatable:  true,
		Capabilities: types.Capabilities{ValueProvider: &types.ValueProviderCapability{Patterns: patterns}},
	}
}

func busy(id, target string, slot types.Interval) *types.Reservation {
	return &types.Reservation{ID: id, Kind: types.ReservationKindResource, TargetID: target, Slot: slot}
}

func roomSpec(count int, technologies ...types.Technology) *specification.Specification {
	return specification.NewRoom(specification.RoomSpec{
		Variants:         [][]types.Technology{technologies},
		ParticipantCount: count,
	})
}

func childrenOf(outcome *Outcome, parentID string) []*types.Reservation {
	var children []*types.Reservation
	for _, r := range outcome.Reservations {
		if r.ParentID == parentID {
			children = append(children, r)
		}
	}
	return children
}

func assertCode(t *testing.T, err error, code report.Code) {
	t.Helper()
	require.Error(t, err)
	var reportErr *report.Error
	require.ErrorAs(t, err, &reportErr)
	assert.Equal(t, code, reportErr.Code(), reportErr.Report.String())
}

func TestRoomWithinCapacity(t *testing.T) {
	f := newFixture(t, mcu("mcu", 10, types.TechnologyH323))

	outcome, err := f.dryRun(roomSpec(5, types.TechnologyH323), interval(10, 0, 11, 0))
	require.NoError(t, err)

	root := outcome.Root
	assert.Equal(t, types.ReservationKindRoom, root.Kind)
	assert.Equal(t, "mcu", root.TargetID)
	assert.Equal(t, 5, root.LicenseCount())
	assert.True(t, root.Slot.Equal(interval(10, 0, 11, 0)))
	assert.NotEmpty(t, root.EndpointID)
}

func TestRoomCapacityExceeded(t *testing.T) {
	f := newFixture(t, mcu("mcu", 10, types.TechnologyH323))
	f.persist(&types.Reservation{
		ID:       "existing",
		Kind:     types.ReservationKindRoom,
		TargetID: "mcu",
		Slot:     interval(10, 30, 10, 45),
		Room:     &types.RoomReservation{LicenseCount: 8},
	})

	_, err := f.dryRun(roomSpec(5, types.TechnologyH323), interval(10, 0, 11, 0))
	assertCode(t, err, report.CodeRoomCapacityExceeded)
	assert.ErrorIs(t, err, report.ErrCapacity)

	outcome, err := f.dryRun(roomSpec(2, types.TechnologyH323), interval(10, 0, 11, 0))
	require.NoError(t, err, "8+2 fits into 10 licenses")
	assert.Equal(t, 2, outcome.Root.LicenseCount())
}

func TestRoomDeviceSelection(t *testing.T) {
	tests := []struct {
		name  string
		usage []*types.Reservation
		spec  specification.RoomSpec
		want  string
		code  report.Code
	}{
		{
			name: "larger device when both idle",
			spec: specification.RoomSpec{Variants: [][]types.Technology{{types.TechnologySIP}}, ParticipantCount: 2},
			want: "big",
		},
		{
			name: "fuller device first",
			usage: []*types.Reservation{{
				ID: "u1", Kind: types.ReservationKindRoom, TargetID: "small", Slot: interval(9, 0, 12, 0),
				Room: &types.RoomReservation{LicenseCount: 5},
			}},
			spec: specification.RoomSpec{Variants: [][]types.Technology{{types.TechnologySIP}}, ParticipantCount: 2},
			want: "small",
		},
		{
			name:  "exclusive reservation takes every license",
			usage: []*types.Reservation{busy("u1", "big", interval(9, 0, 12, 0))},
			spec:  specification.RoomSpec{Variants: [][]types.Technology{{types.TechnologySIP}}, ParticipantCount: 12},
			code:  report.CodeRoomCapacityExceeded,
		},
		{
			name: "pinned device",
			spec: specification.RoomSpec{
				Variants: [][]types.Technology{{types.TechnologySIP}}, ParticipantCount: 2, DeviceResourceID: "small",
			},
			want: "small",
		},
		{
			name: "second variant",
			spec: specification.RoomSpec{
				Variants:         [][]types.Technology{{types.TechnologyAdobeConnect}, {types.TechnologyH323}},
				ParticipantCount: 2,
			},
			want: "small",
		},
		{
			name: "no technology match",
			spec: specification.RoomSpec{Variants: [][]types.Technology{{types.TechnologySkype}}, ParticipantCount: 2},
			code: report.CodeRoomNotAvailable,
		},
		{
			name: "single room limit",
			spec: specification.RoomSpec{
				Variants: [][]types.Technology{{types.TechnologyH323}}, ParticipantCount: 5, DeviceResourceID: "small",
			},
			code: report.CodeRoomSingleLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			small := mcu("small", 10, types.TechnologySIP, types.TechnologyH323)
			small.Capabilities.RoomProvider.MaxLicencesPerRoom = 4
			f := newFixture(t, small, mcu("big", 20, types.TechnologySIP))
			if len(tt.usage) > 0 {
				f.persist(tt.usage...)
			}

			outcome, err := f.dryRun(specification.NewRoom(tt.spec), interval(10, 0, 11, 0))
			if tt.code != "" {
				assertCode(t, err, tt.code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome.Root.TargetID)
		})
	}
}

func TestRoomSlotExtension(t *testing.T) {
	f := newFixture(t, mcu("mcu", 10, types.TechnologyH323))
	spec := specification.NewRoom(specification.RoomSpec{
		Variants:          [][]types.Technology{{types.TechnologyH323}},
		ParticipantCount:  2,
		SlotMinutesBefore: 15,
		SlotMinutesAfter:  10,
	})

	outcome, err := f.dryRun(spec, interval(10, 0, 11, 0))
	require.NoError(t, err)
	assert.True(t, outcome.Root.Slot.Equal(interval(9, 45, 11, 10)))
}

func TestRoomWithAliases(t *testing.T) {
	room := mcu("mcu", 10, types.TechnologyH323, types.TechnologySIP)
	room.Capabilities.ValueProvider = &types.ValueProviderCapability{Patterns: []string{"{digit:3}"}}
	room.Capabilities.AliasProviders = []*types.AliasProviderCapability{{
		ID: "numbers",
		Aliases: []types.Alias{
			{Type: types.AliasTypeH323E164, Value: "950{value}"},
			{Type: types.AliasTypeSIPURI, Value: "950{value}@mcu.example.org"},
		},
		RestrictedToResource: true,
	}}
	f := newFixture(t, room)

	spec := specification.NewRoom(specification.RoomSpec{
		Variants:         [][]types.Technology{{types.TechnologyH323, types.TechnologySIP}},
		ParticipantCount: 3,
		WithAlias:        true,
	})
	outcome, err := f.dryRun(spec, interval(10, 0, 11, 0))
	require.NoError(t, err)

	aliases := childrenOf(outcome, outcome.Root.ID)
	require.Len(t, aliases, 1, "one provider covers both technologies")
	alias := aliases[0]
	assert.Equal(t, types.ReservationKindAlias, alias.Kind)
	assert.Equal(t, outcome.Root.EndpointID, alias.EndpointID)
	assert.Equal(t, []types.Alias{
		{Type: types.AliasTypeH323E164, Value: "950001"},
		{Type: types.AliasTypeSIPURI, Value: "950001@mcu.example.org"},
	}, alias.Alias.Aliases)

	values := childrenOf(outcome, alias.ID)
	require.Len(t, values, 1)
	assert.Equal(t, "001", values[0].Value.Value)
}

func TestAliasSetSharedExecutable(t *testing.T) {
	gatekeeper := valueProvider("gatekeeper", "{digit:3}")
	gatekeeper.Capabilities.AliasProviders = []*types.AliasProviderCapability{
		{ID: "e164", Aliases: []types.Alias{{Type: types.AliasTypeH323E164, Value: "9500{value}"}}},
		{ID: "sip", Aliases: []types.Alias{{Type: types.AliasTypeSIPURI, Value: "{value}@example.org"}}},
	}
	f := newFixture(t, gatekeeper)

	spec := specification.NewAliasSet(true,
		specification.NewAlias(specification.AliasSpec{AliasTypes: []types.AliasType{types.AliasTypeH323E164}}),
		specification.NewAlias(specification.AliasSpec{AliasTypes: []types.AliasType{types.AliasTypeSIPURI}}),
	)
	outcome, err := f.dryRun(spec, interval(9, 0, 10, 0))
	require.NoError(t, err)

	root := outcome.Root
	assert.Equal(t, types.ReservationKindCompound, root.Kind)
	aliases := childrenOf(outcome, root.ID)
	require.Len(t, aliases, 2)
	assert.NotEmpty(t, root.EndpointID)
	for _, alias := range aliases {
		assert.Equal(t, types.ReservationKindAlias, alias.Kind)
		assert.Equal(t, root.EndpointID, alias.EndpointID)
	}
	assert.Equal(t, "9500001", aliases[0].Alias.Aliases[0].Value)
	assert.Equal(t, "002@example.org", aliases[1].Alias.Aliases[0].Value)
}

func TestAliasSingleOccupancy(t *testing.T) {
	gateway := device("gateway")
	gateway.Capabilities.AliasProviders = []*types.AliasProviderCapability{
		{ID: "fixed", Aliases: []types.Alias{{Type: types.AliasTypeSIPURI, Value: "meet@example.org"}}},
	}
	f := newFixture(t, gateway)
	spec := specification.NewAlias(specification.AliasSpec{Technologies: []types.Technology{types.TechnologySIP}})

	outcome, err := f.dryRun(spec, interval(9, 0, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, "gateway/fixed", outcome.Root.TargetID)

	f.persist(&types.Reservation{
		ID: "taken", Kind: types.ReservationKindAlias, TargetID: "gateway/fixed", Slot: interval(9, 30, 11, 0),
	})
	_, err = f.dryRun(spec, interval(9, 0, 10, 0))
	assertCode(t, err, report.CodeAliasNotAvailable)

	_, err = f.dryRun(specification.NewAlias(specification.AliasSpec{
		Technologies: []types.Technology{types.TechnologyH323},
	}), interval(9, 0, 10, 0))
	assertCode(t, err, report.CodeAliasNotAvailable)
}

func TestAliasReuseMatchesValueExactly(t *testing.T) {
	gateway := valueProvider("gateway", "room{number:1:20}")
	gateway.Capabilities.AliasProviders = []*types.AliasProviderCapability{
		{ID: "rooms", Aliases: []types.Alias{{Type: types.AliasTypeSIPURI, Value: "{value}@example.org"}}},
	}
	f := newFixture(t, gateway)
	f.persist(
		&types.Reservation{
			ID:           "shared-alias",
			Kind:         types.ReservationKindAlias,
			AllocationID: "shared",
			TargetID:     "gateway/rooms",
			Slot:         interval(9, 0, 12, 0),
			ChildIDs:     []string{"shared-value"},
			Alias: &types.AliasReservation{
				ResourceID: "gateway",
				ProviderID: "rooms",
				Aliases:    []types.Alias{{Type: types.AliasTypeSIPURI, Value: "room10@example.org"}},
			},
		},
		&types.Reservation{
			ID:           "shared-value",
			Kind:         types.ReservationKindValue,
			AllocationID: "shared",
			ParentID:     "shared-alias",
			TargetID:     "gateway",
			Slot:         interval(9, 0, 12, 0),
			Value:        &types.ValueReservation{Value: "room10"},
		},
	)

	tests := []struct {
		name   string
		value  string
		reused bool
	}{
		{"same value", "room10", true},
		{"value prefix", "room1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := specification.NewAlias(specification.AliasSpec{
				Technologies: []types.Technology{types.TechnologySIP},
				Value:        tt.value,
			})
			outcome, err := f.scheduler.DryRun(spec, interval(10, 0, 11, 0), DryRunOptions{
				IDs:                types.NewSequenceGenerator("t"),
				ReusedAllocationID: "shared",
			})
			require.NoError(t, err)
			if tt.reused {
				assert.Equal(t, types.ReservationKindExisting, outcome.Root.Kind)
				assert.Equal(t, "shared-alias", outcome.Root.Existing.ReservationID)
				return
			}
			assert.Equal(t, types.ReservationKindAlias, outcome.Root.Kind)
			assert.Equal(t, tt.value+"@example.org", outcome.Root.Alias.Aliases[0].Value)
		})
	}
}

func TestValueGeneration(t *testing.T) {
	f := newFixture(t, valueProvider("names", "room-{digit:3}"))
	for i, value := range []string{"room-001", "room-002", "room-003", "room-004", "room-005"} {
		f.persist(&types.Reservation{
			ID:       "used-" + value,
			Kind:     types.ReservationKindValue,
			TargetID: "names",
			Slot:     interval(9+i%2, 0, 12, 0),
			Value:    &types.ValueReservation{Value: value},
		})
	}

	outcome, err := f.dryRun(specification.NewValue("names"), interval(10, 0, 11, 0))
	require.NoError(t, err)
	assert.Equal(t, types.ReservationKindValue, outcome.Root.Kind)
	assert.Equal(t, "room-006", outcome.Root.Value.Value)
}

func TestRequestedValues(t *testing.T) {
	f := newFixture(t, valueProvider("names", "room-{digit:3}"))
	f.persist(&types.Reservation{
		ID: "used", Kind: types.ReservationKindValue, TargetID: "names", Slot: interval(9, 0, 12, 0),
		Value: &types.ValueReservation{Value: "room-001"},
	})

	tests := []struct {
		name   string
		values []string
		code   report.Code
	}{
		{"free", []string{"room-007"}, ""},
		{"several", []string{"room-007", "room-008"}, ""},
		{"taken", []string{"room-001"}, report.CodeValueAlreadyAllocated},
		{"duplicate", []string{"room-007", "room-007"}, report.CodeValueAlreadyAllocated},
		{"invalid", []string{"hall-1"}, report.CodeValueInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := f.dryRun(specification.NewValue("names", tt.values...), interval(10, 0, 11, 0))
			if tt.code != "" {
				assertCode(t, err, tt.code)
				return
			}
			require.NoError(t, err)
			if len(tt.values) > 1 {
				assert.Equal(t, types.ReservationKindCompound, outcome.Root.Kind)
				assert.Len(t, childrenOf(outcome, outcome.Root.ID), len(tt.values))
			} else {
				assert.Equal(t, tt.values[0], outcome.Root.Value.Value)
			}
		})
	}
}

func TestValueProviderExhausted(t *testing.T) {
	f := newFixture(t, valueProvider("numbers", "x{digit:1}"))
	for i := 1; i <= 9; i++ {
		value := "x" + string(rune('0'+i))
		f.persist(&types.Reservation{
			ID: "used-" + value, Kind: types.ReservationKindValue, TargetID: "numbers", Slot: interval(9, 0, 12, 0),
			Value: &types.ValueReservation{Value: value},
		})
	}

	_, err := f.dryRun(specification.NewValue("numbers"), interval(10, 0, 11, 0))
	assertCode(t, err, report.CodeValueNotAvailable)
	assert.ErrorIs(t, err, report.ErrProvider)
}

func TestResourceAllocation(t *testing.T) {
	codec := device("codec")
	codec.Capabilities.Terminal = &types.TerminalCapability{}
	rack := device("rack")
	codec.ParentID = "rack"
	limited := device("limited")
	limited.MaximumFuture = time.Hour
	disabled := device("disabled")
	disabled.Allocatable = false

	tests := []struct {
		name string
		spec *specification.Specification
		slot types.Interval
		code report.Code
	}{
		{"missing", specification.NewResource("nope"), interval(9, 0, 10, 0), report.CodeResourceNotFound},
		{"not allocatable", specification.NewResource("disabled"), interval(9, 0, 10, 0), report.CodeResourceNotAllocatable},
		{"beyond maximum future", specification.NewResource("limited"), interval(9, 0, 10, 0), report.CodeResourceNotAllocatable},
		{"within maximum future", specification.NewResource("limited"), interval(8, 0, 9, 0), ""},
		{"busy", specification.NewResource("busy"), interval(9, 0, 10, 0), report.CodeResourceAlreadyAllocated},
		{"in the past", specification.NewResource("codec"), interval(6, 0, 7, 0), report.CodeSlotInPast},
		{"empty slot", specification.NewResource("codec"), interval(9, 0, 9, 0), report.CodeSlotEmpty},
		{"requested twice", specification.NewCompartment(
			specification.NewResource("limited"), specification.NewResource("limited"),
		), interval(8, 0, 9, 0), report.CodeResourceMultipleRequested},
	}

	f := newFixture(t, rack, codec, limited, disabled, device("busy"))
	f.persist(busy("b1", "busy", interval(9, 30, 10, 30)))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dryRun(tt.spec, tt.slot)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assertCode(t, err, tt.code)
		})
	}

	t.Run("terminal with parent", func(t *testing.T) {
		outcome, err := f.dryRun(specification.NewResource("codec"), interval(9, 0, 10, 0))
		require.NoError(t, err)
		assert.Equal(t, types.ReservationKindEndpoint, outcome.Root.Kind)
		assert.Equal(t, "codec", outcome.Root.EndpointID)
		parents := childrenOf(outcome, outcome.Root.ID)
		require.Len(t, parents, 1)
		assert.Equal(t, "rack", parents[0].TargetID)
	})
}

func TestSlotStartClippedToNow(t *testing.T) {
	f := newFixture(t, device("codec"))
	f.now = at(9, 30)

	outcome, err := f.dryRun(specification.NewResource("codec"), interval(9, 0, 10, 0))
	require.NoError(t, err)
	assert.True(t, outcome.Root.Slot.Equal(interval(9, 30, 10, 0)))
}

func TestFailedTaskLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, device("a"), device("b"))
	f.persist(busy("b1", "b", interval(9, 0, 10, 0)))
	spec := specification.NewCompartment(specification.NewResource("a"), specification.NewResource("b"))

	err := f.store.View(func(reader storage.Reader) error {
		ctx := NewContext(reader, f.now, types.NewSequenceGenerator("t"))
		_, err := NewTask(ctx, spec, interval(9, 0, 10, 0)).Perform()
		assertCode(t, err, report.CodeResourceAlreadyAllocated)
		assert.Empty(t, ctx.State().Allocated())
		assert.False(t, ctx.State().IsReferenced("a"))
		assert.Empty(t, ctx.State().AllocatedOverlapping("a", interval(9, 0, 10, 0)))
		return nil
	})
	require.NoError(t, err)
}

func TestOptionalChildSkipped(t *testing.T) {
	f := newFixture(t, device("a"), device("b"))
	f.persist(busy("b1", "b", interval(9, 0, 10, 0)))
	optional := specification.NewResource("b")
	optional.Optional = true

	outcome, err := f.dryRun(specification.NewCompartment(specification.NewResource("a"), optional), interval(9, 0, 10, 0))
	require.NoError(t, err)

	children := childrenOf(outcome, outcome.Root.ID)
	require.Len(t, children, 1)
	assert.Equal(t, "a", children[0].TargetID)
	assert.Len(t, outcome.Reservations, 2)

	skipped := outcome.Report.Find(report.CodeOptionalChildSkipped)
	require.NotNil(t, skipped)
	assert.Equal(t, report.SeverityWarning, skipped.Severity)
	assert.NotNil(t, skipped.Find(report.CodeResourceAlreadyAllocated))
}

func TestCompartmentImplicitRoom(t *testing.T) {
	f := newFixture(t, mcu("mcu", 10, types.TechnologyH323))
	spec := specification.NewCompartment()
	spec.Compartment.Participants = []*specification.Participant{
		{ID: "p1", Kind: specification.ParticipantExternalEndpoint, Count: 2, Technologies: []types.Technology{types.TechnologyH323}},
		{ID: "p2", Kind: specification.ParticipantPerson, InvitationState: specification.InvitationAccepted, Technologies: []types.Technology{types.TechnologyH323}},
		{ID: "p3", Kind: specification.ParticipantPerson, InvitationState: specification.InvitationRejected},
	}

	outcome, err := f.dryRun(spec, interval(10, 0, 11, 0))
	require.NoError(t, err)
	rooms := childrenOf(outcome, outcome.Root.ID)
	require.Len(t, rooms, 1)
	assert.Equal(t, types.ReservationKindRoom, rooms[0].Kind)
	assert.Equal(t, 3, rooms[0].LicenseCount())

	spec.Compartment.Participants = spec.Compartment.Participants[1:]
	_, err = f.dryRun(spec, interval(10, 0, 11, 0))
	assertCode(t, err, report.CodeCompartmentNotEnoughEndpoint)
}

func TestDryRunIsDeterministic(t *testing.T) {
	room := mcu("mcu", 10, types.TechnologyH323)
	room.Capabilities.ValueProvider = &types.ValueProviderCapability{Patterns: []string{"{digit:4}"}}
	room.Capabilities.AliasProviders = []*types.AliasProviderCapability{{
		ID:      "numbers",
		Aliases: []types.Alias{{Type: types.AliasTypeH323E164, Value: "42{value}"}},
	}}
	f := newFixture(t, room, device("codec"))
	spec := specification.NewCompartment(
		specification.NewResource("codec"),
		specification.NewRoom(specification.RoomSpec{
			Variants: [][]types.Technology{{types.TechnologyH323}}, ParticipantCount: 4, WithAlias: true,
		}),
	)

	first, err := f.dryRun(spec, interval(10, 0, 11, 0))
	require.NoError(t, err)
	second, err := f.dryRun(spec, interval(10, 0, 11, 0))
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first.Reservations, second.Reservations))
	assert.Equal(t, uint64(1), f.store.Revision(), "dry runs never persist")
}
