package specification

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
)

// SynchronizeFrom copies every field of other into s and reports whether
// anything differed. Child lists are merged by ID so that unchanged items
// keep their identity. Synchronizing different kinds panics.
func (s *Specification) SynchronizeFrom(other *Specification) bool {
	if s.Kind != other.Kind {
		panic(fmt.Sprintf("specification: cannot synchronize %s from %s", s.Kind, other.Kind))
	}
	changed := setBool(&s.Optional, other.Optional)

	switch s.Kind {
	case KindResource:
		if s.Resource == nil {
			s.Resource = &ResourceSpec{}
		}
		src := orZero(other.Resource)
		changed = setString(&s.Resource.ResourceID, src.ResourceID) || changed

	case KindAlias:
		if s.Alias == nil {
			s.Alias = &AliasSpec{}
		}
		changed = s.Alias.synchronizeFrom(orZero(other.Alias)) || changed

	case KindAliasSet, KindAliasGroup:
		if s.AliasSet == nil {
			s.AliasSet = &AliasSetSpec{}
		}
		src := orZero(other.AliasSet)
		changed = setBool(&s.AliasSet.SharedExecutable, src.SharedExecutable) || changed
		changed = syncSpecifications(&s.AliasSet.Aliases, src.Aliases) || changed

	case KindRoom, KindVirtualRoom:
		if s.Room == nil {
			s.Room = &RoomSpec{}
		}
		changed = s.Room.synchronizeFrom(orZero(other.Room)) || changed

	case KindValue:
		if s.Value == nil {
			s.Value = &ValueSpec{}
		}
		src := orZero(other.Value)
		changed = setString(&s.Value.ValueProviderID, src.ValueProviderID) || changed
		changed = setStrings(&s.Value.Values, src.Values) || changed

	case KindCompartment:
		if s.Compartment == nil {
			s.Compartment = &CompartmentSpec{}
		}
		src := orZero(other.Compartment)
		changed = setTechnologies(&s.Compartment.Technologies, src.Technologies) || changed
		changed = syncSpecifications(&s.Compartment.Specifications, src.Specifications) || changed
		changed = syncList(&s.Compartment.Participants, src.Participants,
			func(p *Participant) string { return p.ID },
			func(dst, src *Participant) bool { return dst.synchronizeFrom(src) },
			func(p *Participant) *Participant { c := *p; return &c },
		) || changed

	case KindMultiCompartment:
		if s.MultiCompartment == nil {
			s.MultiCompartment = &MultiCompartmentSpec{}
		}
		src := orZero(other.MultiCompartment)
		changed = syncSpecifications(&s.MultiCompartment.Compartments, src.Compartments) || changed

	default:
		panic(fmt.Sprintf("specification: unknown kind %q", s.Kind))
	}
	return changed
}

func (a *AliasSpec) synchronizeFrom(other *AliasSpec) bool {
	changed := setTechnologies(&a.Technologies, other.Technologies)
	changed = setAliasTypes(&a.AliasTypes, other.AliasTypes) || changed
	changed = setString(&a.Value, other.Value) || changed
	changed = setString(&a.ResourceID, other.ResourceID) || changed
	changed = setString(&a.ProviderID, other.ProviderID) || changed
	changed = setBool(&a.PermanentRoom, other.PermanentRoom) || changed
	return changed
}

func (r *RoomSpec) synchronizeFrom(other *RoomSpec) bool {
	changed := false
	if !equalVariants(r.Variants, other.Variants) {
		r.Variants = make([][]types.Technology, len(other.Variants))
		for i, variant := range other.Variants {
			r.Variants[i] = append([]types.Technology(nil), variant...)
		}
		changed = true
	}
	changed = setInt(&r.ParticipantCount, other.ParticipantCount) || changed
	changed = setBool(&r.WithAlias, other.WithAlias) || changed
	changed = setAliasTypes(&r.AliasTypes, other.AliasTypes) || changed
	changed = setString(&r.DeviceResourceID, other.DeviceResourceID) || changed
	changed = setInt(&r.SlotMinutesBefore, other.SlotMinutesBefore) || changed
	changed = setInt(&r.SlotMinutesAfter, other.SlotMinutesAfter) || changed
	changed = syncList(&r.Settings, other.Settings,
		func(s *RoomSetting) string { return s.ID },
		func(dst, src *RoomSetting) bool {
			c := false
			if dst.Technology != src.Technology {
				dst.Technology = src.Technology
				c = true
			}
			c = setString(&dst.Key, src.Key) || c
			c = setString(&dst.Value, src.Value) || c
			return c
		},
		func(s *RoomSetting) *RoomSetting { c := *s; return &c },
	) || changed
	return changed
}

// syncSpecifications merges child specifications. An item whose kind
// changed under the same ID is replaced instead of synchronized.
func syncSpecifications(dst *[]*Specification, src []*Specification) bool {
	replaced := false
	for _, incoming := range src {
		for i, current := range *dst {
			if current.ID != "" && current.ID == incoming.ID && current.Kind != incoming.Kind {
				(*dst)[i] = incoming.Clone()
				replaced = true
			}
		}
	}
	changed := syncList(dst, src,
		func(s *Specification) string { return s.ID },
		func(d, s *Specification) bool { return d.SynchronizeFrom(s) },
		func(s *Specification) *Specification { return s.Clone() },
	)
	return changed || replaced
}

// syncList performs a three-way merge of dst with src keyed by id: items
// present in both are updated in place, items missing from src are removed
// and items new in src are added. The result follows the order of src and
// a reordering counts as a change. Items with an empty id never match.
func syncList[T any](dst *[]T, src []T, id func(T) string, update func(dst, src T) bool, clone func(T) T) bool {
	incoming := make(map[string]bool, len(src))
	for _, item := range src {
		if key := id(item); key != "" {
			incoming[key] = true
		}
	}

	changed := false
	current := make(map[string]T, len(*dst))
	order := make([]string, 0, len(*dst))
	for _, item := range *dst {
		key := id(item)
		if key == "" || !incoming[key] {
			changed = true
			continue
		}
		current[key] = item
		order = append(order, key)
	}

	merged := make([]T, 0, len(src))
	position := 0
	for _, item := range src {
		key := id(item)
		existing, ok := current[key]
		if key == "" || !ok {
			merged = append(merged, clone(item))
			changed = true
			continue
		}
		delete(current, key)
		if update(existing, item) {
			changed = true
		}
		if position >= len(order) || order[position] != key {
			changed = true
		}
		position++
		merged = append(merged, existing)
	}
	*dst = merged
	return changed
}

func orZero[T any](v *T) *T {
	if v == nil {
		return new(T)
	}
	return v
}

func setString(dst *string, src string) bool {
	if *dst == src {
		return false
	}
	*dst = src
	return true
}

func setInt(dst *int, src int) bool {
	if *dst == src {
		return false
	}
	*dst = src
	return true
}

func setBool(dst *bool, src bool) bool {
	if *dst == src {
		return false
	}
	*dst = src
	return true
}

func setKind(dst *ParticipantKind, src ParticipantKind) bool {
	if *dst == src {
		return false
	}
	*dst = src
	return true
}

func setStrings(dst *[]string, src []string) bool {
	if equalSlices(*dst, src) {
		return false
	}
	*dst = append([]string(nil), src...)
	return true
}

func setTechnologies(dst *[]types.Technology, src []types.Technology) bool {
	if equalSlices(*dst, src) {
		return false
	}
	*dst = append([]types.Technology(nil), src...)
	return true
}

func setAliasTypes(dst *[]types.AliasType, src []types.AliasType) bool {
	if equalSlices(*dst, src) {
		return false
	}
	*dst = append([]types.AliasType(nil), src...)
	return true
}

func equalSlices[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalVariants(a, b [][]types.Technology) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalSlices(a[i], b[i]) {
			return false
		}
	}
	return true
}
