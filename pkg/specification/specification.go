package specification

import (
	"github.com/cuemby/burrow/pkg/types"
)

// Kind selects the payload of a Specification
type Kind string

const (
	KindResource         Kind = "resource"
	KindAlias            Kind = "alias"
	KindAliasSet         Kind = "alias_set"
	KindAliasGroup       Kind = "alias_group"
	KindRoom             Kind = "room"
	KindVirtualRoom      Kind = "virtual_room"
	KindValue            Kind = "value"
	KindCompartment      Kind = "compartment"
	KindMultiCompartment Kind = "multi_compartment"
)

// Specification describes what should be allocated. Exactly one payload
// matching Kind is set.
type Specification struct {
	ID       string `yaml:"id,omitempty"`
	Kind     Kind   `yaml:"kind"`
	Optional bool   `yaml:"optional,omitempty"`

	Resource         *ResourceSpec         `yaml:"resource,omitempty"`
	Alias            *AliasSpec            `yaml:"alias,omitempty"`
	AliasSet         *AliasSetSpec         `yaml:"aliasSet,omitempty"`
	Room             *RoomSpec             `yaml:"room,omitempty"`
	Value            *ValueSpec            `yaml:"value,omitempty"`
	Compartment      *CompartmentSpec      `yaml:"compartment,omitempty"`
	MultiCompartment *MultiCompartmentSpec `yaml:"multiCompartment,omitempty"`
}

// ResourceSpec requests one specific existing resource
type ResourceSpec struct {
	ResourceID string `yaml:"resourceId"`
}

// AliasSpec requests one alias by technology and type, optionally for a
// target resource or from a pinned alias provider.
type AliasSpec struct {
	Technologies  []types.Technology `yaml:"technologies,omitempty"`
	AliasTypes    []types.AliasType  `yaml:"aliasTypes,omitempty"`
	Value         string             `yaml:"value,omitempty"`
	ResourceID    string             `yaml:"resourceId,omitempty"`
	ProviderID    string             `yaml:"providerId,omitempty"`
	PermanentRoom bool               `yaml:"permanentRoom,omitempty"`
}

// AliasSetSpec requests an ordered collection of aliases
type AliasSetSpec struct {
	Aliases          []*Specification `yaml:"aliases"`
	SharedExecutable bool             `yaml:"sharedExecutable,omitempty"`
}

// RoomSpec requests a virtual room on a room provider device
type RoomSpec struct {
	Variants          [][]types.Technology `yaml:"variants"`
	ParticipantCount  int                  `yaml:"participantCount"`
	WithAlias         bool                 `yaml:"withAlias,omitempty"`
	AliasTypes        []types.AliasType    `yaml:"aliasTypes,omitempty"`
	DeviceResourceID  string               `yaml:"deviceResourceId,omitempty"`
	SlotMinutesBefore int                  `yaml:"slotMinutesBefore,omitempty"`
	SlotMinutesAfter  int                  `yaml:"slotMinutesAfter,omitempty"`
	Settings          []*RoomSetting       `yaml:"settings,omitempty"`
}

// RoomSetting is a technology specific room option passed to the executor
type RoomSetting struct {
	ID         string           `yaml:"id"`
	Technology types.Technology `yaml:"technology"`
	Key        string           `yaml:"key"`
	Value      string           `yaml:"value"`
}

// ValueSpec requests values from a value provider. With no Values the
// provider generates one.
type ValueSpec struct {
	ValueProviderID string   `yaml:"valueProviderId"`
	Values          []string `yaml:"values,omitempty"`
}

// CompartmentSpec groups child specifications and participants meeting in
// one conference.
type CompartmentSpec struct {
	Technologies   []types.Technology `yaml:"technologies,omitempty"`
	Specifications []*Specification   `yaml:"specifications,omitempty"`
	Participants   []*Participant     `yaml:"participants,omitempty"`
}

// MultiCompartmentSpec groups independent compartments
type MultiCompartmentSpec struct {
	Compartments []*Specification `yaml:"compartments"`
}

// NewResource creates a resource specification
func NewResource(resourceID string) *Specification {
	return &Specification{Kind: KindResource, Resource: &ResourceSpec{ResourceID: resourceID}}
}

// NewAlias creates an alias specification
func NewAlias(spec AliasSpec) *Specification {
	return &Specification{Kind: KindAlias, Alias: &spec}
}

// NewAliasSet creates an alias set from alias specifications
func NewAliasSet(shared bool, aliases ...*Specification) *Specification {
	return &Specification{Kind: KindAliasSet, AliasSet: &AliasSetSpec{Aliases: aliases, SharedExecutable: shared}}
}

// NewRoom creates a room specification
func NewRoom(spec RoomSpec) *Specification {
	return &Specification{Kind: KindRoom, Room: &spec}
}

// NewValue creates a value specification
func NewValue(providerID string, values ...string) *Specification {
	return &Specification{Kind: KindValue, Value: &ValueSpec{ValueProviderID: providerID, Values: values}}
}

// NewCompartment creates a compartment from child specifications
func NewCompartment(children ...*Specification) *Specification {
	return &Specification{Kind: KindCompartment, Compartment: &CompartmentSpec{Specifications: children}}
}

// NewMultiCompartment creates a multi-compartment from compartments
func NewMultiCompartment(compartments ...*Specification) *Specification {
	return &Specification{Kind: KindMultiCompartment, MultiCompartment: &MultiCompartmentSpec{Compartments: compartments}}
}

// Children returns the ordered child specifications of composite kinds
func (s *Specification) Children() []*Specification {
	switch s.Kind {
	case KindAliasSet, KindAliasGroup:
		if s.AliasSet != nil {
			return s.AliasSet.Aliases
		}
	case KindCompartment:
		if s.Compartment != nil {
			return s.Compartment.Specifications
		}
	case KindMultiCompartment:
		if s.MultiCompartment != nil {
			return s.MultiCompartment.Compartments
		}
	}
	return nil
}

// IsComposite reports whether the kind aggregates child specifications
func (s *Specification) IsComposite() bool {
	switch s.Kind {
	case KindAliasSet, KindAliasGroup, KindCompartment, KindMultiCompartment:
		return true
	}
	return false
}

// Technologies returns the technologies referenced anywhere in the tree
func (s *Specification) Technologies() types.TechnologySet {
	var set types.TechnologySet
	switch s.Kind {
	case KindAlias:
		if s.Alias != nil {
			set = set.Union(s.Alias.Technologies)
			for _, aliasType := range s.Alias.AliasTypes {
				if t := aliasType.Technology(); t != "" {
					set = set.Union([]types.Technology{t})
				}
			}
		}
	case KindRoom, KindVirtualRoom:
		if s.Room != nil {
			for _, variant := range s.Room.Variants {
				set = set.Union(variant)
			}
		}
	case KindCompartment:
		if s.Compartment != nil {
			set = set.Union(s.Compartment.Technologies)
			for _, p := range s.Compartment.Participants {
				set = set.Union(p.Technologies)
			}
		}
	}
	for _, child := range s.Children() {
		set = set.Union(child.Technologies())
	}
	return set
}

// Walk visits s and every descendant depth first
func (s *Specification) Walk(fn func(*Specification)) {
	fn(s)
	for _, child := range s.Children() {
		child.Walk(fn)
	}
}
