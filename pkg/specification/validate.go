package specification

import (
	"github.com/cuemby/burrow/pkg/report"
)

// Validate checks required fields of the whole tree. The returned error is
// a *report.Error of kind specification.
func (s *Specification) Validate() error {
	if s == nil {
		return report.Errorf(report.CodeSpecificationInvalid, "specification is missing")
	}
	invalid := func(format string, args ...interface{}) error {
		return report.Wrap(report.New(report.CodeSpecificationInvalid, format, args...).
			WithParam("kind", string(s.Kind)))
	}

	switch s.Kind {
	case KindResource:
		if s.Resource == nil || s.Resource.ResourceID == "" {
			return invalid("resource specification requires a resource id")
		}
	case KindAlias:
		a := s.Alias
		if a == nil || (len(a.Technologies) == 0 && len(a.AliasTypes) == 0 && a.ResourceID == "" && a.ProviderID == "") {
			return invalid("alias specification requires a technology, alias type, resource or provider")
		}
	case KindAliasSet, KindAliasGroup:
		if s.AliasSet == nil || len(s.AliasSet.Aliases) == 0 {
			return invalid("alias set requires at least one alias")
		}
		for _, child := range s.AliasSet.Aliases {
			if child.Kind != KindAlias {
				return invalid("alias set may contain only alias specifications, got %s", child.Kind)
			}
		}
	case KindRoom, KindVirtualRoom:
		r := s.Room
		if r == nil || len(r.Variants) == 0 {
			return invalid("room specification requires at least one technology variant")
		}
		for _, variant := range r.Variants {
			if len(variant) == 0 {
				return invalid("room technology variant must not be empty")
			}
		}
		if r.ParticipantCount < 0 {
			return invalid("participant count must not be negative")
		}
		if r.ParticipantCount == 0 && !r.WithAlias {
			return invalid("room without participants must request aliases")
		}
		if r.SlotMinutesBefore < 0 || r.SlotMinutesAfter < 0 {
			return invalid("slot extension must not be negative")
		}
	case KindValue:
		if s.Value == nil || s.Value.ValueProviderID == "" {
			return invalid("value specification requires a value provider")
		}
	case KindCompartment:
		if s.Compartment == nil {
			return invalid("compartment payload is missing")
		}
		for _, p := range s.Compartment.Participants {
			switch p.Kind {
			case ParticipantPerson, ParticipantExternalEndpoint:
			case ParticipantExistingEndpoint:
				if p.ResourceID == "" {
					return invalid("existing endpoint participant %s requires a resource", p.ID)
				}
			default:
				return invalid("unknown participant kind %q", p.Kind)
			}
		}
	case KindMultiCompartment:
		if s.MultiCompartment == nil || len(s.MultiCompartment.Compartments) == 0 {
			return invalid("multi-compartment requires at least one compartment")
		}
		for _, child := range s.MultiCompartment.Compartments {
			if child.Kind != KindCompartment {
				return invalid("multi-compartment may contain only compartments, got %s", child.Kind)
			}
		}
	default:
		return report.Errorf(report.CodeSpecificationNotAllocatable, "specification kind %q cannot be allocated", s.Kind)
	}

	for _, child := range s.Children() {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}
