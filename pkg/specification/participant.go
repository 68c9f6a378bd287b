package specification

import "github.com/cuemby/burrow/pkg/types"

// ParticipantKind selects how a participant joins a compartment
type ParticipantKind string

const (
	ParticipantPerson           ParticipantKind = "person"
	ParticipantExternalEndpoint ParticipantKind = "external_endpoint"
	ParticipantExistingEndpoint ParticipantKind = "existing_endpoint"
)

// InvitationState tracks a person's answer to an invitation
type InvitationState string

const (
	InvitationNotSent  InvitationState = "NOT_SENT"
	InvitationInvited  InvitationState = "INVITED"
	InvitationAccepted InvitationState = "ACCEPTED"
	InvitationRejected InvitationState = "REJECTED"
)

// Participant is a person or endpoint taking part in a compartment
type Participant struct {
	ID              string             `yaml:"id"`
	Kind            ParticipantKind    `yaml:"kind"`
	Name            string             `yaml:"name,omitempty"`
	Technologies    []types.Technology `yaml:"technologies,omitempty"`
	Count           int                `yaml:"count,omitempty"`
	InvitationState InvitationState    `yaml:"invitationState,omitempty"`
	ResourceID      string             `yaml:"resourceId,omitempty"`
}

// State returns the readiness of the participant
func (p *Participant) State() State {
	if p.Kind != ParticipantPerson {
		return StateReady
	}
	switch p.InvitationState {
	case InvitationAccepted:
		return StateReady
	case InvitationRejected:
		return StateSkip
	default:
		return StateNotReady
	}
}

// EndpointCount returns how many endpoints the participant brings
func (p *Participant) EndpointCount() int {
	if p.Kind == ParticipantExternalEndpoint && p.Count > 0 {
		return p.Count
	}
	return 1
}

func (p *Participant) synchronizeFrom(other *Participant) bool {
	changed := false
	changed = setString(&p.Name, other.Name) || changed
	changed = setKind(&p.Kind, other.Kind) || changed
	changed = setTechnologies(&p.Technologies, other.Technologies) || changed
	changed = setInt(&p.Count, other.Count) || changed
	changed = setString(&p.ResourceID, other.ResourceID) || changed
	if p.InvitationState != other.InvitationState {
		p.InvitationState = other.InvitationState
		changed = true
	}
	return changed
}
