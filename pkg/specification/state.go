package specification

// State is the readiness of a specification for scheduling
type State string

const (
	StateReady    State = "READY"
	StateNotReady State = "NOT_READY"
	StateSkip     State = "SKIP"
)

// State returns the readiness of the specification tree. A composite is
// NOT_READY when any child is NOT_READY and SKIP only when every child is
// SKIP.
func (s *Specification) State() State {
	var states []State
	if s.Kind == KindCompartment && s.Compartment != nil {
		for _, p := range s.Compartment.Participants {
			states = append(states, p.State())
		}
	}
	for _, child := range s.Children() {
		states = append(states, child.State())
	}
	if len(states) == 0 {
		return StateReady
	}
	skipped := 0
	for _, state := range states {
		switch state {
		case StateNotReady:
			return StateNotReady
		case StateSkip:
			skipped++
		}
	}
	if skipped == len(states) {
		return StateSkip
	}
	return StateReady
}

// ReadyParticipants returns the participants of a compartment that are ready
func (s *Specification) ReadyParticipants() []*Participant {
	if s.Kind != KindCompartment || s.Compartment == nil {
		return nil
	}
	var ready []*Participant
	for _, p := range s.Compartment.Participants {
		if p.State() == StateReady {
			ready = append(ready, p)
		}
	}
	return ready
}
