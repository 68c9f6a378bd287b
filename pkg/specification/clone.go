package specification

import (
	"github.com/cuemby/burrow/pkg/types"
	"github.com/mohae/deepcopy"
)

// Clone returns a deep copy of the specification tree
func (s *Specification) Clone() *Specification {
	if s == nil {
		return nil
	}
	return deepcopy.Copy(s).(*Specification)
}

// AssignIDs gives every nested specification, participant and room
// setting without an ID a fresh one, so that later synchronization can
// match items by identity.
func (s *Specification) AssignIDs(ids types.IDGenerator) {
	s.Walk(func(spec *Specification) {
		if spec.ID == "" {
			spec.ID = ids.NewID()
		}
		if spec.Compartment != nil {
			for _, p := range spec.Compartment.Participants {
				if p.ID == "" {
					p.ID = ids.NewID()
				}
			}
		}
		if spec.Room != nil {
			for _, setting := range spec.Room.Settings {
				if setting.ID == "" {
					setting.ID = ids.NewID()
				}
			}
		}
	})
}
