package scheduler

import (
	"strconv"

	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/types"
)

// directEndpoints is both the fewest endpoints a compartment needs and the
// most it connects without a room.
const directEndpoints = 2

func (t *Task) allocateCompartment(slot types.Interval, spec *specification.Specification) (*types.Reservation, error) {
	compartment := spec.Compartment
	ready := spec.ReadyParticipants()

	endpoints := 0
	var technologies types.TechnologySet
	children := append([]*specification.Specification(nil), compartment.Specifications...)
	for _, p := range ready {
		endpoints += p.EndpointCount()
		technologies = technologies.Union(p.Technologies)
		if p.Kind == specification.ParticipantExistingEndpoint {
			children = append(children, specification.NewResource(p.ResourceID))
		}
	}
	if len(compartment.Participants) > 0 && endpoints < directEndpoints {
		return nil, report.Wrap(report.New(report.CodeCompartmentNotEnoughEndpoint,
			"compartment has %d ready endpoints, at least %d are required", endpoints, directEndpoints).
			WithParam("endpoints", strconv.Itoa(endpoints)))
	}

	if endpoints > directEndpoints && !hasRoom(compartment.Specifications) {
		if len(compartment.Technologies) > 0 {
			technologies = compartment.Technologies
		}
		if len(technologies) > 0 {
			children = append(children, specification.NewRoom(specification.RoomSpec{
				Variants:         [][]types.Technology{technologies},
				ParticipantCount: endpoints,
			}))
		}
	}

	root, err := t.allocateCompound(slot, children)
	if err != nil {
		return nil, err
	}
	t.report.WithParam("endpoints", strconv.Itoa(endpoints))
	return root, nil
}

func hasRoom(specs []*specification.Specification) bool {
	for _, spec := range specs {
		if spec.Kind == specification.KindRoom || spec.Kind == specification.KindVirtualRoom {
			return true
		}
	}
	return false
}
