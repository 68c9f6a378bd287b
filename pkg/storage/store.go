package storage

import (
	"errors"

	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/types"
)

// ErrNotFound is wrapped by every lookup of a missing entity
var ErrNotFound = errors.New("not found")

// Reader gives read access to one consistent snapshot of the state
type Reader interface {
	// Resources
	GetResource(id string) (*types.Resource, error)
	ListResources() ([]*types.Resource, error)

	// Reservation requests
	GetRequest(id string) (*request.ReservationRequest, error)
	ListRequests() ([]*request.ReservationRequest, error)
	ListChildRequests(parentAllocationID string) ([]*request.ReservationRequest, error)

	// Allocations
	GetAllocation(id string) (*types.Allocation, error)
	ListAllocations() ([]*types.Allocation, error)
	IsAllocationReused(allocationID string) (bool, error)

	// Reservations
	GetReservation(id string) (*types.Reservation, error)
	ListReservations() ([]*types.Reservation, error)
	ListReservationsByAllocation(allocationID string) ([]*types.Reservation, error)
	// ListOverlapping returns the reservations occupying targetID during slot
	ListOverlapping(targetID string, slot types.Interval) ([]*types.Reservation, error)

	// Revision increases with every applied change set
	Revision() uint64
}

// Applier commits change sets. It is satisfied by the local store and by
// the raft manager, which replicates the change set before applying it.
type Applier interface {
	ApplyChanges(changes *ChangeSet) error
}

// Store defines the interface for reservation state storage
type Store interface {
	Reader
	Applier

	// View runs fn against a read-only snapshot
	View(fn func(Reader) error) error

	// Reindex rebuilds secondary indexes from the primary buckets
	Reindex() error

	Close() error
}

// ChangeSet is the unit of atomic persistence. Deletions are applied
// before puts.
type ChangeSet struct {
	PutResources       []*types.Resource             `json:"putResources,omitempty"`
	DeleteResources    []string                      `json:"deleteResources,omitempty"`
	PutRequests        []*request.ReservationRequest `json:"putRequests,omitempty"`
	DeleteRequests     []string                      `json:"deleteRequests,omitempty"`
	DeleteAllocations  []string                      `json:"deleteAllocations,omitempty"`
	PutAllocations     []*types.Allocation           `json:"putAllocations,omitempty"`
	PutReservations    []*types.Reservation          `json:"putReservations,omitempty"`
	DeleteReservations []string                      `json:"deleteReservations,omitempty"`
}

// IsEmpty reports whether the change set changes nothing
func (c *ChangeSet) IsEmpty() bool {
	return c == nil || len(c.PutResources)+len(c.DeleteResources)+len(c.PutRequests)+
		len(c.DeleteRequests)+len(c.DeleteAllocations)+len(c.PutAllocations)+len(c.PutReservations)+len(c.DeleteReservations) == 0
}

// PutRequest adds r, replacing an earlier put of the same request
func (c *ChangeSet) PutRequest(r *request.ReservationRequest) {
	for i, existing := range c.PutRequests {
		if existing.ID == r.ID {
			c.PutRequests[i] = r
			return
		}
	}
	c.PutRequests = append(c.PutRequests, r)
}

// PutAllocation adds a, replacing an earlier put of the same allocation
func (c *ChangeSet) PutAllocation(a *types.Allocation) {
	for i, existing := range c.PutAllocations {
		if existing.ID == a.ID {
			c.PutAllocations[i] = a
			return
		}
	}
	c.PutAllocations = append(c.PutAllocations, a)
}

// Merge appends the changes of other
func (c *ChangeSet) Merge(other *ChangeSet) {
	if other == nil {
		return
	}
	c.PutResources = append(c.PutResources, other.PutResources...)
	c.DeleteResources = append(c.DeleteResources, other.DeleteResources...)
	for _, r := range other.PutRequests {
		c.PutRequest(r)
	}
	c.DeleteRequests = append(c.DeleteRequests, other.DeleteRequests...)
	c.DeleteAllocations = append(c.DeleteAllocations, other.DeleteAllocations...)
	for _, a := range other.PutAllocations {
		c.PutAllocation(a)
	}
	c.PutReservations = append(c.PutReservations, other.PutReservations...)
	c.DeleteReservations = append(c.DeleteReservations, other.DeleteReservations...)
}
