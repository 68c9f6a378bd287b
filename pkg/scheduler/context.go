package scheduler

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/valueprovider"
	"github.com/rs/zerolog"
)

// Context carries everything one allocation attempt needs: the instant it
// runs at, a read snapshot of the store and the transactional state.
type Context struct {
	now    time.Time
	reader storage.Reader
	ids    types.IDGenerator
	userID string
	state  *State
	logger zerolog.Logger
	rnd    *rand.Rand

	providers map[string]*valueprovider.Provider
}

// ContextOption configures a Context
type ContextOption func(*Context)

// WithUserID sets the owner recorded on new reservations
func WithUserID(userID string) ContextOption {
	return func(c *Context) { c.userID = userID }
}

// WithLogger sets the logger used by tasks
func WithLogger(logger zerolog.Logger) ContextOption {
	return func(c *Context) { c.logger = logger }
}

// WithRand sets the random source used for hash patterns
func WithRand(rnd *rand.Rand) ContextOption {
	return func(c *Context) { c.rnd = rnd }
}

// NewContext creates the context of one attempt
func NewContext(reader storage.Reader, now time.Time, ids types.IDGenerator, opts ...ContextOption) *Context {
	c := &Context{
		now:       now,
		reader:    reader,
		ids:       ids,
		state:     NewState(),
		logger:    zerolog.Nop(),
		providers: make(map[string]*valueprovider.Provider),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the instant the attempt runs at
func (c *Context) Now() time.Time {
	return c.now
}

// State returns the transactional state
func (c *Context) State() *State {
	return c.state
}

// Reader returns the store snapshot
func (c *Context) Reader() storage.Reader {
	return c.reader
}

// Overlapping returns every reservation occupying targetID during slot:
// persisted reservations that are not REALLOCATABLE for this attempt plus
// the ones the attempt created so far.
func (c *Context) Overlapping(targetID string, slot types.Interval) ([]*types.Reservation, error) {
	persisted, err := c.reader.ListOverlapping(targetID, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations of %s: %w", targetID, err)
	}
	var result []*types.Reservation
	for _, r := range persisted {
		if !c.state.IsReallocatable(r.ID) {
			result = append(result, r)
		}
	}
	return append(result, c.state.AllocatedOverlapping(targetID, slot)...), nil
}

// AddAvailableTree offers root and all its persisted descendants
func (c *Context) AddAvailableTree(root *types.Reservation, availableType AvailableType) error {
	c.state.AddAvailable(root, availableType)
	for _, childID := range root.ChildIDs {
		child, err := c.reader.GetReservation(childID)
		if err != nil {
			return fmt.Errorf("failed to load reservation %s: %w", childID, err)
		}
		if err := c.AddAvailableTree(child, availableType); err != nil {
			return err
		}
	}
	return nil
}

// SetReallocatableAllocation offers every reservation of the allocation
// overlapping slot as REALLOCATABLE.
func (c *Context) SetReallocatableAllocation(allocationID string, slot types.Interval) error {
	reservations, err := c.reader.ListReservationsByAllocation(allocationID)
	if err != nil {
		return fmt.Errorf("failed to list reservations of allocation %s: %w", allocationID, err)
	}
	for _, r := range reservations {
		if r.Slot.Overlaps(slot) {
			c.state.AddAvailable(r, Reallocatable)
		}
	}
	return nil
}

// SetReusableAllocation offers the root reservation of a reused allocation
// whose slot contains slot as REUSABLE, together with its descendants.
// ownAllocationID identifies the allocation being (re)allocated, whose
// previous usage does not count.
func (c *Context) SetReusableAllocation(allocationID, ownAllocationID string, slot types.Interval) (*types.Reservation, error) {
	reservations, err := c.reader.ListReservationsByAllocation(allocationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations of allocation %s: %w", allocationID, err)
	}
	var reusable *types.Reservation
	for _, r := range reservations {
		if r.ParentID == "" && r.Slot.Contains(slot) {
			reusable = r
			break
		}
	}
	if reusable == nil {
		return nil, report.Wrap(report.New(report.CodeReusedSlotInvalid,
			"reused allocation %s has no reservation for %s", allocationID, slot).
			WithParam("allocation", allocationID))
	}

	all, err := c.reader.ListReservations()
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	for _, r := range all {
		if r.Existing == nil || r.Existing.AllocationID != allocationID {
			continue
		}
		if r.AllocationID == ownAllocationID || !r.Slot.Overlaps(slot) {
			continue
		}
		return nil, report.Wrap(report.New(report.CodeReservationAlreadyUsed,
			"reservation %s is already used by allocation %s", reusable.ID, r.AllocationID).
			WithParam("reservation", reusable.ID).
			WithParam("allocation", r.AllocationID))
	}

	if err := c.AddAvailableTree(reusable, Reusable); err != nil {
		return nil, err
	}
	return reusable, nil
}

// ValueProvider returns the generator configured on the resource with id
func (c *Context) ValueProvider(resourceID string) (*types.Resource, *valueprovider.Provider, error) {
	resource, err := c.reader.GetResource(resourceID)
	if err != nil {
		return nil, nil, notFound(resourceID, err)
	}
	if resource.Capabilities.ValueProvider == nil {
		return nil, nil, report.Wrap(report.New(report.CodeResourceNotFound,
			"resource %s is not a value provider", resourceID).WithParam("resource", resourceID))
	}
	if provider, ok := c.providers[resourceID]; ok {
		return resource, provider, nil
	}
	provider, err := valueprovider.New(resource.Capabilities.ValueProvider)
	if err != nil {
		return nil, nil, fmt.Errorf("value provider %s: %w", resourceID, err)
	}
	if c.rnd != nil {
		provider = provider.WithRand(c.rnd)
	}
	c.providers[resourceID] = provider
	return resource, provider, nil
}

// allocate assigns an id and ownership to r and registers it in the state
func (c *Context) allocate(r *types.Reservation) *types.Reservation {
	r.ID = c.ids.NewID()
	r.UserID = c.userID
	r.CreatedAt = c.now
	c.state.AddAllocated(r)
	return r
}
