package controller

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuemby/burrow/pkg/availability"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Controller is the entry point for request and resource operations.
// Every mutation runs under the scheduler lock so it never interleaves
// with an allocation attempt.
type Controller struct {
	store      storage.Store
	scheduler  *scheduler.Scheduler
	checker    *availability.Checker
	authorizer Authorizer
	publisher  events.Publisher
	logger     zerolog.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithAuthorizer sets the authorizer; the default allows everything
func WithAuthorizer(authorizer Authorizer) Option {
	return func(c *Controller) { c.authorizer = authorizer }
}

// WithPublisher sets the event publisher
func WithPublisher(publisher events.Publisher) Option {
	return func(c *Controller) { c.publisher = publisher }
}

// NewController creates a controller over store. Writes go through the
// scheduler's applier.
func NewController(store storage.Store, s *scheduler.Scheduler, checker *availability.Checker, opts ...Option) *Controller {
	c := &Controller{
		store:      store,
		scheduler:  s,
		checker:    checker,
		authorizer: AllowAll{},
		publisher:  events.Discard{},
		logger:     log.WithComponent("controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAllocation returns the allocation of a request
func (c *Controller) GetAllocation(principal, requestID string) (*types.Allocation, error) {
	r, err := c.GetRequest(principal, requestID)
	if err != nil {
		return nil, err
	}
	if r.AllocationID == "" {
		return nil, fmt.Errorf("allocation of request %s: %w", requestID, storage.ErrNotFound)
	}
	return c.store.GetAllocation(r.AllocationID)
}

// ListReservations returns every reservation of the request's
// allocation, history included, ordered by slot start.
func (c *Controller) ListReservations(principal, requestID string) ([]*types.Reservation, error) {
	allocation, err := c.GetAllocation(principal, requestID)
	if err != nil {
		return nil, err
	}
	reservations, err := c.store.ListReservationsByAllocation(allocation.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reservations, func(i, j int) bool {
		return reservations[i].Slot.Start.Before(reservations[j].Slot.Start)
	})
	return reservations, nil
}

// CheckAvailability answers q for principal without changing anything
func (c *Controller) CheckAvailability(principal string, q availability.Query) (*availability.Result, error) {
	if q.IgnoredRequestID != "" {
		if err := c.authorize(principal, q.IgnoredRequestID, PermissionWrite); err != nil {
			return nil, err
		}
	}
	if q.ReusedRequestID != "" {
		if err := c.authorize(principal, q.ReusedRequestID, PermissionProvide); err != nil {
			return nil, err
		}
	}
	q.UserID = principal
	return c.checker.Check(q)
}

// Schedule runs one scheduler pass over working
func (c *Controller) Schedule(ctx context.Context, working types.Interval) (*scheduler.RunResult, error) {
	return c.scheduler.Run(ctx, working)
}

func (c *Controller) publish(event *events.Event) {
	event.Timestamp = c.scheduler.Now()
	c.publisher.Publish(event)
}
