package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/reconciler"
	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

const (
	DefaultInterval      = 5 * time.Second
	DefaultWorkingPeriod = 7 * 24 * time.Hour
)

// Scheduler allocates reservation requests. A single mutex serialises
// allocation attempts, availability checks and request mutations.
type Scheduler struct {
	store      storage.Store
	applier    storage.Applier
	reconciler *reconciler.Reconciler
	publisher  events.Publisher
	ids        types.IDGenerator
	clock      func() time.Time
	interval   time.Duration
	working    time.Duration
	isLeader   func() bool
	logger     zerolog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithApplier routes writes through applier instead of the store
func WithApplier(applier storage.Applier) Option {
	return func(s *Scheduler) { s.applier = applier }
}

// WithPublisher sets the event publisher
func WithPublisher(publisher events.Publisher) Option {
	return func(s *Scheduler) { s.publisher = publisher }
}

// WithIDGenerator sets the id source for new entities
func WithIDGenerator(ids types.IDGenerator) Option {
	return func(s *Scheduler) { s.ids = ids }
}

// WithClock sets the time source
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithInterval sets how often the loop runs and how far ahead it allocates
func WithInterval(interval, working time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
		if working > 0 {
			s.working = working
		}
	}
}

// WithLeaderCheck makes the loop skip passes while isLeader reports
// false. Explicit Run and Allocate calls are not affected.
func WithLeaderCheck(isLeader func() bool) Option {
	return func(s *Scheduler) { s.isLeader = isLeader }
}

// NewScheduler creates a new scheduler
func NewScheduler(store storage.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:      store,
		applier:    store,
		reconciler: reconciler.NewReconciler(),
		publisher:  events.Discard{},
		ids:        types.UUIDGenerator{},
		clock:      time.Now,
		interval:   DefaultInterval,
		working:    DefaultWorkingPeriod,
		logger:     log.WithComponent("scheduler"),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current time of the scheduler clock
func (s *Scheduler) Now() time.Time {
	return s.clock()
}

// IDs returns the id source of the scheduler
func (s *Scheduler) IDs() types.IDGenerator {
	return s.ids
}

// Exclusive runs fn while holding the scheduler lock
func (s *Scheduler) Exclusive(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Apply commits changes through the configured applier
func (s *Scheduler) Apply(changes *storage.ChangeSet) error {
	if changes.IsEmpty() {
		return nil
	}
	if err := s.applier.ApplyChanges(changes); err != nil {
		return fmt.Errorf("failed to apply changes: %w", err)
	}
	return nil
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
}

// Stop stops the scheduler loop, interrupting a pass between requests
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		close(s.stopCh)
	})
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.isLeader != nil && !s.isLeader() {
				continue
			}
			now := s.clock()
			if _, err := s.Run(ctx, types.NewInterval(now, now.Add(s.working))); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("Scheduler pass failed")
			}
		case <-s.stopCh:
			return
		}
	}
}

// RunResult summarises one scheduler pass
type RunResult struct {
	Released  int
	Allocated int
	Failed    int
}

// Run performs one scheduler pass over working: releases dead
// allocations, creates and updates child requests of sets and allocates
// every complete request by priority, then creation time.
func (s *Scheduler) Run(ctx context.Context, working types.Interval) (*RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulerRunDuration)

	result, err := s.runLocked(ctx, working)
	if err != nil {
		metrics.RegisterComponent("scheduler", false, err.Error())
		return result, err
	}
	metrics.RegisterComponent("scheduler", true, fmt.Sprintf("last pass at %s", s.clock().Format(time.RFC3339)))
	return result, nil
}

func (s *Scheduler) runLocked(ctx context.Context, working types.Interval) (*RunResult, error) {
	now := s.clock()
	result := &RunResult{}

	var released *storage.ChangeSet
	var published []*events.Event
	err := s.store.View(func(reader storage.Reader) error {
		var err error
		released, published, err = s.reconciler.Plan(reader, now)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("failed to reconcile: %w", err)
	}
	if err := s.Apply(released); err != nil {
		return result, err
	}
	s.publish(published...)
	result.Released = len(published)

	var preprocessed *storage.ChangeSet
	err = s.store.View(func(reader storage.Reader) error {
		var err error
		preprocessed, err = s.preprocess(reader, working, now)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("failed to preprocess request sets: %w", err)
	}
	if err := s.Apply(preprocessed); err != nil {
		return result, err
	}

	var pending []*request.ReservationRequest
	err = s.store.View(func(reader storage.Reader) error {
		requests, err := reader.ListRequests()
		if err != nil {
			return err
		}
		for _, r := range requests {
			if r.State == request.StateActive && !r.IsSet() &&
				r.AllocationState == request.AllocationComplete &&
				r.Overlaps(working) && r.Slot.End.After(now) {
				pending = append(pending, r)
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to list requests: %w", err)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	queue := make([]string, 0, len(pending))
	queued := make(map[string]bool, len(pending))
	for _, r := range pending {
		queue = append(queue, r.ID)
		queued[r.ID] = true
	}
	// Usages of a reallocated allocation join the end of the queue, each
	// at most once per pass.
	for i := 0; i < len(queue); i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		allocated, requeued, err := s.allocate(queue[i], now)
		if err != nil {
			metrics.AllocationsTotal.WithLabelValues(metrics.ResultError).Inc()
			logger := log.WithRequestID(s.logger, queue[i])
			logger.Error().Err(err).Msg("Allocation attempt failed")
			continue
		}
		for _, id := range requeued {
			if !queued[id] {
				queued[id] = true
				queue = append(queue, id)
			}
		}
		if allocated {
			result.Allocated++
		} else {
			result.Failed++
		}
	}

	if result.Allocated+result.Failed+result.Released > 0 {
		s.logger.Info().
			Int("allocated", result.Allocated).
			Int("failed", result.Failed).
			Int("released", result.Released).
			Msg("Scheduler pass completed")
	}
	return result, nil
}

// Allocate runs one allocation attempt for the request immediately. It
// reports whether the attempt succeeded; a failed attempt is persisted on
// the request and is not an error.
func (s *Scheduler) Allocate(requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	allocated, _, err := s.allocate(requestID, s.clock())
	return allocated, err
}

// allocate runs one attempt and returns, besides the result, the requests
// reusing the allocation that were sent back for reallocation.
func (s *Scheduler) allocate(requestID string, now time.Time) (bool, []string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AllocationLatency)

	var changes *storage.ChangeSet
	var outcome *attemptOutcome
	err := s.store.View(func(reader storage.Reader) error {
		req, err := reader.GetRequest(requestID)
		if err != nil {
			return err
		}
		if err := checkAllocatable(req); err != nil {
			return err
		}
		outcome, err = s.attempt(reader, req, now)
		if err != nil {
			return err
		}
		changes = outcome.changes
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	if err := s.Apply(changes); err != nil {
		return false, nil, err
	}

	if outcome.failure != nil {
		metrics.AllocationsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		s.publish(events.New(events.EventAllocationFailed, outcome.failure.Message,
			"request", requestID, "code", string(outcome.failure.Code)))
		return false, nil, nil
	}
	metrics.AllocationsTotal.WithLabelValues(metrics.ResultAllocated).Inc()
	s.publish(events.New(events.EventAllocationSucceeded, "request allocated",
		"request", requestID, "reservation", outcome.root.ID))
	s.publish(events.New(events.EventReservationCreated, "reservation created",
		"reservation", outcome.root.ID, "request", requestID))
	for _, id := range outcome.deleted {
		s.publish(events.New(events.EventReservationDeleted, "reservation deleted",
			"reservation", id, "request", requestID))
	}
	for _, id := range outcome.requeued {
		s.publish(events.New(events.EventAllocationRequeued, "reused allocation changed",
			"request", id, "reused_allocation", outcome.root.AllocationID))
	}
	return true, outcome.requeued, nil
}

func checkAllocatable(req *request.ReservationRequest) error {
	if req.State != request.StateActive || req.IsSet() {
		return report.Errorf(report.CodeRequestNotAllocatable, "request %s cannot be allocated in state %s", req.ID, req.State)
	}
	switch req.AllocationState {
	case request.AllocationComplete, request.AllocationAllocated, request.AllocationFailed:
		return nil
	}
	return report.Errorf(report.CodeRequestNotAllocatable, "request %s is %s", req.ID, req.AllocationState)
}

type attemptOutcome struct {
	changes  *storage.ChangeSet
	root     *types.Reservation
	deleted  []string
	requeued []string
	failure  *report.Report
}

// attempt allocates req against reader. Expected failures are returned as
// an outcome carrying the failed request, other errors abort.
func (s *Scheduler) attempt(reader storage.Reader, req *request.ReservationRequest, now time.Time) (*attemptOutcome, error) {
	logger := log.WithRequestID(s.logger, req.ID)
	ctx := NewContext(reader, now, s.ids, WithUserID(req.UserID), WithLogger(logger))

	allocation, existing, err := s.loadAllocation(reader, req)
	if err != nil {
		return nil, err
	}

	root, task, err := s.perform(ctx, req, allocation, existing)
	if err != nil {
		if !isReportError(err) {
			return nil, err
		}
		failure := report.ReportOf(err)
		if err := req.MarkFailed(failure); err != nil {
			return nil, err
		}
		logger.Info().Str("code", string(failure.Code)).Msg("Allocation failed")
		return &attemptOutcome{
			changes: &storage.ChangeSet{PutRequests: []*request.ReservationRequest{req}},
			failure: failure,
		}, nil
	}

	outcome, err := commit(ctx, req, allocation, root, task)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("reservation_id", root.ID).
		Int("reservations", len(outcome.changes.PutReservations)).
		Msg("Request allocated")
	return outcome, nil
}

// loadAllocation returns the allocation of req, creating a new one when the
// request was never allocated. existing tells whether it is persisted.
func (s *Scheduler) loadAllocation(reader storage.Reader, req *request.ReservationRequest) (*types.Allocation, bool, error) {
	if req.AllocationID != "" {
		allocation, err := reader.GetAllocation(req.AllocationID)
		if err == nil {
			return allocation, true, nil
		}
		if !isNotFound(err) {
			return nil, false, err
		}
	}
	id := req.AllocationID
	if id == "" {
		id = s.ids.NewID()
	}
	return &types.Allocation{ID: id, RequestID: req.ID, State: types.AllocationActive}, false, nil
}

func (s *Scheduler) perform(ctx *Context, req *request.ReservationRequest, allocation *types.Allocation, existing bool) (*types.Reservation, *Task, error) {
	slot := req.Slot
	if existing {
		if err := ctx.SetReallocatableAllocation(allocation.ID, slot); err != nil {
			return nil, nil, err
		}
	}
	if req.ReusedAllocationID != "" {
		if _, err := ctx.SetReusableAllocation(req.ReusedAllocationID, allocation.ID, slot.ClipStart(ctx.now)); err != nil {
			return nil, nil, err
		}
	}

	task := NewTask(ctx, req.Specification, slot)
	root, err := task.Perform()
	if err != nil {
		return nil, nil, err
	}
	if req.ReusedAllocationMandatory && !reuses(ctx.state.Allocated(), req.ReusedAllocationID) {
		return nil, nil, report.Wrap(report.New(report.CodeReservationWithoutMandatory,
			"allocation does not use the reused allocation %s", req.ReusedAllocationID).
			WithParam("allocation", req.ReusedAllocationID))
	}
	return root, task, nil
}

func reuses(reservations []*types.Reservation, allocationID string) bool {
	for _, r := range reservations {
		if r.Existing != nil && r.Existing.AllocationID == allocationID {
			return true
		}
	}
	return false
}

// commit turns a successful attempt into a change set. Previous
// reservations of the allocation that did not start yet are deleted and
// running ones end where the new reservation starts. Allocated requests
// reusing a changed reservation go back to COMPLETE in the same change set.
func commit(ctx *Context, req *request.ReservationRequest, allocation *types.Allocation, root *types.Reservation, task *Task) (*attemptOutcome, error) {
	outcome := &attemptOutcome{root: root}

	previous, err := ctx.reader.ListReservationsByAllocation(allocation.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations of allocation %s: %w", allocation.ID, err)
	}
	changes, changed := reconciler.Truncate(previous, ctx.now, root.Slot.Start)
	if changed > 0 {
		usages, err := requeueUsages(ctx.reader, allocation.ID, changes, ctx.now)
		if err != nil {
			return nil, err
		}
		for _, usage := range usages {
			changes.PutRequest(usage)
			outcome.requeued = append(outcome.requeued, usage.ID)
		}
	}
	for _, id := range changes.DeleteReservations {
		for _, old := range previous {
			if old.ID == id && old.ParentID == "" {
				outcome.deleted = append(outcome.deleted, id)
				allocation.RemoveReservation(id)
			}
		}
	}

	for _, r := range ctx.state.Allocated() {
		r.AllocationID = allocation.ID
		changes.PutReservations = append(changes.PutReservations, r)
	}
	allocation.State = types.AllocationActive
	allocation.RequestID = req.ID
	allocation.AddReservation(root.ID)
	changes.PutAllocation(allocation)

	req.AllocationID = allocation.ID
	if err := req.MarkAllocated(task.Report()); err != nil {
		return nil, err
	}
	changes.PutRequest(req)

	outcome.changes = changes
	return outcome, nil
}

// requeueUsages returns the allocated requests whose existing reservations
// reference a reservation of allocationID deleted or shortened by
// truncated, moved back to COMPLETE.
func requeueUsages(reader storage.Reader, allocationID string, truncated *storage.ChangeSet, now time.Time) ([]*request.ReservationRequest, error) {
	changed := make(map[string]bool)
	for _, id := range truncated.DeleteReservations {
		changed[id] = true
	}
	for _, r := range truncated.PutReservations {
		changed[r.ID] = true
	}

	all, err := reader.ListReservations()
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	seen := make(map[string]bool)
	var usages []*request.ReservationRequest
	for _, r := range all {
		if r.Existing == nil || r.Existing.AllocationID != allocationID || r.AllocationID == allocationID {
			continue
		}
		if !changed[r.Existing.ReservationID] || seen[r.AllocationID] {
			continue
		}
		seen[r.AllocationID] = true

		usage, err := reader.GetAllocation(r.AllocationID)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		usageRequest, err := reader.GetRequest(usage.RequestID)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if usageRequest.State != request.StateActive || usageRequest.AllocationState != request.AllocationAllocated {
			continue
		}
		if err := usageRequest.Reallocate(); err != nil {
			return nil, err
		}
		usageRequest.UpdatedAt = now
		usages = append(usages, usageRequest)
	}
	return usages, nil
}

// Outcome is the result of a dry run
type Outcome struct {
	Root         *types.Reservation
	Reservations []*types.Reservation
	Report       *report.Report
}

// DryRunOptions seed a dry run with reservations it may use
type DryRunOptions struct {
	UserID string
	// ReallocatableAllocationID offers that allocation's reservations as
	// REALLOCATABLE, as when the owning request itself is reallocated.
	ReallocatableAllocationID string
	// ReusedAllocationID offers that allocation's reservations as REUSABLE
	ReusedAllocationID string
	// IDs overrides the id source; dry runs never persist the ids
	IDs types.IDGenerator
}

// DryRun allocates spec for slot against the current state without
// persisting anything. Expected failures are returned as *report.Error.
func (s *Scheduler) DryRun(spec *specification.Specification, slot types.Interval, opts DryRunOptions) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := opts.IDs
	if ids == nil {
		ids = types.NewSequenceGenerator("dry-run")
	}
	now := s.clock()

	var outcome *Outcome
	err := s.store.View(func(reader storage.Reader) error {
		ctx := NewContext(reader, now, ids, WithUserID(opts.UserID), WithLogger(s.logger))
		if opts.ReallocatableAllocationID != "" {
			if err := ctx.SetReallocatableAllocation(opts.ReallocatableAllocationID, slot); err != nil {
				return err
			}
		}
		if opts.ReusedAllocationID != "" {
			if _, err := ctx.SetReusableAllocation(opts.ReusedAllocationID, opts.ReallocatableAllocationID, slot.ClipStart(now)); err != nil {
				return err
			}
		}
		task := NewTask(ctx, spec, slot)
		root, err := task.Perform()
		if err != nil {
			return err
		}
		outcome = &Outcome{Root: root, Reservations: ctx.state.Allocated(), Report: task.Report()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *Scheduler) publish(published ...*events.Event) {
	for _, event := range published {
		event.Timestamp = s.clock()
		s.publisher.Publish(event)
	}
}
