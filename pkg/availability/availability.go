package availability

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/report"
	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/specification"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/mohae/deepcopy"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultCacheTTL is how long a result is kept for an unchanged store
const DefaultCacheTTL = 30 * time.Second

// Query asks whether Specification could be allocated for Slot now
type Query struct {
	Specification *specification.Specification
	Slot          types.Interval
	UserID        string
	// IgnoredRequestID is a request whose own reservations do not count
	// as conflicts, as when that request is being modified.
	IgnoredRequestID string
	// ReusedRequestID is a request whose allocation may be reused
	ReusedRequestID string
}

// Result of an availability check. Report explains a negative answer and
// lists the planned allocation steps of a positive one.
type Result struct {
	Available bool
	Report    *report.Report
}

// Checker answers availability queries by running the allocation in a
// read-only view of the store. Nothing is ever persisted.
type Checker struct {
	scheduler *scheduler.Scheduler
	store     storage.Store
	cache     *gocache.Cache
	ttl       time.Duration
	logger    zerolog.Logger
}

// NewChecker creates a checker caching results for ttl. A ttl of zero
// disables the cache.
func NewChecker(s *scheduler.Scheduler, store storage.Store, ttl time.Duration) *Checker {
	c := &Checker{
		scheduler: s,
		store:     store,
		ttl:       ttl,
		logger:    log.WithComponent("availability"),
	}
	if ttl > 0 {
		c.cache = gocache.New(ttl, 2*ttl)
	}
	return c
}

// Check runs the query. Expected allocation failures produce a result
// with Available false; only storage and internal failures are errors.
func (c *Checker) Check(q Query) (*Result, error) {
	if q.Specification == nil {
		return nil, report.Errorf(report.CodeSpecificationInvalid, "specification is required")
	}
	if err := q.Specification.Validate(); err != nil {
		return unavailable(err)
	}

	now := c.scheduler.Now()
	cacheable := c.cache != nil && !q.Slot.Start.Before(now.Add(c.ttl))
	key, err := c.key(q, now)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if cached, ok := c.cache.Get(key); ok {
			metrics.AvailabilityCacheHits.Inc()
			return cached.(*Result).clone(), nil
		}
	}

	result, err := c.check(q)
	if err != nil {
		metrics.AvailabilityChecksTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}
	if result.Available {
		metrics.AvailabilityChecksTotal.WithLabelValues(metrics.ResultAvailable).Inc()
	} else {
		metrics.AvailabilityChecksTotal.WithLabelValues(metrics.ResultBusy).Inc()
	}
	if cacheable {
		c.cache.SetDefault(key, result.clone())
	}
	return result, nil
}

func (r *Result) clone() *Result {
	return deepcopy.Copy(r).(*Result)
}

func (c *Checker) check(q Query) (*Result, error) {
	if q.Specification.State() == specification.StateNotReady {
		return &Result{Report: report.New(report.CodeSpecificationNotReady,
			"specification is not complete")}, nil
	}

	opts := scheduler.DryRunOptions{UserID: q.UserID}
	var refused error
	err := c.store.View(func(reader storage.Reader) error {
		if q.IgnoredRequestID != "" {
			ignored, err := reader.GetRequest(q.IgnoredRequestID)
			if err != nil {
				return fmt.Errorf("failed to load ignored request: %w", err)
			}
			opts.ReallocatableAllocationID = ignored.AllocationID
		}
		if q.ReusedRequestID != "" {
			reused, err := reader.GetRequest(q.ReusedRequestID)
			if err != nil {
				return fmt.Errorf("failed to load reused request: %w", err)
			}
			if err := request.CheckReusable(reused, q.UserID); err != nil {
				refused = err
				return nil
			}
			opts.ReusedAllocationID = reused.AllocationID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if refused != nil {
		return unavailable(refused)
	}

	outcome, err := c.scheduler.DryRun(q.Specification, q.Slot, opts)
	if err != nil {
		c.logger.Debug().Err(err).Str("slot", q.Slot.String()).Msg("Specification not available")
		return unavailable(err)
	}
	return &Result{Available: true, Report: outcome.Report}, nil
}

// unavailable converts a report error into a negative result
func unavailable(err error) (*Result, error) {
	var reportErr *report.Error
	if errors.As(err, &reportErr) {
		return &Result{Report: reportErr.Report}, nil
	}
	return nil, err
}

// key identifies a query against the current store revision and a clock
// bucket of the cache ttl, so any committed change and the passing of
// time invalidate earlier results. Slots starting within one ttl of now
// are never cached.
func (c *Checker) key(q Query, now time.Time) (string, error) {
	encoded, err := yaml.Marshal(q.Specification)
	if err != nil {
		return "", fmt.Errorf("failed to encode specification: %w", err)
	}
	sum := sha256.Sum256(encoded)
	var bucket int64
	if c.ttl > 0 {
		bucket = now.Truncate(c.ttl).Unix()
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d", hex.EncodeToString(sum[:]), q.Slot, q.UserID,
		q.IgnoredRequestID, q.ReusedRequestID, c.store.Revision(), bucket), nil
}
