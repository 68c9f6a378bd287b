package metrics

import (
	"time"

	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/storage"
)

// RaftStats is implemented by the raft manager
type RaftStats interface {
	IsLeader() bool
	GetRaftStats() map[string]interface{}
}

// Collector refreshes state gauges from the store
type Collector struct {
	store    storage.Reader
	raft     RaftStats
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector. raft may be nil when the
// node runs without replication.
func NewCollector(store storage.Reader, raft RaftStats) *Collector {
	return &Collector{
		store:    store,
		raft:     raft,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect refreshes every gauge once
func (c *Collector) Collect() {
	c.collectResourceMetrics()
	c.collectRequestMetrics()
	c.collectReservationMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectResourceMetrics() {
	resources, err := c.store.ListResources()
	if err != nil {
		return
	}
	ResourcesTotal.Set(float64(len(resources)))
}

func (c *Collector) collectRequestMetrics() {
	requests, err := c.store.ListRequests()
	if err != nil {
		return
	}

	counts := map[request.AllocationState]int{
		request.AllocationNotComplete: 0,
		request.AllocationComplete:    0,
		request.AllocationAllocated:   0,
		request.AllocationFailed:      0,
		request.AllocationDenied:      0,
	}
	for _, r := range requests {
		if r.State != request.StateActive {
			continue
		}
		counts[r.AllocationState]++
	}

	for state, count := range counts {
		RequestsTotal.WithLabelValues(string(state)).Set(float64(count))
	}
}

func (c *Collector) collectReservationMetrics() {
	reservations, err := c.store.ListReservations()
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, r := range reservations {
		counts[string(r.Kind)]++
	}
	ReservationsTotal.Reset()
	for kind, count := range counts {
		ReservationsTotal.WithLabelValues(kind).Set(float64(count))
	}
}

func (c *Collector) collectRaftMetrics() {
	if c.raft == nil {
		return
	}
	if c.raft.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.raft.GetRaftStats()
	if stats != nil {
		if lastIndex, ok := stats["last_log_index"].(uint64); ok {
			RaftLogIndex.Set(float64(lastIndex))
		}
		if appliedIndex, ok := stats["applied_index"].(uint64); ok {
			RaftAppliedIndex.Set(float64(appliedIndex))
		}
	}
}
