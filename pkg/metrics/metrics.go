package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// State metrics
	ResourcesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_resources_total",
			Help: "Total number of managed resources",
		},
	)

	RequestsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_requests_total",
			Help: "Total number of active reservation requests by allocation state",
		},
		[]string{"state"},
	)

	ReservationsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_reservations_total",
			Help: "Total number of stored reservations by kind",
		},
		[]string{"kind"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// Scheduler metrics
	AllocationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_allocation_latency_seconds",
			Help:    "Time taken to allocate one reservation request in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AllocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_allocations_total",
			Help: "Total number of allocation attempts by result",
		},
		[]string{"result"},
	)

	SchedulerRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_scheduler_run_duration_seconds",
			Help:    "Duration of a full scheduler pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Availability metrics
	AvailabilityChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_availability_checks_total",
			Help: "Total number of availability checks by result",
		},
		[]string{"result"},
	)

	AvailabilityCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_availability_cache_hits_total",
			Help: "Total number of availability checks answered from cache",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_reconciliation_duration_seconds",
			Help:    "Duration of a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReservationsReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_reservations_released_total",
			Help: "Total number of future reservations released by the reconciler",
		},
	)
)

// Allocation and availability results
const (
	ResultAllocated = "allocated"
	ResultFailed    = "failed"
	ResultAvailable = "available"
	ResultBusy      = "unavailable"
	ResultError     = "error"
)

func init() {
	prometheus.MustRegister(ResourcesTotal)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(ReservationsTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(AllocationLatency)
	prometheus.MustRegister(AllocationsTotal)
	prometheus.MustRegister(SchedulerRunDuration)
	prometheus.MustRegister(AvailabilityChecksTotal)
	prometheus.MustRegister(AvailabilityCacheHits)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReservationsReleased)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds in histogram
func (t *Timer) ObserveDuration(histogram prometheus.Observer) {
	histogram.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed seconds in histogram under labels
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
