// Package metrics exposes Prometheus collectors for the HTTP surface, the
// job lifecycle, quota accounting and the worker pool.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "batchd"

// Event outcomes
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeError     = "error"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "route"})

	batchesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "submitted_total",
		Help:      "Batches accepted for processing.",
	})

	jobsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "jobs_submitted_total",
		Help:      "Jobs accepted for processing by operation.",
	}, []string{"operation"})

	jobTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "job_transitions_total",
		Help:      "Job status transitions by target status.",
	}, []string{"status"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "job_duration_seconds",
		Help:      "Time from submission to a terminal status.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"operation", "status"})

	events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "received_total",
		Help:      "Worker events by source and outcome.",
	}, []string{"source", "outcome"})

	dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "messages_total",
		Help:      "Dispatch attempts by result.",
	}, []string{"result"})

	quotaOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "quota",
		Name:      "operations_total",
		Help:      "Quota ledger operations by kind and result.",
	}, []string{"op", "result"})

	sweptJobs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "swept_jobs_total",
		Help:      "Stale jobs failed by the sweeper.",
	})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		batchesSubmitted,
		jobsSubmitted,
		jobTransitions,
		jobDuration,
		events,
		dispatches,
		quotaOps,
		sweptJobs,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// HTTPStart marks a request in flight and returns the function that records it.
func HTTPStart() func(method, route string, status int) {
	start := time.Now()
	httpInFlight.Inc()
	return func(method, route string, status int) {
		httpInFlight.Dec()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// BatchSubmitted records an accepted batch and its jobs per operation.
func BatchSubmitted(jobsByOperation map[string]int) {
	batchesSubmitted.Inc()
	for op, n := range jobsByOperation {
		jobsSubmitted.WithLabelValues(op).Add(float64(n))
	}
}

// JobTransition records a status change. elapsed is observed for terminal
// statuses only.
func JobTransition(operation, status string, terminal bool, elapsed time.Duration) {
	jobTransitions.WithLabelValues(status).Inc()
	if terminal {
		jobDuration.WithLabelValues(operation, status).Observe(elapsed.Seconds())
	}
}

// EventReceived records a worker event outcome.
func EventReceived(source, outcome string) {
	events.WithLabelValues(source, outcome).Inc()
}

// Dispatch records a dispatch attempt.
func Dispatch(err error) {
	dispatches.WithLabelValues(result(err)).Inc()
}

// QuotaOp records a quota ledger call.
func QuotaOp(op string, err error) {
	quotaOps.WithLabelValues(op, result(err)).Inc()
}

// JobsSwept records jobs failed by the sweeper.
func JobsSwept(n int) {
	sweptJobs.Add(float64(n))
}

// RegisterPool exposes worker pool gauges read from stats on scrape.
func RegisterPool(name string, stats func() map[string]int64) error {
	for _, key := range []string{"active_workers", "pending_tasks", "completed_tasks", "failed_tasks"} {
		key := key
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        key,
			Help:        "Worker pool " + key + ".",
			ConstLabels: prometheus.Labels{"pool": name},
		}, func() float64 { return float64(stats()[key]) })
		if err := Registry.Register(g); err != nil {
			return err
		}
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
