// Package prom defines the manager's Prometheus metrics.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric the manager exports.
const Namespace = "corral"

// Metrics are the counters and histograms updated by the API and the scheduler.
type Metrics struct {
	TasksSubmitted prometheus.Counter
	StatusUpdates  *prometheus.CounterVec
	SweepDuration  prometheus.Histogram
	SweepErrors    prometheus.Counter
	Assignments    *prometheus.CounterVec
}

// NewMetrics creates the manager's metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "api",
			Name:      "tasks_submitted_total",
			Help:      "Tasks accepted by POST /tasks.",
		}),
		StatusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "api",
			Name:      "status_updates_total",
			Help:      "Status reports from workers, by reported status and outcome.",
		}, []string{"status", "outcome"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "sweep_seconds",
			Help:      "Time spent assigning Pending tasks in one scheduler pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		SweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "sweep_errors_total",
			Help:      "Scheduler passes that failed to read or write the task store.",
		}),
		Assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "assignments_total",
			Help:      "Tasks assigned to nodes, by node.",
		}, []string{"node"}),
	}
	reg.MustRegister(
		m.TasksSubmitted, m.StatusUpdates, m.SweepDuration, m.SweepErrors, m.Assignments,
	)
	return m
}

// NewUnregisteredMetrics returns metrics that are never exported.
func NewUnregisteredMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// Time observes the time until the returned func is called.
//
//	defer prom.Time(h)()
func Time(o prometheus.Observer) func() {
	start := time.Now()
	return func() {
		o.Observe(time.Since(start).Seconds())
	}
}

// ErrCount increments c if *err is non-nil when called; use it with defer.
func ErrCount(c prometheus.Counter, err *error) {
	if *err != nil {
		c.Inc()
	}
}
