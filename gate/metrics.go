package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "kubegate"
)

var (
	phaseDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "gate",
		Name:      "phase_duration_seconds",
		Help:      "Time spent in each gate phase",
		// The cluster phase alone can run for minutes.
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 14),
	}, []string{"phase"})
	phaseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "gate",
		Name:      "phase_failures_total",
		Help:      "Count of gate phases that ended in error",
	}, []string{"phase"})

	probesAttempted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "wait",
		Name:      "probes_total",
		Help:      "Count of readiness probes attempted",
	})
	probeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "wait",
		Name:      "probe_errors_total",
		Help:      "Count of readiness probes that failed outright",
	})
	waitDurations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "wait",
		Name:      "duration_seconds",
		Help:      "Time spent waiting for the node to report ready",
		Buckets:   prometheus.LinearBuckets(30, 30, 20),
	})

	packagesInstalled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "packages",
		Name:      "installed_total",
		Help:      "Count of packages handed to the package manager",
	})

	captureSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "capture",
		Name:      "sessions_started_total",
		Help:      "Count of log capture sessions launched",
	})
)
