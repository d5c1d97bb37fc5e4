package worker

import (
	"github.com/prometheus/client_golang/prometheus"

	"kiln/internal/services"
	"kiln/internal/storage"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_runs_total",
			Help: "Total render runs processed, by outcome.",
		},
		[]string{"status"},
	)

	runFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_run_failures_total",
			Help: "Failed render runs, by failure kind.",
		},
		[]string{"kind"},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kiln_run_duration_seconds",
			Help:    "End-to-end render run duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	artifactsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_artifacts_stored_total",
			Help: "Artifacts stored, by storage mode.",
		},
		[]string{"mode"},
	)

	heartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_heartbeats_total",
			Help: "Heartbeat events acknowledged without engine work.",
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runFailures)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(artifactsStored)
	prometheus.MustRegister(heartbeatsTotal)

	// Pre-initialize label combinations so they report 0 from startup
	// rather than appearing only after the first observation.
	runsTotal.WithLabelValues(StatusCompleted)
	runsTotal.WithLabelValues(StatusFailed)
	for _, kind := range []services.Kind{
		services.KindSetup,
		services.KindStartup,
		services.KindSubmission,
		services.KindEngine,
		services.KindTimeout,
		services.KindLocate,
		services.KindStorage,
		services.KindValidation,
		services.KindTransient,
	} {
		runFailures.WithLabelValues(string(kind))
	}
	artifactsStored.WithLabelValues(storage.ModeVolume)
	artifactsStored.WithLabelValues(storage.ModePresign)
}
