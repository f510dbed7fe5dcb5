// Package metrics exposes Prometheus collectors for the run-controller service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTriggeredTotal  prometheus.Counter
	runRejectionsTotal  *prometheus.CounterVec
	probeAttemptsTotal  *prometheus.CounterVec
	runsCompletedTotal  prometheus.Counter
	runsStuckTotal      prometheus.Counter
	pollSessionDuration prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsTriggeredTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_runs_triggered_total",
			Help: "Total number of pipeline runs triggered by this controller.",
		})

		runRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_run_rejections_total",
				Help: "Run requests denied by the rate-limit guard, labeled by reason.",
			},
			[]string{"reason"},
		)

		probeAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_probe_attempts_total",
				Help: "Remote status probe attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		runsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_runs_completed_total",
			Help: "Watched runs whose completion was detected.",
		})

		runsStuckTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_runs_stuck_total",
			Help: "Watched runs abandoned after the attempt budget was exhausted.",
		})

		pollSessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_poll_session_duration_seconds",
			Help:    "Wall-clock duration of poll sessions from start to a terminal state.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		})
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncRunTriggered counts a successfully triggered run.
func IncRunTriggered() {
	if runsTriggeredTotal != nil {
		runsTriggeredTotal.Inc()
	}
}

// IncRunRejected counts a guard denial. Reason is "cooldown" or "running".
func IncRunRejected(reason string) {
	if runRejectionsTotal != nil {
		runRejectionsTotal.WithLabelValues(reason).Inc()
	}
}

// IncProbeAttempt counts one probe tick. Outcome is "running", "done" or "error".
func IncProbeAttempt(outcome string) {
	if probeAttemptsTotal != nil {
		probeAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncRunCompleted counts a detected completion.
func IncRunCompleted() {
	if runsCompletedTotal != nil {
		runsCompletedTotal.Inc()
	}
}

// IncRunStuck counts an exhausted attempt budget.
func IncRunStuck() {
	if runsStuckTotal != nil {
		runsStuckTotal.Inc()
	}
}

// ObserveSessionDuration records the lifetime of a finished poll session.
func ObserveSessionDuration(d time.Duration) {
	if pollSessionDuration != nil {
		pollSessionDuration.Observe(d.Seconds())
	}
}
