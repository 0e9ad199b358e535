package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	clockAttemptsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "clock",
		Name:      "attempts_total",
		Help:      "Clock-in and clock-out attempts grouped by action and outcome.",
	}, []string{"action", "outcome"})

	clockDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance_service",
		Subsystem: "clock",
		Name:      "duration_seconds",
		Help:      "Time spent evaluating and persisting clock transitions.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"action"})

	clockConflictRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "clock",
		Name:      "conflict_retries_total",
		Help:      "Clock transitions retried after a concurrent update was detected.",
	})

	lastClockGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance_service",
		Subsystem: "persistence",
		Name:      "last_clock_timestamp_seconds",
		Help:      "Unix timestamp of the most recent clock transition persisted.",
	})
)

func init() {
	prometheus.MustRegister(clockAttemptsCounter, clockDuration, clockConflictRetries, lastClockGauge)
}

// RecordClockAttempt counts a clock attempt and observes its latency.
func RecordClockAttempt(action, outcome string, elapsed time.Duration) {
	clockAttemptsCounter.WithLabelValues(action, outcome).Inc()
	clockDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// RecordConflictRetry counts a retried transition.
func RecordConflictRetry() {
	clockConflictRetries.Inc()
}

// RecordClockPersisted updates the persistence watermark gauge.
func RecordClockPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastClockGauge.Set(float64(ts.Unix()))
}

// ClockAttempts exposes the attempts counter for tests.
func ClockAttempts(action, outcome string) prometheus.Counter {
	return clockAttemptsCounter.WithLabelValues(action, outcome)
}
