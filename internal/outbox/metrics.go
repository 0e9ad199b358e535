package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DLQ transition results.
const (
	dlqRouted      = "routed"
	dlqRequeued    = "requeued"
	dlqRescheduled = "rescheduled"
	dlqQuarantined = "quarantined"
)

const (
	queueOutbox = "outbox"
	queueDLQ    = "dlq"
)

var (
	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "outbox",
		Name:      "events_published_total",
		Help:      "Attendance events written to Kafka, by event type.",
	}, []string{"event_type"})

	publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "outbox",
		Name:      "publish_failures_total",
		Help:      "Attendance events whose batch failed to publish, by event type.",
	}, []string{"event_type"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendance_service",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time to claim, publish and settle one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "dlq",
		Name:      "transitions_total",
		Help:      "Dead-letter entries by event type and result (routed, requeued, rescheduled, quarantined).",
	}, []string{"event_type", "result"})

	pendingGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "attendance_service",
		Name:      "pending_events",
		Help:      "Events waiting in the outbox or the live part of the DLQ.",
	}, []string{"queue"})
)

func init() {
	prometheus.MustRegister(publishedCounter, publishFailures, batchDuration, dlqTransitions, pendingGauge)
}

func countByType(messages []Message, vec *prometheus.CounterVec) {
	for _, msg := range messages {
		vec.WithLabelValues(msg.EventType).Inc()
	}
}

func recordDLQ(eventType, result string) {
	dlqTransitions.WithLabelValues(eventType, result).Inc()
}

var pendingQueries = map[string]string{
	queueOutbox: `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`,
	queueDLQ:    `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`,
}

// refreshPending samples a queue depth. Failures leave the previous value in place.
func refreshPending(ctx context.Context, pool *pgxpool.Pool, queue string) {
	var count int
	if err := pool.QueryRow(ctx, pendingQueries[queue]).Scan(&count); err != nil {
		return
	}
	pendingGauge.WithLabelValues(queue).Set(float64(count))
}
