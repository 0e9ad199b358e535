//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"example.com/attendance/internal/events"
	"example.com/attendance/internal/testsupport"
)

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(t)

	require.NotZero(t, seedOutbox(t, ctx, pool, uuid.NewString(), events.TypeClockedIn))

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	published := publishedCounter.WithLabelValues(events.TypeClockedIn)
	beforePublished := testutil.ToFloat64(published)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Len(t, producer.writes[0], 1)
	require.Equal(t, events.TopicAttendance, producer.writes[0][0].Topic)

	require.InDelta(t, beforePublished+1, testutil.ToFloat64(published), 0.0001)
	require.Zero(t, testutil.ToFloat64(pendingGauge.WithLabelValues(queueOutbox)))
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var publishedRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&publishedRows))
	require.Equal(t, 1, publishedRows)

	// Nothing left to claim.
	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 1)
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(t)

	aggregateID := uuid.NewString()
	require.NotZero(t, seedOutbox(t, ctx, pool, aggregateID, events.TypeClockedOut))

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 7}, 10*time.Millisecond, 5)

	failed := publishFailures.WithLabelValues(events.TypeClockedOut)
	routed := dlqTransitions.WithLabelValues(events.TypeClockedOut, dlqRouted)
	beforeFailed := testutil.ToFloat64(failed)
	beforeRouted := testutil.ToFloat64(routed)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failed), 0.0001)
	require.InDelta(t, beforeRouted+1, testutil.ToFloat64(routed), 0.0001)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE aggregate_id = $1`, aggregateID).Scan(&dlqCount))
	require.Equal(t, 1, dlqCount)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherUnknownSchemaMovesEventsToDLQ(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(t)

	eventID := seedOutbox(t, ctx, pool, uuid.NewString(), "attendance.unknown")
	require.NotZero(t, eventID)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 99}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Empty(t, producer.writes, "unknown schema should skip kafka writes")
	require.Empty(t, registry.calls, "schema registry should not be invoked when metadata missing")

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&reason))
	require.Contains(t, reason, "no schema metadata for event_type=attendance.unknown")
}

func TestDLQManagerQuarantinesAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(t)

	_, err := pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
         VALUES (1, $1, $2, '{}', 'boom', 'attendance_session', 'session-1', '', 'u1', 0, NOW())`,
		events.TypeClockedIn, events.TopicAttendance,
	)
	require.NoError(t, err)

	manager := NewDLQManager(pool, 1, time.Millisecond)

	// Missing schema subject cannot be requeued: the entry is rescheduled.
	handled, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, handled)

	var retries int
	require.NoError(t, pool.QueryRow(ctx, `SELECT retry_count FROM outbox_dlq`).Scan(&retries))
	require.Equal(t, 1, retries)

	require.Eventually(t, func() bool {
		n, err := manager.RunOnce(ctx, 10)
		return err == nil && n == 1
	}, 5*time.Second, 50*time.Millisecond)

	var quarantined bool
	require.NoError(t, pool.QueryRow(ctx, `SELECT quarantined_at IS NOT NULL FROM outbox_dlq`).Scan(&quarantined))
	require.True(t, quarantined)
	require.Zero(t, testutil.ToFloat64(pendingGauge.WithLabelValues(queueDLQ)))
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, aggregateID, eventType string) int64 {
	t.Helper()

	subject := events.SubjectClockedIn
	if eventType == events.TypeClockedOut {
		subject = events.SubjectClockedOut
	}

	payload, err := json.Marshal(events.ClockedIn{
		SessionID:    aggregateID,
		UserID:       "user-1",
		CheckpointID: "checkpoint-1",
		Status:       "PRESENT",
		ClockIn:      time.Now().UTC(),
		OccurredAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	var eventID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7)
         RETURNING event_id`,
		"attendance_session", aggregateID, eventType, events.TopicAttendance, subject, "user-1", payload,
	).Scan(&eventID)
	require.NoError(t, err)
	return eventID
}
