//go:build integration

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/attendance/internal/consumer"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/events"
	"example.com/attendance/internal/persistence/postgres"
	"example.com/attendance/internal/testsupport"
)

// Clock-in event: failed dispatch, DLQ replay, Kafka delivery, event log projection.
func TestDLQReplayReachesEventLog(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	pool, _ := testsupport.StartPostgres(t)
	repo := postgres.NewRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	office := domain.Location{Latitude: 14.5995, Longitude: 120.9842}
	checkpoint := domain.Checkpoint{
		ID:           uuid.NewString(),
		Name:         "Main Office",
		Center:       office,
		RadiusMeters: 100,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.CreateCheckpoint(ctx, checkpoint))

	userID := uuid.NewString()
	session, err := domain.NewService(repo, repo).ClockIn(ctx, userID, checkpoint.ID, office)
	require.NoError(t, err)

	registry := &stubRegistry{id: 100}

	// 1. Initial dispatch fails and moves the event to the DLQ.
	failing := NewDispatcher(pool, &stubProducer{err: errors.New("upstream kafka unavailable")}, registry, 5*time.Millisecond, 10)
	require.NoError(t, failing.processBatch(ctx))

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Equal(t, 1, dlqCount, "expected message routed to DLQ on failure")

	// 2. Replay puts it back on the outbox.
	replayed, err := NewDLQManager(pool, 5, time.Second).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, replayed)
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Zero(t, dlqCount, "expected DLQ cleared after requeue")

	// 3. Kafka plus the event log consumer.
	kContainer, err := kafkaContainer.Run(ctx, "confluentinc/confluent-local:7.5.0", kafkaContainer.WithClusterID("attendance-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kContainer.Terminate(context.Background()) })

	brokers, err := kContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             events.TopicAttendance,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "attendance-integration",
		Topic:       events.TopicAttendance,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	go func() {
		_ = consumer.NewProcessor(reader, consumer.NewPersistenceHandler(pool)).Run(consumerCtx)
	}()

	writer := NewKafkaWriter(brokers)
	defer writer.Close()
	require.NoError(t, NewDispatcher(pool, writer, registry, 5*time.Millisecond, 10).processBatch(ctx))

	require.Eventually(t, func() bool {
		var sessionID string
		err := pool.QueryRow(ctx,
			`SELECT session_id FROM attendance_event_log WHERE user_id = $1 AND event_type = $2`,
			userID, events.TypeClockedIn,
		).Scan(&sessionID)
		return err == nil && sessionID == session.ID
	}, 45*time.Second, time.Second, "expected clock-in event to reach the event log")

	var schemaID int
	require.NoError(t, pool.QueryRow(ctx, `SELECT schema_id FROM attendance_event_log WHERE user_id = $1`, userID).Scan(&schemaID))
	require.Equal(t, 100, schemaID)
}
