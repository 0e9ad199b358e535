//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/attendance/internal/events"
	"example.com/attendance/internal/testsupport"
)

func TestPersistenceHandlerStoresEvent(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(t)

	handler := NewPersistenceHandler(pool)

	payload := json.RawMessage(`{"session_id":"session-1","user_id":"user-1","checkpoint_id":"cp-1","status":"PRESENT"}`)
	msg := Message{
		EventType:     events.TypeClockedIn,
		EventID:       3,
		AggregateID:   "session-1",
		SchemaID:      42,
		SchemaSubject: events.SubjectClockedIn,
		Topic:         events.TopicAttendance,
		Partition:     0,
		Offset:        5,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	duplicates := eventLogWrites.WithLabelValues(events.TypeClockedIn, "duplicate")
	before := testutil.ToFloat64(duplicates)

	require.NoError(t, handler.Handle(ctx, msg))
	// Redelivery of the same offset is a no-op.
	require.NoError(t, handler.Handle(ctx, msg))
	require.Equal(t, before+1, testutil.ToFloat64(duplicates))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM attendance_event_log`).Scan(&count))
	require.Equal(t, 1, count)

	var (
		storedPayload []byte
		userID        string
		sessionID     string
	)
	err := pool.QueryRow(ctx, `SELECT payload, user_id, session_id FROM attendance_event_log LIMIT 1`).Scan(&storedPayload, &userID, &sessionID)
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(storedPayload))
	require.Equal(t, "user-1", userID)
	require.Equal(t, "session-1", sessionID)
}

func TestPersistenceHandlerRejectsNonObjectPayload(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(t)

	err := NewPersistenceHandler(pool).Handle(ctx, Message{
		EventType: events.TypeClockedOut,
		Topic:     events.TopicAttendance,
		Payload:   json.RawMessage(`[1,2,3]`),
		Timestamp: time.Now().UTC(),
	})
	require.Error(t, err)
}
