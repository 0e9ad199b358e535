package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/attendance/internal/events"
)

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes [][]kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, copied)
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}

func clockedInMessage(id int64, userID string) Message {
	return Message{
		EventID:       id,
		AggregateType: "attendance_session",
		AggregateID:   "session-1",
		EventType:     events.TypeClockedIn,
		Topic:         events.TopicAttendance,
		SchemaSubject: events.SubjectClockedIn,
		PartitionKey:  userID,
		Payload:       []byte(`{"session_id":"session-1"}`),
	}
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestDeliverFramesAndTagsMessages(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := NewDispatcher(nil, producer, registry, 0, 0)

	require.NoError(t, d.deliver(context.Background(), []Message{clockedInMessage(1, "u1"), clockedInMessage(2, "u2")}))

	require.Len(t, producer.writes, 1)
	batch := producer.writes[0]
	require.Len(t, batch, 2)

	first := batch[0]
	require.Equal(t, events.TopicAttendance, first.Topic)
	require.Equal(t, "u1", string(first.Key))
	require.Equal(t, []byte{0, 0, 0, 0, 42}, first.Value[:5])
	require.JSONEq(t, `{"session_id":"session-1"}`, string(first.Value[5:]))
	require.Equal(t, events.TypeClockedIn, header(first, "event_type"))
	require.Equal(t, events.SubjectClockedIn, header(first, "schema_subject"))
	require.Equal(t, "1", header(first, "event_id"))

	require.Len(t, registry.calls, 1, "schema id should be cached across the batch")
}

func TestDeliverRegistersEachSubjectOnce(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 9}
	d := NewDispatcher(nil, producer, registry, 0, 0)

	out := clockedInMessage(2, "u1")
	out.EventType = events.TypeClockedOut
	out.SchemaSubject = events.SubjectClockedOut

	require.NoError(t, d.deliver(context.Background(), []Message{clockedInMessage(1, "u1"), out}))
	require.NoError(t, d.deliver(context.Background(), []Message{clockedInMessage(3, "u1")}))

	require.Len(t, registry.calls, 2)
	require.Equal(t, events.SubjectClockedIn, registry.calls[0].subject)
	require.Equal(t, events.SubjectClockedOut, registry.calls[1].subject)
	require.Len(t, producer.writes, 2)
}

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{}`))
	require.Equal(t, []byte{0, 0, 0, 1, 2, '{', '}'}, frame)
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{}
	d := NewDispatcher(nil, producer, registry, 0, 0)

	msg := clockedInMessage(1, "u1")
	msg.EventType = "attendance.unknown"
	err := d.deliver(context.Background(), []Message{msg})
	require.ErrorContains(t, err, "no schema metadata for event_type=attendance.unknown")
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
}

func TestDeliverPropagatesRegistryFailure(t *testing.T) {
	d := NewDispatcher(nil, &stubProducer{}, &stubRegistry{err: errors.New("registry down")}, 0, 0)

	err := d.deliver(context.Background(), []Message{clockedInMessage(1, "u1")})
	require.ErrorContains(t, err, "registry down")
}

func TestBackoffDelay(t *testing.T) {
	m := NewDLQManager(nil, 0, 0)
	require.Equal(t, 5, m.maxRetries)
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 4*time.Minute, m.backoffDelay(3))
	require.Equal(t, time.Hour, m.backoffDelay(10))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}
