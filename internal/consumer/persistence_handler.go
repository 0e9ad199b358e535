package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PersistenceHandler appends consumed attendance events to attendance_event_log, the audit
// trail timesheet and report jobs read from.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Handle stores the event. Redelivered records are ignored by their topic, partition and offset.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	var ref struct {
		UserID    string `json:"user_id"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(msg.Payload, &ref); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
	}

	tag, err := h.pool.Exec(ctx,
		`INSERT INTO attendance_event_log (event_type, schema_id, schema_subject, topic, partition, record_offset, user_id, session_id, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		nullIfEmpty(ref.UserID),
		nullIfEmpty(ref.SessionID),
		msg.Payload,
		msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	result := "inserted"
	if tag.RowsAffected() == 0 {
		result = "duplicate"
	}
	eventLogWrites.WithLabelValues(msg.EventType, result).Inc()
	return nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
