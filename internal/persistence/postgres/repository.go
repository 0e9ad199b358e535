// Package postgres provides Postgres-backed persistence for checkpoints, attendance sessions
// and their outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/events"
)

// Repository implements domain.SessionStore and domain.CheckpointStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Connect opens a pool and waits for the database to answer.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, session domain.AttendanceSession, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"attendance_session",
		session.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(session),
		body,
		fmt.Sprintf("%s:%s", session.ID, eventType),
	)
	if err != nil {
		return mapError("insert outbox", err)
	}
	return nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.AttendanceSession) string
}

// Events for one user share a partition so consumers see them in order.
var eventCatalog = map[string]EventMetadata{
	events.TypeClockedIn: {
		Topic:          events.TopicAttendance,
		SchemaSubject:  events.SubjectClockedIn,
		PartitionKeyFn: func(s domain.AttendanceSession) string { return s.UserID },
	},
	events.TypeClockedOut: {
		Topic:          events.TopicAttendance,
		SchemaSubject:  events.SubjectClockedOut,
		PartitionKeyFn: func(s domain.AttendanceSession) string { return s.UserID },
	},
}

// mapError classifies Postgres failures: serialization failures, deadlocks, lock timeouts and
// unique violations are conflicts the service may retry.
func mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "23505":
			return domain.WrapError(domain.KindConflict, op, err)
		case "23503":
			return domain.WrapError(domain.KindNotFound, op+": checkpoint not found", err)
		case "23514":
			return domain.WrapError(domain.KindInvalidInput, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
