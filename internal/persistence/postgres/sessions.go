package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/events"
)

const sessionCols = `id, user_id, checkpoint_id, time_in, time_out, status, note, created_at, updated_at`

func scanSession(row pgx.Row) (*domain.AttendanceSession, error) {
	var s domain.AttendanceSession
	var status string
	if err := row.Scan(&s.ID, &s.UserID, &s.CheckpointID, &s.ClockIn, &s.ClockOut,
		&status, &s.Note, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = domain.Status(status)
	if s.ClockIn != nil {
		t := s.ClockIn.UTC()
		s.ClockIn = &t
	}
	if s.ClockOut != nil {
		t := s.ClockOut.UTC()
		s.ClockOut = &t
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

const activeSessionQuery = `SELECT ` + sessionCols + ` FROM attendance_sessions
    WHERE user_id=$1 AND time_in IS NOT NULL AND time_out IS NULL
    ORDER BY time_in DESC LIMIT 1`

// ActiveSession implements domain.SessionStore.
func (r *Repository) ActiveSession(ctx context.Context, userID string) (*domain.AttendanceSession, error) {
	return activeSession(r.pool.QueryRow(ctx, activeSessionQuery, userID))
}

func activeSession(row pgx.Row) (*domain.AttendanceSession, error) {
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return session, nil
}

// ListSessions implements domain.SessionStore.
func (r *Repository) ListSessions(ctx context.Context, q domain.SessionQuery) ([]domain.AttendanceSession, *domain.Cursor, error) {
	args := []any{q.UserID}
	query := `SELECT ` + sessionCols + ` FROM attendance_sessions WHERE user_id=$1 AND time_in IS NOT NULL`

	if q.From != nil {
		args = append(args, *q.From)
		query += fmt.Sprintf(` AND time_in >= $%d`, len(args))
	}
	if q.To != nil {
		args = append(args, *q.To)
		query += fmt.Sprintf(` AND time_in < $%d`, len(args))
	}

	cmp, order := "<", "DESC"
	if q.Ascending {
		cmp, order = ">", "ASC"
	}
	if q.Cursor != nil {
		args = append(args, q.Cursor.ClockIn, q.Cursor.ID)
		query += fmt.Sprintf(` AND (time_in, id) %s ($%d, $%d)`, cmp, len(args)-1, len(args))
	}
	query += fmt.Sprintf(` ORDER BY time_in %s, id %s`, order, order)
	if q.Limit > 0 {
		args = append(args, q.Limit+1)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	results := make([]domain.AttendanceSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan session: %w", err)
		}
		results = append(results, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list sessions: %w", err)
	}

	var nextCursor *domain.Cursor
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{ClockIn: *last.ClockIn, ID: last.ID}
	}
	return results, nextCursor, nil
}

// WithinUserScope implements domain.SessionStore. A transaction-scoped advisory lock keyed on
// the user serialises scopes across every API instance sharing the database; the partial unique
// index on open sessions backs it up.
func (r *Repository) WithinUserScope(ctx context.Context, userID string, fn func(ctx context.Context, tx domain.SessionTx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError("begin tx", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(context.Background())
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "attendance:"+userID); err != nil {
		return mapError("lock user", err)
	}

	if err = fn(ctx, &sessionTx{repo: r, tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return mapError("commit tx", err)
	}
	return nil
}

type sessionTx struct {
	repo *Repository
	tx   pgx.Tx
}

func (t *sessionTx) ActiveSession(ctx context.Context, userID string) (*domain.AttendanceSession, error) {
	return activeSession(t.tx.QueryRow(ctx, activeSessionQuery, userID))
}

func (t *sessionTx) InsertSession(ctx context.Context, s domain.AttendanceSession) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO attendance_sessions (`+sessionCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		s.ID, s.UserID, s.CheckpointID, s.ClockIn, s.ClockOut, string(s.Status), s.Note, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return mapError("insert session", err)
	}
	if s.ClockIn == nil {
		return nil
	}

	return t.repo.insertOutbox(ctx, t.tx, s, events.TypeClockedIn, events.ClockedIn{
		SessionID:    s.ID,
		UserID:       s.UserID,
		CheckpointID: s.CheckpointID,
		Status:       string(s.Status),
		ClockIn:      *s.ClockIn,
		OccurredAt:   s.UpdatedAt,
	})
}

func (t *sessionTx) CloseSession(ctx context.Context, s domain.AttendanceSession) error {
	if s.ClockOut == nil || s.ClockIn == nil {
		return domain.NewError(domain.KindInvalidInput, "clock-in and clock-out times are required")
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE attendance_sessions SET time_out=$2, updated_at=$3 WHERE id=$1 AND time_out IS NULL`,
		s.ID, *s.ClockOut, s.UpdatedAt,
	)
	if err != nil {
		return mapError("close session", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewError(domain.KindConflict, "session already closed")
	}

	return t.repo.insertOutbox(ctx, t.tx, s, events.TypeClockedOut, events.ClockedOut{
		SessionID:       s.ID,
		UserID:          s.UserID,
		CheckpointID:    s.CheckpointID,
		Status:          string(s.Status),
		ClockIn:         *s.ClockIn,
		ClockOut:        *s.ClockOut,
		DurationSeconds: int64(s.ClockOut.Sub(*s.ClockIn).Seconds()),
		OccurredAt:      s.UpdatedAt,
	})
}
