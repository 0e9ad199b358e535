package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"example.com/attendance/internal/domain"
)

// Store implements domain.SessionStore and domain.CheckpointStore on SQLite.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const checkpointCols = `id, name, description, latitude, longitude, radius_meters, active, created_at, updated_at`

func scanCheckpoint(scanner interface{ Scan(...any) error }) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	var description sql.NullString
	var active int
	var createdAt, updatedAt int64

	err := scanner.Scan(
		&cp.ID, &cp.Name, &description, &cp.Center.Latitude, &cp.Center.Longitude,
		&cp.RadiusMeters, &active, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	cp.Active = active != 0
	if description.Valid {
		cp.Description = &description.String
	}
	cp.CreatedAt = fromUnix(createdAt)
	cp.UpdatedAt = fromUnix(updatedAt)
	return &cp, nil
}

// GetCheckpoint implements domain.CheckpointStore.
func (s *Store) GetCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+checkpointCols+` FROM checkpoints WHERE id = ?`, id)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, nil
}

// ListCheckpoints implements domain.CheckpointStore, newest first.
func (s *Store) ListCheckpoints(ctx context.Context, includeInactive bool) ([]domain.Checkpoint, error) {
	query := `SELECT ` + checkpointCols + ` FROM checkpoints`
	if !includeInactive {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Checkpoint, 0)
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, *cp)
	}
	return out, rows.Err()
}

// CreateCheckpoint implements domain.CheckpointStore.
func (s *Store) CreateCheckpoint(ctx context.Context, cp domain.Checkpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (`+checkpointCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.Name, nullString(cp.Description), cp.Center.Latitude, cp.Center.Longitude,
		cp.RadiusMeters, boolInt(cp.Active), toUnix(cp.CreatedAt), toUnix(cp.UpdatedAt),
	)
	if err != nil {
		return mapError("create checkpoint", err)
	}
	return nil
}

// UpdateCheckpoint implements domain.CheckpointStore.
func (s *Store) UpdateCheckpoint(ctx context.Context, cp domain.Checkpoint) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE checkpoints SET name = ?, description = ?, latitude = ?, longitude = ?, radius_meters = ?, active = ?, updated_at = ? WHERE id = ?`,
		cp.Name, nullString(cp.Description), cp.Center.Latitude, cp.Center.Longitude,
		cp.RadiusMeters, boolInt(cp.Active), toUnix(cp.UpdatedAt), cp.ID,
	)
	if err != nil {
		return mapError("update checkpoint", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.NewError(domain.KindNotFound, "checkpoint not found")
	}
	return nil
}

// DeleteCheckpoint implements domain.CheckpointStore. Sessions go with it via ON DELETE CASCADE.
func (s *Store) DeleteCheckpoint(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, id); err != nil {
		return mapError("delete checkpoint", err)
	}
	return nil
}

const sessionCols = `id, user_id, checkpoint_id, time_in, time_out, status, note, created_at, updated_at`

func scanSession(scanner interface{ Scan(...any) error }) (*domain.AttendanceSession, error) {
	var session domain.AttendanceSession
	var timeIn, timeOut sql.NullInt64
	var note sql.NullString
	var status string
	var createdAt, updatedAt int64

	err := scanner.Scan(
		&session.ID, &session.UserID, &session.CheckpointID, &timeIn, &timeOut,
		&status, &note, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Status = domain.Status(status)
	if timeIn.Valid {
		t := fromUnix(timeIn.Int64)
		session.ClockIn = &t
	}
	if timeOut.Valid {
		t := fromUnix(timeOut.Int64)
		session.ClockOut = &t
	}
	if note.Valid {
		session.Note = &note.String
	}
	session.CreatedAt = fromUnix(createdAt)
	session.UpdatedAt = fromUnix(updatedAt)
	return &session, nil
}

// ActiveSession implements domain.SessionStore.
func (s *Store) ActiveSession(ctx context.Context, userID string) (*domain.AttendanceSession, error) {
	return activeSession(ctx, s.db, userID)
}

func activeSession(ctx context.Context, q queryer, userID string) (*domain.AttendanceSession, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM attendance_sessions
		 WHERE user_id = ? AND time_in IS NOT NULL AND time_out IS NULL
		 ORDER BY time_in DESC LIMIT 1`, userID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return session, nil
}

// ListSessions implements domain.SessionStore.
func (s *Store) ListSessions(ctx context.Context, query domain.SessionQuery) ([]domain.AttendanceSession, *domain.Cursor, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + sessionCols + ` FROM attendance_sessions WHERE user_id = ? AND time_in IS NOT NULL`)
	args := []any{query.UserID}

	if query.From != nil {
		b.WriteString(` AND time_in >= ?`)
		args = append(args, toUnix(*query.From))
	}
	if query.To != nil {
		b.WriteString(` AND time_in < ?`)
		args = append(args, toUnix(*query.To))
	}

	cmp, order := "<", "DESC"
	if query.Ascending {
		cmp, order = ">", "ASC"
	}
	if query.Cursor != nil {
		b.WriteString(` AND (time_in ` + cmp + ` ? OR (time_in = ? AND id ` + cmp + ` ?))`)
		ts := toUnix(query.Cursor.ClockIn)
		args = append(args, ts, ts, query.Cursor.ID)
	}
	b.WriteString(` ORDER BY time_in ` + order + `, id ` + order)
	if query.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, query.Limit+1)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AttendanceSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list sessions: %w", err)
	}

	var next *domain.Cursor
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
		last := out[len(out)-1]
		next = &domain.Cursor{ClockIn: *last.ClockIn, ID: last.ID}
	}
	return out, next, nil
}

// WithinUserScope implements domain.SessionStore. The transaction begins IMMEDIATE, which
// takes the database write lock, so scopes for the same user never overlap.
func (s *Store) WithinUserScope(ctx context.Context, userID string, fn func(ctx context.Context, tx domain.SessionTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, sessionTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit tx", err)
	}
	return nil
}

type sessionTx struct {
	tx *sql.Tx
}

func (t sessionTx) ActiveSession(ctx context.Context, userID string) (*domain.AttendanceSession, error) {
	return activeSession(ctx, t.tx, userID)
}

func (t sessionTx) InsertSession(ctx context.Context, session domain.AttendanceSession) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO attendance_sessions (`+sessionCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.CheckpointID, nullUnix(session.ClockIn), nullUnix(session.ClockOut),
		string(session.Status), nullString(session.Note), toUnix(session.CreatedAt), toUnix(session.UpdatedAt),
	)
	if err != nil {
		return mapError("insert session", err)
	}
	return nil
}

func (t sessionTx) CloseSession(ctx context.Context, session domain.AttendanceSession) error {
	if session.ClockOut == nil {
		return domain.NewError(domain.KindInvalidInput, "clock-out time is required")
	}
	result, err := t.tx.ExecContext(ctx,
		`UPDATE attendance_sessions SET time_out = ?, updated_at = ? WHERE id = ? AND time_out IS NULL`,
		toUnix(*session.ClockOut), toUnix(session.UpdatedAt), session.ID,
	)
	if err != nil {
		return mapError("close session", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.NewError(domain.KindConflict, "session already closed")
	}
	return nil
}

// mapError turns lock contention and uniqueness violations into conflicts and a missing
// checkpoint reference into not found.
func mapError(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		if primary := se.Code() & 0xff; primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED {
			return domain.WrapError(domain.KindConflict, op, err)
		}
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return domain.WrapError(domain.KindConflict, op, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return domain.WrapError(domain.KindNotFound, op+": checkpoint not found", err)
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return domain.WrapError(domain.KindInvalidInput, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
