package domain

import (
	"context"
	"time"

	"example.com/attendance/internal/geofence"
)

// Checkpoint is the geofence a session is clocked against.
type Checkpoint = geofence.Checkpoint

// Location is a device-reported coordinate.
type Location = geofence.Location

// Status is the attendance classification of a session.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusLate    Status = "LATE"
	StatusAbsent  Status = "ABSENT"
	StatusOnLeave Status = "ON_LEAVE"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent, StatusOnLeave:
		return true
	}
	return false
}

// AttendanceSession is one continuous presence interval at a checkpoint. A session with a
// clock-in and no clock-out is the user's active session.
type AttendanceSession struct {
	ID           string
	UserID       string
	CheckpointID string
	ClockIn      *time.Time
	ClockOut     *time.Time
	Status       Status
	Note         *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the session is open.
func (s AttendanceSession) Active() bool {
	return s.ClockIn != nil && s.ClockOut == nil
}

// Duration returns how long the session lasted, measuring open sessions up to now.
func (s AttendanceSession) Duration(now time.Time) time.Duration {
	if s.ClockIn == nil {
		return 0
	}
	end := now
	if s.ClockOut != nil {
		end = *s.ClockOut
	}
	if end.Before(*s.ClockIn) {
		return 0
	}
	return end.Sub(*s.ClockIn)
}

// Cursor models the pagination token for session listings.
type Cursor struct {
	ClockIn time.Time
	ID      string
}

// SessionQuery selects sessions with a clock-in for one user. From is inclusive and To is
// exclusive; both bound the clock-in time.
type SessionQuery struct {
	UserID    string
	From      *time.Time
	To        *time.Time
	Cursor    *Cursor
	Limit     int
	Ascending bool
}

// SessionTx is the view of session state available inside a per-user scope.
type SessionTx interface {
	ActiveSession(ctx context.Context, userID string) (*AttendanceSession, error)
	InsertSession(ctx context.Context, session AttendanceSession) error
	// CloseSession persists ClockOut on an open session. It returns ErrConflict when the
	// session was closed concurrently.
	CloseSession(ctx context.Context, session AttendanceSession) error
}

// SessionStore persists attendance sessions.
type SessionStore interface {
	// WithinUserScope runs fn atomically with respect to every other scope for the same
	// user. Nothing fn wrote survives if it returns an error.
	WithinUserScope(ctx context.Context, userID string, fn func(ctx context.Context, tx SessionTx) error) error
	ActiveSession(ctx context.Context, userID string) (*AttendanceSession, error)
	ListSessions(ctx context.Context, query SessionQuery) ([]AttendanceSession, *Cursor, error)
}

// CheckpointStore persists checkpoints. Get returns nil without error when the id is unknown.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error)
	ListCheckpoints(ctx context.Context, includeInactive bool) ([]Checkpoint, error)
	CreateCheckpoint(ctx context.Context, checkpoint Checkpoint) error
	UpdateCheckpoint(ctx context.Context, checkpoint Checkpoint) error
	// DeleteCheckpoint removes the checkpoint and cascades to its sessions.
	DeleteCheckpoint(ctx context.Context, id string) error
}

// Locker grants per-key mutual exclusion that may span processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
