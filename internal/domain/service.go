// Package domain defines the business logic for the attendance service.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/attendance/internal/geofence"
	"example.com/attendance/internal/observability"
)

// Action names a requested clock transition.
type Action string

const (
	ActionClockIn  Action = "clock-in"
	ActionClockOut Action = "clock-out"
)

// ClockRequest captures a clock transition request bound to an authenticated user.
type ClockRequest struct {
	UserID       string
	Action       Action
	CheckpointID string
	Location     Location
}

// ClockResult is the outcome of a successful transition.
type ClockResult struct {
	Action  Action
	Session AttendanceSession
	Message string
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithStatusPolicy overrides the clock-in status policy.
func WithStatusPolicy(policy StatusPolicy) Option {
	return func(s *Service) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithLocker adds a per-user lock acquired before each transition.
func WithLocker(locker Locker) Option {
	return func(s *Service) {
		s.locker = locker
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the time zone used for day boundaries and period partitioning.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// Service orchestrates clock transitions and attendance reads.
type Service struct {
	sessions    SessionStore
	checkpoints CheckpointStore
	policy      StatusPolicy
	locker      Locker
	now         func() time.Time
	location    *time.Location
}

// NewService constructs a Service.
func NewService(sessions SessionStore, checkpoints CheckpointStore, opts ...Option) *Service {
	s := &Service{
		sessions:    sessions,
		checkpoints: checkpoints,
		policy:      PresentPolicy{},
		now:         time.Now,
		location:    time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the time zone used for day boundaries.
func (s *Service) Location() *time.Location {
	return s.location
}

// Clock dispatches a request to ClockIn or ClockOut.
func (s *Service) Clock(ctx context.Context, req ClockRequest) (*ClockResult, error) {
	switch req.Action {
	case ActionClockIn:
		session, err := s.ClockIn(ctx, req.UserID, req.CheckpointID, req.Location)
		if err != nil {
			return nil, err
		}
		return &ClockResult{Action: ActionClockIn, Session: *session, Message: "Clocked in successfully"}, nil
	case ActionClockOut:
		session, err := s.ClockOut(ctx, req.UserID, req.CheckpointID, req.Location)
		if err != nil {
			return nil, err
		}
		return &ClockResult{Action: ActionClockOut, Session: *session, Message: "Clocked out successfully"}, nil
	default:
		return nil, NewError(KindInvalidInput, `action must be "clock-in" or "clock-out"`)
	}
}

// ClockIn opens a session at checkpointID for userID.
func (s *Service) ClockIn(ctx context.Context, userID, checkpointID string, loc Location) (session *AttendanceSession, err error) {
	start := time.Now()
	defer func() { observability.RecordClockAttempt(string(ActionClockIn), outcome(err), time.Since(start)) }()

	checkpoint, err := s.gate(ctx, userID, checkpointID, loc)
	if err != nil {
		return nil, err
	}

	err = s.transition(ctx, userID, func(ctx context.Context, tx SessionTx) error {
		active, err := tx.ActiveSession(ctx, userID)
		if err != nil {
			return err
		}
		if active != nil {
			return ErrAlreadyActive
		}

		now := s.now().UTC().Truncate(time.Microsecond)
		created := AttendanceSession{
			ID:           uuid.NewString(),
			UserID:       userID,
			CheckpointID: checkpoint.ID,
			ClockIn:      &now,
			Status:       s.policy.Status(ctx, userID, *checkpoint, now),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if !created.Status.Valid() {
			created.Status = StatusPresent
		}
		if err := tx.InsertSession(ctx, created); err != nil {
			return err
		}
		session = &created
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordClockPersisted(*session.ClockIn)
	return session, nil
}

// ClockOut closes the active session of userID. The checkpoint only gates the request; it
// need not match the checkpoint the session was opened at.
func (s *Service) ClockOut(ctx context.Context, userID, checkpointID string, loc Location) (session *AttendanceSession, err error) {
	start := time.Now()
	defer func() { observability.RecordClockAttempt(string(ActionClockOut), outcome(err), time.Since(start)) }()

	if _, err = s.gate(ctx, userID, checkpointID, loc); err != nil {
		return nil, err
	}

	err = s.transition(ctx, userID, func(ctx context.Context, tx SessionTx) error {
		active, err := tx.ActiveSession(ctx, userID)
		if err != nil {
			return err
		}
		if active == nil {
			return ErrNoActiveSession
		}

		now := s.now().UTC().Truncate(time.Microsecond)
		closed := *active
		closed.ClockOut = &now
		closed.UpdatedAt = now
		if err := tx.CloseSession(ctx, closed); err != nil {
			return err
		}
		session = &closed
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordClockPersisted(*session.ClockOut)
	return session, nil
}

// gate validates input and checks the location against the checkpoint, in that order.
func (s *Service) gate(ctx context.Context, userID, checkpointID string, loc Location) (*Checkpoint, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewError(KindInvalidInput, "user id is required")
	}
	if strings.TrimSpace(checkpointID) == "" {
		return nil, NewError(KindInvalidInput, "checkpoint id is required")
	}
	if !loc.Valid() {
		return nil, NewError(KindInvalidInput, "latitude must be within [-90,90] and longitude within [-180,180]")
	}

	checkpoint, err := s.checkpoints.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		return nil, NewError(KindNotFound, "checkpoint not found")
	}
	if !geofence.IsWithinCheckpoint(loc, *checkpoint) {
		return nil, NewError(KindOutOfRange, "you are not within the checkpoint radius")
	}
	return checkpoint, nil
}

// transition runs fn in the user's scope, retrying once when a concurrent update is detected.
func (s *Service) transition(ctx context.Context, userID string, fn func(ctx context.Context, tx SessionTx) error) error {
	err := s.scoped(ctx, userID, fn)
	if !errors.Is(err, ErrConflict) {
		return err
	}
	observability.RecordConflictRetry()
	return s.scoped(ctx, userID, fn)
}

func (s *Service) scoped(ctx context.Context, userID string, fn func(ctx context.Context, tx SessionTx) error) error {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "attendance:user:"+userID)
		if err != nil {
			if KindOf(err) != "" || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return WrapError(KindConflict, "clock request already in progress", err)
		}
		defer release()
	}
	return s.sessions.WithinUserScope(ctx, userID, fn)
}

// ActiveSession returns the open session of userID, or nil when the user is clocked out.
func (s *Service) ActiveSession(ctx context.Context, userID string) (*AttendanceSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewError(KindInvalidInput, "user id is required")
	}
	return s.sessions.ActiveSession(ctx, userID)
}

// HistoryQuery selects a page of a user's sessions, newest first.
type HistoryQuery struct {
	UserID string
	From   *time.Time
	To     *time.Time
	Cursor *Cursor
	Limit  int
}

// History lists a user's sessions newest first with cursor pagination.
func (s *Service) History(ctx context.Context, q HistoryQuery) ([]AttendanceSession, *Cursor, error) {
	if strings.TrimSpace(q.UserID) == "" {
		return nil, nil, NewError(KindInvalidInput, "user id is required")
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, nil, NewError(KindInvalidInput, "end date must not precede start date")
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	return s.sessions.ListSessions(ctx, SessionQuery{
		UserID: q.UserID,
		From:   q.From,
		To:     q.To,
		Cursor: q.Cursor,
		Limit:  q.Limit,
	})
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
