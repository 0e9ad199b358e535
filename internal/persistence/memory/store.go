// Package memory provides an in-process attendance store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/lock"
)

// Store keeps checkpoints and sessions in maps. Per-user scopes are serialised with a keyed
// mutex and their writes become visible only when the scope returns without error.
type Store struct {
	mu          sync.RWMutex
	checkpoints map[string]domain.Checkpoint
	sessions    map[string]domain.AttendanceSession
	users       *lock.Local
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		checkpoints: make(map[string]domain.Checkpoint),
		sessions:    make(map[string]domain.AttendanceSession),
		users:       lock.NewLocal(),
	}
}

// Seed inserts checkpoints, replacing any with the same id.
func (s *Store) Seed(checkpoints ...domain.Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cp := range checkpoints {
		s.checkpoints[cp.ID] = cp
	}
}

// GetCheckpoint implements domain.CheckpointStore.
func (s *Store) GetCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[id]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

// ListCheckpoints implements domain.CheckpointStore, newest first.
func (s *Store) ListCheckpoints(ctx context.Context, includeInactive bool) ([]domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		if !includeInactive && !cp.Active {
			continue
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CreateCheckpoint implements domain.CheckpointStore.
func (s *Store) CreateCheckpoint(ctx context.Context, checkpoint domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.checkpoints[checkpoint.ID]; exists {
		return domain.NewError(domain.KindConflict, "checkpoint already exists")
	}
	s.checkpoints[checkpoint.ID] = checkpoint
	return nil
}

// UpdateCheckpoint implements domain.CheckpointStore.
func (s *Store) UpdateCheckpoint(ctx context.Context, checkpoint domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.checkpoints[checkpoint.ID]; !exists {
		return domain.NewError(domain.KindNotFound, "checkpoint not found")
	}
	s.checkpoints[checkpoint.ID] = checkpoint
	return nil
}

// DeleteCheckpoint implements domain.CheckpointStore and drops the checkpoint's sessions.
func (s *Store) DeleteCheckpoint(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, id)
	for sid, session := range s.sessions {
		if session.CheckpointID == id {
			delete(s.sessions, sid)
		}
	}
	return nil
}

// ActiveSession implements domain.SessionStore.
func (s *Store) ActiveSession(ctx context.Context, userID string) (*domain.AttendanceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(userID), nil
}

func (s *Store) activeLocked(userID string) *domain.AttendanceSession {
	var found *domain.AttendanceSession
	for _, session := range s.sessions {
		if session.UserID != userID || !session.Active() {
			continue
		}
		if found == nil || session.ClockIn.After(*found.ClockIn) {
			cp := session
			found = &cp
		}
	}
	return found
}

// ListSessions implements domain.SessionStore.
func (s *Store) ListSessions(ctx context.Context, query domain.SessionQuery) ([]domain.AttendanceSession, *domain.Cursor, error) {
	s.mu.RLock()
	matched := make([]domain.AttendanceSession, 0)
	for _, session := range s.sessions {
		if session.UserID != query.UserID || session.ClockIn == nil {
			continue
		}
		if query.From != nil && session.ClockIn.Before(*query.From) {
			continue
		}
		if query.To != nil && !session.ClockIn.Before(*query.To) {
			continue
		}
		matched = append(matched, session)
	}
	s.mu.RUnlock()

	less := func(a, b domain.AttendanceSession) bool {
		if a.ClockIn.Equal(*b.ClockIn) {
			return a.ID < b.ID
		}
		return a.ClockIn.Before(*b.ClockIn)
	}
	sort.Slice(matched, func(i, j int) bool {
		if query.Ascending {
			return less(matched[i], matched[j])
		}
		return less(matched[j], matched[i])
	})

	if query.Cursor != nil {
		mark := domain.AttendanceSession{ID: query.Cursor.ID, ClockIn: &query.Cursor.ClockIn}
		start := len(matched)
		for i, session := range matched {
			after := less(mark, session)
			if !query.Ascending {
				after = less(session, mark)
			}
			if after {
				start = i
				break
			}
		}
		matched = matched[start:]
	}

	var next *domain.Cursor
	if query.Limit > 0 && len(matched) > query.Limit {
		matched = matched[:query.Limit]
		last := matched[len(matched)-1]
		next = &domain.Cursor{ClockIn: *last.ClockIn, ID: last.ID}
	}
	return matched, next, nil
}

// WithinUserScope implements domain.SessionStore.
func (s *Store) WithinUserScope(ctx context.Context, userID string, fn func(ctx context.Context, tx domain.SessionTx) error) error {
	release, err := s.users.Acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	tx := &scopeTx{store: s, staged: make(map[string]domain.AttendanceSession)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *scopeTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range tx.order {
		session := tx.staged[id]
		existing, exists := s.sessions[id]
		switch {
		case !exists:
			if session.Active() && s.activeLocked(session.UserID) != nil {
				return domain.NewError(domain.KindConflict, "user already has an active session")
			}
			if _, ok := s.checkpoints[session.CheckpointID]; !ok {
				return domain.NewError(domain.KindNotFound, "checkpoint not found")
			}
		case !existing.Active():
			return domain.NewError(domain.KindConflict, "session already closed")
		}
	}
	for _, id := range tx.order {
		s.sessions[id] = tx.staged[id]
	}
	return nil
}

type scopeTx struct {
	store  *Store
	staged map[string]domain.AttendanceSession
	order  []string
}

func (t *scopeTx) ActiveSession(ctx context.Context, userID string) (*domain.AttendanceSession, error) {
	for i := len(t.order) - 1; i >= 0; i-- {
		session := t.staged[t.order[i]]
		if session.UserID == userID && session.Active() {
			return &session, nil
		}
	}
	active, err := t.store.ActiveSession(ctx, userID)
	if err != nil || active == nil {
		return active, err
	}
	if staged, ok := t.staged[active.ID]; ok && !staged.Active() {
		return nil, nil
	}
	return active, nil
}

func (t *scopeTx) InsertSession(ctx context.Context, session domain.AttendanceSession) error {
	if _, exists := t.staged[session.ID]; exists {
		return domain.NewError(domain.KindConflict, "session already exists")
	}
	t.stage(session)
	return nil
}

func (t *scopeTx) CloseSession(ctx context.Context, session domain.AttendanceSession) error {
	if staged, ok := t.staged[session.ID]; ok && !staged.Active() {
		return domain.NewError(domain.KindConflict, "session already closed")
	}
	t.stage(session)
	return nil
}

func (t *scopeTx) stage(session domain.AttendanceSession) {
	if _, exists := t.staged[session.ID]; !exists {
		t.order = append(t.order, session.ID)
	}
	t.staged[session.ID] = session
}
