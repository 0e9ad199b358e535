package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/attendance/internal/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func testCheckpoint(id string, created time.Time) domain.Checkpoint {
	desc := "front gate"
	return domain.Checkpoint{
		ID:           id,
		Name:         "Main Office",
		Description:  &desc,
		Center:       domain.Location{Latitude: 14.5995, Longitude: 120.9842},
		RadiusMeters: 100,
		Active:       true,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, store.CreateCheckpoint(ctx, testCheckpoint("cp-1", now)))

	got, err := store.GetCheckpoint(ctx, "cp-1")
	require.NoError(t, err)
	require.Equal(t, "Main Office", got.Name)
	require.Equal(t, "front gate", *got.Description)
	require.True(t, got.CreatedAt.Equal(now))

	got.Active = false
	got.Description = nil
	require.NoError(t, store.UpdateCheckpoint(ctx, *got))

	again, err := store.GetCheckpoint(ctx, "cp-1")
	require.NoError(t, err)
	require.False(t, again.Active)
	require.Nil(t, again.Description)

	missing, err := store.GetCheckpoint(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	err = store.UpdateCheckpoint(ctx, testCheckpoint("nope", now))
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = store.CreateCheckpoint(ctx, testCheckpoint("cp-1", now))
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestListCheckpointsOrdering(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	older := testCheckpoint("older", now.Add(-time.Hour))
	newer := testCheckpoint("newer", now)
	off := testCheckpoint("off", now.Add(time.Hour))
	off.Active = false
	for _, cp := range []domain.Checkpoint{older, newer, off} {
		require.NoError(t, store.CreateCheckpoint(ctx, cp))
	}

	active, err := store.ListCheckpoints(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "newer", active[0].ID)

	all, err := store.ListCheckpoints(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestUniqueActiveSessionIndex(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.CreateCheckpoint(ctx, testCheckpoint("cp-1", now)))

	insert := func(id string) error {
		return store.WithinUserScope(ctx, "u1", func(ctx context.Context, tx domain.SessionTx) error {
			return tx.InsertSession(ctx, domain.AttendanceSession{
				ID: id, UserID: "u1", CheckpointID: "cp-1", ClockIn: &now,
				Status: domain.StatusPresent, CreatedAt: now, UpdatedAt: now,
			})
		})
	}
	require.NoError(t, insert("s1"))
	require.ErrorIs(t, insert("s2"), domain.ErrConflict)
}

func TestInsertUnknownCheckpoint(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.WithinUserScope(ctx, "u1", func(ctx context.Context, tx domain.SessionTx) error {
		return tx.InsertSession(ctx, domain.AttendanceSession{
			ID: "s1", UserID: "u1", CheckpointID: "ghost", ClockIn: &now,
			Status: domain.StatusPresent, CreatedAt: now, UpdatedAt: now,
		})
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestServiceOnSQLite(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateCheckpoint(ctx, testCheckpoint("cp-1", now)))

	svc := domain.NewService(store, store, domain.WithClock(func() time.Time { return now }))
	here := domain.Location{Latitude: 14.5995, Longitude: 120.9842}

	opened, err := svc.ClockIn(ctx, "u1", "cp-1", here)
	require.NoError(t, err)

	_, err = svc.ClockIn(ctx, "u1", "cp-1", here)
	require.ErrorIs(t, err, domain.ErrAlreadyActive)

	active, err := store.ActiveSession(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, opened.ID, active.ID)
	require.True(t, active.ClockIn.Equal(now))

	now = now.Add(2*time.Hour + 15*time.Minute)
	closed, err := svc.ClockOut(ctx, "u1", "cp-1", here)
	require.NoError(t, err)
	require.Equal(t, 2*time.Hour+15*time.Minute, closed.Duration(now))

	_, err = svc.ClockOut(ctx, "u1", "cp-1", here)
	require.ErrorIs(t, err, domain.ErrNoActiveSession)

	day, err := svc.SessionsOnDay(ctx, "u1", now)
	require.NoError(t, err)
	require.Len(t, day.All, 1)
	require.Len(t, day.Morning, 1)
	require.NotNil(t, day.All[0].ClockOut)

	require.NoError(t, store.DeleteCheckpoint(ctx, "cp-1"))
	sessions, _, err := store.ListSessions(ctx, domain.SessionQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestListSessionsCursor(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateCheckpoint(ctx, testCheckpoint("cp-1", base)))

	for i, id := range []string{"a", "b", "c"} {
		in := base.Add(time.Duration(i) * time.Hour)
		out := in.Add(30 * time.Minute)
		require.NoError(t, store.WithinUserScope(ctx, "u1", func(ctx context.Context, tx domain.SessionTx) error {
			return tx.InsertSession(ctx, domain.AttendanceSession{
				ID: id, UserID: "u1", CheckpointID: "cp-1", ClockIn: &in, ClockOut: &out,
				Status: domain.StatusPresent, CreatedAt: in, UpdatedAt: out,
			})
		}))
	}

	page, next, err := store.ListSessions(ctx, domain.SessionQuery{UserID: "u1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "c", page[0].ID)
	require.Equal(t, "b", page[1].ID)
	require.NotNil(t, next)

	page, next, err = store.ListSessions(ctx, domain.SessionQuery{UserID: "u1", Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "a", page[0].ID)
	require.Nil(t, next)

	page, _, err = store.ListSessions(ctx, domain.SessionQuery{UserID: "u1", Ascending: true})
	require.NoError(t, err)
	require.Equal(t, "a", page[0].ID)
}
