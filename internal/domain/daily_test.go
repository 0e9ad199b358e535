package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/attendance/internal/domain"
)

func at(t time.Time) *time.Time { return &t }

func TestPartitionByPeriod(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	sessions := []domain.AttendanceSession{
		{ID: "early", ClockIn: at(day.Add(5*time.Hour + 59*time.Minute))},
		{ID: "six", ClockIn: at(day.Add(6 * time.Hour))},
		{ID: "noon", ClockIn: at(day.Add(12 * time.Hour))},
		{ID: "late-afternoon", ClockIn: at(day.Add(17*time.Hour + 59*time.Minute))},
		{ID: "six-pm", ClockIn: at(day.Add(18 * time.Hour))},
		{ID: "unset"},
	}

	got := domain.PartitionByPeriod(sessions, time.UTC)
	require.Len(t, got.All, 6)
	require.Equal(t, []string{"six"}, sessionIDs(got.Morning))
	require.Equal(t, []string{"noon", "late-afternoon"}, sessionIDs(got.Afternoon))
	require.Equal(t, []string{"early", "six-pm"}, sessionIDs(got.Evening))
}

func TestPartitionUsesLocation(t *testing.T) {
	manila, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)

	// 01:30 UTC is 09:30 in Manila.
	sessions := []domain.AttendanceSession{{ID: "s", ClockIn: at(time.Date(2024, 3, 4, 1, 30, 0, 0, time.UTC))}}
	require.Len(t, domain.PartitionByPeriod(sessions, manila).Morning, 1)
	require.Len(t, domain.PartitionByPeriod(sessions, time.UTC).Evening, 1)
}

func TestPartitionEmpty(t *testing.T) {
	got := domain.PartitionByPeriod(nil, nil)
	require.NotNil(t, got.All)
	require.Empty(t, got.Morning)
	require.Empty(t, got.Afternoon)
	require.Empty(t, got.Evening)
}

func TestTotalDuration(t *testing.T) {
	base := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	now := base.Add(10 * time.Hour)
	sessions := []domain.AttendanceSession{
		{ClockIn: at(base), ClockOut: at(base.Add(2 * time.Hour))},
		{ClockIn: at(base.Add(9 * time.Hour))},
		{ClockIn: nil},
	}
	require.Equal(t, 3*time.Hour, domain.TotalDuration(sessions, now))
	require.Zero(t, domain.TotalDuration(nil, now))
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "0h 0m", domain.FormatDuration(0))
	require.Equal(t, "0h 59m", domain.FormatDuration(59*time.Minute+59*time.Second))
	require.Equal(t, "8h 5m", domain.FormatDuration(8*time.Hour+5*time.Minute))
	require.Equal(t, "26h 0m", domain.FormatDuration(26*time.Hour))
	require.Equal(t, "0h 0m", domain.FormatDuration(-time.Minute))
}

func TestDailyView(t *testing.T) {
	manila, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)

	now := time.Date(2024, 3, 4, 8, 0, 0, 0, manila)
	svc, _ := newFixture(t, domain.WithLocation(manila), domain.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	// Yesterday evening, outside the day window.
	now = time.Date(2024, 3, 3, 20, 0, 0, 0, manila)
	_, err = svc.ClockIn(ctx, "u1", "main-office", mainOffice)
	require.NoError(t, err)
	now = now.Add(time.Hour)
	_, err = svc.ClockOut(ctx, "u1", "main-office", mainOffice)
	require.NoError(t, err)

	now = time.Date(2024, 3, 4, 8, 0, 0, 0, manila)
	_, err = svc.ClockIn(ctx, "u1", "main-office", mainOffice)
	require.NoError(t, err)
	now = now.Add(4 * time.Hour)
	_, err = svc.ClockOut(ctx, "u1", "main-office", mainOffice)
	require.NoError(t, err)

	now = time.Date(2024, 3, 4, 13, 0, 0, 0, manila)
	_, err = svc.ClockIn(ctx, "u1", "main-office", mainOffice)
	require.NoError(t, err)
	now = now.Add(30 * time.Minute)

	view, err := svc.DailyView(ctx, "u1", now)
	require.NoError(t, err)
	require.Equal(t, "2024-03-04", view.Date)
	require.NotNil(t, view.ActiveSession)
	require.Len(t, view.Sessions.All, 2)
	require.Len(t, view.Sessions.Morning, 1)
	require.Len(t, view.Sessions.Afternoon, 1)
	require.Empty(t, view.Sessions.Evening)
	require.Equal(t, 4*time.Hour+30*time.Minute, view.TotalDuration)
	require.Equal(t, "4h 30m", view.TotalDisplay)
	require.Equal(t, domain.DailySummary{
		TotalSessions:     2,
		CompletedSessions: 1,
		ActiveSessions:    1,
		MorningClockIn:    true,
		AfternoonClockIn:  true,
		CurrentlyLoggedIn: true,
	}, view.Summary)
	require.Len(t, view.RecentActivity, 3)
	require.Equal(t, view.ActiveSession.ID, view.RecentActivity[0].ID)
}

func TestSessionsOnDayUsesServiceZone(t *testing.T) {
	manila, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)

	// 19:30 UTC on Jan 1 is 03:30 on Jan 2 in Manila.
	instant := time.Date(2024, 1, 1, 19, 30, 0, 0, time.UTC)
	svc, _ := newFixture(t, domain.WithLocation(manila), domain.WithClock(func() time.Time { return instant }))
	ctx := context.Background()

	session, err := svc.ClockIn(ctx, "u1", "main-office", mainOffice)
	require.NoError(t, err)

	day, err := svc.SessionsOnDay(ctx, "u1", instant)
	require.NoError(t, err)
	require.Equal(t, []string{session.ID}, sessionIDs(day.All))

	view, err := svc.DailyView(ctx, "u1", instant)
	require.NoError(t, err)
	require.Equal(t, "2024-01-02", view.Date)
	require.Len(t, view.Sessions.All, 1)
}

func TestSessionsOnDayRequiresUser(t *testing.T) {
	svc, _ := newFixture(t)
	_, err := svc.SessionsOnDay(context.Background(), "", time.Now())
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func sessionIDs(sessions []domain.AttendanceSession) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ID)
	}
	return out
}
