package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	recentActivityWindow = 7 * 24 * time.Hour
	recentActivityLimit  = 10
	daySessionLimit      = 500
)

// DaySessions holds a day's sessions in clock-in order, partitioned by local clock-in hour.
type DaySessions struct {
	All       []AttendanceSession
	Morning   []AttendanceSession // [06:00, 12:00)
	Afternoon []AttendanceSession // [12:00, 18:00)
	Evening   []AttendanceSession // [18:00, 24:00) and [00:00, 06:00)
}

// DailySummary condenses a day for dashboards.
type DailySummary struct {
	TotalSessions     int
	CompletedSessions int
	ActiveSessions    int
	MorningClockIn    bool
	AfternoonClockIn  bool
	CurrentlyLoggedIn bool
}

// DailyAttendanceView is the read model behind the attendance dashboard.
type DailyAttendanceView struct {
	Date           string
	ActiveSession  *AttendanceSession
	Sessions       DaySessions
	TotalDuration  time.Duration
	TotalDisplay   string
	Summary        DailySummary
	RecentActivity []AttendanceSession
}

// PartitionByPeriod splits sessions by the hour of their clock-in in loc. Sessions without
// a clock-in are kept in All only.
func PartitionByPeriod(sessions []AttendanceSession, loc *time.Location) DaySessions {
	if loc == nil {
		loc = time.UTC
	}
	out := DaySessions{
		All:       sessions,
		Morning:   make([]AttendanceSession, 0),
		Afternoon: make([]AttendanceSession, 0),
		Evening:   make([]AttendanceSession, 0),
	}
	if out.All == nil {
		out.All = make([]AttendanceSession, 0)
	}
	for _, session := range sessions {
		if session.ClockIn == nil {
			continue
		}
		switch hour := session.ClockIn.In(loc).Hour(); {
		case hour >= 6 && hour < 12:
			out.Morning = append(out.Morning, session)
		case hour >= 12 && hour < 18:
			out.Afternoon = append(out.Afternoon, session)
		default:
			out.Evening = append(out.Evening, session)
		}
	}
	return out
}

// TotalDuration sums session durations, measuring open sessions up to now.
func TotalDuration(sessions []AttendanceSession, now time.Time) time.Duration {
	var total time.Duration
	for _, session := range sessions {
		total += session.Duration(now)
	}
	return total
}

// FormatDuration renders d as "Xh Ym" with whole hours and minutes.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int64(d / time.Minute)
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// SessionsOnDay returns the user's sessions whose clock-in falls on day's calendar date in
// the service location.
func (s *Service) SessionsOnDay(ctx context.Context, userID string, day time.Time) (DaySessions, error) {
	if strings.TrimSpace(userID) == "" {
		return DaySessions{}, NewError(KindInvalidInput, "user id is required")
	}
	start, end := s.dayBounds(day)
	sessions, _, err := s.sessions.ListSessions(ctx, SessionQuery{
		UserID:    userID,
		From:      &start,
		To:        &end,
		Limit:     daySessionLimit,
		Ascending: true,
	})
	if err != nil {
		return DaySessions{}, err
	}
	return PartitionByPeriod(sessions, s.location), nil
}

// DailyView assembles the dashboard view for userID on day.
func (s *Service) DailyView(ctx context.Context, userID string, day time.Time) (*DailyAttendanceView, error) {
	sessions, err := s.SessionsOnDay(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	active, err := s.sessions.ActiveSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	since := now.Add(-recentActivityWindow)
	recent, _, err := s.sessions.ListSessions(ctx, SessionQuery{
		UserID: userID,
		From:   &since,
		Limit:  recentActivityLimit,
	})
	if err != nil {
		return nil, err
	}

	total := TotalDuration(sessions.All, now)
	summary := DailySummary{
		TotalSessions:     len(sessions.All),
		MorningClockIn:    len(sessions.Morning) > 0,
		AfternoonClockIn:  len(sessions.Afternoon) > 0,
		CurrentlyLoggedIn: active != nil,
	}
	for _, session := range sessions.All {
		if session.ClockOut != nil {
			summary.CompletedSessions++
		} else {
			summary.ActiveSessions++
		}
	}

	start, _ := s.dayBounds(day)
	return &DailyAttendanceView{
		Date:           start.Format(time.DateOnly),
		ActiveSession:  active,
		Sessions:       sessions,
		TotalDuration:  total,
		TotalDisplay:   FormatDuration(total),
		Summary:        summary,
		RecentActivity: recent,
	}, nil
}

// dayBounds returns midnight of day's calendar date in the service zone and the following
// midnight.
func (s *Service) dayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.In(s.location).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, s.location)
	return start, start.AddDate(0, 0, 1)
}
