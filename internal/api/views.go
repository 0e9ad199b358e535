package api

import (
	"time"

	"example.com/attendance/internal/domain"
)

// ClockRequest is the payload for POST /v1/attendance.
type ClockRequest struct {
	Action       string   `json:"action" validate:"required,oneof=clock-in clock-out"`
	CheckpointID string   `json:"checkpoint_id" validate:"required"`
	Latitude     *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude    *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

// ClockResponse describes the result of a clock transition.
type ClockResponse struct {
	Message    string      `json:"message"`
	Action     string      `json:"action"`
	Attendance SessionView `json:"attendance"`
}

// SessionView exposes an attendance session.
type SessionView struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	CheckpointID    string     `json:"checkpoint_id"`
	ClockIn         *time.Time `json:"clock_in,omitempty"`
	ClockOut        *time.Time `json:"clock_out,omitempty"`
	Status          string     `json:"status"`
	Note            *string    `json:"note,omitempty"`
	Active          bool       `json:"active"`
	DurationSeconds int64      `json:"duration_seconds"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ListSessionsResponse packages a page of history.
type ListSessionsResponse struct {
	Items      []SessionView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// DaySessionsView partitions a day's sessions by clock-in period.
type DaySessionsView struct {
	All       []SessionView `json:"all"`
	Morning   []SessionView `json:"morning"`
	Afternoon []SessionView `json:"afternoon"`
	Evening   []SessionView `json:"evening"`
}

// DailySummaryView condenses a day for dashboards.
type DailySummaryView struct {
	TotalSessions     int  `json:"total_sessions"`
	CompletedSessions int  `json:"completed_sessions"`
	ActiveSessions    int  `json:"active_sessions"`
	MorningClockIn    bool `json:"morning_clock_in"`
	AfternoonClockIn  bool `json:"afternoon_clock_in"`
	CurrentlyLoggedIn bool `json:"currently_logged_in"`
}

// DailyAttendanceResponse is the attendance dashboard for one day.
type DailyAttendanceResponse struct {
	Date           string           `json:"date"`
	ActiveSession  *SessionView     `json:"active_session"`
	Sessions       DaySessionsView  `json:"sessions"`
	TotalDuration  string           `json:"total_duration"`
	TotalMinutes   int64            `json:"total_minutes"`
	Summary        DailySummaryView `json:"summary"`
	RecentActivity []SessionView    `json:"recent_activity"`
}

// CheckpointView exposes a checkpoint.
type CheckpointView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	RadiusMeters float64   `json:"radius_meters"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateCheckpointRequest is the payload for POST /v1/checkpoints.
type CreateCheckpointRequest struct {
	Name         string   `json:"name" validate:"required,max=200"`
	Description  *string  `json:"description" validate:"omitempty,max=2000"`
	Latitude     *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude    *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	RadiusMeters float64  `json:"radius_meters" validate:"required,gt=0"`
	Active       *bool    `json:"active"`
}

// UpdateCheckpointRequest is the payload for PATCH /v1/checkpoints/{id}.
type UpdateCheckpointRequest struct {
	Name         *string  `json:"name" validate:"omitempty,min=1,max=200"`
	Description  *string  `json:"description" validate:"omitempty,max=2000"`
	Latitude     *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude    *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	RadiusMeters *float64 `json:"radius_meters" validate:"omitempty,gt=0"`
	Active       *bool    `json:"active"`
}

// ListCheckpointsResponse is the checkpoint feed.
type ListCheckpointsResponse struct {
	Items []CheckpointView `json:"items"`
}

// NearbyResponse reports the checkpoints around a location.
type NearbyResponse struct {
	Nearest               *CheckpointView  `json:"nearest,omitempty"`
	NearestDistanceMeters *float64         `json:"nearest_distance_meters,omitempty"`
	WithinNearest         bool             `json:"within_nearest"`
	InRange               []CheckpointView `json:"in_range"`
}

func toSessionView(s domain.AttendanceSession, now time.Time) SessionView {
	return SessionView{
		ID:              s.ID,
		UserID:          s.UserID,
		CheckpointID:    s.CheckpointID,
		ClockIn:         s.ClockIn,
		ClockOut:        s.ClockOut,
		Status:          string(s.Status),
		Note:            s.Note,
		Active:          s.Active(),
		DurationSeconds: int64(s.Duration(now) / time.Second),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toSessionViews(sessions []domain.AttendanceSession, now time.Time) []SessionView {
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionView(s, now))
	}
	return out
}

func toDailyResponse(view domain.DailyAttendanceView, now time.Time) DailyAttendanceResponse {
	resp := DailyAttendanceResponse{
		Date: view.Date,
		Sessions: DaySessionsView{
			All:       toSessionViews(view.Sessions.All, now),
			Morning:   toSessionViews(view.Sessions.Morning, now),
			Afternoon: toSessionViews(view.Sessions.Afternoon, now),
			Evening:   toSessionViews(view.Sessions.Evening, now),
		},
		TotalDuration: view.TotalDisplay,
		TotalMinutes:  int64(view.TotalDuration / time.Minute),
		Summary: DailySummaryView{
			TotalSessions:     view.Summary.TotalSessions,
			CompletedSessions: view.Summary.CompletedSessions,
			ActiveSessions:    view.Summary.ActiveSessions,
			MorningClockIn:    view.Summary.MorningClockIn,
			AfternoonClockIn:  view.Summary.AfternoonClockIn,
			CurrentlyLoggedIn: view.Summary.CurrentlyLoggedIn,
		},
		RecentActivity: toSessionViews(view.RecentActivity, now),
	}
	if view.ActiveSession != nil {
		active := toSessionView(*view.ActiveSession, now)
		resp.ActiveSession = &active
	}
	return resp
}

func toCheckpointView(cp domain.Checkpoint) CheckpointView {
	return CheckpointView{
		ID:           cp.ID,
		Name:         cp.Name,
		Description:  cp.Description,
		Latitude:     cp.Center.Latitude,
		Longitude:    cp.Center.Longitude,
		RadiusMeters: cp.RadiusMeters,
		Active:       cp.Active,
		CreatedAt:    cp.CreatedAt,
		UpdatedAt:    cp.UpdatedAt,
	}
}

func toCheckpointViews(checkpoints []domain.Checkpoint) []CheckpointView {
	out := make([]CheckpointView, 0, len(checkpoints))
	for _, cp := range checkpoints {
		out = append(out, toCheckpointView(cp))
	}
	return out
}
