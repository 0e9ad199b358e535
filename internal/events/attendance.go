// Package events defines the attendance event payloads carried over Kafka.
package events

import "time"

// Event types, topic and Schema Registry subjects shared by the producer and the consumer.
// Both events travel on one topic so a user's transitions stay ordered; each type has its own
// subject.
const (
	TypeClockedIn  = "attendance.clocked_in"
	TypeClockedOut = "attendance.clocked_out"

	TopicAttendance = "attendance_events"

	SubjectClockedIn  = "attendance_events-attendance.clocked_in"
	SubjectClockedOut = "attendance_events-attendance.clocked_out"
)

// ClockedIn is emitted when a user opens a session at a checkpoint.
type ClockedIn struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	CheckpointID string    `json:"checkpoint_id"`
	Status       string    `json:"status"`
	ClockIn      time.Time `json:"clock_in"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ClockedOut is emitted when a user closes their active session.
type ClockedOut struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	CheckpointID    string    `json:"checkpoint_id"`
	Status          string    `json:"status"`
	ClockIn         time.Time `json:"clock_in"`
	ClockOut        time.Time `json:"clock_out"`
	DurationSeconds int64     `json:"duration_seconds"`
	OccurredAt      time.Time `json:"occurred_at"`
}
