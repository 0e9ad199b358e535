package domain

import (
	"context"
	"fmt"
	"time"
)

// StatusPolicy decides the status recorded on a new session at clock-in.
type StatusPolicy interface {
	Status(ctx context.Context, userID string, checkpoint Checkpoint, clockIn time.Time) Status
}

// StatusPolicyFunc adapts a function to StatusPolicy.
type StatusPolicyFunc func(ctx context.Context, userID string, checkpoint Checkpoint, clockIn time.Time) Status

// Status implements StatusPolicy.
func (f StatusPolicyFunc) Status(ctx context.Context, userID string, checkpoint Checkpoint, clockIn time.Time) Status {
	return f(ctx, userID, checkpoint, clockIn)
}

// PresentPolicy marks every clock-in PRESENT.
type PresentPolicy struct{}

// Status implements StatusPolicy.
func (PresentPolicy) Status(context.Context, string, Checkpoint, time.Time) Status {
	return StatusPresent
}

// ScheduleStatusPolicy marks a clock-in LATE when it happens after the workday start plus
// grace, evaluated in Location.
type ScheduleStatusPolicy struct {
	Start    time.Duration // offset from local midnight
	Grace    time.Duration
	Location *time.Location
}

// NewScheduleStatusPolicy parses an HH:MM workday start.
func NewScheduleStatusPolicy(start string, grace time.Duration, loc *time.Location) (ScheduleStatusPolicy, error) {
	parsed, err := time.Parse("15:04", start)
	if err != nil {
		return ScheduleStatusPolicy{}, fmt.Errorf("parse workday start %q: %w", start, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	offset := time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute
	return ScheduleStatusPolicy{Start: offset, Grace: grace, Location: loc}, nil
}

// Status implements StatusPolicy.
func (p ScheduleStatusPolicy) Status(_ context.Context, _ string, _ Checkpoint, clockIn time.Time) Status {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	local := clockIn.In(loc)
	y, m, d := local.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, loc).Add(p.Start + p.Grace)
	if local.After(cutoff) {
		return StatusLate
	}
	return StatusPresent
}
