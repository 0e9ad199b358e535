package domain

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/attendance/internal/geofence"
)

// CheckpointInput is the payload for creating a checkpoint.
type CheckpointInput struct {
	Name         string
	Description  *string
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	Active       *bool
}

// CheckpointPatch updates only the fields that are set.
type CheckpointPatch struct {
	Name         *string
	Description  *string
	Latitude     *float64
	Longitude    *float64
	RadiusMeters *float64
	Active       *bool
}

// NearbyCheckpoints describes the checkpoints around a location.
type NearbyCheckpoints struct {
	Nearest         *Checkpoint
	NearestDistance float64
	InRange         []Checkpoint
}

// CheckpointService manages the checkpoint catalogue.
type CheckpointService struct {
	store CheckpointStore
	now   func() time.Time
}

// NewCheckpointService constructs a CheckpointService.
func NewCheckpointService(store CheckpointStore) *CheckpointService {
	return &CheckpointService{store: store, now: time.Now}
}

// List returns the checkpoint feed. Only administrators should see inactive checkpoints.
func (s *CheckpointService) List(ctx context.Context, includeInactive bool) ([]Checkpoint, error) {
	return s.store.ListCheckpoints(ctx, includeInactive)
}

// Get fetches a checkpoint by id.
func (s *CheckpointService) Get(ctx context.Context, id string) (*Checkpoint, error) {
	if strings.TrimSpace(id) == "" {
		return nil, NewError(KindInvalidInput, "checkpoint id is required")
	}
	cp, err := s.store.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, NewError(KindNotFound, "checkpoint not found")
	}
	return cp, nil
}

// Create validates and stores a new checkpoint. Checkpoints are active unless stated otherwise.
func (s *CheckpointService) Create(ctx context.Context, input CheckpointInput) (*Checkpoint, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, NewError(KindInvalidInput, "name is required")
	}
	if err := validateCenter(input.Latitude, input.Longitude); err != nil {
		return nil, err
	}
	if err := validateRadius(input.RadiusMeters); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	cp := Checkpoint{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  input.Description,
		Center:       Location{Latitude: input.Latitude, Longitude: input.Longitude},
		RadiusMeters: input.RadiusMeters,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.Active != nil {
		cp.Active = *input.Active
	}

	if err := s.store.CreateCheckpoint(ctx, cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Update applies patch to an existing checkpoint.
func (s *CheckpointService) Update(ctx context.Context, id string, patch CheckpointPatch) (*Checkpoint, error) {
	if patch.Latitude != nil && (math.IsNaN(*patch.Latitude) || *patch.Latitude < -90 || *patch.Latitude > 90) {
		return nil, NewError(KindInvalidInput, "latitude must be between -90 and 90")
	}
	if patch.Longitude != nil && (math.IsNaN(*patch.Longitude) || *patch.Longitude < -180 || *patch.Longitude > 180) {
		return nil, NewError(KindInvalidInput, "longitude must be between -180 and 180")
	}
	if patch.RadiusMeters != nil {
		if err := validateRadius(*patch.RadiusMeters); err != nil {
			return nil, err
		}
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, NewError(KindInvalidInput, "name must not be empty")
	}

	cp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		cp.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		cp.Description = patch.Description
	}
	if patch.Latitude != nil {
		cp.Center.Latitude = *patch.Latitude
	}
	if patch.Longitude != nil {
		cp.Center.Longitude = *patch.Longitude
	}
	if patch.RadiusMeters != nil {
		cp.RadiusMeters = *patch.RadiusMeters
	}
	if patch.Active != nil {
		cp.Active = *patch.Active
	}
	cp.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)

	if err := s.store.UpdateCheckpoint(ctx, *cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// Delete removes a checkpoint together with its attendance sessions.
func (s *CheckpointService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteCheckpoint(ctx, id)
}

// Nearby reports the nearest active checkpoint and every active checkpoint containing loc.
func (s *CheckpointService) Nearby(ctx context.Context, loc Location) (*NearbyCheckpoints, error) {
	if !loc.Valid() {
		return nil, NewError(KindInvalidInput, "latitude must be within [-90,90] and longitude within [-180,180]")
	}
	active, err := s.store.ListCheckpoints(ctx, false)
	if err != nil {
		return nil, err
	}

	out := &NearbyCheckpoints{InRange: geofence.CheckpointsInRange(loc, active)}
	if nearest, ok := geofence.NearestActiveCheckpoint(loc, active); ok {
		out.Nearest = &nearest
		out.NearestDistance = geofence.Distance(loc, nearest.Center)
	}
	return out, nil
}

func validateCenter(lat, lon float64) error {
	if !(Location{Latitude: lat, Longitude: lon}).Valid() {
		return NewError(KindInvalidInput, "invalid latitude or longitude values")
	}
	return nil
}

func validateRadius(radius float64) error {
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius <= 0 {
		return NewError(KindInvalidInput, "radius must be greater than 0")
	}
	return nil
}
