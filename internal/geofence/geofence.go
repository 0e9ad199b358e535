// Package geofence evaluates whether device locations fall inside circular checkpoints.
package geofence

import (
	"math"
	"time"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// Location is a WGS84 coordinate in degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate is finite and inside the latitude/longitude domain.
func (l Location) Valid() bool {
	if math.IsNaN(l.Latitude) || math.IsNaN(l.Longitude) || math.IsInf(l.Latitude, 0) || math.IsInf(l.Longitude, 0) {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// Checkpoint is a named circular geofence.
type Checkpoint struct {
	ID           string
	Name         string
	Description  *string
	Center       Location
	RadiusMeters float64
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b Location) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(toRadians(a.Latitude))*math.Cos(toRadians(b.Latitude))*sinLon*sinLon

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// IsWithinCheckpoint reports whether loc lies inside cp. The boundary is inclusive and an
// inactive checkpoint never contains anything.
func IsWithinCheckpoint(loc Location, cp Checkpoint) bool {
	if !cp.Active {
		return false
	}
	return Distance(loc, cp.Center) <= cp.RadiusMeters
}

// NearestActiveCheckpoint returns the active checkpoint closest to loc. Ties keep the
// first checkpoint in input order. ok is false when no checkpoint is active.
func NearestActiveCheckpoint(loc Location, checkpoints []Checkpoint) (nearest Checkpoint, ok bool) {
	minDistance := math.Inf(1)
	for _, cp := range checkpoints {
		if !cp.Active {
			continue
		}
		if d := Distance(loc, cp.Center); d < minDistance {
			minDistance = d
			nearest = cp
			ok = true
		}
	}
	return nearest, ok
}

// CheckpointsInRange returns the active checkpoints containing loc, preserving input order.
func CheckpointsInRange(loc Location, checkpoints []Checkpoint) []Checkpoint {
	out := make([]Checkpoint, 0)
	for _, cp := range checkpoints {
		if IsWithinCheckpoint(loc, cp) {
			out = append(out, cp)
		}
	}
	return out
}

// Destination projects origin along an initial bearing (degrees clockwise from north) for
// the given distance in meters.
func Destination(origin Location, bearingDeg, meters float64) Location {
	angular := meters / EarthRadiusMeters
	bearing := toRadians(bearingDeg)
	lat1 := toRadians(origin.Latitude)
	lon1 := toRadians(origin.Longitude)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) + math.Cos(lat1)*math.Sin(angular)*math.Cos(bearing))
	lon2 := lon1 + math.Atan2(
		math.Sin(bearing)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Location{
		Latitude:  toDegrees(lat2),
		Longitude: math.Mod(toDegrees(lon2)+540, 360) - 180,
	}
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
