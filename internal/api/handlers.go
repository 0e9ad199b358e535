// Package api exposes HTTP handlers for the attendance service.
package api

import (
	"fmt"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"example.com/attendance/internal/auth"
	"example.com/attendance/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	attendance  *domain.Service
	checkpoints *domain.CheckpointService
	validate    *validator.Validate
	now         func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(attendance *domain.Service, checkpoints *domain.CheckpointService) *Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Handler{
		attendance:  attendance,
		checkpoints: checkpoints,
		validate:    validate,
		now:         time.Now,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/attendance", h.attendanceRoot)
	mux.HandleFunc("/v1/attendance/active", h.activeSession)
	mux.HandleFunc("/v1/attendance/daily", h.dailyView)
	mux.HandleFunc("/v1/checkpoints", h.checkpointsRoot)
	mux.HandleFunc("/v1/checkpoints/nearby", h.nearbyCheckpoints)
	mux.HandleFunc("/v1/checkpoints/", h.checkpointByID)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// claimsWithScope returns the caller's claims when they hold any of scopes, writing the
// 401/403 response otherwise.
func claimsWithScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
}

func parseLimit(raw string) int {
	limit := defaultPageSize
	if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
		limit = min(parsed, maxPageSize)
	}
	return limit
}

func parseCoordinate(raw, name string, bound float64) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || value < -bound || value > bound {
		return 0, domain.NewError(domain.KindInvalidInput, fmt.Sprintf("%s must be a number within [-%g,%g]", name, bound, bound))
	}
	return value, nil
}

// readLocation parses latitude/longitude query parameters.
func readLocation(r *http.Request) (domain.Location, error) {
	q := r.URL.Query()
	lat, err := parseCoordinate(q.Get("latitude"), "latitude", 90)
	if err != nil {
		return domain.Location{}, err
	}
	lon, err := parseCoordinate(q.Get("longitude"), "longitude", 180)
	if err != nil {
		return domain.Location{}, err
	}
	return domain.Location{Latitude: lat, Longitude: lon}, nil
}
