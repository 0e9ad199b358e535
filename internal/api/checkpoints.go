package api

import (
	"net/http"
	"strings"

	"example.com/attendance/internal/auth"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/geofence"
)

func (h *Handler) checkpointsRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listCheckpoints(w, r)
	case http.MethodPost:
		h.createCheckpoint(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) checkpointByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/checkpoints/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, string(domain.KindNotFound), "checkpoint not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getCheckpoint(w, r, id)
	case http.MethodPatch:
		h.updateCheckpoint(w, r, id)
	case http.MethodDelete:
		h.deleteCheckpoint(w, r, id)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (h *Handler) listCheckpoints(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsWithScope(w, r, auth.ScopeAttendanceRead, auth.ScopeAttendanceWrite, auth.ScopeCheckpointsAdmin)
	if !ok {
		return
	}

	checkpoints, err := h.checkpoints.List(r.Context(), claims.IsAdmin())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListCheckpointsResponse{Items: toCheckpointViews(checkpoints)})
}

func (h *Handler) getCheckpoint(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := claimsWithScope(w, r, auth.ScopeAttendanceRead, auth.ScopeAttendanceWrite, auth.ScopeCheckpointsAdmin)
	if !ok {
		return
	}

	cp, err := h.checkpoints.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Inactive checkpoints are hidden from the regular feed.
	if !cp.Active && !claims.IsAdmin() {
		writeError(w, http.StatusNotFound, string(domain.KindNotFound), "checkpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, toCheckpointView(*cp))
}

func (h *Handler) createCheckpoint(w http.ResponseWriter, r *http.Request) {
	if _, ok := claimsWithScope(w, r, auth.ScopeCheckpointsAdmin); !ok {
		return
	}

	var req CreateCheckpointRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	cp, err := h.checkpoints.Create(r.Context(), domain.CheckpointInput{
		Name:         req.Name,
		Description:  req.Description,
		Latitude:     *req.Latitude,
		Longitude:    *req.Longitude,
		RadiusMeters: req.RadiusMeters,
		Active:       req.Active,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/checkpoints/"+cp.ID)
	writeJSON(w, http.StatusCreated, toCheckpointView(*cp))
}

func (h *Handler) updateCheckpoint(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := claimsWithScope(w, r, auth.ScopeCheckpointsAdmin); !ok {
		return
	}

	var req UpdateCheckpointRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	cp, err := h.checkpoints.Update(r.Context(), id, domain.CheckpointPatch{
		Name:         req.Name,
		Description:  req.Description,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		RadiusMeters: req.RadiusMeters,
		Active:       req.Active,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckpointView(*cp))
}

func (h *Handler) deleteCheckpoint(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := claimsWithScope(w, r, auth.ScopeCheckpointsAdmin); !ok {
		return
	}

	if err := h.checkpoints.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) nearbyCheckpoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if _, ok := claimsWithScope(w, r, auth.ScopeAttendanceRead, auth.ScopeAttendanceWrite); !ok {
		return
	}

	loc, err := readLocation(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	nearby, err := h.checkpoints.Nearby(r.Context(), loc)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := NearbyResponse{InRange: toCheckpointViews(nearby.InRange)}
	if nearby.Nearest != nil {
		view := toCheckpointView(*nearby.Nearest)
		distance := nearby.NearestDistance
		resp.Nearest = &view
		resp.NearestDistanceMeters = &distance
		resp.WithinNearest = geofence.IsWithinCheckpoint(loc, *nearby.Nearest)
	}
	writeJSON(w, http.StatusOK, resp)
}
