package api

import (
	"net/http"
	"strings"
	"time"

	"example.com/attendance/internal/auth"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/persistence"
)

func (h *Handler) attendanceRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.clock(w, r)
	case http.MethodGet:
		h.history(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) clock(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsWithScope(w, r, auth.ScopeAttendanceWrite)
	if !ok {
		return
	}

	var req ClockRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.attendance.Clock(r.Context(), domain.ClockRequest{
		UserID:       claims.Subject,
		Action:       domain.Action(req.Action),
		CheckpointID: strings.TrimSpace(req.CheckpointID),
		Location:     domain.Location{Latitude: *req.Latitude, Longitude: *req.Longitude},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if result.Action == domain.ActionClockIn {
		status = http.StatusCreated
	}
	writeJSON(w, status, ClockResponse{
		Message:    result.Message,
		Action:     string(result.Action),
		Attendance: toSessionView(result.Session, h.now()),
	})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsWithScope(w, r, auth.ScopeAttendanceRead, auth.ScopeAttendanceWrite)
	if !ok {
		return
	}
	userID, ok := targetUser(w, r, claims)
	if !ok {
		return
	}

	q := r.URL.Query()
	loc := h.attendance.Location()
	query := domain.HistoryQuery{UserID: userID, Limit: parseLimit(q.Get("limit"))}

	if raw := q.Get("start_date"); raw != "" {
		start, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(domain.KindInvalidInput), "start_date must be YYYY-MM-DD")
			return
		}
		query.From = &start
	}
	if raw := q.Get("end_date"); raw != "" {
		end, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(domain.KindInvalidInput), "end_date must be YYYY-MM-DD")
			return
		}
		// end_date is inclusive; the query bound is exclusive.
		end = end.AddDate(0, 0, 1)
		query.To = &end
	}

	cursor, err := persistence.DecodeCursor(q.Get("cursor"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	query.Cursor = cursor

	sessions, next, err := h.attendance.History(r.Context(), query)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ListSessionsResponse{
		Items:      toSessionViews(sessions, h.now()),
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) activeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	claims, ok := claimsWithScope(w, r, auth.ScopeAttendanceRead, auth.ScopeAttendanceWrite)
	if !ok {
		return
	}
	userID, ok := targetUser(w, r, claims)
	if !ok {
		return
	}

	session, err := h.attendance.ActiveSession(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if session == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(*session, h.now()))
}

func (h *Handler) dailyView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	claims, ok := claimsWithScope(w, r, auth.ScopeAttendanceRead, auth.ScopeAttendanceWrite)
	if !ok {
		return
	}
	userID, ok := targetUser(w, r, claims)
	if !ok {
		return
	}

	loc := h.attendance.Location()
	day := h.now().In(loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(domain.KindInvalidInput), "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	view, err := h.attendance.DailyView(r.Context(), userID, day)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDailyResponse(*view, h.now()))
}

// targetUser resolves whose attendance is being read. Only administrators may read another
// user's attendance through the user_id parameter.
func targetUser(w http.ResponseWriter, r *http.Request, claims *auth.Claims) (string, bool) {
	requested := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if requested == "" || requested == claims.Subject {
		return claims.Subject, true
	}
	if !claims.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+auth.ScopeCheckpointsAdmin+" required to read other users")
		return "", false
	}
	return requested, true
}
