package auth

// Scopes recognised by the attendance API.
const (
	ScopeAttendanceWrite  = "attendance:write"
	ScopeAttendanceRead   = "attendance:read"
	ScopeCheckpointsAdmin = "checkpoints:admin"
)
