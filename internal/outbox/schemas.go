package outbox

import "example.com/attendance/internal/events"

const clockedInSchema = `{
  "type": "object",
  "title": "AttendanceClockedIn",
  "properties": {
    "session_id": {"type": "string"},
    "user_id": {"type": "string"},
    "checkpoint_id": {"type": "string"},
    "status": {"type": "string", "enum": ["PRESENT", "LATE", "ABSENT", "ON_LEAVE"]},
    "clock_in": {"type": "string", "format": "date-time"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["session_id", "user_id", "checkpoint_id", "status", "clock_in", "occurred_at"],
  "additionalProperties": false
}`

const clockedOutSchema = `{
  "type": "object",
  "title": "AttendanceClockedOut",
  "properties": {
    "session_id": {"type": "string"},
    "user_id": {"type": "string"},
    "checkpoint_id": {"type": "string"},
    "status": {"type": "string", "enum": ["PRESENT", "LATE", "ABSENT", "ON_LEAVE"]},
    "clock_in": {"type": "string", "format": "date-time"},
    "clock_out": {"type": "string", "format": "date-time"},
    "duration_seconds": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["session_id", "user_id", "checkpoint_id", "status", "clock_in", "clock_out", "duration_seconds", "occurred_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeClockedIn:  {Schema: clockedInSchema},
	events.TypeClockedOut: {Schema: clockedOutSchema},
}
