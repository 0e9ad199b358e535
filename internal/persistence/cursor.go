// Package persistence contains helpers shared by the store implementations.
package persistence

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"example.com/attendance/internal/domain"
)

const cursorVersion = "c1"

var errBadCursor = domain.NewError(domain.KindInvalidInput, "invalid cursor")

// EncodeCursor renders c as an opaque query-string token. Clock-in is kept at microsecond
// precision, which every store preserves.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := cursorVersion + "." + strconv.FormatInt(c.ClockIn.UnixMicro(), 10) + "." + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. Blank tokens mean the first page.
// Malformed tokens fail with an invalid input error.
func DecodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, errBadCursor
	}

	version, rest, _ := strings.Cut(string(decoded), ".")
	micros, id, found := strings.Cut(rest, ".")
	if version != cursorVersion || !found || id == "" {
		return nil, errBadCursor
	}
	us, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return nil, errBadCursor
	}
	return &domain.Cursor{ClockIn: time.UnixMicro(us).UTC(), ID: id}, nil
}
