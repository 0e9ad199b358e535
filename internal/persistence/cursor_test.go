package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/attendance/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{ClockIn: time.Date(2024, 3, 4, 8, 0, 0, 123000, time.UTC), ID: "session-1"}

	token := EncodeCursor(in)
	require.NotEmpty(t, token)
	require.NotContains(t, token, "=")

	out, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, in.ClockIn.Equal(out.ClockIn))
	require.Equal(t, in.ID, out.ID)
}

func TestDecodeCursorEdgeCases(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Empty(t, EncodeCursor(nil))

	_, err = DecodeCursor("!!!")
	require.Error(t, err)

	_, err = DecodeCursor("bm8tc2VwYXJhdG9y") // "no-separator"
	require.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	_, err = DecodeCursor("YzEuYWJjLnNlc3Npb24tMQ") // "c1.abc.session-1"
	require.Error(t, err)

	_, err = DecodeCursor("YzIuMTcwOTUzOTIwMDAwMDAwMC5zZXNzaW9uLTE") // unknown version "c2"
	require.Error(t, err)
}
