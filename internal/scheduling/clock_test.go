package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"00:00", 0},
		{"08:00", 480},
		{"09:30", 570},
		{"15:45:00", 945},
		{"23:59", 1439},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}

	for _, raw := range []string{"", "9am", "25:00", "12:60", "12", "12:3x"} {
		_, err := ParseClock(raw)
		assert.Error(t, err, raw)
	}
}

func TestFormatClockRoundTrips(t *testing.T) {
	for _, raw := range []string{"00:00", "08:05", "12:30", "23:59"} {
		minutes, err := ParseClock(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, FormatClock(minutes))
	}
}

func TestRangesOverlapIsHalfOpen(t *testing.T) {
	assert.True(t, rangesOverlap(540, 570, 555, 585))
	assert.True(t, rangesOverlap(540, 570, 540, 570))
	// Touching endpoints never overlap.
	assert.False(t, rangesOverlap(540, 570, 570, 600))
	assert.False(t, rangesOverlap(570, 600, 540, 570))
}
