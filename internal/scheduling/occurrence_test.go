package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccurrencesIncludesTodayBeforeStartTime(t *testing.T) {
	// 2026-09-07 is a Monday.
	monday := time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC)

	dates := Occurrences(1, MustClock("09:00"), 3, monday)
	require.Len(t, dates, 3)
	assert.Equal(t, []string{"2026-09-07", "2026-09-14", "2026-09-21"}, dates)
}

func TestOccurrencesSkipsTodayAfterStartTime(t *testing.T) {
	monday := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)

	// 09:00 has already arrived, so the first occurrence is next week.
	dates := Occurrences(1, MustClock("09:00"), 2, monday)
	require.Len(t, dates, 2)
	assert.Equal(t, []string{"2026-09-14", "2026-09-21"}, dates)
}

func TestOccurrencesWrapsToNextWeekday(t *testing.T) {
	friday := time.Date(2026, 9, 11, 12, 0, 0, 0, time.UTC)

	dates := Occurrences(2, MustClock("10:00"), 1, friday)
	require.Len(t, dates, 1)
	assert.Equal(t, "2026-09-15", dates[0])
}

func TestOccurrencesRejectsBadInput(t *testing.T) {
	now := time.Now()
	assert.Nil(t, Occurrences(1, MustClock("09:00"), 0, now))
	assert.Nil(t, Occurrences(-1, MustClock("09:00"), 4, now))
	assert.Nil(t, Occurrences(7, MustClock("09:00"), 4, now))
}
