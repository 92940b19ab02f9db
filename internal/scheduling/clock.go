package scheduling

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseClock converts an "HH:MM" or "HH:MM:SS" string into minutes since
// midnight. Seconds are accepted at the persistence boundary and discarded.
func ParseClock(raw string) (int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	return hour*60 + minute, nil
}

// MustClock is a test/helper variant of ParseClock that panics on bad input.
func MustClock(raw string) int {
	value, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return value
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// rangesOverlap implements the half-open overlap test used everywhere:
// existing.start < proposed.end AND existing.end > proposed.start.
func rangesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}
