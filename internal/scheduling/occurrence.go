package scheduling

import "time"

// DateLayout is the wire format for session dates: timezone-naive local
// calendar dates.
const DateLayout = "2006-01-02"

// Occurrences computes the next weeksAhead dated occurrences of a weekly
// template falling on `day` at startMin minutes past midnight, starting from
// `from`. Today is included iff the weekday matches and the start time has
// not yet passed.
func Occurrences(day, startMin, weeksAhead int, from time.Time) []string {
	if weeksAhead <= 0 || day < 0 || day > 6 {
		return nil
	}
	first := firstOccurrence(day, startMin, from)
	dates := make([]string, 0, weeksAhead)
	for i := 0; i < weeksAhead; i++ {
		dates = append(dates, first.AddDate(0, 0, 7*i).Format(DateLayout))
	}
	return dates
}

// firstOccurrence finds the first date on or after `from` whose weekday is
// `day`, skipping today when the template's start time has already passed.
func firstOccurrence(day, startMin int, from time.Time) time.Time {
	date := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	offset := (day - int(from.Weekday()) + 7) % 7
	if offset == 0 {
		minutesNow := from.Hour()*60 + from.Minute()
		if minutesNow >= startMin {
			offset = 7
		}
	}
	return date.AddDate(0, 0, offset)
}
