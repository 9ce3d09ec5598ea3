// Package textparse extracts structured fields from the free-text flight
// descriptions requesters type into the chat. Parsing is best effort: a
// description with no recognizable date is stored dateless and the
// requester is told how to phrase one.
package textparse

import (
	"regexp"
	"strconv"
	"time"
)

// datePattern matches day-first numeric dates such as 25-12-2025 or
// 25/12/2025 anywhere in the text.
var datePattern = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`)

// TravelDate returns the first calendar date found in text, normalized to
// midnight UTC. The second return value is false when no valid date appears;
// impossible dates (e.g. 31-02-2025) are rejected, not clamped.
func TravelDate(text string) (time.Time, bool) {
	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	if month < 1 || month > 12 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 31 -> Mar 3); treat that as invalid.
	if d.Day() != day || d.Month() != time.Month(month) || d.Year() != year {
		return time.Time{}, false
	}
	return d, true
}
