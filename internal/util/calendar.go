package util

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// ParseDate parses a YYYY-MM-DD string into a civil.Date.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return d, nil
}

// StartOfDay returns midnight UTC at the start of d.
func StartOfDay(d civil.Date) time.Time {
	return d.In(time.UTC)
}

// EndOfDay returns the last nanosecond of d in UTC.
func EndOfDay(d civil.Date) time.Time {
	return d.AddDays(1).In(time.UTC).Add(-time.Nanosecond)
}

// LastCompletedDay returns the most recent weekday strictly before now's UTC
// date. Market holidays are not accounted for; a holiday simply yields no bar.
func LastCompletedDay(now time.Time) civil.Date {
	d := civil.DateOf(now.UTC()).AddDays(-1)
	for {
		switch d.In(time.UTC).Weekday() {
		case time.Saturday, time.Sunday:
			d = d.AddDays(-1)
		default:
			return d
		}
	}
}
