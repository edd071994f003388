// Package timeutil holds the time arithmetic shared by the optimizer and
// scheduler: epoch-second conversion, ISO-8601 parsing with a UTC default for
// naive inputs, and relative-day math.
package timeutil

import (
	"time"
)

// bareLayout matches ISO-8601 strings that carry no offset. They are treated
// as UTC.
const bareLayout = "2006-01-02T15:04:05"

// ParseISO parses an ISO-8601 timestamp. Inputs without an explicit offset are
// treated as UTC.
func ParseISO(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(bareLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatISO renders t as an ISO-8601 UTC timestamp with second precision and
// an explicit Z suffix.
func FormatISO(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// ToEpoch returns t as whole seconds since the Unix epoch.
func ToEpoch(t time.Time) int64 { return t.UTC().Unix() }

// FromEpoch converts epoch seconds back into a UTC time.
func FromEpoch(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

// DayDate returns the calendar date (midnight UTC) of relative day number day,
// where day 1 is the date of base.
func DayDate(base time.Time, day int) time.Time {
	b := base.UTC()
	d := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, day-1)
}

// SameDay reports whether a and b fall on the same UTC calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
