// Package kst buckets instants into Korea Standard Time calendar days.
//
// Every streak and settlement computation treats a "day" as a KST date in
// ISO form (YYYY-MM-DD), even though completion timestamps are stored in UTC.
package kst

import (
	"fmt"
	"time"

	"github.com/jinzhu/now"
)

// DateLayout is the ISO calendar-date layout used for mission and ledger dates.
const DateLayout = "2006-01-02"

// Location is fixed at UTC+9; Korea observes no daylight saving time.
var Location = time.FixedZone("KST", 9*60*60)

// Clock returns the current instant. Services take one so tests can pin "today".
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// FormatDate returns the KST calendar date of t.
func FormatDate(t time.Time) string {
	return t.In(Location).Format(DateLayout)
}

// Today returns the KST calendar date for the instant reported by clock.
func Today(clock Clock) string {
	return FormatDate(clock())
}

// ParseDate parses an ISO date as midnight KST.
func ParseDate(date string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	return t, nil
}

// ValidDate reports whether date is a well-formed ISO calendar date.
func ValidDate(date string) bool {
	_, err := ParseDate(date)
	return err == nil
}

// AddDays shifts an ISO date by n calendar days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// DaysBetween returns the number of calendar days from a to b (b - a).
func DaysBetween(a, b string) (int, error) {
	ta, err := ParseDate(a)
	if err != nil {
		return 0, err
	}
	tb, err := ParseDate(b)
	if err != nil {
		return 0, err
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}

// StartOfDay returns midnight KST of the day containing t.
func StartOfDay(t time.Time) time.Time {
	return now.With(t.In(Location)).BeginningOfDay()
}

// MonthRange returns the first and last ISO dates of the KST month containing date.
func MonthRange(date string) (string, string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", "", err
	}
	n := now.With(t)
	return n.BeginningOfMonth().Format(DateLayout), n.EndOfMonth().Format(DateLayout), nil
}
