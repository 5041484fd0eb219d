package recurrence

import (
	"slices"
	"time"
)

const dateLayout = "2006-01-02"

// OccursOn reports whether the rule, anchored on the date the template was
// created, fires on date. Both dates are KST calendar days in ISO form.
// Dates before the anchor never match.
func (r Rule) OccursOn(anchor, date string) bool {
	a, err := time.Parse(dateLayout, anchor)
	if err != nil {
		return false
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return false
	}
	if d.Before(a) {
		return false
	}
	if r.Until != "" && date > r.Until {
		return false
	}

	interval := max(r.Interval, 1)

	switch r.Freq {
	case Daily:
		days := int(d.Sub(a).Hours() / 24)
		return days%interval == 0

	case Weekly:
		days := r.ByDay
		if len(days) == 0 {
			days = []time.Weekday{a.Weekday()}
		}
		if !slices.Contains(days, d.Weekday()) {
			return false
		}
		weeks := int(weekStart(d).Sub(weekStart(a)).Hours() / 24 / 7)
		return weeks%interval == 0

	case Monthly:
		day := r.ByMonthDay
		if day == 0 {
			day = a.Day()
		}
		// Months without the day are skipped.
		if d.Day() != day {
			return false
		}
		months := (d.Year()-a.Year())*12 + int(d.Month()) - int(a.Month())
		return months%interval == 0
	}
	return false
}

// weekStart returns the Monday of t's week.
func weekStart(t time.Time) time.Time {
	offset := int(t.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	return t.AddDate(0, 0, -offset)
}
