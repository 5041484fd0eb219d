package recurrence

import (
	"testing"
	"time"
)

func TestParseFreqOnly(t *testing.T) {
	tests := []struct {
		input string
		freq  Freq
	}{
		{"FREQ=DAILY", Daily},
		{"FREQ=WEEKLY", Weekly},
		{"RRULE:FREQ=MONTHLY", Monthly},
	}

	for _, tt := range tests {
		r, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.input, err)
			continue
		}
		if r.Freq != tt.freq {
			t.Errorf("Parse(%q).Freq = %d, want %d", tt.input, r.Freq, tt.freq)
		}
		if r.Interval != 1 {
			t.Errorf("Parse(%q).Interval = %d, want 1", tt.input, r.Interval)
		}
	}
}

func TestParseWithByDay(t *testing.T) {
	r, err := Parse("FREQ=WEEKLY;BYDAY=MO,WE,FR")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	if len(r.ByDay) != len(want) {
		t.Fatalf("ByDay len = %d, want %d", len(r.ByDay), len(want))
	}
	for i, d := range r.ByDay {
		if d != want[i] {
			t.Errorf("ByDay[%d] = %v, want %v", i, d, want[i])
		}
	}
}

func TestParseUntil(t *testing.T) {
	for _, in := range []string{"FREQ=DAILY;UNTIL=20250331T000000Z", "FREQ=DAILY;UNTIL=20250331"} {
		r, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", in, err)
		}
		if r.Until != "2025-03-31" {
			t.Errorf("Parse(%q).Until = %q, want 2025-03-31", in, r.Until)
		}
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"",
		"INTERVAL=2",
		"FREQ=HOURLY",
		"FREQ=YEARLY",
		"FREQ=DAILY;INTERVAL=0",
		"FREQ=DAILY;BYDAY=MO",
		"FREQ=WEEKLY;BYDAY=XX",
		"FREQ=WEEKLY;BYMONTHDAY=3",
		"FREQ=DAILY;COUNT=3",
		"FREQ",
	}
	for _, in := range bad {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	in := "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,FR;UNTIL=20250630"
	r, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := r.String(); got != in {
		t.Errorf("String() = %q, want %q", got, in)
	}
}

func TestOccursOnDaily(t *testing.T) {
	r, _ := Parse("FREQ=DAILY;INTERVAL=2")
	tests := []struct {
		date string
		want bool
	}{
		{"2025-02-28", false}, // before anchor
		{"2025-03-01", true},
		{"2025-03-02", false},
		{"2025-03-03", true},
		{"2025-04-30", true}, // 60 days later
	}
	for _, tt := range tests {
		if got := r.OccursOn("2025-03-01", tt.date); got != tt.want {
			t.Errorf("OccursOn(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
}

func TestOccursOnWeekly(t *testing.T) {
	// 2025-03-03 is a Monday.
	r, _ := Parse("FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH")
	tests := []struct {
		date string
		want bool
	}{
		{"2025-03-03", true},  // Mon, week 0
		{"2025-03-06", true},  // Thu, week 0
		{"2025-03-10", false}, // Mon, week 1
		{"2025-03-17", true},  // Mon, week 2
		{"2025-03-18", false}, // Tue
	}
	for _, tt := range tests {
		if got := r.OccursOn("2025-03-03", tt.date); got != tt.want {
			t.Errorf("OccursOn(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}

	plain, _ := Parse("FREQ=WEEKLY")
	if !plain.OccursOn("2025-03-05", "2025-03-12") {
		t.Error("plain weekly should fire on the anchor weekday")
	}
	if plain.OccursOn("2025-03-05", "2025-03-13") {
		t.Error("plain weekly fired on another weekday")
	}
}

func TestOccursOnMonthly(t *testing.T) {
	r, _ := Parse("FREQ=MONTHLY;BYMONTHDAY=31")
	if !r.OccursOn("2025-01-01", "2025-01-31") {
		t.Error("expected Jan 31")
	}
	if r.OccursOn("2025-01-01", "2025-02-28") {
		t.Error("months without day 31 are skipped")
	}
	if !r.OccursOn("2025-01-01", "2025-03-31") {
		t.Error("expected Mar 31")
	}

	quarterly, _ := Parse("FREQ=MONTHLY;INTERVAL=3")
	if !quarterly.OccursOn("2025-01-15", "2025-04-15") {
		t.Error("expected Apr 15")
	}
	if quarterly.OccursOn("2025-01-15", "2025-02-15") {
		t.Error("Feb 15 is off-interval")
	}
}

func TestOccursOnUntil(t *testing.T) {
	r, _ := Parse("FREQ=DAILY;UNTIL=20250305")
	if !r.OccursOn("2025-03-01", "2025-03-05") {
		t.Error("UNTIL is inclusive")
	}
	if r.OccursOn("2025-03-01", "2025-03-06") {
		t.Error("fired after UNTIL")
	}
}

func TestDescribe(t *testing.T) {
	r, _ := Parse("FREQ=WEEKLY;BYDAY=MO,WE")
	if got := r.Describe(); got != "Every week on Mon, Wed" {
		t.Errorf("Describe() = %q", got)
	}
}
