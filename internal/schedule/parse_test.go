package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestParseDaySetVariants(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		raw    string
		minute int
		days   DaySet
		repeat bool
	}{
		{name: "all seven letters", raw: "9am UMTWRFS rep", minute: 9 * 60, days: AllDays, repeat: true},
		{name: "lowercase letters", raw: "9:30am umtwrfs rep", minute: 9*60 + 30, days: AllDays, repeat: true},
		{name: "a shorthand", raw: "9am a rep", minute: 9 * 60, days: AllDays, repeat: true},
		{name: "ALL shorthand", raw: "9am ALL rep", minute: 9 * 60, days: AllDays, repeat: true},
		{name: "subset no repeat", raw: "10pm mwf", minute: 22 * 60, days: DaySet(0).With(time.Monday).With(time.Wednesday).With(time.Friday), repeat: false},
		{name: "bare 24h clock", raw: "21:15 TR", minute: 21*60 + 15, days: DaySet(0).With(time.Tuesday).With(time.Thursday), repeat: false},
		{name: "repeat word variants", raw: "9am MWF repeating", minute: 9 * 60, days: DaySet(0).With(time.Monday).With(time.Wednesday).With(time.Friday), repeat: true},
		{name: "marker among trailing text", raw: "9am MWF please rep", minute: 9 * 60, days: DaySet(0).With(time.Monday).With(time.Wednesday).With(time.Friday), repeat: true},
		// A "rep" token ahead of the day set is itself a weekday-letter
		// token (R), so it becomes the day set rather than a marker.
		{name: "rep steals the day set", raw: "9am rep MWF", minute: 9 * 60, days: DaySet(0).With(time.Thursday), repeat: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIn(tt.raw, now, time.UTC)
			if err != nil {
				t.Fatalf("ParseIn(%q) error: %v", tt.raw, err)
			}
			if got.Kind != Recurring {
				t.Fatalf("Kind = %v, want recurring", got.Kind)
			}
			if got.Minute != tt.minute {
				t.Fatalf("Minute = %d, want %d", got.Minute, tt.minute)
			}
			if got.Days != tt.days {
				t.Fatalf("Days = %v, want %v", got.Days, tt.days)
			}
			if got.RepeatWeekly != tt.repeat {
				t.Fatalf("RepeatWeekly = %v, want %v", got.RepeatWeekly, tt.repeat)
			}
		})
	}
}

func TestParseDatePrecedence(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

	got, err := ParseIn("10pm 1/29", now, time.UTC)
	if err != nil {
		t.Fatalf("ParseIn error: %v", err)
	}
	if got.Kind != Once {
		t.Fatalf("Kind = %v, want once", got.Kind)
	}
	if !got.Days.Empty() {
		t.Fatalf("Days = %v, want empty set for a dated schedule", got.Days)
	}
	want := time.Date(2025, 1, 29, 0, 0, 0, 0, time.UTC)
	if !got.Date.Equal(want) {
		t.Fatalf("Date = %v, want %v", got.Date, want)
	}
	if got.Minute != 22*60 {
		t.Fatalf("Minute = %d, want %d", got.Minute, 22*60)
	}
}

func TestParseDateRollsYearForward(t *testing.T) {
	t.Parallel()
	// Jan 29 has already passed; the schedule must land in next year.
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	got, err := ParseIn("10pm 1/29", now, time.UTC)
	if err != nil {
		t.Fatalf("ParseIn error: %v", err)
	}
	want := time.Date(2026, 1, 29, 0, 0, 0, 0, time.UTC)
	if !got.Date.Equal(want) {
		t.Fatalf("Date = %v, want %v", got.Date, want)
	}
}

func TestParseDayShiftForward(t *testing.T) {
	t.Parallel()
	// 10pm in UTC-5 is 3am the next UTC day; the stored date must move with it.
	loc := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2025, 1, 5, 12, 0, 0, 0, loc)

	got, err := ParseIn("10pm 1/29", now, loc)
	if err != nil {
		t.Fatalf("ParseIn error: %v", err)
	}
	if got.Minute != 3*60 {
		t.Fatalf("Minute = %d, want %d", got.Minute, 3*60)
	}
	want := time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC)
	if !got.Date.Equal(want) {
		t.Fatalf("Date = %v, want %v (shifted forward)", got.Date, want)
	}
}

func TestParseDayShiftBackward(t *testing.T) {
	t.Parallel()
	// 2am in UTC+5:30 is 20:30 the previous UTC day.
	loc := time.FixedZone("UTC+5:30", 5*3600+30*60)
	now := time.Date(2025, 1, 5, 12, 0, 0, 0, loc)

	got, err := ParseIn("2am 1/29", now, loc)
	if err != nil {
		t.Fatalf("ParseIn error: %v", err)
	}
	if got.Minute != 20*60+30 {
		t.Fatalf("Minute = %d, want %d", got.Minute, 20*60+30)
	}
	want := time.Date(2025, 1, 28, 0, 0, 0, 0, time.UTC)
	if !got.Date.Equal(want) {
		t.Fatalf("Date = %v, want %v (shifted backward)", got.Date, want)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "single token", raw: "9am", want: ErrMalformed},
		{name: "empty", raw: "", want: ErrMalformed},
		{name: "no digits anywhere", raw: "foo bar", want: ErrNoTime},
		{name: "unparseable clock", raw: "99:99 MWF", want: ErrBadTime},
		{name: "no day letters", raw: "9am xyz", want: ErrNoScheduleInfo},
		{name: "invalid date falls through", raw: "10pm 13/45", want: ErrNoScheduleInfo},
		{name: "day 32", raw: "10pm 1/32", want: ErrNoScheduleInfo},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIn(tt.raw, now, time.UTC)
			if err == nil {
				t.Fatalf("ParseIn(%q) succeeded, want %v", tt.raw, tt.want)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("ParseIn(%q) error = %v, want %v", tt.raw, err, tt.want)
			}
		})
	}
}

func TestParseClockFormatsInOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw        string
		hour, mins int
	}{
		{raw: "9:30am", hour: 9, mins: 30},
		{raw: "9:30PM", hour: 21, mins: 30},
		{raw: "12am", hour: 0, mins: 0},
		{raw: "12pm", hour: 12, mins: 0},
		{raw: "00:00", hour: 0, mins: 0},
		{raw: "23:59", hour: 23, mins: 59},
	}
	for _, tt := range tests {
		h, m, err := parseClock(tt.raw)
		if err != nil {
			t.Fatalf("parseClock(%q) error: %v", tt.raw, err)
		}
		if h != tt.hour || m != tt.mins {
			t.Fatalf("parseClock(%q) = %d:%02d, want %d:%02d", tt.raw, h, m, tt.hour, tt.mins)
		}
	}
}
