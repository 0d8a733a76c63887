package schedule

import (
	"strings"
	"time"
)

// Kind selects which recurrence variant of a Schedule is populated.
type Kind int

const (
	// Recurring fires on a weekday set, optionally repeating every week.
	Recurring Kind = iota
	// Once fires at a single calendar date and never again.
	Once
)

func (k Kind) String() string {
	switch k {
	case Recurring:
		return "recurring"
	case Once:
		return "once"
	default:
		return "unknown"
	}
}

// DaySet is a set of weekdays packed into a bitmask.
// Bit N corresponds to time.Weekday N (Sunday = 0).
type DaySet uint8

// AllDays contains every weekday.
const AllDays DaySet = 1<<7 - 1

func (s DaySet) With(d time.Weekday) DaySet { return s | 1<<uint(d) }
func (s DaySet) Has(d time.Weekday) bool    { return s&(1<<uint(d)) != 0 }
func (s DaySet) Empty() bool                { return s == 0 }

func (s DaySet) Len() int {
	n := 0
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Days lists the members in Sunday..Saturday order.
func (s DaySet) Days() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s DaySet) String() string {
	if s == AllDays {
		return "every day"
	}
	names := make([]string, 0, 7)
	for _, d := range s.Days() {
		names = append(names, d.String())
	}
	return strings.Join(names, ", ")
}

// DayShift records how converting a local wall-clock time to UTC moved the
// calendar day: an evening time east of UTC lands on the next UTC day, a
// morning time west of UTC on the previous one.
type DayShift int

const (
	ShiftNone DayShift = iota
	ShiftForward
	ShiftBackward
)

// Schedule is the normalized output of parsing a time spec.
//
// Exactly one recurrence variant is populated, selected by Kind:
// Recurring has a non-empty Days set (the parser rejects empty sets),
// Once has a calendar Date. Minute is shared by both.
type Schedule struct {
	// Minute is the trigger time-of-day in minutes after UTC midnight.
	Minute int

	Kind Kind

	// Days and RepeatWeekly apply to Recurring only.
	Days         DaySet
	RepeatWeekly bool

	// Date applies to Once only; it is a UTC-midnight calendar date.
	Date time.Time
}

// On returns the trigger instant on the given calendar date.
func (s Schedule) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), s.Minute/60, s.Minute%60, 0, 0, time.UTC)
}

func (s Schedule) String() string {
	var b strings.Builder
	b.WriteString(time.Date(0, 1, 1, s.Minute/60, s.Minute%60, 0, 0, time.UTC).Format("15:04"))
	b.WriteString(" UTC ")
	switch s.Kind {
	case Once:
		b.WriteString("on ")
		b.WriteString(s.Date.Format("Jan 2 2006"))
	case Recurring:
		b.WriteString("on ")
		b.WriteString(s.Days.String())
		if s.RepeatWeekly {
			b.WriteString(" (weekly)")
		}
	}
	return b.String()
}
