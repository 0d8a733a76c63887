package schedule

import (
	"testing"
	"time"
)

// 2025-06-03 is a Tuesday.
var tue = time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)

func TestNextOnce(t *testing.T) {
	t.Parallel()
	s := Schedule{Minute: 9 * 60, Kind: Once, Date: time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)}

	at, ok := Next(s, tue, tue)
	if !ok {
		t.Fatal("expected an occurrence for a future dated schedule")
	}
	want := time.Date(2025, 6, 5, 9, 0, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("at = %v, want %v", at, want)
	}

	// Already fired: exhausted.
	if _, ok := Next(s, tue, want); ok {
		t.Fatal("expected no occurrence at the exact trigger instant")
	}
	if _, ok := Next(s, tue, want.Add(time.Hour)); ok {
		t.Fatal("expected no occurrence after the trigger instant")
	}
}

func TestNextCreationDayEligible(t *testing.T) {
	t.Parallel()
	// Created Tuesday 08:00 with a Tuesday 09:00 slot: same-day fire.
	s := Schedule{Minute: 9 * 60, Kind: Recurring, Days: DaySet(0).With(time.Tuesday), RepeatWeekly: true}

	at, ok := Next(s, tue, tue)
	if !ok {
		t.Fatal("expected an occurrence")
	}
	want := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("at = %v, want same-day %v", at, want)
	}
}

func TestNextRoundTripFromParser(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	for _, raw := range []string{
		"9am UMTWRFS rep",
		"9:30am mwf",
		"10pm 1/29",
		"21:15 TR rep",
	} {
		s, err := ParseIn(raw, now, time.UTC)
		if err != nil {
			t.Fatalf("ParseIn(%q) error: %v", raw, err)
		}
		at, ok := Next(s, now, now)
		if !ok {
			t.Fatalf("Next(%q) exhausted at creation instant", raw)
		}
		if !at.After(now) {
			t.Fatalf("Next(%q) = %v, not strictly after %v", raw, at, now)
		}
	}
}

func TestNextWeeklyNoDoubleFire(t *testing.T) {
	t.Parallel()
	s := Schedule{Minute: 9 * 60, Kind: Recurring, Days: DaySet(0).With(time.Tuesday), RepeatWeekly: true}

	first, ok := Next(s, tue, tue)
	if !ok {
		t.Fatal("expected first occurrence")
	}

	// Advancing now to each fired slot must yield the slot one week later,
	// never the same instant twice, for as long as the task lives.
	prev := first
	for week := 1; week <= 6; week++ {
		next, ok := Next(s, tue, prev)
		if !ok {
			t.Fatalf("week %d: expected an occurrence", week)
		}
		if !next.After(prev) {
			t.Fatalf("week %d: next %v not strictly after fired slot %v", week, next, prev)
		}
		if want := prev.AddDate(0, 0, 7); !next.Equal(want) {
			t.Fatalf("week %d: next = %v, want %v", week, next, want)
		}
		prev = next
	}
}

func TestNextWeeklySurvivesStaleCreation(t *testing.T) {
	t.Parallel()
	s := Schedule{Minute: 9 * 60, Kind: Recurring, Days: DaySet(0).With(time.Tuesday), RepeatWeekly: true}

	// A replayed row whose creation is weeks in the past must still produce
	// a strictly future occurrence, not a stale one.
	now := tue.AddDate(0, 0, 30)
	at, ok := Next(s, tue, now)
	if !ok {
		t.Fatal("expected an occurrence for a weekly task replayed late")
	}
	if !at.After(now) {
		t.Fatalf("at = %v, not strictly after now %v", at, now)
	}
	if gap := at.Sub(now); gap > 7*24*time.Hour {
		t.Fatalf("next occurrence %v further than a week from now %v", at, now)
	}
	if at.Weekday() != time.Tuesday || at.Hour() != 9 || at.Minute() != 0 {
		t.Fatalf("at = %v, want a Tuesday 09:00 slot", at)
	}
}

func TestNextWeeklyEarliestAcrossDays(t *testing.T) {
	t.Parallel()
	s := Schedule{
		Minute:       9 * 60,
		Kind:         Recurring,
		Days:         DaySet(0).With(time.Monday).With(time.Thursday),
		RepeatWeekly: true,
	}

	at, ok := Next(s, tue, tue)
	if !ok {
		t.Fatal("expected an occurrence")
	}
	// Thursday Jun 5 beats Monday Jun 9.
	want := time.Date(2025, 6, 5, 9, 0, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("at = %v, want %v", at, want)
	}
}

func TestNextSingleWeekRetires(t *testing.T) {
	t.Parallel()
	s := Schedule{Minute: 9 * 60, Kind: Recurring, Days: AllDays, RepeatWeekly: false}

	// Within the originating week the task still fires.
	if _, ok := Next(s, tue, tue); !ok {
		t.Fatal("expected occurrences within the originating week")
	}

	// Deliberate business rule inherited from the product: a non-repeating
	// day set is a single pass through its week. Once 7+ days have elapsed
	// since creation it retires permanently, remaining weekdays or not.
	if at, ok := Next(s, tue, tue.AddDate(0, 0, 8)); ok {
		t.Fatalf("expected retirement 8 days after creation, got %v", at)
	}
}

func TestNextSingleWeekSkipsFiredSlots(t *testing.T) {
	t.Parallel()
	s := Schedule{
		Minute:       9 * 60,
		Kind:         Recurring,
		Days:         DaySet(0).With(time.Tuesday).With(time.Wednesday),
		RepeatWeekly: false,
	}

	// After the Tuesday slot has passed, Wednesday is next.
	now := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	at, ok := Next(s, tue, now)
	if !ok {
		t.Fatal("expected the Wednesday occurrence")
	}
	want := time.Date(2025, 6, 4, 9, 0, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("at = %v, want %v", at, want)
	}

	// After the last slot of the week: exhausted.
	if _, ok := Next(s, tue, want.Add(time.Minute)); ok {
		t.Fatal("expected retirement after the last weekday slot")
	}
}
