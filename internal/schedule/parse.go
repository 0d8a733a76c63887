package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse errors. These are user input rejections, not system faults;
// callers surface them directly as a reply.
var (
	ErrMalformed      = errors.New("time spec needs at least a time and a day or date")
	ErrNoTime         = errors.New("no time found in spec")
	ErrBadTime        = errors.New("unrecognized time format")
	ErrNoScheduleInfo = errors.New("no weekday letters or date found in spec")
)

// Clock layouts tried in order; first match wins.
var clockLayouts = []string{
	"3:04PM", // 9:30am
	"3PM",    // 9am
	"15:04",  // 21:30
}

var dayLetters = map[rune]time.Weekday{
	'U': time.Sunday,
	'M': time.Monday,
	'T': time.Tuesday,
	'W': time.Wednesday,
	'R': time.Thursday,
	'F': time.Friday,
	'S': time.Saturday,
}

// Parse parses a free-text time spec like "9:30am MWF rep" or "10pm 1/29"
// using the process's local offset.
func Parse(text string) (Schedule, error) {
	return ParseIn(text, time.Now(), time.Local)
}

// ParseIn is Parse with an injectable reference instant and local zone.
//
// The spec is whitespace-delimited. One token carries the wall-clock time,
// one carries either weekday letters (U M T W R F S, or anything with an A
// for all seven) or a month/day date, and any trailing token containing
// "rep" marks a weekly repeat. The parsed local time is normalized to UTC;
// if that conversion crosses midnight the accompanying date is shifted the
// same way so the stored schedule still means the user's local day.
func ParseIn(text string, now time.Time, loc *time.Location) (Schedule, error) {
	tokens := strings.Fields(text)
	if len(tokens) < 2 {
		return Schedule{}, ErrMalformed
	}

	timeIdx := -1
	for i, tok := range tokens {
		if strings.ContainsAny(tok, "0123456789") && !strings.Contains(tok, "/") {
			timeIdx = i
			break
		}
	}
	if timeIdx < 0 {
		return Schedule{}, ErrNoTime
	}

	hour, min, err := parseClock(tokens[timeIdx])
	if err != nil {
		return Schedule{}, err
	}
	minute, shift := toUTCMinute(hour, min, now, loc)

	var (
		days     DaySet
		haveDays bool
		date     time.Time
		haveDate bool
		infoIdx  = -1
	)
	for i, tok := range tokens {
		if i == timeIdx {
			continue
		}
		if strings.Contains(tok, "/") {
			if d, ok := parseDate(tok, minute, shift, now, loc); ok {
				date, haveDate = d, true
				infoIdx = i
				break
			}
			// Not a valid date; fall through to weekday letters so a
			// bad token degrades to "no schedule info" instead of a crash.
		}
		if d, ok := parseDays(tok); ok {
			days, haveDays = d, true
			infoIdx = i
			break
		}
	}

	switch {
	case haveDate:
		// Dates are unambiguous; a date token never doubles as a day set.
		return Schedule{Minute: minute, Kind: Once, Date: date}, nil
	case haveDays:
		// The repeat marker trails the day set; "rep" in a leading token is
		// part of the surrounding text, not a directive.
		repeat := false
		for i := infoIdx + 1; i < len(tokens); i++ {
			if i == timeIdx {
				continue
			}
			if strings.Contains(strings.ToLower(tokens[i]), "rep") {
				repeat = true
				break
			}
		}
		return Schedule{Minute: minute, Kind: Recurring, Days: days, RepeatWeekly: repeat}, nil
	default:
		return Schedule{}, ErrNoScheduleInfo
	}
}

func parseClock(tok string) (hour, min int, err error) {
	upper := strings.ToUpper(tok)
	for _, layout := range clockLayouts {
		if t, perr := time.Parse(layout, upper); perr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %q", ErrBadTime, tok)
}

// toUTCMinute converts a local wall-clock time to minutes after UTC midnight
// and reports whether the conversion crossed a calendar day boundary.
func toUTCMinute(hour, min int, now time.Time, loc *time.Location) (int, DayShift) {
	ln := now.In(loc)
	local := time.Date(ln.Year(), ln.Month(), ln.Day(), hour, min, 0, 0, loc)
	utc := local.UTC()

	minute := utc.Hour()*60 + utc.Minute()

	localDay := time.Date(ln.Year(), ln.Month(), ln.Day(), 0, 0, 0, 0, time.UTC)
	utcDay := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case utcDay.After(localDay):
		return minute, ShiftForward
	case utcDay.Before(localDay):
		return minute, ShiftBackward
	default:
		return minute, ShiftNone
	}
}

// parseDate parses a "month/day" token into a UTC-midnight date in the
// current year, corrected for the UTC day shift and rolled forward a year
// if the resulting instant is already past.
func parseDate(tok string, minute int, shift DayShift, now time.Time, loc *time.Location) (time.Time, bool) {
	parts := strings.Split(tok, "/")
	if len(parts) != 2 {
		return time.Time{}, false
	}
	mo, err1 := strconv.Atoi(parts[0])
	da, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return time.Time{}, false
	}
	year := now.In(loc).Year()
	d := time.Date(year, time.Month(mo), da, 0, 0, 0, 0, time.UTC)
	// Reject normalized overflow like 2/30 or 13/1.
	if d.Year() != year || int(d.Month()) != mo || d.Day() != da {
		return time.Time{}, false
	}

	switch shift {
	case ShiftForward:
		d = d.AddDate(0, 0, 1)
	case ShiftBackward:
		d = d.AddDate(0, 0, -1)
	}

	at := time.Date(d.Year(), d.Month(), d.Day(), minute/60, minute%60, 0, 0, time.UTC)
	if !at.After(now) {
		d = d.AddDate(1, 0, 0)
	}
	return d, true
}

func parseDays(tok string) (DaySet, bool) {
	upper := strings.ToUpper(tok)
	if strings.ContainsRune(upper, 'A') {
		// "a", "all", anything with an A: shorthand for every day.
		return AllDays, true
	}
	var s DaySet
	for _, r := range upper {
		if wd, ok := dayLetters[r]; ok {
			s = s.With(wd)
		}
	}
	if s.Empty() {
		return 0, false
	}
	return s, true
}
