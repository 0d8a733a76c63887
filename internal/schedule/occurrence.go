package schedule

import "time"

const week = 7 * 24 * time.Hour

// Next computes the next instant a schedule should fire strictly after now.
// ok is false when the schedule is exhausted and the task must be retired.
//
// createdAt anchors recurring schedules: the reference date is the calendar
// day before creation, so the creation day itself is still an eligible
// occurrence day rather than counting as already past.
func Next(s Schedule, createdAt, now time.Time) (at time.Time, ok bool) {
	now = now.UTC()

	switch s.Kind {
	case Once:
		at = s.On(s.Date)
		if at.After(now) {
			return at, true
		}
		return time.Time{}, false

	case Recurring:
		created := createdAt.UTC()
		ref := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

		if s.RepeatWeekly {
			var best time.Time
			for _, wd := range s.Days.Days() {
				c := s.On(nextWeekday(ref, wd))
				// A slot that already fired advances in whole weeks until it
				// is strictly in the future again, so the reference date can
				// stay anchored at creation without ever re-emitting a past
				// instant (replayed rows included).
				for !c.After(now) {
					c = c.AddDate(0, 0, 7)
				}
				if best.IsZero() || c.Before(best) {
					best = c
				}
			}
			if best.IsZero() {
				return time.Time{}, false
			}
			return best, true
		}

		var best time.Time
		for _, wd := range s.Days.Days() {
			c := s.On(nextWeekday(ref, wd))
			if !c.After(now) {
				continue
			}
			if best.IsZero() || c.Before(best) {
				best = c
			}
		}
		if best.IsZero() {
			return time.Time{}, false
		}
		// A non-repeating day set fires once per listed weekday within the
		// originating week, then retires for good.
		if best.Sub(created) >= week {
			return time.Time{}, false
		}
		return best, true
	}

	return time.Time{}, false
}

// nextWeekday returns the first date strictly after the given date that
// falls on the wanted weekday.
func nextWeekday(after time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(after.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return after.AddDate(0, 0, delta)
}
