package core

import "time"

// =============================================================================
// RECURRENCE ADVANCEMENT - Pure schedule arithmetic
// =============================================================================

// NextOccurrence computes the occurrence after a given date:
// daily is the next day, every_n_days jumps by the interval, weekly is
// the smallest later date whose weekday is in the set. One-shot habits
// (none) have no next occurrence.
func (r Recurrence) NextOccurrence(after Day) (Day, bool) {
	switch r.Type {
	case RecurrenceDaily:
		return after.AddDays(1), true
	case RecurrenceEveryNDays:
		n := r.Interval
		if n < 1 {
			n = 1
		}
		return after.AddDays(n), true
	case RecurrenceWeekly:
		if len(r.Weekdays) == 0 {
			return Day{}, false
		}
		d := after.AddDays(1)
		for i := 0; i < 7; i++ {
			if r.onWeekday(d.Weekday()) {
				return d, true
			}
			d = d.AddDays(1)
		}
		return Day{}, false
	default:
		return Day{}, false
	}
}

func (r Recurrence) onWeekday(wd time.Weekday) bool {
	for _, w := range r.Weekdays {
		if w == wd {
			return true
		}
	}
	return false
}

// AdvanceTo walks the schedule forward from a missed due date until the
// next occurrence lands on or after target. Every occurrence passed over
// is returned as skipped, so each can still be penalized on its own date.
// ok=false means the schedule is exhausted (one-shot habit): the single
// missed occurrence is in skipped and the due date is unchanged.
func (r Recurrence) AdvanceTo(due, target Day) (next Day, skipped []Day, ok bool) {
	cur := due
	for cur.Before(target) {
		skipped = append(skipped, cur)
		n, more := r.NextOccurrence(cur)
		if !more {
			return cur, skipped, false
		}
		cur = n
	}
	return cur, skipped, true
}
