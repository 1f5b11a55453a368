package core

// UrgencyScore ranks a pending task for the daily roll, relative to the
// effective date. Priority dominates; due-date proximity and an energy
// nudge break it up. Ten priority points per level keeps any due bonus
// from outranking a two-level priority gap.
func UrgencyScore(w *WorkItem, d Day) int {
	u := w.Priority * 10
	if !w.DueDate.IsZero() {
		switch {
		case w.DueDate.Before(d):
			u += 50
		case w.DueDate.BeforeOrEqual(d.AddDays(2)):
			u += 25
		case w.DueDate.BeforeOrEqual(d.AddDays(7)):
			u += 10
		}
	}
	switch {
	case w.Energy >= 4:
		u += 5
	case w.Energy <= 1:
		u -= 1
	}
	return u
}
