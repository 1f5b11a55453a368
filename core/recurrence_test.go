package core_test

import (
	"testing"
	"time"

	"github.com/grindstone/engine/core"
)

func daily() core.Recurrence {
	return core.Recurrence{Type: core.RecurrenceDaily}
}

func everyN(n int) core.Recurrence {
	return core.Recurrence{Type: core.RecurrenceEveryNDays, Interval: n}
}

func weekly(days ...time.Weekday) core.Recurrence {
	return core.Recurrence{Type: core.RecurrenceWeekly, Weekdays: days}
}

// =============================================================================
// NEXT OCCURRENCE
// =============================================================================

func TestNextOccurrence_Daily(t *testing.T) {
	next, ok := daily().NextOccurrence(mar(10))
	if !ok || !next.Equal(mar(11)) {
		t.Errorf("daily after Mar 10 = %s (ok=%v), want 2025-03-11", next, ok)
	}
}

func TestNextOccurrence_EveryNDays(t *testing.T) {
	next, ok := everyN(3).NextOccurrence(mar(10))
	if !ok || !next.Equal(mar(13)) {
		t.Errorf("every 3 days after Mar 10 = %s (ok=%v), want 2025-03-13", next, ok)
	}
}

func TestNextOccurrence_EveryNDays_ZeroIntervalBehavesAsDaily(t *testing.T) {
	next, ok := everyN(0).NextOccurrence(mar(10))
	if !ok || !next.Equal(mar(11)) {
		t.Errorf("interval 0 after Mar 10 = %s (ok=%v), want 2025-03-11", next, ok)
	}
}

func TestNextOccurrence_Weekly(t *testing.T) {
	// 2025-03-10 is a Monday.
	r := weekly(time.Monday, time.Friday)

	next, ok := r.NextOccurrence(mar(10))
	if !ok || !next.Equal(mar(14)) {
		t.Errorf("after Mon Mar 10 = %s (ok=%v), want Fri 2025-03-14", next, ok)
	}

	next, ok = r.NextOccurrence(mar(14))
	if !ok || !next.Equal(mar(17)) {
		t.Errorf("after Fri Mar 14 = %s (ok=%v), want Mon 2025-03-17", next, ok)
	}
}

func TestNextOccurrence_Weekly_SingleDayWrapsFullWeek(t *testing.T) {
	next, ok := weekly(time.Monday).NextOccurrence(mar(10))
	if !ok || !next.Equal(mar(17)) {
		t.Errorf("weekly Monday after Mon Mar 10 = %s (ok=%v), want 2025-03-17", next, ok)
	}
}

func TestNextOccurrence_None(t *testing.T) {
	if _, ok := (core.Recurrence{Type: core.RecurrenceNone}).NextOccurrence(mar(10)); ok {
		t.Error("one-shot schedule should have no next occurrence")
	}
}

func TestNextOccurrence_Weekly_EmptySet(t *testing.T) {
	if _, ok := weekly().NextOccurrence(mar(10)); ok {
		t.Error("weekly schedule with no weekdays should have no next occurrence")
	}
}

// =============================================================================
// ADVANCE TO
// =============================================================================

func TestAdvanceTo_CollectsEveryMissedDate(t *testing.T) {
	// GIVEN a daily habit stuck two days in the past
	// WHEN it is advanced to today
	next, skipped, ok := daily().AdvanceTo(mar(8), mar(10))

	// THEN both missed dates are reported and the habit lands on today
	if !ok {
		t.Fatal("daily schedule should always advance")
	}
	if !next.Equal(mar(10)) {
		t.Errorf("next = %s, want 2025-03-10", next)
	}
	if len(skipped) != 2 || !skipped[0].Equal(mar(8)) || !skipped[1].Equal(mar(9)) {
		t.Errorf("skipped = %v, want [2025-03-08 2025-03-09]", skipped)
	}
}

func TestAdvanceTo_AlreadyCurrent_NoSkips(t *testing.T) {
	next, skipped, ok := daily().AdvanceTo(mar(10), mar(10))
	if !ok || !next.Equal(mar(10)) || len(skipped) != 0 {
		t.Errorf("got next=%s skipped=%v ok=%v, want no-op", next, skipped, ok)
	}
}

func TestAdvanceTo_EveryNDays_SkipsOnlyScheduledDates(t *testing.T) {
	// Due Mar 4, every 3 days: occurrences Mar 4, 7, 10. Advancing to
	// Mar 10 misses Mar 4 and Mar 7 only.
	next, skipped, ok := everyN(3).AdvanceTo(mar(4), mar(10))
	if !ok || !next.Equal(mar(10)) {
		t.Fatalf("next = %s (ok=%v), want 2025-03-10", next, ok)
	}
	if len(skipped) != 2 || !skipped[0].Equal(mar(4)) || !skipped[1].Equal(mar(7)) {
		t.Errorf("skipped = %v, want [2025-03-04 2025-03-07]", skipped)
	}
}

func TestAdvanceTo_OneShot_ReportsExhausted(t *testing.T) {
	next, skipped, ok := (core.Recurrence{Type: core.RecurrenceNone}).AdvanceTo(mar(8), mar(10))
	if ok {
		t.Error("one-shot schedule cannot advance")
	}
	if !next.Equal(mar(8)) {
		t.Errorf("exhausted schedule should stay on its due date, got %s", next)
	}
	if len(skipped) != 1 || !skipped[0].Equal(mar(8)) {
		t.Errorf("skipped = %v, want the missed due date", skipped)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestRecurrence_Validate(t *testing.T) {
	cases := []struct {
		name string
		r    core.Recurrence
		ok   bool
	}{
		{"none", core.Recurrence{Type: core.RecurrenceNone}, true},
		{"daily", daily(), true},
		{"every_3", everyN(3), true},
		{"every_negative", everyN(-1), false},
		{"weekly", weekly(time.Monday, time.Friday), true},
		{"weekly_empty", weekly(), false},
		{"weekly_bad_day", weekly(time.Weekday(9)), false},
		{"unknown_type", core.Recurrence{Type: "fortnightly"}, false},
	}
	for _, tc := range cases {
		err := tc.r.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestRecurrence_Normalize_SortsAndDedupes(t *testing.T) {
	r := weekly(time.Friday, time.Monday, time.Friday)
	r.Normalize()

	if len(r.Weekdays) != 2 || r.Weekdays[0] != time.Monday || r.Weekdays[1] != time.Friday {
		t.Errorf("normalized weekdays = %v, want [Monday Friday]", r.Weekdays)
	}
}
