package core_test

import (
	"testing"

	"github.com/grindstone/engine/core"
)

func TestUrgencyScore(t *testing.T) {
	today := mar(10)

	cases := []struct {
		name string
		item core.WorkItem
		want int
	}{
		{"no_due_no_energy_nudge", core.WorkItem{Priority: 3, Energy: 2}, 30},
		{"overdue", core.WorkItem{Priority: 3, Energy: 2, DueDate: mar(9)}, 80},
		{"due_today", core.WorkItem{Priority: 3, Energy: 2, DueDate: mar(10)}, 55},
		{"critical_window_edge", core.WorkItem{Priority: 3, Energy: 2, DueDate: mar(12)}, 55},
		{"week_window", core.WorkItem{Priority: 3, Energy: 2, DueDate: mar(13)}, 40},
		{"week_window_edge", core.WorkItem{Priority: 3, Energy: 2, DueDate: mar(17)}, 40},
		{"beyond_week", core.WorkItem{Priority: 3, Energy: 2, DueDate: mar(18)}, 30},
		{"heavy_energy_bonus", core.WorkItem{Priority: 3, Energy: 4}, 35},
		{"light_energy_nudge", core.WorkItem{Priority: 3, Energy: 1}, 29},
		{"zero_energy_nudge", core.WorkItem{Priority: 3, Energy: 0}, 29},
		{"priority_dominates_due", core.WorkItem{Priority: 8, Energy: 2}, 80},
	}
	for _, tc := range cases {
		if got := core.UrgencyScore(&tc.item, today); got != tc.want {
			t.Errorf("%s: urgency = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestUrgencyScore_PriorityGapBeatsDueBonus(t *testing.T) {
	// The overdue bonus is worth exactly five priority levels; a gap of
	// six must still win on raw priority.
	overdue := &core.WorkItem{Priority: 3, Energy: 2, DueDate: mar(1)}
	calm := &core.WorkItem{Priority: 9, Energy: 2}

	if core.UrgencyScore(overdue, mar(10)) >= core.UrgencyScore(calm, mar(10)) {
		t.Error("a six-level priority gap should beat the overdue bonus")
	}
}
