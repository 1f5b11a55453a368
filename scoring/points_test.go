package scoring_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/grindstone/engine/core"
	"github.com/grindstone/engine/scoring"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// closeTo checks a decimal against a float expectation (for log-derived factors)
func closeTo(d decimal.Decimal, want float64) bool {
	diff := d.Sub(decimal.NewFromFloat(want)).Abs()
	return diff.LessThan(decimal.NewFromFloat(0.000001))
}

func defaults() *core.Settings { return core.DefaultSettings() }

// =============================================================================
// TASK REWARDS
// =============================================================================

func TestTaskPoints_OnBudget(t *testing.T) {
	// GIVEN an energy-3 task with a 60-minute budget
	// WHEN it is completed in exactly 60 minutes
	r := scoring.TaskPoints(3, 3600, defaults())

	// THEN every factor is clean and the reward is base * energy mult
	if !closeTo(r.EnergyMult, 1.2) {
		t.Errorf("energy mult = %s, want 1.2", r.EnergyMult)
	}
	if !closeTo(r.TimeQuality, 1.0) {
		t.Errorf("time quality = %s, want 1.0", r.TimeQuality)
	}
	if !closeTo(r.Focus, 1.0) {
		t.Errorf("focus = %s, want 1.0", r.Focus)
	}
	if r.Points != 12 {
		t.Errorf("points = %d, want 12", r.Points)
	}
}

func TestTaskPoints_EarlyFinishClampsAtOne(t *testing.T) {
	r := scoring.TaskPoints(3, 1800, defaults())
	if !closeTo(r.TimeQuality, 1.0) {
		t.Errorf("finishing early should not score above 1.0, got %s", r.TimeQuality)
	}
	if r.Points != 12 {
		t.Errorf("points = %d, want 12", r.Points)
	}
}

func TestTaskPoints_OverrunDecaysLinearly(t *testing.T) {
	// Energy 2 expects 40 minutes; spending 80 is a 100% overrun, which
	// costs half the time quality at the default efficiency weight.
	r := scoring.TaskPoints(2, 4800, defaults())
	if !closeTo(r.TimeQuality, 0.5) {
		t.Errorf("time quality = %s, want 0.5", r.TimeQuality)
	}
	if r.Points != 5 {
		t.Errorf("points = %d, want 5", r.Points)
	}
}

func TestTaskPoints_OverrunFloor(t *testing.T) {
	r := scoring.TaskPoints(2, 100000, defaults())
	if !closeTo(r.TimeQuality, 0.25) {
		t.Errorf("time quality should floor at 0.25, got %s", r.TimeQuality)
	}
	if r.Points != 3 {
		t.Errorf("points = %d, want 3 (2.5 rounds up)", r.Points)
	}
}

func TestTaskPoints_ShortBurstHalvesFocus(t *testing.T) {
	r := scoring.TaskPoints(0, 30, defaults())
	if !closeTo(r.Focus, 0.5) {
		t.Errorf("focus = %s, want 0.5 below the minimum work time", r.Focus)
	}
	if !closeTo(r.TimeQuality, 1.0) {
		t.Errorf("energy-0 tasks have no budget, tq = %s, want 1.0", r.TimeQuality)
	}
	if r.Points != 3 {
		t.Errorf("points = %d, want 3", r.Points)
	}
}

func TestTaskPoints_NeverBelowOne(t *testing.T) {
	st := defaults()
	st.PointsPerTaskBase = 1

	r := scoring.TaskPoints(0, 30, st)
	if r.Points != 1 {
		t.Errorf("points = %d, want floor of 1", r.Points)
	}
}

func TestEnergyMult_Scale(t *testing.T) {
	cases := []struct {
		energy int
		want   float64
	}{
		{0, 0.6}, {1, 0.8}, {2, 1.0}, {3, 1.2}, {4, 1.4}, {5, 1.6},
	}
	for _, tc := range cases {
		if got := scoring.EnergyMult(tc.energy, defaults()); !closeTo(got, tc.want) {
			t.Errorf("EnergyMult(%d) = %s, want %v", tc.energy, got, tc.want)
		}
	}
}

func TestExpectedSeconds(t *testing.T) {
	if got := scoring.ExpectedSeconds(3, defaults()); got != 3600 {
		t.Errorf("ExpectedSeconds(3) = %d, want 3600", got)
	}
	if got := scoring.ExpectedSeconds(0, defaults()); got != 0 {
		t.Errorf("ExpectedSeconds(0) = %d, want 0", got)
	}
}

// =============================================================================
// HABIT REWARDS
// =============================================================================

func TestStreakFactor(t *testing.T) {
	if got := scoring.StreakFactor(0, defaults()); !closeTo(got, 1.0) {
		t.Errorf("streak 0 factor = %s, want 1.0", got)
	}
	// 1 + log2(5) * 0.15
	if got := scoring.StreakFactor(4, defaults()); !closeTo(got, 1.348289) {
		t.Errorf("streak 4 factor = %s, want ~1.348289", got)
	}
	// 1 + log2(16) * 0.15 = 1.6 exactly
	if got := scoring.StreakFactor(15, defaults()); !closeTo(got, 1.6) {
		t.Errorf("streak 15 factor = %s, want 1.6", got)
	}
}

func TestStreakFactor_CapsAtMaxBonusDays(t *testing.T) {
	atCap := scoring.StreakFactor(100, defaults())
	beyond := scoring.StreakFactor(500, defaults())
	if !atCap.Equal(beyond) {
		t.Errorf("factor should stop growing at the cap: %s vs %s", atCap, beyond)
	}
}

func TestSkillHabitPoints(t *testing.T) {
	// Day 5 of a streak (4 prior completions) at energy 3:
	// round(10 * 1.348289 * 1.2) = 16
	if got := scoring.SkillHabitPoints(3, 4, defaults()); got != 16 {
		t.Errorf("SkillHabitPoints(3, 4) = %d, want 16", got)
	}
	// Streak 15 at energy 2: 10 * 1.6 * 1.0 = 16 exactly
	if got := scoring.SkillHabitPoints(2, 15, defaults()); got != 16 {
		t.Errorf("SkillHabitPoints(2, 15) = %d, want 16", got)
	}
	// Fresh habit at energy 0: 10 * 1.0 * 0.6 = 6
	if got := scoring.SkillHabitPoints(0, 0, defaults()); got != 6 {
		t.Errorf("SkillHabitPoints(0, 0) = %d, want 6", got)
	}
}

func TestRoutineHabitPoints(t *testing.T) {
	if got := scoring.RoutineHabitPoints(defaults()); got != 6 {
		t.Errorf("routine reward = %d, want 6", got)
	}

	st := defaults()
	st.RoutinePointsFixed = 0
	if got := scoring.RoutineHabitPoints(st); got != 1 {
		t.Errorf("routine reward floors at 1, got %d", got)
	}
}

// =============================================================================
// PENALTIES
// =============================================================================

func TestMissedHabitPenalty(t *testing.T) {
	if got := scoring.MissedHabitPenalty(core.HabitSkill, defaults()); got != 15 {
		t.Errorf("skill miss = %d, want 15", got)
	}
	// Routine pays half: 7.5 rounds to 8.
	if got := scoring.MissedHabitPenalty(core.HabitRoutine, defaults()); got != 8 {
		t.Errorf("routine miss = %d, want 8", got)
	}
}

func TestProgressiveMultiplier(t *testing.T) {
	cases := []struct {
		streak int
		want   float64
	}{
		{0, 1.0},
		{1, 1.1},
		{3, 1.3},
		{5, 1.5},
		{10, 1.5}, // capped at progressive_penalty_max
	}
	for _, tc := range cases {
		if got := scoring.ProgressiveMultiplier(tc.streak, defaults()); !closeTo(got, tc.want) {
			t.Errorf("ProgressiveMultiplier(%d) = %s, want %v", tc.streak, got, tc.want)
		}
	}
}
