/*
Package scoring owns all point arithmetic: rewards on completion,
penalties at day finalization, goal achievement, and projections.

PURPOSE:
  Implements the Balanced Progress v2.0 reward model. Rewards scale
  with task energy, time quality, and habit streaks; penalties grow
  progressively across consecutive bad days. Everything reads its
  coefficients from Settings so the operator can retune without a
  redeploy.

DESIGN:
  Point math runs on shopspring decimals. Reward coefficients like
  0.6 + 3*0.2 land on exact decimal values where float64 accumulates
  dust, and rounding (half away from zero) happens exactly once, at
  the end of each formula.

  The pure calculators in this file take values, not store handles.
  Ledger mutation lives in engine.go.

SEE ALSO:
  - engine.go: Reward/finalize ledger mutators
  - core/types.go: DayLedger, WorkItem
*/
package scoring

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/grindstone/engine/core"
)

// minTimeQuality floors the time-quality clamp so a wildly overrun task
// still earns a fraction of its base.
const minTimeQuality = 0.25

// goodBonusThreshold opens the finalize-time completion bonus band
// [threshold, 1.0).
const goodBonusThreshold = 0.8

var one = decimal.NewFromInt(1)

// TaskReward is the factor breakdown for a non-habit completion.
type TaskReward struct {
	Points      int
	EnergyMult  decimal.Decimal
	TimeQuality decimal.Decimal
	Focus       decimal.Decimal
}

// EnergyMult computes energy_mult_base + energy * energy_mult_step.
func EnergyMult(energy int, st *core.Settings) decimal.Decimal {
	return decimal.NewFromFloat(st.EnergyMultBase).
		Add(decimal.NewFromInt(int64(energy)).Mul(decimal.NewFromFloat(st.EnergyMultStep)))
}

// ExpectedSeconds is the time budget implied by an energy estimate.
func ExpectedSeconds(energy int, st *core.Settings) int64 {
	return int64(energy) * int64(st.MinutesPerEnergyUnit) * 60
}

// timeQuality rewards finishing near the expected time. Finishing early
// clamps at 1.0; overruns decay linearly down to minTimeQuality.
// Energy-0 tasks have no time budget and always score 1.0.
func timeQuality(timeSpent, expected int64, st *core.Settings) decimal.Decimal {
	if expected == 0 {
		return one
	}
	overrun := decimal.NewFromInt(timeSpent - expected).
		Div(decimal.NewFromInt(expected)).
		Mul(decimal.NewFromFloat(st.TimeEfficiencyWeight))
	return clamp(one.Sub(overrun), decimal.NewFromFloat(minTimeQuality), one)
}

// TaskPoints scores a completed non-habit task.
func TaskPoints(energy int, timeSpent int64, st *core.Settings) TaskReward {
	em := EnergyMult(energy, st)
	tq := timeQuality(timeSpent, ExpectedSeconds(energy, st), st)

	focus := one
	if timeSpent < int64(st.MinWorkTimeSeconds) {
		focus = decimal.NewFromFloat(0.5)
	}

	raw := decimal.NewFromInt(int64(st.PointsPerTaskBase)).
		Mul(em).Mul(tq).Mul(focus)

	return TaskReward{
		Points:      atLeastOne(raw),
		EnergyMult:  em,
		TimeQuality: tq,
		Focus:       focus,
	}
}

// StreakFactor is the logarithmic habit-streak bonus
// 1 + log2(min(streak, cap) + 1) * streak_log_factor, computed from the
// streak value as it stood before this completion.
func StreakFactor(streak int, st *core.Settings) decimal.Decimal {
	if streak > st.MaxStreakBonusDays {
		streak = st.MaxStreakBonusDays
	}
	if streak < 0 {
		streak = 0
	}
	bonus := decimal.NewFromFloat(math.Log2(float64(streak) + 1)).
		Mul(decimal.NewFromFloat(st.StreakLogFactor))
	return one.Add(bonus)
}

// SkillHabitPoints scores a skill habit completion.
func SkillHabitPoints(energy, streak int, st *core.Settings) int {
	raw := decimal.NewFromInt(int64(st.PointsPerHabitBase)).
		Mul(StreakFactor(streak, st)).
		Mul(EnergyMult(energy, st))
	return atLeastOne(raw)
}

// RoutineHabitPoints scores a routine habit completion: a fixed reward,
// no streak or energy scaling.
func RoutineHabitPoints(st *core.Settings) int {
	if st.RoutinePointsFixed < 1 {
		return 1
	}
	return st.RoutinePointsFixed
}

// MissedHabitPenalty is the per-occurrence penalty for a habit that
// missed its daily target. Routine habits pay half.
func MissedHabitPenalty(habitType core.HabitType, st *core.Settings) int {
	base := decimal.NewFromInt(int64(st.MissedHabitPenaltyBase))
	if habitType == core.HabitRoutine {
		base = base.Mul(decimal.NewFromFloat(0.5))
	}
	return int(base.Round(0).IntPart())
}

// ProgressiveMultiplier scales a day's penalty sum by the running
// penalty streak: 1 + min(streak * factor, max - 1).
func ProgressiveMultiplier(penaltyStreak int, st *core.Settings) decimal.Decimal {
	grow := decimal.NewFromFloat(st.ProgressivePenaltyFactor).
		Mul(decimal.NewFromInt(int64(penaltyStreak)))
	ceiling := decimal.NewFromFloat(st.ProgressivePenaltyMax).Sub(one)
	if grow.GreaterThan(ceiling) {
		grow = ceiling
	}
	return one.Add(grow)
}

func clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

func atLeastOne(d decimal.Decimal) int {
	n := int(d.Round(0).IntPart())
	if n < 1 {
		return 1
	}
	return n
}

func roundInt(d decimal.Decimal) int {
	return int(d.Round(0).IntPart())
}
