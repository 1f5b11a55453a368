/*
Ledger mutators: reward on completion, penalty at day finalization,
goal achievement, and point projections.

PURPOSE:
  The Engine is the only component that writes DayLedger rows. The
  WorkTracker calls RewardTask/RewardHabit inside its completion
  transaction; the Planner and Scheduler call FinalizeThrough to settle
  penalties for every day that has slipped past unfinalized.

FINALIZATION:
  FinalizeDay applies the penalty rules for one date:
    1. Rest day: no penalty, streak carried.
    2. Idle day (nothing completed): idle_penalty.
    3. Incomplete plan: severe below incomplete_threshold_severe,
       otherwise scaled by the uncompleted fraction below
       incomplete_day_threshold.
    4. Missed habits: per occurrence, skills full / routines half.
    5. Progressive multiplier from yesterday's penalty_streak.
  The good-completion bonus ([0.8, 1.0) band) also pays here, exactly
  once per date.

IDEMPOTENCE:
  last_penalty_date is the persistent token. FinalizeThrough only
  processes dates after it and advances it when done, all inside the
  caller's transaction, so a crash never double-penalizes.

SEE ALSO:
  - points.go: The pure formulas
  - planner package: Calls FinalizeThrough during Roll
  - scheduler package: Drives the auto-penalty job
*/
package scoring

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grindstone/engine/core"
)

const (
	projectionWindowDays = 30
	projectionLow        = 0.7
	projectionHigh       = 1.3
)

// Engine computes rewards and penalties against the ledger.
type Engine struct {
	store core.Store
	log   *zap.Logger
}

func New(store core.Store, log *zap.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// ledgerFor returns the row for d, creating a zero row lazily.
func ledgerFor(ctx context.Context, tx core.Tx, d core.Day) (*core.DayLedger, error) {
	l, err := tx.Ledger(ctx, d)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = &core.DayLedger{Date: d}
	}
	return l, nil
}

// =============================================================================
// REWARDS
// =============================================================================

// RewardTask scores a completed non-habit and credits the day's ledger.
// item carries the final flushed time_spent.
func (e *Engine) RewardTask(ctx context.Context, tx core.Tx, item *core.WorkItem, day core.Day) (*TaskReward, error) {
	st, err := tx.Settings(ctx)
	if err != nil {
		return nil, err
	}

	reward := TaskPoints(item.Energy, item.TimeSpent, st)

	ledger, err := ledgerFor(ctx, tx, day)
	if err != nil {
		return nil, err
	}
	ledger.PointsEarned += reward.Points
	ledger.TasksCompleted++

	// Full-completion bonus pays the moment the counter reaches the
	// plan. Counters only grow, so equality holds exactly once.
	if ledger.TasksPlanned > 0 && ledger.TasksCompleted == ledger.TasksPlanned {
		bonus := roundInt(decimal.NewFromInt(int64(ledger.PointsEarned)).
			Mul(decimal.NewFromFloat(st.CompletionBonusFull)))
		ledger.PointsEarned += bonus
		e.log.Info("full completion bonus",
			zap.String("date", day.String()),
			zap.Int("bonus", bonus))
	}

	if err := tx.SaveLedger(ctx, ledger); err != nil {
		return nil, err
	}
	if err := e.CheckGoals(ctx, tx, day); err != nil {
		return nil, err
	}

	e.log.Debug("task reward",
		zap.Int64("item_id", item.ID),
		zap.Int("points", reward.Points),
		zap.String("date", day.String()))
	return &reward, nil
}

// RewardHabit scores a habit that met its daily target. prevStreak is
// the streak as it stood before this completion; the streak bonus pays
// for the run leading up to today, not including it.
func (e *Engine) RewardHabit(ctx context.Context, tx core.Tx, item *core.WorkItem, prevStreak int, day core.Day) (int, error) {
	st, err := tx.Settings(ctx)
	if err != nil {
		return 0, err
	}

	var points int
	if item.HabitType == core.HabitRoutine {
		points = RoutineHabitPoints(st)
	} else {
		points = SkillHabitPoints(item.Energy, prevStreak, st)
	}

	ledger, err := ledgerFor(ctx, tx, day)
	if err != nil {
		return 0, err
	}
	ledger.PointsEarned += points
	ledger.HabitsCompleted++

	if err := tx.SaveLedger(ctx, ledger); err != nil {
		return 0, err
	}
	if err := e.CheckGoals(ctx, tx, day); err != nil {
		return 0, err
	}

	e.log.Debug("habit reward",
		zap.Int64("item_id", item.ID),
		zap.Int("points", points),
		zap.Int("streak", prevStreak),
		zap.String("date", day.String()))
	return points, nil
}

// =============================================================================
// DAY FINALIZATION
// =============================================================================

// FinalizeDay settles penalties and the good-completion bonus for one
// date. It does not touch the last_penalty_date token; FinalizeThrough
// owns ordering and advancement.
func (e *Engine) FinalizeDay(ctx context.Context, tx core.Tx, day core.Day) error {
	st, err := tx.Settings(ctx)
	if err != nil {
		return err
	}

	ledger, err := ledgerFor(ctx, tx, day)
	if err != nil {
		return err
	}

	// Completion rate is the planned-task ratio, capped at 1.
	if ledger.TasksPlanned > 0 {
		rate := decimal.NewFromInt(int64(ledger.TasksCompleted)).
			Div(decimal.NewFromInt(int64(ledger.TasksPlanned)))
		if rate.GreaterThan(one) {
			rate = one
		}
		ledger.CompletionRate = rate.InexactFloat64()

		// The good bonus pays only in the [0.8, 1.0) band; a perfect
		// day already received the full bonus per-event.
		if ledger.CompletionRate >= goodBonusThreshold && ledger.CompletionRate < 1.0 {
			bonus := roundInt(decimal.NewFromInt(int64(ledger.PointsEarned)).
				Mul(decimal.NewFromFloat(st.CompletionBonusGood)))
			ledger.PointsEarned += bonus
		}
	}

	prev := 0
	if prevLedger, err := tx.Ledger(ctx, day.AddDays(-1)); err != nil {
		return err
	} else if prevLedger != nil {
		prev = prevLedger.PenaltyStreak
	}

	rest, err := tx.IsRestDay(ctx, day)
	if err != nil {
		return err
	}

	if rest {
		ledger.PointsPenalty = 0
		ledger.PenaltyStreak = prev
	} else {
		total, missed, err := e.penaltySum(ctx, tx, ledger, day, st)
		if err != nil {
			return err
		}
		if total > 0 {
			total = roundInt(decimal.NewFromInt(int64(total)).
				Mul(ProgressiveMultiplier(prev, st)))
		}
		ledger.PointsPenalty = total

		if missed > 0 && ledger.HabitsCompleted+missed > ledger.HabitsTotal {
			ledger.HabitsTotal = ledger.HabitsCompleted + missed
		}

		switch {
		case total > 0:
			ledger.PenaltyStreak = prev + 1
		default:
			clean := true
			for i := 1; i < st.PenaltyStreakResetDays && clean; i++ {
				l, err := tx.Ledger(ctx, day.AddDays(-i))
				if err != nil {
					return err
				}
				if l != nil && l.PointsPenalty > 0 {
					clean = false
				}
			}
			if clean {
				ledger.PenaltyStreak = 0
			} else {
				ledger.PenaltyStreak = prev
			}
		}
	}

	if err := tx.SaveLedger(ctx, ledger); err != nil {
		return err
	}

	e.log.Info("day finalized",
		zap.String("date", day.String()),
		zap.Bool("rest_day", rest),
		zap.Int("penalty", ledger.PointsPenalty),
		zap.Int("penalty_streak", ledger.PenaltyStreak))
	return e.CheckGoals(ctx, tx, day)
}

// penaltySum applies rules 2-4 (idle, incomplete, missed habits) and
// returns the unscaled sum plus the missed-habit count.
func (e *Engine) penaltySum(ctx context.Context, tx core.Tx, ledger *core.DayLedger, day core.Day, st *core.Settings) (int, int, error) {
	sum := 0

	if ledger.TasksCompleted == 0 && ledger.HabitsCompleted == 0 {
		sum += st.IdlePenalty
	}

	if ledger.TasksPlanned > 0 {
		r := ledger.CompletionRate
		if r < st.IncompleteThresholdSevere {
			sum += st.IncompletePenaltySevere
		} else if r < st.IncompleteDayThreshold {
			sum += roundInt(decimal.NewFromInt(int64(st.IncompleteDayPenalty)).
				Mul(one.Sub(decimal.NewFromFloat(r))))
		}
	}

	missed := 0

	// Habits still sitting overdue as of this date. Purged habits have
	// already been advanced past it and appear as skips instead, so the
	// two sets never overlap.
	live, err := tx.HabitsDueBefore(ctx, day.AddDays(1))
	if err != nil {
		return 0, 0, err
	}
	for _, h := range live {
		if h.DailyCompleted < h.DailyTarget {
			sum += MissedHabitPenalty(h.HabitType, st)
			missed++
		}
	}

	skips, err := tx.HabitSkipsOn(ctx, day)
	if err != nil {
		return 0, 0, err
	}
	for _, sk := range skips {
		sum += MissedHabitPenalty(sk.HabitType, st)
		missed++
	}

	return sum, missed, nil
}

// FinalizeThrough settles every unfinalized date before today in
// ascending order and advances last_penalty_date to today-1. st is
// mutated in place and saved; callers holding st keep a consistent
// view. Returns the number of days finalized, or ErrAlreadyFinalized
// when the token is current.
func (e *Engine) FinalizeThrough(ctx context.Context, tx core.Tx, st *core.Settings, today core.Day) (int, error) {
	last := today.AddDays(-1)
	if !st.LastPenaltyDate.IsZero() && !st.LastPenaltyDate.Before(last) {
		return 0, &core.FinalizedError{Date: last}
	}

	// A fresh database has no token; adopt yesterday as the first
	// finalizable date rather than walking back through empty history.
	start := last
	if !st.LastPenaltyDate.IsZero() {
		start = st.LastPenaltyDate.AddDays(1)
	}

	n := 0
	for d := start; d.BeforeOrEqual(last); d = d.AddDays(1) {
		if err := e.FinalizeDay(ctx, tx, d); err != nil {
			return n, fmt.Errorf("finalize %s: %w", d, err)
		}
		n++
	}

	st.LastPenaltyDate = last
	if err := tx.SaveSettings(ctx, st); err != nil {
		return n, err
	}
	return n, nil
}

// =============================================================================
// GOALS
// =============================================================================

// CheckGoals marks open goals achieved. Runs after every ledger
// mutation; the achieved transition is monotonic.
func (e *Engine) CheckGoals(ctx context.Context, tx core.Tx, day core.Day) error {
	goals, err := tx.OpenGoals(ctx)
	if err != nil {
		return err
	}
	if len(goals) == 0 {
		return nil
	}

	total, err := tx.TotalPoints(ctx)
	if err != nil {
		return err
	}

	for _, g := range goals {
		achieved := false
		switch g.Type {
		case core.GoalPoints:
			achieved = total >= g.TargetPoints
		case core.GoalProjectCompletion:
			items, err := tx.ItemsInProject(ctx, g.ProjectName)
			if err != nil {
				return err
			}
			achieved = len(items) > 0
			for _, it := range items {
				if it.Status != core.StatusCompleted {
					achieved = false
					break
				}
			}
		}
		if !achieved {
			continue
		}

		g.Achieved = true
		g.AchievedDate = day
		if err := tx.UpdateGoal(ctx, g); err != nil {
			return err
		}
		e.log.Info("goal achieved",
			zap.Int64("goal_id", g.ID),
			zap.String("type", string(g.Type)),
			zap.String("date", day.String()))
	}
	return nil
}

// =============================================================================
// READ SURFACE
// =============================================================================

// CurrentPoints is the all-time sum of daily totals.
func (e *Engine) CurrentPoints(ctx context.Context) (int, error) {
	return e.store.TotalPoints(ctx)
}

// History returns ledger rows for the trailing window ending today.
// Days with no activity have no row.
func (e *Engine) History(ctx context.Context, today core.Day, days int) ([]*core.DayLedger, error) {
	if days < 1 {
		days = 1
	}
	return e.store.LedgerRange(ctx, today.AddDays(-(days-1)), today)
}

// Projection extrapolates the point total at a target date from the
// trailing 30-day average, with pessimistic and optimistic bands.
type Projection struct {
	CurrentTotal  int
	TargetDate    core.Day
	DaysUntil     int
	AvgPerDay     float64
	MinProjection int
	AvgProjection int
	MaxProjection int
}

func (e *Engine) Project(ctx context.Context, today, target core.Day) (*Projection, error) {
	current, err := e.store.TotalPoints(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.store.LedgerRange(ctx, today.AddDays(-(projectionWindowDays-1)), today)
	if err != nil {
		return nil, err
	}

	avg := decimal.Zero
	if len(rows) > 0 {
		sum := 0
		for _, l := range rows {
			sum += l.DailyTotal()
		}
		avg = decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(rows))))
	}

	p := &Projection{
		CurrentTotal: current,
		TargetDate:   target,
		DaysUntil:    core.DaysBetween(today, target),
		AvgPerDay:    avg.Round(2).InexactFloat64(),
	}
	if p.DaysUntil <= 0 {
		p.MinProjection = current
		p.AvgProjection = current
		p.MaxProjection = current
		return p, nil
	}

	days := decimal.NewFromInt(int64(p.DaysUntil))
	project := func(mult float64) int {
		n := current + int(avg.Mul(decimal.NewFromFloat(mult)).Mul(days).IntPart())
		if n < current {
			return current
		}
		return n
	}
	p.MinProjection = project(projectionLow)
	p.AvgProjection = project(1.0)
	p.MaxProjection = project(projectionHigh)
	return p, nil
}
