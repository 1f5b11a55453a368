/*
Package tracker is the state machine for individual work items:
create / update / delete, start / stop / complete, and the
accumulation of time_spent.

PURPOSE:
  Guards every WorkItem transition. pending -> active -> pending flows
  through start/stop with elapsed seconds flushed into time_spent;
  complete() settles the item and hands it to the scoring engine.

INVARIANTS:
  - At most one item is active at any instant. start() demotes whatever
    was active inside the same transaction, and the active id mirror on
    Settings moves with it.
  - start() refuses items whose dependency is neither completed nor on
    today's agenda (DependencyNotMet).
  - Habit streaks never exceed max_streak_bonus_days.

HABITS:
  complete() on a habit bumps daily_completed. Reaching daily_target
  scores the completion (streak bonus uses the streak before today),
  advances the streak, and asks the recurrence engine for the next
  occurrence. Habits with recurrence "none" become terminal instead.

SEE ALSO:
  - scoring package: RewardTask / RewardHabit
  - core/recurrence.go: NextOccurrence
*/
package tracker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/grindstone/engine/core"
	"github.com/grindstone/engine/scoring"
)

// dependencyWalkLimit bounds cycle detection on depends_on chains.
const dependencyWalkLimit = 100

// Tracker mutates work items and reports completions to scoring.
type Tracker struct {
	store  core.Store
	engine *scoring.Engine
	clock  core.Clock
	log    *zap.Logger
}

func New(store core.Store, engine *scoring.Engine, clock core.Clock, log *zap.Logger) *Tracker {
	return &Tracker{store: store, engine: engine, clock: clock, log: log}
}

// CompleteResult reports what a complete() call did.
type CompleteResult struct {
	Item      *core.WorkItem
	Points    int
	TargetMet bool                // habits: daily_target reached
	Reward    *scoring.TaskReward // non-habit factor breakdown
}

func elapsedSeconds(now time.Time, started *time.Time) int64 {
	if started == nil {
		return 0
	}
	d := now.Sub(*started)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

// =============================================================================
// CREATE / UPDATE / DELETE
// =============================================================================

// Create validates and persists a new item. Habits default their due
// date to today and their daily target to 1.
func (t *Tracker) Create(ctx context.Context, item *core.WorkItem) error {
	now := t.clock.Now()

	return t.store.WithTx(ctx, func(tx core.Tx) error {
		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		eff := core.EffectiveDate(now, st)

		if item.IsHabit {
			if item.DailyTarget < 1 {
				item.DailyTarget = 1
			}
			if item.DueDate.IsZero() {
				item.DueDate = eff
			}
		}
		if item.Status == "" {
			item.Status = core.StatusPending
		}
		if err := item.Validate(); err != nil {
			return err
		}

		// A new item cannot introduce a cycle; only existence matters.
		if item.DependsOn != nil {
			dep, err := tx.GetItem(ctx, *item.DependsOn)
			if err != nil {
				return err
			}
			if dep == nil {
				return &core.InvalidArgumentError{
					Field: "depends_on", Value: *item.DependsOn, Reason: "no such item",
				}
			}
		}

		item.CreatedAt = now
		item.Urgency = core.UrgencyScore(item, eff)
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}

		t.log.Info("item created",
			zap.Int64("id", item.ID),
			zap.Bool("habit", item.IsHabit),
			zap.String("description", item.Description))
		return nil
	})
}

// Update persists operator edits, rejecting dependency cycles and
// refreshing the urgency score.
func (t *Tracker) Update(ctx context.Context, item *core.WorkItem) error {
	now := t.clock.Now()

	return t.store.WithTx(ctx, func(tx core.Tx) error {
		existing, err := tx.GetItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return core.ErrItemNotFound
		}
		if err := item.Validate(); err != nil {
			return err
		}

		if item.DependsOn != nil {
			if err := t.checkDependencyEdge(ctx, tx, item); err != nil {
				return err
			}
		}

		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		item.Urgency = core.UrgencyScore(item, core.EffectiveDate(now, st))
		return tx.UpdateItem(ctx, item)
	})
}

// checkDependencyEdge verifies the target exists and that following
// depends_on from it never returns to item.
func (t *Tracker) checkDependencyEdge(ctx context.Context, tx core.Tx, item *core.WorkItem) error {
	if *item.DependsOn == item.ID {
		return core.ErrDependencyCycle
	}

	cur, err := tx.GetItem(ctx, *item.DependsOn)
	if err != nil {
		return err
	}
	if cur == nil {
		return &core.InvalidArgumentError{
			Field: "depends_on", Value: *item.DependsOn, Reason: "no such item",
		}
	}

	for hops := 0; cur != nil && cur.DependsOn != nil; hops++ {
		if hops >= dependencyWalkLimit {
			return core.ErrDependencyCycle
		}
		if *cur.DependsOn == item.ID {
			return core.ErrDependencyCycle
		}
		cur, err = tx.GetItem(ctx, *cur.DependsOn)
		if err != nil {
			return err
		}
	}
	return nil
}

// Delete removes an item. The active pointer is cleared if it referred
// to the deleted item; dependents lose their edge via the store's
// set-null semantics.
func (t *Tracker) Delete(ctx context.Context, id int64) error {
	return t.store.WithTx(ctx, func(tx core.Tx) error {
		item, err := tx.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return core.ErrItemNotFound
		}

		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		if st.ActiveItemID != nil && *st.ActiveItemID == id {
			st.ActiveItemID = nil
			if err := tx.SaveSettings(ctx, st); err != nil {
				return err
			}
		}

		if err := tx.DeleteItem(ctx, id); err != nil {
			return err
		}
		t.log.Info("item deleted", zap.Int64("id", id))
		return nil
	})
}

// =============================================================================
// START / STOP / COMPLETE
// =============================================================================

// Start makes the item active, demoting whatever was active first.
// Fails with DependencyNotMet when the item's dependency is neither
// completed nor scheduled for today.
func (t *Tracker) Start(ctx context.Context, id int64) (*core.WorkItem, error) {
	now := t.clock.Now()

	var started *core.WorkItem
	err := t.store.WithTx(ctx, func(tx core.Tx) error {
		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		eff := core.EffectiveDate(now, st)

		item, err := tx.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return core.ErrItemNotFound
		}
		if item.Status == core.StatusActive {
			started = item
			return nil
		}
		if item.Status != core.StatusPending {
			return &core.InvalidArgumentError{
				Field: "status", Value: string(item.Status), Reason: "only pending items can start",
			}
		}

		if item.DependsOn != nil {
			if err := t.checkDependencyMet(ctx, tx, item, eff); err != nil {
				return err
			}
		}

		// Demote the current active item, flushing its elapsed time.
		active, err := tx.ActiveItem(ctx)
		if err != nil {
			return err
		}
		if active != nil && active.ID != item.ID {
			active.TimeSpent += elapsedSeconds(now, active.StartedAt)
			active.StartedAt = nil
			active.Status = core.StatusPending
			if err := tx.UpdateItem(ctx, active); err != nil {
				return err
			}
		}

		item.Status = core.StatusActive
		item.StartedAt = &now
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}

		st.ActiveItemID = &item.ID
		if err := tx.SaveSettings(ctx, st); err != nil {
			return err
		}

		started = item
		t.log.Info("item started", zap.Int64("id", item.ID))
		return nil
	})
	return started, err
}

// checkDependencyMet enforces the start() gate: the dependency must be
// completed, or itself on today's agenda so the chain can be worked
// through in one day.
func (t *Tracker) checkDependencyMet(ctx context.Context, tx core.Tx, item *core.WorkItem, eff core.Day) error {
	dep, err := tx.GetItem(ctx, *item.DependsOn)
	if err != nil {
		return err
	}
	if dep == nil {
		return nil // dangling edge, nothing to wait for
	}

	if dep.Status == core.StatusCompleted {
		return nil
	}
	if dep.IsToday {
		return nil
	}
	if dep.IsHabit && dep.DueDate.Equal(eff) {
		return nil
	}
	return &core.DependencyNotMetError{
		ItemID:      item.ID,
		DependsOn:   dep.ID,
		Description: dep.Description,
	}
}

// Stop demotes the active item to pending, flushing elapsed seconds.
// Returns (nil, nil) when nothing is active.
func (t *Tracker) Stop(ctx context.Context) (*core.WorkItem, error) {
	now := t.clock.Now()

	var stopped *core.WorkItem
	err := t.store.WithTx(ctx, func(tx core.Tx) error {
		active, err := tx.ActiveItem(ctx)
		if err != nil {
			return err
		}
		if active == nil {
			return nil
		}

		active.TimeSpent += elapsedSeconds(now, active.StartedAt)
		active.StartedAt = nil
		active.Status = core.StatusPending
		if err := tx.UpdateItem(ctx, active); err != nil {
			return err
		}

		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		if st.ActiveItemID != nil {
			st.ActiveItemID = nil
			if err := tx.SaveSettings(ctx, st); err != nil {
				return err
			}
		}

		stopped = active
		t.log.Info("item stopped",
			zap.Int64("id", active.ID),
			zap.Int64("time_spent", active.TimeSpent))
		return nil
	})
	return stopped, err
}

// Complete settles an item. A nil id targets the active item. Habits
// bump daily_completed and only settle when the target is reached.
func (t *Tracker) Complete(ctx context.Context, id *int64) (*CompleteResult, error) {
	now := t.clock.Now()

	var result *CompleteResult
	err := t.store.WithTx(ctx, func(tx core.Tx) error {
		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		eff := core.EffectiveDate(now, st)

		var item *core.WorkItem
		if id == nil {
			item, err = tx.ActiveItem(ctx)
			if err != nil {
				return err
			}
			if item == nil {
				return core.ErrNoActiveItem
			}
		} else {
			item, err = tx.GetItem(ctx, *id)
			if err != nil {
				return err
			}
			if item == nil {
				return core.ErrItemNotFound
			}
		}
		if item.Status == core.StatusCompleted {
			return &core.InvalidArgumentError{
				Field: "status", Value: string(item.Status), Reason: "already completed",
			}
		}

		// Flush running time and release the active slot.
		if item.Status == core.StatusActive {
			item.TimeSpent += elapsedSeconds(now, item.StartedAt)
			item.StartedAt = nil
			if st.ActiveItemID != nil && *st.ActiveItemID == item.ID {
				st.ActiveItemID = nil
				if err := tx.SaveSettings(ctx, st); err != nil {
					return err
				}
			}
		}

		if item.IsHabit {
			result, err = t.completeHabit(ctx, tx, item, st, eff, now)
			return err
		}

		item.Status = core.StatusCompleted
		item.CompletedAt = &now
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}

		reward, err := t.engine.RewardTask(ctx, tx, item, eff)
		if err != nil {
			return err
		}
		result = &CompleteResult{Item: item, Points: reward.Points, Reward: reward}

		t.log.Info("task completed",
			zap.Int64("id", item.ID),
			zap.Int("points", reward.Points),
			zap.Int64("time_spent", item.TimeSpent))
		return nil
	})
	return result, err
}

// completeHabit advances daily progress; reaching the target scores the
// habit, grows the streak, and schedules the next occurrence.
func (t *Tracker) completeHabit(ctx context.Context, tx core.Tx, item *core.WorkItem, st *core.Settings, eff core.Day, now time.Time) (*CompleteResult, error) {
	item.DailyCompleted++

	if item.DailyCompleted < item.DailyTarget {
		if err := tx.UpdateItem(ctx, item); err != nil {
			return nil, err
		}
		t.log.Debug("habit progress",
			zap.Int64("id", item.ID),
			zap.Int("done", item.DailyCompleted),
			zap.Int("target", item.DailyTarget))
		return &CompleteResult{Item: item}, nil
	}

	prevStreak := item.Streak

	item.Status = core.StatusCompleted
	item.CompletedAt = &now
	item.Streak++
	if item.Streak > st.MaxStreakBonusDays {
		item.Streak = st.MaxStreakBonusDays
	}
	item.LastCompleted = eff

	// Non-terminal habits roll straight into their next occurrence.
	if next, ok := item.Recurrence.NextOccurrence(eff); ok {
		item.DueDate = next
		item.DailyCompleted = 0
		item.Status = core.StatusPending
		item.CompletedAt = nil
	}

	if err := tx.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	points, err := t.engine.RewardHabit(ctx, tx, item, prevStreak, eff)
	if err != nil {
		return nil, err
	}

	t.log.Info("habit completed",
		zap.Int64("id", item.ID),
		zap.Int("points", points),
		zap.Int("streak", item.Streak))
	return &CompleteResult{Item: item, Points: points, TargetMet: true}, nil
}
