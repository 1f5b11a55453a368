/*
Package planner builds the daily agenda: the Roll.

PURPOSE:
  Once per effective date the Roll purges stale habit occurrences,
  recomputes urgency, selects up to max_tasks_per_day tasks across
  three passes, materializes today's habits, and settles any
  outstanding penalties. The whole thing is one store transaction, so
  a failed Roll leaves no partial agenda.

SELECTION PASSES:
  A. Critical: due within critical_days, dependency completed/absent.
  B. Backlog: highest urgency first, dependency completed/absent.
  C. Same-day dependents: items whose dependency is already in the
     chosen set, repeated to a fixpoint so chains pull through.
  An operator-supplied mood drops items above that energy and refills
  under the same constraint.

IDEMPOTENCE:
  last_roll_date is the token; a second Roll on the same effective date
  is rejected with RollAlreadyDone before any mutation.

SEE ALSO:
  - core/urgency.go: The urgency formula
  - scoring package: FinalizeThrough, called as step 10
*/
package planner

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/grindstone/engine/core"
	"github.com/grindstone/engine/scoring"
)

// Planner computes the day's agenda.
type Planner struct {
	store  core.Store
	engine *scoring.Engine
	clock  core.Clock
	log    *zap.Logger
}

func New(store core.Store, engine *scoring.Engine, clock core.Clock, log *zap.Logger) *Planner {
	return &Planner{store: store, engine: engine, clock: clock, log: log}
}

// RollStatus reports whether a Roll is currently permitted.
type RollStatus struct {
	Available     bool
	Reason        string
	EffectiveDate core.Day
	LastRollDate  core.Day
	OpensAt       string
	PendingRoll   bool
}

// RollResult summarizes what a Roll produced.
type RollResult struct {
	Date          core.Day
	Tasks         []*core.WorkItem // chosen agenda, urgency desc
	Habits        []*core.WorkItem // due today
	TasksPlanned  int
	HabitsTotal   int
	PurgedHabits  int
	DaysFinalized int
}

// CanRoll checks the Roll preconditions without mutating anything.
func (p *Planner) CanRoll(ctx context.Context) (*RollStatus, error) {
	now := p.clock.Now()

	st, err := p.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	eff := core.EffectiveDate(now, st)

	status := &RollStatus{
		EffectiveDate: eff,
		LastRollDate:  st.LastRollDate,
		OpensAt:       st.RollAvailableTime,
		PendingRoll:   st.PendingRoll,
	}

	if !st.LastRollDate.IsZero() && !st.LastRollDate.Before(eff) {
		status.Reason = "agenda already rolled today"
		return status, nil
	}
	if opens, err := core.ParseClock(st.RollAvailableTime); err == nil {
		if core.MinuteOfDay(now) < opens.Minutes() {
			status.Reason = "roll opens at " + st.RollAvailableTime
			return status, nil
		}
	}

	status.Available = true
	return status, nil
}

// Roll executes the daily planning algorithm. mood, when supplied,
// caps the energy of selected tasks.
func (p *Planner) Roll(ctx context.Context, mood *int) (*RollResult, error) {
	if mood != nil && (*mood < 0 || *mood > 5) {
		return nil, &core.InvalidArgumentError{
			Field: "mood", Value: *mood, Reason: "must be in 0..5",
		}
	}
	now := p.clock.Now()

	var result *RollResult
	err := p.store.WithTx(ctx, func(tx core.Tx) error {
		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		eff := core.EffectiveDate(now, st)

		if !st.LastRollDate.IsZero() && !st.LastRollDate.Before(eff) {
			return core.NewRollAlreadyDone(eff)
		}
		if opens, err := core.ParseClock(st.RollAvailableTime); err == nil {
			if core.MinuteOfDay(now) < opens.Minutes() {
				return core.NewRollNotAvailable(eff, opens)
			}
		}

		purged, err := p.purgeOverdueHabits(ctx, tx, eff)
		if err != nil {
			return err
		}

		if err := tx.ClearToday(ctx); err != nil {
			return err
		}

		pending, err := p.refreshUrgency(ctx, tx, eff)
		if err != nil {
			return err
		}

		chosen, err := p.selectTasks(ctx, tx, pending, st, eff, mood)
		if err != nil {
			return err
		}

		for _, w := range chosen {
			w.IsToday = true
			if err := tx.UpdateItem(ctx, w); err != nil {
				return err
			}
		}

		habits, err := tx.HabitsDueOn(ctx, eff)
		if err != nil {
			return err
		}

		finalized, err := p.engine.FinalizeThrough(ctx, tx, st, eff)
		if err != nil && !errors.Is(err, core.ErrAlreadyFinalized) {
			return err
		}

		ledger, err := tx.Ledger(ctx, eff)
		if err != nil {
			return err
		}
		if ledger == nil {
			ledger = &core.DayLedger{Date: eff}
		}
		ledger.TasksPlanned = len(chosen)
		// Habits finished before the Roll already advanced past today's
		// due date; they live in habits_completed.
		ledger.HabitsTotal = len(habits) + ledger.HabitsCompleted
		if err := tx.SaveLedger(ctx, ledger); err != nil {
			return err
		}

		st.LastRollDate = eff
		st.PendingRoll = false
		if err := tx.SaveSettings(ctx, st); err != nil {
			return err
		}

		result = &RollResult{
			Date:          eff,
			Tasks:         chosen,
			Habits:        habits,
			TasksPlanned:  len(chosen),
			HabitsTotal:   ledger.HabitsTotal,
			PurgedHabits:  purged,
			DaysFinalized: finalized,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("agenda rolled",
		zap.String("date", result.Date.String()),
		zap.Int("tasks_planned", result.TasksPlanned),
		zap.Int("habits_due", len(result.Habits)),
		zap.Int("habits_purged", result.PurgedHabits),
		zap.Int("days_finalized", result.DaysFinalized))
	return result, nil
}

// purgeOverdueHabits advances every habit whose due date slipped past,
// recording each missed occurrence on its original date so finalization
// can still penalize it. A miss breaks the streak and resets daily
// progress; one-shot habits with no next occurrence become skipped.
func (p *Planner) purgeOverdueHabits(ctx context.Context, tx core.Tx, eff core.Day) (int, error) {
	overdue, err := tx.HabitsDueBefore(ctx, eff)
	if err != nil {
		return 0, err
	}

	for _, h := range overdue {
		next, missed, ok := h.Recurrence.AdvanceTo(h.DueDate, eff)
		for _, d := range missed {
			skip := &core.HabitSkip{ItemID: h.ID, Date: d, HabitType: h.HabitType}
			if err := tx.RecordHabitSkip(ctx, skip); err != nil {
				return 0, err
			}
		}

		if ok {
			h.DueDate = next
		} else {
			h.Status = core.StatusSkipped
		}
		h.DailyCompleted = 0
		h.Streak = 0
		if err := tx.UpdateItem(ctx, h); err != nil {
			return 0, err
		}

		p.log.Debug("habit purged",
			zap.Int64("id", h.ID),
			zap.Int("missed", len(missed)),
			zap.String("next_due", next.String()))
	}
	return len(overdue), nil
}

// refreshUrgency recomputes and persists urgency for the pending
// backlog, returning it sorted urgency desc, id asc.
func (p *Planner) refreshUrgency(ctx context.Context, tx core.Tx, eff core.Day) ([]*core.WorkItem, error) {
	pending, err := tx.PendingTasks(ctx)
	if err != nil {
		return nil, err
	}

	for _, w := range pending {
		u := core.UrgencyScore(w, eff)
		if u == w.Urgency {
			continue
		}
		w.Urgency = u
		if err := tx.UpdateItem(ctx, w); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Urgency != pending[j].Urgency {
			return pending[i].Urgency > pending[j].Urgency
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

// selectTasks runs passes A, B, and C, then applies the mood filter
// with a constrained refill.
func (p *Planner) selectTasks(ctx context.Context, tx core.Tx, pending []*core.WorkItem, st *core.Settings, eff core.Day, mood *int) ([]*core.WorkItem, error) {
	all, err := tx.ListItems(ctx, "")
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*core.WorkItem, len(all))
	for _, w := range all {
		byID[w.ID] = w
	}

	// Dependency completed or absent; dangling edges count as absent.
	depDone := func(w *core.WorkItem) bool {
		if w.DependsOn == nil {
			return true
		}
		dep, ok := byID[*w.DependsOn]
		return !ok || dep.Status == core.StatusCompleted
	}
	moodOK := func(w *core.WorkItem) bool {
		return mood == nil || w.Energy <= *mood
	}

	maxTasks := st.MaxTasksPerDay
	chosen := make([]*core.WorkItem, 0, maxTasks)
	inSet := make(map[int64]bool, maxTasks)
	add := func(w *core.WorkItem) {
		chosen = append(chosen, w)
		inSet[w.ID] = true
	}

	// Pass A: critical window.
	critical := eff.AddDays(st.CriticalDays)
	for _, w := range pending {
		if len(chosen) >= maxTasks {
			break
		}
		if inSet[w.ID] || !w.DueBy(critical) || !depDone(w) {
			continue
		}
		add(w)
	}

	passB := func(allow func(*core.WorkItem) bool) {
		for _, w := range pending {
			if len(chosen) >= maxTasks {
				return
			}
			if inSet[w.ID] || !depDone(w) || !allow(w) {
				continue
			}
			add(w)
		}
	}
	// Pass C repeats until stable: a dependent added in one round can
	// enable its own dependents in the next.
	passC := func(allow func(*core.WorkItem) bool) {
		for changed := true; changed && len(chosen) < maxTasks; {
			changed = false
			for _, w := range pending {
				if len(chosen) >= maxTasks {
					return
				}
				if inSet[w.ID] || w.DependsOn == nil || !inSet[*w.DependsOn] || !allow(w) {
					continue
				}
				add(w)
				changed = true
			}
		}
	}

	unrestricted := func(*core.WorkItem) bool { return true }
	passB(unrestricted)
	passC(unrestricted)

	if mood != nil {
		// Drop over-energy picks, cascading away dependents whose
		// chain left the set, then refill under the energy cap.
		kept := make([]*core.WorkItem, 0, len(chosen))
		inSet = make(map[int64]bool, len(chosen))
		for _, w := range chosen {
			if !moodOK(w) {
				continue
			}
			if !depDone(w) && !inSet[*w.DependsOn] {
				continue
			}
			kept = append(kept, w)
			inSet[w.ID] = true
		}
		chosen = kept
		passB(moodOK)
		passC(moodOK)
	}

	sort.SliceStable(chosen, func(i, j int) bool {
		if chosen[i].Urgency != chosen[j].Urgency {
			return chosen[i].Urgency > chosen[j].Urgency
		}
		return chosen[i].ID < chosen[j].ID
	})
	return chosen, nil
}
