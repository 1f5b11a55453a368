/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  data for trying the engine out. Each scenario creates work items,
  habits, goals and ledger history that demonstrate specific features.

AVAILABLE SCENARIOS:
  fresh-start:    A handful of pending tasks and two habits, no history
  deep-week:      Dependency chains, goals, and a few days of history
  habit-builder:  Habits with live streaks and a rest day
  recovery:       Overdue habits and unfinalized days, ready to purge

HOW SCENARIOS WORK:
  1. Reset database (clear all data)
  2. Seed items, habits, goals and rest days
  3. Backfill ledger rows and settings tokens so the engine state is
     coherent (penalty token, streaks)

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "deep-week"}

ADDING NEW SCENARIOS:
  1. Add to 'scenarios' slice with ID, name, description
  2. Create loader method: loadXxx(ctx)
  3. Add case to LoadScenario

NOTE:
  Scenarios reset the database. Only use in development/demo
  environments.

SEE ALSO:
  - server.go: Route wiring
  - store/sqlite: Reset support
*/
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grindstone/engine/core"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest names the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-start",
		Name:        "Fresh Start",
		Description: "A handful of pending tasks and two daily habits, no history",
	},
	{
		ID:          "deep-week",
		Name:        "Deep Week",
		Description: "A project with dependency chains, goals, and recent history",
	},
	{
		ID:          "habit-builder",
		Name:        "Habit Builder",
		Description: "Skill and routine habits with live streaks and a rest day",
	},
	{
		ID:          "recovery",
		Name:        "Recovery",
		Description: "Overdue habits and unfinalized days; the next roll purges and penalizes",
	},
}

// resettable is satisfied by stores that can wipe themselves.
type resettable interface {
	Reset(ctx context.Context) error
}

var (
	currentMu       sync.Mutex
	currentScenario string
)

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

// ListScenarios returns the available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// CurrentScenario reports which scenario was loaded last, if any.
// GET /api/scenarios/current
func (h *Handler) CurrentScenario(w http.ResponseWriter, r *http.Request) {
	currentMu.Lock()
	id := currentScenario
	currentMu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": id})
}

// LoadScenario resets the database and seeds the named scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoadScenarioRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	store, ok := h.Store.(resettable)
	if !ok {
		writeError(w, http.StatusNotImplemented, "store does not support reset", nil)
		return
	}

	var load func(ctx context.Context) error
	switch req.ScenarioID {
	case "fresh-start":
		load = h.loadFreshStart
	case "deep-week":
		load = h.loadDeepWeek
	case "habit-builder":
		load = h.loadHabitBuilder
	case "recovery":
		load = h.loadRecovery
	default:
		writeError(w, http.StatusBadRequest, "unknown scenario: "+req.ScenarioID, nil)
		return
	}

	if err := store.Reset(ctx); err != nil {
		respondErr(w, err)
		return
	}
	if err := load(ctx); err != nil {
		respondErr(w, err)
		return
	}

	currentMu.Lock()
	currentScenario = req.ScenarioID
	currentMu.Unlock()

	h.Log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "loaded",
		"scenario_id": req.ScenarioID,
	})
}

// ResetDatabase wipes everything without seeding.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	store, ok := h.Store.(resettable)
	if !ok {
		writeError(w, http.StatusNotImplemented, "store does not support reset", nil)
		return
	}
	if err := store.Reset(r.Context()); err != nil {
		respondErr(w, err)
		return
	}

	currentMu.Lock()
	currentScenario = ""
	currentMu.Unlock()

	h.Log.Info("database reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadFreshStart seeds a clean slate: a few pending tasks across two
// projects and two daily habits. The penalty token sits at yesterday so
// no back-penalties fire on the first roll.
func (h *Handler) loadFreshStart(ctx context.Context) error {
	return h.Store.WithTx(ctx, func(tx core.Tx) error {
		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		now := h.Clock.Now()
		eff := core.EffectiveDate(now, st)

		tasks := []*core.WorkItem{
			seedTask("Write kickoff notes", "atlas", 7, 2, eff, nil),
			seedTask("Review onboarding doc", "atlas", 5, 1, eff.AddDays(2), nil),
			seedTask("Fix flaky sync test", "atlas", 8, 3, eff.AddDays(1), nil),
			seedTask("Clear inbox", "", 3, 1, core.Day{}, nil),
			seedTask("Plan next sprint", "ops", 6, 2, eff.AddDays(4), nil),
		}
		for _, t := range tasks {
			t.CreatedAt = now
			t.Urgency = core.UrgencyScore(t, eff)
			if err := tx.CreateItem(ctx, t); err != nil {
				return err
			}
		}

		habits := []*core.WorkItem{
			seedHabit("Morning pages", core.HabitSkill, core.Recurrence{Type: core.RecurrenceDaily}, 1, eff),
			seedHabit("Stretch break", core.HabitRoutine, core.Recurrence{Type: core.RecurrenceDaily}, 1, eff),
		}
		for _, hb := range habits {
			hb.CreatedAt = now
			if err := tx.CreateItem(ctx, hb); err != nil {
				return err
			}
		}

		st.LastPenaltyDate = eff.AddDays(-1)
		return tx.SaveSettings(ctx, st)
	})
}

// loadDeepWeek seeds a project with a dependency chain, two goals, and
// three sealed days of history.
func (h *Handler) loadDeepWeek(ctx context.Context) error {
	return h.Store.WithTx(ctx, func(tx core.Tx) error {
		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		now := h.Clock.Now()
		eff := core.EffectiveDate(now, st)

		draft := seedTask("Draft migration design", "apollo", 8, 3, eff, nil)
		draft.CreatedAt = now
		draft.Urgency = core.UrgencyScore(draft, eff)
		if err := tx.CreateItem(ctx, draft); err != nil {
			return err
		}

		review := seedTask("Review migration design", "apollo", 7, 2, eff.AddDays(1), &draft.ID)
		review.CreatedAt = now
		review.Urgency = core.UrgencyScore(review, eff)
		if err := tx.CreateItem(ctx, review); err != nil {
			return err
		}

		ship := seedTask("Ship migration", "apollo", 9, 4, eff.AddDays(2), &review.ID)
		ship.CreatedAt = now
		ship.Urgency = core.UrgencyScore(ship, eff)
		if err := tx.CreateItem(ctx, ship); err != nil {
			return err
		}

		extra := []*core.WorkItem{
			seedTask("Update runbook", "apollo", 4, 1, eff.AddDays(5), nil),
			seedTask("Triage bug backlog", "", 6, 2, eff, nil),
		}
		for _, t := range extra {
			t.CreatedAt = now
			t.Urgency = core.UrgencyScore(t, eff)
			if err := tx.CreateItem(ctx, t); err != nil {
				return err
			}
		}

		goals := []*core.Goal{
			{Type: core.GoalPoints, TargetPoints: 500, RewardDescription: "New headphones", CreatedAt: now},
			{Type: core.GoalProjectCompletion, ProjectName: "apollo", RewardDescription: "Long weekend", CreatedAt: now},
		}
		for _, g := range goals {
			if err := tx.CreateGoal(ctx, g); err != nil {
				return err
			}
		}

		// Three sealed days of history, streak alive.
		for i := 3; i >= 1; i-- {
			d := eff.AddDays(-i)
			if err := tx.SaveLedger(ctx, &core.DayLedger{
				Date:           d,
				PointsEarned:   20 + 5*i,
				TasksCompleted: 2,
				TasksPlanned:   3,
				CompletionRate: 0.67,
				PenaltyStreak:  4 - i,
			}); err != nil {
				return err
			}
		}

		st.LastPenaltyDate = eff.AddDays(-1)
		return tx.SaveSettings(ctx, st)
	})
}

// loadHabitBuilder seeds habits with live streaks, a weekly habit, a
// multi-rep routine, a week of history, and an upcoming rest day.
func (h *Handler) loadHabitBuilder(ctx context.Context) error {
	return h.Store.WithTx(ctx, func(tx core.Tx) error {
		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		now := h.Clock.Now()
		eff := core.EffectiveDate(now, st)

		practice := seedHabit("Practice guitar", core.HabitSkill, core.Recurrence{Type: core.RecurrenceDaily}, 1, eff)
		practice.CreatedAt = now
		practice.Streak = 12
		practice.LastCompleted = eff.AddDays(-1)
		if err := tx.CreateItem(ctx, practice); err != nil {
			return err
		}

		review := seedHabit("Weekly review", core.HabitSkill, core.Recurrence{
			Type:     core.RecurrenceWeekly,
			Weekdays: []time.Weekday{time.Sunday},
		}, 1, nextWeekday(eff, time.Sunday))
		review.CreatedAt = now
		review.Streak = 3
		if err := tx.CreateItem(ctx, review); err != nil {
			return err
		}

		water := seedHabit("Drink water", core.HabitRoutine, core.Recurrence{Type: core.RecurrenceDaily}, 3, eff)
		water.CreatedAt = now
		water.Streak = 5
		water.LastCompleted = eff.AddDays(-1)
		if err := tx.CreateItem(ctx, water); err != nil {
			return err
		}

		for i := 7; i >= 1; i-- {
			d := eff.AddDays(-i)
			if err := tx.SaveLedger(ctx, &core.DayLedger{
				Date:            d,
				PointsEarned:    25,
				HabitsCompleted: 2,
				HabitsTotal:     2,
				PenaltyStreak:   8 - i,
			}); err != nil {
				return err
			}
		}

		if err := tx.CreateRestDay(ctx, &core.RestDay{
			Date:        nextWeekday(eff, time.Saturday),
			Description: "Hike day",
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		st.LastPenaltyDate = eff.AddDays(-1)
		return tx.SaveSettings(ctx, st)
	})
}

// loadRecovery seeds a lapsed state: habits overdue by days, no ledger
// rows since the token, pending tasks untouched. The next roll purges
// the habits, records skips, and finalizes the missed days.
func (h *Handler) loadRecovery(ctx context.Context) error {
	return h.Store.WithTx(ctx, func(tx core.Tx) error {
		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		now := h.Clock.Now()
		eff := core.EffectiveDate(now, st)

		run := seedHabit("Go for a run", core.HabitSkill, core.Recurrence{Type: core.RecurrenceDaily}, 1, eff.AddDays(-3))
		run.CreatedAt = now
		run.Streak = 9
		run.LastCompleted = eff.AddDays(-4)
		if err := tx.CreateItem(ctx, run); err != nil {
			return err
		}

		tidy := seedHabit("Tidy desk", core.HabitRoutine, core.Recurrence{Type: core.RecurrenceEveryNDays, Interval: 2}, 1, eff.AddDays(-2))
		tidy.CreatedAt = now
		tidy.Streak = 2
		if err := tx.CreateItem(ctx, tidy); err != nil {
			return err
		}

		tasks := []*core.WorkItem{
			seedTask("Answer support backlog", "", 7, 2, eff.AddDays(-1), nil),
			seedTask("Pay invoices", "ops", 8, 1, eff, nil),
		}
		for _, t := range tasks {
			t.CreatedAt = now
			t.Urgency = core.UrgencyScore(t, eff)
			if err := tx.CreateItem(ctx, t); err != nil {
				return err
			}
		}

		// Last sealed day is four days back; the gap is unfinalized.
		if err := tx.SaveLedger(ctx, &core.DayLedger{
			Date:           eff.AddDays(-4),
			PointsEarned:   30,
			TasksCompleted: 3,
			TasksPlanned:   3,
			CompletionRate: 1.0,
			PenaltyStreak:  6,
		}); err != nil {
			return err
		}

		st.LastPenaltyDate = eff.AddDays(-4)
		return tx.SaveSettings(ctx, st)
	})
}

// =============================================================================
// SEED HELPERS
// =============================================================================

func seedTask(desc, project string, priority, energy int, due core.Day, dep *int64) *core.WorkItem {
	return &core.WorkItem{
		Description: desc,
		Project:     project,
		Priority:    priority,
		Energy:      energy,
		Status:      core.StatusPending,
		DueDate:     due,
		DependsOn:   dep,
	}
}

func seedHabit(desc string, kind core.HabitType, rec core.Recurrence, target int, due core.Day) *core.WorkItem {
	return &core.WorkItem{
		Description: desc,
		Priority:    5,
		Energy:      1,
		IsHabit:     true,
		Status:      core.StatusPending,
		DueDate:     due,
		HabitType:   kind,
		Recurrence:  rec,
		DailyTarget: target,
	}
}

// nextWeekday returns the first date strictly after d that falls on wd.
func nextWeekday(d core.Day, wd time.Weekday) core.Day {
	next := d.AddDays(1)
	for next.Weekday() != wd {
		next = next.AddDays(1)
	}
	return next
}
