package scoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/grindstone/engine/core"
	"github.com/grindstone/engine/scoring"
	"github.com/grindstone/engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestEngine(t *testing.T) (*scoring.Engine, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return scoring.New(store, zap.NewNop()), store
}

func mar(d int) core.Day {
	return core.NewDay(2025, time.March, d)
}

func mustLedger(t *testing.T, store *sqlite.Store, d core.Day) *core.DayLedger {
	t.Helper()
	l, err := store.Ledger(context.Background(), d)
	if err != nil {
		t.Fatalf("read ledger %s: %v", d, err)
	}
	if l == nil {
		t.Fatalf("no ledger row for %s", d)
	}
	return l
}

func saveLedger(t *testing.T, store *sqlite.Store, l *core.DayLedger) {
	t.Helper()
	if err := store.SaveLedger(context.Background(), l); err != nil {
		t.Fatalf("save ledger: %v", err)
	}
}

func seedDBHabit(t *testing.T, store *sqlite.Store, typ core.HabitType, due core.Day) *core.WorkItem {
	t.Helper()
	w := &core.WorkItem{
		Description: "habit",
		Energy:      2,
		IsHabit:     true,
		HabitType:   typ,
		Status:      core.StatusPending,
		DueDate:     due,
		DailyTarget: 1,
		Recurrence:  core.Recurrence{Type: core.RecurrenceDaily},
		CreatedAt:   time.Now(),
	}
	if err := store.CreateItem(context.Background(), w); err != nil {
		t.Fatalf("create habit: %v", err)
	}
	return w
}

// =============================================================================
// TASK REWARDS
// =============================================================================

func TestRewardTask_CreditsLedger(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	// GIVEN an energy-3 task worked for exactly its 60-minute budget
	item := &core.WorkItem{ID: 1, Energy: 3, TimeSpent: 3600}

	// WHEN the completion is rewarded
	reward, err := eng.RewardTask(ctx, store, item, mar(10))
	if err != nil {
		t.Fatalf("RewardTask: %v", err)
	}

	// THEN 12 points land on the date's ledger
	if reward.Points != 12 {
		t.Errorf("points = %d, want 12", reward.Points)
	}
	l := mustLedger(t, store, mar(10))
	if l.PointsEarned != 12 {
		t.Errorf("ledger earned = %d, want 12", l.PointsEarned)
	}
	if l.TasksCompleted != 1 {
		t.Errorf("tasks completed = %d, want 1", l.TasksCompleted)
	}
}

func TestRewardTask_FullCompletionBonus_PaysOnce(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	// Two tasks planned for the day.
	saveLedger(t, store, &core.DayLedger{Date: mar(10), TasksPlanned: 2})

	if _, err := eng.RewardTask(ctx, store, &core.WorkItem{ID: 1, Energy: 3, TimeSpent: 3600}, mar(10)); err != nil {
		t.Fatalf("first reward: %v", err)
	}
	l := mustLedger(t, store, mar(10))
	if l.PointsEarned != 12 {
		t.Errorf("after first completion earned = %d, want 12 (no bonus yet)", l.PointsEarned)
	}

	if _, err := eng.RewardTask(ctx, store, &core.WorkItem{ID: 2, Energy: 3, TimeSpent: 3600}, mar(10)); err != nil {
		t.Fatalf("second reward: %v", err)
	}

	// 24 earned plus round(24 * 0.10) = 2 when the plan closes.
	l = mustLedger(t, store, mar(10))
	if l.PointsEarned != 26 {
		t.Errorf("after closing the plan earned = %d, want 26", l.PointsEarned)
	}
	if l.TasksCompleted != 2 {
		t.Errorf("tasks completed = %d, want 2", l.TasksCompleted)
	}
}

// =============================================================================
// HABIT REWARDS
// =============================================================================

func TestRewardHabit_SkillUsesPriorStreak(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	habit := &core.WorkItem{ID: 1, Energy: 3, IsHabit: true, HabitType: core.HabitSkill}

	// Day 5 of the streak: 4 prior completions feed the bonus.
	points, err := eng.RewardHabit(ctx, store, habit, 4, mar(10))
	if err != nil {
		t.Fatalf("RewardHabit: %v", err)
	}
	if points != 16 {
		t.Errorf("points = %d, want 16", points)
	}

	l := mustLedger(t, store, mar(10))
	if l.PointsEarned != 16 || l.HabitsCompleted != 1 {
		t.Errorf("ledger = earned %d / habits %d, want 16 / 1", l.PointsEarned, l.HabitsCompleted)
	}
}

func TestRewardHabit_RoutineIsFlat(t *testing.T) {
	eng, store := newTestEngine(t)

	habit := &core.WorkItem{ID: 1, Energy: 5, IsHabit: true, HabitType: core.HabitRoutine}

	points, err := eng.RewardHabit(context.Background(), store, habit, 50, mar(10))
	if err != nil {
		t.Fatalf("RewardHabit: %v", err)
	}
	if points != 6 {
		t.Errorf("routine reward ignores energy and streak, got %d, want 6", points)
	}
}

// =============================================================================
// DAY FINALIZATION
// =============================================================================

func TestFinalizeDay_IdleDay(t *testing.T) {
	eng, store := newTestEngine(t)

	// GIVEN a date with no completions at all
	// WHEN the day is finalized
	if err := eng.FinalizeDay(context.Background(), store, mar(10)); err != nil {
		t.Fatalf("FinalizeDay: %v", err)
	}

	// THEN the idle penalty lands and the penalty streak starts
	l := mustLedger(t, store, mar(10))
	if l.PointsPenalty != 30 {
		t.Errorf("penalty = %d, want 30", l.PointsPenalty)
	}
	if l.PenaltyStreak != 1 {
		t.Errorf("penalty streak = %d, want 1", l.PenaltyStreak)
	}
}

func TestFinalizeThrough_ProgressivePenaltyAcrossIdleDays(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	st, err := store.Settings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	st.LastPenaltyDate = mar(9)
	if err := store.SaveSettings(ctx, st); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	// Three idle days slip past; the roll on Mar 13 settles all of them.
	n, err := eng.FinalizeThrough(ctx, store, st, mar(13))
	if err != nil {
		t.Fatalf("FinalizeThrough: %v", err)
	}
	if n != 3 {
		t.Fatalf("finalized %d days, want 3", n)
	}

	wantPenalty := []int{30, 33, 36}
	wantStreak := []int{1, 2, 3}
	for i := 0; i < 3; i++ {
		l := mustLedger(t, store, mar(10+i))
		if l.PointsPenalty != wantPenalty[i] {
			t.Errorf("day %d penalty = %d, want %d", 10+i, l.PointsPenalty, wantPenalty[i])
		}
		if l.PenaltyStreak != wantStreak[i] {
			t.Errorf("day %d streak = %d, want %d", 10+i, l.PenaltyStreak, wantStreak[i])
		}
	}

	if !st.LastPenaltyDate.Equal(mar(12)) {
		t.Errorf("token = %s, want 2025-03-12", st.LastPenaltyDate)
	}
}

func TestFinalizeDay_RestDayCarriesStreak(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	if err := store.CreateRestDay(ctx, &core.RestDay{Date: mar(10), Description: "off", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create rest day: %v", err)
	}
	saveLedger(t, store, &core.DayLedger{Date: mar(9), PointsPenalty: 30, PenaltyStreak: 3})
	saveLedger(t, store, &core.DayLedger{Date: mar(10), TasksPlanned: 5})

	if err := eng.FinalizeDay(ctx, store, mar(10)); err != nil {
		t.Fatalf("FinalizeDay: %v", err)
	}

	l := mustLedger(t, store, mar(10))
	if l.PointsPenalty != 0 {
		t.Errorf("rest day penalty = %d, want 0", l.PointsPenalty)
	}
	if l.PenaltyStreak != 3 {
		t.Errorf("rest day should carry the streak unchanged, got %d, want 3", l.PenaltyStreak)
	}
}

func TestFinalizeDay_IncompleteBands(t *testing.T) {
	cases := []struct {
		name        string
		completed   int
		wantPenalty int
	}{
		// 1/5 = 0.2 < 0.4: severe flat penalty
		{"severe", 1, 15},
		// 2/5 = 0.4 in [0.4, 0.6): round(10 * 0.6) = 6
		{"moderate", 2, 6},
		// 3/5 = 0.6 >= threshold: no penalty
		{"above_threshold", 3, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng, store := newTestEngine(t)
			saveLedger(t, store, &core.DayLedger{
				Date:           mar(10),
				TasksPlanned:   5,
				TasksCompleted: tc.completed,
				PointsEarned:   10,
			})

			if err := eng.FinalizeDay(context.Background(), store, mar(10)); err != nil {
				t.Fatalf("FinalizeDay: %v", err)
			}
			l := mustLedger(t, store, mar(10))
			if l.PointsPenalty != tc.wantPenalty {
				t.Errorf("penalty = %d, want %d", l.PointsPenalty, tc.wantPenalty)
			}
		})
	}
}

func TestFinalizeDay_GoodBonusBand(t *testing.T) {
	eng, store := newTestEngine(t)

	// 4/5 = 0.8 lands in the good band: round(50 * 0.05) = 3 extra.
	saveLedger(t, store, &core.DayLedger{
		Date:           mar(10),
		TasksPlanned:   5,
		TasksCompleted: 4,
		PointsEarned:   50,
	})

	if err := eng.FinalizeDay(context.Background(), store, mar(10)); err != nil {
		t.Fatalf("FinalizeDay: %v", err)
	}

	l := mustLedger(t, store, mar(10))
	if l.PointsEarned != 53 {
		t.Errorf("earned = %d, want 53", l.PointsEarned)
	}
	if l.PointsPenalty != 0 {
		t.Errorf("penalty = %d, want 0", l.PointsPenalty)
	}
	if l.CompletionRate != 0.8 {
		t.Errorf("completion rate = %v, want 0.8", l.CompletionRate)
	}
}

func TestFinalizeDay_PerfectDayGetsNoSecondBonus(t *testing.T) {
	eng, store := newTestEngine(t)

	// The full-completion bonus already paid at reward time; finalizing
	// a 100% day must not add the good bonus on top.
	saveLedger(t, store, &core.DayLedger{
		Date:           mar(10),
		TasksPlanned:   2,
		TasksCompleted: 2,
		PointsEarned:   26,
	})

	if err := eng.FinalizeDay(context.Background(), store, mar(10)); err != nil {
		t.Fatalf("FinalizeDay: %v", err)
	}

	l := mustLedger(t, store, mar(10))
	if l.PointsEarned != 26 {
		t.Errorf("earned = %d, want 26 unchanged", l.PointsEarned)
	}
}

func TestFinalizeDay_MissedHabits(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	// A skill habit due on the finalized date and a routine habit already
	// overdue, both unmet. Something else was completed, so no idle.
	seedDBHabit(t, store, core.HabitSkill, mar(10))
	seedDBHabit(t, store, core.HabitRoutine, mar(9))
	saveLedger(t, store, &core.DayLedger{Date: mar(10), TasksCompleted: 1, PointsEarned: 12})

	if err := eng.FinalizeDay(ctx, store, mar(10)); err != nil {
		t.Fatalf("FinalizeDay: %v", err)
	}

	l := mustLedger(t, store, mar(10))
	if l.PointsPenalty != 23 {
		t.Errorf("penalty = %d, want 15 + 8 = 23", l.PointsPenalty)
	}
	if l.HabitsTotal != 2 {
		t.Errorf("habits total raised to %d, want 2", l.HabitsTotal)
	}
}

func TestFinalizeDay_CountsRecordedSkips(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	h := seedDBHabit(t, store, core.HabitSkill, mar(12))
	if err := store.RecordHabitSkip(ctx, &core.HabitSkip{ItemID: h.ID, Date: mar(10), HabitType: core.HabitSkill}); err != nil {
		t.Fatalf("record skip: %v", err)
	}
	saveLedger(t, store, &core.DayLedger{Date: mar(10), TasksCompleted: 1, PointsEarned: 12})

	if err := eng.FinalizeDay(ctx, store, mar(10)); err != nil {
		t.Fatalf("FinalizeDay: %v", err)
	}

	l := mustLedger(t, store, mar(10))
	if l.PointsPenalty != 15 {
		t.Errorf("penalty = %d, want 15 for the recorded skip", l.PointsPenalty)
	}
}

func TestFinalizeDay_StreakResetNeedsCleanWindow(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	// Mar 10 idle: penalty, streak 1.
	if err := eng.FinalizeDay(ctx, store, mar(10)); err != nil {
		t.Fatalf("finalize mar 10: %v", err)
	}

	// Mar 11 productive, but yesterday was penalized: streak holds.
	saveLedger(t, store, &core.DayLedger{Date: mar(11), TasksCompleted: 1, PointsEarned: 10})
	if err := eng.FinalizeDay(ctx, store, mar(11)); err != nil {
		t.Fatalf("finalize mar 11: %v", err)
	}
	if got := mustLedger(t, store, mar(11)).PenaltyStreak; got != 1 {
		t.Errorf("streak after one clean day = %d, want 1 (window not clean yet)", got)
	}

	// Mar 12 productive with a clean day behind it: streak resets.
	saveLedger(t, store, &core.DayLedger{Date: mar(12), TasksCompleted: 1, PointsEarned: 10})
	if err := eng.FinalizeDay(ctx, store, mar(12)); err != nil {
		t.Fatalf("finalize mar 12: %v", err)
	}
	if got := mustLedger(t, store, mar(12)).PenaltyStreak; got != 0 {
		t.Errorf("streak after two clean days = %d, want 0", got)
	}
}

// =============================================================================
// FINALIZE-THROUGH TOKEN
// =============================================================================

func TestFinalizeThrough_TokenCurrent_Refuses(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	st, err := store.Settings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	st.LastPenaltyDate = mar(9)

	n, err := eng.FinalizeThrough(ctx, store, st, mar(10))
	if !errors.Is(err, core.ErrAlreadyFinalized) {
		t.Fatalf("err = %v, want ErrAlreadyFinalized", err)
	}
	if n != 0 {
		t.Errorf("finalized %d days, want 0", n)
	}

	var fin *core.FinalizedError
	if !errors.As(err, &fin) || !fin.Date.Equal(mar(9)) {
		t.Errorf("finalized error should name yesterday, got %v", err)
	}
}

func TestFinalizeThrough_FreshDatabase_AdoptsYesterday(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	st, err := store.Settings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}

	// No token yet: only yesterday is settled, not all of history.
	n, err := eng.FinalizeThrough(ctx, store, st, mar(10))
	if err != nil {
		t.Fatalf("FinalizeThrough: %v", err)
	}
	if n != 1 {
		t.Errorf("finalized %d days, want 1", n)
	}
	if !st.LastPenaltyDate.Equal(mar(9)) {
		t.Errorf("token = %s, want 2025-03-09", st.LastPenaltyDate)
	}
	if got := mustLedger(t, store, mar(9)).PointsPenalty; got != 30 {
		t.Errorf("yesterday's idle penalty = %d, want 30", got)
	}
}

// =============================================================================
// GOALS
// =============================================================================

func TestCheckGoals_PointsGoal(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	goal := &core.Goal{Type: core.GoalPoints, TargetPoints: 20, CreatedAt: time.Now()}
	if err := store.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	if _, err := eng.RewardTask(ctx, store, &core.WorkItem{ID: 1, Energy: 3, TimeSpent: 3600}, mar(10)); err != nil {
		t.Fatalf("first reward: %v", err)
	}
	g, err := store.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if g.Achieved {
		t.Fatal("goal achieved at 12 of 20 points")
	}

	if _, err := eng.RewardTask(ctx, store, &core.WorkItem{ID: 2, Energy: 3, TimeSpent: 3600}, mar(11)); err != nil {
		t.Fatalf("second reward: %v", err)
	}
	g, err = store.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if !g.Achieved {
		t.Fatal("goal should be achieved at 24 points")
	}
	if !g.AchievedDate.Equal(mar(11)) {
		t.Errorf("achieved date = %s, want 2025-03-11", g.AchievedDate)
	}
	if g.RewardClaimed {
		t.Error("achievement must not auto-claim the reward")
	}
}

func TestCheckGoals_ProjectCompletion(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	mk := func(desc string, status core.Status) *core.WorkItem {
		w := &core.WorkItem{Description: desc, Project: "garage", Status: status, CreatedAt: time.Now()}
		if err := store.CreateItem(ctx, w); err != nil {
			t.Fatalf("create item: %v", err)
		}
		return w
	}
	mk("shelves", core.StatusCompleted)
	straggler := mk("paint", core.StatusPending)

	goal := &core.Goal{Type: core.GoalProjectCompletion, ProjectName: "garage", CreatedAt: time.Now()}
	if err := store.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	if err := eng.CheckGoals(ctx, store, mar(10)); err != nil {
		t.Fatalf("CheckGoals: %v", err)
	}
	g, _ := store.GetGoal(ctx, goal.ID)
	if g.Achieved {
		t.Fatal("project with a pending item is not complete")
	}

	straggler.Status = core.StatusCompleted
	if err := store.UpdateItem(ctx, straggler); err != nil {
		t.Fatalf("update item: %v", err)
	}
	if err := eng.CheckGoals(ctx, store, mar(11)); err != nil {
		t.Fatalf("CheckGoals: %v", err)
	}
	g, _ = store.GetGoal(ctx, goal.ID)
	if !g.Achieved {
		t.Fatal("project goal should be achieved once every item is completed")
	}
}

func TestCheckGoals_EmptyProjectNeverAchieves(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	goal := &core.Goal{Type: core.GoalProjectCompletion, ProjectName: "phantom", CreatedAt: time.Now()}
	if err := store.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	if err := eng.CheckGoals(ctx, store, mar(10)); err != nil {
		t.Fatalf("CheckGoals: %v", err)
	}
	g, _ := store.GetGoal(ctx, goal.ID)
	if g.Achieved {
		t.Error("a project with no items must not count as complete")
	}
}

// =============================================================================
// READ SURFACE
// =============================================================================

func TestHistory_TrailingWindow(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	saveLedger(t, store, &core.DayLedger{Date: mar(1), PointsEarned: 99})
	for i := 8; i <= 10; i++ {
		saveLedger(t, store, &core.DayLedger{Date: mar(i), PointsEarned: i})
	}

	rows, err := eng.History(ctx, mar(10), 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if !rows[0].Date.Equal(mar(8)) || !rows[2].Date.Equal(mar(10)) {
		t.Errorf("window = [%s .. %s], want [2025-03-08 .. 2025-03-10]", rows[0].Date, rows[2].Date)
	}
}

func TestProject_ExtrapolatesFromTrailingAverage(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	for i := 8; i <= 10; i++ {
		saveLedger(t, store, &core.DayLedger{Date: mar(i), PointsEarned: 10})
	}

	p, err := eng.Project(ctx, mar(10), mar(20))
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	if p.CurrentTotal != 30 {
		t.Errorf("current = %d, want 30", p.CurrentTotal)
	}
	if p.DaysUntil != 10 {
		t.Errorf("days until = %d, want 10", p.DaysUntil)
	}
	if p.AvgPerDay != 10.0 {
		t.Errorf("avg/day = %v, want 10.0", p.AvgPerDay)
	}
	if p.MinProjection != 100 || p.AvgProjection != 130 || p.MaxProjection != 160 {
		t.Errorf("projections = %d/%d/%d, want 100/130/160",
			p.MinProjection, p.AvgProjection, p.MaxProjection)
	}
}

func TestProject_PastTargetReturnsCurrent(t *testing.T) {
	eng, store := newTestEngine(t)

	saveLedger(t, store, &core.DayLedger{Date: mar(10), PointsEarned: 30})

	p, err := eng.Project(context.Background(), mar(10), mar(10))
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if p.MinProjection != 30 || p.AvgProjection != 30 || p.MaxProjection != 30 {
		t.Errorf("projections = %d/%d/%d, want 30/30/30",
			p.MinProjection, p.AvgProjection, p.MaxProjection)
	}
}

func TestProject_NegativeTrendClampsToCurrent(t *testing.T) {
	eng, store := newTestEngine(t)

	// A losing streak must not project below the current balance.
	saveLedger(t, store, &core.DayLedger{Date: mar(10), PointsPenalty: 30})

	p, err := eng.Project(context.Background(), mar(10), mar(15))
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if p.CurrentTotal != -30 {
		t.Errorf("current = %d, want -30", p.CurrentTotal)
	}
	if p.MinProjection != -30 || p.AvgProjection != -30 || p.MaxProjection != -30 {
		t.Errorf("projections = %d/%d/%d, want all clamped to -30",
			p.MinProjection, p.AvgProjection, p.MaxProjection)
	}
}

func TestCurrentPoints(t *testing.T) {
	eng, store := newTestEngine(t)

	saveLedger(t, store, &core.DayLedger{Date: mar(9), PointsEarned: 40, PointsPenalty: 10})
	saveLedger(t, store, &core.DayLedger{Date: mar(10), PointsEarned: 5})

	total, err := eng.CurrentPoints(context.Background())
	if err != nil {
		t.Fatalf("CurrentPoints: %v", err)
	}
	if total != 35 {
		t.Errorf("total = %d, want 35", total)
	}
}
