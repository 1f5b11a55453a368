package tracker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/grindstone/engine/core"
	"github.com/grindstone/engine/scoring"
	"github.com/grindstone/engine/store/sqlite"
	"github.com/grindstone/engine/tracker"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestTracker(t *testing.T) (*tracker.Tracker, *sqlite.Store, *core.ManualClock) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := core.NewManualClock(time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	return tracker.New(store, scoring.New(store, log), clock, log), store, clock
}

func mar(d int) core.Day {
	return core.NewDay(2025, time.March, d)
}

func createTask(t *testing.T, tr *tracker.Tracker, desc string, energy int) *core.WorkItem {
	t.Helper()
	w := &core.WorkItem{Description: desc, Priority: 3, Energy: energy}
	if err := tr.Create(context.Background(), w); err != nil {
		t.Fatalf("create %q: %v", desc, err)
	}
	return w
}

func createHabit(t *testing.T, tr *tracker.Tracker, desc string, typ core.HabitType, rec core.Recurrence, target int) *core.WorkItem {
	t.Helper()
	w := &core.WorkItem{
		Description: desc,
		Energy:      3,
		IsHabit:     true,
		HabitType:   typ,
		Recurrence:  rec,
		DailyTarget: target,
	}
	if err := tr.Create(context.Background(), w); err != nil {
		t.Fatalf("create habit %q: %v", desc, err)
	}
	return w
}

func reload(t *testing.T, store *sqlite.Store, id int64) *core.WorkItem {
	t.Helper()
	w, err := store.GetItem(context.Background(), id)
	if err != nil {
		t.Fatalf("get item %d: %v", id, err)
	}
	if w == nil {
		t.Fatalf("item %d vanished", id)
	}
	return w
}

func activeMirror(t *testing.T, store *sqlite.Store) *int64 {
	t.Helper()
	st, err := store.Settings(context.Background())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	return st.ActiveItemID
}

// =============================================================================
// CREATE / UPDATE / DELETE
// =============================================================================

func TestCreate_TaskComputesUrgency(t *testing.T) {
	tr, store, _ := newTestTracker(t)

	w := &core.WorkItem{Description: "file taxes", Priority: 3, Energy: 2, DueDate: mar(12)}
	if err := tr.Create(context.Background(), w); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got := reload(t, store, w.ID)
	if got.Status != core.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	// priority 3*10 + due-within-critical-window 25
	if got.Urgency != 55 {
		t.Errorf("urgency = %d, want 55", got.Urgency)
	}
	if !got.CreatedAt.Equal(time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v, want the clock's time", got.CreatedAt)
	}
}

func TestCreate_HabitDefaults(t *testing.T) {
	tr, store, _ := newTestTracker(t)

	w := &core.WorkItem{
		Description: "run",
		IsHabit:     true,
		HabitType:   core.HabitSkill,
		Recurrence:  core.Recurrence{Type: core.RecurrenceDaily},
	}
	if err := tr.Create(context.Background(), w); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got := reload(t, store, w.ID)
	if !got.DueDate.Equal(mar(10)) {
		t.Errorf("due date = %s, want today", got.DueDate)
	}
	if got.DailyTarget != 1 {
		t.Errorf("daily target = %d, want 1", got.DailyTarget)
	}
}

func TestCreate_MissingDependencyRejected(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	missing := int64(999)
	w := &core.WorkItem{Description: "later", DependsOn: &missing}
	err := tr.Create(context.Background(), w)
	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestCreate_InvalidItemRejected(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	err := tr.Create(context.Background(), &core.WorkItem{Description: ""})
	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestUpdate_RejectsSelfDependency(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	a := createTask(t, tr, "alpha", 2)
	a.DependsOn = &a.ID
	err := tr.Update(context.Background(), a)
	if !errors.Is(err, core.ErrDependencyCycle) {
		t.Errorf("err = %v, want ErrDependencyCycle", err)
	}
}

func TestUpdate_RejectsTransitiveCycle(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	// a -> b, then closing b -> a would cycle.
	b := createTask(t, tr, "beta", 2)
	a := &core.WorkItem{Description: "alpha", Priority: 3, Energy: 2, DependsOn: &b.ID}
	if err := tr.Create(ctx, a); err != nil {
		t.Fatalf("create alpha: %v", err)
	}

	b.DependsOn = &a.ID
	err := tr.Update(ctx, b)
	if !errors.Is(err, core.ErrDependencyCycle) {
		t.Errorf("err = %v, want ErrDependencyCycle", err)
	}
}

func TestUpdate_RefreshesUrgency(t *testing.T) {
	tr, store, _ := newTestTracker(t)

	a := createTask(t, tr, "alpha", 2)
	a.Priority = 8
	if err := tr.Update(context.Background(), a); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if got := reload(t, store, a.ID).Urgency; got != 80 {
		t.Errorf("urgency = %d, want 80", got)
	}
}

func TestUpdate_MissingItem(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	err := tr.Update(context.Background(), &core.WorkItem{ID: 999, Description: "ghost"})
	if !errors.Is(err, core.ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestDelete_ClearsActiveMirror(t *testing.T) {
	tr, store, _ := newTestTracker(t)
	ctx := context.Background()

	a := createTask(t, tr, "alpha", 2)
	if _, err := tr.Start(ctx, a.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if activeMirror(t, store) == nil {
		t.Fatal("mirror should point at the active item")
	}

	if err := tr.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if activeMirror(t, store) != nil {
		t.Error("deleting the active item should clear the mirror")
	}
}

func TestDelete_MissingItem(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	if err := tr.Delete(context.Background(), 999); !errors.Is(err, core.ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

// =============================================================================
// START / STOP
// =============================================================================

func TestStart_SingleActiveInvariant(t *testing.T) {
	tr, store, clock := newTestTracker(t)
	ctx := context.Background()

	// GIVEN item A running for 90 seconds
	a := createTask(t, tr, "alpha", 2)
	b := createTask(t, tr, "beta", 2)
	if _, err := tr.Start(ctx, a.ID); err != nil {
		t.Fatalf("start alpha: %v", err)
	}
	clock.Advance(90 * time.Second)

	// WHEN item B starts
	if _, err := tr.Start(ctx, b.ID); err != nil {
		t.Fatalf("start beta: %v", err)
	}

	// THEN A is demoted with its time flushed and B holds the slot
	gotA := reload(t, store, a.ID)
	if gotA.Status != core.StatusPending {
		t.Errorf("alpha status = %s, want pending", gotA.Status)
	}
	if gotA.TimeSpent != 90 {
		t.Errorf("alpha time spent = %d, want 90", gotA.TimeSpent)
	}
	if gotA.StartedAt != nil {
		t.Error("alpha should have no running start timestamp")
	}

	gotB := reload(t, store, b.ID)
	if gotB.Status != core.StatusActive {
		t.Errorf("beta status = %s, want active", gotB.Status)
	}
	if mirror := activeMirror(t, store); mirror == nil || *mirror != b.ID {
		t.Errorf("active mirror = %v, want beta's id", mirror)
	}
}

func TestStart_AlreadyActive_NoOp(t *testing.T) {
	tr, store, clock := newTestTracker(t)
	ctx := context.Background()

	a := createTask(t, tr, "alpha", 2)
	if _, err := tr.Start(ctx, a.ID); err != nil {
		t.Fatalf("first start: %v", err)
	}
	clock.Advance(30 * time.Second)

	again, err := tr.Start(ctx, a.ID)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if again.ID != a.ID {
		t.Errorf("returned item %d, want %d", again.ID, a.ID)
	}

	// The original start timestamp keeps running; no flush happened.
	if got := reload(t, store, a.ID); got.TimeSpent != 0 {
		t.Errorf("time spent = %d, want 0 while still running", got.TimeSpent)
	}
}

func TestStart_NonPendingRejected(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	a := createTask(t, tr, "alpha", 2)
	if _, err := tr.Complete(ctx, &a.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := tr.Start(ctx, a.ID)
	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestStart_MissingItem(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	if _, err := tr.Start(context.Background(), 999); !errors.Is(err, core.ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestStart_DependencyGate(t *testing.T) {
	tr, store, _ := newTestTracker(t)
	ctx := context.Background()

	// GIVEN task B depending on A, with A neither completed nor planned
	a := createTask(t, tr, "prep", 2)
	b := &core.WorkItem{Description: "ship", Priority: 3, Energy: 2, DependsOn: &a.ID}
	if err := tr.Create(ctx, b); err != nil {
		t.Fatalf("create ship: %v", err)
	}

	// WHEN B starts
	_, err := tr.Start(ctx, b.ID)

	// THEN the gate holds and names the blocker
	if !errors.Is(err, core.ErrDependencyNotMet) {
		t.Fatalf("err = %v, want ErrDependencyNotMet", err)
	}
	var dep *core.DependencyNotMetError
	if !errors.As(err, &dep) || dep.DependsOn != a.ID {
		t.Errorf("error should name the blocking item, got %v", err)
	}

	// Putting A on today's agenda opens the gate.
	gotA := reload(t, store, a.ID)
	gotA.IsToday = true
	if err := store.UpdateItem(ctx, gotA); err != nil {
		t.Fatalf("mark today: %v", err)
	}
	if _, err := tr.Start(ctx, b.ID); err != nil {
		t.Errorf("start with dependency on today's agenda: %v", err)
	}
}

func TestStart_CompletedDependencyPasses(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	a := createTask(t, tr, "prep", 2)
	if _, err := tr.Complete(ctx, &a.ID); err != nil {
		t.Fatalf("complete prep: %v", err)
	}

	b := &core.WorkItem{Description: "ship", Priority: 3, Energy: 2, DependsOn: &a.ID}
	if err := tr.Create(ctx, b); err != nil {
		t.Fatalf("create ship: %v", err)
	}
	if _, err := tr.Start(ctx, b.ID); err != nil {
		t.Errorf("start with completed dependency: %v", err)
	}
}

func TestStart_HabitDependencyDueTodayPasses(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	h := createHabit(t, tr, "warmup", core.HabitRoutine, core.Recurrence{Type: core.RecurrenceDaily}, 1)

	b := &core.WorkItem{Description: "train", Priority: 3, Energy: 2, DependsOn: &h.ID}
	if err := tr.Create(ctx, b); err != nil {
		t.Fatalf("create train: %v", err)
	}
	if _, err := tr.Start(ctx, b.ID); err != nil {
		t.Errorf("a habit due today satisfies the gate: %v", err)
	}
}

func TestStop_FlushesElapsedTime(t *testing.T) {
	tr, store, clock := newTestTracker(t)
	ctx := context.Background()

	a := createTask(t, tr, "alpha", 2)
	if _, err := tr.Start(ctx, a.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(90 * time.Second)

	stopped, err := tr.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped == nil || stopped.ID != a.ID {
		t.Fatalf("stopped = %v, want alpha", stopped)
	}
	if stopped.TimeSpent != 90 {
		t.Errorf("time spent = %d, want 90", stopped.TimeSpent)
	}
	if stopped.Status != core.StatusPending {
		t.Errorf("status = %s, want pending", stopped.Status)
	}
	if activeMirror(t, store) != nil {
		t.Error("mirror should be cleared")
	}
}

func TestStop_NothingActive(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	stopped, err := tr.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped != nil {
		t.Errorf("stopped = %v, want nil when idle", stopped)
	}
}

// =============================================================================
// COMPLETE - TASKS
// =============================================================================

func TestComplete_ActiveTask(t *testing.T) {
	tr, store, clock := newTestTracker(t)
	ctx := context.Background()

	// GIVEN an energy-3 task worked for exactly one hour
	a := createTask(t, tr, "deep work", 3)
	if _, err := tr.Start(ctx, a.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(time.Hour)

	// WHEN the active item is completed
	res, err := tr.Complete(ctx, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// THEN the on-budget reward pays in full
	if res.Points != 12 {
		t.Errorf("points = %d, want 12", res.Points)
	}
	if res.Reward == nil {
		t.Fatal("task completions carry the factor breakdown")
	}
	if res.TargetMet {
		t.Error("target_met is a habit concept; tasks leave it false")
	}

	got := reload(t, store, a.ID)
	if got.Status != core.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
	if got.TimeSpent != 3600 {
		t.Errorf("time spent = %d, want 3600", got.TimeSpent)
	}
	if activeMirror(t, store) != nil {
		t.Error("mirror should be cleared")
	}

	l, err := store.Ledger(ctx, mar(10))
	if err != nil || l == nil {
		t.Fatalf("ledger missing: %v", err)
	}
	if l.PointsEarned != 12 || l.TasksCompleted != 1 {
		t.Errorf("ledger = earned %d / tasks %d, want 12 / 1", l.PointsEarned, l.TasksCompleted)
	}
}

func TestComplete_PendingByID(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	// Never started: zero time reads as a short burst, halving focus.
	a := createTask(t, tr, "quick win", 2)
	res, err := tr.Complete(context.Background(), &a.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Points != 5 {
		t.Errorf("points = %d, want 5", res.Points)
	}
}

func TestComplete_AlreadyCompleted(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	a := createTask(t, tr, "alpha", 2)
	if _, err := tr.Complete(ctx, &a.ID); err != nil {
		t.Fatalf("first complete: %v", err)
	}

	_, err := tr.Complete(ctx, &a.ID)
	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestComplete_NoActiveItem(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	_, err := tr.Complete(context.Background(), nil)
	if !errors.Is(err, core.ErrNoActiveItem) {
		t.Errorf("err = %v, want ErrNoActiveItem", err)
	}
}

func TestComplete_MissingID(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	missing := int64(999)
	_, err := tr.Complete(context.Background(), &missing)
	if !errors.Is(err, core.ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

// =============================================================================
// COMPLETE - HABITS
// =============================================================================

func TestCompleteHabit_PartialProgress(t *testing.T) {
	tr, store, _ := newTestTracker(t)
	ctx := context.Background()

	h := createHabit(t, tr, "hydrate", core.HabitRoutine, core.Recurrence{Type: core.RecurrenceDaily}, 3)

	for i := 1; i <= 2; i++ {
		res, err := tr.Complete(ctx, &h.ID)
		if err != nil {
			t.Fatalf("rep %d: %v", i, err)
		}
		if res.TargetMet {
			t.Fatalf("rep %d: target met early", i)
		}
		if res.Points != 0 {
			t.Errorf("rep %d: points = %d, want 0 before the target", i, res.Points)
		}
	}

	got := reload(t, store, h.ID)
	if got.DailyCompleted != 2 {
		t.Errorf("daily completed = %d, want 2", got.DailyCompleted)
	}
	if got.Status != core.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}

	l, err := store.Ledger(ctx, mar(10))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if l != nil {
		t.Error("partial progress must not touch the ledger")
	}
}

func TestCompleteHabit_TargetMet_SchedulesNext(t *testing.T) {
	tr, store, _ := newTestTracker(t)
	ctx := context.Background()

	// GIVEN a daily skill habit on day 5 of its streak
	h := createHabit(t, tr, "practice scales", core.HabitSkill, core.Recurrence{Type: core.RecurrenceDaily}, 1)
	seeded := reload(t, store, h.ID)
	seeded.Streak = 4
	if err := store.UpdateItem(ctx, seeded); err != nil {
		t.Fatalf("seed streak: %v", err)
	}

	// WHEN today's rep meets the target
	res, err := tr.Complete(ctx, &h.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// THEN the streak bonus pays for the four prior days and the habit
	// rolls to tomorrow
	if !res.TargetMet {
		t.Fatal("target should be met")
	}
	if res.Points != 16 {
		t.Errorf("points = %d, want 16", res.Points)
	}

	got := reload(t, store, h.ID)
	if got.Streak != 5 {
		t.Errorf("streak = %d, want 5", got.Streak)
	}
	if !got.DueDate.Equal(mar(11)) {
		t.Errorf("due date = %s, want tomorrow", got.DueDate)
	}
	if got.DailyCompleted != 0 {
		t.Errorf("daily completed = %d, want reset to 0", got.DailyCompleted)
	}
	if got.Status != core.StatusPending {
		t.Errorf("status = %s, want pending for the next occurrence", got.Status)
	}
	if got.CompletedAt != nil {
		t.Error("rescheduled habits carry no completed_at")
	}
	if !got.LastCompleted.Equal(mar(10)) {
		t.Errorf("last completed = %s, want today", got.LastCompleted)
	}

	l, err := store.Ledger(ctx, mar(10))
	if err != nil || l == nil {
		t.Fatalf("ledger missing: %v", err)
	}
	if l.PointsEarned != 16 || l.HabitsCompleted != 1 {
		t.Errorf("ledger = earned %d / habits %d, want 16 / 1", l.PointsEarned, l.HabitsCompleted)
	}
}

func TestCompleteHabit_OneShotBecomesTerminal(t *testing.T) {
	tr, store, _ := newTestTracker(t)

	h := createHabit(t, tr, "try cold shower", core.HabitRoutine, core.Recurrence{Type: core.RecurrenceNone}, 1)

	res, err := tr.Complete(context.Background(), &h.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !res.TargetMet {
		t.Fatal("target should be met")
	}

	got := reload(t, store, h.ID)
	if got.Status != core.StatusCompleted {
		t.Errorf("status = %s, want completed (no next occurrence)", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("terminal habits keep completed_at")
	}
}

func TestCompleteHabit_StreakCapped(t *testing.T) {
	tr, store, _ := newTestTracker(t)
	ctx := context.Background()

	h := createHabit(t, tr, "meditate", core.HabitSkill, core.Recurrence{Type: core.RecurrenceDaily}, 1)
	seeded := reload(t, store, h.ID)
	seeded.Streak = 100
	if err := store.UpdateItem(ctx, seeded); err != nil {
		t.Fatalf("seed streak: %v", err)
	}

	if _, err := tr.Complete(ctx, &h.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got := reload(t, store, h.ID).Streak; got != 100 {
		t.Errorf("streak = %d, want capped at 100", got)
	}
}
