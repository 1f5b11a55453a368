/*
types.go - Entity model for the day-lifecycle engine

PURPOSE:
  Core domain types shared by every package: work items (tasks and
  habits), the daily point ledger, goals, rest days, backup metadata,
  and habit-skip records.

OWNERSHIP:
  The Store owns every entity; services mutate them only through
  transactional Store operations. Types here carry no behavior beyond
  validation and derived accessors.

SEE ALSO:
  - store.go: The transactional interface over these types
  - recurrence.go: Habit schedule advancement
  - settings.go: The settings singleton
*/
package core

import (
	"sort"
	"time"
)

// =============================================================================
// WORK ITEM - One task or habit
// =============================================================================

// Status is the work-item lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusSkipped:
		return true
	}
	return false
}

// HabitType distinguishes the two reward/penalty families.
type HabitType string

const (
	// HabitSkill earns the logarithmic streak bonus and full missed penalty.
	HabitSkill HabitType = "skill"
	// HabitRoutine earns a fixed small reward and half missed penalty.
	HabitRoutine HabitType = "routine"
)

// WorkItem is a single unit of work: either a one-shot task or a
// recurring habit (is_habit=true, due_date = next scheduled occurrence).
type WorkItem struct {
	ID          int64
	Description string
	Project     string
	Priority    int // 0..10
	Energy      int // 0..5
	Urgency     int // derived; refreshed at roll and on create/update
	IsHabit     bool
	IsToday     bool
	Status      Status
	DueDate     Day // zero = no due date
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	TimeSpent   int64  // accumulated seconds
	DependsOn   *int64 // single edge; cycles rejected at write time

	// Habit fields, zero-valued for plain tasks.
	HabitType      HabitType
	Recurrence     Recurrence
	Streak         int
	LastCompleted  Day
	DailyTarget    int
	DailyCompleted int
}

// Validate checks operator-settable fields.
func (w *WorkItem) Validate() error {
	if w.Description == "" {
		return &InvalidArgumentError{Field: "description", Value: "", Reason: "must not be empty"}
	}
	if w.Priority < 0 || w.Priority > 10 {
		return &InvalidArgumentError{Field: "priority", Value: w.Priority, Reason: "must be in 0..10"}
	}
	if w.Energy < 0 || w.Energy > 5 {
		return &InvalidArgumentError{Field: "energy", Value: w.Energy, Reason: "must be in 0..5"}
	}
	if w.IsHabit {
		switch w.HabitType {
		case HabitSkill, HabitRoutine:
		default:
			return &InvalidArgumentError{Field: "habit_type", Value: string(w.HabitType), Reason: "must be skill or routine"}
		}
		if w.DailyTarget < 1 {
			return &InvalidArgumentError{Field: "daily_target", Value: w.DailyTarget, Reason: "must be >= 1"}
		}
		if err := w.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DueBy reports whether the item's due date is set and <= d.
func (w *WorkItem) DueBy(d Day) bool {
	return !w.DueDate.IsZero() && w.DueDate.BeforeOrEqual(d)
}

// =============================================================================
// RECURRENCE - Habit schedule as a tagged variant
// =============================================================================

// RecurrenceType tags the schedule variant.
type RecurrenceType string

const (
	RecurrenceNone       RecurrenceType = "none"
	RecurrenceDaily      RecurrenceType = "daily"
	RecurrenceEveryNDays RecurrenceType = "every_n_days"
	RecurrenceWeekly     RecurrenceType = "weekly"
)

// Recurrence describes when a habit's next occurrence falls. The weekday
// set is a real set here; its column encoding is a store concern.
type Recurrence struct {
	Type     RecurrenceType
	Interval int            // every_n_days only
	Weekdays []time.Weekday // weekly only, kept sorted
}

func (r Recurrence) Validate() error {
	switch r.Type {
	case RecurrenceNone, RecurrenceDaily:
		return nil
	case RecurrenceEveryNDays:
		if r.Interval < 1 {
			return &InvalidArgumentError{Field: "recurrence.interval", Value: r.Interval, Reason: "must be >= 1"}
		}
		return nil
	case RecurrenceWeekly:
		if len(r.Weekdays) == 0 {
			return &InvalidArgumentError{Field: "recurrence.weekdays", Value: "", Reason: "weekly habit needs at least one weekday"}
		}
		for _, wd := range r.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return &InvalidArgumentError{Field: "recurrence.weekdays", Value: int(wd), Reason: "weekday out of range"}
			}
		}
		return nil
	}
	return &InvalidArgumentError{Field: "recurrence.type", Value: string(r.Type), Reason: "unknown recurrence type"}
}

// Normalize sorts and deduplicates the weekday set.
func (r *Recurrence) Normalize() {
	if len(r.Weekdays) == 0 {
		return
	}
	seen := make(map[time.Weekday]bool, len(r.Weekdays))
	var out []time.Weekday
	for _, wd := range r.Weekdays {
		if !seen[wd] {
			seen[wd] = true
			out = append(out, wd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	r.Weekdays = out
}

// =============================================================================
// DAY LEDGER - One scoring row per effective date
// =============================================================================

// DayLedger is the scoring record of one effective date. Rows are created
// lazily on the first scoring event of the date and only the current and
// previous effective dates are ever mutated.
type DayLedger struct {
	Date            Day
	PointsEarned    int
	PointsPenalty   int
	TasksCompleted  int
	TasksPlanned    int
	HabitsCompleted int
	HabitsTotal     int
	CompletionRate  float64
	PenaltyStreak   int
}

// DailyTotal derives the day's net score. Stored nowhere; the two scalars
// are kept separate to preserve audit.
func (l *DayLedger) DailyTotal() int { return l.PointsEarned - l.PointsPenalty }

// =============================================================================
// GOAL - Long-horizon reward targets
// =============================================================================

type GoalType string

const (
	GoalPoints            GoalType = "points"
	GoalProjectCompletion GoalType = "project_completion"
)

// Goal becomes achieved monotonically: the flag never clears once set.
type Goal struct {
	ID                int64
	Type              GoalType
	TargetPoints      int    // points goals
	ProjectName       string // project_completion goals
	RewardDescription string
	Deadline          Day // zero = open-ended
	Achieved          bool
	AchievedDate      Day
	RewardClaimed     bool
	CreatedAt         time.Time
}

func (g *Goal) Validate() error {
	switch g.Type {
	case GoalPoints:
		if g.TargetPoints <= 0 {
			return &InvalidArgumentError{Field: "target_points", Value: g.TargetPoints, Reason: "must be > 0"}
		}
	case GoalProjectCompletion:
		if g.ProjectName == "" {
			return &InvalidArgumentError{Field: "project_name", Value: "", Reason: "must not be empty"}
		}
	default:
		return &InvalidArgumentError{Field: "goal_type", Value: string(g.Type), Reason: "must be points or project_completion"}
	}
	return nil
}

// =============================================================================
// REST DAY - Penalty-exempt dates
// =============================================================================

// RestDay exempts a date from every penalty rule. It neither grows nor
// resets the penalty streak.
type RestDay struct {
	ID          int64
	Date        Day
	Description string
	CreatedAt   time.Time
}

// =============================================================================
// BACKUP - Metadata records; the file itself is an external artifact
// =============================================================================

type BackupKind string

const (
	BackupAuto   BackupKind = "auto"
	BackupManual BackupKind = "manual"
)

type Backup struct {
	ID              string // uuid
	Filename        string
	CreatedAt       time.Time
	SizeBytes       int64
	Kind            BackupKind
	UploadedOffsite bool
}

// =============================================================================
// HABIT SKIP - Missed occurrences recorded at purge time
// =============================================================================

// HabitSkip pins a missed habit occurrence to its original date so the
// missed-habit penalty still lands after the schedule has been advanced.
type HabitSkip struct {
	ID        int64
	ItemID    int64
	Date      Day
	HabitType HabitType
}
