/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

DATE ENCODING:
  Calendar dates travel as "YYYY-MM-DD" strings, instants as RFC3339.
  A zero core.Day encodes as the empty string and is omitted.

PARTIAL UPDATES:
  UpdateItemRequest and UpdateSettingsRequest use pointer fields: a nil
  pointer means "leave unchanged", so PUT bodies only carry the fields
  the client wants to move.

VALIDATION:
  Validation is done in handlers and the domain types, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - core/types.go: The domain model these project
*/
package api

import (
	"time"

	"github.com/grindstone/engine/core"
	"github.com/grindstone/engine/planner"
	"github.com/grindstone/engine/scheduler"
	"github.com/grindstone/engine/scoring"
	"github.com/grindstone/engine/tracker"
)

// =============================================================================
// WORK ITEMS
// =============================================================================

// RecurrenceDTO mirrors core.Recurrence with weekdays as 0..6 (Sunday=0).
type RecurrenceDTO struct {
	Type     string `json:"type"`
	Interval int    `json:"interval,omitempty"`
	Weekdays []int  `json:"weekdays,omitempty"`
}

// ItemDTO represents a work item in API responses.
type ItemDTO struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Project     string  `json:"project,omitempty"`
	Priority    int     `json:"priority"`
	Energy      int     `json:"energy"`
	Urgency     int     `json:"urgency"`
	IsHabit     bool    `json:"is_habit"`
	IsToday     bool    `json:"is_today"`
	Status      string  `json:"status"`
	DueDate     string  `json:"due_date,omitempty"`
	CreatedAt   string  `json:"created_at"`
	StartedAt   *string `json:"started_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	TimeSpent   int64   `json:"time_spent"`
	DependsOn   *int64  `json:"depends_on,omitempty"`

	// Habit fields, omitted for plain tasks.
	HabitType      string         `json:"habit_type,omitempty"`
	Recurrence     *RecurrenceDTO `json:"recurrence,omitempty"`
	Streak         int            `json:"streak,omitempty"`
	LastCompleted  string         `json:"last_completed,omitempty"`
	DailyTarget    int            `json:"daily_target,omitempty"`
	DailyCompleted int            `json:"daily_completed,omitempty"`
}

// CreateItemRequest is the request to create a task or habit.
type CreateItemRequest struct {
	Description string         `json:"description"`
	Project     string         `json:"project"`
	Priority    int            `json:"priority"`
	Energy      int            `json:"energy"`
	DueDate     string         `json:"due_date"`
	DependsOn   *int64         `json:"depends_on"`
	IsHabit     bool           `json:"is_habit"`
	HabitType   string         `json:"habit_type"`
	Recurrence  *RecurrenceDTO `json:"recurrence"`
	DailyTarget int            `json:"daily_target"`
}

// UpdateItemRequest carries a partial update. depends_on=0 clears the
// dependency edge (SQLite rowids start at 1, so 0 is never a real id).
type UpdateItemRequest struct {
	Description *string        `json:"description"`
	Project     *string        `json:"project"`
	Priority    *int           `json:"priority"`
	Energy      *int           `json:"energy"`
	DueDate     *string        `json:"due_date"` // "" clears
	DependsOn   *int64         `json:"depends_on"`
	HabitType   *string        `json:"habit_type"`
	Recurrence  *RecurrenceDTO `json:"recurrence"`
	DailyTarget *int           `json:"daily_target"`
}

// StartItemRequest names the item to start.
type StartItemRequest struct {
	ID int64 `json:"id"`
}

// CompleteItemRequest optionally names the item; nil means the active one.
type CompleteItemRequest struct {
	ID *int64 `json:"id"`
}

// StopResponse reports whether anything was running to stop.
type StopResponse struct {
	Stopped bool     `json:"stopped"`
	Item    *ItemDTO `json:"item,omitempty"`
}

// TaskRewardDTO is the factor breakdown behind a task reward.
type TaskRewardDTO struct {
	Points      int     `json:"points"`
	EnergyMult  float64 `json:"energy_mult"`
	TimeQuality float64 `json:"time_quality"`
	Focus       float64 `json:"focus"`
}

// CompleteResponse reports the completed item and what it earned.
type CompleteResponse struct {
	Item      ItemDTO        `json:"item"`
	Points    int            `json:"points"`
	TargetMet bool           `json:"target_met"`
	Reward    *TaskRewardDTO `json:"reward,omitempty"`
}

// =============================================================================
// ROLL
// =============================================================================

// RollRequest optionally carries the operator's energy level (0..5).
type RollRequest struct {
	Mood *int `json:"mood"`
}

// RollStatusDTO answers "can I roll right now, and if not, why".
type RollStatusDTO struct {
	Available     bool   `json:"available"`
	Reason        string `json:"reason,omitempty"`
	EffectiveDate string `json:"effective_date"`
	LastRollDate  string `json:"last_roll_date,omitempty"`
	OpensAt       string `json:"opens_at"`
	PendingRoll   bool   `json:"pending_roll"`
}

// RollResponse is the agenda built by a successful roll.
type RollResponse struct {
	Date          string    `json:"date"`
	Tasks         []ItemDTO `json:"tasks"`
	Habits        []ItemDTO `json:"habits"`
	TasksPlanned  int       `json:"tasks_planned"`
	HabitsTotal   int       `json:"habits_total"`
	PurgedHabits  int       `json:"purged_habits"`
	DaysFinalized int       `json:"days_finalized"`
}

// =============================================================================
// POINTS AND STATS
// =============================================================================

// LedgerDTO represents one day's scoring row.
type LedgerDTO struct {
	Date            string  `json:"date"`
	PointsEarned    int     `json:"points_earned"`
	PointsPenalty   int     `json:"points_penalty"`
	DailyTotal      int     `json:"daily_total"`
	TasksCompleted  int     `json:"tasks_completed"`
	TasksPlanned    int     `json:"tasks_planned"`
	HabitsCompleted int     `json:"habits_completed"`
	HabitsTotal     int     `json:"habits_total"`
	CompletionRate  float64 `json:"completion_rate"`
	PenaltyStreak   int     `json:"penalty_streak"`
}

// PointsDTO is the lifetime balance.
type PointsDTO struct {
	TotalPoints int `json:"total_points"`
}

// ProjectionDTO estimates the balance at a target date.
type ProjectionDTO struct {
	CurrentTotal  int     `json:"current_total"`
	TargetDate    string  `json:"target_date"`
	DaysUntil     int     `json:"days_until"`
	AvgPerDay     float64 `json:"avg_per_day"`
	MinProjection int     `json:"min_projection"`
	AvgProjection int     `json:"avg_projection"`
	MaxProjection int     `json:"max_projection"`
}

// StatsDTO is the dashboard snapshot.
type StatsDTO struct {
	Date            string    `json:"date"`
	TotalPoints     int       `json:"total_points"`
	Today           LedgerDTO `json:"today"`
	PendingTasks    int       `json:"pending_tasks"`
	TodayTasks      int       `json:"today_tasks"`
	HabitsDueToday  int       `json:"habits_due_today"`
	ActiveItem      *ItemDTO  `json:"active_item,omitempty"`
	PenaltyStreak   int       `json:"penalty_streak"`
	PendingRoll     bool      `json:"pending_roll"`
	LastRollDate    string    `json:"last_roll_date,omitempty"`
	LastPenaltyDate string    `json:"last_penalty_date,omitempty"`
}

// =============================================================================
// GOALS
// =============================================================================

// GoalDTO represents a goal in API responses.
type GoalDTO struct {
	ID                int64  `json:"id"`
	Type              string `json:"type"`
	TargetPoints      int    `json:"target_points,omitempty"`
	ProjectName       string `json:"project_name,omitempty"`
	RewardDescription string `json:"reward_description"`
	Deadline          string `json:"deadline,omitempty"`
	Achieved          bool   `json:"achieved"`
	AchievedDate      string `json:"achieved_date,omitempty"`
	RewardClaimed     bool   `json:"reward_claimed"`
	CreatedAt         string `json:"created_at"`
}

// CreateGoalRequest is the request to create a goal.
type CreateGoalRequest struct {
	Type              string `json:"type"`
	TargetPoints      int    `json:"target_points"`
	ProjectName       string `json:"project_name"`
	RewardDescription string `json:"reward_description"`
	Deadline          string `json:"deadline"`
}

// UpdateGoalRequest carries a partial goal update.
type UpdateGoalRequest struct {
	TargetPoints      *int    `json:"target_points"`
	ProjectName       *string `json:"project_name"`
	RewardDescription *string `json:"reward_description"`
	Deadline          *string `json:"deadline"` // "" clears
}

// =============================================================================
// REST DAYS
// =============================================================================

// RestDayDTO represents a penalty-exempt date.
type RestDayDTO struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// CreateRestDayRequest is the request to exempt a date.
type CreateRestDayRequest struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

// =============================================================================
// BACKUPS
// =============================================================================

// BackupDTO represents backup metadata.
type BackupDTO struct {
	ID              string `json:"id"`
	Filename        string `json:"filename"`
	CreatedAt       string `json:"created_at"`
	SizeBytes       int64  `json:"size_bytes"`
	Kind            string `json:"kind"`
	UploadedOffsite bool   `json:"uploaded_offsite"`
}

// MarkUploadedRequest flips the offsite flag on a backup.
type MarkUploadedRequest struct {
	Uploaded bool `json:"uploaded"`
}

// =============================================================================
// SCHEDULER
// =============================================================================

// JobStatusDTO is the snapshot of one background job.
type JobStatusDTO struct {
	Name            string `json:"name"`
	State           string `json:"state"`
	TotalChecks     int64  `json:"total_checks"`
	TotalRuns       int64  `json:"total_runs"`
	LastCheck       string `json:"last_check,omitempty"`
	LastRun         string `json:"last_run,omitempty"`
	LastError       string `json:"last_error,omitempty"`
	LastErrorAt     string `json:"last_error_at,omitempty"`
	ConsecutiveErrs int    `json:"consecutive_errors"`
	NextFire        string `json:"next_fire,omitempty"`
}

// SchedulerStatusDTO describes the scheduler and its jobs.
type SchedulerStatusDTO struct {
	Running   bool           `json:"running"`
	StartedAt string         `json:"started_at,omitempty"`
	Jobs      []JobStatusDTO `json:"jobs"`
}

// RunJobResponse reports the outcome of a forced job run.
type RunJobResponse struct {
	Job      string `json:"job"`
	Executed bool   `json:"executed"`
}

// =============================================================================
// SETTINGS
// =============================================================================

// SettingsDTO is the full settings row. The trailing state fields are
// engine-owned and read-only through the API.
type SettingsDTO struct {
	MaxTasksPerDay int `json:"max_tasks_per_day"`
	CriticalDays   int `json:"critical_days"`

	PointsPerTaskBase    int     `json:"points_per_task_base"`
	PointsPerHabitBase   int     `json:"points_per_habit_base"`
	RoutinePointsFixed   int     `json:"routine_points_fixed"`
	EnergyMultBase       float64 `json:"energy_mult_base"`
	EnergyMultStep       float64 `json:"energy_mult_step"`
	StreakLogFactor      float64 `json:"streak_log_factor"`
	MaxStreakBonusDays   int     `json:"max_streak_bonus_days"`
	MinutesPerEnergyUnit int     `json:"minutes_per_energy_unit"`
	MinWorkTimeSeconds   int     `json:"min_work_time_seconds"`
	TimeEfficiencyWeight float64 `json:"time_efficiency_weight"`
	CompletionBonusFull  float64 `json:"completion_bonus_full"`
	CompletionBonusGood  float64 `json:"completion_bonus_good"`

	IdlePenalty               int     `json:"idle_penalty"`
	IncompleteDayPenalty      int     `json:"incomplete_day_penalty"`
	IncompleteDayThreshold    float64 `json:"incomplete_day_threshold"`
	IncompleteThresholdSevere float64 `json:"incomplete_threshold_severe"`
	IncompletePenaltySevere   int     `json:"incomplete_penalty_severe"`
	MissedHabitPenaltyBase    int     `json:"missed_habit_penalty_base"`
	ProgressivePenaltyFactor  float64 `json:"progressive_penalty_factor"`
	ProgressivePenaltyMax     float64 `json:"progressive_penalty_max"`
	PenaltyStreakResetDays    int     `json:"penalty_streak_reset_days"`

	DayStartEnabled bool   `json:"day_start_enabled"`
	DayStartTime    string `json:"day_start_time"`

	RollAvailableTime    string `json:"roll_available_time"`
	AutoPenaltiesEnabled bool   `json:"auto_penalties_enabled"`
	PenaltyTime          string `json:"penalty_time"`
	AutoRollEnabled      bool   `json:"auto_roll_enabled"`
	AutoRollTime         string `json:"auto_roll_time"`
	AutoBackupEnabled    bool   `json:"auto_backup_enabled"`
	BackupTime           string `json:"backup_time"`
	BackupIntervalDays   int    `json:"backup_interval_days"`
	BackupKeepLocalCount int    `json:"backup_keep_local_count"`

	LastRollDate    string `json:"last_roll_date,omitempty"`
	LastPenaltyDate string `json:"last_penalty_date,omitempty"`
	LastBackupDate  string `json:"last_backup_date,omitempty"`
	PendingRoll     bool   `json:"pending_roll"`
	ActiveItemID    *int64 `json:"active_item_id,omitempty"`
}

// UpdateSettingsRequest carries a partial settings update. Only the
// operator knobs are settable; the engine state fields are not here.
type UpdateSettingsRequest struct {
	MaxTasksPerDay *int `json:"max_tasks_per_day"`
	CriticalDays   *int `json:"critical_days"`

	PointsPerTaskBase    *int     `json:"points_per_task_base"`
	PointsPerHabitBase   *int     `json:"points_per_habit_base"`
	RoutinePointsFixed   *int     `json:"routine_points_fixed"`
	EnergyMultBase       *float64 `json:"energy_mult_base"`
	EnergyMultStep       *float64 `json:"energy_mult_step"`
	StreakLogFactor      *float64 `json:"streak_log_factor"`
	MaxStreakBonusDays   *int     `json:"max_streak_bonus_days"`
	MinutesPerEnergyUnit *int     `json:"minutes_per_energy_unit"`
	MinWorkTimeSeconds   *int     `json:"min_work_time_seconds"`
	TimeEfficiencyWeight *float64 `json:"time_efficiency_weight"`
	CompletionBonusFull  *float64 `json:"completion_bonus_full"`
	CompletionBonusGood  *float64 `json:"completion_bonus_good"`

	IdlePenalty               *int     `json:"idle_penalty"`
	IncompleteDayPenalty      *int     `json:"incomplete_day_penalty"`
	IncompleteDayThreshold    *float64 `json:"incomplete_day_threshold"`
	IncompleteThresholdSevere *float64 `json:"incomplete_threshold_severe"`
	IncompletePenaltySevere   *int     `json:"incomplete_penalty_severe"`
	MissedHabitPenaltyBase    *int     `json:"missed_habit_penalty_base"`
	ProgressivePenaltyFactor  *float64 `json:"progressive_penalty_factor"`
	ProgressivePenaltyMax     *float64 `json:"progressive_penalty_max"`
	PenaltyStreakResetDays    *int     `json:"penalty_streak_reset_days"`

	DayStartEnabled *bool   `json:"day_start_enabled"`
	DayStartTime    *string `json:"day_start_time"`

	RollAvailableTime    *string `json:"roll_available_time"`
	AutoPenaltiesEnabled *bool   `json:"auto_penalties_enabled"`
	PenaltyTime          *string `json:"penalty_time"`
	AutoRollEnabled      *bool   `json:"auto_roll_enabled"`
	AutoRollTime         *string `json:"auto_roll_time"`
	AutoBackupEnabled    *bool   `json:"auto_backup_enabled"`
	BackupTime           *string `json:"backup_time"`
	BackupIntervalDays   *int    `json:"backup_interval_days"`
	BackupKeepLocalCount *int    `json:"backup_keep_local_count"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toItemDTO(w *core.WorkItem) ItemDTO {
	dto := ItemDTO{
		ID:          w.ID,
		Description: w.Description,
		Project:     w.Project,
		Priority:    w.Priority,
		Energy:      w.Energy,
		Urgency:     w.Urgency,
		IsHabit:     w.IsHabit,
		IsToday:     w.IsToday,
		Status:      string(w.Status),
		DueDate:     dayStr(w.DueDate),
		CreatedAt:   timeStr(w.CreatedAt),
		StartedAt:   timePtrStr(w.StartedAt),
		CompletedAt: timePtrStr(w.CompletedAt),
		TimeSpent:   w.TimeSpent,
		DependsOn:   w.DependsOn,
	}
	if w.IsHabit {
		dto.HabitType = string(w.HabitType)
		dto.Recurrence = toRecurrenceDTO(w.Recurrence)
		dto.Streak = w.Streak
		dto.LastCompleted = dayStr(w.LastCompleted)
		dto.DailyTarget = w.DailyTarget
		dto.DailyCompleted = w.DailyCompleted
	}
	return dto
}

func toItemDTOs(items []*core.WorkItem) []ItemDTO {
	dtos := make([]ItemDTO, 0, len(items))
	for _, w := range items {
		dtos = append(dtos, toItemDTO(w))
	}
	return dtos
}

func toRecurrenceDTO(r core.Recurrence) *RecurrenceDTO {
	if r.Type == "" || r.Type == core.RecurrenceNone {
		return nil
	}
	dto := &RecurrenceDTO{Type: string(r.Type), Interval: r.Interval}
	for _, wd := range r.Weekdays {
		dto.Weekdays = append(dto.Weekdays, int(wd))
	}
	return dto
}

func fromRecurrenceDTO(dto *RecurrenceDTO) core.Recurrence {
	if dto == nil {
		return core.Recurrence{Type: core.RecurrenceNone}
	}
	r := core.Recurrence{Type: core.RecurrenceType(dto.Type), Interval: dto.Interval}
	for _, wd := range dto.Weekdays {
		r.Weekdays = append(r.Weekdays, time.Weekday(wd))
	}
	r.Normalize()
	return r
}

func toRewardDTO(r *scoring.TaskReward) *TaskRewardDTO {
	if r == nil {
		return nil
	}
	return &TaskRewardDTO{
		Points:      r.Points,
		EnergyMult:  r.EnergyMult.InexactFloat64(),
		TimeQuality: r.TimeQuality.InexactFloat64(),
		Focus:       r.Focus.InexactFloat64(),
	}
}

func toCompleteResponse(res *tracker.CompleteResult) CompleteResponse {
	return CompleteResponse{
		Item:      toItemDTO(res.Item),
		Points:    res.Points,
		TargetMet: res.TargetMet,
		Reward:    toRewardDTO(res.Reward),
	}
}

func toRollStatusDTO(s *planner.RollStatus) RollStatusDTO {
	return RollStatusDTO{
		Available:     s.Available,
		Reason:        s.Reason,
		EffectiveDate: dayStr(s.EffectiveDate),
		LastRollDate:  dayStr(s.LastRollDate),
		OpensAt:       s.OpensAt,
		PendingRoll:   s.PendingRoll,
	}
}

func toRollResponse(res *planner.RollResult) RollResponse {
	return RollResponse{
		Date:          dayStr(res.Date),
		Tasks:         toItemDTOs(res.Tasks),
		Habits:        toItemDTOs(res.Habits),
		TasksPlanned:  res.TasksPlanned,
		HabitsTotal:   res.HabitsTotal,
		PurgedHabits:  res.PurgedHabits,
		DaysFinalized: res.DaysFinalized,
	}
}

func toLedgerDTO(l *core.DayLedger) LedgerDTO {
	return LedgerDTO{
		Date:            dayStr(l.Date),
		PointsEarned:    l.PointsEarned,
		PointsPenalty:   l.PointsPenalty,
		DailyTotal:      l.DailyTotal(),
		TasksCompleted:  l.TasksCompleted,
		TasksPlanned:    l.TasksPlanned,
		HabitsCompleted: l.HabitsCompleted,
		HabitsTotal:     l.HabitsTotal,
		CompletionRate:  l.CompletionRate,
		PenaltyStreak:   l.PenaltyStreak,
	}
}

func toLedgerDTOs(rows []*core.DayLedger) []LedgerDTO {
	dtos := make([]LedgerDTO, 0, len(rows))
	for _, l := range rows {
		dtos = append(dtos, toLedgerDTO(l))
	}
	return dtos
}

func toProjectionDTO(p *scoring.Projection) ProjectionDTO {
	return ProjectionDTO{
		CurrentTotal:  p.CurrentTotal,
		TargetDate:    dayStr(p.TargetDate),
		DaysUntil:     p.DaysUntil,
		AvgPerDay:     p.AvgPerDay,
		MinProjection: p.MinProjection,
		AvgProjection: p.AvgProjection,
		MaxProjection: p.MaxProjection,
	}
}

func toGoalDTO(g *core.Goal) GoalDTO {
	return GoalDTO{
		ID:                g.ID,
		Type:              string(g.Type),
		TargetPoints:      g.TargetPoints,
		ProjectName:       g.ProjectName,
		RewardDescription: g.RewardDescription,
		Deadline:          dayStr(g.Deadline),
		Achieved:          g.Achieved,
		AchievedDate:      dayStr(g.AchievedDate),
		RewardClaimed:     g.RewardClaimed,
		CreatedAt:         timeStr(g.CreatedAt),
	}
}

func toGoalDTOs(goals []*core.Goal) []GoalDTO {
	dtos := make([]GoalDTO, 0, len(goals))
	for _, g := range goals {
		dtos = append(dtos, toGoalDTO(g))
	}
	return dtos
}

func toRestDayDTO(r *core.RestDay) RestDayDTO {
	return RestDayDTO{
		ID:          r.ID,
		Date:        dayStr(r.Date),
		Description: r.Description,
		CreatedAt:   timeStr(r.CreatedAt),
	}
}

func toBackupDTO(b *core.Backup) BackupDTO {
	return BackupDTO{
		ID:              b.ID,
		Filename:        b.Filename,
		CreatedAt:       timeStr(b.CreatedAt),
		SizeBytes:       b.SizeBytes,
		Kind:            string(b.Kind),
		UploadedOffsite: b.UploadedOffsite,
	}
}

func toBackupDTOs(backups []*core.Backup) []BackupDTO {
	dtos := make([]BackupDTO, 0, len(backups))
	for _, b := range backups {
		dtos = append(dtos, toBackupDTO(b))
	}
	return dtos
}

func toJobStatusDTO(j scheduler.JobStatus) JobStatusDTO {
	return JobStatusDTO{
		Name:            j.Name,
		State:           j.State,
		TotalChecks:     j.TotalChecks,
		TotalRuns:       j.TotalRuns,
		LastCheck:       timeStrOrEmpty(j.LastCheck),
		LastRun:         timeStrOrEmpty(j.LastRun),
		LastError:       j.LastError,
		LastErrorAt:     timeStrOrEmpty(j.LastErrorAt),
		ConsecutiveErrs: j.ConsecutiveErrs,
		NextFire:        timeStrOrEmpty(j.NextFire),
	}
}

func toSchedulerStatusDTO(s *scheduler.Status) SchedulerStatusDTO {
	dto := SchedulerStatusDTO{
		Running:   s.Running,
		StartedAt: timeStrOrEmpty(s.StartedAt),
		Jobs:      make([]JobStatusDTO, 0, len(s.Jobs)),
	}
	for _, j := range s.Jobs {
		dto.Jobs = append(dto.Jobs, toJobStatusDTO(j))
	}
	return dto
}

func toSettingsDTO(st *core.Settings) SettingsDTO {
	return SettingsDTO{
		MaxTasksPerDay: st.MaxTasksPerDay,
		CriticalDays:   st.CriticalDays,

		PointsPerTaskBase:    st.PointsPerTaskBase,
		PointsPerHabitBase:   st.PointsPerHabitBase,
		RoutinePointsFixed:   st.RoutinePointsFixed,
		EnergyMultBase:       st.EnergyMultBase,
		EnergyMultStep:       st.EnergyMultStep,
		StreakLogFactor:      st.StreakLogFactor,
		MaxStreakBonusDays:   st.MaxStreakBonusDays,
		MinutesPerEnergyUnit: st.MinutesPerEnergyUnit,
		MinWorkTimeSeconds:   st.MinWorkTimeSeconds,
		TimeEfficiencyWeight: st.TimeEfficiencyWeight,
		CompletionBonusFull:  st.CompletionBonusFull,
		CompletionBonusGood:  st.CompletionBonusGood,

		IdlePenalty:               st.IdlePenalty,
		IncompleteDayPenalty:      st.IncompleteDayPenalty,
		IncompleteDayThreshold:    st.IncompleteDayThreshold,
		IncompleteThresholdSevere: st.IncompleteThresholdSevere,
		IncompletePenaltySevere:   st.IncompletePenaltySevere,
		MissedHabitPenaltyBase:    st.MissedHabitPenaltyBase,
		ProgressivePenaltyFactor:  st.ProgressivePenaltyFactor,
		ProgressivePenaltyMax:     st.ProgressivePenaltyMax,
		PenaltyStreakResetDays:    st.PenaltyStreakResetDays,

		DayStartEnabled: st.DayStartEnabled,
		DayStartTime:    st.DayStartTime,

		RollAvailableTime:    st.RollAvailableTime,
		AutoPenaltiesEnabled: st.AutoPenaltiesEnabled,
		PenaltyTime:          st.PenaltyTime,
		AutoRollEnabled:      st.AutoRollEnabled,
		AutoRollTime:         st.AutoRollTime,
		AutoBackupEnabled:    st.AutoBackupEnabled,
		BackupTime:           st.BackupTime,
		BackupIntervalDays:   st.BackupIntervalDays,
		BackupKeepLocalCount: st.BackupKeepLocalCount,

		LastRollDate:    dayStr(st.LastRollDate),
		LastPenaltyDate: dayStr(st.LastPenaltyDate),
		LastBackupDate:  dayStr(st.LastBackupDate),
		PendingRoll:     st.PendingRoll,
		ActiveItemID:    st.ActiveItemID,
	}
}

// applySettingsUpdate folds non-nil request fields into st.
func applySettingsUpdate(st *core.Settings, req *UpdateSettingsRequest) {
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	setInt(&st.MaxTasksPerDay, req.MaxTasksPerDay)
	setInt(&st.CriticalDays, req.CriticalDays)

	setInt(&st.PointsPerTaskBase, req.PointsPerTaskBase)
	setInt(&st.PointsPerHabitBase, req.PointsPerHabitBase)
	setInt(&st.RoutinePointsFixed, req.RoutinePointsFixed)
	setFloat(&st.EnergyMultBase, req.EnergyMultBase)
	setFloat(&st.EnergyMultStep, req.EnergyMultStep)
	setFloat(&st.StreakLogFactor, req.StreakLogFactor)
	setInt(&st.MaxStreakBonusDays, req.MaxStreakBonusDays)
	setInt(&st.MinutesPerEnergyUnit, req.MinutesPerEnergyUnit)
	setInt(&st.MinWorkTimeSeconds, req.MinWorkTimeSeconds)
	setFloat(&st.TimeEfficiencyWeight, req.TimeEfficiencyWeight)
	setFloat(&st.CompletionBonusFull, req.CompletionBonusFull)
	setFloat(&st.CompletionBonusGood, req.CompletionBonusGood)

	setInt(&st.IdlePenalty, req.IdlePenalty)
	setInt(&st.IncompleteDayPenalty, req.IncompleteDayPenalty)
	setFloat(&st.IncompleteDayThreshold, req.IncompleteDayThreshold)
	setFloat(&st.IncompleteThresholdSevere, req.IncompleteThresholdSevere)
	setInt(&st.IncompletePenaltySevere, req.IncompletePenaltySevere)
	setInt(&st.MissedHabitPenaltyBase, req.MissedHabitPenaltyBase)
	setFloat(&st.ProgressivePenaltyFactor, req.ProgressivePenaltyFactor)
	setFloat(&st.ProgressivePenaltyMax, req.ProgressivePenaltyMax)
	setInt(&st.PenaltyStreakResetDays, req.PenaltyStreakResetDays)

	setBool(&st.DayStartEnabled, req.DayStartEnabled)
	setStr(&st.DayStartTime, req.DayStartTime)

	setStr(&st.RollAvailableTime, req.RollAvailableTime)
	setBool(&st.AutoPenaltiesEnabled, req.AutoPenaltiesEnabled)
	setStr(&st.PenaltyTime, req.PenaltyTime)
	setBool(&st.AutoRollEnabled, req.AutoRollEnabled)
	setStr(&st.AutoRollTime, req.AutoRollTime)
	setBool(&st.AutoBackupEnabled, req.AutoBackupEnabled)
	setStr(&st.BackupTime, req.BackupTime)
	setInt(&st.BackupIntervalDays, req.BackupIntervalDays)
	setInt(&st.BackupKeepLocalCount, req.BackupKeepLocalCount)
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

func dayStr(d core.Day) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func timeStr(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func timeStrOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return timeStr(t)
}

func timePtrStr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := timeStr(*t)
	return &s
}
