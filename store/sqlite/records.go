package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/grindstone/engine/core"
)

// =============================================================================
// SETTINGS (singleton row, id=1)
// =============================================================================

const settingsCols = `max_tasks_per_day, critical_days,
	points_per_task_base, points_per_habit_base, routine_points_fixed,
	energy_mult_base, energy_mult_step, streak_log_factor, max_streak_bonus_days,
	minutes_per_energy_unit, min_work_time_seconds, time_efficiency_weight,
	completion_bonus_full, completion_bonus_good,
	idle_penalty, incomplete_day_penalty, incomplete_day_threshold,
	incomplete_threshold_severe, incomplete_penalty_severe, missed_habit_penalty_base,
	progressive_penalty_factor, progressive_penalty_max, penalty_streak_reset_days,
	day_start_enabled, day_start_time, roll_available_time,
	auto_penalties_enabled, penalty_time, auto_roll_enabled, auto_roll_time,
	auto_backup_enabled, backup_time, backup_interval_days, backup_keep_local_count,
	last_roll_date, last_penalty_date, last_backup_date, pending_roll, active_item_id`

// settingsArgs must stay in the settingsCols order.
func settingsArgs(st *core.Settings) []any {
	var active any
	if st.ActiveItemID != nil {
		active = *st.ActiveItemID
	}
	return []any{
		st.MaxTasksPerDay, st.CriticalDays,
		st.PointsPerTaskBase, st.PointsPerHabitBase, st.RoutinePointsFixed,
		st.EnergyMultBase, st.EnergyMultStep, st.StreakLogFactor, st.MaxStreakBonusDays,
		st.MinutesPerEnergyUnit, st.MinWorkTimeSeconds, st.TimeEfficiencyWeight,
		st.CompletionBonusFull, st.CompletionBonusGood,
		st.IdlePenalty, st.IncompleteDayPenalty, st.IncompleteDayThreshold,
		st.IncompleteThresholdSevere, st.IncompletePenaltySevere, st.MissedHabitPenaltyBase,
		st.ProgressivePenaltyFactor, st.ProgressivePenaltyMax, st.PenaltyStreakResetDays,
		st.DayStartEnabled, st.DayStartTime, st.RollAvailableTime,
		st.AutoPenaltiesEnabled, st.PenaltyTime, st.AutoRollEnabled, st.AutoRollTime,
		st.AutoBackupEnabled, st.BackupTime, st.BackupIntervalDays, st.BackupKeepLocalCount,
		dayArg(st.LastRollDate), dayArg(st.LastPenaltyDate), dayArg(st.LastBackupDate),
		st.PendingRoll, active,
	}
}

func scanSettings(sc scanner) (*core.Settings, error) {
	var (
		st          core.Settings
		lastRoll    sql.NullString
		lastPenalty sql.NullString
		lastBackup  sql.NullString
		activeItem  sql.NullInt64
	)
	err := sc.Scan(
		&st.MaxTasksPerDay, &st.CriticalDays,
		&st.PointsPerTaskBase, &st.PointsPerHabitBase, &st.RoutinePointsFixed,
		&st.EnergyMultBase, &st.EnergyMultStep, &st.StreakLogFactor, &st.MaxStreakBonusDays,
		&st.MinutesPerEnergyUnit, &st.MinWorkTimeSeconds, &st.TimeEfficiencyWeight,
		&st.CompletionBonusFull, &st.CompletionBonusGood,
		&st.IdlePenalty, &st.IncompleteDayPenalty, &st.IncompleteDayThreshold,
		&st.IncompleteThresholdSevere, &st.IncompletePenaltySevere, &st.MissedHabitPenaltyBase,
		&st.ProgressivePenaltyFactor, &st.ProgressivePenaltyMax, &st.PenaltyStreakResetDays,
		&st.DayStartEnabled, &st.DayStartTime, &st.RollAvailableTime,
		&st.AutoPenaltiesEnabled, &st.PenaltyTime, &st.AutoRollEnabled, &st.AutoRollTime,
		&st.AutoBackupEnabled, &st.BackupTime, &st.BackupIntervalDays, &st.BackupKeepLocalCount,
		&lastRoll, &lastPenalty, &lastBackup, &st.PendingRoll, &activeItem,
	)
	if err != nil {
		return nil, err
	}

	st.LastRollDate = parseDay(lastRoll)
	st.LastPenaltyDate = parseDay(lastPenalty)
	st.LastBackupDate = parseDay(lastBackup)
	if activeItem.Valid {
		id := activeItem.Int64
		st.ActiveItemID = &id
	}
	return &st, nil
}

// Settings returns the singleton row, inserting defaults on first access.
func (v *view) Settings(ctx context.Context) (*core.Settings, error) {
	row := v.q.QueryRowContext(ctx,
		`SELECT `+settingsCols+` FROM settings WHERE id = 1`)

	st, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		st = core.DefaultSettings()
		if err := v.SaveSettings(ctx, st); err != nil {
			return nil, err
		}
		return st, nil
	}
	if err != nil {
		return nil, storeErr("get settings", err)
	}
	return st, nil
}

func (v *view) SaveSettings(ctx context.Context, st *core.Settings) error {
	args := settingsArgs(st)
	_, err := v.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (id, `+settingsCols+`)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return storeErr("save settings", err)
	}
	return nil
}

// =============================================================================
// GOALS
// =============================================================================

const goalCols = `id, goal_type, target_points, project_name, reward_description,
	deadline, achieved, achieved_date, reward_claimed, created_at`

func scanGoal(sc scanner) (*core.Goal, error) {
	var (
		g            core.Goal
		deadline     sql.NullString
		achievedDate sql.NullString
		createdAt    string
	)
	err := sc.Scan(
		&g.ID, &g.Type, &g.TargetPoints, &g.ProjectName, &g.RewardDescription,
		&deadline, &g.Achieved, &achievedDate, &g.RewardClaimed, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	g.Deadline = parseDay(deadline)
	g.AchievedDate = parseDay(achievedDate)
	g.CreatedAt = parseTime(createdAt)
	return &g, nil
}

func (v *view) CreateGoal(ctx context.Context, g *core.Goal) error {
	res, err := v.q.ExecContext(ctx, `
		INSERT INTO goals (
			goal_type, target_points, project_name, reward_description,
			deadline, achieved, achieved_date, reward_claimed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(g.Type), g.TargetPoints, g.ProjectName, g.RewardDescription,
		dayArg(g.Deadline), g.Achieved, dayArg(g.AchievedDate), g.RewardClaimed,
		timeArg(g.CreatedAt),
	)
	if err != nil {
		return storeErr("create goal", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return storeErr("create goal", err)
	}
	g.ID = id
	return nil
}

func (v *view) GetGoal(ctx context.Context, id int64) (*core.Goal, error) {
	row := v.q.QueryRowContext(ctx,
		`SELECT `+goalCols+` FROM goals WHERE id = ?`, id)

	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get goal", err)
	}
	return g, nil
}

func (v *view) queryGoals(ctx context.Context, query string, args ...any) ([]*core.Goal, error) {
	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query goals", err)
	}
	defer rows.Close()

	var goals []*core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, storeErr("scan goal", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate goals", err)
	}
	return goals, nil
}

func (v *view) Goals(ctx context.Context) ([]*core.Goal, error) {
	return v.queryGoals(ctx, `SELECT `+goalCols+` FROM goals ORDER BY id ASC`)
}

func (v *view) OpenGoals(ctx context.Context) ([]*core.Goal, error) {
	return v.queryGoals(ctx,
		`SELECT `+goalCols+` FROM goals WHERE achieved = FALSE ORDER BY id ASC`)
}

func (v *view) UpdateGoal(ctx context.Context, g *core.Goal) error {
	res, err := v.q.ExecContext(ctx, `
		UPDATE goals SET
			goal_type = ?, target_points = ?, project_name = ?, reward_description = ?,
			deadline = ?, achieved = ?, achieved_date = ?, reward_claimed = ?
		WHERE id = ?`,
		string(g.Type), g.TargetPoints, g.ProjectName, g.RewardDescription,
		dayArg(g.Deadline), g.Achieved, dayArg(g.AchievedDate), g.RewardClaimed,
		g.ID,
	)
	if err != nil {
		return storeErr("update goal", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("update goal", err)
	}
	if n == 0 {
		return core.ErrGoalNotFound
	}
	return nil
}

func (v *view) DeleteGoal(ctx context.Context, id int64) error {
	res, err := v.q.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete goal", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete goal", err)
	}
	if n == 0 {
		return core.ErrGoalNotFound
	}
	return nil
}

// =============================================================================
// REST DAYS
// =============================================================================

func (v *view) CreateRestDay(ctx context.Context, r *core.RestDay) error {
	res, err := v.q.ExecContext(ctx, `
		INSERT INTO rest_days (date, description, created_at)
		VALUES (?, ?, ?)`,
		r.Date.String(), r.Description, timeArg(r.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return &core.InvalidArgumentError{
			Field:  "date",
			Value:  r.Date.String(),
			Reason: "rest day already exists",
		}
	}
	if err != nil {
		return storeErr("create rest day", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return storeErr("create rest day", err)
	}
	r.ID = id
	return nil
}

func (v *view) RestDays(ctx context.Context) ([]*core.RestDay, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, date, description, created_at FROM rest_days
		ORDER BY date ASC`)
	if err != nil {
		return nil, storeErr("query rest days", err)
	}
	defer rows.Close()

	var days []*core.RestDay
	for rows.Next() {
		var (
			r         core.RestDay
			date      string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &date, &r.Description, &createdAt); err != nil {
			return nil, storeErr("scan rest day", err)
		}
		r.Date, _ = core.ParseDay(date)
		r.CreatedAt = parseTime(createdAt)
		days = append(days, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate rest days", err)
	}
	return days, nil
}

func (v *view) IsRestDay(ctx context.Context, d core.Day) (bool, error) {
	var exists bool
	err := v.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM rest_days WHERE date = ?)`, d.String(),
	).Scan(&exists)
	if err != nil {
		return false, storeErr("check rest day", err)
	}
	return exists, nil
}

func (v *view) DeleteRestDay(ctx context.Context, id int64) error {
	res, err := v.q.ExecContext(ctx, `DELETE FROM rest_days WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete rest day", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete rest day", err)
	}
	if n == 0 {
		return core.ErrRestDayNotFound
	}
	return nil
}

// =============================================================================
// BACKUPS
// =============================================================================

const backupCols = `id, filename, created_at, size_bytes, kind, uploaded_offsite`

func scanBackup(sc scanner) (*core.Backup, error) {
	var (
		b         core.Backup
		createdAt string
	)
	err := sc.Scan(&b.ID, &b.Filename, &createdAt, &b.SizeBytes, &b.Kind, &b.UploadedOffsite)
	if err != nil {
		return nil, err
	}
	b.CreatedAt = parseTime(createdAt)
	return &b, nil
}

func (v *view) CreateBackup(ctx context.Context, b *core.Backup) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO backups (id, filename, created_at, size_bytes, kind, uploaded_offsite)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.Filename, timeArg(b.CreatedAt), b.SizeBytes, string(b.Kind), b.UploadedOffsite,
	)
	if err != nil {
		return storeErr("create backup", err)
	}
	return nil
}

func (v *view) GetBackup(ctx context.Context, id string) (*core.Backup, error) {
	row := v.q.QueryRowContext(ctx,
		`SELECT `+backupCols+` FROM backups WHERE id = ?`, id)

	b, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get backup", err)
	}
	return b, nil
}

// Backups returns backup records newest first. RFC3339 strings sort
// chronologically, so the text column orders correctly.
func (v *view) Backups(ctx context.Context) ([]*core.Backup, error) {
	rows, err := v.q.QueryContext(ctx,
		`SELECT `+backupCols+` FROM backups ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, storeErr("query backups", err)
	}
	defer rows.Close()

	var backups []*core.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, storeErr("scan backup", err)
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate backups", err)
	}
	return backups, nil
}

func (v *view) UpdateBackup(ctx context.Context, b *core.Backup) error {
	res, err := v.q.ExecContext(ctx, `
		UPDATE backups SET
			filename = ?, size_bytes = ?, kind = ?, uploaded_offsite = ?
		WHERE id = ?`,
		b.Filename, b.SizeBytes, string(b.Kind), b.UploadedOffsite, b.ID,
	)
	if err != nil {
		return storeErr("update backup", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("update backup", err)
	}
	if n == 0 {
		return core.ErrBackupNotFound
	}
	return nil
}

func (v *view) DeleteBackup(ctx context.Context, id string) error {
	res, err := v.q.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete backup", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete backup", err)
	}
	if n == 0 {
		return core.ErrBackupNotFound
	}
	return nil
}

// =============================================================================
// DIRECT (AUTO-COMMIT) ACCESS
// =============================================================================

func (s *Store) Settings(ctx context.Context) (*core.Settings, error) {
	s.mu.Lock() // may insert defaults on first access
	defer s.mu.Unlock()
	return s.view().Settings(ctx)
}

func (s *Store) SaveSettings(ctx context.Context, st *core.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveSettings(ctx, st)
}

func (s *Store) CreateGoal(ctx context.Context, g *core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateGoal(ctx, g)
}

func (s *Store) GetGoal(ctx context.Context, id int64) (*core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetGoal(ctx, id)
}

func (s *Store) Goals(ctx context.Context) ([]*core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().Goals(ctx)
}

func (s *Store) OpenGoals(ctx context.Context) ([]*core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().OpenGoals(ctx)
}

func (s *Store) UpdateGoal(ctx context.Context, g *core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateGoal(ctx, g)
}

func (s *Store) DeleteGoal(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteGoal(ctx, id)
}

func (s *Store) CreateRestDay(ctx context.Context, r *core.RestDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateRestDay(ctx, r)
}

func (s *Store) RestDays(ctx context.Context) ([]*core.RestDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().RestDays(ctx)
}

func (s *Store) IsRestDay(ctx context.Context, d core.Day) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().IsRestDay(ctx, d)
}

func (s *Store) DeleteRestDay(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteRestDay(ctx, id)
}

func (s *Store) CreateBackup(ctx context.Context, b *core.Backup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateBackup(ctx, b)
}

func (s *Store) GetBackup(ctx context.Context, id string) (*core.Backup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetBackup(ctx, id)
}

func (s *Store) Backups(ctx context.Context) ([]*core.Backup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().Backups(ctx)
}

func (s *Store) UpdateBackup(ctx context.Context, b *core.Backup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateBackup(ctx, b)
}

func (s *Store) DeleteBackup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteBackup(ctx, id)
}
