package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/grindstone/engine/core"
)

// itemCols is the canonical column order shared by every work item query.
// Keep in sync with scanItem.
const itemCols = `id, description, project, priority, energy, urgency, is_habit, is_today,
	status, due_date, created_at, started_at, completed_at, time_spent, depends_on,
	habit_type, recurrence_type, recurrence_interval, recurrence_weekdays,
	streak, last_completed, daily_target, daily_completed`

func scanItem(sc scanner) (*core.WorkItem, error) {
	var (
		w         core.WorkItem
		due       sql.NullString
		createdAt string
		startedAt sql.NullString
		doneAt    sql.NullString
		dependsOn sql.NullInt64
		weekdays  string
		lastDone  sql.NullString
	)
	err := sc.Scan(
		&w.ID, &w.Description, &w.Project, &w.Priority, &w.Energy, &w.Urgency,
		&w.IsHabit, &w.IsToday, &w.Status, &due, &createdAt, &startedAt,
		&doneAt, &w.TimeSpent, &dependsOn, &w.HabitType,
		&w.Recurrence.Type, &w.Recurrence.Interval, &weekdays,
		&w.Streak, &lastDone, &w.DailyTarget, &w.DailyCompleted,
	)
	if err != nil {
		return nil, err
	}

	w.DueDate = parseDay(due)
	w.CreatedAt = parseTime(createdAt)
	w.StartedAt = parseTimePtr(startedAt)
	w.CompletedAt = parseTimePtr(doneAt)
	if dependsOn.Valid {
		id := dependsOn.Int64
		w.DependsOn = &id
	}
	w.Recurrence.Weekdays = decodeWeekdays(weekdays)
	w.LastCompleted = parseDay(lastDone)
	return &w, nil
}

func (v *view) queryItems(ctx context.Context, query string, args ...any) ([]*core.WorkItem, error) {
	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query items", err)
	}
	defer rows.Close()

	var items []*core.WorkItem
	for rows.Next() {
		w, err := scanItem(rows)
		if err != nil {
			return nil, storeErr("scan item", err)
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate items", err)
	}
	return items, nil
}

// =============================================================================
// WORK ITEMS
// =============================================================================

func (v *view) CreateItem(ctx context.Context, w *core.WorkItem) error {
	res, err := v.q.ExecContext(ctx, `
		INSERT INTO work_items (
			description, project, priority, energy, urgency, is_habit, is_today,
			status, due_date, created_at, started_at, completed_at, time_spent,
			depends_on, habit_type, recurrence_type, recurrence_interval,
			recurrence_weekdays, streak, last_completed, daily_target, daily_completed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.Description, w.Project, w.Priority, w.Energy, w.Urgency, w.IsHabit, w.IsToday,
		string(w.Status), dayArg(w.DueDate), timeArg(w.CreatedAt), timePtrArg(w.StartedAt),
		timePtrArg(w.CompletedAt), w.TimeSpent, w.DependsOn, string(w.HabitType),
		string(w.Recurrence.Type), w.Recurrence.Interval, encodeWeekdays(w.Recurrence.Weekdays),
		w.Streak, dayArg(w.LastCompleted), w.DailyTarget, w.DailyCompleted,
	)
	if err != nil {
		return storeErr("create item", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return storeErr("create item", err)
	}
	w.ID = id
	return nil
}

func (v *view) GetItem(ctx context.Context, id int64) (*core.WorkItem, error) {
	row := v.q.QueryRowContext(ctx,
		`SELECT `+itemCols+` FROM work_items WHERE id = ?`, id)

	w, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get item", err)
	}
	return w, nil
}

func (v *view) UpdateItem(ctx context.Context, w *core.WorkItem) error {
	res, err := v.q.ExecContext(ctx, `
		UPDATE work_items SET
			description = ?, project = ?, priority = ?, energy = ?, urgency = ?,
			is_habit = ?, is_today = ?, status = ?, due_date = ?, started_at = ?,
			completed_at = ?, time_spent = ?, depends_on = ?, habit_type = ?,
			recurrence_type = ?, recurrence_interval = ?, recurrence_weekdays = ?,
			streak = ?, last_completed = ?, daily_target = ?, daily_completed = ?
		WHERE id = ?`,
		w.Description, w.Project, w.Priority, w.Energy, w.Urgency,
		w.IsHabit, w.IsToday, string(w.Status), dayArg(w.DueDate), timePtrArg(w.StartedAt),
		timePtrArg(w.CompletedAt), w.TimeSpent, w.DependsOn, string(w.HabitType),
		string(w.Recurrence.Type), w.Recurrence.Interval, encodeWeekdays(w.Recurrence.Weekdays),
		w.Streak, dayArg(w.LastCompleted), w.DailyTarget, w.DailyCompleted,
		w.ID,
	)
	if err != nil {
		return storeErr("update item", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("update item", err)
	}
	if n == 0 {
		return core.ErrItemNotFound
	}
	return nil
}

func (v *view) DeleteItem(ctx context.Context, id int64) error {
	res, err := v.q.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete item", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete item", err)
	}
	if n == 0 {
		return core.ErrItemNotFound
	}
	return nil
}

func (v *view) ListItems(ctx context.Context, status core.Status) ([]*core.WorkItem, error) {
	if status == "" {
		return v.queryItems(ctx,
			`SELECT `+itemCols+` FROM work_items ORDER BY id ASC`)
	}
	return v.queryItems(ctx,
		`SELECT `+itemCols+` FROM work_items WHERE status = ? ORDER BY id ASC`, string(status))
}

func (v *view) PendingTasks(ctx context.Context) ([]*core.WorkItem, error) {
	return v.queryItems(ctx, `
		SELECT `+itemCols+` FROM work_items
		WHERE status = 'pending' AND is_habit = FALSE
		ORDER BY urgency DESC, id ASC`)
}

func (v *view) TodayTasks(ctx context.Context) ([]*core.WorkItem, error) {
	return v.queryItems(ctx, `
		SELECT `+itemCols+` FROM work_items
		WHERE is_today = TRUE AND is_habit = FALSE
		ORDER BY urgency DESC, id ASC`)
}

func (v *view) ActiveItem(ctx context.Context) (*core.WorkItem, error) {
	row := v.q.QueryRowContext(ctx, `
		SELECT `+itemCols+` FROM work_items
		WHERE status = 'active'
		ORDER BY id ASC LIMIT 1`)

	w, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get active item", err)
	}
	return w, nil
}

func (v *view) Habits(ctx context.Context) ([]*core.WorkItem, error) {
	return v.queryItems(ctx, `
		SELECT `+itemCols+` FROM work_items
		WHERE is_habit = TRUE
		ORDER BY id ASC`)
}

func (v *view) HabitsDueOn(ctx context.Context, d core.Day) ([]*core.WorkItem, error) {
	return v.queryItems(ctx, `
		SELECT `+itemCols+` FROM work_items
		WHERE is_habit = TRUE AND due_date = ?
		  AND status NOT IN ('completed', 'skipped')
		ORDER BY id ASC`, d.String())
}

func (v *view) HabitsDueBefore(ctx context.Context, d core.Day) ([]*core.WorkItem, error) {
	return v.queryItems(ctx, `
		SELECT `+itemCols+` FROM work_items
		WHERE is_habit = TRUE AND due_date IS NOT NULL AND due_date < ?
		  AND status NOT IN ('completed', 'skipped')
		ORDER BY due_date ASC, id ASC`, d.String())
}

func (v *view) ItemsInProject(ctx context.Context, project string) ([]*core.WorkItem, error) {
	return v.queryItems(ctx, `
		SELECT `+itemCols+` FROM work_items
		WHERE project = ?
		ORDER BY id ASC`, project)
}

func (v *view) Dependents(ctx context.Context, id int64) ([]*core.WorkItem, error) {
	return v.queryItems(ctx, `
		SELECT `+itemCols+` FROM work_items
		WHERE depends_on = ?
		ORDER BY id ASC`, id)
}

func (v *view) ClearToday(ctx context.Context) error {
	_, err := v.q.ExecContext(ctx,
		`UPDATE work_items SET is_today = FALSE WHERE is_today = TRUE AND is_habit = FALSE`)
	if err != nil {
		return storeErr("clear today", err)
	}
	return nil
}

// =============================================================================
// DAY LEDGERS
// =============================================================================

const ledgerCols = `date, points_earned, points_penalty, tasks_completed, tasks_planned,
	habits_completed, habits_total, completion_rate, penalty_streak`

func scanLedger(sc scanner) (*core.DayLedger, error) {
	var (
		l    core.DayLedger
		date string
	)
	err := sc.Scan(
		&date, &l.PointsEarned, &l.PointsPenalty, &l.TasksCompleted, &l.TasksPlanned,
		&l.HabitsCompleted, &l.HabitsTotal, &l.CompletionRate, &l.PenaltyStreak,
	)
	if err != nil {
		return nil, err
	}
	l.Date, _ = core.ParseDay(date)
	return &l, nil
}

func (v *view) Ledger(ctx context.Context, d core.Day) (*core.DayLedger, error) {
	row := v.q.QueryRowContext(ctx,
		`SELECT `+ledgerCols+` FROM day_ledgers WHERE date = ?`, d.String())

	l, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get ledger", err)
	}
	return l, nil
}

func (v *view) SaveLedger(ctx context.Context, l *core.DayLedger) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO day_ledgers (
			date, points_earned, points_penalty, tasks_completed, tasks_planned,
			habits_completed, habits_total, completion_rate, penalty_streak
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			points_earned = excluded.points_earned,
			points_penalty = excluded.points_penalty,
			tasks_completed = excluded.tasks_completed,
			tasks_planned = excluded.tasks_planned,
			habits_completed = excluded.habits_completed,
			habits_total = excluded.habits_total,
			completion_rate = excluded.completion_rate,
			penalty_streak = excluded.penalty_streak`,
		l.Date.String(), l.PointsEarned, l.PointsPenalty, l.TasksCompleted, l.TasksPlanned,
		l.HabitsCompleted, l.HabitsTotal, l.CompletionRate, l.PenaltyStreak,
	)
	if err != nil {
		return storeErr("save ledger", err)
	}
	return nil
}

func (v *view) LedgerRange(ctx context.Context, from, to core.Day) ([]*core.DayLedger, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT `+ledgerCols+` FROM day_ledgers
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC`, from.String(), to.String())
	if err != nil {
		return nil, storeErr("query ledgers", err)
	}
	defer rows.Close()

	var ledgers []*core.DayLedger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, storeErr("scan ledger", err)
		}
		ledgers = append(ledgers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate ledgers", err)
	}
	return ledgers, nil
}

func (v *view) TotalPoints(ctx context.Context) (int, error) {
	var total int
	err := v.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points_earned - points_penalty), 0) FROM day_ledgers`,
	).Scan(&total)
	if err != nil {
		return 0, storeErr("total points", err)
	}
	return total, nil
}

// =============================================================================
// HABIT SKIPS
// =============================================================================

func (v *view) RecordHabitSkip(ctx context.Context, skip *core.HabitSkip) error {
	// ON CONFLICT DO NOTHING keeps purge idempotent when a day is
	// re-processed.
	res, err := v.q.ExecContext(ctx, `
		INSERT INTO habit_skips (item_id, date, habit_type)
		VALUES (?, ?, ?)
		ON CONFLICT(item_id, date) DO NOTHING`,
		skip.ItemID, skip.Date.String(), string(skip.HabitType),
	)
	if err != nil {
		return storeErr("record habit skip", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		if id, err := res.LastInsertId(); err == nil {
			skip.ID = id
		}
	}
	return nil
}

func (v *view) HabitSkipsOn(ctx context.Context, d core.Day) ([]*core.HabitSkip, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, item_id, date, habit_type FROM habit_skips
		WHERE date = ?
		ORDER BY id ASC`, d.String())
	if err != nil {
		return nil, storeErr("query habit skips", err)
	}
	defer rows.Close()

	var skips []*core.HabitSkip
	for rows.Next() {
		var (
			skip core.HabitSkip
			date string
		)
		if err := rows.Scan(&skip.ID, &skip.ItemID, &date, &skip.HabitType); err != nil {
			return nil, storeErr("scan habit skip", err)
		}
		skip.Date, _ = core.ParseDay(date)
		skips = append(skips, &skip)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate habit skips", err)
	}
	return skips, nil
}

// =============================================================================
// DIRECT (AUTO-COMMIT) ACCESS
// =============================================================================

func (s *Store) CreateItem(ctx context.Context, w *core.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateItem(ctx, w)
}

func (s *Store) GetItem(ctx context.Context, id int64) (*core.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetItem(ctx, id)
}

func (s *Store) UpdateItem(ctx context.Context, w *core.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateItem(ctx, w)
}

func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteItem(ctx, id)
}

func (s *Store) ListItems(ctx context.Context, status core.Status) ([]*core.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListItems(ctx, status)
}

func (s *Store) PendingTasks(ctx context.Context) ([]*core.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().PendingTasks(ctx)
}

func (s *Store) TodayTasks(ctx context.Context) ([]*core.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().TodayTasks(ctx)
}

func (s *Store) ActiveItem(ctx context.Context) (*core.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ActiveItem(ctx)
}

func (s *Store) Habits(ctx context.Context) ([]*core.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().Habits(ctx)
}

func (s *Store) HabitsDueOn(ctx context.Context, d core.Day) ([]*core.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().HabitsDueOn(ctx, d)
}

func (s *Store) HabitsDueBefore(ctx context.Context, d core.Day) ([]*core.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().HabitsDueBefore(ctx, d)
}

func (s *Store) ItemsInProject(ctx context.Context, project string) ([]*core.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ItemsInProject(ctx, project)
}

func (s *Store) Dependents(ctx context.Context, id int64) ([]*core.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().Dependents(ctx, id)
}

func (s *Store) ClearToday(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ClearToday(ctx)
}

func (s *Store) Ledger(ctx context.Context, d core.Day) (*core.DayLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().Ledger(ctx, d)
}

func (s *Store) SaveLedger(ctx context.Context, l *core.DayLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveLedger(ctx, l)
}

func (s *Store) LedgerRange(ctx context.Context, from, to core.Day) ([]*core.DayLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().LedgerRange(ctx, from, to)
}

func (s *Store) TotalPoints(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().TotalPoints(ctx)
}

func (s *Store) RecordHabitSkip(ctx context.Context, skip *core.HabitSkip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().RecordHabitSkip(ctx, skip)
}

func (s *Store) HabitSkipsOn(ctx context.Context, d core.Day) ([]*core.HabitSkip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().HabitSkipsOn(ctx, d)
}
