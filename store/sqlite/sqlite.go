/*
Package sqlite provides the SQLite-backed implementation of core.Store.

PURPOSE:
  The engine's only production store. A single embedded database file
  holds work items, day ledgers, habit skips, goals, rest days, backup
  metadata, and the settings singleton.

KEY TABLES:
  work_items:  Tasks and habits (habits carry recurrence columns)
  day_ledgers: One scoring row per effective date
  habit_skips: Missed habit occurrences pinned to their original date
  goals:       Long-horizon reward targets
  rest_days:   Penalty-exempt dates
  backups:     Backup metadata (files live in the backup directory)
  settings:    Singleton row (id=1), lazily created with defaults

TRANSACTIONS:
  Direct Store calls auto-commit. WithTx wraps a *sql.Tx and hands the
  caller the same typed surface; compound engine flows (complete, roll,
  finalize) run entirely inside it.

CONCURRENCY:
  sync.RWMutex plus a single pooled connection. SQLite allows one writer
  at a time anyway, and pinning the pool to one connection keeps
  ":memory:" databases coherent across transactions.

WAL MODE:
  Opened with WAL and foreign keys on. Readers don't block the writer,
  and depends_on edges null out when their target is deleted.

MIGRATION:
  migrate() creates the current schema; applyAdditive() upgrades older
  databases by adding columns with defaults. Both run inside New(),
  before any service sees the store.

SEE ALSO:
  - core/store.go: Interface definitions
  - backup package: Uses SnapshotTo for consistent file copies
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/grindstone/engine/core"
)

// Store implements core.Store and core.SnapshotStore.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ core.Store         = (*Store)(nil)
	_ core.SnapshotStore = (*Store)(nil)
)

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; also keeps :memory: databases on one connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Work items (tasks and habits)
	CREATE TABLE IF NOT EXISTS work_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		description TEXT NOT NULL,
		project TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0,
		energy INTEGER NOT NULL DEFAULT 0,
		urgency INTEGER NOT NULL DEFAULT 0,
		is_habit BOOLEAN NOT NULL DEFAULT FALSE,
		is_today BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'pending',
		due_date TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		time_spent INTEGER NOT NULL DEFAULT 0,
		depends_on INTEGER REFERENCES work_items(id) ON DELETE SET NULL,
		habit_type TEXT NOT NULL DEFAULT '',
		recurrence_type TEXT NOT NULL DEFAULT 'none',
		recurrence_interval INTEGER NOT NULL DEFAULT 0,
		recurrence_weekdays TEXT NOT NULL DEFAULT '',
		streak INTEGER NOT NULL DEFAULT 0,
		last_completed TEXT,
		daily_target INTEGER NOT NULL DEFAULT 1,
		daily_completed INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_items_status ON work_items(status);

	-- Roll hot path: pending backlog ordered by urgency
	CREATE INDEX IF NOT EXISTS idx_items_pending_urgency
		ON work_items(status, is_habit, urgency DESC);

	-- Habit due-date scans (today's habits, overdue purge)
	CREATE INDEX IF NOT EXISTS idx_items_habit_due
		ON work_items(is_habit, due_date);

	CREATE INDEX IF NOT EXISTS idx_items_today
		ON work_items(is_today) WHERE is_today;

	CREATE INDEX IF NOT EXISTS idx_items_depends_on
		ON work_items(depends_on) WHERE depends_on IS NOT NULL;

	-- Day ledgers (one row per effective date)
	CREATE TABLE IF NOT EXISTS day_ledgers (
		date TEXT PRIMARY KEY,
		points_earned INTEGER NOT NULL DEFAULT 0,
		points_penalty INTEGER NOT NULL DEFAULT 0,
		tasks_completed INTEGER NOT NULL DEFAULT 0,
		tasks_planned INTEGER NOT NULL DEFAULT 0,
		habits_completed INTEGER NOT NULL DEFAULT 0,
		habits_total INTEGER NOT NULL DEFAULT 0,
		completion_rate REAL NOT NULL DEFAULT 0,
		penalty_streak INTEGER NOT NULL DEFAULT 0
	);

	-- Missed habit occurrences recorded at purge time.
	-- UNIQUE(item_id, date) makes re-purging idempotent.
	CREATE TABLE IF NOT EXISTS habit_skips (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		habit_type TEXT NOT NULL,
		UNIQUE(item_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_skips_date ON habit_skips(date);

	-- Goals
	CREATE TABLE IF NOT EXISTS goals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		goal_type TEXT NOT NULL,
		target_points INTEGER NOT NULL DEFAULT 0,
		project_name TEXT NOT NULL DEFAULT '',
		reward_description TEXT NOT NULL DEFAULT '',
		deadline TEXT,
		achieved BOOLEAN NOT NULL DEFAULT FALSE,
		achieved_date TEXT,
		reward_claimed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Rest days
	CREATE TABLE IF NOT EXISTS rest_days (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Backup metadata
	CREATE TABLE IF NOT EXISTS backups (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL DEFAULT 'manual',
		uploaded_offsite BOOLEAN NOT NULL DEFAULT FALSE
	);

	-- Settings singleton (id=1)
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		max_tasks_per_day INTEGER NOT NULL,
		critical_days INTEGER NOT NULL,
		points_per_task_base INTEGER NOT NULL,
		points_per_habit_base INTEGER NOT NULL,
		routine_points_fixed INTEGER NOT NULL,
		energy_mult_base REAL NOT NULL,
		energy_mult_step REAL NOT NULL,
		streak_log_factor REAL NOT NULL,
		max_streak_bonus_days INTEGER NOT NULL,
		minutes_per_energy_unit INTEGER NOT NULL,
		min_work_time_seconds INTEGER NOT NULL,
		time_efficiency_weight REAL NOT NULL,
		completion_bonus_full REAL NOT NULL,
		completion_bonus_good REAL NOT NULL,
		idle_penalty INTEGER NOT NULL,
		incomplete_day_penalty INTEGER NOT NULL,
		incomplete_day_threshold REAL NOT NULL,
		incomplete_threshold_severe REAL NOT NULL,
		incomplete_penalty_severe INTEGER NOT NULL,
		missed_habit_penalty_base INTEGER NOT NULL,
		progressive_penalty_factor REAL NOT NULL,
		progressive_penalty_max REAL NOT NULL,
		penalty_streak_reset_days INTEGER NOT NULL,
		day_start_enabled BOOLEAN NOT NULL,
		day_start_time TEXT NOT NULL,
		roll_available_time TEXT NOT NULL,
		auto_penalties_enabled BOOLEAN NOT NULL,
		penalty_time TEXT NOT NULL,
		auto_roll_enabled BOOLEAN NOT NULL,
		auto_roll_time TEXT NOT NULL,
		auto_backup_enabled BOOLEAN NOT NULL,
		backup_time TEXT NOT NULL,
		backup_interval_days INTEGER NOT NULL,
		backup_keep_local_count INTEGER NOT NULL,
		last_roll_date TEXT,
		last_penalty_date TEXT,
		last_backup_date TEXT,
		pending_roll BOOLEAN NOT NULL DEFAULT FALSE,
		active_item_id INTEGER
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.applyAdditive()
}

// applyAdditive upgrades databases created before a column existed.
// Additions only, each with a default, so upgrades never rewrite rows.
func (s *Store) applyAdditive() error {
	additions := []struct {
		table, column, ddl string
	}{
		{"work_items", "urgency",
			"ALTER TABLE work_items ADD COLUMN urgency INTEGER NOT NULL DEFAULT 0"},
		{"work_items", "daily_target",
			"ALTER TABLE work_items ADD COLUMN daily_target INTEGER NOT NULL DEFAULT 1"},
		{"work_items", "daily_completed",
			"ALTER TABLE work_items ADD COLUMN daily_completed INTEGER NOT NULL DEFAULT 0"},
		{"day_ledgers", "habits_total",
			"ALTER TABLE day_ledgers ADD COLUMN habits_total INTEGER NOT NULL DEFAULT 0"},
		{"settings", "pending_roll",
			"ALTER TABLE settings ADD COLUMN pending_roll BOOLEAN NOT NULL DEFAULT FALSE"},
		{"settings", "active_item_id",
			"ALTER TABLE settings ADD COLUMN active_item_id INTEGER"},
		{"backups", "uploaded_offsite",
			"ALTER TABLE backups ADD COLUMN uploaded_offsite BOOLEAN NOT NULL DEFAULT FALSE"},
	}

	for _, a := range additions {
		has, err := s.hasColumn(a.table, a.column)
		if err != nil {
			return err
		}
		if !has {
			if _, err := s.db.Exec(a.ddl); err != nil {
				return fmt.Errorf("failed to add %s.%s: %w", a.table, a.column, err)
			}
		}
	}
	return nil
}

func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &primaryKey); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// SnapshotTo writes a consistent point-in-time copy of the database to
// path using VACUUM INTO, safe against the live WAL.
func (s *Store) SnapshotTo(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

// Reset wipes every table. The demo scenario loader uses it; nothing in
// the engine does.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", core.ErrStoreFailure, err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"habit_skips", "work_items", "day_ledgers", "goals", "rest_days", "backups", "settings",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("%w: failed to clear %s: %v", core.ErrStoreFailure, table, err)
		}
	}
	// sqlite_sequence only exists after the first AUTOINCREMENT insert.
	tx.ExecContext(ctx, "DELETE FROM sqlite_sequence")

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %v", core.ErrStoreFailure, err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS (core.Store interface)
// =============================================================================

// WithTx executes fn within one database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx core.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", core.ErrStoreFailure, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&view{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %v", core.ErrStoreFailure, err)
	}
	return nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// view implements core.Tx against either the raw connection or an open
// transaction. All query logic lives on view; Store methods delegate.
type view struct {
	q dbtx
}

var _ core.Tx = (*view)(nil)

// auto-commit view over the raw connection, used by direct Store calls
func (s *Store) view() *view { return &view{q: s.db} }

// =============================================================================
// ENCODING HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

// dayArg encodes a Day as YYYY-MM-DD, NULL when zero.
func dayArg(d core.Day) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func parseDay(ns sql.NullString) core.Day {
	if !ns.Valid || ns.String == "" {
		return core.Day{}
	}
	d, _ := core.ParseDay(ns.String)
	return d
}

func timeArg(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func timePtrArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeArg(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

// encodeWeekdays packs the weekday set as "0,2,4". The set form stays in
// core; only the column encoding lives here.
func encodeWeekdays(wds []time.Weekday) string {
	if len(wds) == 0 {
		return ""
	}
	parts := make([]string, len(wds))
	for i, wd := range wds {
		parts[i] = strconv.Itoa(int(wd))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(s string) []time.Weekday {
	if s == "" {
		return nil
	}
	var wds []time.Weekday
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		wds = append(wds, time.Weekday(n))
	}
	return wds
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrStoreFailure, op, err)
}
