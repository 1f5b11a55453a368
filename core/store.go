/*
store.go - Persistence interfaces

PURPOSE:
  Defines the transactional storage contract the engine runs on. The
  SQLite implementation lives in store/sqlite; services depend only on
  these interfaces.

TRANSACTIONS:
  Every method is atomic on its own. Compound flows (start/stop/complete,
  roll, finalize) run inside WithTx so the whole flow commits or rolls
  back as one unit. The Tx passed to the callback sees uncommitted
  writes of the same transaction.

MISSING ROWS:
  Get-style methods return (nil, nil) for missing rows. Services decide
  which sentinel (ErrItemNotFound, ...) a missing row maps to.

SEE ALSO:
  - store/sqlite/sqlite.go: The only production implementation
  - errors.go: ErrStoreFailure wrapping convention
*/
package core

import "context"

// Tx is the typed query surface, usable standalone (auto-commit) or
// inside WithTx (one shared transaction).
type Tx interface {
	// Work items
	CreateItem(ctx context.Context, w *WorkItem) error // assigns w.ID
	GetItem(ctx context.Context, id int64) (*WorkItem, error)
	UpdateItem(ctx context.Context, w *WorkItem) error
	DeleteItem(ctx context.Context, id int64) error
	ListItems(ctx context.Context, status Status) ([]*WorkItem, error) // status "" = all
	PendingTasks(ctx context.Context) ([]*WorkItem, error)            // non-habits, urgency desc, id asc
	TodayTasks(ctx context.Context) ([]*WorkItem, error)              // non-habits with is_today
	ActiveItem(ctx context.Context) (*WorkItem, error)
	Habits(ctx context.Context) ([]*WorkItem, error)
	HabitsDueOn(ctx context.Context, d Day) ([]*WorkItem, error)     // due_date == d, not completed/skipped
	HabitsDueBefore(ctx context.Context, d Day) ([]*WorkItem, error) // due_date < d, not completed/skipped
	ItemsInProject(ctx context.Context, project string) ([]*WorkItem, error)
	Dependents(ctx context.Context, id int64) ([]*WorkItem, error)
	ClearToday(ctx context.Context) error // is_today=false on all non-habits

	// Day ledger
	Ledger(ctx context.Context, d Day) (*DayLedger, error)
	SaveLedger(ctx context.Context, l *DayLedger) error // upsert by date
	LedgerRange(ctx context.Context, from, to Day) ([]*DayLedger, error)
	TotalPoints(ctx context.Context) (int, error) // Σ (earned − penalty) over all rows

	// Habit skips
	RecordHabitSkip(ctx context.Context, skip *HabitSkip) error
	HabitSkipsOn(ctx context.Context, d Day) ([]*HabitSkip, error)

	// Settings singleton
	Settings(ctx context.Context) (*Settings, error) // lazily created with defaults
	SaveSettings(ctx context.Context, s *Settings) error

	// Goals
	CreateGoal(ctx context.Context, g *Goal) error
	GetGoal(ctx context.Context, id int64) (*Goal, error)
	Goals(ctx context.Context) ([]*Goal, error)
	OpenGoals(ctx context.Context) ([]*Goal, error) // not yet achieved
	UpdateGoal(ctx context.Context, g *Goal) error
	DeleteGoal(ctx context.Context, id int64) error

	// Rest days
	CreateRestDay(ctx context.Context, r *RestDay) error
	RestDays(ctx context.Context) ([]*RestDay, error)
	IsRestDay(ctx context.Context, d Day) (bool, error)
	DeleteRestDay(ctx context.Context, id int64) error

	// Backups
	CreateBackup(ctx context.Context, b *Backup) error
	GetBackup(ctx context.Context, id string) (*Backup, error)
	Backups(ctx context.Context) ([]*Backup, error) // newest first
	UpdateBackup(ctx context.Context, b *Backup) error
	DeleteBackup(ctx context.Context, id string) error
}

// Store is a Tx that can also open real transactions.
type Store interface {
	Tx

	// WithTx runs fn inside one transaction. fn returning an error rolls
	// everything back; the error passes through unchanged.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// SnapshotStore is implemented by stores that can write a consistent
// point-in-time copy of themselves to a file. The backup service
// type-asserts for it and fails with ErrSnapshotUnsupported otherwise.
type SnapshotStore interface {
	SnapshotTo(ctx context.Context, path string) error
}
