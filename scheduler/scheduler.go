/*
scheduler.go - Clock-driven background jobs

PURPOSE:
  Runs the three jobs that keep a day moving without manual input:
  finalizing past days (auto_penalty), building today's plan
  (auto_roll), and snapshotting the database (auto_backup).

DESIGN:
  - A single cron entry fires every minute; each job re-checks its own
    trigger (enabled flag, time of day, date token) and runs at most
    once per effective day.
  - The date tokens in settings (last_penalty_date, last_roll_date,
    last_backup_date) make every job idempotent: a tick that finds its
    token current does nothing, so restarts, missed minutes and manual
    triggers are all harmless.
  - Errors never advance a token; the failing job retries on the next
    tick, and repeated identical failures flip it into an error state
    visible through Status.

USAGE:
  sched := scheduler.New(store, engine, planner, backups, clock, logger)
  sched.Start()
  // ... later
  sched.Stop(ctx)

SEE ALSO:
  - scoring/engine.go: FinalizeThrough (auto_penalty)
  - planner/planner.go: Roll (auto_roll)
  - backup/backup.go: Create (auto_backup)
*/
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/grindstone/engine/backup"
	"github.com/grindstone/engine/core"
	"github.com/grindstone/engine/planner"
	"github.com/grindstone/engine/scoring"
)

// Job names, as reported by Status and accepted by RunNow.
const (
	JobPenalty = "auto_penalty"
	JobRoll    = "auto_roll"
	JobBackup  = "auto_backup"
)

var jobNames = []string{JobPenalty, JobRoll, JobBackup}

// A job enters the error state after this many identical failures in a
// row. A single transient failure (locked file, fsync hiccup) stays
// quiet; the same error twice means something needs attention.
const errorStateThreshold = 2

// Scheduler evaluates the three background jobs once per minute.
type Scheduler struct {
	store   core.Store
	engine  *scoring.Engine
	planner *planner.Planner
	backups *backup.Service
	clock   core.Clock
	log     *zap.Logger

	cron       *cron.Cron
	wg         sync.WaitGroup
	mu         sync.Mutex
	jobs       map[string]*jobState
	registered bool
	running    bool
	startedAt  time.Time
}

type jobState struct {
	totalChecks     int64
	totalRuns       int64
	lastCheck       time.Time
	lastRun         time.Time
	lastError       string
	lastErrorAt     time.Time
	consecutiveErrs int
}

// JobStatus is a point-in-time snapshot of one job.
type JobStatus struct {
	Name            string
	State           string // "ok" or "error"
	TotalChecks     int64
	TotalRuns       int64
	LastCheck       time.Time
	LastRun         time.Time
	LastError       string
	LastErrorAt     time.Time
	ConsecutiveErrs int
	NextFire        time.Time
}

// Status describes the scheduler and all of its jobs.
type Status struct {
	Running   bool
	StartedAt time.Time
	Jobs      []JobStatus
}

// New creates a scheduler. The cron instance skips a tick when the
// previous one is still running, so a slow snapshot cannot pile up
// overlapping evaluations.
func New(store core.Store, engine *scoring.Engine, pl *planner.Planner, backups *backup.Service, clock core.Clock, log *zap.Logger) *Scheduler {
	return &Scheduler{
		store:   store,
		engine:  engine,
		planner: pl,
		backups: backups,
		clock:   clock,
		log:     log,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs: map[string]*jobState{
			JobPenalty: {},
			JobRoll:    {},
			JobBackup:  {},
		},
	}
}

// ==========================================
// LIFECYCLE
// ==========================================

// Start registers the minute tick and begins evaluation. An evaluation
// also runs immediately: a process restarted after its trigger times
// must not wait out the next minute boundary.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if !s.registered {
		if _, err := s.cron.AddFunc("* * * * *", s.tick); err != nil {
			return err
		}
		s.registered = true
	}
	s.cron.Start()
	s.running = true
	s.startedAt = s.clock.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick()
	}()

	s.log.Info("scheduler started")
	return nil
}

// Stop halts the tick loop and waits for in-flight evaluations to
// finish, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow evaluates one job immediately, skipping its enabled flag and
// time-of-day gate. The date token still applies: forcing a job whose
// token is current is a no-op, reported as executed=false.
func (s *Scheduler) RunNow(ctx context.Context, name string) (bool, error) {
	now := s.clock.Now()
	switch name {
	case JobPenalty:
		return s.checkPenalty(ctx, now, true)
	case JobRoll:
		return s.checkRoll(ctx, now, true)
	case JobBackup:
		return s.checkBackup(ctx, now, true)
	default:
		return false, &core.InvalidArgumentError{Field: "job", Value: name, Reason: "unknown job name"}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	now := s.clock.Now()

	s.checkPenalty(ctx, now, false)
	s.checkRoll(ctx, now, false)
	s.checkBackup(ctx, now, false)
}

// ==========================================
// JOBS
// ==========================================

// checkPenalty finalizes every unfinalized day up to yesterday once
// the penalty time has passed.
func (s *Scheduler) checkPenalty(ctx context.Context, now time.Time, force bool) (bool, error) {
	s.beginCheck(JobPenalty, now)

	st, err := s.store.Settings(ctx)
	if err != nil {
		return false, s.fail(JobPenalty, err)
	}
	if !force {
		if !st.AutoPenaltiesEnabled {
			return false, nil
		}
		due, err := clockReached(now, st.PenaltyTime)
		if err != nil {
			return false, s.fail(JobPenalty, err)
		}
		if !due {
			return false, nil
		}
	}
	eff := core.EffectiveDate(now, st)
	if !st.LastPenaltyDate.IsZero() && !st.LastPenaltyDate.Before(eff.AddDays(-1)) {
		return false, nil // already finalized through yesterday
	}

	var days int
	err = s.store.WithTx(ctx, func(tx core.Tx) error {
		cur, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		n, err := s.engine.FinalizeThrough(ctx, tx, cur, core.EffectiveDate(now, cur))
		if err != nil {
			return err
		}
		days = n
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrAlreadyFinalized) {
			return false, nil // another writer got there between check and commit
		}
		return false, s.fail(JobPenalty, err)
	}

	s.recordRun(JobPenalty, now)
	s.log.Info("automatic finalization applied",
		zap.Int("days", days),
		zap.Stringer("through", eff.AddDays(-1)))
	return true, nil
}

// checkRoll builds today's plan once the auto-roll time has passed.
func (s *Scheduler) checkRoll(ctx context.Context, now time.Time, force bool) (bool, error) {
	s.beginCheck(JobRoll, now)

	st, err := s.store.Settings(ctx)
	if err != nil {
		return false, s.fail(JobRoll, err)
	}
	if !force {
		if !st.AutoRollEnabled {
			return false, nil
		}
		due, err := clockReached(now, st.AutoRollTime)
		if err != nil {
			return false, s.fail(JobRoll, err)
		}
		if !due {
			return false, nil
		}
	}
	eff := core.EffectiveDate(now, st)
	if !st.LastRollDate.IsZero() && !st.LastRollDate.Before(eff) {
		return false, nil // today's plan already exists
	}

	// Flag the attempt before rolling. If the roll fails or the process
	// dies the flag survives, and the UI can fall back to prompting for
	// a manual roll. A successful Roll clears it in the same transaction
	// that sets last_roll_date.
	if err := s.setPendingRoll(ctx, true); err != nil {
		return false, s.fail(JobRoll, err)
	}

	res, err := s.planner.Roll(ctx, nil)
	if err != nil {
		if errors.Is(err, core.ErrRollAlreadyDone) {
			// Raced a manual roll. The flag must not stick around.
			if cerr := s.setPendingRoll(ctx, false); cerr != nil {
				return false, s.fail(JobRoll, cerr)
			}
			return false, nil
		}
		return false, s.fail(JobRoll, err)
	}

	s.recordRun(JobRoll, now)
	s.log.Info("automatic roll completed",
		zap.Stringer("date", res.Date),
		zap.Int("tasks", res.TasksPlanned),
		zap.Int("habits", res.HabitsTotal))
	return true, nil
}

// checkBackup snapshots the database once the backup time has passed
// and the configured interval since the last backup has elapsed.
func (s *Scheduler) checkBackup(ctx context.Context, now time.Time, force bool) (bool, error) {
	s.beginCheck(JobBackup, now)

	st, err := s.store.Settings(ctx)
	if err != nil {
		return false, s.fail(JobBackup, err)
	}
	if !force {
		if !st.AutoBackupEnabled {
			return false, nil
		}
		due, err := clockReached(now, st.BackupTime)
		if err != nil {
			return false, s.fail(JobBackup, err)
		}
		if !due {
			return false, nil
		}
	}
	eff := core.EffectiveDate(now, st)
	if !st.LastBackupDate.IsZero() && core.DaysBetween(st.LastBackupDate, eff) < st.BackupIntervalDays {
		return false, nil
	}

	b, err := s.backups.Create(ctx, core.BackupAuto)
	if err != nil {
		return false, s.fail(JobBackup, err)
	}

	s.recordRun(JobBackup, now)
	s.log.Info("automatic backup created",
		zap.String("file", b.Filename),
		zap.Int64("bytes", b.SizeBytes))
	return true, nil
}

func (s *Scheduler) setPendingRoll(ctx context.Context, v bool) error {
	return s.store.WithTx(ctx, func(tx core.Tx) error {
		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		if st.PendingRoll == v {
			return nil
		}
		st.PendingRoll = v
		return tx.SaveSettings(ctx, st)
	})
}

// ==========================================
// STATUS AND STATS
// ==========================================

// Status reports the scheduler state and a snapshot of every job.
func (s *Scheduler) Status(ctx context.Context) (*Status, error) {
	st, err := s.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := &Status{Running: s.running, StartedAt: s.startedAt}
	for _, name := range jobNames {
		j := s.jobs[name]
		js := JobStatus{
			Name:            name,
			State:           "ok",
			TotalChecks:     j.totalChecks,
			TotalRuns:       j.totalRuns,
			LastCheck:       j.lastCheck,
			LastRun:         j.lastRun,
			LastError:       j.lastError,
			LastErrorAt:     j.lastErrorAt,
			ConsecutiveErrs: j.consecutiveErrs,
			NextFire:        nextFire(now, st, name),
		}
		if j.consecutiveErrs >= errorStateThreshold {
			js.State = "error"
		}
		out.Jobs = append(out.Jobs, js)
	}
	return out, nil
}

func (s *Scheduler) beginCheck(name string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[name]
	j.totalChecks++
	j.lastCheck = now
}

func (s *Scheduler) recordRun(name string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[name]
	j.totalRuns++
	j.lastRun = now
	j.consecutiveErrs = 0
}

// fail records the error against the job and passes it through so
// RunNow callers see it. The last error message is kept after a later
// success; only the consecutive counter resets.
func (s *Scheduler) fail(name string, err error) error {
	s.mu.Lock()
	j := s.jobs[name]
	msg := err.Error()
	if msg == j.lastError {
		j.consecutiveErrs++
	} else {
		j.consecutiveErrs = 1
	}
	j.lastError = msg
	j.lastErrorAt = s.clock.Now()
	n := j.consecutiveErrs
	s.mu.Unlock()

	s.log.Warn("scheduled job failed",
		zap.String("job", name),
		zap.Int("consecutive", n),
		zap.Error(err))
	return err
}

// clockReached reports whether now's local time of day is at or past
// the "HH:MM" trigger.
func clockReached(now time.Time, trigger string) (bool, error) {
	ct, err := core.ParseClock(trigger)
	if err != nil {
		return false, err
	}
	return core.MinuteOfDay(now) >= ct.Minutes(), nil
}

// nextFire computes the next instant a job's time gate opens. For the
// backup job the configured interval can push it past the next HH:MM.
// Zero means the job is disabled or misconfigured.
func nextFire(now time.Time, st *core.Settings, name string) time.Time {
	var enabled bool
	var at string
	switch name {
	case JobPenalty:
		enabled, at = st.AutoPenaltiesEnabled, st.PenaltyTime
	case JobRoll:
		enabled, at = st.AutoRollEnabled, st.AutoRollTime
	case JobBackup:
		enabled, at = st.AutoBackupEnabled, st.BackupTime
	}
	if !enabled {
		return time.Time{}
	}
	ct, err := core.ParseClock(at)
	if err != nil {
		return time.Time{}
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), ct.Hour, ct.Minute, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	if name == JobBackup && !st.LastBackupDate.IsZero() && st.BackupIntervalDays > 1 {
		due := st.LastBackupDate.AddDays(st.BackupIntervalDays)
		dueAt := time.Date(due.Year(), due.Month(), due.Day(), ct.Hour, ct.Minute, 0, 0, now.Location())
		if dueAt.After(next) {
			next = dueAt
		}
	}
	return next
}
