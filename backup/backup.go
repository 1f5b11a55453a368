/*
Package backup produces and manages point-in-time database copies.

PURPOSE:
  Snapshots the live store into timestamped files under the backup
  directory, records metadata rows, and prunes old files beyond
  backup_keep_local_count. The scheduler drives automatic backups;
  the API exposes manual ones.

FAILURE ISOLATION:
  Every error is wrapped in BackupFailure. A failed backup never
  affects core operations; the scheduler just retries on its next
  tick because last_backup_date only advances on success.
*/
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grindstone/engine/core"
)

// Service snapshots the store into local backup files.
type Service struct {
	store core.Store
	dir   string
	clock core.Clock
	log   *zap.Logger
}

func New(store core.Store, dir string, clock core.Clock, log *zap.Logger) *Service {
	return &Service{store: store, dir: dir, clock: clock, log: log}
}

// Dir is the directory backup files are written to.
func (s *Service) Dir() string { return s.dir }

func failure(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrBackupFailure, op, err)
}

// Create snapshots the database, records the metadata row, advances
// last_backup_date, and prunes files beyond the keep count.
func (s *Service) Create(ctx context.Context, kind core.BackupKind) (*core.Backup, error) {
	snap, ok := s.store.(core.SnapshotStore)
	if !ok {
		return nil, fmt.Errorf("%w: store cannot snapshot", core.ErrSnapshotUnsupported)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, failure("create backup dir", err)
	}

	now := s.clock.Now()
	filename := fmt.Sprintf("grindstone_%s_%s.db", kind, now.Format("20060102_150405"))
	path := filepath.Join(s.dir, filename)

	if err := snap.SnapshotTo(ctx, path); err != nil {
		return nil, failure("snapshot", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, failure("stat snapshot", err)
	}

	b := &core.Backup{
		ID:        uuid.NewString(),
		Filename:  filename,
		CreatedAt: now,
		SizeBytes: fi.Size(),
		Kind:      kind,
	}

	var pruned []string
	err = s.store.WithTx(ctx, func(tx core.Tx) error {
		if err := tx.CreateBackup(ctx, b); err != nil {
			return err
		}

		st, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		st.LastBackupDate = core.EffectiveDate(now, st)
		if err := tx.SaveSettings(ctx, st); err != nil {
			return err
		}

		pruned, err = s.pruneTx(ctx, tx, st.BackupKeepLocalCount)
		return err
	})
	if err != nil {
		// Metadata failed; don't leave an orphan file behind.
		os.Remove(path)
		return nil, failure("record backup", err)
	}

	// Files are removed after the metadata commit; a leftover file is
	// harmless, a dangling row is not.
	for _, name := range pruned {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			s.log.Warn("failed to remove pruned backup file",
				zap.String("filename", name), zap.Error(err))
		}
	}

	s.log.Info("backup created",
		zap.String("id", b.ID),
		zap.String("filename", filename),
		zap.String("kind", string(kind)),
		zap.Int64("size_bytes", b.SizeBytes),
		zap.Int("pruned", len(pruned)))
	return b, nil
}

// pruneTx deletes metadata rows beyond the keep count and returns the
// filenames whose files should go.
func (s *Service) pruneTx(ctx context.Context, tx core.Tx, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	backups, err := tx.Backups(ctx)
	if err != nil {
		return nil, err
	}
	if len(backups) <= keep {
		return nil, nil
	}

	var pruned []string
	for _, old := range backups[keep:] {
		if err := tx.DeleteBackup(ctx, old.ID); err != nil {
			return nil, err
		}
		pruned = append(pruned, old.Filename)
	}
	return pruned, nil
}

// List returns backup records, newest first.
func (s *Service) List(ctx context.Context) ([]*core.Backup, error) {
	return s.store.Backups(ctx)
}

// Get returns one backup record.
func (s *Service) Get(ctx context.Context, id string) (*core.Backup, error) {
	b, err := s.store.GetBackup(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, core.ErrBackupNotFound
	}
	return b, nil
}

// Path resolves a backup's on-disk file for download.
func (s *Service) Path(ctx context.Context, id string) (string, *core.Backup, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}

	path := filepath.Join(s.dir, b.Filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("%w: file %s missing", core.ErrBackupNotFound, b.Filename)
		}
		return "", nil, failure("stat backup file", err)
	}
	return path, b, nil
}

// Delete removes a backup record and its file.
func (s *Service) Delete(ctx context.Context, id string) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteBackup(ctx, id); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, b.Filename)); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove backup file",
			zap.String("filename", b.Filename), zap.Error(err))
	}

	s.log.Info("backup deleted", zap.String("id", id), zap.String("filename", b.Filename))
	return nil
}

// MarkUploaded flags a backup as copied offsite.
func (s *Service) MarkUploaded(ctx context.Context, id string, uploaded bool) (*core.Backup, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	b.UploadedOffsite = uploaded
	if err := s.store.UpdateBackup(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}
