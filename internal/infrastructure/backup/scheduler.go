package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
	"novaled/pkg/backup"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Collections are the durable store collections captured in a snapshot.
// Live records are excluded: they belong to open connections and would be
// stale on restore.
var Collections = []string{
	domain.UsersCollection,
	domain.AccountsCollection,
	domain.PostsCollection,
	domain.CooldownsCollection,
}

// Scheduler snapshots the store on an interval and prunes snapshots older
// than the retention window.
type Scheduler struct {
	backups   *backup.BackupService
	store     ports.SessionStore
	clock     clockwork.Clock
	interval  time.Duration
	retention time.Duration
	logger    *zap.SugaredLogger
}

type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

func NewScheduler(
	backups *backup.BackupService,
	store ports.SessionStore,
	clock clockwork.Clock,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		backups:   backups,
		store:     store,
		clock:     clock,
		interval:  cfg.Interval,
		retention: cfg.Retention,
		logger:    logger,
	}
}

// Run takes a snapshot immediately and then on every interval until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.runBackup(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.runBackup(ctx)
		}
	}
}

func (s *Scheduler) runBackup(ctx context.Context) {
	name, count, err := s.BackupOnce(ctx)
	if err != nil {
		s.logger.Errorw("scheduled backup failed", "error", err)
		return
	}
	s.logger.Infow("backup created", "backup_name", name, "documents", count)

	deleted, err := s.backups.Prune(ctx, s.clock.Now().Add(-s.retention))
	if err != nil {
		s.logger.Warnw("failed to prune old backups", "error", err)
	}
	for _, name := range deleted {
		s.logger.Infow("deleted old backup", "backup_name", name)
	}
}

// BackupOnce snapshots every durable collection and saves the result.
func (s *Scheduler) BackupOnce(ctx context.Context) (string, int, error) {
	snap, err := Collect(ctx, s.store)
	if err != nil {
		return "", 0, err
	}
	name, err := s.backups.Save(ctx, snap)
	if err != nil {
		return "", 0, err
	}
	return name, snap.Count(), nil
}

// Collect reads the durable collections into a snapshot.
func Collect(ctx context.Context, store ports.SessionStore) (*backup.Snapshot, error) {
	snap := &backup.Snapshot{Collections: make(map[string]map[string]json.RawMessage, len(Collections))}
	for _, collection := range Collections {
		read, err := store.Read(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", collection, err)
		}
		docs := make(map[string]json.RawMessage, len(read.Children))
		for key, raw := range read.Children {
			docs[key] = raw
		}
		snap.Collections[collection] = docs
	}
	return snap, nil
}
