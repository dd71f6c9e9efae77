package backup

import (
	"context"
	"fmt"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
	"novaled/pkg/backup"

	"go.uber.org/zap"
)

// LatestBackup selects the newest snapshot in RestoreFromBackup.
const LatestBackup = "latest"

type RestoreOptions struct {
	// OverwriteExisting replaces documents already present in the store.
	OverwriteExisting bool
}

type RestoreResult struct {
	Backup  string
	Written int
	Skipped int
}

// RestoreService writes snapshot documents back into the store.
type RestoreService struct {
	backups *backup.BackupService
	store   ports.SessionStore
	logger  *zap.SugaredLogger
}

func NewRestoreService(backups *backup.BackupService, store ports.SessionStore, logger *zap.SugaredLogger) *RestoreService {
	return &RestoreService{
		backups: backups,
		store:   store,
		logger:  logger,
	}
}

// RestoreFromBackup restores the named snapshot, or the newest one when name
// is LatestBackup.
func (rs *RestoreService) RestoreFromBackup(ctx context.Context, name string, options RestoreOptions) (RestoreResult, error) {
	if name == LatestBackup {
		latest, err := rs.latest(ctx)
		if err != nil {
			return RestoreResult{}, err
		}
		name = latest
	}
	rs.logger.Infow("starting restore", "backup_name", name, "overwrite", options.OverwriteExisting)

	snap, err := rs.backups.Load(ctx, name)
	if err != nil {
		return RestoreResult{}, err
	}

	result := RestoreResult{Backup: name}
	for _, collection := range Collections {
		for key, raw := range snap.Collections[collection] {
			path := domain.JoinPath(collection, key)
			if !options.OverwriteExisting {
				existing, err := rs.store.Read(ctx, path)
				if err != nil {
					return result, fmt.Errorf("read %s: %w", path, err)
				}
				if len(existing.Value) > 0 {
					result.Skipped++
					continue
				}
			}
			if err := rs.store.Write(ctx, path, raw); err != nil {
				return result, fmt.Errorf("write %s: %w", path, err)
			}
			result.Written++
		}
	}

	rs.logger.Infow("restore completed",
		"backup_name", name,
		"written", result.Written,
		"skipped", result.Skipped,
	)
	return result, nil
}

// FindBackupByTime returns the newest snapshot taken at or before target.
func (rs *RestoreService) FindBackupByTime(ctx context.Context, target time.Time) (string, error) {
	names, err := rs.backups.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}

	var closest string
	var closestTime time.Time
	for _, name := range names {
		ts, ok := backup.ParseSnapshotName(name)
		if !ok || ts.After(target) {
			continue
		}
		if closest == "" || ts.After(closestTime) {
			closest, closestTime = name, ts
		}
	}
	if closest == "" {
		return "", fmt.Errorf("no backup found at or before %s", target.Format(time.RFC3339))
	}
	return closest, nil
}

// latest relies on snapshot names sorting chronologically.
func (rs *RestoreService) latest(ctx context.Context) (string, error) {
	names, err := rs.backups.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}
	for i := len(names) - 1; i >= 0; i-- {
		if _, ok := backup.ParseSnapshotName(names[i]); ok {
			return names[i], nil
		}
	}
	return "", fmt.Errorf("no backups found")
}
