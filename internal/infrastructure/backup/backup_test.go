package backup

import (
	"context"
	"testing"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/infrastructure/store/memory"
	"novaled/pkg/backup"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	clock   *clockwork.FakeClock
	backups *backup.BackupService
	source  *memory.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	source := memory.NewMemoryStore(nil, memory.WithClock(clock))
	t.Cleanup(func() { _ = source.Close() })

	ctx := context.Background()
	require.NoError(t, source.Write(ctx, domain.UserPath("u1"), map[string]any{"id": "u1", "username": "ada"}))
	require.NoError(t, source.Write(ctx, domain.UserPath("u2"), map[string]any{"id": "u2", "username": "bob"}))
	require.NoError(t, source.Write(ctx, domain.PostPath("p1"), map[string]any{"id": "p1", "ownerId": "u1"}))
	require.NoError(t, source.Write(ctx, domain.LivePath("u1"), map[string]any{"ownerId": "u1"}))

	return &fixture{
		clock:   clock,
		backups: backup.NewBackupService(storage, "1", clock),
		source:  source,
	}
}

func TestCollect_SkipsLiveRecords(t *testing.T) {
	f := newFixture(t)

	snap, err := Collect(context.Background(), f.source)
	require.NoError(t, err)

	assert.Len(t, snap.Collections[domain.UsersCollection], 2)
	assert.Len(t, snap.Collections[domain.PostsCollection], 1)
	assert.NotContains(t, snap.Collections, domain.LivesCollection)
	assert.Equal(t, 3, snap.Count())
}

func TestRestore_LatestIntoEmptyStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scheduler := NewScheduler(f.backups, f.source, f.clock, Config{Interval: time.Hour, Retention: 24 * time.Hour}, zap.NewNop().Sugar())

	_, _, err := scheduler.BackupOnce(ctx)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	require.NoError(t, f.source.Write(ctx, domain.UserPath("u3"), map[string]any{"id": "u3", "username": "cy"}))
	latestName, count, err := scheduler.BackupOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	target := memory.NewMemoryStore(nil)
	t.Cleanup(func() { _ = target.Close() })
	restore := NewRestoreService(f.backups, target, zap.NewNop().Sugar())

	result, err := restore.RestoreFromBackup(ctx, LatestBackup, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, latestName, result.Backup)
	assert.Equal(t, 4, result.Written)

	users, err := target.Read(ctx, domain.UsersCollection)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, users.Keys())

	lives, err := target.Read(ctx, domain.LivesCollection)
	require.NoError(t, err)
	assert.False(t, lives.Exists())
}

func TestRestore_KeepsExistingUnlessOverwrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snap, err := Collect(ctx, f.source)
	require.NoError(t, err)
	name, err := f.backups.Save(ctx, snap)
	require.NoError(t, err)

	require.NoError(t, f.source.Write(ctx, domain.UserPath("u1"), map[string]any{"id": "u1", "username": "renamed"}))
	restore := NewRestoreService(f.backups, f.source, zap.NewNop().Sugar())

	result, err := restore.RestoreFromBackup(ctx, name, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Written)
	assert.Equal(t, 3, result.Skipped)

	var user struct {
		Username string `json:"username"`
	}
	read, err := f.source.Read(ctx, domain.UserPath("u1"))
	require.NoError(t, err)
	require.NoError(t, read.Decode(&user))
	assert.Equal(t, "renamed", user.Username)

	result, err = restore.RestoreFromBackup(ctx, name, RestoreOptions{OverwriteExisting: true})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Written)

	read, err = f.source.Read(ctx, domain.UserPath("u1"))
	require.NoError(t, err)
	require.NoError(t, read.Decode(&user))
	assert.Equal(t, "ada", user.Username)
}

func TestFindBackupByTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var names []string
	for i := 0; i < 3; i++ {
		name, err := f.backups.Save(ctx, &backup.Snapshot{})
		require.NoError(t, err)
		names = append(names, name)
		f.clock.Advance(time.Hour)
	}
	restore := NewRestoreService(f.backups, f.source, zap.NewNop().Sugar())
	start := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	name, err := restore.FindBackupByTime(ctx, start.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, names[1], name)

	_, err = restore.FindBackupByTime(ctx, start.Add(-time.Minute))
	assert.Error(t, err)
}

func TestScheduler_RunPrunesExpiredSnapshots(t *testing.T) {
	f := newFixture(t)
	scheduler := NewScheduler(f.backups, f.source, f.clock, Config{Interval: time.Hour, Retention: 90 * time.Minute}, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	saved := func(at time.Time) func() bool {
		return func() bool {
			names, err := f.backups.List(context.Background())
			return err == nil && len(names) > 0 && names[len(names)-1] == backup.SnapshotName(at)
		}
	}
	require.Eventually(t, saved(f.clock.Now()), time.Second, 5*time.Millisecond)
	for i := 0; i < 3; i++ {
		f.clock.BlockUntil(1)
		f.clock.Advance(time.Hour)
		require.Eventually(t, saved(f.clock.Now()), time.Second, 5*time.Millisecond)
	}

	// Snapshots at 08:00 and 09:00 fall outside the 90 minute window at 11:00.
	require.Eventually(t, func() bool {
		names, err := f.backups.List(context.Background())
		return err == nil && len(names) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
