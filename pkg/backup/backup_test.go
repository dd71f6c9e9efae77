package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*BackupService, *clockwork.FakeClock, string) {
	t.Helper()
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewBackupService(storage, "1", clock), clock, dir
}

func TestBackupService_SaveAndLoad(t *testing.T) {
	service, _, dir := newTestService(t)
	ctx := context.Background()

	snap := &Snapshot{Collections: map[string]map[string]json.RawMessage{
		"users": {
			"u1": json.RawMessage(`{"id":"u1","username":"ada"}`),
			"u2": json.RawMessage(`{"id":"u2","username":"bob"}`),
		},
		"posts": {"p1": json.RawMessage(`{"id":"p1"}`)},
	}}

	name, err := service.Save(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-20260301-120000.json", name)
	assert.FileExists(t, filepath.Join(dir, name))

	loaded, err := service.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "1", loaded.Version)
	assert.Equal(t, 3, loaded.Count())
	assert.JSONEq(t, `{"id":"u1","username":"ada"}`, string(loaded.Collections["users"]["u1"]))
}

func TestBackupService_LoadRejectsUnversioned(t *testing.T) {
	service, _, dir := newTestService(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot-20260101-000000.json"), []byte(`{"collections":{}}`), 0o600))

	_, err := service.Load(context.Background(), "snapshot-20260101-000000.json")
	assert.ErrorContains(t, err, "missing version")
}

func TestBackupService_PruneDeletesOlderSnapshots(t *testing.T) {
	service, clock, _ := newTestService(t)
	ctx := context.Background()

	var names []string
	for i := 0; i < 3; i++ {
		name, err := service.Save(ctx, &Snapshot{})
		require.NoError(t, err)
		names = append(names, name)
		clock.Advance(time.Hour)
	}

	deleted, err := service.Prune(ctx, clock.Now().Add(-90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, names[:2], deleted)

	remaining, err := service.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, names[2:], remaining)
}

func TestParseSnapshotName(t *testing.T) {
	ts := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	parsed, ok := ParseSnapshotName(SnapshotName(ts))
	require.True(t, ok)
	assert.True(t, ts.Equal(parsed))

	for _, name := range []string{"backup-20260504-030201.json", "snapshot-2026.json", "snapshot-20260504-030201.txt"} {
		_, ok := ParseSnapshotName(name)
		assert.False(t, ok, name)
	}
}

func TestFileStorage(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, storage.Save(ctx, "test.txt", strings.NewReader("test data")))

	loaded, err := storage.Load(ctx, "test.txt")
	require.NoError(t, err)
	loaded.Close()

	files, err := storage.List(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"test.txt"}, files)

	require.NoError(t, storage.Delete(ctx, "test.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "test.txt"))
}

func TestFileStorage_RejectsPathTraversal(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	err = storage.Save(context.Background(), "../escape.json", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = storage.Load(context.Background(), "a/b.json")
	assert.Error(t, err)
}
