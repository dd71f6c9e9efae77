package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	namePrefix = "snapshot-"
	nameSuffix = ".json"
	nameLayout = "20060102-150405"
)

// Snapshot is a point-in-time copy of store collections. Each collection
// maps child key to the raw document.
type Snapshot struct {
	Version     string                                `json:"version"`
	Timestamp   time.Time                             `json:"timestamp"`
	Collections map[string]map[string]json.RawMessage `json:"collections"`
}

// Count returns the number of documents across all collections.
func (s *Snapshot) Count() int {
	n := 0
	for _, docs := range s.Collections {
		n += len(docs)
	}
	return n
}

// Storage defines interface for backup storage
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// BackupService writes and reads named snapshots.
type BackupService struct {
	storage Storage
	version string
	clock   clockwork.Clock
}

func NewBackupService(storage Storage, version string, clock clockwork.Clock) *BackupService {
	return &BackupService{
		storage: storage,
		version: version,
		clock:   clock,
	}
}

// Save stamps the snapshot and stores it under a timestamped name.
func (bs *BackupService) Save(ctx context.Context, snap *Snapshot) (string, error) {
	snap.Version = bs.version
	snap.Timestamp = bs.clock.Now().UTC()

	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := SnapshotName(snap.Timestamp)
	if err := bs.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to save snapshot %s: %w", name, err)
	}
	return name, nil
}

func (bs *BackupService) Load(ctx context.Context, name string) (*Snapshot, error) {
	reader, err := bs.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}
	defer reader.Close()

	var snap Snapshot
	if err := json.NewDecoder(reader).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", name, err)
	}
	if snap.Version == "" {
		return nil, fmt.Errorf("invalid snapshot %s: missing version", name)
	}
	return &snap, nil
}

// List returns snapshot names, oldest first.
func (bs *BackupService) List(ctx context.Context) ([]string, error) {
	return bs.storage.List(ctx, namePrefix)
}

func (bs *BackupService) Delete(ctx context.Context, name string) error {
	return bs.storage.Delete(ctx, name)
}

// Prune deletes snapshots taken before cutoff and returns their names.
func (bs *BackupService) Prune(ctx context.Context, cutoff time.Time) ([]string, error) {
	names, err := bs.List(ctx)
	if err != nil {
		return nil, err
	}
	var deleted []string
	for _, name := range names {
		ts, ok := ParseSnapshotName(name)
		if !ok || !ts.Before(cutoff) {
			continue
		}
		if err := bs.Delete(ctx, name); err != nil {
			return deleted, fmt.Errorf("failed to delete snapshot %s: %w", name, err)
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

func SnapshotName(t time.Time) string {
	return namePrefix + t.UTC().Format(nameLayout) + nameSuffix
}

// ParseSnapshotName extracts the timestamp from a name built by SnapshotName.
func ParseSnapshotName(name string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(name, namePrefix)
	if !ok {
		return time.Time{}, false
	}
	rest, ok = strings.CutSuffix(rest, nameSuffix)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(nameLayout, rest)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
