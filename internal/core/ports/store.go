package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Snapshot is the value observed at a store path. Document paths fill
// Value; collection paths fill Children keyed by child id.
type Snapshot struct {
	Path     string
	Value    json.RawMessage
	Children map[string]json.RawMessage
}

func (s Snapshot) Exists() bool {
	return len(s.Value) > 0 || len(s.Children) > 0
}

// Decode unmarshals the document value into v.
func (s Snapshot) Decode(v any) error {
	if len(s.Value) == 0 {
		return fmt.Errorf("decode %s: no value", s.Path)
	}
	return json.Unmarshal(s.Value, v)
}

// Keys returns the child keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Children))
	for k := range s.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ForEach decodes every child into a fresh T and calls fn with its key.
func ForEach[T any](s Snapshot, fn func(key string, v *T) error) error {
	for _, key := range s.Keys() {
		v := new(T)
		if err := json.Unmarshal(s.Children[key], v); err != nil {
			return fmt.Errorf("decode %s/%s: %w", s.Path, key, err)
		}
		if err := fn(key, v); err != nil {
			return err
		}
	}
	return nil
}

// ForEachValid is ForEach for collections any client can write to: a child
// that fails to decode is skipped instead of ending the scan. The skipped
// keys are returned in order.
func ForEachValid[T any](s Snapshot, fn func(key string, v *T)) (skipped []string) {
	for _, key := range s.Keys() {
		v := new(T)
		if err := json.Unmarshal(s.Children[key], v); err != nil {
			skipped = append(skipped, key)
			continue
		}
		fn(key, v)
	}
	return skipped
}

// Unsubscribe cancels a subscription. It is safe to call more than once.
type Unsubscribe func()

// SessionStore is the shared realtime document store. Writes are
// last-write-wins point updates; there are no transactions.
type SessionStore interface {
	Read(ctx context.Context, path string) (Snapshot, error)
	Write(ctx context.Context, path string, value any) error
	Patch(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
	// Subscribe delivers the current value of path and then the latest
	// value after every change to it, its children or its ancestors.
	Subscribe(ctx context.Context, path string, onChange func(Snapshot)) (Unsubscribe, error)
	ServerTimestamp(ctx context.Context) (time.Time, error)
}

// Locker serializes check-then-write sequences on a key across clients.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
