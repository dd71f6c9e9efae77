package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
	"novaled/internal/infrastructure/store/watch"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type document map[string]json.RawMessage

// MemoryStore keeps every document in process. Subscribers share the
// process, so it serves a single server instance.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]document
	clock clockwork.Clock

	dispatcher *watch.Dispatcher
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock sets the clock used for server timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *MemoryStore) { s.clock = clock }
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(logger *zap.SugaredLogger, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		docs:  make(map[string]document),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatcher = watch.NewDispatcher(s.Read, logger)
	return s
}

// Read returns the document at path, or the children of a collection.
func (s *MemoryStore) Read(ctx context.Context, path string) (ports.Snapshot, error) {
	if err := validatePath(path); err != nil {
		return ports.Snapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := ports.Snapshot{Path: path}
	if doc, ok := s.docs[path]; ok {
		raw, err := json.Marshal(doc)
		if err != nil {
			return ports.Snapshot{}, err
		}
		snap.Value = raw
	}

	prefix := path + "/"
	for p, doc := range s.docs {
		if !strings.HasPrefix(p, prefix) || strings.Contains(p[len(prefix):], "/") {
			continue
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return ports.Snapshot{}, err
		}
		if snap.Children == nil {
			snap.Children = make(map[string]json.RawMessage)
		}
		snap.Children[p[len(prefix):]] = raw
	}
	return snap, nil
}

// Write replaces the document at path.
func (s *MemoryStore) Write(ctx context.Context, path string, value any) error {
	if err := validatePath(path); err != nil {
		return err
	}
	doc, err := toDocument(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.docs[path] = doc
	s.mu.Unlock()

	s.dispatcher.Notify(path)
	return nil
}

// Patch merges fields into the document at path, creating it if needed.
func (s *MemoryStore) Patch(ctx context.Context, path string, fields map[string]any) error {
	if err := validatePath(path); err != nil {
		return err
	}
	patch, err := toDocument(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	doc, ok := s.docs[path]
	if !ok {
		doc = make(document, len(patch))
		s.docs[path] = doc
	}
	for k, v := range patch {
		doc[k] = v
	}
	s.mu.Unlock()

	s.dispatcher.Notify(path)
	return nil
}

// Delete removes a document, or a collection with all its children.
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.docs, path)
	prefix := path + "/"
	for p := range s.docs {
		if strings.HasPrefix(p, prefix) {
			delete(s.docs, p)
		}
	}
	s.mu.Unlock()

	s.dispatcher.Notify(path)
	return nil
}

// Subscribe delivers the current snapshot of path and every change after it.
func (s *MemoryStore) Subscribe(ctx context.Context, path string, onChange func(ports.Snapshot)) (ports.Unsubscribe, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	return s.dispatcher.Add(ctx, path, onChange), nil
}

// ServerTimestamp returns the store clock.
func (s *MemoryStore) ServerTimestamp(ctx context.Context) (time.Time, error) {
	return s.clock.Now(), nil
}

// Close drops all subscriptions.
func (s *MemoryStore) Close() error {
	s.dispatcher.Close()
	return nil
}

func toDocument(value any) (document, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: document must be a JSON object", domain.ErrInvalidInput)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document must be a JSON object", domain.ErrInvalidInput)
	}
	return doc, nil
}

func validatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return fmt.Errorf("%w: store path %q", domain.ErrInvalidInput, path)
	}
	return nil
}
