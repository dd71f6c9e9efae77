package redis

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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps each document as a hash of JSON-encoded fields and
// announces every mutated path on a pub/sub channel, so subscribers on any
// server instance observe the change.
type RedisStore struct {
	client *redis.Client
	logger *zap.SugaredLogger

	dispatcher *watch.Dispatcher

	listenOnce sync.Once
	listenErr  error
	pubsub     *redis.PubSub
	cancel     context.CancelFunc
}

// NewRedisStore creates a store over client.
func NewRedisStore(client *redis.Client, logger *zap.SugaredLogger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &RedisStore{
		client: client,
		logger: logger,
	}
	s.dispatcher = watch.NewDispatcher(s.Read, logger)
	return s
}

// Read returns the document at path, or the children of a collection.
func (s *RedisStore) Read(ctx context.Context, path string) (ports.Snapshot, error) {
	snap := ports.Snapshot{Path: path}

	fields, err := s.client.HGetAll(ctx, docKey(path)).Result()
	if err != nil {
		return snap, fmt.Errorf("failed to read %s from Redis: %w", path, err)
	}
	if len(fields) > 0 {
		if snap.Value, err = encodeFields(fields); err != nil {
			return snap, err
		}
	}

	keys, err := s.client.SMembers(ctx, childrenKey(path)).Result()
	if err != nil {
		return snap, fmt.Errorf("failed to list children of %s: %w", path, err)
	}
	if len(keys) == 0 {
		return snap, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, docKey(domain.JoinPath(path, key)))
		}
		return nil
	})
	if err != nil {
		return snap, fmt.Errorf("failed to read children of %s: %w", path, err)
	}

	for i, key := range keys {
		child := cmds[i].Val()
		if len(child) == 0 {
			// Index entry outlived its document.
			continue
		}
		raw, err := encodeFields(child)
		if err != nil {
			return snap, err
		}
		if snap.Children == nil {
			snap.Children = make(map[string]json.RawMessage, len(keys))
		}
		snap.Children[key] = raw
	}
	return snap, nil
}

// Write replaces the document at path and announces the change.
func (s *RedisStore) Write(ctx context.Context, path string, value any) error {
	fields, err := decodeFields(value)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, docKey(path))
		if len(fields) > 0 {
			pipe.HSet(ctx, docKey(path), fields)
		}
		s.index(ctx, pipe, path)
		pipe.Publish(ctx, changeChannel, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %s to Redis: %w", path, err)
	}
	return nil
}

// Patch merges fields into the document at path.
func (s *RedisStore) Patch(ctx context.Context, path string, patch map[string]any) error {
	fields, err := decodeFields(patch)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, docKey(path), fields)
		s.index(ctx, pipe, path)
		pipe.Publish(ctx, changeChannel, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to patch %s in Redis: %w", path, err)
	}
	return nil
}

// Delete removes a document, or a collection with all its children.
func (s *RedisStore) Delete(ctx context.Context, path string) error {
	children, err := s.client.SMembers(ctx, childrenKey(path)).Result()
	if err != nil {
		return fmt.Errorf("failed to list children of %s: %w", path, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, docKey(path))
		for _, child := range children {
			pipe.Del(ctx, docKey(domain.JoinPath(path, child)))
		}
		pipe.Del(ctx, childrenKey(path))
		if parent, key := parentOf(path); parent != "" {
			pipe.SRem(ctx, childrenKey(parent), key)
		}
		pipe.Publish(ctx, changeChannel, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from Redis: %w", path, err)
	}
	return nil
}

// Subscribe delivers the current snapshot of path and every change after it.
func (s *RedisStore) Subscribe(ctx context.Context, path string, onChange func(ports.Snapshot)) (ports.Unsubscribe, error) {
	s.listenOnce.Do(func() {
		s.listenErr = s.listen()
	})
	if s.listenErr != nil {
		return nil, s.listenErr
	}
	return s.dispatcher.Add(ctx, path, onChange), nil
}

// ServerTimestamp uses the Redis server clock so every instance agrees on anchors.
func (s *RedisStore) ServerTimestamp(ctx context.Context) (time.Time, error) {
	ts, err := s.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read Redis time: %w", err)
	}
	return ts, nil
}

// Close stops the change listener and drops all subscriptions.
func (s *RedisStore) Close() error {
	s.dispatcher.Close()
	if s.cancel != nil {
		s.cancel()
	}
	if s.pubsub != nil {
		return s.pubsub.Close()
	}
	return nil
}

func (s *RedisStore) listen() error {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := s.client.Subscribe(ctx, changeChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", changeChannel, err)
	}
	s.pubsub = pubsub
	s.cancel = cancel

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.dispatcher.Notify(msg.Payload)
			}
		}
	}()
	return nil
}

func (s *RedisStore) index(ctx context.Context, pipe redis.Pipeliner, path string) {
	if parent, key := parentOf(path); parent != "" {
		pipe.SAdd(ctx, childrenKey(parent), key)
	}
}

// decodeFields flattens a JSON object into hash fields holding raw JSON.
func decodeFields(value any) (map[string]any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return nil, fmt.Errorf("%w: document must be a JSON object", domain.ErrInvalidInput)
	}
	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		fields[k] = string(v)
	}
	return fields, nil
}

func encodeFields(fields map[string]string) (json.RawMessage, error) {
	doc := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if !json.Valid([]byte(v)) {
			return nil, fmt.Errorf("field %s holds invalid JSON %q", k, strings.TrimSpace(v))
		}
		doc[k] = json.RawMessage(v)
	}
	return json.Marshal(doc)
}
