package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"novaled/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = keyPrefix + "schema:version"
	currentSchemaVersion = 1
)

// Migration is one forward step of the key layout.
type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate runs every migration newer than the stored schema version.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		logger.Infow("schema is up to date",
			"current_version", currentVersion,
			"target_version", currentSchemaVersion,
		)
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}

		logger.Infow("running migration", "version", migration.Version)

		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	logger.Infow("all migrations completed", "final_version", currentSchemaVersion)
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// Drop broadcast records left behind with isLive=false.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client) error {
				return purgeStaleLives(ctx, client)
			},
		},
	}
}

func purgeStaleLives(ctx context.Context, client *redis.Client) error {
	ids, err := client.SMembers(ctx, childrenKey(domain.LivesCollection)).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		path := domain.JoinPath(domain.LivesCollection, id)
		raw, err := client.HGet(ctx, docKey(path), "isLive").Result()
		if err != nil && err != redis.Nil {
			return err
		}

		var live bool
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &live); err != nil {
				live = false
			}
		}
		if live {
			continue
		}

		if _, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, docKey(path))
			pipe.SRem(ctx, childrenKey(domain.LivesCollection), id)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
