package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

const settingsKey = "rewriter:settings"

// RedisStore keeps synced settings as one JSON document.
type RedisStore struct {
	rdb *redis.Client
}

var _ ports.SettingsStore = (*RedisStore)(nil)

// NewRedisStore wires a go-redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// LoadSettings returns zero settings when nothing was synced yet.
func (s *RedisStore) LoadSettings(ctx context.Context) (domain.Settings, error) {
	raw, err := s.rdb.Get(ctx, settingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Settings{}, nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	var out domain.Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

// SaveSettings overwrites the stored document.
func (s *RedisStore) SaveSettings(ctx context.Context, settings domain.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.rdb.Set(ctx, settingsKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
