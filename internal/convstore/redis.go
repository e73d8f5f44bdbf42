package convstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cartpilot/cartpilot/config"
	"github.com/cartpilot/cartpilot/internal/agent/core"
)

// RedisStore persists each conversation as a JSON blob with a TTL, for
// the multi-instance web deployment.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(cfg config.RedisConfig, ttl time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: rdb, ttl: ttl}
}

func key(id string) string { return fmt.Sprintf("conversation:%s", id) }

func (s *RedisStore) Ensure(ctx context.Context, id string) (*Conversation, string, error) {
	if id != "" {
		raw, err := s.client.Get(ctx, key(id)).Result()
		switch {
		case err == nil:
			var conv Conversation
			if jsonErr := json.Unmarshal([]byte(raw), &conv); jsonErr != nil {
				return nil, "", fmt.Errorf("corrupt conversation %s: %w", id, jsonErr)
			}
			_ = s.client.Expire(ctx, key(id), s.ttl).Err()
			return &conv, id, nil
		case err != redis.Nil:
			return nil, "", fmt.Errorf("loading conversation %s: %w", id, err)
		}
	}

	newID := id
	if newID == "" {
		newID = uuid.NewString()
	}
	conv := &Conversation{Session: core.NewSession(newID)}
	if err := s.Save(ctx, newID, conv); err != nil {
		return nil, "", err
	}
	return conv, newID, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, conv *Conversation) error {
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshaling conversation %s: %w", id, err)
	}
	if err := s.client.Set(ctx, key(id), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving conversation %s: %w", id, err)
	}
	return nil
}
