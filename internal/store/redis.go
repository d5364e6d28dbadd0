package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCooldownStore keeps cooldown instants in Redis, letting Redis
// expire the key at the stored instant.
type RedisCooldownStore struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisCooldownStore creates a cooldown store on top of a go-redis client
func NewRedisCooldownStore(client redis.Cmdable) *RedisCooldownStore {
	return &RedisCooldownStore{client: client, now: time.Now}
}

func (s *RedisCooldownStore) PutUntil(ctx context.Context, key string, until time.Time) error {
	if !until.After(s.now()) {
		return s.client.Del(ctx, key).Err()
	}

	err := s.client.SetArgs(ctx, key, until.UTC().Format(time.RFC3339Nano), redis.SetArgs{
		ExpireAt: until,
	}).Err()
	if err != nil {
		return fmt.Errorf("set cooldown %s: %w", key, err)
	}
	return nil
}

func (s *RedisCooldownStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get cooldown %s: %w", key, err)
	}

	until, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cooldown %s: %w", key, err)
	}
	if !until.After(s.now()) {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// RedisFlagStore keeps pingback flags in Redis. Consume uses GETDEL so a flag
// is handed out to exactly one caller even across processes.
type RedisFlagStore struct {
	client redis.Cmdable
}

// NewRedisFlagStore creates a flag store on top of a go-redis client
func NewRedisFlagStore(client redis.Cmdable) *RedisFlagStore {
	return &RedisFlagStore{client: client}
}

func (s *RedisFlagStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("mark flag %s: %w", key, err)
	}
	return nil
}

func (s *RedisFlagStore) Consume(ctx context.Context, key string) (bool, error) {
	err := s.client.GetDel(ctx, key).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume flag %s: %w", key, err)
	}
	return true, nil
}

var (
	_ CooldownStore = (*RedisCooldownStore)(nil)
	_ FlagStore     = (*RedisFlagStore)(nil)
)
