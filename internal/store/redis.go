package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Redis is the durable Store backend. One client process talks to one
// local redis; there is no cross-process locking, matching the documented
// last-write-wins behavior.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(addr, password string, db int) *Redis {
	return &Redis{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Ping verifies connectivity at startup.
func (s *Redis) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Redis) Close() error {
	return s.rdb.Close()
}

func (s *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Redis) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *Redis) AddMember(ctx context.Context, key, member string) error {
	return s.rdb.SAdd(ctx, key, member).Err()
}

func (s *Redis) RemoveMember(ctx context.Context, key, member string) error {
	return s.rdb.SRem(ctx, key, member).Err()
}

func (s *Redis) HasMember(ctx context.Context, key, member string) (bool, error) {
	return s.rdb.SIsMember(ctx, key, member).Result()
}

func (s *Redis) Members(ctx context.Context, key string) ([]string, error) {
	return s.rdb.SMembers(ctx, key).Result()
}
