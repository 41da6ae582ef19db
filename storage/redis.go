package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps values in a Redis hash so several processes can share
// one credential set.
type RedisStorage struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

type RedisOption func(*RedisStorage)

// WithRedisKey sets the hash key. Default "dca-auth:credentials".
func WithRedisKey(key string) RedisOption {
	return func(s *RedisStorage) {
		if k := strings.Trim(key, ":"); k != "" {
			s.key = k
		}
	}
}

// WithRedisTTL expires the whole hash d after the last write. Zero disables.
func WithRedisTTL(d time.Duration) RedisOption {
	return func(s *RedisStorage) { s.ttl = d }
}

func NewRedisStorage(rdb redis.UniversalClient, opts ...RedisOption) *RedisStorage {
	s := &RedisStorage{rdb: rdb, key: "dca-auth:credentials"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("get", key, err)
	}
	return v, true, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

func (s *RedisStorage) Remove(ctx context.Context, key string) error {
	return storageErr("remove", key, s.rdb.HDel(ctx, s.key, key).Err())
}

func (s *RedisStorage) Clear(ctx context.Context) error {
	return storageErr("clear", "", s.rdb.Del(ctx, s.key).Err())
}

// SetMany applies every write in one MULTI/EXEC transaction.
func (s *RedisStorage) SetMany(ctx context.Context, values map[string]string) error {
	pipe := s.rdb.TxPipeline()
	for k, v := range values {
		if v == "" {
			pipe.HDel(ctx, s.key, k)
			continue
		}
		pipe.HSet(ctx, s.key, k, v)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return storageErr("set", "", err)
}
