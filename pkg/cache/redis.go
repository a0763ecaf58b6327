package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "eventlens:cache:"

// incrementCappedScript raises the hash's use_count by one, never past ARGV[2]. The script
// runs atomically on the server.
var incrementCappedScript = redis.NewScript(`
local n = tonumber(redis.call('HGET', KEYS[1], 'use_count') or '0') + 1
local limit = tonumber(ARGV[2])
if n > limit then n = limit end
redis.call('HSET', KEYS[1], 'key', ARGV[3], 'sql', ARGV[1], 'use_count', n)
return n
`)

// RedisStore keeps each entry in a hash named prefix+key.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedis builds a client from a redis:// URL and verifies it with a ping.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (*Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	e := &Entry{Key: key, QueryText: fields["sql"]}
	if v, ok := fields["use_count"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid use_count %q: %w", v, err)
		}
		e.UseCount = n
	}
	if v, ok := fields["result"]; ok {
		e.SerializedRows = &v
	}
	if v, ok := fields["last_updated"]; ok && v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("invalid last_updated %q: %w", v, err)
		}
		e.LastUpdated = &ts
	}
	return e, nil
}

func (s *RedisStore) IncrementCapped(ctx context.Context, key, queryText string, limit int) (int, error) {
	n, err := incrementCappedScript.Run(ctx, s.client, []string{s.prefix + key}, queryText, limit, key).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to increment use count: %w", err)
	}
	return n, nil
}

func (s *RedisStore) SaveResult(ctx context.Context, key, queryText string, rows []byte, at time.Time, limit int) error {
	err := s.client.HSet(ctx, s.prefix+key,
		"key", key,
		"sql", queryText,
		"result", string(rows),
		"last_updated", at.UTC().Format(time.RFC3339Nano),
		"use_count", limit,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}
