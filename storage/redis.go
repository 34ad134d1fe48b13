package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ Storage = (*RedisStorage)(nil)

const defaultRedisTimeout = 2 * time.Second

// RedisStorage shares session records between processes through Redis.
type RedisStorage struct {
	client    *redis.Client
	prefix    string
	timeout   time.Duration
	recordTTL time.Duration
}

type RedisOption func(*RedisStorage)

// WithKeyPrefix namespaces every key, e.g. "kcsession:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisStorage) {
		r.prefix = prefix
	}
}

// WithOperationTimeout bounds each Redis round trip.
func WithOperationTimeout(timeout time.Duration) RedisOption {
	return func(r *RedisStorage) {
		r.timeout = timeout
	}
}

// WithRecordTTL expires records that are not rewritten within ttl. Zero keeps them forever.
func WithRecordTTL(ttl time.Duration) RedisOption {
	return func(r *RedisStorage) {
		r.recordTTL = ttl
	}
}

func NewRedisStorage(client *redis.Client, options ...RedisOption) *RedisStorage {
	r := &RedisStorage{
		client:  client,
		timeout: defaultRedisTimeout,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// DialRedis connects and pings, so misconfiguration fails at startup.
func DialRedis(addr, password string, db int, options ...RedisOption) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[DialRedis] ping")
	}
	return NewRedisStorage(client, options...), nil
}

func (r *RedisStorage) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "[RedisStorage.Get] %q", key)
	}
	return value, true, nil
}

func (r *RedisStorage) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, value, r.recordTTL).Err(); err != nil {
		return errors.Wrapf(err, "[RedisStorage.Set] %q", key)
	}
	return nil
}

func (r *RedisStorage) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return errors.Wrapf(err, "[RedisStorage.Remove] %q", key)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
