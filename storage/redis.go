package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisStorage
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// Prefix is prepended to every key so several servers can share a database
	Prefix string

	// OpTimeout bounds every individual command. Zero means no bound.
	OpTimeout time.Duration

	// ConnectRetries is the number of extra ping attempts made by NewRedis
	ConnectRetries uint64
}

// RedisStorage implements Backend on top of a Redis server
type RedisStorage struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
}

// NewRedis connects to Redis and verifies the connection with PING,
// retrying with exponential backoff up to opts.ConnectRetries times.
func NewRedis(ctx context.Context, opts RedisOptions) (*RedisStorage, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), opts.ConnectRetries),
		ctx,
	)
	ping := func() error {
		return client.Ping(ctx).Err()
	}
	if err := backoff.Retry(ping, policy); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("storage: failed to reach redis at %s: %w", opts.Addr, err)
	}

	return NewRedisFromClient(client, opts.Prefix, opts.OpTimeout), nil
}

// NewRedisFromClient wraps an existing client without pinging it
func NewRedisFromClient(client *redis.Client, prefix string, opTimeout time.Duration) *RedisStorage {
	return &RedisStorage{
		client:    client,
		prefix:    prefix,
		opTimeout: opTimeout,
	}
}

func (s *RedisStorage) key(key string) string {
	return s.prefix + key
}

func (s *RedisStorage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Exists reports whether key is stored
func (s *RedisStorage) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("storage: redis exists %q: %w", key, err)
	}
	return n > 0, nil
}

// Add stores value under key unless the key is already present (SETNX)
func (s *RedisStorage) Add(ctx context.Context, key, value string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.SetNX(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("storage: redis add %q: %w", key, err)
	}
	return nil
}

// Update overwrites the value under key
func (s *RedisStorage) Update(ctx context.Context, key, value string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("storage: redis update %q: %w", key, err)
	}
	return nil
}

// Get retrieves the value stored under key
func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: redis get %q: %w", key, err)
	}
	return value, true, nil
}

// Delete removes key
func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("storage: redis delete %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying client
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

var _ Backend = (*RedisStorage)(nil)
