package storage

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// shard represents a single shard of data with its own lock
type shard struct {
	mu   sync.RWMutex
	data map[string]string
}

// MemoryStorage implements Backend with a sharded in-process map
type MemoryStorage struct {
	shards    []shard
	shardMask uint64
	closed    atomic.Bool
}

// MemoryOption is a function that configures a MemoryStorage instance
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	shards int
}

// WithShardCount sets the number of shards for the storage.
// The number is rounded up to the next power of 2.
func WithShardCount(count int) MemoryOption {
	return func(c *memoryConfig) {
		if count > 0 {
			c.shards = nextPowerOf2(count)
		}
	}
}

// NewMemory creates a new in-memory storage instance with 64 shards by default
func NewMemory(opts ...MemoryOption) *MemoryStorage {
	cfg := memoryConfig{shards: 64}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &MemoryStorage{
		shards:    make([]shard, cfg.shards),
		shardMask: uint64(cfg.shards - 1),
	}
	for i := range s.shards {
		s.shards[i].data = make(map[string]string)
	}
	return s
}

// nextPowerOf2 returns the next power of 2 >= n
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// shardFor returns the shard owning key
func (s *MemoryStorage) shardFor(key string) *shard {
	return &s.shards[xxhash.Sum64String(key)&s.shardMask]
}

// Exists reports whether key is stored
func (s *MemoryStorage) Exists(_ context.Context, key string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	sh := s.shardFor(key)
	sh.mu.RLock()
	_, ok := sh.data[key]
	sh.mu.RUnlock()
	return ok, nil
}

// Add stores value under key unless the key is already present
func (s *MemoryStorage) Add(_ context.Context, key, value string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	if _, ok := sh.data[key]; !ok {
		sh.data[key] = value
	}
	sh.mu.Unlock()
	return nil
}

// Update overwrites the value under key
func (s *MemoryStorage) Update(_ context.Context, key, value string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.data[key] = value
	sh.mu.Unlock()
	return nil
}

// Get retrieves the value stored under key
func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}
	sh := s.shardFor(key)
	sh.mu.RLock()
	value, ok := sh.data[key]
	sh.mu.RUnlock()
	return value, ok, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.data, key)
	sh.mu.Unlock()
	return nil
}

// KeyCount returns the number of stored keys
func (s *MemoryStorage) KeyCount(_ context.Context) (int64, error) {
	var count int64
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		count += int64(len(sh.data))
		sh.mu.RUnlock()
	}
	return count, nil
}

// Close marks the storage closed and drops its contents
func (s *MemoryStorage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.data = make(map[string]string)
		sh.mu.Unlock()
	}
	return nil
}

var _ Backend = (*MemoryStorage)(nil)
var _ KeyCounter = (*MemoryStorage)(nil)
