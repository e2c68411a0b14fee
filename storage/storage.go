package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates the backend has been closed
	ErrClosed = errors.New("storage: backend is closed")

	// ErrUnknownBackend indicates a backend name with no registered variant
	ErrUnknownBackend = errors.New("storage: unknown backend")
)

// Backend defines the capability set the server needs from a key/value store.
//
// Values are always strings holding JSON text. Add never overwrites an
// existing key; callers check Exists first.
type Backend interface {
	Exists(ctx context.Context, key string) (bool, error)
	Add(ctx context.Context, key, value string) error
	Update(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend
	Close() error
}

// KeyCounter is implemented by backends that can report their size cheaply
type KeyCounter interface {
	KeyCount(ctx context.Context) (int64, error)
}

// Kind names a backend variant
type Kind string

// Backend variants selectable from configuration
const (
	KindMemory Kind = "memory"
	KindRedis  Kind = "redis"
	KindSQLite Kind = "sqlite"
	KindLua    Kind = "lua"
)

// ParseKind validates a backend name. The empty string selects memory.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindMemory:
		return KindMemory, nil
	case KindRedis, KindSQLite, KindLua:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}
