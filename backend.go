package storagehttp

import (
	"context"
	"fmt"

	"github.com/raniellyferreira/storage-http/audit"
	"github.com/raniellyferreira/storage-http/lua"
	"github.com/raniellyferreira/storage-http/storage"
)

// openBackend returns the configured backend and whether the service owns it
func openBackend(ctx context.Context, c *config) (storage.Backend, bool, error) {
	if c.backend != nil {
		return c.backend, false, nil
	}

	switch c.backendKind {
	case storage.KindMemory:
		return storage.NewMemory(), true, nil
	case storage.KindRedis:
		b, err := storage.NewRedis(ctx, c.redis)
		if err != nil {
			return nil, false, &ConnectionError{Addr: c.redis.Addr, Err: err}
		}
		return b, true, nil
	case storage.KindSQLite:
		b, err := storage.OpenSQLite(c.sqlitePath)
		if err != nil {
			return nil, false, err
		}
		return b, true, nil
	case storage.KindLua:
		b, err := lua.LoadBackend(c.luaScript)
		if err != nil {
			return nil, false, err
		}
		return b, true, nil
	default:
		return nil, false, fmt.Errorf("%w: backend %q", ErrInvalidConfig, c.backendKind)
	}
}

// openAudit returns the configured audit logger and whether the service owns it
func openAudit(c *config) (audit.Logger, bool, error) {
	if c.auditLogger != nil {
		return c.auditLogger, false, nil
	}
	if c.auditPath == "" {
		return audit.NopLogger{}, false, nil
	}

	l, err := audit.NewFileLogger(c.auditPath,
		audit.WithRotateSize(c.auditRotate),
		audit.WithCompression(c.auditCompress),
	)
	if err != nil {
		return nil, false, err
	}
	return l, true, nil
}
