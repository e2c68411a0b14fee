package storagehttp

import (
	"fmt"
	"strings"
	"time"

	"github.com/raniellyferreira/storage-http/audit"
	conf "github.com/raniellyferreira/storage-http/config"
	"github.com/raniellyferreira/storage-http/protocol"
	"github.com/raniellyferreira/storage-http/storage"
)

// config holds the configuration for a Service
type config struct {
	// Listener settings
	addr        string
	chunkSize   int
	maxRequests int
	baseRoot    string

	// Timeouts
	readTimeout  time.Duration
	pollInterval time.Duration
	drainTimeout time.Duration

	// Storage selection; backend overrides backendKind when set
	backendKind storage.Kind
	redis       storage.RedisOptions
	sqlitePath  string
	luaScript   string
	backend     storage.Backend

	// Audit trail; auditLogger overrides auditPath when set
	auditPath     string
	auditRotate   uint64
	auditCompress bool
	auditLogger   audit.Logger

	// Response templates; catalog overrides catalogPath when set
	catalog     *protocol.Catalog
	catalogPath string

	// Observability
	logger  Logger
	metrics MetricsCollector

	now func() time.Time
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		addr:         ":8080",
		chunkSize:    protocol.DefaultChunkSize,
		maxRequests:  100,
		baseRoot:     "storage",
		pollInterval: conf.DefaultPollInterval,
		backendKind:  storage.KindMemory,
		redis: storage.RedisOptions{
			Addr:           conf.DefaultRedisAddr,
			OpTimeout:      2 * time.Second,
			ConnectRetries: 3,
		},
		sqlitePath: conf.DefaultSQLitePath,
		logger:     defaultLogger(),
		now:        time.Now,
	}
}

// Option represents a configuration option for a Service
type Option func(*config) error

// WithAddr sets the listen address
//
// Example:
//   WithAddr(":8080")
//   WithAddr("127.0.0.1:0")
func WithAddr(addr string) Option {
	return func(c *config) error {
		if addr == "" {
			return &ConnectionError{
				Addr: addr,
				Err:  ErrInvalidConfig,
			}
		}
		c.addr = addr
		return nil
	}
}

// WithChunkSize sets how many bytes each socket read asks for
//
// Example:
//   WithChunkSize(1)
//   WithChunkSize(4096)
func WithChunkSize(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, n)
		}
		c.chunkSize = n
		return nil
	}
}

// WithMaxRequestsPerSecond sets the per-second connection admission limit.
// Zero rejects every connection.
func WithMaxRequestsPerSecond(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return fmt.Errorf("%w: max requests must not be negative, got %d", ErrInvalidConfig, n)
		}
		c.maxRequests = n
		return nil
	}
}

// WithBaseRoot sets the first path segment keys are served under
//
// Example:
//   WithBaseRoot("storage") // GET /storage/<key>
func WithBaseRoot(base string) Option {
	return func(c *config) error {
		base = strings.Trim(base, "/")
		if base == "" || strings.Contains(base, "/") {
			return fmt.Errorf("%w: base root must be a single path segment", ErrInvalidConfig)
		}
		c.baseRoot = base
		return nil
	}
}

// WithReadTimeout bounds how long one request may take to arrive.
// Zero disables the bound; a stalled peer then blocks the loop.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.readTimeout = timeout
		return nil
	}
}

// WithDrainTimeout bounds how long a connection closed with unread
// request bytes is drained first, so the peer sees the response instead
// of a reset. Zero keeps the server default; negative closes at once.
func WithDrainTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		c.drainTimeout = timeout
		return nil
	}
}

// WithPollInterval sets the longest the event loop sleeps between
// cancellation checks
func WithPollInterval(interval time.Duration) Option {
	return func(c *config) error {
		if interval <= 0 {
			return ErrInvalidConfig
		}
		c.pollInterval = interval
		return nil
	}
}

// WithBackend uses an already constructed backend. The service does not
// close it.
func WithBackend(b storage.Backend) Option {
	return func(c *config) error {
		if b == nil {
			return ErrInvalidConfig
		}
		c.backend = b
		return nil
	}
}

// WithBackendKind selects the backend the service opens on Start
//
// Example:
//   WithBackendKind("sqlite")
func WithBackendKind(kind string) Option {
	return func(c *config) error {
		k, err := storage.ParseKind(kind)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		c.backendKind = k
		return nil
	}
}

// WithRedis sets the connection options for the redis backend
func WithRedis(opts storage.RedisOptions) Option {
	return func(c *config) error {
		if opts.Addr == "" {
			return &ConnectionError{Addr: opts.Addr, Err: ErrInvalidConfig}
		}
		c.redis = opts
		return nil
	}
}

// WithSQLitePath sets the database file for the sqlite backend
func WithSQLitePath(path string) Option {
	return func(c *config) error {
		if path == "" {
			return ErrInvalidConfig
		}
		c.sqlitePath = path
		return nil
	}
}

// WithLuaScript sets the script file for the lua backend. Empty selects the
// built-in script.
func WithLuaScript(path string) Option {
	return func(c *config) error {
		c.luaScript = path
		return nil
	}
}

// WithAuditLog appends the audit trail to path
//
// Example:
//   WithAuditLog("/var/log/storage-http/audit.log", 100*1000*1000, true)
func WithAuditLog(path string, rotateSize uint64, compress bool) Option {
	return func(c *config) error {
		if path == "" {
			return ErrInvalidConfig
		}
		c.auditPath = path
		c.auditRotate = rotateSize
		c.auditCompress = compress
		return nil
	}
}

// WithAuditLogger uses an already constructed audit logger. The service
// does not close it.
func WithAuditLogger(l audit.Logger) Option {
	return func(c *config) error {
		if l == nil {
			return ErrInvalidConfig
		}
		c.auditLogger = l
		return nil
	}
}

// WithCatalog sets the response catalog
func WithCatalog(catalog *protocol.Catalog) Option {
	return func(c *config) error {
		if catalog == nil {
			return ErrInvalidConfig
		}
		c.catalog = catalog
		return nil
	}
}

// WithCatalogFile loads the response catalog from a JSON or YAML file when
// the service is created
//
// Example:
//   WithCatalogFile("etc/messages.json")
func WithCatalogFile(path string) Option {
	return func(c *config) error {
		if path == "" {
			return ErrInvalidConfig
		}
		c.catalogPath = path
		return nil
	}
}

// WithSettings applies everything a parsed settings file defines except
// diagnostic logging, which belongs to the caller
func WithSettings(s *conf.Settings) Option {
	return func(c *config) error {
		if s == nil {
			return ErrInvalidConfig
		}

		opts := []Option{
			WithAddr(s.Addr()),
			WithChunkSize(s.ChunkSize),
			WithMaxRequestsPerSecond(s.MaxClients),
			WithBaseRoot(s.BaseRoot),
			WithReadTimeout(s.ReadTimeout),
			WithBackendKind(s.StorageBackend),
			WithLuaScript(s.LuaScript),
		}
		if s.PollInterval > 0 {
			opts = append(opts, WithPollInterval(s.PollInterval))
		}
		if s.SQLitePath != "" {
			opts = append(opts, WithSQLitePath(s.SQLitePath))
		}
		if s.RedisAddr != "" {
			redis := c.redis
			redis.Addr = s.RedisAddr
			redis.Password = s.RedisPassword
			redis.DB = s.RedisDB
			redis.Prefix = s.RedisPrefix
			opts = append(opts, WithRedis(redis))
		}
		if s.AuditLogPath != "" {
			opts = append(opts, WithAuditLog(s.AuditLogPath, s.AuditRotateSize, s.AuditCompress))
		}

		for _, opt := range opts {
			if err := opt(c); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithSettingsFile loads a settings file and applies it like WithSettings
func WithSettingsFile(path string) Option {
	return func(c *config) error {
		s, err := conf.Load(path)
		if err != nil {
			return err
		}
		return WithSettings(s)(c)
	}
}

// WithLogger sets a custom logger for the service
//
// Example:
//   WithLogger(storagehttp.NewLogger(os.Stderr, slog.LevelDebug, storagehttp.LogFormatJSON))
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics enables metrics collection with the provided collector
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		c.metrics = collector
		return nil
	}
}

// WithClock replaces the admission clock, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(c *config) error {
		if now == nil {
			return ErrInvalidConfig
		}
		c.now = now
		return nil
	}
}
