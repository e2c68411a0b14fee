package storagehttp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/raniellyferreira/storage-http/audit"
	conf "github.com/raniellyferreira/storage-http/config"
	"github.com/raniellyferreira/storage-http/server"
	"github.com/raniellyferreira/storage-http/storage"
)

// Service runs the storage server together with its backend and audit trail
type Service struct {
	// Configuration
	config *config

	// Components, opened by Start
	backend storage.Backend
	audit   audit.Logger
	server  *server.Server

	ownsBackend bool
	ownsAudit   bool

	// State
	mu        sync.RWMutex
	started   bool
	closed    bool
	startedAt time.Time
}

// New creates a new Service with the given options
//
// The response catalog is loaded here so a broken catalog fails before any
// socket or backend is opened. Use Start() to begin serving.
//
// Example:
//
//	svc, err := storagehttp.New(
//		storagehttp.WithSettingsFile("etc/storage.conf"),
//		storagehttp.WithCatalogFile("etc/messages.json"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
func New(opts ...Option) (*Service, error) {
	cfg := defaultConfig()

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.catalog == nil {
		if cfg.catalogPath == "" {
			return nil, fmt.Errorf("%w: a response catalog is required", ErrInvalidConfig)
		}
		catalog, err := conf.LoadCatalog(cfg.catalogPath)
		if err != nil {
			return nil, err
		}
		cfg.catalog = catalog
	}

	if missing := cfg.catalog.Missing(); len(missing) > 0 {
		cfg.logger.Info("response catalog is incomplete; these codes fall back to 500",
			Field{Key: "missing", Value: missing})
	}

	return &Service{config: cfg}, nil
}

// Start opens the backend and audit log, binds the listener and runs the
// event loop in the background until ctx is cancelled or Close is called.
//
// Example:
//
//	if err := svc.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil // Already started
	}

	backend, ownsBackend, err := openBackend(ctx, s.config)
	if err != nil {
		s.config.logger.Error("Failed to open storage backend", Field{Key: "backend", Value: s.config.backendKind}, Field{Key: "error", Value: err})
		return err
	}

	auditLog, ownsAudit, err := openAudit(s.config)
	if err != nil {
		if ownsBackend {
			_ = backend.Close()
		}
		return err
	}

	srvCfg := server.Config{
		Addr:                 s.config.addr,
		ChunkSize:            s.config.chunkSize,
		MaxRequestsPerSecond: s.config.maxRequests,
		BaseRoot:             s.config.baseRoot,
		ReadTimeout:          s.config.readTimeout,
		PollInterval:         s.config.pollInterval,
		DrainTimeout:         s.config.drainTimeout,
		Catalog:              s.config.catalog,
		Backend:              backend,
		Audit:                auditLog,
		Logger:               &serverLogger{logger: s.config.logger},
		Now:                  s.config.now,
	}
	if s.config.metrics != nil {
		srvCfg.Metrics = &metricsAdapter{metrics: s.config.metrics}
	}

	srv, err := server.New(srvCfg)
	if err == nil {
		err = srv.Start(ctx)
		if err != nil {
			err = &ConnectionError{Addr: s.config.addr, Err: err}
		}
	}
	if err != nil {
		if ownsAudit {
			_ = auditLog.Close()
		}
		if ownsBackend {
			_ = backend.Close()
		}
		s.config.logger.Error("Failed to start server", Field{Key: "error", Value: err}, Field{Key: "addr", Value: s.config.addr})
		return err
	}

	s.backend, s.ownsBackend = backend, ownsBackend
	s.audit, s.ownsAudit = auditLog, ownsAudit
	s.server = srv
	s.started = true
	s.startedAt = time.Now()

	fields := []Field{
		{Key: "addr", Value: srv.Addr()},
		{Key: "backend", Value: s.backendName()},
		{Key: "max_requests_per_second", Value: s.config.maxRequests},
		{Key: "chunk_size", Value: s.config.chunkSize},
	}
	if s.config.auditPath != "" {
		fields = append(fields, Field{Key: "audit", Value: s.config.auditPath})
		if s.config.auditRotate > 0 {
			fields = append(fields, Field{Key: "audit_rotate", Value: humanize.Bytes(s.config.auditRotate)})
		}
	}
	s.config.logger.Info("Storage server listening", fields...)

	return nil
}

// Wait blocks until the event loop exits and returns its error
func (s *Service) Wait() error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	if srv == nil {
		return ErrNotStarted
	}
	return srv.Wait()
}

// Close stops the server and releases the backend and the audit log.
// It is safe to call more than once.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if !s.started {
		return nil
	}

	var errs []error

	// Stop server first so nothing touches the backend afterwards
	if err := s.server.Stop(); err != nil && !errors.Is(err, server.ErrNotStarted) {
		s.config.logger.Error("Error stopping server", Field{Key: "error", Value: err})
		errs = append(errs, err)
	}
	if s.ownsAudit {
		if err := s.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit log: %w", err))
		}
	}
	if s.ownsBackend {
		if err := s.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Addr returns the bound listen address, or the configured one before Start
func (s *Service) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server != nil {
		return s.server.Addr()
	}
	return s.config.addr
}

// Backend returns the storage backend in use, nil before Start
func (s *Service) Backend() storage.Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// Stats returns the server counters, empty before Start
func (s *Service) Stats() map[string]interface{} {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	if srv == nil {
		return map[string]interface{}{}
	}
	return srv.Stats()
}

// GetInfo returns a snapshot of the service: counters, configuration
// summary, key count when the backend can report it, and version.
func (s *Service) GetInfo(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	backend := s.backend
	startedAt := s.startedAt
	started := s.started
	s.mu.RUnlock()

	info := map[string]interface{}{
		"addr":      s.Addr(),
		"backend":   s.backendName(),
		"base_root": s.config.baseRoot,
		"server":    s.Stats(),
		"version":   VersionInfo(),
	}
	if started {
		info["uptime_seconds"] = int64(time.Since(startedAt).Seconds())
	}
	if counter, ok := backend.(storage.KeyCounter); ok {
		if n, err := counter.KeyCount(ctx); err == nil {
			info["keys"] = n
		} else {
			s.config.logger.Debug("Key count unavailable", Field{Key: "error", Value: err})
		}
	}
	return info
}

func (s *Service) backendName() string {
	if s.config.backend != nil {
		return fmt.Sprintf("%T", s.config.backend)
	}
	return string(s.config.backendKind)
}
