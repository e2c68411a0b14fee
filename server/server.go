package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/raniellyferreira/storage-http/audit"
	"github.com/raniellyferreira/storage-http/protocol"
	"github.com/raniellyferreira/storage-http/storage"
)

// Server errors
var (
	ErrNoCatalog    = errors.New("server: response catalog is required")
	ErrNoBackend    = errors.New("server: storage backend is required")
	ErrStarted      = errors.New("server: already started")
	ErrNotStarted   = errors.New("server: not started")
	ErrNotTCPListen = errors.New("server: listener is not TCP")
)

// DefaultDrainTimeout bounds the drain before a connection is closed
const DefaultDrainTimeout = 50 * time.Millisecond

// maxDrainBytes caps what a closing connection discards
const maxDrainBytes = 1 << 20

// Config holds everything a Server needs. Catalog and Backend are required.
type Config struct {
	Addr                 string
	ChunkSize            int
	MaxRequestsPerSecond int
	BaseRoot             string

	// ReadTimeout bounds every connection's request read. Zero means reads
	// block until the peer sends or closes, stalling the loop meanwhile.
	ReadTimeout  time.Duration
	PollInterval time.Duration

	// DrainTimeout bounds how long a socket is drained of unread request
	// bytes before it is closed. Zero selects DefaultDrainTimeout; negative
	// closes at once, which resets connections whose request was not read.
	DrainTimeout time.Duration

	Catalog *protocol.Catalog
	Backend storage.Backend
	Audit   audit.Logger
	Logger  Logger
	Metrics Metrics

	// Now is the admission clock; defaults to time.Now
	Now func() time.Time
}

// Server serves the storage protocol from a single event loop
type Server struct {
	cfg        Config
	loop       *Loop
	limiter    *RateLimiter
	dispatcher *Dispatcher
	logger     Logger
	metrics    Metrics

	listener *net.TCPListener
	conns    map[int]*conn

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	mu      sync.Mutex
	started bool
	stopped bool

	// Metrics
	connCount     atomic.Int64
	activeCount   atomic.Int64
	requestCount  atomic.Int64
	rejectedCount atomic.Int64
	errorCount    atomic.Int64
}

// conn is one accepted client socket, registered with the loop until release
type conn struct {
	id     string
	fd     int
	nc     *net.TCPConn
	remote string
	once   sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { _ = c.nc.Close() })
}

func (c *conn) closeDrained(timeout time.Duration) {
	c.once.Do(func() { closeDrained(c.nc, timeout) })
}

// closeDrained half-closes nc and discards whatever the peer still sends,
// for at most timeout, so unread request bytes do not turn the close into
// a reset that can destroy the reply.
func closeDrained(nc *net.TCPConn, timeout time.Duration) {
	if timeout > 0 {
		_ = nc.CloseWrite()
		_ = nc.SetReadDeadline(time.Now().Add(timeout))
		_, _ = io.Copy(io.Discard, io.LimitReader(nc, maxDrainBytes))
	}
	_ = nc.Close()
}

// New creates a server. Nothing is bound until Start.
func New(cfg Config) (*Server, error) {
	if cfg.Catalog == nil {
		return nil, ErrNoCatalog
	}
	if cfg.Backend == nil {
		return nil, ErrNoBackend
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = protocol.DefaultChunkSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Server{
		cfg:        cfg,
		loop:       NewLoop(cfg.PollInterval),
		limiter:    NewRateLimiter(cfg.MaxRequestsPerSecond),
		dispatcher: NewDispatcher(cfg.BaseRoot, cfg.Backend, cfg.Audit, cfg.Logger),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		conns:      make(map[int]*conn),
		done:       make(chan struct{}),
	}, nil
}

// Start binds the listener and runs the loop in its own goroutine until ctx
// is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrStarted
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return ErrNotTCPListen
	}

	fd, err := socketFD(tcp)
	if err != nil {
		_ = tcp.Close()
		return fmt.Errorf("failed to get listener descriptor: %w", err)
	}
	if err := s.loop.Register(fd, s.acceptReady); err != nil {
		_ = tcp.Close()
		return err
	}

	s.listener = tcp
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	go s.run()

	s.logger.Info("server listening", "addr", tcp.Addr().String(), "base", s.cfg.BaseRoot)
	return nil
}

func (s *Server) run() {
	defer close(s.done)

	err := s.loop.Run(s.ctx)
	if err != nil {
		s.logger.Error("event loop stopped", "error", err)
	}

	// the loop goroutine owns the connections; release them on the way out
	for _, c := range s.conns {
		s.loop.Unregister(c.fd)
		c.close()
		s.activeCount.Add(-1)
	}
	s.conns = make(map[int]*conn)
	_ = s.listener.Close()

	s.mu.Lock()
	s.runErr = err
	s.mu.Unlock()
}

// Stop cancels the loop, waits for it to exit and closes every socket
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	first := !s.stopped
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	<-s.done

	if first {
		s.logger.Info("server stopped", "connections", s.connCount.Load(), "requests", s.requestCount.Load())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Wait blocks until the loop exits and returns its error
func (s *Server) Wait() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.mu.Unlock()

	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Stats returns server statistics
func (s *Server) Stats() map[string]interface{} {
	return map[string]interface{}{
		"active_connections":   s.activeCount.Load(),
		"total_connections":    s.connCount.Load(),
		"total_requests":       s.requestCount.Load(),
		"rejected_connections": s.rejectedCount.Load(),
		"total_errors":         s.errorCount.Load(),
	}
}

// acceptReady runs on the loop when the listener is readable
func (s *Server) acceptReady() {
	// a peer may reset before accept; never block the loop past one interval
	_ = s.listener.SetDeadline(time.Now().Add(s.cfg.PollInterval))

	nc, err := s.listener.AcceptTCP()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return
		}
		if s.ctx.Err() == nil {
			s.logger.Debug("accept failed", "error", err)
		}
		return
	}
	s.connCount.Add(1)

	remote := remoteHost(nc.RemoteAddr())

	if !s.limiter.Admit(s.cfg.Now()) {
		s.rejectedCount.Add(1)
		s.metrics.RecordRejected()
		s.logger.Info(fmt.Sprintf("Too Many Requests, dropped %s", nc.RemoteAddr()), "remote", remote)
		s.reject(nc)
		return
	}

	fd, err := socketFD(nc)
	if err != nil {
		s.logger.Error("failed to get connection descriptor", "remote", remote, "error", err)
		_ = nc.Close()
		return
	}

	c := &conn{
		id:     uuid.NewString(),
		fd:     fd,
		nc:     nc,
		remote: remote,
	}
	if err := s.loop.Register(fd, func() { s.serve(c) }); err != nil {
		s.logger.Error("failed to register connection", "conn", c.id, "error", err)
		c.close()
		return
	}
	s.conns[fd] = c
	s.activeCount.Add(1)

	s.logger.Debug("connection accepted", "conn", c.id, "remote", remote)
}

// reject answers "many" and closes without registering
func (s *Server) reject(nc *net.TCPConn) {
	defer closeDrained(nc, s.cfg.DrainTimeout)

	if s.cfg.ReadTimeout > 0 {
		_ = nc.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	resp, ok := s.cfg.Catalog.Render(protocol.CodeMany)
	if !ok {
		s.logger.Info(fmt.Sprintf("rule [%s] Not Found", protocol.CodeMany))
	}
	_, _ = nc.Write(resp)
}

// release unregisters and closes c exactly once
func (s *Server) release(c *conn) {
	if s.loop.Unregister(c.fd) {
		delete(s.conns, c.fd)
		s.activeCount.Add(-1)
	}
	c.closeDrained(s.cfg.DrainTimeout)
}

// serve handles the one request carried by c
func (s *Server) serve(c *conn) {
	defer s.release(c)

	start := time.Now()
	s.requestCount.Add(1)

	if s.cfg.ReadTimeout > 0 {
		_ = c.nc.SetDeadline(start.Add(s.cfg.ReadTimeout))
	}

	reader := protocol.NewReader(c.nc, s.cfg.ChunkSize)
	writer := protocol.NewWriter(c.nc, s.cfg.Catalog)

	lines, err := reader.ReadHeaderLines()
	if err != nil {
		s.fail(c, writer, err)
		return
	}

	headers, err := protocol.ParseHeaders(lines, c.remote)
	if err != nil {
		s.fail(c, writer, err)
		return
	}

	resp, err := s.dispatcher.Dispatch(s.ctx, headers, reader)
	if err != nil {
		s.abort(c, err)
		return
	}

	if resp.Status != "" {
		err = writer.WriteJSON(resp.Status, resp.Body)
	} else {
		err = s.writeCode(writer, resp.Code)
	}
	if err != nil {
		s.abort(c, err)
		return
	}

	code := string(resp.Code)
	if resp.Status != "" {
		code = "ok"
	}
	s.metrics.RecordRequest(headers.Method, code, time.Since(start))
	s.logger.Debug("request served", "conn", c.id, "method", headers.Method, "uri", headers.URI, "code", code)
}

// fail answers a framing or parsing failure with badhttp; transport errors
// close silently
func (s *Server) fail(c *conn, writer *protocol.Writer, err error) {
	if !errors.Is(err, protocol.ErrMalformed) {
		s.abort(c, err)
		return
	}

	s.errorCount.Add(1)
	s.metrics.RecordError("badhttp")
	s.logger.Error(fmt.Sprintf("[%s] bad request", c.remote), "conn", c.id, "error", err)

	if err := s.writeCode(writer, protocol.CodeBadHTTP); err != nil {
		s.logger.Debug("connection abort", "conn", c.id, "error", err)
	}
}

func (s *Server) abort(c *conn, err error) {
	s.errorCount.Add(1)
	s.metrics.RecordError("transport")
	s.logger.Debug("connection abort", "conn", c.id, "remote", c.remote, "error", err)
}

func (s *Server) writeCode(writer *protocol.Writer, code protocol.Code) error {
	ok, err := writer.WriteCode(code)
	if !ok {
		s.logger.Info(fmt.Sprintf("rule [%s] Not Found", code))
	}
	return err
}

func remoteHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
