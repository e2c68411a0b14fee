package audit

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event types written by the server
const (
	TypeInfo    = "info"
	TypeWarning = "warning"
	TypeError   = "error"
)

// TimeLayout is the timestamp format of every audit line
const TimeLayout = "01/02/2006 15:04:05"

// ErrClosed is returned by Write after Close
var ErrClosed = errors.New("audit: logger is closed")

// Logger records storage events. Implementations must be safe for
// concurrent use.
type Logger interface {
	// Write appends one event line
	Write(eventType, message string) error

	// Close releases any resources held by the logger
	Close() error
}

// NopLogger discards all events. Use it when auditing is disabled.
type NopLogger struct{}

// Write discards the event
func (NopLogger) Write(_, _ string) error { return nil }

// Close is a no-op
func (NopLogger) Close() error { return nil }

var _ Logger = NopLogger{}

// Option configures a FileLogger
type Option func(*FileLogger)

// WithRotateSize rotates the file once writing a line would grow it past
// size bytes. Zero disables rotation.
func WithRotateSize(size uint64) Option {
	return func(l *FileLogger) {
		l.rotateSize = size
	}
}

// WithCompression zips rotated files and removes the uncompressed copy
func WithCompression(enabled bool) Option {
	return func(l *FileLogger) {
		l.compress = enabled
	}
}

// WithClock sets the time source used for line timestamps
func WithClock(now func() time.Time) Option {
	return func(l *FileLogger) {
		l.now = now
	}
}

// FileLogger appends "[MM/DD/YYYY HH:MM:SS] [type] message" lines to a file.
// Every line is written through before Write returns.
type FileLogger struct {
	path       string
	rotateSize uint64
	compress   bool
	now        func() time.Time

	mu        sync.Mutex
	file      *os.File
	size      uint64
	rotations int
}

// NewFileLogger opens path for appending, creating it if needed
func NewFileLogger(path string, opts ...Option) (*FileLogger, error) {
	l := &FileLogger{
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("audit: failed to stat log file: %w", err)
	}
	l.file = file
	l.size = uint64(info.Size())
	return nil
}

// FormatLine renders one audit line without the trailing newline
func FormatLine(t time.Time, eventType, message string) string {
	return fmt.Sprintf("[%s] [%s] %s", t.Format(TimeLayout), eventType, message)
}

// Write appends one event line, rotating first when the line would not fit
func (l *FileLogger) Write(eventType, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrClosed
	}

	line := FormatLine(l.now(), eventType, message) + "\n"

	if l.rotateSize > 0 && l.size > 0 && l.size+uint64(len(line)) > l.rotateSize {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.file.WriteString(line)
	l.size += uint64(n)
	if err != nil {
		return fmt.Errorf("audit: failed to write entry: %w", err)
	}
	return nil
}

// Path returns the active log file path
func (l *FileLogger) Path() string {
	return l.path
}

// Close syncs and closes the file. Closing twice is a no-op.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	_ = l.file.Sync()
	err := l.file.Close()
	l.file = nil
	return err
}

var _ Logger = (*FileLogger)(nil)
