package storagehttp

import (
	"errors"
	"fmt"
)

// Error types for specific failure scenarios
var (
	// ErrInvalidConfig indicates invalid configuration options
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotStarted indicates the service has not been started
	ErrNotStarted = errors.New("service not started")

	// ErrClosed indicates the service has been closed
	ErrClosed = errors.New("service is closed")
)

// ConnectionError represents a failure to bind the listener or reach a
// storage server
type ConnectionError struct {
	Addr string
	Err  error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error to %s: %v", e.Addr, e.Err)
}

// Unwrap returns the wrapped error
func (e *ConnectionError) Unwrap() error {
	return e.Err
}
