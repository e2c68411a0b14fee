package storagehttp

import (
	"time"
)

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// MetricsCollector interface for metrics collection
type MetricsCollector interface {
	// RecordRequest records one answered request with the catalog code it
	// was answered with, or "ok" for a successful GET
	RecordRequest(method, code string, duration time.Duration)

	// RecordRejected records a connection dropped by admission control
	RecordRejected()

	// RecordError records an error event
	RecordError(errorType string)
}
