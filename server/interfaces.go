package server

import "time"

// Logger receives diagnostic messages with alternating key/value fields
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Metrics receives per-connection outcomes
type Metrics interface {
	RecordRequest(method, code string, duration time.Duration)
	RecordRejected()
	RecordError(kind string)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(string, string, time.Duration) {}
func (nopMetrics) RecordRejected()                             {}
func (nopMetrics) RecordError(string)                          {}
