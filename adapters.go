package storagehttp

import (
	"time"
)

// serverLogger adapts our Logger interface to server.Logger
type serverLogger struct {
	logger Logger
}

func (sl *serverLogger) Debug(msg string, fields ...interface{}) {
	sl.logger.Debug(msg, convertFields(fields...)...)
}

func (sl *serverLogger) Info(msg string, fields ...interface{}) {
	sl.logger.Info(msg, convertFields(fields...)...)
}

func (sl *serverLogger) Error(msg string, fields ...interface{}) {
	sl.logger.Error(msg, convertFields(fields...)...)
}

func convertFields(fields ...interface{}) []Field {
	result := make([]Field, 0, len(fields)/2)
	for i := 0; i < len(fields)-1; i += 2 {
		if key, ok := fields[i].(string); ok {
			result = append(result, Field{
				Key:   key,
				Value: fields[i+1],
			})
		}
	}
	return result
}

// metricsAdapter adapts our MetricsCollector to server.Metrics
type metricsAdapter struct {
	metrics MetricsCollector
}

func (ma *metricsAdapter) RecordRequest(method, code string, duration time.Duration) {
	ma.metrics.RecordRequest(method, code, duration)
}

func (ma *metricsAdapter) RecordRejected() {
	ma.metrics.RecordRejected()
}

func (ma *metricsAdapter) RecordError(errorType string) {
	ma.metrics.RecordError(errorType)
}
