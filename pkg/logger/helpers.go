package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// orGlobal returns log, or the global logger when log is nil
func orGlobal(log Logger) Logger {
	if log == nil {
		return GetLogger()
	}
	return log
}

// LogRequest logs a completed remote API request
func LogRequest(log Logger, kind, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"endpoint":    kind,
		"url":         url,
		"status_code": statusCode,
		"duration":    duration,
	}

	switch {
	case statusCode >= 500:
		orGlobal(log).WarnWithFields("API request server error", fields)
	case statusCode >= 400:
		orGlobal(log).DebugWithFields("API request client error", fields)
	default:
		orGlobal(log).DebugWithFields("API request completed", fields)
	}
}

// LogRateLimit logs a rate limit rejection from the remote service
func LogRateLimit(log Logger, kind string, retryAfter time.Duration) {
	orGlobal(log).WithFields(map[string]interface{}{
		"endpoint":    kind,
		"retry_after": retryAfter,
		"action":      "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogSkippedRecord reports a record dropped because it failed validation
func LogSkippedRecord(log Logger, record, reason string, fields map[string]interface{}) {
	merged := map[string]interface{}{
		"record": record,
		"reason": reason,
		"action": "skipped",
	}
	for k, v := range fields {
		merged[k] = v
	}
	orGlobal(log).WarnWithFields("Malformed record skipped", merged)
}

// LogComponentStart logs when a component starts
func LogComponentStart(log Logger, component string, config map[string]interface{}) {
	l := orGlobal(log).WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(log Logger, component string, reason string) {
	orGlobal(log).WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// LogMetrics logs counters collected over one unit of work
func LogMetrics(log Logger, operation string, metrics map[string]interface{}) {
	fields := map[string]interface{}{
		"operation": operation,
		"type":      "metrics",
	}
	for k, v := range metrics {
		fields[k] = v
	}
	orGlobal(log).InfoWithFields("Cycle metrics", fields)
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { l := zerolog.Nop(); return &l }
