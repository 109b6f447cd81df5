package logger

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// LogMessage is one captured entry
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Error   error
}

// capture is the record shared by a TestLogger and every logger derived from it
type capture struct {
	mu       sync.Mutex
	messages []LogMessage
}

// TestLogger records entries in memory so tests can assert on what a worker reported.
// Loggers derived with WithField, WithFields or WithError write to the same record.
type TestLogger struct {
	captured *capture
	fields   map[string]interface{}
	err      error
}

// NewTestLogger creates an empty test logger
func NewTestLogger() *TestLogger {
	return &TestLogger{captured: &capture{}}
}

func (l *TestLogger) with(extra map[string]interface{}, err error) *TestLogger {
	fields := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return &TestLogger{captured: l.captured, fields: fields, err: err}
}

func (l *TestLogger) record(level, msg string, extra map[string]interface{}) {
	entry := LogMessage{Level: level, Message: msg, Error: l.err}
	if len(l.fields) > 0 || len(extra) > 0 {
		entry.Fields = l.with(extra, nil).fields
	}

	l.captured.mu.Lock()
	defer l.captured.mu.Unlock()
	l.captured.messages = append(l.captured.messages, entry)
}

func (l *TestLogger) Debug(msg string) { l.record("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.record("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.record("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.record("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.record("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.record("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.record("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.record("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.record("ERROR", msg, fields)
}

func (l *TestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.record("FATAL", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.with(map[string]interface{}{key: value}, l.err)
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return l.with(fields, l.err)
}

func (l *TestLogger) WithError(err error) Logger {
	return l.with(nil, err)
}

func (l *TestLogger) WithContext(ctx context.Context) Logger { return l }

// GetZerolog returns a disabled logger; entries only go to the in-memory record
func (l *TestLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

// find returns the captured entries accepted by match, oldest first
func (l *TestLogger) find(match func(LogMessage) bool) []LogMessage {
	l.captured.mu.Lock()
	defer l.captured.mu.Unlock()

	var found []LogMessage
	for _, m := range l.captured.messages {
		if match(m) {
			found = append(found, m)
		}
	}
	return found
}

// GetMessagesByLevel returns every entry logged at level
func (l *TestLogger) GetMessagesByLevel(level string) []LogMessage {
	return l.find(func(m LogMessage) bool { return m.Level == level })
}

// HasMessage reports whether an entry with exactly this message was logged
func (l *TestLogger) HasMessage(text string) bool {
	return l.CountMessages(text) > 0
}

// CountMessages returns how many entries carry exactly this message
func (l *TestLogger) CountMessages(text string) int {
	return len(l.find(func(m LogMessage) bool { return m.Message == text }))
}

// FindMessage returns the first entry with exactly this message
func (l *TestLogger) FindMessage(text string) (LogMessage, bool) {
	found := l.find(func(m LogMessage) bool { return m.Message == text })
	if len(found) == 0 {
		return LogMessage{}, false
	}
	return found[0], true
}
