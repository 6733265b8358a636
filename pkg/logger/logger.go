package logger

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// CorrelationIDHeader is the HTTP header carrying a request correlation ID
	CorrelationIDHeader = "X-Correlation-ID"
	// CorrelationIDFieldKey is the field key used for correlation ID in log entries
	CorrelationIDFieldKey = "correlation_id"
)

type contextKey string

const correlationIDContextKey contextKey = "correlation_id"

// LogField is a single structured log field. Values are passed through to
// logrus untouched so numeric fields stay numeric in JSON output.
type LogField struct {
	Key   string
	Value any
}

// Logger is the logging surface every component receives by injection.
type Logger interface {
	Info(msg string, fields ...LogField)
	Error(msg string, fields ...LogField)
	Debug(msg string, fields ...LogField)
	Warn(msg string, fields ...LogField)
	WithFields(fields ...LogField) Logger
	WithCorrelationID(id string) Logger
}

// Config represents logger configuration
type Config struct {
	Level   Level
	Format  string
	Service string
	Output  io.Writer // defaults to os.Stdout
}

type logger struct {
	entry *logrus.Entry
}

// NewLogger creates a new logger instance with the given configuration
func NewLogger(config Config) Logger {
	base := logrus.New()

	if config.Format == "text" {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{})
	}

	if config.Output != nil {
		base.SetOutput(config.Output)
	} else {
		base.SetOutput(os.Stdout)
	}

	base.SetLevel(config.Level.logrusLevel())

	entry := logrus.NewEntry(base)
	if config.Service != "" {
		entry = entry.WithField("service", config.Service)
	}
	return &logger{entry: entry}
}

// NewNopLogger returns a logger that discards everything. Handy in tests.
func NewNopLogger() Logger {
	return NewLogger(Config{Level: ErrorLevel, Output: io.Discard})
}

// WithFields returns a new logger with additional fields (immutable)
func (l *logger) WithFields(fields ...LogField) Logger {
	return &logger{entry: l.entry.WithFields(toLogrus(fields))}
}

// WithCorrelationID returns a new logger with correlation ID field
func (l *logger) WithCorrelationID(id string) Logger {
	return l.WithFields(CorrelationIDField(id))
}

func (l *logger) Info(msg string, fields ...LogField) {
	l.entry.WithFields(toLogrus(fields)).Info(msg)
}

func (l *logger) Error(msg string, fields ...LogField) {
	l.entry.WithFields(toLogrus(fields)).Error(msg)
}

func (l *logger) Debug(msg string, fields ...LogField) {
	l.entry.WithFields(toLogrus(fields)).Debug(msg)
}

func (l *logger) Warn(msg string, fields ...LogField) {
	l.entry.WithFields(toLogrus(fields)).Warn(msg)
}

func toLogrus(fields []LogField) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

// StringField returns a LogField for a string value.
func StringField(key, value string) LogField {
	return LogField{Key: key, Value: value}
}

// IntField returns a LogField for an integer value.
func IntField(key string, value int) LogField {
	return LogField{Key: key, Value: value}
}

// Int64Field returns a LogField for an int64 value.
func Int64Field(key string, value int64) LogField {
	return LogField{Key: key, Value: value}
}

// BoolField returns a LogField for a boolean value.
func BoolField(key string, value bool) LogField {
	return LogField{Key: key, Value: value}
}

// DurationField returns a LogField for a time.Duration value.
func DurationField(key string, value time.Duration) LogField {
	return LogField{Key: key, Value: value.String()}
}

// ErrorField returns a LogField for an error value.
func ErrorField(err error) LogField {
	if err == nil {
		return LogField{Key: "error", Value: "<nil>"}
	}
	return LogField{Key: "error", Value: err.Error()}
}

// CorrelationIDField returns a LogField for a correlation ID.
func CorrelationIDField(id string) LogField {
	return StringField(CorrelationIDFieldKey, id)
}

// SessionField tags an entry with the conversation it belongs to.
func SessionField(sessionID string) LogField {
	return StringField("session_id", sessionID)
}

// EntityIDField tags an entry with an NPC id.
func EntityIDField(id string) LogField {
	return StringField("npc_id", id)
}

// WithCorrelationIDContext adds correlation ID to context
func WithCorrelationIDContext(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey, correlationID)
}

// GetCorrelationIDFromContext retrieves correlation ID from context
func GetCorrelationIDFromContext(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDContextKey).(string); ok {
		return correlationID
	}
	return ""
}

// EnsureHTTPCorrelationID makes sure the request carries a valid UUID
// correlation ID in both its header and its context.
func EnsureHTTPCorrelationID(r *http.Request) (*http.Request, string) {
	correlationID := r.Header.Get(CorrelationIDHeader)
	if _, err := uuid.Parse(correlationID); err != nil {
		correlationID = uuid.New().String()
		r.Header.Set(CorrelationIDHeader, correlationID)
	}
	ctx := WithCorrelationIDContext(r.Context(), correlationID)
	return r.WithContext(ctx), correlationID
}

// FromContext returns baseLogger enriched with the context's correlation ID, if any.
func FromContext(ctx context.Context, baseLogger Logger) Logger {
	if correlationID := GetCorrelationIDFromContext(ctx); correlationID != "" {
		return baseLogger.WithCorrelationID(correlationID)
	}
	return baseLogger
}
