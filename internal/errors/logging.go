package errors

import (
	"context"
	"strings"

	"unibox/internal/privacy"
	"unibox/internal/tracing"

	"github.com/sirupsen/logrus"
)

// Logger decorates a logrus logger with the error taxonomy: entries carry
// the error code, the retryability flag, and the error's context with
// participant identifiers masked.
type Logger struct {
	*logrus.Logger
}

// NewLogger wraps an already configured logrus logger.
func NewLogger(base *logrus.Logger) *Logger {
	return &Logger{Logger: base}
}

// LogError logs err at error level with its structured fields.
func (l *Logger) LogError(err error, message string, fields ...logrus.Fields) {
	l.entryFor(err, fields).Error(message)
}

// LogWarn logs err at warn level with its structured fields.
func (l *Logger) LogWarn(err error, message string, fields ...logrus.Fields) {
	l.entryFor(err, fields).Warn(message)
}

// LogRetryableError logs transient faults at warn level and permanent ones
// at error level.
func (l *Logger) LogRetryableError(err error, message string, fields ...logrus.Fields) {
	l.entryFor(err, fields).Log(retryLevel(err), message)
}

// LogErrorContext is LogRetryableError plus trace correlation: the entry
// carries the ids from ctx and the error is recorded on the active span,
// when one is recording.
func (l *Logger) LogErrorContext(ctx context.Context, err error, message string, fields ...logrus.Fields) {
	tracing.RecordError(ctx, err)
	l.entryFor(err, fields).WithFields(traceFields(ctx)).Log(retryLevel(err), message)
}

// WithContext adds fields to subsequent log entries.
func (l *Logger) WithContext(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithError builds an entry carrying err's structured fields.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entryFor(err, nil)
}

func retryLevel(err error) logrus.Level {
	if IsRetryable(err) {
		return logrus.WarnLevel
	}
	return logrus.ErrorLevel
}

func traceFields(ctx context.Context) logrus.Fields {
	fields := logrus.Fields{}
	if id := tracing.GetRequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if id := tracing.GetTraceID(ctx); id != "" {
		fields["trace_id"] = id
	}
	return fields
}

func (l *Logger) entryFor(err error, extra []logrus.Fields) *logrus.Entry {
	entry := l.Logger.WithError(err)

	if appErr, ok := AsAppError(err); ok {
		entry = entry.WithFields(logrus.Fields{
			"error_code": appErr.Code,
			"retryable":  appErr.Retryable,
		})
		for k, v := range appErr.Context {
			entry = entry.WithField(k, maskedContextValue(k, v))
		}
	}

	for _, f := range extra {
		entry = entry.WithFields(f)
	}
	return entry
}

// maskedContextValue masks values whose key suggests a participant address,
// a phone, email, or handle that must not land in logs raw.
func maskedContextValue(key string, value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	for _, marker := range []string{"identifier", "participant", "sender"} {
		if strings.Contains(key, marker) {
			return privacy.MaskIdentifier(s)
		}
	}
	return value
}
