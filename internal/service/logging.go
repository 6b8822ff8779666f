package service

import (
	"context"

	"unibox/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey keeps this package's context values from colliding with
// keys defined elsewhere.
type ContextKey string

// VerboseContextKey carries the operator's -verbose choice down to the
// logging helpers. Only a bool true enables verbose output.
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging reports whether ctx opts into unmasked identifiers.
func IsVerboseLogging(ctx context.Context) bool {
	verbose, _ := ctx.Value(VerboseContextKey).(bool)
	return verbose
}

// LogWithContext is the entry point for service-level logs. Verbose
// entries are tagged so operators can tell masked and unmasked records
// apart when reading back.
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	entry := logger.WithContext(ctx)
	if IsVerboseLogging(ctx) {
		entry = entry.WithField("verbose", true)
	}
	return entry
}

// maskUnlessVerbose applies mask to a customer identifier except when
// ctx enables verbose mode.
func maskUnlessVerbose(ctx context.Context, value string, mask func(string) string) string {
	if IsVerboseLogging(ctx) {
		return value
	}
	return mask(value)
}

// LogMessageIngestion emits the one info line every accepted message
// produces, with identifiers masked per the verbose flag.
func LogMessageIngestion(ctx context.Context, logger *logrus.Logger, channel, externalConversationID, participant string, created bool) {
	LogWithContext(ctx, logger).WithFields(logrus.Fields{
		LogFieldComponent:  "message_service",
		LogFieldOperation:  "submit_message",
		LogFieldChannel:    channel,
		LogFieldExternalID: maskUnlessVerbose(ctx, externalConversationID, privacy.MaskExternalID),
		"participant":      maskUnlessVerbose(ctx, participant, privacy.MaskIdentifier),
		"new_conversation": created,
	}).Info("Message ingested")
}
