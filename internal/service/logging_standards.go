package service

// Shared logrus field names. Handlers, services, and middleware draw
// from this list so operators can filter the JSON stream on stable keys
// instead of guessing per-call spellings.
const (
	// What the log line is about.
	LogFieldChannel        = "channel"
	LogFieldConversationID = "conversation_id"
	LogFieldMessageID      = "message_id"
	LogFieldExternalID     = "external_id"
	LogFieldUser           = "user"

	// Where in the code it happened.
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Message lifecycle details.
	LogFieldEvent       = "event"
	LogFieldMessageType = "message_type"
	LogFieldDirection   = "direction" // "incoming" or "outgoing"
	LogFieldCategory    = "category"
	LogFieldActionType  = "action_type"

	// Timing and volume.
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// HTTP surface.
	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	// Correlation across a request.
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// Failure details.
	LogFieldErrorCode  = "error_code"
	LogFieldErrorType  = "error_type"
	LogFieldRetryCount = "retry_count"
	LogFieldAttempt    = "attempt"
)

// Level conventions:
//
// Error means someone should look: database writes that exhausted their
// retries, ingest payloads rejected outright, broken configuration.
// Warn covers things the system absorbed on its own, like a retryable
// failure, an unknown channel name, or a rate-limited client. Info is
// for business events (message ingested, category changed, service
// start and stop). Debug is the full-payload firehose and only exists
// in verbose mode.
//
// A typical service-level call:
//
//	LogWithContext(ctx, logger).WithFields(logrus.Fields{
//	    LogFieldComponent: "message_service",
//	    LogFieldOperation: "submit_message",
//	    LogFieldChannel:   channelName,
//	}).Info("Message ingested")
//
// Identifier values go through the masking helpers in logging.go before
// they reach a field.
