// Package errors defines the application error taxonomy: coded errors
// carrying structured context, a retryability hint, and text safe to show
// outside the service.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies an error for HTTP mapping, logging, and retry
// decisions.
type ErrorCode string

const (
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	ErrCodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
	ErrCodeDatabaseMigration  ErrorCode = "DATABASE_MIGRATION"

	ErrCodeUnknownChannel     ErrorCode = "UNKNOWN_CHANNEL"
	ErrCodeInvalidCategory    ErrorCode = "INVALID_CATEGORY"
	ErrCodeOrphanConversation ErrorCode = "ORPHAN_CONVERSATION"

	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	ErrCodeAuthentication ErrorCode = "AUTHENTICATION"
	ErrCodeAuthorization  ErrorCode = "AUTHORIZATION"
	ErrCodeRateLimit      ErrorCode = "RATE_LIMIT"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeTimeout       ErrorCode = "TIMEOUT"
)

// AppError is the error type the rest of the service produces and inspects.
// Message is internal wording; UserMessage is what callers may see.
type AppError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Retryable   bool                   `json:"retryable"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key value pair that flows into logs and HTTP
// error bodies.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets the text shown to callers in place of the internal
// message.
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// New builds an AppError with the given code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err}
}

// WrapRetryable is Wrap for transient faults a caller may retry.
func WrapRetryable(err error, code ErrorCode, message string) *AppError {
	e := Wrap(err, code, message)
	e.Retryable = true
	return e
}

// NewValidationError reports a request field that failed validation.
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewUnknownChannelError is returned when an event references a channel
// that does not exist, or one that is inactive and has no prior
// conversation for the pair. Not retryable: it indicates a caller or
// configuration bug.
func NewUnknownChannelError(name string) *AppError {
	return New(ErrCodeUnknownChannel, fmt.Sprintf("unknown or inactive channel %q", name)).
		WithContext("channel", name).
		WithUserMessage("Unknown or inactive channel")
}

// NewInvalidCategoryError is returned before any mutation when a category
// value falls outside the closed enumeration.
func NewInvalidCategoryError(value string) *AppError {
	return New(ErrCodeInvalidCategory, fmt.Sprintf("invalid category %q", value)).
		WithContext("category", value).
		WithUserMessage("Invalid category")
}

// NewOrphanConversationError reports a referential-integrity fault: a
// message operation referenced a conversation row that no longer exists.
// Fatal to the calling operation, never repaired silently.
func NewOrphanConversationError(conversationID int64) *AppError {
	return New(ErrCodeOrphanConversation, fmt.Sprintf("conversation %d does not exist", conversationID)).
		WithContext("conversation_id", conversationID).
		WithUserMessage("Conversation not found")
}

// NewAuthError reports a failed webhook signature or credential check.
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewNotFoundError reports a missing resource by kind and identifier.
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewRateLimitError reports a client that exceeded the request budget.
func NewRateLimitError(limit int, window string) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithContext("limit", limit).
		WithContext("window", window).
		WithUserMessage("Too many requests, please try again later")
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable reports whether err's chain contains an AppError marked
// retryable.
func IsRetryable(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Retryable
}

// GetCode returns the code of the first AppError in err's chain, or
// ErrCodeInternalError for foreign errors.
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// GetUserMessage returns the caller-facing text for err. Foreign errors and
// AppErrors without a user message collapse to a generic line so internal
// wording never leaks.
func GetUserMessage(err error) string {
	if appErr, ok := AsAppError(err); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "An internal error occurred"
}
