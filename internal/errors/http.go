package errors

import "net/http"

// HTTPStatusCode maps an error to the status the HTTP layer should send.
// Unrecognized errors are treated as internal faults.
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig, ErrCodeInvalidCategory:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeAuthorization:
		return http.StatusForbidden
	case ErrCodeNotFound, ErrCodeUnknownChannel, ErrCodeOrphanConversation:
		return http.StatusNotFound
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON body written for failed requests.
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// redactedContextKey lists context entries never echoed back to callers.
func redactedContextKey(key string) bool {
	switch key {
	case "password", "token", "secret":
		return true
	}
	return false
}

func publicContext(ctx map[string]interface{}) map[string]interface{} {
	if len(ctx) == 0 {
		return nil
	}
	public := make(map[string]interface{}, len(ctx))
	for k, v := range ctx {
		if !redactedContextKey(k) {
			public[k] = v
		}
	}
	if len(public) == 0 {
		return nil
	}
	return public
}

// ToHTTPResponse renders err as the standard error body. The message comes
// from GetUserMessage, never from the internal error text.
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	resp := HTTPErrorResponse{RequestID: requestID}
	resp.Error.Message = GetUserMessage(err)

	if appErr, ok := AsAppError(err); ok {
		resp.Error.Code = appErr.Code
		if ctx := publicContext(appErr.Context); ctx != nil {
			resp.Error.Context = ctx
		}
	} else {
		resp.Error.Code = ErrCodeInternalError
	}
	return resp
}
