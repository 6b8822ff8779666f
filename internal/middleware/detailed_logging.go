package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"unibox/internal/httputil"
	"unibox/internal/privacy"
	"unibox/internal/service"
	"unibox/internal/tracing"

	"github.com/sirupsen/logrus"
)

const maskedValue = "***MASKED***"

// DetailedLoggingConfig selects which parts of a request/response pair are
// written to the debug log.
type DetailedLoggingConfig struct {
	LogRequestHeaders  bool     `json:"log_request_headers"`
	LogResponseHeaders bool     `json:"log_response_headers"`
	LogRequestBody     bool     `json:"log_request_body"`
	LogResponseBody    bool     `json:"log_response_body"`
	MaxBodySize        int      `json:"max_body_size"`
	SensitiveHeaders   []string `json:"sensitive_headers"`
	SkipEndpoints      []string `json:"skip_endpoints"`
}

// DefaultDetailedLoggingConfig logs request headers only. Bodies stay off so
// message content never lands in log files unless someone opts in while
// debugging.
func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		LogRequestHeaders: true,
		MaxBodySize:       1024,
		SensitiveHeaders: []string{
			"authorization", "x-api-key", "x-ingest-hmac",
			"cookie", "set-cookie", "x-auth-token",
		},
		SkipEndpoints: []string{"/metrics", "/health", "/events/ws"},
	}
}

// DetailedLoggingMiddleware writes a verbose debug record for each request
// and, when configured, for the response it produced. Endpoints on the skip
// list pass through untouched; the health and metrics pollers would
// otherwise drown the log.
func DetailedLoggingMiddleware(logger *logrus.Logger, cfg DetailedLoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipDetailedLogging(r.URL.Path, cfg.SkipEndpoints) {
				next.ServeHTTP(w, r)
				return
			}

			info := tracing.GetRequestInfo(r.Context())
			logger.WithFields(requestRecord(r, info, cfg)).Debug("Detailed request logging")

			if !cfg.LogResponseBody && !cfg.LogResponseHeaders {
				next.ServeHTTP(w, r)
				return
			}

			echo := newEchoWriter(w)
			next.ServeHTTP(echo, r)
			logger.WithFields(responseRecord(echo, info, cfg)).Debug("Detailed response logging")
		})
	}
}

func skipDetailedLogging(path string, skip []string) bool {
	for _, s := range skip {
		if strings.Contains(path, s) {
			return true
		}
	}
	return false
}

// requestRecord assembles the debug fields for the inbound side. When body
// logging is on, the body is consumed and replaced so the handler still
// gets to read it.
func requestRecord(r *http.Request, info *tracing.RequestInfo, cfg DetailedLoggingConfig) logrus.Fields {
	fields := logrus.Fields{
		service.LogFieldRequestID: info.RequestID,
		service.LogFieldTraceID:   info.TraceID,
		service.LogFieldMethod:    r.Method,
		service.LogFieldURL:       r.URL.String(),
		service.LogFieldRemoteIP:  httputil.GetClientIP(r),
		"content_length":          r.ContentLength,
		"protocol":                r.Proto,
	}

	if cfg.LogRequestHeaders {
		fields["request_headers"] = maskHeaders(r.Header, cfg.SensitiveHeaders)
	}

	if cfg.LogRequestBody && textualBody(r) && r.ContentLength > 0 && r.ContentLength <= int64(cfg.MaxBodySize) {
		if body, err := io.ReadAll(r.Body); err == nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
			fields["request_body"] = maskBody(string(body))
		}
	}

	return fields
}

// responseRecord assembles the debug fields for the outbound side from the
// captured response.
func responseRecord(echo *echoWriter, info *tracing.RequestInfo, cfg DetailedLoggingConfig) logrus.Fields {
	fields := logrus.Fields{
		service.LogFieldRequestID:  info.RequestID,
		service.LogFieldTraceID:    info.TraceID,
		service.LogFieldStatusCode: echo.status,
		"response_size":            echo.body.Len(),
	}

	if cfg.LogResponseHeaders {
		fields["response_headers"] = maskHeaders(echo.sent, cfg.SensitiveHeaders)
	}

	if cfg.LogResponseBody && echo.body.Len() > 0 {
		if echo.body.Len() > cfg.MaxBodySize {
			fields["response_body"] = fmt.Sprintf("***TRUNCATED*** (size: %d bytes)", echo.body.Len())
		} else {
			fields["response_body"] = maskBody(echo.body.String())
		}
	}

	return fields
}

func maskBody(body string) interface{} {
	return privacy.MaskSensitiveFields(map[string]interface{}{"body": body})["body"]
}

// maskHeaders flattens header values for logging, replacing those on the
// sensitive list.
func maskHeaders(h http.Header, sensitive []string) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if sensitiveHeader(name, sensitive) {
			out[name] = maskedValue
		} else {
			out[name] = strings.Join(values, ", ")
		}
	}
	return out
}

func sensitiveHeader(name string, sensitive []string) bool {
	for _, s := range sensitive {
		if strings.EqualFold(name, s) {
			return true
		}
	}
	return false
}

// textualBody reports whether the request body is worth echoing into a log
// line. Binary uploads are skipped regardless of size.
func textualBody(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	for _, prefix := range []string{
		"application/json",
		"application/xml",
		"application/x-www-form-urlencoded",
		"text/",
	} {
		if strings.Contains(contentType, prefix) {
			return true
		}
	}
	return false
}

// echoWriter tees response output into a buffer so the response side can be
// logged after the handler returns. Headers are snapshotted at WriteHeader
// time since the handler may keep mutating the header map afterwards.
type echoWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	sent   http.Header
	status int
}

func newEchoWriter(w http.ResponseWriter) *echoWriter {
	return &echoWriter{ResponseWriter: w, sent: make(http.Header), status: http.StatusOK}
}

func (e *echoWriter) WriteHeader(code int) {
	e.status = code
	for name, values := range e.ResponseWriter.Header() {
		e.sent[name] = values
	}
	e.ResponseWriter.WriteHeader(code)
}

func (e *echoWriter) Write(p []byte) (int, error) {
	n, err := e.ResponseWriter.Write(p)
	if err == nil {
		e.body.Write(p[:n])
	}
	return n, err
}
