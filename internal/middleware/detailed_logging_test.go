package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"unibox/internal/tracing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDetailedLoggingConfig(t *testing.T) {
	cfg := DefaultDetailedLoggingConfig()

	assert.True(t, cfg.LogRequestHeaders)
	assert.False(t, cfg.LogResponseHeaders)
	assert.False(t, cfg.LogRequestBody)
	assert.False(t, cfg.LogResponseBody)
	assert.Equal(t, 1024, cfg.MaxBodySize)
	assert.Contains(t, cfg.SensitiveHeaders, "authorization")
	assert.Contains(t, cfg.SensitiveHeaders, "x-ingest-hmac")
	assert.Contains(t, cfg.SkipEndpoints, "/events/ws")
}

func TestDetailedLogging_MasksSensitiveHeaders(t *testing.T) {
	logger, logs := jsonLogger()

	handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", strings.NewReader(`{"channel":"whatsapp"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret-token")
	req = req.WithContext(tracing.WithFullTracing(req.Context()))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	out := logs.String()
	assert.Contains(t, out, "Detailed request logging")
	assert.Contains(t, out, "request_headers")
	assert.Contains(t, out, maskedValue)
	assert.NotContains(t, out, "secret-token")
	assert.NotContains(t, out, "request_body", "default config must not log bodies")
}

func TestDetailedLogging_FullCapture(t *testing.T) {
	logger, logs := jsonLogger()

	cfg := DetailedLoggingConfig{
		LogRequestHeaders:  true,
		LogResponseHeaders: true,
		LogRequestBody:     true,
		LogResponseBody:    true,
		MaxBodySize:        1024,
		SensitiveHeaders:   []string{"x-ingest-hmac"},
	}

	handler := DetailedLoggingMiddleware(logger, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Served-By", "unibox")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":123,"created":true}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified",
		strings.NewReader(`{"channel":"gmail","content":"need an update on order 4411"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ingest-Hmac", "sha256=abcdef")
	req = req.WithContext(tracing.WithFullTracing(req.Context()))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	out := logs.String()
	assert.Contains(t, out, "Detailed request logging")
	assert.Contains(t, out, "Detailed response logging")
	assert.Contains(t, out, "request_body")
	assert.Contains(t, out, "order 4411")
	assert.Contains(t, out, "response_body")
	assert.Contains(t, out, "response_headers")
	assert.Contains(t, out, "X-Served-By")
	assert.Contains(t, out, `"status_code":201`)
	assert.Contains(t, out, maskedValue, "hmac header must be masked")
	assert.NotContains(t, out, "sha256=abcdef")
}

func TestDetailedLogging_SkipsQuietEndpoints(t *testing.T) {
	handler404Free := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	for _, path := range []string{"/metrics", "/health", "/api/v1/events/ws"} {
		t.Run(path, func(t *testing.T) {
			logger, logs := jsonLogger()
			handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(handler404Free)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.NotContains(t, logs.String(), "Detailed request logging")
		})
	}
}

func TestDetailedLogging_TruncatesLargeResponse(t *testing.T) {
	logger, logs := jsonLogger()

	cfg := DetailedLoggingConfig{
		LogRequestBody:  true,
		LogResponseBody: true,
		MaxBodySize:     1024,
	}

	handler := DetailedLoggingMiddleware(logger, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", strings.NewReader(strings.Repeat("a", 500)))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(tracing.WithFullTracing(req.Context()))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	out := logs.String()
	assert.Contains(t, out, "request_body", "bodies inside the limit are logged whole")
	assert.Contains(t, out, "***TRUNCATED***")
	assert.NotContains(t, out, strings.Repeat("x", 2048))
}

func TestDetailedLogging_SkipsBinaryBody(t *testing.T) {
	logger, logs := jsonLogger()

	cfg := DetailedLoggingConfig{LogRequestBody: true, MaxBodySize: 1024}

	handler := DetailedLoggingMiddleware(logger, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", strings.NewReader("binary data"))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.NotContains(t, logs.String(), "request_body")
}

// The handler must still be able to read a body the middleware already
// consumed for logging.
func TestDetailedLogging_BodyReplayedForHandler(t *testing.T) {
	logger, _ := jsonLogger()

	cfg := DetailedLoggingConfig{LogRequestBody: true, MaxBodySize: 1024}

	var handlerSaw string
	handler := DetailedLoggingMiddleware(logger, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, r.ContentLength)
		n, _ := r.Body.Read(b)
		handlerSaw = string(b[:n])
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", strings.NewReader(`{"channel":"sms"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, `{"channel":"sms"}`, handlerSaw)
}

func TestSensitiveHeader(t *testing.T) {
	list := []string{"authorization", "x-ingest-hmac", "cookie"}

	cases := []struct {
		header    string
		sensitive bool
	}{
		{"Authorization", true},
		{"AUTHORIZATION", true},
		{"authorization", true},
		{"X-Ingest-Hmac", true},
		{"Cookie", true},
		{"Content-Type", false},
		{"User-Agent", false},
		{"X-Request-Id", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.sensitive, sensitiveHeader(tc.header, list), tc.header)
	}
}

func TestTextualBody(t *testing.T) {
	cases := []struct {
		contentType string
		loggable    bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"application/xml", true},
		{"text/plain", true},
		{"text/html", true},
		{"application/x-www-form-urlencoded", true},
		{"application/octet-stream", false},
		{"image/jpeg", false},
		{"", false},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", nil)
		if tc.contentType != "" {
			req.Header.Set("Content-Type", tc.contentType)
		}
		assert.Equal(t, tc.loggable, textualBody(req), tc.contentType)
	}
}

func TestEchoWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	echo := newEchoWriter(rec)

	assert.Equal(t, http.StatusOK, echo.status, "status defaults to 200")

	echo.Header().Set("X-Probe", "yes")
	assert.Equal(t, "yes", rec.Header().Get("X-Probe"), "Header delegates to the underlying writer")

	echo.WriteHeader(http.StatusAccepted)
	assert.Equal(t, http.StatusAccepted, echo.status)
	assert.Equal(t, "yes", echo.sent.Get("X-Probe"), "headers are snapshotted at WriteHeader time")

	n, err := echo.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = echo.Write([]byte(" again"))
	require.NoError(t, err)
	assert.Equal(t, "hello again", echo.body.String())
	assert.Equal(t, "hello again", rec.Body.String(), "writes still reach the client")
}
