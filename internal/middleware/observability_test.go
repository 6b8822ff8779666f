package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"unibox/internal/metrics"
	"unibox/internal/tracing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonLogger returns a debug-level logger writing JSON lines into the
// returned buffer.
func jsonLogger() (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger, buf
}

// counterTotal sums every counter whose key contains substr. Metric keys
// carry their labels, so a name match needs a substring check.
func counterTotal(substr string) float64 {
	var total float64
	for key, c := range metrics.GetAllMetrics().Counters {
		if strings.Contains(key, substr) {
			total += c.Value
		}
	}
	return total
}

func timerRecorded(substr string) bool {
	for key := range metrics.GetAllMetrics().Timers {
		if strings.Contains(key, substr) {
			return true
		}
	}
	return false
}

func completionLine(t *testing.T, out, msg string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, msg) {
			return line
		}
	}
	t.Fatalf("no %q line logged", msg)
	return ""
}

func TestObservabilityMiddleware(t *testing.T) {
	logger, logs := jsonLogger()
	metrics.GetRegistry().Reset()

	var seen *tracing.RequestInfo
	handler := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = tracing.GetRequestInfo(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"conversations":[]}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("User-Agent", "unibox-test")
	req.RemoteAddr = "192.168.1.100:52110"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.NotEmpty(t, seen.RequestID)
	assert.NotEmpty(t, seen.TraceID)

	assert.GreaterOrEqual(t, counterTotal("http_requests_total"), 1.0)
	assert.GreaterOrEqual(t, counterTotal("http_response_bytes_total"), 1.0)
	assert.True(t, timerRecorded("http_request_duration"))

	out := logs.String()
	assert.Contains(t, out, "HTTP request started")
	assert.Contains(t, out, "HTTP request completed")
	assert.Contains(t, out, "request_id")
	assert.Contains(t, out, "trace_id")
}

func TestObservabilityMiddleware_CompletionLevels(t *testing.T) {
	cases := []struct {
		name   string
		status int
		level  string
	}{
		{"server errors log at error", http.StatusInternalServerError, `"level":"error"`},
		{"client errors log at warning", http.StatusNotFound, `"level":"warning"`},
		{"success logs at info", http.StatusOK, `"level":"info"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logger, logs := jsonLogger()
			handler := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", nil))

			require.Equal(t, tc.status, rec.Code)
			line := completionLine(t, logs.String(), "HTTP request completed")
			assert.Contains(t, line, tc.level)
		})
	}
}

func TestCompletionLevel(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, completionLevel(http.StatusOK))
	assert.Equal(t, logrus.InfoLevel, completionLevel(http.StatusCreated))
	assert.Equal(t, logrus.InfoLevel, completionLevel(http.StatusNotModified))
	assert.Equal(t, logrus.WarnLevel, completionLevel(http.StatusBadRequest))
	assert.Equal(t, logrus.WarnLevel, completionLevel(http.StatusTooManyRequests))
	assert.Equal(t, logrus.ErrorLevel, completionLevel(http.StatusInternalServerError))
	assert.Equal(t, logrus.ErrorLevel, completionLevel(http.StatusBadGateway))
}

// Trace ids must stay usable for log correlation even when no span exporter
// is configured, which is exactly the situation in this test process.
func TestObservabilityMiddleware_FreshTraceIDs(t *testing.T) {
	logger, _ := jsonLogger()

	var seen *tracing.RequestInfo
	handler := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = tracing.GetRequestInfo(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil))

	require.NotNil(t, seen)
	assert.Len(t, seen.TraceID, 32)
	assert.Len(t, seen.SpanID, 16)
	assert.NotEqual(t, strings.Repeat("0", 32), seen.TraceID)
	assert.NotEqual(t, strings.Repeat("0", 16), seen.SpanID)
}

func TestObservabilityMiddleware_CountsEveryRequest(t *testing.T) {
	logger, _ := jsonLogger()
	metrics.GetRegistry().Reset()

	handler := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil))
	}

	assert.Equal(t, 5.0, counterTotal("http_requests_total"))
}

func TestObservabilityMiddleware_ConcurrentRequests(t *testing.T) {
	logger, _ := jsonLogger()
	metrics.GetRegistry().Reset()

	handler := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil))
		}()
	}
	wg.Wait()

	assert.Equal(t, 4.0, counterTotal("http_requests_total"))
	assert.Equal(t, 0.0, counterTotal("http_requests_active"), "active gauge returns to zero once requests finish")
}

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := newStatusWriter(rec)

	assert.Equal(t, http.StatusOK, sw.status, "status defaults to 200 until WriteHeader runs")

	sw.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, sw.status)
	assert.Equal(t, http.StatusCreated, rec.Code)

	n, err := sw.Write([]byte("first"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = sw.Write([]byte(" second"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("first second")), sw.bytes)
	assert.Equal(t, "first second", rec.Body.String())
}

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	sw := newStatusWriter(httptest.NewRecorder())

	_, _, err := sw.Hijack()
	require.Error(t, err, "httptest.ResponseRecorder is not a Hijacker")
}

func TestIngestObservabilityMiddleware(t *testing.T) {
	logger, logs := jsonLogger()
	metrics.GetRegistry().Reset()

	handler := IngestObservabilityMiddleware(logger, "unified")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"duplicate":false}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", strings.NewReader(`{"channel":"whatsapp"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(tracing.WithFullTracing(req.Context()))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, 1.0, counterTotal("ingest_requests_total"))
	assert.Equal(t, 1.0, counterTotal("ingest_success_total"))
	assert.Equal(t, 0.0, counterTotal("ingest_errors_total"))
	assert.True(t, timerRecorded("ingest_processing_duration"))

	out := logs.String()
	assert.Contains(t, out, "Ingest request started")
	assert.Contains(t, out, "Ingest request completed")
	assert.Contains(t, out, `"component":"unified"`)
}

func TestIngestObservabilityMiddleware_FailureCountsAsError(t *testing.T) {
	logger, logs := jsonLogger()
	metrics.GetRegistry().Reset()

	handler := IngestObservabilityMiddleware(logger, "unified")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"VALIDATION_FAILED"}}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/unified", nil)
	req = req.WithContext(tracing.WithFullTracing(req.Context()))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1.0, counterTotal("ingest_errors_total"))
	assert.Equal(t, 0.0, counterTotal("ingest_success_total"))

	line := completionLine(t, logs.String(), "Ingest request completed")
	assert.Contains(t, line, `"level":"error"`)
}
