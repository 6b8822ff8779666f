// Package middleware holds the HTTP instrumentation layer: span creation,
// correlation ids, request metrics, and the optional deep request/response
// debug logging.
package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"unibox/internal/httputil"
	"unibox/internal/metrics"
	"unibox/internal/privacy"
	"unibox/internal/service"
	"unibox/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// statusWriter records the status code and byte count a handler produces
// while delegating the actual writes.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(p []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(p)
	sw.bytes += int64(n)
	return n, err
}

// Hijack keeps WebSocket upgrades working behind the wrapper.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return hj.Hijack()
}

// completionLevel maps the response status onto the log level of the
// end-of-request line.
func completionLevel(status int) logrus.Level {
	switch {
	case status >= 500:
		return logrus.ErrorLevel
	case status >= 400:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

// maskedFields runs the privacy filter over raw values and converts the
// result into logrus fields.
func maskedFields(raw map[string]interface{}) logrus.Fields {
	out := make(logrus.Fields, len(raw))
	for k, v := range privacy.MaskSensitiveFields(raw) {
		out[k] = v
	}
	return out
}

// ObservabilityMiddleware instruments every request with a span, a request
// id, route-level metrics, and start/completion log lines.
func ObservabilityMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.WithOtelTracing(r.Context(), "http_request")
			defer span.End()

			ctx = tracing.WithRequestID(ctx, tracing.GenerateRequestID())
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)

			info := tracing.GetRequestInfo(ctx)
			clientIP := httputil.GetClientIP(r)

			tracing.AddSpanAttributes(ctx,
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.String()),
				attribute.String("http.route", r.URL.Path),
				attribute.String("http.host", r.Host),
				attribute.String("client.address", clientIP),
				attribute.String("user_agent.original", r.UserAgent()),
			)

			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: info.RequestID,
				service.LogFieldTraceID:   info.TraceID,
				service.LogFieldMethod:    r.Method,
				service.LogFieldURL:       r.URL.Path,
				service.LogFieldRemoteIP:  clientIP,
				service.LogFieldUserAgent: r.UserAgent(),
				"content_length":          r.ContentLength,
			}).Debug("HTTP request started")

			routeLabels := map[string]string{"method": r.Method, "endpoint": r.URL.Path}
			metrics.IncrementCounter("http_requests_total", routeLabels, "Total HTTP requests")
			metrics.IncrementCounter("http_requests_active", nil, "Currently active HTTP requests")
			defer metrics.AddToCounter("http_requests_active", -1, nil, "Currently active HTTP requests")

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			elapsed := tracing.Duration(ctx)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", sw.status),
				attribute.Int64("http.response.size", sw.bytes),
				attribute.Int64("http.request.duration_ms", elapsed.Milliseconds()),
			)
			if sw.status >= 400 {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", sw.status))
			} else {
				tracing.SetSpanStatus(ctx, codes.Ok, "")
			}

			statusLabels := map[string]string{
				"method":      r.Method,
				"endpoint":    r.URL.Path,
				"status_code": strconv.Itoa(sw.status),
			}
			metrics.RecordTimer("http_request_duration", elapsed, statusLabels, "HTTP request duration")
			metrics.IncrementCounter("http_responses_total", statusLabels, "HTTP responses by status code")
			if sw.bytes > 0 {
				metrics.AddToCounter("http_response_bytes_total", float64(sw.bytes), routeLabels, "Bytes written in HTTP responses")
			}

			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID:  info.RequestID,
				service.LogFieldTraceID:    info.TraceID,
				service.LogFieldMethod:     r.Method,
				service.LogFieldURL:        r.URL.Path,
				service.LogFieldStatusCode: sw.status,
				service.LogFieldDuration:   elapsed.Milliseconds(),
				service.LogFieldRemoteIP:   clientIP,
				service.LogFieldSize:       sw.bytes,
			}).Log(completionLevel(sw.status), "HTTP request completed")
		})
	}
}

// IngestObservabilityMiddleware instruments the channel ingest endpoints.
// It differs from the general middleware in two ways: metrics are keyed by
// ingest source rather than route, and every log field set passes through
// the privacy mask before it is written. Any failed ingest logs at error
// level since a dropped message needs operator attention.
func IngestObservabilityMiddleware(logger *logrus.Logger, source string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()

			ctx, span := tracing.WithOtelTracing(r.Context(), "ingest_request")
			defer span.End()
			r = r.WithContext(ctx)

			info := tracing.GetRequestInfo(ctx)

			tracing.AddSpanAttributes(ctx,
				attribute.String("ingest.source", source),
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.String()),
				attribute.String("client.address", httputil.GetClientIP(r)),
				attribute.Int64("http.request.content_length", r.ContentLength),
			)

			metrics.IncrementCounter("ingest_requests_total", map[string]string{"source": source}, "Total ingest requests by source")

			logger.WithFields(maskedFields(map[string]interface{}{
				service.LogFieldRequestID: info.RequestID,
				service.LogFieldTraceID:   info.TraceID,
				service.LogFieldService:   "ingest",
				service.LogFieldComponent: source,
				service.LogFieldRemoteIP:  httputil.GetClientIP(r),
				"content_type":            r.Header.Get("Content-Type"),
				"content_length":          r.ContentLength,
			})).Debug("Ingest request started")

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			elapsed := time.Since(started)
			statusText := strconv.Itoa(sw.status)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", sw.status),
				attribute.Int64("http.response.size", sw.bytes),
				attribute.Int64("ingest.processing_duration_ms", elapsed.Milliseconds()),
			)

			metrics.RecordTimer("ingest_processing_duration", elapsed, map[string]string{
				"source":      source,
				"status_code": statusText,
			}, "Ingest processing duration")

			level := logrus.InfoLevel
			if sw.status >= 400 {
				level = logrus.ErrorLevel
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("ingest failed with HTTP %d", sw.status))
				metrics.IncrementCounter("ingest_errors_total", map[string]string{
					"source":      source,
					"status_code": statusText,
				}, "Ingest processing errors")
			} else {
				tracing.SetSpanStatus(ctx, codes.Ok, "ingest processed")
				metrics.IncrementCounter("ingest_success_total", map[string]string{"source": source}, "Successful ingest processing")
			}

			logger.WithFields(maskedFields(map[string]interface{}{
				service.LogFieldRequestID:  info.RequestID,
				service.LogFieldTraceID:    info.TraceID,
				service.LogFieldService:    "ingest",
				service.LogFieldComponent:  source,
				service.LogFieldStatusCode: sw.status,
				service.LogFieldDuration:   elapsed.Milliseconds(),
				service.LogFieldSize:       sw.bytes,
			})).Log(level, "Ingest request completed")
		})
	}
}
