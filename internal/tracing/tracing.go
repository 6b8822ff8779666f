// Package tracing carries request correlation through context: an internal
// request id plus trace and span ids mirrored into plain strings for
// structured logging. The OpenTelemetry pipeline itself lives in
// opentelemetry.go; nothing outside this package touches span internals.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ctxKey uint8

const (
	requestIDKey ctxKey = iota
	traceIDKey
	spanIDKey
	startTimeKey
)

// RequestInfo bundles the correlation values of one request.
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id"`
	SpanID    string    `json:"span_id"`
	StartTime time.Time `json:"start_time"`
}

// GenerateRequestID returns a fresh request id. UUIDs keep ids unique
// across restarts; the prefix makes them recognizable in mixed log streams.
func GenerateRequestID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + id.String()
}

// GenerateTraceID returns a random hex id with the same shape an
// OpenTelemetry trace id has, 16 bytes.
func GenerateTraceID() string {
	return randomHex(16)
}

// GenerateSpanID returns a random 8-byte hex id.
func GenerateSpanID() string {
	return randomHex(8)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// Entropy exhaustion. A clock-derived id is still hex shaped.
		return fmt.Sprintf("%0*x", n*2, time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithTraceID stores a trace id in ctx.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// WithSpanID stores a span id in ctx.
func WithSpanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, spanIDKey, id)
}

// WithStartTime records when handling of the request began.
func WithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey, t)
}

// GetRequestID returns the request id in ctx, or the empty string.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// GetTraceID returns the trace id in ctx, or the empty string.
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

// GetSpanID returns the span id in ctx, or the empty string.
func GetSpanID(ctx context.Context) string {
	return stringValue(ctx, spanIDKey)
}

// GetStartTime returns the request start time, or the zero time.
func GetStartTime(ctx context.Context) time.Time {
	t, _ := ctx.Value(startTimeKey).(time.Time)
	return t
}

func stringValue(ctx context.Context, k ctxKey) string {
	s, _ := ctx.Value(k).(string)
	return s
}

// GetRequestInfo collects every correlation value into one struct for
// logging.
func GetRequestInfo(ctx context.Context) *RequestInfo {
	return &RequestInfo{
		RequestID: GetRequestID(ctx),
		TraceID:   GetTraceID(ctx),
		SpanID:    GetSpanID(ctx),
		StartTime: GetStartTime(ctx),
	}
}

// WithFullTracing populates ctx with fresh ids and the current time. Used
// by work that did not arrive through the HTTP middleware, such as the
// history cleanup scheduler.
func WithFullTracing(ctx context.Context) context.Context {
	ctx = WithRequestID(ctx, GenerateRequestID())
	ctx = WithTraceID(ctx, GenerateTraceID())
	ctx = WithSpanID(ctx, GenerateSpanID())
	return WithStartTime(ctx, time.Now())
}

// Duration reports how long the request in ctx has been running, or zero
// when no start time was recorded.
func Duration(ctx context.Context) time.Duration {
	start := GetStartTime(ctx)
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}
