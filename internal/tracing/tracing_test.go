package tracing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return len(s) > 0
}

func TestGenerateRequestID(t *testing.T) {
	first := GenerateRequestID()
	second := GenerateRequestID()

	assert.NotEqual(t, first, second)
	require.True(t, strings.HasPrefix(first, "req_"))

	_, err := uuid.Parse(strings.TrimPrefix(first, "req_"))
	assert.NoError(t, err, "the payload after the prefix is a UUID")
}

func TestGeneratedIDShapes(t *testing.T) {
	cases := []struct {
		name     string
		generate func() string
		length   int
	}{
		{"trace id", GenerateTraceID, 32},
		{"span id", GenerateSpanID, 16},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first := tc.generate()
			second := tc.generate()

			assert.NotEqual(t, first, second)
			assert.Len(t, first, tc.length)
			assert.True(t, isHex(first), "got %q", first)
		})
	}
}

func TestContextValues_EmptyContext(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetSpanID(ctx))
	assert.True(t, GetStartTime(ctx).IsZero())
	assert.Equal(t, time.Duration(0), Duration(ctx))
}

func TestContextValues_RoundTrip(t *testing.T) {
	start := time.Now()

	ctx := WithRequestID(context.Background(), "req_123")
	ctx = WithTraceID(ctx, "trace456")
	ctx = WithSpanID(ctx, "span789")
	ctx = WithStartTime(ctx, start)

	assert.Equal(t, "req_123", GetRequestID(ctx))
	assert.Equal(t, "trace456", GetTraceID(ctx))
	assert.Equal(t, "span789", GetSpanID(ctx))
	assert.Equal(t, start, GetStartTime(ctx))

	info := GetRequestInfo(ctx)
	require.NotNil(t, info)
	assert.Equal(t, "req_123", info.RequestID)
	assert.Equal(t, "trace456", info.TraceID)
	assert.Equal(t, "span789", info.SpanID)
	assert.Equal(t, start, info.StartTime)
}

func TestWithFullTracing(t *testing.T) {
	ctx := WithFullTracing(context.Background())

	assert.True(t, strings.HasPrefix(GetRequestID(ctx), "req_"))
	assert.Len(t, GetTraceID(ctx), 32)
	assert.Len(t, GetSpanID(ctx), 16)
	assert.False(t, GetStartTime(ctx).IsZero())
}

func TestDuration(t *testing.T) {
	ctx := WithStartTime(context.Background(), time.Now().Add(-50*time.Millisecond))
	assert.GreaterOrEqual(t, Duration(ctx), 50*time.Millisecond)
}
