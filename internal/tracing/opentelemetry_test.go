package tracing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"unibox/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Log correlation must work before (or without) a tracer provider being
// installed, so this test runs first in the package.
func TestWithOtelTracing_NoProviderStillCorrelates(t *testing.T) {
	ctx, span := WithOtelTracing(context.Background(), "ingest_request")
	defer span.End()

	traceID := GetTraceID(ctx)
	spanID := GetSpanID(ctx)

	require.Len(t, traceID, 32)
	require.Len(t, spanID, 16)
	assert.NotEqual(t, strings.Repeat("0", 32), traceID)
	assert.NotEqual(t, strings.Repeat("0", 16), spanID)
}

func TestWithOtelTracing_DistinctIDsPerCall(t *testing.T) {
	ctx1, span1 := WithOtelTracing(context.Background(), "op")
	defer span1.End()
	ctx2, span2 := WithOtelTracing(context.Background(), "op")
	defer span2.End()

	assert.NotEqual(t, GetTraceID(ctx1), GetTraceID(ctx2))
	assert.NotEqual(t, GetSpanID(ctx1), GetSpanID(ctx2))
}

func TestSpanHelpers_SafeWithoutSpan(t *testing.T) {
	ctx := context.Background()

	AddSpanAttributes(ctx, attribute.String("channel", "whatsapp"))
	SetSpanStatus(ctx, codes.Error, "failed")
	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()

	assert.Equal(t, "unibox", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "localhost:4318", cfg.OTLPEndpoint)
	assert.Equal(t, 0.1, cfg.SampleRate)
	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.UseStdout)
}

func TestFromTracingConfig(t *testing.T) {
	t.Run("application settings win", func(t *testing.T) {
		tc := FromTracingConfig(models.TracingConfig{
			Enabled:     true,
			Endpoint:    "collector:4318",
			SampleRate:  0.5,
			ServiceName: "unibox-staging",
			Environment: "staging",
		}, "1.2.3")

		assert.True(t, tc.Enabled)
		assert.False(t, tc.UseStdout)
		assert.Equal(t, "collector:4318", tc.OTLPEndpoint)
		assert.Equal(t, 0.5, tc.SampleRate)
		assert.Equal(t, "unibox-staging", tc.ServiceName)
		assert.Equal(t, "staging", tc.Environment)
		assert.Equal(t, "1.2.3", tc.ServiceVersion)
	})

	t.Run("empty settings fall back to defaults", func(t *testing.T) {
		tc := FromTracingConfig(models.TracingConfig{}, "")

		assert.False(t, tc.Enabled)
		assert.Equal(t, "unibox", tc.ServiceName)
		assert.Equal(t, "dev", tc.ServiceVersion)
		assert.Equal(t, "development", tc.Environment)
		assert.Equal(t, "localhost:4318", tc.OTLPEndpoint)
		assert.Equal(t, 0.1, tc.SampleRate)
	})
}

func TestTracingManager_Disabled(t *testing.T) {
	tm := NewTracingManager(DefaultTracingConfig(), logrus.New())

	require.NoError(t, tm.Initialize(context.Background()))
	assert.Nil(t, tm.provider)

	assert.NoError(t, tm.Shutdown(context.Background()))
}

func TestTracingManager_StdoutPipeline(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.UseStdout = true
	cfg.SampleRate = 1.0

	tm := NewTracingManager(cfg, logger)
	require.NoError(t, tm.Initialize(context.Background()))
	require.NotNil(t, tm.provider)
	defer func() {
		assert.NoError(t, tm.Shutdown(context.Background()))
	}()

	_, span := StartSpan(context.Background(), "resolve_conversation",
		attribute.String("channel", "whatsapp"),
	)
	defer span.End()

	sc := span.SpanContext()
	require.True(t, sc.IsValid(), "an installed provider issues real span contexts")
	assert.True(t, span.IsRecording())
	assert.NotEqual(t, strings.Repeat("0", 32), sc.TraceID().String())
}

func TestWithOtelTracing_MirrorsProviderIDs(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.UseStdout = true
	cfg.SampleRate = 1.0

	tm := NewTracingManager(cfg, logger)
	require.NoError(t, tm.Initialize(context.Background()))
	defer func() {
		assert.NoError(t, tm.Shutdown(context.Background()))
	}()

	ctx, span := WithOtelTracing(context.Background(), "ingest_message")
	defer span.End()

	sc := span.SpanContext()
	require.True(t, sc.IsValid())
	assert.Equal(t, sc.TraceID().String(), GetTraceID(ctx))
	assert.Equal(t, sc.SpanID().String(), GetSpanID(ctx))
}
