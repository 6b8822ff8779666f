package tracing

import (
	"context"
	"fmt"
	"time"

	"unibox/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracingConfig configures the OpenTelemetry pipeline.
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

// DefaultTracingConfig keeps tracing off. When turned on without further
// configuration, spans print to stdout at a 10% sample rate.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:    "unibox",
		ServiceVersion: "dev",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4318",
		SampleRate:     0.1,
		UseStdout:      true,
	}
}

// FromTracingConfig merges the application tracing section over the
// defaults.
func FromTracingConfig(cfg models.TracingConfig, serviceVersion string) TracingConfig {
	tc := DefaultTracingConfig()
	tc.Enabled = cfg.Enabled
	tc.UseStdout = cfg.UseStdout
	if cfg.ServiceName != "" {
		tc.ServiceName = cfg.ServiceName
	}
	if cfg.Environment != "" {
		tc.Environment = cfg.Environment
	}
	if cfg.Endpoint != "" {
		tc.OTLPEndpoint = cfg.Endpoint
	}
	if cfg.SampleRate > 0 {
		tc.SampleRate = cfg.SampleRate
	}
	if serviceVersion != "" {
		tc.ServiceVersion = serviceVersion
	}
	return tc
}

// TracingManager owns the tracer provider lifecycle.
type TracingManager struct {
	config   TracingConfig
	logger   *logrus.Logger
	provider *trace.TracerProvider
}

// NewTracingManager builds a manager; nothing starts until Initialize.
func NewTracingManager(config TracingConfig, logger *logrus.Logger) *TracingManager {
	return &TracingManager{config: config, logger: logger}
}

// Initialize installs the global tracer provider. With tracing disabled it
// does nothing and the span helpers operate on no-op spans.
func (tm *TracingManager) Initialize(ctx context.Context) error {
	if !tm.config.Enabled {
		tm.logger.Info("OpenTelemetry tracing is disabled")
		return nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(tm.config.ServiceName),
		semconv.ServiceVersionKey.String(tm.config.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(tm.config.Environment),
	))
	if err != nil {
		return fmt.Errorf("failed to build trace resource: %w", err)
	}

	exporter, err := tm.newExporter(ctx)
	if err != nil {
		return err
	}

	tm.provider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(tm.config.SampleRate)),
	)
	otel.SetTracerProvider(tm.provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	tm.logger.WithFields(logrus.Fields{
		"service":     tm.config.ServiceName,
		"sample_rate": tm.config.SampleRate,
	}).Info("OpenTelemetry tracing initialized")
	return nil
}

func (tm *TracingManager) newExporter(ctx context.Context) (trace.SpanExporter, error) {
	if tm.config.UseStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		tm.logger.Info("Using stdout trace exporter")
		return exporter, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(tm.config.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}
	tm.logger.WithField("endpoint", tm.config.OTLPEndpoint).Info("Using OTLP HTTP trace exporter")
	return exporter, nil
}

// Shutdown flushes buffered spans. Safe to call when tracing never started.
func (tm *TracingManager) Shutdown(ctx context.Context) error {
	if tm.provider == nil {
		return nil
	}

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := tm.provider.Shutdown(flushCtx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}

	tm.logger.Info("OpenTelemetry tracing shutdown completed")
	return nil
}

// StartSpan opens a span on the global tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	ctx, span := otel.Tracer("unibox").Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// WithOtelTracing opens a span and mirrors its ids into the logging
// context. Without an installed provider the span carries a zero span
// context; ids are generated locally then, so log correlation keeps
// working when tracing is off.
func WithOtelTracing(ctx context.Context, spanName string) (context.Context, oteltrace.Span) {
	ctx, span := StartSpan(ctx, spanName)

	if sc := span.SpanContext(); sc.IsValid() {
		ctx = WithTraceID(ctx, sc.TraceID().String())
		ctx = WithSpanID(ctx, sc.SpanID().String())
	} else {
		ctx = WithTraceID(ctx, GenerateTraceID())
		ctx = WithSpanID(ctx, GenerateSpanID())
	}

	return ctx, span
}

// AddSpanAttributes sets attributes on the active span, if one is
// recording.
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	if span := oteltrace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// SetSpanStatus sets the status of the active span, if one is recording.
func SetSpanStatus(ctx context.Context, code codes.Code, description string) {
	if span := oteltrace.SpanFromContext(ctx); span.IsRecording() {
		span.SetStatus(code, description)
	}
}

// RecordError attaches err to the active span and marks the span failed.
func RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	span := oteltrace.SpanFromContext(ctx)
	if err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err, oteltrace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}
