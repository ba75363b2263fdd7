package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/xizhibei/go-stdio-rpc"

// Telemetry holds the tracer and instruments used by sessions.
type Telemetry struct {
	tp               *sdktrace.TracerProvider
	mp               *sdkmetric.MeterProvider
	tracer           trace.Tracer
	meter            metric.Meter
	exchangeDuration metric.Float64Histogram
	errorCounter     metric.Int64Counter
	enabled          bool
}

// Config holds configuration for telemetry setup
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string

	TraceWriter  io.Writer
	MetricWriter io.Writer
	Debug        bool
	Enabled      bool
}

// New creates a Telemetry from cfg. Debug exports to the configured writers,
// otherwise to an OTLP/gRPC collector. A disabled config yields NewNoop.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return NewNoop()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if cfg.TraceWriter == nil {
		cfg.TraceWriter = os.Stderr
	}
	if cfg.MetricWriter == nil {
		cfg.MetricWriter = os.Stderr
	}

	var traceExporter sdktrace.SpanExporter
	if cfg.Debug {
		traceExporter, err = stdouttrace.New(
			stdouttrace.WithWriter(cfg.TraceWriter),
			stdouttrace.WithPrettyPrint(),
		)
	} else {
		traceExporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var metricExporter sdkmetric.Exporter
	if cfg.Debug {
		enc := json.NewEncoder(cfg.MetricWriter)
		enc.SetIndent("", "  ")
		metricExporter, err = stdoutmetric.New(
			stdoutmetric.WithEncoder(enc),
			stdoutmetric.WithoutTimestamps(),
		)
	} else {
		metricExporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(10*time.Second),
			),
		),
		sdkmetric.WithView(
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: "exchange_duration"},
				sdkmetric.Stream{
					Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
						Boundaries: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
					},
				},
			),
		),
	)
	otel.SetMeterProvider(mp)

	return NewWithProviders(tp, mp)
}

// NewWithProviders builds an enabled Telemetry on top of existing SDK providers.
// Tests use it with span recorders and manual readers.
func NewWithProviders(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)

	exchangeDuration, err := meter.Float64Histogram(
		"exchange_duration",
		metric.WithDescription("Duration of JSON-RPC exchanges with the peer process"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange duration histogram: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"exchange_errors",
		metric.WithDescription("Number of failed JSON-RPC exchanges"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	return &Telemetry{
		tp:               tp,
		mp:               mp,
		tracer:           tp.Tracer(instrumentationName),
		meter:            meter,
		exchangeDuration: exchangeDuration,
		errorCounter:     errorCounter,
		enabled:          true,
	}, nil
}

// NewFromEnv configures telemetry from OTEL_ENABLED, OTEL_DEBUG, ENVIRONMENT
// and OTEL_EXPORTER_OTLP_ENDPOINT. Telemetry stays off unless OTEL_ENABLED is true.
func NewFromEnv(ctx context.Context, serviceName, serviceVersion string) (*Telemetry, error) {
	enabled, _ := strconv.ParseBool(getEnvOrDefault("OTEL_ENABLED", "false"))
	debug, _ := strconv.ParseBool(getEnvOrDefault("OTEL_DEBUG", "false"))

	return New(ctx, Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    getEnvOrDefault("ENVIRONMENT", "development"),
		OTLPEndpoint:   getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Debug:          debug,
		Enabled:        enabled,
	})
}

// NewNoop creates a Telemetry that records nothing.
func NewNoop() (*Telemetry, error) {
	meter := metricnoop.NewMeterProvider().Meter(instrumentationName)

	exchangeDuration, err := meter.Float64Histogram("exchange_duration")
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange duration histogram: %w", err)
	}
	errorCounter, err := meter.Int64Counter("exchange_errors")
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	return &Telemetry{
		tracer:           tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:            meter,
		exchangeDuration: exchangeDuration,
		errorCounter:     errorCounter,
	}, nil
}

// IsEnabled reports whether spans and metrics are exported.
func (t *Telemetry) IsEnabled() bool {
	return t.enabled
}

// Shutdown flushes and stops the providers. It is a no-op for NewNoop.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown trace provider: %w", err)
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
	}
	return nil
}

// StartSpan starts a child span of the one in ctx. When disabled the child is
// non-recording, so ending it never touches the caller's span.
func (t *Telemetry) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// RecordExchange records one exchange and counts it as an error when err is set.
func (t *Telemetry) RecordExchange(ctx context.Context, duration time.Duration, method string, status int, err error) {
	if !t.enabled {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.Int("status", status),
	}
	t.exchangeDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		t.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// EndSpan marks span failed when err is set and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}
