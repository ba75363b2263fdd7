package telemetry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type TelemetrySuite struct {
	suite.Suite
	ctx context.Context
}

func (s *TelemetrySuite) SetupTest() {
	s.ctx = context.Background()
}

func TestTelemetrySuite(t *testing.T) {
	suite.Run(t, new(TelemetrySuite))
}

func (s *TelemetrySuite) TestNewDebug() {
	tel, err := New(s.ctx, Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		Debug:          true,
		Enabled:        true,
		TraceWriter:    io.Discard,
		MetricWriter:   io.Discard,
	})
	s.Require().NoError(err)
	s.True(tel.IsEnabled())
	s.NotNil(tel.tp)
	s.NotNil(tel.mp)
	s.NotNil(tel.exchangeDuration)
	s.NotNil(tel.errorCounter)
	s.NoError(tel.Shutdown(s.ctx))
}

func (s *TelemetrySuite) TestNewDisabled() {
	tel, err := New(s.ctx, Config{ServiceName: "test-service"})
	s.Require().NoError(err)
	s.False(tel.IsEnabled())
	s.NoError(tel.Shutdown(s.ctx))
}

func (s *TelemetrySuite) TestNoopDoesNotRecord() {
	tel, err := NewNoop()
	s.Require().NoError(err)
	s.Nil(tel.tp)

	_, span := tel.StartSpan(s.ctx, "STDIORPC.Session.Call initialize")
	s.False(span.IsRecording())
	s.False(span.SpanContext().IsValid())
	EndSpan(span, errors.New("ignored"))

	tel.RecordExchange(s.ctx, time.Millisecond, "initialize", 200, nil)
}

func (s *TelemetrySuite) TestNoopKeepsCallerSpanOpen() {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	defer tp.Shutdown(s.ctx)

	ctx, parent := tp.Tracer("caller").Start(s.ctx, "caller-op")

	tel, err := NewNoop()
	s.Require().NoError(err)

	_, span := tel.StartSpan(ctx, "STDIORPC.Session.Call tools/call")
	EndSpan(span, errors.New("malformed response"))

	s.True(parent.IsRecording())
	s.Empty(spans.Ended())

	parent.End()
	s.Require().Len(spans.Ended(), 1)
	s.Equal(codes.Unset, spans.Ended()[0].Status().Code)
}

func (s *TelemetrySuite) TestStartSpanRecordsError() {
	tt := NewTestTelemetry(s.T())

	ctx, span := tt.StartSpan(s.ctx, "STDIORPC.Session.Call tools/call")
	s.NotEqual(s.ctx, ctx)
	EndSpan(span, errors.New("read timeout"))

	ended := tt.Spans.Ended()
	s.Require().Len(ended, 1)
	s.Equal("STDIORPC.Session.Call tools/call", ended[0].Name())
	s.Equal(codes.Error, ended[0].Status().Code)
	s.Equal([]string{"STDIORPC.Session.Call tools/call"}, tt.SpanNames())
}

func (s *TelemetrySuite) TestRecordExchange() {
	tt := NewTestTelemetry(s.T())

	tt.RecordExchange(s.ctx, 100*time.Millisecond, "initialize", 200, nil)
	tt.RecordExchange(s.ctx, 200*time.Millisecond, "tools/call", 408, errors.New("timeout"))

	var rm metricdata.ResourceMetrics
	s.Require().NoError(tt.Reader.Collect(s.ctx, &rm))
	s.Require().Len(rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	hist, ok := byName["exchange_duration"].Data.(metricdata.Histogram[float64])
	s.Require().True(ok)
	s.Len(hist.DataPoints, 2)

	sum, ok := byName["exchange_errors"].Data.(metricdata.Sum[int64])
	s.Require().True(ok)
	s.Require().Len(sum.DataPoints, 1)
	s.Equal(int64(1), sum.DataPoints[0].Value)
}

func (s *TelemetrySuite) TestNewFromEnv() {
	s.T().Setenv("OTEL_ENABLED", "true")
	s.T().Setenv("OTEL_DEBUG", "true")
	s.T().Setenv("ENVIRONMENT", "test-env")

	tel, err := NewFromEnv(s.ctx, "test-service", "1.0.0")
	s.Require().NoError(err)
	s.True(tel.IsEnabled())
	s.NoError(tel.Shutdown(s.ctx))

	s.T().Setenv("OTEL_ENABLED", "false")
	tel, err = NewFromEnv(s.ctx, "test-service", "1.0.0")
	s.Require().NoError(err)
	s.False(tel.IsEnabled())
}

func (s *TelemetrySuite) TestGetEnvOrDefault() {
	s.T().Setenv("TEST_ENV_VAR", "test-value")
	s.Equal("test-value", getEnvOrDefault("TEST_ENV_VAR", "default-value"))
	s.Equal("default-value", getEnvOrDefault("TEST_ENV_VAR_UNSET", "default-value"))
}
