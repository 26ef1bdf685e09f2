package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{}, NewLogger(InfoLevel, &bytes.Buffer{}))

	assert.NoError(t, err)
	assert.Nil(t, providers)
}

func TestInitOTel_EmptyServiceName(t *testing.T) {
	_, err := InitOTel(context.Background(), OTelConfig{Enabled: true, Endpoint: "localhost:4317"}, NewLogger(InfoLevel, &bytes.Buffer{}))

	assert.Error(t, err)
}

// Exporters connect lazily, so initialization succeeds without a collector.
func TestInitOTel_NoCollector(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	providers, err := InitOTel(context.Background(), OTelConfig{
		Enabled:        true,
		Endpoint:       "127.0.0.1:4317",
		ServiceName:    "groupaccess-test",
		ServiceVersion: "test",
		Insecure:       true,
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, providers)
	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.MeterProvider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = ShutdownOTel(ctx, providers, logger)
}

func TestShutdownOTel_NilProviders(t *testing.T) {
	assert.NoError(t, ShutdownOTel(context.Background(), nil, NewLogger(InfoLevel, &bytes.Buffer{})))
	assert.NoError(t, ShutdownOTel(context.Background(), &OTelProviders{}, NewLogger(InfoLevel, &bytes.Buffer{})))
}

func TestStartSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	_, span := StartSpan(context.Background(), "permissions.calculate")
	EndSpan(span, errors.New("calculator failed"))

	_, second := StartSpan(context.Background(), "access.group")
	EndSpan(second, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "permissions.calculate", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 1)
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}

func TestWithTraceContext(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		assert.Nil(t, WithTraceContext(context.Background(), nil))
	})

	t.Run("no span", func(t *testing.T) {
		logger := NewLogger(InfoLevel, &bytes.Buffer{})
		assert.Same(t, logger, WithTraceContext(context.Background(), logger))
	})

	t.Run("sampled out span keeps IDs", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		var buf bytes.Buffer
		WithTraceContext(ctx, NewLogger(InfoLevel, &buf)).Info("message")
		assert.Contains(t, buf.String(), span.SpanContext().TraceID().String())
	})
}
