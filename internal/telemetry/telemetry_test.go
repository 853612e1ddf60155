package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_NoEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), "genai-bridge-test", "test", "")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	_, span := StartSpan(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestSpanAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	prev := tracer
	tracer = tp.Tracer("test")
	defer func() { tracer = prev }()

	ctx, span := StartSpan(context.Background(), "chat")
	AddRequestAttributes(span, "postech-gpt", "a1/gpt", "req-1", true)
	AddTokenAttributes(span, 3, 4)
	AddFileAttributes(span, 2)
	AddFinishAttribute(span, "stop")
	AddErrorAttribute(span, errors.New("boom"))

	assert.NotEmpty(t, GetTraceID(ctx))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "postech-gpt", attrs["model.alias"])
	assert.Equal(t, "a1/gpt", attrs["vendor.endpoint"])
	assert.Equal(t, true, attrs["stream"])
	assert.Equal(t, int64(7), attrs["tokens.total"])
	assert.Equal(t, int64(2), attrs["vendor.files"])
	assert.Equal(t, "stop", attrs["finish_reason"])
	assert.Equal(t, "boom", attrs["error.message"])
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}
