package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestInit_DisabledIsNoop(t *testing.T) {
	tp, err := Init(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestTraceStoreOperation_RecordsPath(t *testing.T) {
	recorder := installRecorder(t)

	_, span := TraceStoreOperation(context.Background(), "read", "lives/u1")
	End(span, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "store.read", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), StorePathKey.String("lives/u1"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestEnd_RecordsError(t *testing.T) {
	recorder := installRecorder(t)

	_, span := TraceCapture(context.Background(), "acquire", "u1")
	End(span, errors.New("denied"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "denied", spans[0].Status().Description)
}

func TestRecordError_OnContextSpan(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := TraceWebSocketMessage(context.Background(), "start_live", "u1")
	RecordError(ctx, errors.New("cooldown"))
	AddSpanAttributes(ctx, LiveStateKey.String("cooldown"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), LiveStateKey.String("cooldown"))
}
