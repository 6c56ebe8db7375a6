package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestContextHandlerAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "info").With("component", "test")

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	log.InfoContext(ctx, "hello")
	span.End()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
	assert.Equal(t, "test", rec["component"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn")

	log.Info("quiet")
	assert.Zero(t, buf.Len())
	log.Warn("loud")
	assert.NotZero(t, buf.Len())

	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestSetupTracerDisabled(t *testing.T) {
	shutdown, err := SetupTracer(context.Background(), "storefront-orders", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "collector:4318", stripScheme("http://collector:4318/"))
	assert.Equal(t, "collector:4318", stripScheme("collector:4318"))
}
