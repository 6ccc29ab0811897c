package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestTraceRecordsSpan(t *testing.T) {
	recorder := installRecorder(t)

	err := Trace(context.Background(), "list_shares", func(ctx context.Context) error {
		_, child := StartSpan(ctx, "page")
		child.SetAttribute(AttrPages, 2)
		child.SetAttribute("names", []string{"a", "b"})
		child.SetAttribute("other", struct{}{})
		child.End()
		return nil
	}, attribute.String(AttrEndpoint, "https://h/delta-sharing"))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	child, parent := spans[0], spans[1]
	assert.Equal(t, "page", child.Name())
	assert.Equal(t, "list_shares", parent.Name())
	assert.Equal(t, parent.SpanContext().SpanID(), child.Parent().SpanID())
	assert.Equal(t, codes.Ok, parent.Status().Code)

	attrs := attrMap(child.Attributes())
	assert.Equal(t, int64(2), attrs[AttrPages].AsInt64())
	assert.Equal(t, []string{"a", "b"}, attrs["names"].AsStringSlice())
	assert.Equal(t, "{}", attrs["other"].AsString())
	assert.Equal(t, "https://h/delta-sharing", attrMap(parent.Attributes())[AttrEndpoint].AsString())
}

func TestTraceRecordsError(t *testing.T) {
	recorder := installRecorder(t)
	boom := errors.New("boom")

	err := Trace(context.Background(), "query", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestInjectHeaders(t *testing.T) {
	installRecorder(t)

	ctx, span := StartSpan(context.Background(), "outer")
	defer span.End()

	h := http.Header{}
	InjectHeaders(ctx, h)
	assert.NotEmpty(t, h.Get("traceparent"))

	extracted := propagator().Extract(context.Background(), propagation.HeaderCarrier(h))
	_, inner := Tracer().Start(extracted, "inner")
	defer inner.End()
	assert.Equal(t, span.span.SpanContext().TraceID(), inner.SpanContext().TraceID())
}

func TestInitTracingExportsToWriter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	cfg := DefaultTracingConfig()
	cfg.Writer = &buf

	shutdown, err := InitTracing(cfg)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "exported")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name": "exported"`)
}
