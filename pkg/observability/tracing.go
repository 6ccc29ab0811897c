// Package observability provides OpenTelemetry tracing for deltashare
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies spans produced by this module
const InstrumentationName = "github.com/ajitpratap0/deltashare"

// Attribute keys shared by all spans
const (
	AttrShare    = "deltashare.share"
	AttrSchema   = "deltashare.schema"
	AttrTable    = "deltashare.table"
	AttrEndpoint = "deltashare.endpoint"
	AttrURL      = "deltashare.file.url"
	AttrFiles    = "deltashare.files"
	AttrRows     = "deltashare.rows"
	AttrPages    = "deltashare.pages"
)

// Tracer returns the module tracer from the global provider. Spans are no-ops
// until InitTracing (or the embedding program) installs a provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Span wraps an otel span and buffers attributes until End
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// StartSpan creates a new span
func StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, operationName, trace.WithAttributes(attrs...))

	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	case []string:
		attr = attribute.StringSlice(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Finish records err (if any) on the span and ends it
func (s *Span) Finish(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.End()
}

// End ends the span
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.SetAttributes(attribute.Int64("duration_ms", time.Since(s.startTime).Milliseconds()))
	s.span.End()
}

// Trace runs fn inside a span named operation
func Trace(ctx context.Context, operation string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := StartSpan(ctx, operation, attrs...)
	err := fn(ctx)
	span.Finish(err)
	return err
}

// InjectHeaders writes the W3C trace context of ctx into h
func InjectHeaders(ctx context.Context, h http.Header) {
	propagator().Inject(ctx, propagation.HeaderCarrier(h))
}

func propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}
