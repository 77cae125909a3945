package instrument

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tours-backend"

type ctxKey int

const instrumenterKey ctxKey = iota

// Instrumenter interface defines the tracing API.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
	EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any)
}

// Span interface represents a timed operation span.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetEntity(entity, recordID string)
	TraceID() string
	SpanID() string
}

// WithInstrumenter sets the instrumenter in the context.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the instrumenter from the context,
// or a NoopInstrumenter if none is set.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return &NoopInstrumenter{}
}

// OTelInstrumenter records spans through an OpenTelemetry tracer.
type OTelInstrumenter struct {
	tracer trace.Tracer
}

// NewInstrumenter uses the given provider, or the global one when tp is nil.
func NewInstrumenter(tp trace.TracerProvider) *OTelInstrumenter {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OTelInstrumenter{tracer: tp.Tracer(tracerName)}
}

// StartSpan starts a span named after action, child of any span already in ctx.
func (i *OTelInstrumenter) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	ctx, span := i.tracer.Start(ctx, action,
		trace.WithAttributes(
			attribute.String("tours.source", source),
			attribute.String("tours.component", component),
		),
	)
	return ctx, &otelSpan{span: span}
}

// EmitBusinessEvent records an event on the span active in ctx.
func (i *OTelInstrumenter) EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any) {
	attrs := []attribute.KeyValue{attribute.String("tours.entity", entity)}
	if recordID != "" {
		attrs = append(attrs, attribute.String("tours.record_id", recordID))
	}
	for k, v := range metadata {
		attrs = append(attrs, toAttribute(k, v))
	}
	trace.SpanFromContext(ctx).AddEvent(action, trace.WithAttributes(attrs...))
}

type otelSpan struct {
	span trace.Span
	once sync.Once
}

func (s *otelSpan) End() {
	s.once.Do(func() { s.span.End() })
}

func (s *otelSpan) SetStatus(status string) {
	if status == "error" {
		s.span.SetStatus(codes.Error, "")
		return
	}
	s.span.SetStatus(codes.Ok, "")
}

func (s *otelSpan) SetMetadata(key string, value any) {
	s.span.SetAttributes(toAttribute(key, value))
}

func (s *otelSpan) SetEntity(entity, recordID string) {
	s.span.SetAttributes(attribute.String("tours.entity", entity))
	if recordID != "" {
		s.span.SetAttributes(attribute.String("tours.record_id", recordID))
	}
}

func (s *otelSpan) TraceID() string {
	sc := s.span.SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func (s *otelSpan) SpanID() string {
	sc := s.span.SpanContext()
	if !sc.HasSpanID() {
		return ""
	}
	return sc.SpanID().String()
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case error:
		return attribute.String(key, v.Error())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
