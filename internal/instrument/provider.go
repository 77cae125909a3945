package instrument

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"tours-backend/internal/config"
)

// NewTracerProvider installs a global SDK tracer provider sampling at
// cfg.SamplingRate. Exporters are attached by the caller with opts.
// The returned shutdown flushes pending spans.
func NewTracerProvider(cfg config.InstrumentationConfig, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, func(context.Context) error) {
	base := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	}
	tp := sdktrace.NewTracerProvider(append(base, opts...)...)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown
}
