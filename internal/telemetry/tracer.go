// Package telemetry wraps the OpenTelemetry tracer API for spans around named pipeline
// stages; the pipeline Runner opens one only around the archive step. The concrete span exporter is an out-of-scope external collaborator — this
// package only requires a trace.TracerProvider to be injected, defaulting to a no-op
// provider so FileLoader runs with zero tracing configuration.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	noopTrace "go.opentelemetry.io/otel/trace/noop"

	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies this package's tracer in exported spans.
const InstrumentationName = "github.com/fileloader-io/fileloader/internal/pipeline"

// Tracer wraps an otel trace.Tracer with FileLoader-specific span helpers, so pipeline
// stages don't need to repeat attribute-setting boilerplate at every call site.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer from the given provider. A nil provider falls back to a
// no-op trace.TracerProvider, so callers can construct a Tracer before telemetry
// configuration (an OTLP endpoint, §6) is wired up.
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = noopTrace.NewTracerProvider()
	}

	return &Tracer{tracer: provider.Tracer(InstrumentationName)}
}

// NewDefaultTracer builds a Tracer against the process-global otel.GetTracerProvider(),
// which is a no-op until an exporter is registered via otel.SetTracerProvider.
func NewDefaultTracer() *Tracer {
	return NewTracer(otel.GetTracerProvider())
}

// StartFileStage starts a span for one pipeline stage (archive, dedup, stage_create,
// read, validate, write, audit, publish, cleanup) scoped to a single file run.
func (t *Tracer) StartFileStage(ctx context.Context, stage, sourceName, filename string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "fileloader.stage."+stage, trace.WithAttributes(
		attribute.String("fileloader.source", sourceName),
		attribute.String("fileloader.filename", filename),
		attribute.String("fileloader.stage", stage),
	))
}

// EndWithError records err on span (if non-nil) and sets the span status before ending
// it — the single place every pipeline stage reports its outcome.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}
