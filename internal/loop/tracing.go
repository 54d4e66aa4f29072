package loop

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracingObserver exports the loop's lifecycle as OTLP spans: one root span
// per run with a child span per iteration.
type TracingObserver struct {
	NoopObserver

	provider *sdktrace.TracerProvider
	tracer   oteltrace.Tracer
	runID    string

	mu       sync.Mutex
	loopCtx  context.Context
	loopSpan oteltrace.Span
	iterSpan oteltrace.Span
}

// NewTracingObserver creates a TracingObserver that exports to OTLP.
// Set OTEL_EXPORTER_OTLP_ENDPOINT to enable export (e.g. "localhost:4318").
// Returns nil when the endpoint is not configured; a nil observer is safe to
// pass to NewMultiObserver.
func NewTracingObserver(ctx context.Context) (*TracingObserver, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return nil, nil // Disabled
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = "ralphloop"
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	return &TracingObserver{
		provider: provider,
		tracer:   provider.Tracer("ralphloop/loop"),
		runID:    uuid.NewString(),
	}, nil
}

var _ ProgressObserver = (*TracingObserver)(nil)

// OnLoopStart begins the root span for the run.
func (o *TracingObserver) OnLoopStart(maxIterations int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.loopCtx, o.loopSpan = o.tracer.Start(context.Background(), "ralph-loop",
		oteltrace.WithAttributes(
			attribute.String("ralphloop.run.id", o.runID),
			attribute.Int("ralphloop.max_iterations", maxIterations),
		))
}

// OnIterationStart begins an iteration span under the root span.
func (o *TracingObserver) OnIterationStart(iteration, maxIterations int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.loopSpan == nil {
		return
	}
	_, o.iterSpan = o.tracer.Start(o.loopCtx, fmt.Sprintf("iteration-%d", iteration),
		oteltrace.WithAttributes(
			attribute.Int("ralphloop.iteration", iteration),
		))
}

// OnIterationComplete ends the current iteration span.
func (o *TracingObserver) OnIterationComplete(result IterationResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.iterSpan == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Bool("ralphloop.completion_detected", result.CompletionDetected),
		attribute.Int64("ralphloop.duration_ms", result.Duration.Milliseconds()),
	}
	if result.SessionID != "" {
		attrs = append(attrs, attribute.String("ralphloop.session_id", result.SessionID))
	}
	if result.ExitCode != 0 {
		attrs = append(attrs, attribute.Int("ralphloop.exit_code", result.ExitCode))
	}
	o.iterSpan.SetAttributes(attrs...)
	o.iterSpan.End()
	o.iterSpan = nil
}

// OnLoopEnd ends the root span with the final state.
func (o *TracingObserver) OnLoopEnd(summary *RunSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.iterSpan != nil {
		// A cancelled in-flight iteration still has an open span.
		o.iterSpan.End()
		o.iterSpan = nil
	}
	if o.loopSpan == nil {
		return
	}
	o.loopSpan.SetAttributes(
		attribute.String("ralphloop.state", summary.State.String()),
		attribute.Int("ralphloop.iterations", summary.Iterations),
		attribute.Int("ralphloop.failed_exits", summary.FailedExits),
	)
	o.loopSpan.End()
	o.loopSpan = nil
}

// Shutdown flushes and closes the exporter.
func (o *TracingObserver) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	return o.provider.Shutdown(ctx)
}
