package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "dispatch"

// Config controls the process-wide tracer provider behind batch and call
// spans.
type Config struct {
	// ServiceName labels exported spans; empty falls back to "dispatch".
	ServiceName string
	// SampleRatio is the parent-based head sampling ratio. Values outside
	// (0, 1] sample every batch.
	SampleRatio float64
}

var (
	providerOnce sync.Once
	providerMu   sync.RWMutex
	provider     *sdktrace.TracerProvider
	providerErr  error
)

// Init installs the global tracer provider. The first call wins; repeated
// calls return the first outcome, so the serve and run commands can both
// call it unconditionally.
func Init(cfg Config) error {
	providerOnce.Do(func() {
		name := cfg.ServiceName
		if name == "" {
			name = defaultServiceName
		}
		ratio := cfg.SampleRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 1
		}

		res, err := resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(name),
			),
		)
		if err != nil {
			providerErr = err
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
			sdktrace.WithResource(res),
		)

		providerMu.Lock()
		provider = tp
		providerMu.Unlock()

		otel.SetTracerProvider(tp)
	})

	return providerErr
}

// Shutdown flushes and stops the tracer provider installed by Init. A
// no-op when tracing was never initialized.
func Shutdown(ctx context.Context) error {
	providerMu.RLock()
	tp := provider
	providerMu.RUnlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span carrying the batch and call ids already riding
// ctx as span attributes, so callers never stamp them twice, and bridges
// the span's trace id back into the logging context when upstream set none.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	if batchID := GetBatchID(ctx); batchID != "" {
		attrs = append(attrs, attribute.String("batch_id", batchID))
	}
	if callID := GetCallID(ctx); callID != "" {
		attrs = append(attrs, attribute.String("call_id", callID))
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		sc := span.SpanContext()
		if sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}
