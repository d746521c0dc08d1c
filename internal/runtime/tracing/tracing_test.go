package tracing

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetupCreatesProvider(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	// Non-routable address so nothing is exported.
	shutdown, err := Setup(context.Background(), "http://192.0.2.1:4318", "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected sdk tracer provider, got %T", otel.GetTracerProvider())
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestInjectExtractRoundTrip(t *testing.T) {
	prevProp := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prevProp) })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	msg := message.NewMessage("id", nil)
	Inject(ctx, msg)
	if msg.Metadata.Get("traceparent") == "" {
		t.Fatal("expected traceparent metadata")
	}

	got := trace.SpanContextFromContext(Extract(context.Background(), msg))
	if got.TraceID() != span.SpanContext().TraceID() {
		t.Fatalf("trace id mismatch: %s != %s", got.TraceID(), span.SpanContext().TraceID())
	}
	if !got.IsRemote() {
		t.Fatal("expected extracted span context to be remote")
	}
}

func TestExtractWithoutMetadata(t *testing.T) {
	ctx := context.Background()
	msg := &message.Message{}
	if Extract(ctx, msg) != ctx {
		t.Fatal("expected ctx to be returned unchanged")
	}
	Inject(ctx, msg)
	if msg.Metadata == nil {
		t.Fatal("expected metadata to be initialised")
	}
}
