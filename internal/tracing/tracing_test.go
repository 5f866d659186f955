package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"meeting-insights-go/internal/config"
)

func TestInitNone(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TracingConfig{Exporter: "none"}, "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	_, span := StartSpan(context.Background(), "noop", attribute.String("k", "v"))
	if span.SpanContext().IsValid() {
		t.Error("noop provider produced a recording span")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInitStdout(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TracingConfig{Exporter: "stdout"}, "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer Init(context.Background(), config.TracingConfig{Exporter: "none"}, "test")

	_, span := StartSpan(context.Background(), "stage")
	if !span.SpanContext().IsValid() {
		t.Error("span context not valid")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInitUnknown(t *testing.T) {
	if _, err := Init(context.Background(), config.TracingConfig{Exporter: "zipkin"}, "test"); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}
