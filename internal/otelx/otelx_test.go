package otelx

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{Enabled: false, Sample: 42})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("TracerProvider = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}

	_, span := otel.Tracer("test").Start(context.Background(), "span")
	defer span.End()
	if !span.SpanContext().IsValid() || !span.IsRecording() {
		t.Fatal("disabled tracing should still record spans locally")
	}
}

func TestInit_Propagator(t *testing.T) {
	if _, err := Init(context.Background(), Options{}); err != nil {
		t.Fatal(err)
	}
	fields := map[string]bool{}
	for _, f := range otel.GetTextMapPropagator().Fields() {
		fields[f] = true
	}
	for _, want := range []string{"traceparent", "tracestate", "baggage"} {
		if !fields[want] {
			t.Errorf("propagator missing %s (have %v)", want, fields)
		}
	}
}

func TestInit_Enabled_Bounded(t *testing.T) {
	start := time.Now()
	shutdown, err := Init(context.Background(), Options{
		Enabled:     true,
		Endpoint:    "localhost:1",
		Insecure:    true,
		Sample:      1,
		Service:     "linnemanlabs-api",
		Component:   "test",
		Version:     "v0.0.0-test",
		DialTimeout: 500 * time.Millisecond,
	})
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Init took %v", elapsed)
	}
	if err != nil {
		// an eager dial failure is fine, it just has to be bounded
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestServiceName(t *testing.T) {
	for _, tc := range []struct {
		service, component, want string
	}{
		{"api", "server", "api.server"},
		{"api", "", "api"},
		{"", "server", "server"},
		{"", "", ""},
	} {
		if got := (Options{Service: tc.service, Component: tc.component}).ServiceName(); got != tc.want {
			t.Errorf("ServiceName(%q, %q) = %q, want %q", tc.service, tc.component, got, tc.want)
		}
	}
}

func TestSampler(t *testing.T) {
	root := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		Name:          "root",
	}
	for _, tc := range []struct {
		ratio float64
		want  sdktrace.SamplingDecision
	}{
		{-1, sdktrace.Drop},
		{0, sdktrace.Drop},
		{1, sdktrace.RecordAndSample},
		{7, sdktrace.RecordAndSample},
	} {
		if got := Sampler(tc.ratio).ShouldSample(root).Decision; got != tc.want {
			t.Errorf("Sampler(%v) decision = %v, want %v", tc.ratio, got, tc.want)
		}
	}

	// a sampled parent wins over a zero ratio
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	child := root
	child.ParentContext = trace.ContextWithRemoteSpanContext(context.Background(), parent)
	if got := Sampler(0).ShouldSample(child).Decision; got != sdktrace.RecordAndSample {
		t.Fatalf("sampled parent decision = %v, want RecordAndSample", got)
	}
}
