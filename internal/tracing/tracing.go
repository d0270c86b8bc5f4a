// Package tracing sets up the global otel tracer provider from config.
package tracing

import (
	"github.com/harrybrwn/spiders/cmd"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Provider installs a global tracer provider that batches spans to the
// collector described by cfg. name is used when cfg has no service name.
func Provider(cfg *cmd.TracerConfig, name string, opts ...tracesdk.TracerProviderOption) (*tracesdk.TracerProvider, error) {
	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]tracesdk.TracerProviderOption{
		tracesdk.WithBatcher(exporter),
		tracesdk.WithSampler(sampler(cfg.SampleRatio)),
		tracesdk.WithResource(newResource(cfg, name)),
	}, opts...)
	tp := tracesdk.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func newExporter(cfg *cmd.TracerConfig) (tracesdk.SpanExporter, error) {
	if cfg.Endpoint == "" {
		return nil, errors.Errorf("no endpoint for %s tracing", cfg.Type)
	}
	switch cfg.Type {
	case "jaeger":
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
		return exp, errors.Wrap(err, "could not create jaeger exporter")
	case "zipkin":
		exp, err := zipkin.New(cfg.Endpoint)
		return exp, errors.Wrap(err, "could not create zipkin exporter")
	}
	return nil, errors.Errorf("tracing type %q not recognized", cfg.Type)
}

func sampler(ratio float64) tracesdk.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return tracesdk.AlwaysSample()
	}
	// a crawl's fetch spans follow the decision made for its root span
	return tracesdk.ParentBased(tracesdk.TraceIDRatioBased(ratio))
}

func newResource(cfg *cmd.TracerConfig, name string) *resource.Resource {
	service := cfg.Service
	if service == "" {
		service = name
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(service),
		semconv.ServiceVersionKey.String(cmd.GetVersionInfo().Version),
		semconv.TelemetrySDKLanguageGo,
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}
