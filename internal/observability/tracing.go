package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/signalsfoundry/constellation-router/internal/logging"
)

// Tracing exporters.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TracingConfig is the tracing section of the run configuration.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`

	// Output receives stdout exporter spans. Defaults to stderr so spans do
	// not interleave with command output.
	Output io.Writer `yaml:"-"`
}

// RunResource describes what a process is routing. Its fields become
// resource attributes on every exported span; zero values are omitted.
type RunResource struct {
	Component      string
	RunID          string
	Policy         string
	Satellites     int
	GroundStations int
}

func (r RunResource) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if r.Component != "" {
		attrs = append(attrs, attribute.String("satroute.component", r.Component))
	}
	if r.RunID != "" {
		attrs = append(attrs, attribute.String("satroute.run_id", r.RunID))
	}
	if r.Policy != "" {
		attrs = append(attrs, attribute.String("satroute.policy", r.Policy))
	}
	if r.Satellites > 0 {
		attrs = append(attrs, attribute.Int("satroute.satellites", r.Satellites))
	}
	if r.GroundStations > 0 {
		attrs = append(attrs, attribute.Int("satroute.ground_stations", r.GroundStations))
	}
	return attrs
}

// InitTracing installs the global tracer provider for one run. Disabled
// tracing installs a noop provider. The returned function flushes and
// stops the provider.
func InitTracing(ctx context.Context, cfg TracingConfig, run RunResource, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	service := cfg.ServiceName
	if service == "" {
		service = "satroute"
	}
	res, err := resource.New(ctx, resource.WithAttributes(append([]attribute.KeyValue{
		attribute.String("service.name", service),
		attribute.String("service.namespace", "constellation-router"),
	}, run.attributes()...)...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", service),
		logging.String("run_id", run.RunID),
		logging.String("sample_ratio", fmt.Sprintf("%.2f", cfg.SampleRatio)),
	)
	return tp.Shutdown, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case ExporterStdout, "":
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		return stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithoutTimestamps())
	case ExporterOTLP:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes spans for at most five seconds and logs a
// failure instead of returning it.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
