// Package telemetry provides simple metrics emission and tracing for the
// decision engine over OpenTelemetry. The package-level functions cover
// the common cases and degrade to no-ops until Init is called, so
// library code can emit unconditionally.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/fraudmind/core"
)

// Module label values for the unified metric taxonomy.
const (
	ModuleOrchestration = "orchestration"
	ModuleRAG           = "rag"
	ModuleWebsearch     = "websearch"
	ModuleStorage       = "storage"
	ModuleAI            = "ai"
)

// Provider implements core.Telemetry with OpenTelemetry, exporting traces
// and metrics via OTLP/HTTP.
type Provider struct {
	tracer         trace.Tracer
	meter          metric.Meter
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram

	shutdownOnce sync.Once
}

var globalProvider atomic.Pointer[Provider]

// Init creates the global telemetry provider. The endpoint should be an
// OTLP/HTTP receiver address (typically host:4318).
func Init(serviceName, endpoint string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("service name cannot be empty")
	}
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	ctx := context.Background()

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // For development; use TLS in production
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter for endpoint %s: %w", endpoint, err)
	}

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		if shutdownErr := traceExporter.Shutdown(ctx); shutdownErr != nil {
			_ = shutdownErr
		}
		return nil, fmt.Errorf("failed to create metric exporter for endpoint %s: %w", endpoint, err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(traceProvider)
	otel.SetMeterProvider(metricProvider)

	p := &Provider{
		tracer:         traceProvider.Tracer(serviceName),
		meter:          metricProvider.Meter(serviceName),
		traceProvider:  traceProvider,
		metricProvider: metricProvider,
		counters:       make(map[string]metric.Float64Counter),
		histograms:     make(map[string]metric.Float64Histogram),
	}

	globalProvider.Store(p)
	return p, nil
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		if traceErr := p.traceProvider.Shutdown(ctx); traceErr != nil {
			err = traceErr
		}
		if metricErr := p.metricProvider.Shutdown(ctx); metricErr != nil && err == nil {
			err = metricErr
		}
		globalProvider.CompareAndSwap(p, nil)
	})
	return err
}

// StartSpan implements core.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	p.histogram(name).Record(context.Background(), value, metric.WithAttributes(attrs...))
}

func (p *Provider) counter(name string) metric.Float64Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c
	}
	c, err := p.meter.Float64Counter(name)
	if err != nil {
		c, _ = p.meter.Float64Counter("fraudmind.invalid_metric")
	}
	p.counters[name] = c
	return c
}

func (p *Provider) histogram(name string) metric.Float64Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[name]; ok {
		return h
	}
	h, err := p.meter.Float64Histogram(name)
	if err != nil {
		h, _ = p.meter.Float64Histogram("fraudmind.invalid_metric")
	}
	p.histograms[name] = h
	return h
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func labelAttrs(labels []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}

// Counter increments a counter metric by 1.
// Labels are key-value pairs:
//
//	telemetry.Counter("decision.total", "module", telemetry.ModuleOrchestration, "decision", "APPROVE")
func Counter(name string, labels ...string) {
	p := globalProvider.Load()
	if p == nil {
		return
	}
	p.counter(name).Add(context.Background(), 1, metric.WithAttributes(labelAttrs(labels)...))
}

// Histogram records a value in a distribution. Use for latencies and
// score distributions.
func Histogram(name string, value float64, labels ...string) {
	p := globalProvider.Load()
	if p == nil {
		return
	}
	p.histogram(name).Record(context.Background(), value, metric.WithAttributes(labelAttrs(labels)...))
}

// Duration records elapsed time since startTime in milliseconds.
//
//	start := time.Now()
//	defer telemetry.Duration("stage.duration_ms", start, "agent", name)
func Duration(name string, startTime time.Time, labels ...string) {
	Histogram(name, float64(time.Since(startTime).Milliseconds()), labels...)
}
