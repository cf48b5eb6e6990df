// Package observability provides OpenTelemetry-based tracing and metrics
// for the webhook processor: RED instruments on the ingest path and a
// live-task gauge on the background processor. When disabled it falls
// back to the no-op global providers, so call sites never branch.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // e.g. "localhost:4317" (gRPC)
	Enabled        bool
	BatchTimeout   time.Duration
}

// DefaultConfig returns development defaults with export disabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "webhookd",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
		BatchTimeout:   5 * time.Second,
	}
}

// Provider manages the trace and metric providers plus the service's
// instruments.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	ingestCounter  metric.Int64Counter
	ingestDuration metric.Float64Histogram
	conflictTotal  metric.Int64Counter
	tasksActive    metric.Int64UpDownCounter
	taskResults    metric.Int64Counter
}

// New creates the provider. With Enabled=false the global no-op providers
// back every instrument.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if config.Enabled {
		res, err := resource.Merge(
			resource.Default(),
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
				semconv.DeploymentEnvironment(config.Environment),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("create resource: %w", err)
		}
		if err := p.initTraceProvider(ctx, res); err != nil {
			return nil, fmt.Errorf("init trace provider: %w", err)
		}
		if err := p.initMetricProvider(ctx, res); err != nil {
			return nil, fmt.Errorf("init metric provider: %w", err)
		}
	} else {
		p.logger.InfoContext(ctx, "telemetry export disabled")
	}

	p.tracer = otel.Tracer("confluencr.webhookd",
		trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter("confluencr.webhookd",
		metric.WithInstrumentationVersion(config.ServiceVersion))

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("init instruments: %w", err)
	}
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return err
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return err
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error
	if p.ingestCounter, err = p.meter.Int64Counter("webhookd.ingest.requests",
		metric.WithDescription("Webhook deliveries by idempotency outcome")); err != nil {
		return err
	}
	if p.ingestDuration, err = p.meter.Float64Histogram("webhookd.ingest.duration",
		metric.WithDescription("Webhook acknowledgement latency"),
		metric.WithUnit("ms")); err != nil {
		return err
	}
	if p.conflictTotal, err = p.meter.Int64Counter("webhookd.ingest.conflicts",
		metric.WithDescription("Conflicting duplicate deliveries")); err != nil {
		return err
	}
	if p.tasksActive, err = p.meter.Int64UpDownCounter("webhookd.processor.active",
		metric.WithDescription("Background processing tasks in flight")); err != nil {
		return err
	}
	if p.taskResults, err = p.meter.Int64Counter("webhookd.processor.completed",
		metric.WithDescription("Background task completions by result")); err != nil {
		return err
	}
	return nil
}

// Tracer returns the service tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// RecordIngest records one webhook delivery with its arbiter outcome and
// acknowledgement latency.
func (p *Provider) RecordIngest(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	p.ingestCounter.Add(ctx, 1, attrs)
	p.ingestDuration.Record(ctx, float64(elapsed.Nanoseconds())/1e6, attrs)
}

// RecordConflict counts a conflicting duplicate delivery.
func (p *Provider) RecordConflict(ctx context.Context) {
	p.conflictTotal.Add(ctx, 1)
}

// TaskStarted bumps the live-task gauge.
func (p *Provider) TaskStarted(ctx context.Context) {
	p.tasksActive.Add(ctx, 1)
}

// TaskFinished decrements the gauge and counts the result
// (processed, failed, interrupted, superseded).
func (p *Provider) TaskFinished(ctx context.Context, result string) {
	p.tasksActive.Add(ctx, -1)
	p.taskResults.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("observability shutdown: %v", errs)
	}
	return nil
}
