// Package telemetry provides OpenTelemetry initialization and instrumentation.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	instrumentationsdk "go.opentelemetry.io/otel/sdk/instrumentation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
)

const (
	serviceName    = "racesync"
	serviceVersion = "1.0.0"
)

// Config defines OpenTelemetry configuration parameters.
type Config struct {
	Enabled         bool
	OTLPEndpoint    string
	OTLPInsecure    bool
	MetricInterval  time.Duration
	ShutdownTimeout time.Duration
	ServiceName     string
	ServiceVersion  string
	Environment     string
}

// DefaultConfig returns the default telemetry configuration based on environment variables.
func DefaultConfig() Config {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	svcName := os.Getenv("OTEL_SERVICE_NAME")
	if svcName == "" {
		svcName = serviceName
	}
	env := strings.TrimSpace(os.Getenv("RACESYNC_ENV"))
	if env == "" {
		env = "development"
	}
	return Config{
		Enabled:         os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:    endpoint,
		OTLPInsecure:    os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		MetricInterval:  30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		ServiceName:     svcName,
		ServiceVersion:  serviceVersion,
		Environment:     env,
	}
}

// Provider manages the OpenTelemetry meter provider (metrics only).
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	config        Config
}

// NewProvider initializes a telemetry provider with the given configuration.
// A disabled provider is valid and hands out no-op meters.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{meterProvider: nil, config: cfg}, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	mp, err := newMeterProvider(ctx, res, cfg)
	if err != nil {
		return nil, fmt.Errorf("create meter provider: %w", err)
	}
	otel.SetMeterProvider(mp)
	return &Provider{meterProvider: mp, config: cfg}, nil
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter: %w", err)
	}
	return nil
}

// Meter returns a meter with the given name.
func (p *Provider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if p.meterProvider == nil {
		return otel.Meter(name, opts...)
	}
	return p.meterProvider.Meter(name, opts...)
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(
			attribute.String("environment", strings.ToLower(cfg.Environment)),
		))
	}
	attrs = append(attrs, resource.WithProcessRuntimeName())
	attrs = append(attrs, resource.WithProcessRuntimeVersion())
	attrs = append(attrs, resource.WithHost())
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("create telemetry resource: %w", err)
	}
	return res, nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, cfg Config) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(stripScheme(cfg.OTLPEndpoint)),
	}
	if cfg.OTLPInsecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.MetricInterval),
		)),
		sdkmetric.WithView(histogramViews()...),
	)
	return mp, nil
}

// histogramViews sets explicit buckets for the upload latency histogram.
// Sink round-trips sit between 20ms and a few seconds once retries kick in.
func histogramViews() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{
				Name:        "upload.duration",
				Description: "Record upload duration",
				Kind:        sdkmetric.InstrumentKindHistogram,
				Unit:        "ms",
				Scope: instrumentationsdk.Scope{
					Name:       "",
					Version:    "",
					SchemaURL:  "",
					Attributes: attribute.Set{},
				},
			},
			sdkmetric.Stream{
				Name:        "",
				Description: "",
				Unit:        "",
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: []float64{20, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
					NoMinMax:   false,
				},
				AttributeFilter:                   nil,
				ExemplarReservoirProviderSelector: nil,
			},
		),
	}
}

// stripScheme removes http:// or https:// prefix from endpoint URL.
// OTLP HTTP exporters expect just host:port, not a full URL with scheme.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return endpoint
}
