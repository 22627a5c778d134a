// Package telemetry wires OpenTelemetry tracing, metrics and logs plus
// Pyroscope continuous profiling for the back-office services.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/municipal/backoffice/internal/infrastructure/config"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

// serviceVersion is reported on every exported resource
const serviceVersion = "1.0.0"

// Providers bundles every telemetry provider started for one process
type Providers struct {
	Tracer   *TracerProvider
	Meter    *MeterProvider
	Logs     *LoggerProvider
	Profiler *Profiler
	Metrics  *Metrics
}

// Setup starts the providers enabled in cfg. Disabled providers are no-ops,
// so callers can always use the returned value.
func Setup(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	p := &Providers{}
	collector := Collector{
		Endpoint:    cfg.CollectorEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.Insecure,
	}
	var err error

	if p.Tracer, err = NewTracerProvider(ctx, cfg.Enabled, cfg.SamplingRatio, collector, logger); err != nil {
		return nil, err
	}
	if p.Meter, err = NewMeterProvider(ctx, cfg.Enabled && cfg.MetricsEnabled, cfg.MetricsInterval, collector, logger); err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}
	if p.Logs, err = NewLoggerProvider(ctx, cfg.Enabled && cfg.LogsEnabled, collector, logger); err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}
	p.Profiler, err = NewProfiler(ProfilerConfig{
		Enabled:         cfg.ProfilingEnabled,
		ServerAddress:   cfg.PyroscopeAddress,
		ApplicationName: cfg.ServiceName,
	}, logger)
	if err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}
	if p.Profiler.IsEnabled() {
		p.Tracer.EnableSpanProfiles()
	}

	p.Metrics, err = NewMetrics(p.Meter.Meter("github.com/municipal/backoffice"))
	if err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}

	return p, nil
}

// Shutdown flushes and stops every provider
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.Profiler != nil {
		errs = append(errs, p.Profiler.Stop())
	}
	if p.Logs != nil {
		errs = append(errs, p.Logs.Shutdown(ctx))
	}
	if p.Meter != nil {
		errs = append(errs, p.Meter.Shutdown(ctx))
	}
	if p.Tracer != nil {
		errs = append(errs, p.Tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
