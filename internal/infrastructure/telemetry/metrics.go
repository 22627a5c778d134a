package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys shared by the back-office metrics.
var (
	AttrModule    = attribute.Key("module")
	AttrOperation = attribute.Key("operation")
	AttrOutcome   = attribute.Key("outcome")
	AttrUpstream  = attribute.Key("upstream")
)

// Metrics records business-level counters for the back-office modules.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations     metric.Int64Counter
	upstreamErrors metric.Int64Counter
	duration       metric.Float64Histogram
}

// NewMetrics registers the back-office instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	operations, err := meter.Int64Counter("backoffice.operations",
		metric.WithDescription("Completed domain operations by module and outcome"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create operations counter: %w", err)
	}

	upstreamErrors, err := meter.Int64Counter("backoffice.upstream.errors",
		metric.WithDescription("Failed calls to upstream services"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream error counter: %w", err)
	}

	duration, err := meter.Float64Histogram("backoffice.operation.duration",
		metric.WithDescription("Duration of domain operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10))
	if err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	return &Metrics{
		operations:     operations,
		upstreamErrors: upstreamErrors,
		duration:       duration,
	}, nil
}

// RecordOperation counts one domain operation, e.g. ("library", "checkout", err).
func (m *Metrics) RecordOperation(ctx context.Context, module, operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		AttrModule.String(module),
		AttrOperation.String(operation),
		AttrOutcome.String(outcome),
	)
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, time.Since(started).Seconds(), attrs)
}

// RecordUpstreamError counts a failed call to an upstream service.
func (m *Metrics) RecordUpstreamError(ctx context.Context, upstream, operation string) {
	if m == nil {
		return
	}
	m.upstreamErrors.Add(ctx, 1, metric.WithAttributes(
		AttrUpstream.String(upstream),
		AttrOperation.String(operation),
	))
}
