package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSetup_Disabled(t *testing.T) {
	ctx := context.Background()

	p, err := Setup(ctx, config.TelemetryConfig{ServiceName: "test"}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, p.Tracer.IsEnabled())
	assert.False(t, p.Logs.IsEnabled())
	assert.False(t, p.Profiler.IsEnabled())
	assert.NotNil(t, p.Metrics)
	assert.IsType(t, zapcore.NewNopCore(), p.Logs.ZapCore(zapcore.InfoLevel))

	assert.NoError(t, p.Shutdown(ctx))
	// Stop is idempotent
	assert.NoError(t, p.Profiler.Stop())
}

func TestNewProfiler_RequiresAddress(t *testing.T) {
	_, err := NewProfiler(ProfilerConfig{Enabled: true}, zap.NewNop())
	assert.Error(t, err)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestMetrics_RecordOperation(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()

	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	m.RecordOperation(ctx, "library", "checkout", time.Now(), nil)
	m.RecordOperation(ctx, "library", "checkout", time.Now(), errors.New("no copies"))
	m.RecordUpstreamError(ctx, "iam", "create_user")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[md.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), totals["backoffice.operations"])
	assert.Equal(t, int64(1), totals["backoffice.upstream.errors"])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOperation(context.Background(), "fleet", "create_vehicle", time.Now(), nil)
		m.RecordUpstreamError(context.Background(), "iam", "token")
	})
}
