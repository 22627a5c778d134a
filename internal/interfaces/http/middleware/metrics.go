package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	sizeBuckets    = []float64{100, 1000, 10_000, 100_000, 1_000_000, 10_000_000, 50_000_000}
)

type httpInstruments struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	reqSize  metric.Int64Histogram
	respSize metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	var (
		in   httpInstruments
		errs [5]error
	)
	in.requests, errs[0] = meter.Int64Counter("http_server_request_total",
		metric.WithDescription("HTTP requests served"), metric.WithUnit("{request}"))
	in.latency, errs[1] = meter.Float64Histogram("http_server_request_duration_seconds",
		metric.WithDescription("HTTP request latency"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	in.reqSize, errs[2] = meter.Int64Histogram("http_server_request_size_bytes",
		metric.WithDescription("HTTP request body size"), metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...))
	in.respSize, errs[3] = meter.Int64Histogram("http_server_response_size_bytes",
		metric.WithDescription("HTTP response body size"), metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...))
	in.inFlight, errs[4] = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("HTTP requests in flight"), metric.WithUnit("{request}"))
	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return &in, nil
}

// HTTPMetrics records request count, latency, body sizes and requests in
// flight, labelled by method, route pattern and module. Probe paths are not
// counted. A nil meter disables the middleware.
func HTTPMetrics(meter metric.Meter, log *zap.Logger) gin.HandlerFunc {
	if meter == nil {
		return passthrough
	}
	in, err := newHTTPInstruments(meter)
	if err != nil {
		if log != nil {
			log.Warn("HTTP metrics disabled", zap.Error(err))
		}
		return passthrough
	}
	probes := newPathSet(probePaths...)

	return func(c *gin.Context) {
		if probes.has(c.Request.URL.Path) {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		start := time.Now()
		in.inFlight.Add(ctx, 1)
		defer in.inFlight.Add(ctx, -1)

		c.Next()

		route := routeOf(c)
		attrs := metric.WithAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.String("backoffice.module", routeModule(route)),
		)
		status := c.Writer.Status()
		in.requests.Add(ctx, 1, attrs, metric.WithAttributes(
			attribute.Int("http.status_code", status),
			attribute.String("http.status_class", strconv.Itoa(status/100)+"xx"),
		))
		in.latency.Record(ctx, time.Since(start).Seconds(), attrs)
		if n := c.Request.ContentLength; n > 0 {
			in.reqSize.Record(ctx, n, attrs)
		}
		if n := c.Writer.Size(); n > 0 {
			in.respSize.Record(ctx, int64(n), attrs)
		}
	}
}
