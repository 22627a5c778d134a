package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func attr(t *testing.T, set attribute.Set, key string) attribute.Value {
	t.Helper()
	v, ok := set.Value(attribute.Key(key))
	require.True(t, ok, key)
	return v
}

func newMeteredRouter(t *testing.T) (*gin.Engine, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	router := gin.New()
	router.Use(HTTPMetrics(provider.Meter("test"), zap.NewNop()))
	return router, reader
}

func TestHTTPMetrics(t *testing.T) {
	router, reader := newMeteredRouter(t)
	router.POST("/api/v1/library/books", func(c *gin.Context) { c.String(http.StatusCreated, "created") })

	serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/library/books", strings.NewReader(`{"title":"x"}`)))
	serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/library/books", strings.NewReader(`{"title":"y"}`)))

	metrics := collect(t, reader)

	sum, ok := metrics["http_server_request_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	dp := sum.DataPoints[0]
	assert.Equal(t, int64(2), dp.Value)
	assert.Equal(t, "/api/v1/library/books", attr(t, dp.Attributes, "http.route").AsString())
	assert.Equal(t, "library", attr(t, dp.Attributes, "backoffice.module").AsString())
	assert.Equal(t, int64(http.StatusCreated), attr(t, dp.Attributes, "http.status_code").AsInt64())
	assert.Equal(t, "2xx", attr(t, dp.Attributes, "http.status_class").AsString())

	hist, ok := metrics["http_server_request_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)

	assert.Contains(t, metrics, "http_server_request_size_bytes")
	assert.Contains(t, metrics, "http_server_response_size_bytes")

	active, ok := metrics["http_server_active_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(0), active.DataPoints[0].Value)
}

func TestHTTPMetrics_UnmatchedRoute(t *testing.T) {
	router, reader := newMeteredRouter(t)
	serve(router, httptest.NewRequest(http.MethodGet, "/does/not/exist", nil))

	sum := collect(t, reader)["http_server_request_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, unmatchedRoute, attr(t, sum.DataPoints[0].Attributes, "http.route").AsString())
	assert.Equal(t, "4xx", attr(t, sum.DataPoints[0].Attributes, "http.status_class").AsString())
}

func TestHTTPMetrics_SkipsProbes(t *testing.T) {
	router, reader := newMeteredRouter(t)
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotContains(t, collect(t, reader), "http_server_request_total")
}

func TestHTTPMetrics_NilMeter(t *testing.T) {
	router := gin.New()
	router.Use(HTTPMetrics(nil, nil))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}
