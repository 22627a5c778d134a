package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestProfiling_SetsLabels(t *testing.T) {
	labels := map[string]string{}
	record := func(c *gin.Context) {
		pprof.ForLabels(c.Request.Context(), func(k, v string) bool {
			labels[k] = v
			return true
		})
		c.Status(http.StatusOK)
	}

	router := gin.New()
	router.Use(Profiling())
	router.GET("/api/v1/fleet/vehicles/:id", record)
	router.GET("/status", record)

	serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/fleet/vehicles/5", nil))
	assert.Equal(t, map[string]string{
		"method": "GET",
		"route":  "/api/v1/fleet/vehicles/:id",
		"module": "fleet",
	}, labels)

	clear(labels)
	serve(router, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, "other", labels["module"])
}

func TestProfiling_SkipsProbes(t *testing.T) {
	tests := []struct {
		name string
		skip []string
		path string
		want bool
	}{
		{"health by default", nil, "/health", false},
		{"swagger prefix by default", nil, "/swagger/index.html", false},
		{"api by default", nil, "/api/v1/library/books", true},
		{"custom list replaces default", []string{"/api/v1/library/*"}, "/api/v1/library/books", false},
		{"custom list leaves health", []string{"/api/v1/library/*"}, "/health", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var labelled bool
			router := gin.New()
			router.Use(Profiling(tt.skip...))
			router.GET(tt.path, func(c *gin.Context) {
				_, labelled = pprof.Label(c.Request.Context(), "route")
				c.Status(http.StatusOK)
			})
			serve(router, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, labelled)
		})
	}
}

func TestPathSet(t *testing.T) {
	s := newPathSet("/health", "/swagger/*")
	assert.True(t, s.has("/health"))
	assert.False(t, s.has("/health/deep"))
	assert.True(t, s.has("/swagger/doc.json"))
	assert.False(t, s.has("/api/v1/swagger"))
}
