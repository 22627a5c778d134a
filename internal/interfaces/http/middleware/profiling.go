package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
)

// Profiling labels the request goroutine with method, route and module so
// pyroscope profiles can be sliced per endpoint. Paths matching skip (exact,
// or prefix when ending in "*") are left unlabelled; without skip the probe
// and swagger paths are.
func Profiling(skip ...string) gin.HandlerFunc {
	if len(skip) == 0 {
		skip = probePaths
	}
	skipped := newPathSet(skip...)

	return func(c *gin.Context) {
		if skipped.has(c.Request.URL.Path) {
			c.Next()
			return
		}
		route := routeOf(c)
		module := routeModule(route)
		if module == "" {
			module = "other"
		}
		pyroscope.TagWrapper(c.Request.Context(),
			pyroscope.Labels("method", c.Request.Method, "route", route, "module", module),
			func(ctx context.Context) {
				c.Request = c.Request.WithContext(ctx)
				c.Next()
			})
	}
}
