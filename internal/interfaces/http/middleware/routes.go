package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests that hit no route, keeping label
// cardinality bounded
const unmatchedRoute = "unknown"

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

// routeModule returns the first segment after /api/<version>, e.g. "fleet"
// for /api/v1/fleet/vehicles/:id
func routeModule(route string) string {
	rest, ok := strings.CutPrefix(route, "/api/")
	if !ok {
		return ""
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || strings.HasPrefix(parts[1], ":") {
		return ""
	}
	return parts[1]
}

// pathSet matches request paths exactly, or by prefix for entries ending
// in "*".
type pathSet struct {
	exact    map[string]bool
	prefixes []string
}

func newPathSet(patterns ...string) pathSet {
	s := pathSet{exact: make(map[string]bool)}
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			s.prefixes = append(s.prefixes, prefix)
			continue
		}
		s.exact[p] = true
	}
	return s
}

func (s pathSet) has(path string) bool {
	if s.exact[path] {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// probePaths are polled by orchestrators and not worth profiling or metering
var probePaths = []string{"/health", "/healthz", "/ready", "/metrics", "/swagger/*"}

func passthrough(c *gin.Context) {
	c.Next()
}
