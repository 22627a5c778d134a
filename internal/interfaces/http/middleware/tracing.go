// Package middleware provides HTTP middleware for the back-office services.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength caps client supplied request ids
const MaxRequestIDLength = 128

// Span attributes set by the back-office middleware
const (
	AttrRequestID = attribute.Key("request_id")
	AttrUserID    = attribute.Key("user_id")
	AttrUserRole  = attribute.Key("user_role")
	AttrModule    = attribute.Key("backoffice.module")
)

// Tracing starts a server span per request through otelgin, named after the
// route pattern. When disabled it only calls the next handler.
func Tracing(serviceName string, enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(serviceName)
}

// annotateRequest tags the span started by otelgin with the request id and
// the module the route belongs to
func annotateRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if id := getRequestID(c); id != "" {
				span.SetAttributes(AttrRequestID.String(id))
			}
			if module := routeModule(c.FullPath()); module != "" {
				span.SetAttributes(AttrModule.String(module))
			}
		}
		c.Next()
	}
}

// TracingStack returns Tracing, the request annotator and SpanErrorMarker
func TracingStack(serviceName string, enabled bool) []gin.HandlerFunc {
	if !enabled {
		return []gin.HandlerFunc{Tracing(serviceName, false)}
	}
	return []gin.HandlerFunc{Tracing(serviceName, true), annotateRequest(), SpanErrorMarker()}
}

// tagSpanUser records the authenticated caller on the request span
func tagSpanUser(c *gin.Context, userID, role string) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(AttrUserID.String(userID), AttrUserRole.String(role))
}

// getRequestID prefers the id stored by RequestID and falls back to the header
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	id := c.GetHeader("X-Request-ID")
	if len(id) > MaxRequestIDLength {
		id = id[:MaxRequestIDLength]
	}
	return id
}

// SpanErrorMarker marks the span as failed for 4xx and 5xx answers. Server
// errors share one description so span names stay low cardinality.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		span := trace.SpanFromContext(c.Request.Context())
		if status < http.StatusBadRequest || !span.IsRecording() {
			return
		}
		description := http.StatusText(status)
		if status >= http.StatusInternalServerError {
			description = "Internal Server Error"
		}
		span.SetStatus(codes.Error, description)
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
}
