package logger

import (
	"errors"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ginLoggerKey = "logger"

type accessOptions struct {
	skip map[string]bool
	slow time.Duration
}

// AccessOption customises AccessLog
type AccessOption func(*accessOptions)

// SkipPaths suppresses the access entry of successful requests to paths,
// typically health probes. Failures are still logged.
func SkipPaths(paths ...string) AccessOption {
	return func(o *accessOptions) {
		for _, p := range paths {
			o.skip[p] = true
		}
	}
}

// SlowRequests raises successful requests slower than d to warn level
func SlowRequests(d time.Duration) AccessOption {
	return func(o *accessOptions) { o.slow = d }
}

// AccessLog stores a request-scoped logger in both the gin context and the
// request context, then writes one entry per request once it completes.
func AccessLog(base *zap.Logger, opts ...AccessOption) gin.HandlerFunc {
	o := accessOptions{skip: map[string]bool{}}
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		reqLog := base.With(zap.String("method", c.Request.Method), zap.String("path", path))
		ctx := c.Request.Context()
		if id := c.GetString("request_id"); id != "" {
			ctx, reqLog = WithRequestID(ctx, reqLog, id)
		} else {
			ctx = WithContext(ctx, reqLog)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(ginLoggerKey, reqLog)

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		if status < http.StatusBadRequest && o.skip[path] {
			return
		}

		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if route := c.FullPath(); route != "" && route != path {
			fields = append(fields, zap.String("route", route))
		}
		if id := GetUserID(c.Request.Context()); id != "" {
			fields = append(fields, zap.String("user_id", id))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			reqLog.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			reqLog.Warn("HTTP request", fields...)
		case o.slow > 0 && latency > o.slow:
			reqLog.Warn("Slow HTTP request", fields...)
		default:
			reqLog.Info("HTTP request", fields...)
		}
	}
}

// Recovery turns a panic into a 500 with the standard error envelope. When
// the client has already gone away the connection is only logged.
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			requestID := c.GetString("request_id")
			log := base.With(
				zap.String("request_id", requestID),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", rec),
			)

			if err, ok := rec.(error); ok && brokenConnection(err) {
				log.Warn("Client connection lost")
				c.Abort()
				return
			}

			log.Error("Panic recovered", zap.Stack("stacktrace"))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":       "ERR_INTERNAL",
					"message":    "An internal error occurred",
					"request_id": requestID,
				},
			})
		}()
		c.Next()
	}
}

func brokenConnection(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	var sysErr *os.SyscallError
	if errors.As(opErr, &sysErr) {
		return errors.Is(sysErr.Err, syscall.EPIPE) || errors.Is(sysErr.Err, syscall.ECONNRESET)
	}
	return false
}

// RequestLogger returns the logger AccessLog stored for this request, or a
// no-op logger outside of it.
func RequestLogger(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(ginLoggerKey); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}
