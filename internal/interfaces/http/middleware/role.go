package middleware

import (
	"crypto/subtle"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/municipal/backoffice/internal/interfaces/http/dto"
)

// InternalKeyHeader carries the shared secret of service-to-service calls
const InternalKeyHeader = "X-Internal-Key"

// RequireRole allows the request only when the JWT role is one of roles.
// It must run after the JWT middleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetJWTRole(c)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized, "Authentication required", getRequestID(c)))
			return
		}
		if !slices.Contains(roles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeForbidden, "Insufficient permissions", getRequestID(c)))
			return
		}
		c.Next()
	}
}

// RequireInternalKey guards service-to-service endpoints with a shared secret.
// An empty configured key rejects every request.
func RequireInternalKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(InternalKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeForbidden, "Invalid internal key", getRequestID(c)))
			return
		}
		c.Next()
	}
}
