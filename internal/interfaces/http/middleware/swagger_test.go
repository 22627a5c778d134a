package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
)

func swaggerRouter(cfg config.SwaggerConfig, jwt gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.GET("/swagger/*any", SwaggerProtection(cfg, jwt), func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func swaggerRequest(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestSwaggerProtection_Disabled(t *testing.T) {
	router := swaggerRouter(config.SwaggerConfig{Enabled: false}, nil)
	w := serve(router, swaggerRequest("127.0.0.1:1234"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSwaggerProtection_IPAllowList(t *testing.T) {
	router := swaggerRouter(config.SwaggerConfig{
		Enabled:    true,
		AllowedIPs: []string{"10.0.0.0/8", "192.168.1.5", "not-an-ip"},
	}, nil)

	assert.Equal(t, http.StatusOK, serve(router, swaggerRequest("10.1.2.3:1000")).Code)
	assert.Equal(t, http.StatusOK, serve(router, swaggerRequest("192.168.1.5:1000")).Code)
	assert.Equal(t, http.StatusForbidden, serve(router, swaggerRequest("172.16.0.1:1000")).Code)
}

func TestSwaggerProtection_RequireAuth(t *testing.T) {
	router := swaggerRouter(config.SwaggerConfig{Enabled: true, RequireAuth: true}, JWTAuthMiddleware(newTestJWTService()))
	assert.Equal(t, http.StatusUnauthorized, serve(router, swaggerRequest("127.0.0.1:1")).Code)

	token, _ := issueToken(t, newTestJWTService(), "employee")
	req := swaggerRequest("127.0.0.1:1")
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, serve(router, req).Code)
}

func TestSwaggerProtection_OnlyInvalidEntriesDenies(t *testing.T) {
	router := swaggerRouter(config.SwaggerConfig{Enabled: true, AllowedIPs: []string{"localhost"}}, nil)
	assert.Equal(t, http.StatusForbidden, serve(router, swaggerRequest("127.0.0.1:1")).Code)
}

func TestAllowList(t *testing.T) {
	list := parseAllowList([]string{" 10.0.0.0/8 ", "192.168.1.5", "2001:db8::/32", "10.1.2.3/8", "bogus"})
	assert.Len(t, list, 4)

	assert.True(t, list.allows("10.9.9.9"))
	assert.True(t, list.allows("192.168.1.5"))
	assert.True(t, list.allows("::ffff:192.168.1.5"))
	assert.True(t, list.allows("2001:db8::1"))
	assert.False(t, list.allows("192.168.1.6"))
	assert.False(t, list.allows(""))

	assert.True(t, allowList(nil).allows("8.8.8.8"))
}
