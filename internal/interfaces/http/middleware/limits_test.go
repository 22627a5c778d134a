package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/municipal/backoffice/internal/interfaces/http/dto"
)

func TestBodyLimit(t *testing.T) {
	router := gin.New()
	router.Use(BodyLimit(100,
		PrefixLimit{Prefix: "/api/v1/documents", MaxBytes: 1000},
		PrefixLimit{Prefix: "/api/v1/documents/bulk", MaxBytes: 10},
	))
	handler := func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too large")
			return
		}
		c.String(http.StatusOK, "ok")
	}
	router.POST("/upload", handler)
	router.POST("/api/v1/documents", handler)
	router.POST("/api/v1/documents/bulk", handler)

	post := func(path string, size int, chunked bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(strings.Repeat("x", size)))
		if chunked {
			req.ContentLength = -1
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, post("/upload", 5, false).Code)

	w := post("/upload", 200, false)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), dto.ErrCodeRequestTooLarge)

	assert.Equal(t, http.StatusRequestEntityTooLarge, post("/upload", 200, true).Code, "chunked bodies are capped when read")
	assert.Equal(t, http.StatusOK, post("/api/v1/documents", 500, false).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, post("/api/v1/documents/bulk", 50, false).Code, "longest prefix wins")
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestLimiter(t *testing.T, requests int, window time.Duration) (*RateLimiter, *fakeClock) {
	t.Helper()
	rl := NewRateLimiter(requests, window)
	t.Cleanup(rl.Stop)
	clock := &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_Take(t *testing.T) {
	rl, clock := newTestLimiter(t, 2, time.Minute)

	ok, remaining, _ := rl.Take("10.0.0.1")
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	ok, remaining, _ = rl.Take("10.0.0.1")
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)

	ok, _, retry := rl.Take("10.0.0.1")
	assert.False(t, ok)
	assert.InDelta(t, float64(30*time.Second), float64(retry), float64(time.Millisecond))

	ok, _, _ = rl.Take("10.0.0.2")
	assert.True(t, ok, "clients have separate buckets")

	clock.advance(31 * time.Second)
	ok, _, _ = rl.Take("10.0.0.1")
	assert.True(t, ok, "one token refills every window/requests")
}

func TestRateLimiter_Evict(t *testing.T) {
	rl, clock := newTestLimiter(t, 1, time.Second)

	rl.Take("a")
	clock.advance(time.Second)
	rl.Take("b")
	clock.advance(1500 * time.Millisecond)
	rl.evict()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "a")
	assert.Contains(t, rl.clients, "b")
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	t.Cleanup(limiter.Stop)

	router := gin.New()
	router.Use(RateLimit(limiter))
	router.GET("/books", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/books", nil))
		return w
	}

	w := get()
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = get()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), dto.ErrCodeRateLimited)
}
