package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/municipal/backoffice/internal/interfaces/http/dto"
)

// PrefixLimit raises or lowers the body limit below a path prefix
type PrefixLimit struct {
	Prefix   string
	MaxBytes int64
}

// BodyLimit caps request bodies at maxBytes, or at the limit of the longest
// matching prefix. Declared oversized bodies are refused before the handler
// runs; chunked bodies fail with *http.MaxBytesError when read.
func BodyLimit(maxBytes int64, prefixes ...PrefixLimit) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, matched := maxBytes, 0
		for _, p := range prefixes {
			if len(p.Prefix) > matched && strings.HasPrefix(c.Request.URL.Path, p.Prefix) {
				limit, matched = p.MaxBytes, len(p.Prefix)
			}
		}
		if limit <= 0 || c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size", getRequestID(c)))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// RateLimiter is a token bucket per client: burst requests at once, refilled
// evenly over the window. Idle clients are forgotten.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*visitor
	every   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter allows requests per window for each client and starts the
// eviction loop; call Stop to end it.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests < 1 {
		requests = 1
	}
	rl := &RateLimiter{
		clients: make(map[string]*visitor),
		every:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		idle:    2 * window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *RateLimiter) evict() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.clients {
		if now.Sub(v.seen) > rl.idle {
			delete(rl.clients, key)
		}
	}
}

// Take spends one token of key. When none is left it reports how long until
// the next one.
func (rl *RateLimiter) Take(key string) (ok bool, remaining int, retryAfter time.Duration) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, found := rl.clients[key]
	if !found {
		v = &visitor{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.clients[key] = v
	}
	v.seen = now

	r := v.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay
	}
	return true, int(math.Max(0, math.Floor(v.limiter.TokensAt(now)))), 0
}

// RateLimit limits requests per client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string { return c.ClientIP() })
}

// RateLimitByKey limits requests per key, e.g. the authenticated user
func RateLimitByKey(limiter *RateLimiter, key func(*gin.Context) string) gin.HandlerFunc {
	limit := strconv.Itoa(limiter.burst)
	return func(c *gin.Context) {
		ok, remaining, retry := limiter.Take(key(c))
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited, "Too many requests. Please try again later.", getRequestID(c)))
			return
		}
		c.Next()
	}
}
