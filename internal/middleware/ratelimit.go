package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"push-device-service/internal/apierror"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

// ClientIPKey buckets by client address. The address only honours forwarding
// headers from proxies the engine trusts.
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// RouteClientKey gives every route its own budget per client address, so
// registration attempts do not use up the removal budget.
func RouteClientKey(c *gin.Context) string {
	return c.FullPath() + "|" + c.ClientIP()
}

// RateLimiter is a fixed-window counter keyed by an arbitrary string.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	clock   func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

type window struct {
	hits    int
	expires time.Time
}

func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return NewRateLimiterWithNow(limit, period, time.Now)
}

func NewRateLimiterWithNow(limit int, period time.Duration, now func() time.Time) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		clock:   now,
		done:    make(chan struct{}),
	}
	if period > 0 {
		go rl.evictLoop()
	}
	return rl
}

func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(rl.period)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *RateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.clock()
	for key, w := range rl.windows {
		if !now.Before(w.expires) {
			delete(rl.windows, key)
		}
	}
}

// Close stops background eviction.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) Allow(key string) bool {
	ok, _ := rl.take(key)
	return ok
}

// take counts one hit against key and reports whether it fits the window,
// together with the time the window resets.
func (rl *RateLimiter) take(key string) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.expires) {
		w = &window{expires: now.Add(rl.period)}
		rl.windows[key] = w
	}
	if w.hits >= rl.limit {
		return false, w.expires
	}
	w.hits++
	return true, w.expires
}

// RateLimitMiddleware rejects requests over the limit with 429 and a
// Retry-After header. A nil key counts by client address.
func RateLimitMiddleware(rl *RateLimiter, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ClientIPKey
	}
	return func(c *gin.Context) {
		ok, reset := rl.take(key(c))
		if !ok {
			wait := math.Ceil(reset.Sub(rl.clock()).Seconds())
			c.Header("Retry-After", strconv.Itoa(int(math.Max(wait, 1))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.MsgRateLimited.Response())
			return
		}
		c.Next()
	}
}
