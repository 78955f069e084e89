package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/san-kum/fitpipe/server/cache"
)

// Idle buckets expire from the cache after this long.
const bucketIdleTTL = 10 * time.Minute

const maxTrackedClients = 10000

type RateLimiter struct {
	clients    *cache.MemoryCache[*ClientBucket]
	mutex      sync.Mutex
	logger     *zap.Logger
	defaultRPS int
	burst      int
}

type ClientBucket struct {
	tokens     float64
	lastUpdate time.Time
	mutex      sync.Mutex
}

func NewRateLimiter(defaultRPS, burst int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		clients:    cache.NewMemoryCache[*ClientBucket](maxTrackedClients, bucketIdleTTL, logger),
		defaultRPS: defaultRPS,
		burst:      burst,
		logger:     logger,
	}
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return rl.RateLimitWithConfig(rl.defaultRPS, rl.burst)
}

func (rl *RateLimiter) RateLimitWithConfig(rps int, burst int) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !rl.allowRequest(clientIP, rps, burst) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("client_ip", clientIP),
				zap.String("path", c.Request.URL.Path),
				zap.Int("rps", rps))

			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 1,
			})
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) allowRequest(clientIP string, rps, burst int) bool {
	return rl.bucketFor(clientIP, burst).take(rps, burst, time.Now())
}

func (rl *RateLimiter) bucketFor(clientIP string, burst int) *ClientBucket {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	bucket, err := rl.clients.Get(clientIP)
	if err == nil {
		return bucket
	}

	bucket = &ClientBucket{
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
	rl.clients.Set(clientIP, bucket)
	return bucket
}

func (cb *ClientBucket) take(rps, burst int, now time.Time) bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	elapsed := now.Sub(cb.lastUpdate)
	if elapsed > 0 {
		cb.tokens += elapsed.Seconds() * float64(rps)
		cb.lastUpdate = now
	}
	if cb.tokens > float64(burst) {
		cb.tokens = float64(burst)
	}

	if cb.tokens >= 1 {
		cb.tokens--
		return true
	}

	return false
}

func (rl *RateLimiter) GetGlobalStats() map[string]interface{} {
	return map[string]interface{}{
		"active_clients": rl.clients.Len(),
		"default_rps":    rl.defaultRPS,
		"burst_capacity": rl.burst,
	}
}

func (rl *RateLimiter) Shutdown() {
	rl.clients.Close()
}
