package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/noah-isme/ambassador-api/internal/service"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

const (
	// limiterCleanupThreshold is the map size that triggers pruning of idle clients.
	limiterCleanupThreshold = 500
	limiterMaxIdle          = 10 * time.Minute
	limiterPruneEvery       = limiterMaxIdle / 2
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	pruned  time.Time
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewIPRateLimiter builds a limiter allowing rps requests per second with the given burst.
// A non-positive rps disables limiting.
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &IPRateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   limit,
		burst:   burst,
		now:     time.Now,
	}
}

// Limiter returns the bucket for ip. Once the map grows past the threshold,
// idle entries are pruned at most once per limiterPruneEvery.
func (l *IPRateLimiter) Limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.clients) > limiterCleanupThreshold && now.Sub(l.pruned) >= limiterPruneEvery {
		l.pruned = now
		cutoff := now.Add(-limiterMaxIdle)
		for key, entry := range l.clients {
			if entry.lastSeen.Before(cutoff) {
				delete(l.clients, key)
			}
		}
	}

	entry, ok := l.clients[ip]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// RateLimit throttles requests per client IP and answers 429 with Retry-After.
func RateLimit(limiter *IPRateLimiter, metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.limit == rate.Inf {
			c.Next()
			return
		}
		bucket := limiter.Limiter(c.ClientIP())
		reservation := bucket.Reserve()
		if !reservation.OK() {
			reject(c, metrics, time.Second)
			return
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			reject(c, metrics, delay)
			return
		}
		c.Next()
	}
}

func reject(c *gin.Context, metrics *service.MetricsService, retryAfter time.Duration) {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	metrics.RecordRateLimited(path)
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	response.Error(c, appErrors.ErrRateLimited)
	c.Abort()
}
