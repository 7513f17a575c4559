package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"keyhub/internal/pkg/errors"
)

// KeyExtractor picks the bucket a request is charged to.
type KeyExtractor func(*http.Request) string

type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	perMin   int
	keyFn    KeyExtractor
	nowFn    func() time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter allows perMinute requests per key with the given burst. A
// non-positive perMinute disables limiting.
func NewRateLimiter(perMinute, burst int, keyFn KeyExtractor) *RateLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	if keyFn == nil {
		keyFn = ClientIP
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		perMin:   perMinute,
		keyFn:    keyFn,
		nowFn:    time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	now := rl.nowFn()

	rl.mu.Lock()
	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastAccess = now
	rl.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Evict drops limiters idle for longer than idle.
func (rl *RateLimiter) Evict(idle time.Duration) int {
	cutoff := rl.nowFn().Add(-idle)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, e := range rl.limiters {
		if e.lastAccess.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// StartCleanup evicts idle limiters every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rl.Evict(interval); n > 0 {
					log.Debug().Int("evicted", n).Msg("rate limiter cleanup")
				}
			}
		}
	}()
}

func (rl *RateLimiter) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rl.perMin <= 0 {
			next(w, r)
			return
		}

		key := rl.keyFn(r)
		if !rl.Allow(key) {
			retryAfter := int(time.Minute.Seconds()) / rl.perMin
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMin))

			log.Warn().Str("key", key).Str("path", r.URL.Path).Msg("rate limit exceeded")
			errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Too many requests. Please try again later.", nil)
			return
		}

		next(w, r)
	}
}
