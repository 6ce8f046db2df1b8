package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/qahwa/cafe-api/internal/pkg/response"
)

// RateLimiter limits requests per key using redis, falling back to an
// in-process token bucket when redis is absent or failing.
type RateLimiter struct {
	limiter  *redis_rate.Limiter
	fallback *localLimiter
	limit    redis_rate.Limit
	prefix   string
}

// NewRateLimiter creates a limiter; rdb may be nil in development
func NewRateLimiter(rdb *redis.Client, prefix string, limit redis_rate.Limit) *RateLimiter {
	rl := &RateLimiter{
		fallback: newLocalLimiter(),
		limit:    limit,
		prefix:   prefix,
	}
	if rdb != nil {
		rl.limiter = redis_rate.NewLimiter(rdb)
	}
	return rl
}

// PerMinute builds a limit of n requests per minute with the given burst
func PerMinute(n, burst int) redis_rate.Limit {
	return redis_rate.Limit{Rate: n, Burst: burst, Period: time.Minute}
}

// Handler limits by authenticated user, or by client IP for anonymous requests
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.key(r)
		res, err := rl.allow(r.Context(), key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Rate limiter error, failing open")
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, res, rl.limit)

		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			response.TooManyRequests(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) key(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != uuid.Nil {
		return "ratelimit:" + rl.prefix + ":user:" + userID.String()
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ratelimit:" + rl.prefix + ":ip:" + ip
}

func (rl *RateLimiter) allow(ctx context.Context, key string) (*redis_rate.Result, error) {
	if rl.limiter == nil {
		return rl.fallback.allow(key, rl.limit)
	}
	res, err := rl.limiter.Allow(ctx, key, rl.limit)
	if err != nil {
		log.Warn().Err(err).Msg("Redis rate limiter unavailable, using local limiter")
		return rl.fallback.allow(key, rl.limit)
	}
	return res, nil
}

func setRateLimitHeaders(w http.ResponseWriter, res *redis_rate.Result, limit redis_rate.Limit) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.ResetAfter).Unix(), 10))
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	lastGC   time.Time
}

const localEntryTTL = 10 * time.Minute

func newLocalLimiter() *localLimiter {
	return &localLimiter{limiters: make(map[string]*limiterEntry), lastGC: time.Now()}
}

func (l *localLimiter) allow(key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	if limit.Rate <= 0 || limit.Period <= 0 {
		return nil, fmt.Errorf("invalid rate limit %+v", limit)
	}
	ratePerSec := float64(limit.Rate) / limit.Period.Seconds()
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop idle buckets at most once per TTL
	if now.Sub(l.lastGC) > localEntryTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastAccess) > localEntryTTL {
				delete(l.limiters, k)
			}
		}
		l.lastGC = now
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(ratePerSec), limit.Burst)}
		l.limiters[key] = entry
	}
	entry.lastAccess = now

	allowed := entry.limiter.AllowN(now, 1)
	remaining := int(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}

	res := &redis_rate.Result{
		Limit:      limit,
		Remaining:  remaining,
		RetryAfter: -1,
		ResetAfter: time.Duration(float64(time.Second) / ratePerSec),
	}
	if allowed {
		res.Allowed = 1
	} else {
		res.RetryAfter = res.ResetAfter
	}
	return res, nil
}
