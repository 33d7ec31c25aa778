package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether a client identified by key may proceed. The
// implementation is injected so deployments can share a window across
// replicas or fall back to process-local state.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a fixed-window counter shared across replicas.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	max    int64
}

// NewRedisLimiter allows max requests per key per window.
func NewRedisLimiter(client *redis.Client, window time.Duration, max int) *RedisLimiter {
	return &RedisLimiter{client: client, window: window, max: int64(max)}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= l.max, nil
}

// MemoryLimiter is a process-local token bucket per key, used when no
// redis address is configured.
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*memoryBucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

type memoryBucket struct {
	lim *rate.Limiter
	ts  time.Time
}

const (
	bucketTTL  = 30 * time.Minute
	sweepEvery = time.Minute
)

// NewMemoryLimiter allows max requests per key per window.
func NewMemoryLimiter(window time.Duration, max int) *MemoryLimiter {
	return &MemoryLimiter{
		buckets:   make(map[string]*memoryBucket),
		limit:     rate.Limit(float64(max) / window.Seconds()),
		burst:     max,
		lastSweep: time.Now(),
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	l.mu.Lock()
	// Stale buckets are swept inline rather than by a background
	// goroutine, so the limiter needs no stop path.
	if now.Sub(l.lastSweep) >= sweepEvery {
		for k, b := range l.buckets {
			if now.Sub(b.ts) > bucketTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &memoryBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.ts = now
	l.mu.Unlock()
	return b.lim.Allow(), nil
}

// rateLimit gates requests by client IP. A limiter failure fails open:
// losing redis should not take authentication down with it.
func (a *API) rateLimit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		ok, err := a.limiter.Allow(r.Context(), ip)
		if err != nil {
			a.logger.Warn("rate limiter unavailable", slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			writeError(w, r, http.StatusTooManyRequests, "too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
