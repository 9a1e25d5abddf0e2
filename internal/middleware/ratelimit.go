package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter: разрешён ли ещё один запрос с ключа (IP).
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// IPRateLimiter: token bucket на каждый IP в памяти процесса.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipEntry
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
	nowF     func() time.Time
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*ipEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		nowF:     time.Now,
	}
}

func (l *IPRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowF()
	e, ok := l.limiters[key]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1), nil
}

// Cleanup удаляет IP, которые давно не приходили.
func (l *IPRateLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	cutoff := l.nowF().Add(-l.idleTTL)
	for k, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, k)
			n++
		}
	}
	return n
}

// RedisRateLimiter: распределённый token bucket (Lua-скрипт).
type RedisRateLimiter struct {
	Client   *redis.Client
	Capacity float64
	FillRate float64
	TTL      time.Duration
}

func NewRedisRateLimiter(client *redis.Client, capacity, fillRate float64) *RedisRateLimiter {
	ttl := time.Duration(math.Ceil(capacity/fillRate)) * time.Second
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return &RedisRateLimiter{Client: client, Capacity: capacity, FillRate: fillRate, TTL: ttl}
}

var tokenBucketScript = redis.NewScript(`
local tokensKey = KEYS[1]
local lastKey   = KEYS[2]
local capacity  = tonumber(ARGV[1])
local fillRate  = tonumber(ARGV[2]) -- tokens per second
local now       = tonumber(ARGV[3]) -- milliseconds
local ttl       = tonumber(ARGV[4]) -- seconds

local tokens = tonumber(redis.call("GET", tokensKey))
local last   = tonumber(redis.call("GET", lastKey))

if not tokens or not last then
  tokens = capacity
  last = now
else
  local elapsed = math.max(0, now - last) / 1000
  tokens = math.min(capacity, tokens + elapsed * fillRate)
  last = now
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("SET", tokensKey, tokens, "EX", ttl)
redis.call("SET", lastKey, last, "EX", ttl)

return allowed
`)

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	keys := []string{
		fmt.Sprintf("rate_limit:%s:tokens", key),
		fmt.Sprintf("rate_limit:%s:last", key),
	}
	res, err := tokenBucketScript.Run(ctx, r.Client, keys,
		r.Capacity, r.FillRate, time.Now().UnixMilli(), int64(r.TTL/time.Second),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return res == 1, nil
}

// RateLimit отдаёт 429, когда IP исчерпал бакет. Ошибка лимитера не блокирует запрос.
func RateLimit(l Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Error("[ratelimit] limiter error", "err", err)
			c.Next()
			return
		}
		if !ok {
			c.Header("Retry-After", strconv.Itoa(1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited", "message": "too many requests, try later"})
			return
		}
		c.Next()
	}
}
