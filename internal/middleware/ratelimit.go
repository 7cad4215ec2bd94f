package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/scan-rewards/internal/config"
	"github.com/iliyamo/scan-rewards/internal/metrics"
)

// bucketScript refills by whole intervals, then takes one token.
// KEYS[1] bucket; ARGV now_ms, capacity, refill, interval_ms, ttl_s.
// Returns {allowed, remaining, retry_ms}.
var bucketScript = redis.NewScript(`
local now, cap, refill, every, ttl =
	tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local h = redis.call('HMGET', KEYS[1], 'tokens', 'last_refill_ms')
local left, since = tonumber(h[1]), tonumber(h[2])
if left == nil or since == nil then
	left, since = cap, now
end
if every > 0 and now > since then
	local n = math.floor((now - since) / every)
	if n > 0 then
		left = math.min(cap, left + n * refill)
		since = since + n * every
	end
end
local ok, wait = 0, 0
if left > 0 then
	ok, left = 1, left - 1
else
	wait = math.max(0, every - (now - since))
end
redis.call('HSET', KEYS[1], 'tokens', left, 'last_refill_ms', since)
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, left, wait}
`)

type bucket struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
}

type bucketResult struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

func (b bucket) take(ctx context.Context, key string, now time.Time) (bucketResult, error) {
	vals, err := bucketScript.Run(ctx, b.rdb, []string{key},
		now.UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL/time.Second),
	).Result()
	if err != nil {
		return bucketResult{}, err
	}
	allowed, remaining, retryMs, ok := parseBucketResult(vals)
	if !ok {
		return bucketResult{}, fmt.Errorf("unexpected bucket result %v", vals)
	}
	return bucketResult{allowed: allowed, remaining: remaining, retry: time.Duration(retryMs) * time.Millisecond}, nil
}

// NewTokenBucket throttles each caller with a Redis token bucket.  With the
// limiter disabled or rdb nil every request passes; Redis failures also let
// the request through.  m and log may be nil.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, m *metrics.Metrics, log logrus.FieldLogger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	b := bucket{cfg: cfg, rdb: rdb}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			res, err := b.take(c.Request().Context(), key, time.Now())
			if err != nil {
				m.RateLimit("bypassed")
				if log != nil {
					log.WithError(err).WithField("key", key).Warn("rate limit check failed")
				}
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if res.allowed {
				m.RateLimit("allowed")
				return next(c)
			}

			m.RateLimit("limited")
			secs := retryAfterSeconds(res.retry)
			h.Set("Retry-After", strconv.Itoa(secs))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"message":     "too many scans, try again later",
				"retry_after": secs,
			})
		}
	}
}

// retryAfterSeconds rounds d up to whole seconds.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func parseBucketResult(vals any) (allowed bool, remaining, retryMs int64, ok bool) {
	arr, isArr := vals.([]any)
	if !isArr || len(arr) != 3 {
		return false, 0, 0, false
	}
	return asInt64(arr[0]) == 1, asInt64(arr[1]), asInt64(arr[2]), true
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

// buildRateKey joins the prefix with the parts named by KeyStrategy, an
// underscore list of ip, user and route.  Unknown strategies use all three.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := strings.Split(strings.ToLower(cfg.KeyStrategy), "_")
	for _, p := range parts {
		if p != "ip" && p != "user" && p != "route" {
			parts = []string{"ip", "user", "route"}
			break
		}
	}

	key := []string{cfg.Prefix}
	for _, p := range parts {
		switch p {
		case "ip":
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key = append(key, "ip", ip)
		case "user":
			key = append(key, "user", userKey(c))
		case "route":
			key = append(key, "route", c.Request().Method+" "+c.Path())
		}
	}
	return strings.Join(key, ":")
}
