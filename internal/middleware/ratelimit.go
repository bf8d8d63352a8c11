package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/tutorias-uni/tutorias-api/internal/clientip"
	"github.com/tutorias-uni/tutorias-api/internal/config"
)

// bucketScript refills, then takes one token. It returns
// {allowed, tokens_left, retry_after_ms}.
var bucketScript = redis.NewScript(`
local cap = tonumber(ARGV[2])
local step = tonumber(ARGV[3])
local every = tonumber(ARGV[4])
local now = tonumber(ARGV[1])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local stamp = tonumber(redis.call('HGET', KEYS[1], 'stamp'))
if tokens == nil or stamp == nil then
	tokens, stamp = cap, now
end

local ticks = math.floor(math.max(0, now - stamp) / every)
if ticks > 0 then
	tokens = math.min(cap, tokens + ticks * step)
	stamp = stamp + ticks * every
end

local wait = 0
local ok = 0
if tokens >= 1 then
	ok = 1
	tokens = tokens - 1
else
	wait = math.max(0, every - (now - stamp))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'stamp', stamp)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[5]))
return {ok, tokens, wait}
`)

type bucketResult struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

func takeToken(c echo.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string) (bucketResult, error) {
	vals, err := bucketScript.Run(c.Request().Context(), rdb, []string{key},
		time.Now().UnixMilli(),
		cfg.Capacity,
		cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(),
		int64(cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return bucketResult{}, err
	}
	if len(vals) != 3 {
		return bucketResult{}, redis.Nil
	}
	return bucketResult{
		allowed:   vals[0] == 1,
		remaining: vals[1],
		retry:     time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket throttles the login-code endpoints per client with a token
// bucket kept in Redis. Redis trouble lets the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			res, err := takeToken(c, rdb, cfg, key)
			if err != nil {
				if cfg.Debug {
					c.Logger().Warnf("ratelimit: key=%s: %v", key, err)
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
				return next(c)
			}

			secs := int((res.retry + time.Second - 1) / time.Second)
			h.Set("Retry-After", strconv.Itoa(secs))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "demasiadas solicitudes, intente más tarde",
				"retry_after": secs,
			})
		}
	}
}

// rateKey is <prefix>:<strategy parts>. Strategies: ip, user, route, ip_user,
// ip_route (default for the auth group) and user_route; anything else uses
// all three.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := clientip.FromRequest(c.Request())
	if ip == "" {
		ip = "unknown"
	}
	parts := map[string]string{
		"ip":    "ip:" + ip,
		"user":  "user:" + userID(c),
		"route": "route:" + c.Request().Method + " " + c.Path(),
	}

	strategy := strings.ToLower(cfg.KeyStrategy)
	var pick []string
	switch strategy {
	case "ip", "user", "route":
		pick = []string{strategy}
	case "ip_user", "ip_route", "user_route":
		pick = strings.SplitN(strategy, "_", 2)
	default:
		pick = []string{"ip", "user", "route"}
	}

	key := cfg.Prefix
	for _, p := range pick {
		key += ":" + parts[p]
	}
	return key
}
