package middleware

import (
    "fmt"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"
    "github.com/ulule/limiter/v3"
    redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

    "github.com/iliyamo/court-slot-booking/internal/config"
)

// NewRedisLimiter builds a limiter backed by Redis so every instance shares
// the same counters.  It returns nil when rate limiting is disabled or no
// Redis client is available.
func NewRedisLimiter(cfg config.RateLimitConfig, rdb *redis.Client) (*limiter.Limiter, error) {
    if !cfg.Enabled || rdb == nil {
        return nil, nil
    }
    rate, err := limiter.NewRateFromFormatted(cfg.Rate)
    if err != nil {
        return nil, fmt.Errorf("rate limit %q: %w", cfg.Rate, err)
    }
    store, err := redisstore.NewStoreWithOptions(rdb, limiter.StoreOptions{
        Prefix:          cfg.Prefix,
        MaxRetry:        cfg.MaxRetry,
        CleanUpInterval: rate.Period,
    })
    if err != nil {
        return nil, fmt.Errorf("rate limit store: %w", err)
    }
    return limiter.New(store, rate), nil
}

// RateLimit limits requests per caller and route.  A nil limiter disables
// it.  When the store is unreachable the request is let through.
func RateLimit(lim *limiter.Limiter, route string, log logrus.FieldLogger) echo.MiddlewareFunc {
    if lim == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := route + ":" + callerKey(c)
            lc, err := lim.Get(c.Request().Context(), key)
            if err != nil {
                log.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
                return next(c)
            }
            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
            h.Set("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))
            if lc.Reached {
                return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate_limited"})
            }
            return next(c)
        }
    }
}
