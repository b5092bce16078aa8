package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// Health is the liveness probe used by load balancers.  It returns a plain
// text "ok" with 200 whenever the process is serving.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// Pinger is satisfied by *sql.DB and by the Redis client adapter.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// Ready returns the readiness probe.  It answers 503 naming a dependency
// that did not respond within two seconds.
func Ready(deps map[string]Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        for name, p := range deps {
            if p == nil {
                continue
            }
            if err := p.PingContext(ctx); err != nil {
                return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "dependency": name})
            }
        }
        return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
    }
}
