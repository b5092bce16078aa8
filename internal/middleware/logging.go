package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
)

// RequestLogger logs one logrus entry per request.  Server errors are
// logged at error level, client errors at warn.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }
            req := c.Request()
            status := c.Response().Status
            entry := log.WithFields(logrus.Fields{
                "method":     req.Method,
                "route":      c.Path(),
                "uri":        req.RequestURI,
                "status":     status,
                "latency_ms": time.Since(start).Milliseconds(),
                "remote_ip":  c.RealIP(),
                "request_id": c.Response().Header().Get(echo.HeaderXRequestID),
            })
            if id, ok := UserID(c); ok {
                entry = entry.WithField("user_id", id)
            }
            if err != nil {
                entry = entry.WithError(err)
            }
            switch {
            case status >= 500:
                entry.Error("request")
            case status >= 400:
                entry.Warn("request")
            default:
                entry.Info("request")
            }
            return nil
        }
    }
}
