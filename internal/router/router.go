package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
    "github.com/ulule/limiter/v3"

    "github.com/iliyamo/court-slot-booking/internal/handler"
    "github.com/iliyamo/court-slot-booking/internal/middleware"
)

// RegisterRoutes registers the probes.  ready may be nil.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
    e.GET("/healthz", handler.Health)
    if ready != nil {
        e.GET("/readyz", ready)
    }
}

// RegisterPublic registers the guest endpoints.  cache wraps the price
// quote only; availability must always reflect the ledger.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
    e.GET("/v1/courts/:id/availability", p.Availability)
    if cache != nil {
        e.GET("/v1/pricing/quote", p.Quote, cache)
    } else {
        e.GET("/v1/pricing/quote", p.Quote)
    }
}

// RegisterCustomer registers the hold and booking endpoints under /v1.
// They require a valid JWT and the CUSTOMER or ADMIN role.  Reserve and
// book are rate limited per user when lim is non-nil.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, jwtSecret string, lim *limiter.Limiter, rl logrus.FieldLogger) {
    g := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(middleware.RoleCustomer, middleware.RoleAdmin),
    )
    g.POST("/slots/reserve", h.Reserve, middleware.RateLimit(lim, "reserve", rl))
    g.DELETE("/slots/reserve/:id", h.ReleaseHold)
    g.GET("/my-holds", h.MyHolds)

    g.POST("/bookings", h.Book, middleware.RateLimit(lim, "book", rl))
    g.GET("/my-bookings", h.MyBookings)
    g.GET("/bookings/:id", h.GetBooking)
    g.POST("/bookings/:id/cancel", h.CancelBooking)
}

// RegisterStaff registers the ADMIN-only endpoints: check-in, payment
// reconciliation, booking search and catalog administration.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, jwtSecret string) {
    g := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(middleware.RoleAdmin),
    )
    g.POST("/bookings/:id/check-in", h.CheckIn)
    g.POST("/verify-booking/:reference", h.VerifyBooking)

    g.POST("/admin/bookings/:id/payment", h.RecordPayment)
    g.GET("/admin/bookings", h.ListBookings)
    g.POST("/admin/time-slots", h.CreateTimeSlot)
    g.POST("/admin/pricing-rules", h.CreatePricingRule)
}
