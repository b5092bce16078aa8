package middleware

// identity.go holds the helpers that read the authenticated caller from the
// Echo context.  JWTAuth stores the user id as uint64 and the role upper-cased.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// Roles accepted by the booking API.
const (
    RoleCustomer = "CUSTOMER"
    RoleAdmin    = "ADMIN"
)

// subject converts a "sub" claim to a user id.  Identity tokens carry it
// either as a JSON number or as a decimal string.
func subject(v any) (uint64, bool) {
    switch t := v.(type) {
    case float64:
        if t <= 0 || t != float64(uint64(t)) {
            return 0, false
        }
        return uint64(t), true
    case string:
        n, err := strconv.ParseUint(t, 10, 64)
        return n, err == nil && n > 0
    }
    return 0, false
}

// UserID returns the authenticated user id, or false for guests.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(ctxUserID).(uint64)
    return id, ok && id != 0
}

// Role returns the authenticated role or "".
func Role(c echo.Context) string {
    r, _ := c.Get(ctxRole).(string)
    return r
}

// IsAdmin reports whether the caller holds the ADMIN role.
func IsAdmin(c echo.Context) bool { return Role(c) == RoleAdmin }

// callerKey identifies the caller for rate limiting: the user id when
// authenticated, the client IP otherwise.
func callerKey(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return "user:" + strconv.FormatUint(id, 10)
    }
    return "ip:" + c.RealIP()
}
