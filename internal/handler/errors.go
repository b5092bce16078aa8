package handler

import (
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/court-slot-booking/internal/booking"
    "github.com/iliyamo/court-slot-booking/internal/middleware"
    "github.com/iliyamo/court-slot-booking/internal/model"
    "github.com/iliyamo/court-slot-booking/internal/repository"
)

// statusOf maps an engine error onto an HTTP status and a stable error code.
func statusOf(err error) (int, string) {
    var verr *booking.ValidationError
    switch {
    case errors.As(err, &verr):
        return http.StatusBadRequest, "validation_failed"
    case errors.Is(err, booking.ErrNotFound):
        return http.StatusNotFound, "not_found"
    case errors.Is(err, booking.ErrNoDefinitionFound):
        return http.StatusUnprocessableEntity, "no_definition_found"
    case errors.Is(err, booking.ErrSlotUnavailable):
        return http.StatusConflict, "slot_unavailable"
    case errors.Is(err, booking.ErrSlotConflict),
        errors.Is(err, booking.ErrVersionConflict),
        errors.Is(err, booking.ErrLockTimeout):
        return http.StatusConflict, "slot_conflict"
    case errors.Is(err, booking.ErrHoldNotActive):
        return http.StatusConflict, "hold_not_active"
    case errors.Is(err, booking.ErrNotConfirmed):
        return http.StatusConflict, "not_confirmed"
    case errors.Is(err, booking.ErrInvalidTransition):
        return http.StatusConflict, "invalid_transition"
    case errors.Is(err, repository.ErrConflict):
        return http.StatusConflict, "conflict"
    case errors.Is(err, repository.ErrCourtVenueMismatch):
        return http.StatusBadRequest, "court_venue_mismatch"
    case errors.Is(err, booking.ErrForbidden):
        return http.StatusForbidden, "forbidden"
    case errors.Is(err, booking.ErrInvalidCheckInCode):
        return http.StatusUnauthorized, "invalid_check_in_code"
    }
    return http.StatusInternalServerError, "internal_error"
}

// responder writes error bodies in the {"error": code} shape used by every
// endpoint and logs server-side failures.
type responder struct {
    log logrus.FieldLogger
}

func (r responder) fail(c echo.Context, err error) error {
    status, code := statusOf(err)
    body := echo.Map{"error": code}
    var verr *booking.ValidationError
    switch {
    case errors.As(err, &verr):
        body["field"] = verr.Field
        body["message"] = verr.Reason
    case status == http.StatusInternalServerError:
        r.log.WithError(err).WithFields(logrus.Fields{
            "method": c.Request().Method,
            "route":  c.Path(),
        }).Error("request failed")
    default:
        body["message"] = err.Error()
    }
    return c.JSON(status, body)
}

func badRequest(c echo.Context, field, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "field": field, "message": msg})
}

// bindValid decodes the body into dst and runs the registered validator.
// When ok is false the 400 reply has been written.
func bindValid(c echo.Context, dst interface{}) (ok bool, err error) {
    if err := c.Bind(dst); err != nil {
        return false, badRequest(c, "body", "invalid request body")
    }
    if err := c.Validate(dst); err != nil {
        return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "message": err.Error()})
    }
    return true, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}

// queryID parses an optional positive numeric query parameter; absent
// yields zero.
func queryID(c echo.Context, name string) (uint64, bool) {
    raw := c.QueryParam(name)
    if raw == "" {
        return 0, true
    }
    id, err := strconv.ParseUint(raw, 10, 64)
    return id, err == nil && id > 0
}

// caller returns the authenticated user.  JWTAuth guarantees it on every
// protected route; the check guards against a misconfigured router.
func caller(c echo.Context) (uint64, bool) {
    return middleware.UserID(c)
}

func unauthorized(c echo.Context) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// window is the date and time range shared by reserve, book and quote.
type window struct {
    date  time.Time
    start model.TimeOfDay
    end   model.TimeOfDay
}

// parseWindow parses the civil date and "HH:MM" times; the reply is
// already written when ok is false.
func parseWindow(c echo.Context, date, start, end string) (w window, ok bool, err error) {
    if w.date, err = model.ParseDate(date); err != nil {
        return w, false, badRequest(c, "date", "must be YYYY-MM-DD")
    }
    if w.start, err = model.ParseTimeOfDay(start); err != nil {
        return w, false, badRequest(c, "start_time", "must be HH:MM")
    }
    if w.end, err = model.ParseTimeOfDay(end); err != nil {
        return w, false, badRequest(c, "end_time", "must be HH:MM")
    }
    return w, true, nil
}
