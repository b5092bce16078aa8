package handler

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/court-slot-booking/internal/booking"
    "github.com/iliyamo/court-slot-booking/internal/middleware"
    "github.com/iliyamo/court-slot-booking/internal/model"
)

// Reservations is the part of the engine customers drive.
type Reservations interface {
    ReserveSlot(ctx context.Context, req booking.ReserveRequest) (model.Hold, error)
    ReleaseHold(ctx context.Context, holdID string, userID uint64) error
    ListActiveHolds(ctx context.Context, userID uint64) ([]model.Hold, error)
    BookSlotsAtomic(ctx context.Context, req booking.BookRequest) (model.Booking, error)
    GetBooking(ctx context.Context, bookingID, actorID uint64, isAdmin bool) (model.Booking, error)
    ListUserBookings(ctx context.Context, userID uint64, status model.BookingStatus) ([]model.Booking, error)
    Cancel(ctx context.Context, req booking.CancelRequest) (model.Booking, error)
}

// CustomerHandler serves holds and bookings on behalf of the authenticated
// user.  JWTAuth and RequireRole run before every method.
type CustomerHandler struct {
    responder
    svc Reservations
}

// NewCustomerHandler panics when svc is nil.
func NewCustomerHandler(svc Reservations, log logrus.FieldLogger) *CustomerHandler {
    if svc == nil {
        panic("nil service passed to NewCustomerHandler")
    }
    return &CustomerHandler{responder: responder{log: log}, svc: svc}
}

type reserveBody struct {
    CourtID    uint64 `json:"court_id" validate:"required"`
    Date       string `json:"date" validate:"required"`
    StartTime  string `json:"start_time" validate:"required"`
    EndTime    string `json:"end_time" validate:"required"`
    TTLSeconds int    `json:"ttl_seconds" validate:"omitempty,min=1"`
}

// Reserve handles POST /v1/slots/reserve.  On success every slot covering
// the window is held for the caller and 201 is returned with the hold.
func (h *CustomerHandler) Reserve(c echo.Context) error {
    userID, ok := caller(c)
    if !ok {
        return unauthorized(c)
    }
    var body reserveBody
    if ok, err := bindValid(c, &body); !ok {
        return err
    }
    w, ok, err := parseWindow(c, body.Date, body.StartTime, body.EndTime)
    if !ok {
        return err
    }
    hold, err := h.svc.ReserveSlot(c.Request().Context(), booking.ReserveRequest{
        CourtID: body.CourtID,
        Date:    w.date,
        Start:   w.start,
        End:     w.end,
        UserID:  userID,
        TTL:     time.Duration(body.TTLSeconds) * time.Second,
    })
    if err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusCreated, holdResponse{Hold: hold, ReservationID: hold.ID})
}

// holdResponse adds the reservation_id clients pass back on release.
type holdResponse struct {
    model.Hold
    ReservationID string `json:"reservation_id"`
}

// ReleaseHold handles DELETE /v1/slots/reserve/:id.  Releasing a hold that
// is no longer active answers 409 hold_not_active.
func (h *CustomerHandler) ReleaseHold(c echo.Context) error {
    userID, ok := caller(c)
    if !ok {
        return unauthorized(c)
    }
    holdID := strings.TrimSpace(c.Param("id"))
    if _, err := uuid.Parse(holdID); err != nil {
        return badRequest(c, "id", "invalid hold id")
    }
    if err := h.svc.ReleaseHold(c.Request().Context(), holdID, userID); err != nil {
        return h.fail(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// MyHolds handles GET /v1/my-holds.
func (h *CustomerHandler) MyHolds(c echo.Context) error {
    userID, ok := caller(c)
    if !ok {
        return unauthorized(c)
    }
    holds, err := h.svc.ListActiveHolds(c.Request().Context(), userID)
    if err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"holds": holds})
}

type bookBody struct {
    CourtID    uint64  `json:"court_id" validate:"required"`
    VenueID    uint64  `json:"venue_id" validate:"required"`
    Date       string  `json:"date" validate:"required"`
    StartTime  string  `json:"start_time" validate:"required"`
    EndTime    string  `json:"end_time" validate:"required"`
    GameTypeID *uint64 `json:"game_type_id" validate:"omitempty,min=1"`
    TotalSlots int     `json:"total_slots" validate:"omitempty,min=1"`
}

// Book handles POST /v1/bookings.  The booking is created pending payment
// and the response carries the QR verification link.
func (h *CustomerHandler) Book(c echo.Context) error {
    userID, ok := caller(c)
    if !ok {
        return unauthorized(c)
    }
    var body bookBody
    if ok, err := bindValid(c, &body); !ok {
        return err
    }
    w, ok, err := parseWindow(c, body.Date, body.StartTime, body.EndTime)
    if !ok {
        return err
    }
    b, err := h.svc.BookSlotsAtomic(c.Request().Context(), booking.BookRequest{
        CourtID:    body.CourtID,
        VenueID:    body.VenueID,
        Date:       w.date,
        Start:      w.start,
        End:        w.end,
        UserID:     userID,
        GameTypeID: body.GameTypeID,
        TotalSlots: body.TotalSlots,
    })
    if err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusCreated, b)
}

// MyBookings handles GET /v1/my-bookings with an optional ?status= filter.
func (h *CustomerHandler) MyBookings(c echo.Context) error {
    userID, ok := caller(c)
    if !ok {
        return unauthorized(c)
    }
    status := model.BookingStatus(strings.ToLower(c.QueryParam("status")))
    if status != "" && !status.Valid() {
        return badRequest(c, "status", "unknown booking status")
    }
    list, err := h.svc.ListUserBookings(c.Request().Context(), userID, status)
    if err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// GetBooking handles GET /v1/bookings/:id.  Customers see only their own
// bookings; admins see any.
func (h *CustomerHandler) GetBooking(c echo.Context) error {
    userID, ok := caller(c)
    if !ok {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "id", "invalid booking id")
    }
    b, err := h.svc.GetBooking(c.Request().Context(), id, userID, middleware.IsAdmin(c))
    if err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusOK, b)
}

type cancelBody struct {
    Reason string `json:"reason" validate:"max=255"`
}

// CancelBooking handles POST /v1/bookings/:id/cancel.  The covering slots
// return to the ledger as available.
func (h *CustomerHandler) CancelBooking(c echo.Context) error {
    userID, ok := caller(c)
    if !ok {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "id", "invalid booking id")
    }
    var body cancelBody
    if c.Request().ContentLength != 0 {
        if ok, err := bindValid(c, &body); !ok {
            return err
        }
    }
    b, err := h.svc.Cancel(c.Request().Context(), booking.CancelRequest{
        BookingID: id,
        ActorID:   userID,
        IsAdmin:   middleware.IsAdmin(c),
        Reason:    body.Reason,
    })
    if err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusOK, b)
}
