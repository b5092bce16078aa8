package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/court-slot-booking/internal/booking"
    "github.com/iliyamo/court-slot-booking/internal/model"
)

// Catalog is the read side of the engine exposed to guests.
type Catalog interface {
    QueryAvailability(ctx context.Context, courtID uint64, date time.Time) ([]booking.SlotView, error)
    CalculatePrice(ctx context.Context, venueID, courtID uint64, date time.Time, start, end model.TimeOfDay) (int64, error)
    ServiceFee() int64
}

// PublicHandler serves the unauthenticated availability and pricing
// endpoints.
type PublicHandler struct {
    responder
    svc Catalog
}

// NewPublicHandler panics when svc is nil.
func NewPublicHandler(svc Catalog, log logrus.FieldLogger) *PublicHandler {
    if svc == nil {
        panic("nil service passed to NewPublicHandler")
    }
    return &PublicHandler{responder: responder{log: log}, svc: svc}
}

// Availability handles GET /v1/courts/:id/availability?date=YYYY-MM-DD.
// Every catalog window of the court on that date is listed with its ledger
// state and price.  Expired holds are reported as available.
func (h *PublicHandler) Availability(c echo.Context) error {
    courtID, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "id", "invalid court id")
    }
    date, err := model.ParseDate(c.QueryParam("date"))
    if err != nil {
        return badRequest(c, "date", "must be YYYY-MM-DD")
    }
    slots, err := h.svc.QueryAvailability(c.Request().Context(), courtID, date)
    if err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "court_id": courtID,
        "date":     date.Format(model.DateLayout),
        "slots":    slots,
    })
}

// Quote handles GET /v1/pricing/quote.  The slot amount excludes the
// service fee; total_amount is what a booking of the window would cost.
func (h *PublicHandler) Quote(c echo.Context) error {
    venueID, ok := queryID(c, "venue_id")
    if !ok || venueID == 0 {
        return badRequest(c, "venue_id", "required")
    }
    courtID, ok := queryID(c, "court_id")
    if !ok || courtID == 0 {
        return badRequest(c, "court_id", "required")
    }
    w, ok, err := parseWindow(c, c.QueryParam("date"), c.QueryParam("start_time"), c.QueryParam("end_time"))
    if !ok {
        return err
    }
    amount, err := h.svc.CalculatePrice(c.Request().Context(), venueID, courtID, w.date, w.start, w.end)
    if err != nil {
        return h.fail(c, err)
    }
    fee := h.svc.ServiceFee()
    return c.JSON(http.StatusOK, echo.Map{
        "venue_id":     venueID,
        "court_id":     courtID,
        "date":         w.date.Format(model.DateLayout),
        "start_time":   w.start,
        "end_time":     w.end,
        "slot_amount":  amount,
        "service_fee":  fee,
        "total_amount": amount + fee,
    })
}
