package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/court-slot-booking/internal/booking"
    "github.com/iliyamo/court-slot-booking/internal/model"
)

// Operations is the part of the engine venue staff drive.
type Operations interface {
    CheckIn(ctx context.Context, bookingID uint64) (booking.CheckInResult, error)
    VerifyAndCheckIn(ctx context.Context, reference, code string) (booking.CheckInResult, error)
    ConfirmPayment(ctx context.Context, bookingID uint64, paymentRef string) (model.Booking, error)
    FailPayment(ctx context.Context, bookingID uint64, reason string) (model.Booking, error)
    ListBookings(ctx context.Context, f booking.Filter) ([]model.Booking, error)
}

// DefinitionWriter creates catalog windows.
type DefinitionWriter interface {
    Create(ctx context.Context, d *model.TimeSlotDefinition) error
}

// RuleWriter creates pricing rules.
type RuleWriter interface {
    Create(ctx context.Context, r *model.PricingRule) error
}

// StaffHandler serves check-in, payment reconciliation and catalog
// administration.  Every route requires the ADMIN role.
type StaffHandler struct {
    responder
    svc   Operations
    slots DefinitionWriter
    rules RuleWriter
}

// NewStaffHandler panics if any dependency is nil.
func NewStaffHandler(svc Operations, slots DefinitionWriter, rules RuleWriter, log logrus.FieldLogger) *StaffHandler {
    if svc == nil || slots == nil || rules == nil {
        panic("nil dependency passed to NewStaffHandler")
    }
    return &StaffHandler{responder: responder{log: log}, svc: svc, slots: slots, rules: rules}
}

// CheckIn handles POST /v1/bookings/:id/check-in.  A repeated check-in is
// answered with 200 and already_checked_in set.
func (h *StaffHandler) CheckIn(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "id", "invalid booking id")
    }
    res, err := h.svc.CheckIn(c.Request().Context(), id)
    if err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusOK, res)
}

type verifyBody struct {
    Code string `json:"code" validate:"required"`
}

// VerifyBooking handles POST /v1/verify-booking/:reference with the code
// scanned from the QR payload.
func (h *StaffHandler) VerifyBooking(c echo.Context) error {
    ref := strings.TrimSpace(c.Param("reference"))
    if ref == "" {
        return badRequest(c, "reference", "required")
    }
    var body verifyBody
    if ok, err := bindValid(c, &body); !ok {
        return err
    }
    res, err := h.svc.VerifyAndCheckIn(c.Request().Context(), ref, body.Code)
    if err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusOK, res)
}

type paymentBody struct {
    Status     string `json:"status" validate:"required,oneof=completed failed"`
    PaymentRef string `json:"payment_ref" validate:"required_if=Status completed,max=100"`
    Reason     string `json:"reason" validate:"max=255"`
}

// RecordPayment handles POST /v1/admin/bookings/:id/payment.  It is the
// manual counterpart of the payment signal consumer.
func (h *StaffHandler) RecordPayment(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "id", "invalid booking id")
    }
    var body paymentBody
    if ok, err := bindValid(c, &body); !ok {
        return err
    }
    var (
        b   model.Booking
        err error
    )
    if body.Status == string(model.PaymentCompleted) {
        b, err = h.svc.ConfirmPayment(c.Request().Context(), id, body.PaymentRef)
    } else {
        b, err = h.svc.FailPayment(c.Request().Context(), id, body.Reason)
    }
    if err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusOK, b)
}

// ListBookings handles GET /v1/admin/bookings with optional status, date,
// court_id, user_id, limit and offset filters.
func (h *StaffHandler) ListBookings(c echo.Context) error {
    var f booking.Filter
    var ok bool
    if f.CourtID, ok = queryID(c, "court_id"); !ok {
        return badRequest(c, "court_id", "invalid court id")
    }
    if f.UserID, ok = queryID(c, "user_id"); !ok {
        return badRequest(c, "user_id", "invalid user id")
    }
    if s := strings.ToLower(c.QueryParam("status")); s != "" {
        f.Status = model.BookingStatus(s)
        if !f.Status.Valid() {
            return badRequest(c, "status", "unknown booking status")
        }
    }
    if raw := c.QueryParam("date"); raw != "" {
        d, err := model.ParseDate(raw)
        if err != nil {
            return badRequest(c, "date", "must be YYYY-MM-DD")
        }
        f.Date = &d
    }
    f.Limit = 100
    if raw := c.QueryParam("limit"); raw != "" {
        n, err := strconv.Atoi(raw)
        if err != nil || n < 1 || n > 500 {
            return badRequest(c, "limit", "must be between 1 and 500")
        }
        f.Limit = n
    }
    if raw := c.QueryParam("offset"); raw != "" {
        n, err := strconv.Atoi(raw)
        if err != nil || n < 0 {
            return badRequest(c, "offset", "must not be negative")
        }
        f.Offset = n
    }
    list, err := h.svc.ListBookings(c.Request().Context(), f)
    if err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": list, "limit": f.Limit, "offset": f.Offset})
}

type timeSlotBody struct {
    VenueID   uint64 `json:"venue_id" validate:"required"`
    CourtID   uint64 `json:"court_id" validate:"required"`
    DayOfWeek *int   `json:"day_of_week" validate:"required,min=0,max=6"`
    StartTime string `json:"start_time" validate:"required"`
    EndTime   string `json:"end_time" validate:"required"`
    BasePrice int64  `json:"base_price" validate:"min=0"`
    IsActive  *bool  `json:"is_active"`
}

// CreateTimeSlot handles POST /v1/admin/time-slots.  A window that overlaps
// an active window of the same court and weekday is rejected with 409.
func (h *StaffHandler) CreateTimeSlot(c echo.Context) error {
    var body timeSlotBody
    if ok, err := bindValid(c, &body); !ok {
        return err
    }
    start, err := model.ParseTimeOfDay(body.StartTime)
    if err != nil {
        return badRequest(c, "start_time", "must be HH:MM")
    }
    end, err := model.ParseTimeOfDay(body.EndTime)
    if err != nil {
        return badRequest(c, "end_time", "must be HH:MM")
    }
    if end <= start {
        return badRequest(c, "end_time", "must be after start_time")
    }
    def := model.TimeSlotDefinition{
        VenueID:   body.VenueID,
        CourtID:   body.CourtID,
        DayOfWeek: time.Weekday(*body.DayOfWeek),
        StartTime: start,
        EndTime:   end,
        BasePrice: body.BasePrice,
        IsActive:  body.IsActive == nil || *body.IsActive,
    }
    if err := h.slots.Create(c.Request().Context(), &def); err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusCreated, def)
}

type pricingRuleBody struct {
    VenueID    uint64  `json:"venue_id" validate:"required"`
    CourtID    *uint64 `json:"court_id" validate:"omitempty,min=1"`
    RuleType   string  `json:"rule_type" validate:"required,oneof=base_price multiplier fixed_override"`
    DayOfWeek  *int    `json:"day_of_week" validate:"omitempty,min=0,max=6"`
    StartTime  string  `json:"start_time" validate:"required_with=EndTime"`
    EndTime    string  `json:"end_time" validate:"required_with=StartTime"`
    PriceValue string  `json:"price_value" validate:"required,numeric"`
    ValidFrom  string  `json:"valid_from" validate:"required"`
    ValidTo    string  `json:"valid_to" validate:"required"`
    Priority   int     `json:"priority"`
    IsActive   *bool   `json:"is_active"`
}

// CreatePricingRule handles POST /v1/admin/pricing-rules.
func (h *StaffHandler) CreatePricingRule(c echo.Context) error {
    var body pricingRuleBody
    if ok, err := bindValid(c, &body); !ok {
        return err
    }
    rule := model.PricingRule{
        VenueID:    body.VenueID,
        CourtID:    body.CourtID,
        RuleType:   model.RuleType(body.RuleType),
        PriceValue: body.PriceValue,
        Priority:   body.Priority,
        IsActive:   body.IsActive == nil || *body.IsActive,
    }
    if body.DayOfWeek != nil {
        d := time.Weekday(*body.DayOfWeek)
        rule.DayOfWeek = &d
    }
    if body.StartTime != "" {
        start, err := model.ParseTimeOfDay(body.StartTime)
        if err != nil {
            return badRequest(c, "start_time", "must be HH:MM")
        }
        end, err := model.ParseTimeOfDay(body.EndTime)
        if err != nil {
            return badRequest(c, "end_time", "must be HH:MM")
        }
        if end <= start {
            return badRequest(c, "end_time", "must be after start_time")
        }
        rule.StartTime, rule.EndTime = &start, &end
    }
    var err error
    if rule.ValidFrom, err = model.ParseDate(body.ValidFrom); err != nil {
        return badRequest(c, "valid_from", "must be YYYY-MM-DD")
    }
    if rule.ValidTo, err = model.ParseDate(body.ValidTo); err != nil {
        return badRequest(c, "valid_to", "must be YYYY-MM-DD")
    }
    if rule.ValidTo.Before(rule.ValidFrom) {
        return badRequest(c, "valid_to", "must not precede valid_from")
    }
    if strings.HasPrefix(rule.PriceValue, "-") {
        return badRequest(c, "price_value", "must not be negative")
    }
    if err := h.rules.Create(c.Request().Context(), &rule); err != nil {
        return h.fail(c, err)
    }
    return c.JSON(http.StatusCreated, rule)
}
