package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/court-slot-booking/internal/booking"
    "github.com/iliyamo/court-slot-booking/internal/model"
)

// Routing keys published by the payment collaborator.
const (
    RKPaymentCompleted = "payment.completed"
    RKPaymentFailed    = "payment.failed"
)

// PaymentKeys are the routing keys the payment queue binds.
var PaymentKeys = []string{RKPaymentCompleted, RKPaymentFailed}

// PaymentSignal is the body of a payment message.
type PaymentSignal struct {
    BookingID  uint64 `json:"booking_id"`
    PaymentRef string `json:"payment_ref"`
    Reason     string `json:"reason,omitempty"`
}

// PaymentService is the part of booking.Service payment signals drive.
type PaymentService interface {
    ConfirmPayment(ctx context.Context, bookingID uint64, paymentRef string) (model.Booking, error)
    FailPayment(ctx context.Context, bookingID uint64, reason string) (model.Booking, error)
}

// PaymentHandler applies payment signals to bookings.
type PaymentHandler struct {
    svc PaymentService
    log logrus.FieldLogger
}

func NewPaymentHandler(svc PaymentService, log logrus.FieldLogger) *PaymentHandler {
    return &PaymentHandler{svc: svc, log: log}
}

// Handle is a Handler.  Signals for unknown bookings or bookings that can
// no longer take the transition are rejected; storage errors are retried.
func (h *PaymentHandler) Handle(ctx context.Context, d amqp.Delivery) error {
    var sig PaymentSignal
    if err := json.Unmarshal(d.Body, &sig); err != nil {
        return Permanent(fmt.Errorf("unmarshal %s: %w", d.RoutingKey, err))
    }
    if sig.BookingID == 0 {
        return Permanent(fmt.Errorf("%s without booking_id", d.RoutingKey))
    }

    var (
        b   model.Booking
        err error
    )
    switch d.RoutingKey {
    case RKPaymentCompleted:
        b, err = h.svc.ConfirmPayment(ctx, sig.BookingID, sig.PaymentRef)
    case RKPaymentFailed:
        b, err = h.svc.FailPayment(ctx, sig.BookingID, sig.Reason)
    default:
        h.log.WithField("routing_key", d.RoutingKey).Warn("skip unknown payment key")
        return nil
    }
    if err != nil {
        if errors.Is(err, booking.ErrNotFound) || errors.Is(err, booking.ErrInvalidTransition) {
            return Permanent(err)
        }
        return err
    }
    h.log.WithFields(logrus.Fields{
        "booking_id":     b.ID,
        "status":         b.Status,
        "payment_status": b.PaymentStatus,
    }).Info("payment signal applied")
    return nil
}
