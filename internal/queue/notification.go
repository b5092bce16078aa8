package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "sync"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/court-slot-booking/internal/booking"
    "github.com/iliyamo/court-slot-booking/internal/notify"
)

// BookingKeys are the routing keys the notification queue binds.
var BookingKeys = []string{
    string(booking.EventCreated),
    string(booking.EventConfirmed),
    string(booking.EventCheckedIn),
    string(booking.EventCancelled),
}

// NotificationHandler appends every booking event to a journal (one line
// per event) and hands a rendered message to the notifier.
type NotificationHandler struct {
    notifier notify.Notifier
    log      logrus.FieldLogger

    mu      sync.Mutex
    journal io.Writer
}

func NewNotificationHandler(n notify.Notifier, journal io.Writer, log logrus.FieldLogger) *NotificationHandler {
    return &NotificationHandler{notifier: n, journal: journal, log: log}
}

// Handle is a Handler.  Undecodable bodies are rejected; unknown routing
// keys are acked and skipped.
func (h *NotificationHandler) Handle(ctx context.Context, d amqp.Delivery) error {
    var ev booking.Event
    if err := json.Unmarshal(d.Body, &ev); err != nil {
        return Permanent(fmt.Errorf("unmarshal %s: %w", d.RoutingKey, err))
    }
    if ev.Type == "" {
        ev.Type = booking.EventType(d.RoutingKey)
    }
    msg, ok, err := notify.Render(ev)
    if err != nil {
        return Permanent(err)
    }
    if !ok {
        h.log.WithField("routing_key", d.RoutingKey).Warn("skip unknown event")
        return nil
    }
    if err := h.write(ev); err != nil {
        return err
    }
    return h.notifier.Notify(ctx, msg)
}

func (h *NotificationHandler) write(ev booking.Event) error {
    if h.journal == nil {
        return nil
    }
    line := fmt.Sprintf("[%s] %s | booking_reference=%s | booking_id=%d | user_id=%d | venue=%q | court=%q | date=%s %s-%s | total=%d paise\n",
        ev.OccurredAt.UTC().Format("2006-01-02T15:04:05Z"), ev.Type, ev.Reference, ev.BookingID, ev.User.UserID,
        ev.VenueName, ev.CourtName, ev.Date, ev.StartTime, ev.EndTime, ev.TotalAmount)
    h.mu.Lock()
    defer h.mu.Unlock()
    if _, err := io.WriteString(h.journal, line); err != nil {
        return fmt.Errorf("write journal: %w", err)
    }
    return nil
}
