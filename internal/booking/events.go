package booking

import (
	"context"
	"time"

	"github.com/iliyamo/court-slot-booking/internal/model"
)

// EventType doubles as the routing key of the published message.
type EventType string

const (
	EventCreated   EventType = "booking.created"
	EventConfirmed EventType = "booking.confirmed"
	EventCheckedIn EventType = "booking.checked_in"
	EventCancelled EventType = "booking.cancelled"
)

// Event carries what the notification and QR collaborators need without
// reading the primary database.
type Event struct {
	Type               EventType           `json:"type"`
	BookingID          uint64              `json:"booking_id"`
	Reference          string              `json:"booking_reference"`
	Status             model.BookingStatus `json:"status"`
	User               model.Contact       `json:"user"`
	VenueID            uint64              `json:"venue_id"`
	VenueName          string              `json:"venue_name"`
	VenueAddress       string              `json:"venue_address"`
	CourtID            uint64              `json:"court_id"`
	CourtName          string              `json:"court_name"`
	Date               string              `json:"date"`
	StartTime          model.TimeOfDay     `json:"start_time"`
	EndTime            model.TimeOfDay     `json:"end_time"`
	TotalAmount        int64               `json:"total_amount"`
	QRPayload          string              `json:"qr_payload,omitempty"`
	CancellationReason string              `json:"cancellation_reason,omitempty"`
	OccurredAt         time.Time           `json:"occurred_at"`
}

// Emitter hands events to the message broker.  Emit must not block on the
// broker and must not fail the caller; delivery is best effort.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}
