package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
    BookingPending   BookingStatus = "pending"
    BookingConfirmed BookingStatus = "confirmed"
    BookingCancelled BookingStatus = "cancelled"
    BookingCompleted BookingStatus = "completed"
    BookingNoShow    BookingStatus = "no_show"
)

// PaymentStatus mirrors the external payment capture.
type PaymentStatus string

const (
    PaymentPending   PaymentStatus = "pending"
    PaymentCompleted PaymentStatus = "completed"
    PaymentFailed    PaymentStatus = "failed"
    PaymentRefunded  PaymentStatus = "refunded"
)

// CheckInStatus moves one way, from not_checked_in to checked_in.
type CheckInStatus string

const (
    NotCheckedIn CheckInStatus = "not_checked_in"
    CheckedIn    CheckInStatus = "checked_in"
)

// Booking is the durable record of a committed slot booking.  The slots it
// consumed are listed in Slots (booking_slots rows) which are never removed
// by cancellation.
type Booking struct {
    ID                 uint64        `json:"id"`                            // bookings.id
    BookingReference   string        `json:"booking_reference"`             // bookings.booking_reference
    UserID             uint64        `json:"user_id"`                       // bookings.user_id
    VenueID            uint64        `json:"venue_id"`                      // bookings.venue_id
    CourtID            uint64        `json:"court_id"`                      // bookings.court_id
    GameTypeID         *uint64       `json:"game_type_id,omitempty"`        // bookings.game_type_id (nullable)
    BookingDate        time.Time     `json:"booking_date"`                  // bookings.booking_date
    StartTime          TimeOfDay     `json:"start_time"`                    // bookings.start_time
    EndTime            TimeOfDay     `json:"end_time"`                      // bookings.end_time
    TotalSlots         int           `json:"total_slots"`                   // bookings.total_slots
    SlotAmount         int64         `json:"slot_amount"`                   // bookings.slot_amount
    ServiceFee         int64         `json:"service_fee"`                   // bookings.service_fee
    TotalAmount        int64         `json:"total_amount"`                  // bookings.total_amount
    Status             BookingStatus `json:"status"`                        // bookings.status
    PaymentStatus      PaymentStatus `json:"payment_status"`                // bookings.payment_status
    PaymentRef         *string       `json:"payment_ref,omitempty"`         // bookings.payment_ref (nullable)
    CheckInStatus      CheckInStatus `json:"check_in_status"`               // bookings.check_in_status
    CheckInTime        *time.Time    `json:"check_in_time,omitempty"`       // bookings.check_in_time (nullable)
    CheckInCodeHash    string        `json:"-"`                             // bookings.check_in_code_hash
    QRCodeURL          *string       `json:"qr_code_url,omitempty"`         // bookings.qr_code_url (nullable)
    CancellationReason *string       `json:"cancellation_reason,omitempty"` // bookings.cancellation_reason (nullable)
    CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`        // bookings.cancelled_at (nullable)
    HoldID             *string       `json:"hold_id,omitempty"`             // bookings.hold_id (nullable)
    Version            uint32        `json:"version"`                       // bookings.version
    CreatedAt          time.Time     `json:"created_at"`                    // bookings.created_at
    UpdatedAt          time.Time     `json:"updated_at"`                    // bookings.updated_at
    Slots              []BookingSlot `json:"slots,omitempty"`               // booking_slots rows
}

// BookingSlot records which ledger row a booking consumed.
type BookingSlot struct {
    ID                 uint64 `json:"id"`                   // booking_slots.id
    BookingID          uint64 `json:"booking_id"`           // booking_slots.booking_id
    SlotAvailabilityID uint64 `json:"slot_availability_id"` // booking_slots.slot_availability_id
    SlotSequence       int    `json:"slot_sequence"`        // booking_slots.slot_sequence
}

// Cancellable reports whether the booking may still be cancelled.
func (b Booking) Cancellable() bool {
    return b.Status == BookingPending || b.Status == BookingConfirmed
}

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
    switch s {
    case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted, BookingNoShow:
        return true
    }
    return false
}
