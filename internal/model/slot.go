package model

import "time"

// TimeSlotDefinition is the catalog template for a bookable window on a
// court for one weekday.  Definitions are edited by admins and never by
// booking traffic.  Active definitions of one court and weekday never
// overlap.
//
// Fields:
//  ID              – primary key identifier.
//  VenueID         – venue owning the court.
//  CourtID         – court the window applies to.
//  DayOfWeek       – weekday, Sunday = 0.
//  StartTime       – window start.
//  EndTime         – window end (exclusive).
//  DurationMinutes – EndTime - StartTime, stored for reporting.
//  BasePrice       – price of one slot in minor currency units.
//  IsActive        – inactive definitions are not materialized.
type TimeSlotDefinition struct {
    ID              uint64       `json:"id"`               // time_slot_definitions.id
    VenueID         uint64       `json:"venue_id"`         // time_slot_definitions.venue_id
    CourtID         uint64       `json:"court_id"`         // time_slot_definitions.court_id
    DayOfWeek       time.Weekday `json:"day_of_week"`      // time_slot_definitions.day_of_week
    StartTime       TimeOfDay    `json:"start_time"`       // time_slot_definitions.start_time
    EndTime         TimeOfDay    `json:"end_time"`         // time_slot_definitions.end_time
    DurationMinutes int          `json:"duration_minutes"` // time_slot_definitions.duration_minutes
    BasePrice       int64        `json:"base_price"`       // time_slot_definitions.base_price
    IsActive        bool         `json:"is_active"`        // time_slot_definitions.is_active
}

// Overlaps reports whether the two windows share any minute.
func (d TimeSlotDefinition) Overlaps(start, end TimeOfDay) bool {
    return d.StartTime < end && start < d.EndTime
}

// SlotState is the ledger state of one concrete slot.
type SlotState string

const (
    SlotAvailable SlotState = "available"
    SlotHeld      SlotState = "held"
    SlotBooked    SlotState = "booked"
)

// SlotAvailability is one concrete (court, date, definition) instance in the
// ledger.  Version is bumped on every state transition and used as an
// optimistic lock by every writer.
//
// Fields:
//  ID           – primary key identifier.
//  CourtID      – court of the slot.
//  SlotDate     – civil date of the slot.
//  DefinitionID – catalog definition the slot was materialized from.
//  State        – available, held or booked.
//  BookingID    – booking owning the slot when booked.
//  HoldID       – hold owning the slot when held.
//  HoldExpiry   – instant after which a held slot is free again.
//  Version      – optimistic concurrency counter.
//  Definition   – joined catalog row (start/end/base price).
type SlotAvailability struct {
    ID           uint64             // slot_availability.id
    CourtID      uint64             // slot_availability.court_id
    SlotDate     time.Time          // slot_availability.slot_date
    DefinitionID uint64             // slot_availability.time_slot_definition_id
    State        SlotState          // slot_availability.state
    BookingID    *uint64            // slot_availability.booking_id (nullable)
    HoldID       *string            // slot_availability.hold_id (nullable)
    HoldExpiry   *time.Time         // slot_availability.hold_expiry (nullable)
    Version      uint32             // slot_availability.version
    Definition   TimeSlotDefinition // joined time_slot_definitions row
}

// HoldExpired reports whether a held slot's hold has lapsed at now.  Only
// meaningful when State is SlotHeld.
func (s SlotAvailability) HoldExpired(now time.Time) bool {
    return s.HoldExpiry == nil || !s.HoldExpiry.After(now)
}

// EffectiveState is the state readers must act on: a held slot whose hold
// expired is available regardless of what the row still says.
func (s SlotAvailability) EffectiveState(now time.Time) SlotState {
    if s.State == SlotHeld && s.HoldExpired(now) {
        return SlotAvailable
    }
    return s.State
}

// Consistent reports whether the nullable columns agree with State.  A
// row failing this check indicates a bug or manual tampering.
func (s SlotAvailability) Consistent() bool {
    switch s.State {
    case SlotAvailable:
        return s.BookingID == nil && s.HoldID == nil
    case SlotHeld:
        return s.BookingID == nil && s.HoldID != nil && s.HoldExpiry != nil
    case SlotBooked:
        return s.BookingID != nil && s.HoldID == nil
    }
    return false
}
