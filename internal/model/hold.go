package model

import "time"

// HoldStatus is the lifecycle state of a reservation hold.
type HoldStatus string

const (
    HoldReserved  HoldStatus = "reserved"
    HoldConfirmed HoldStatus = "confirmed"
    HoldExpired   HoldStatus = "expired"
    HoldReleased  HoldStatus = "released"
)

// Hold is a time-boxed soft lock on a contiguous run of slots for one user
// during checkout.  The slots themselves carry the hold ID while held.
//
// Fields:
//  ID           – UUID returned to clients as the reservation id.
//  CourtID      – court of the held slots.
//  HoldDate     – civil date of the held slots.
//  StartTime    – start of the held window.
//  EndTime      – end of the held window.
//  UserID       – user owning the hold.
//  QuotedAmount – slot price fixed when the hold was placed.
//  ExpiresAt    – instant after which the hold is inert.
//  Status       – reserved, confirmed, expired or released.
//  CreatedAt    – creation timestamp.
type Hold struct {
    ID           string     `json:"id"`            // slot_holds.id
    CourtID      uint64     `json:"court_id"`      // slot_holds.court_id
    HoldDate     time.Time  `json:"date"`          // slot_holds.hold_date
    StartTime    TimeOfDay  `json:"start_time"`    // slot_holds.start_time
    EndTime      TimeOfDay  `json:"end_time"`      // slot_holds.end_time
    UserID       uint64     `json:"user_id"`       // slot_holds.user_id
    QuotedAmount int64      `json:"quoted_amount"` // slot_holds.quoted_amount
    ExpiresAt    time.Time  `json:"expires_at"`    // slot_holds.expires_at
    Status       HoldStatus `json:"status"`        // slot_holds.status
    CreatedAt    time.Time  `json:"created_at"`    // slot_holds.created_at
}

// Active reports whether the hold still blocks other users at now.
func (h Hold) Active(now time.Time) bool {
    return h.Status == HoldReserved && h.ExpiresAt.After(now)
}
