package booking

import (
	"context"
	"time"

	"github.com/iliyamo/court-slot-booking/internal/model"
)

// Store is the persistence boundary of the booking engine.  Reads through
// Reader never lock; every slot state change happens inside WithTx.
type Store interface {
	Reader
	// WithTx runs fn in one READ COMMITTED transaction.  The transaction is
	// committed when fn returns nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reader serves the non-locking queries.
type Reader interface {
	Court(ctx context.Context, courtID uint64) (model.Court, error)
	Venue(ctx context.Context, venueID uint64) (model.Venue, error)
	Contact(ctx context.Context, userID uint64) (model.Contact, error)

	// Definitions returns the active catalog windows of a court for one
	// weekday ordered by start time.
	Definitions(ctx context.Context, courtID uint64, day time.Weekday) ([]model.TimeSlotDefinition, error)
	// Rules returns the active pricing rules of the venue that apply to the
	// court (court-specific or venue-wide) and are valid on date.
	Rules(ctx context.Context, venueID, courtID uint64, date time.Time) ([]model.PricingRule, error)

	// EnsureSlots materializes one ledger row per definition.  Rows that
	// already exist are left untouched.
	EnsureSlots(ctx context.Context, courtID uint64, date time.Time, definitionIDs []uint64) error
	// Slots returns the ledger rows of a court and date joined with their
	// definitions, ordered by start time.
	Slots(ctx context.Context, courtID uint64, date time.Time) ([]model.SlotAvailability, error)

	Hold(ctx context.Context, holdID string) (model.Hold, error)
	ActiveHolds(ctx context.Context, userID uint64, now time.Time) ([]model.Hold, error)
	// ExpiredHolds returns up to limit reserved holds whose expiry is at or
	// before now, oldest first.
	ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error)

	Booking(ctx context.Context, bookingID uint64) (model.Booking, error)
	BookingByReference(ctx context.Context, reference string) (model.Booking, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	ListBookings(ctx context.Context, f Filter) ([]model.Booking, error)
	// OverdueBookings returns confirmed bookings that were never checked in
	// and whose date is on or before the given date.
	OverdueBookings(ctx context.Context, onOrBefore time.Time) ([]model.Booking, error)
}

// Tx is the set of locking reads and guarded writes available inside a
// transaction.  Row locks are always taken in ascending id order.
type Tx interface {
	EnsureSlots(ctx context.Context, courtID uint64, date time.Time, definitionIDs []uint64) error
	// LockSlots selects the ledger rows for the given definitions FOR UPDATE.
	LockSlots(ctx context.Context, courtID uint64, date time.Time, definitionIDs []uint64) ([]model.SlotAvailability, error)
	LockSlotsByID(ctx context.Context, slotIDs []uint64) ([]model.SlotAvailability, error)
	LockSlotsByHold(ctx context.Context, holdID string) ([]model.SlotAvailability, error)
	// UpdateSlot writes State, BookingID, HoldID and HoldExpiry of s provided
	// the stored version still equals s.Version, and increments the
	// version.  A stale version yields ErrVersionConflict.
	UpdateSlot(ctx context.Context, s model.SlotAvailability) error

	LockHold(ctx context.Context, holdID string) (model.Hold, error)
	CreateHold(ctx context.Context, h model.Hold) error
	// SetHoldStatus moves a hold from one status to another; a hold no
	// longer in status from yields ErrVersionConflict.
	SetHoldStatus(ctx context.Context, holdID string, from, to model.HoldStatus) error

	// CreateBooking inserts b and its Slots and fills in the generated ids.
	// A reference collision yields ErrDuplicateReference.
	CreateBooking(ctx context.Context, b *model.Booking) error
	LockBooking(ctx context.Context, bookingID uint64) (model.Booking, error)
	// UpdateBooking persists the mutable columns of b guarded by b.Version
	// and increments the version.
	UpdateBooking(ctx context.Context, b model.Booking) error
}

// Filter narrows booking listings.  Zero fields are ignored.
type Filter struct {
	UserID  uint64
	CourtID uint64
	Status  model.BookingStatus
	Date    *time.Time
	Limit   int
	Offset  int
}
