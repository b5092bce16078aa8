package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/court-slot-booking/internal/booking"
	"github.com/iliyamo/court-slot-booking/internal/clock"
	"github.com/iliyamo/court-slot-booking/internal/model"
)

// Store composes the repositories into the booking.Store the service
// runs against.
type Store struct {
	db *sql.DB

	Venues   *VenueRepo
	Users    *UserRepo
	Catalog  *CatalogRepo
	Pricing  *PricingRuleRepo
	Ledger   *SlotRepo
	Holds    *HoldRepo
	Bookings *BookingRepo

	clock clock.Clock
}

var _ booking.Store = (*Store)(nil)

// NewStore wires every repository onto db.
func NewStore(db *sql.DB, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	venues := NewVenueRepo(db)
	return &Store{
		db:       db,
		Venues:   venues,
		Users:    NewUserRepo(db),
		Catalog:  NewCatalogRepo(db, venues),
		Pricing:  NewPricingRuleRepo(db),
		Ledger:   NewSlotRepo(db),
		Holds:    NewHoldRepo(db),
		Bookings: NewBookingRepo(db),
		clock:    clk,
	}
}

// WithTx runs fn inside a READ COMMITTED transaction.  Row locks taken
// with FOR UPDATE are held until commit; gap locks are not, which keeps
// INSERT IGNORE on the ledger from serializing unrelated dates.
func (s *Store) WithTx(ctx context.Context, fn func(tx booking.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translate(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, rbErr)
			}
			return
		}
		err = translate(sqlTx.Commit())
	}()
	return fn(&txStore{s: s, tx: sqlTx})
}

func (s *Store) Court(ctx context.Context, id uint64) (model.Court, error) {
	return s.Venues.GetCourt(ctx, id)
}

func (s *Store) Venue(ctx context.Context, id uint64) (model.Venue, error) {
	return s.Venues.GetVenue(ctx, id)
}

func (s *Store) Contact(ctx context.Context, id uint64) (model.Contact, error) {
	return s.Users.Contact(ctx, id)
}

func (s *Store) Definitions(ctx context.Context, courtID uint64, day time.Weekday) ([]model.TimeSlotDefinition, error) {
	return s.Catalog.ActiveFor(ctx, courtID, day)
}

func (s *Store) Rules(ctx context.Context, venueID, courtID uint64, date time.Time) ([]model.PricingRule, error) {
	return s.Pricing.ActiveFor(ctx, venueID, courtID, date)
}

func (s *Store) EnsureSlots(ctx context.Context, courtID uint64, date time.Time, defIDs []uint64) error {
	return s.Ledger.Ensure(ctx, s.db, courtID, date, defIDs)
}

func (s *Store) Slots(ctx context.Context, courtID uint64, date time.Time) ([]model.SlotAvailability, error) {
	return s.Ledger.ForDate(ctx, courtID, date)
}

func (s *Store) Hold(ctx context.Context, id string) (model.Hold, error) {
	return s.Holds.Get(ctx, id)
}

func (s *Store) ActiveHolds(ctx context.Context, userID uint64, now time.Time) ([]model.Hold, error) {
	return s.Holds.ActiveByUser(ctx, userID, now)
}

func (s *Store) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
	return s.Holds.Expired(ctx, now, limit)
}

func (s *Store) Booking(ctx context.Context, id uint64) (model.Booking, error) {
	return s.Bookings.GetByID(ctx, id)
}

func (s *Store) BookingByReference(ctx context.Context, ref string) (model.Booking, error) {
	return s.Bookings.GetByReference(ctx, ref)
}

func (s *Store) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	return s.Bookings.ReferenceExists(ctx, ref)
}

func (s *Store) ListBookings(ctx context.Context, f booking.Filter) ([]model.Booking, error) {
	return s.Bookings.List(ctx, f)
}

func (s *Store) OverdueBookings(ctx context.Context, onOrBefore time.Time) ([]model.Booking, error) {
	return s.Bookings.Overdue(ctx, onOrBefore)
}

// txStore adapts one *sql.Tx to booking.Tx.
type txStore struct {
	s  *Store
	tx *sql.Tx
}

func (t *txStore) EnsureSlots(ctx context.Context, courtID uint64, date time.Time, defIDs []uint64) error {
	return t.s.Ledger.Ensure(ctx, t.tx, courtID, date, defIDs)
}

func (t *txStore) LockSlots(ctx context.Context, courtID uint64, date time.Time, defIDs []uint64) ([]model.SlotAvailability, error) {
	return t.s.Ledger.LockTx(ctx, t.tx, courtID, date, defIDs)
}

func (t *txStore) LockSlotsByID(ctx context.Context, ids []uint64) ([]model.SlotAvailability, error) {
	return t.s.Ledger.LockByIDsTx(ctx, t.tx, ids)
}

func (t *txStore) LockSlotsByHold(ctx context.Context, holdID string) ([]model.SlotAvailability, error) {
	return t.s.Ledger.LockByHoldTx(ctx, t.tx, holdID)
}

func (t *txStore) UpdateSlot(ctx context.Context, slot model.SlotAvailability) error {
	return t.s.Ledger.UpdateTx(ctx, t.tx, slot, t.s.clock.Now())
}

func (t *txStore) LockHold(ctx context.Context, id string) (model.Hold, error) {
	return t.s.Holds.LockTx(ctx, t.tx, id)
}

func (t *txStore) CreateHold(ctx context.Context, h model.Hold) error {
	return t.s.Holds.CreateTx(ctx, t.tx, h)
}

func (t *txStore) SetHoldStatus(ctx context.Context, id string, from, to model.HoldStatus) error {
	return t.s.Holds.SetStatusTx(ctx, t.tx, id, from, to)
}

func (t *txStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	return t.s.Bookings.CreateTx(ctx, t.tx, b)
}

func (t *txStore) LockBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return t.s.Bookings.LockTx(ctx, t.tx, id)
}

func (t *txStore) UpdateBooking(ctx context.Context, b model.Booking) error {
	return t.s.Bookings.UpdateTx(ctx, t.tx, b, t.s.clock.Now())
}
