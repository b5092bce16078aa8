package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/court-slot-booking/internal/booking"
	"github.com/iliyamo/court-slot-booking/internal/clock"
	"github.com/iliyamo/court-slot-booking/internal/model"
)

var (
	playDate = time.Date(2030, 3, 16, 0, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2030, 3, 15, 20, 0, 0, 0, time.UTC)
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var slotCols = []string{
	"id", "court_id", "slot_date", "time_slot_definition_id", "state",
	"booking_id", "hold_id", "hold_expiry", "version",
	"d.id", "venue_id", "d.court_id", "day_of_week", "start_time", "end_time",
	"duration_minutes", "base_price", "is_active",
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(sql.ErrNoRows), booking.ErrNotFound)
	assert.ErrorIs(t, translate(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'BK1' for key 'bookings.uq_booking_reference'"}), booking.ErrDuplicateReference)
	assert.ErrorIs(t, translate(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'other'"}), ErrConflict)
	assert.ErrorIs(t, translate(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}), booking.ErrLockTimeout)
	assert.ErrorIs(t, translate(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"}), booking.ErrLockTimeout)

	other := errors.New("boom")
	assert.Equal(t, other, translate(other))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestSlotLockScansRows(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSlotRepo(db)
	expiry := fixedNow.Add(15 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF sa")).
		WithArgs(uint64(10), "2030-03-16", uint64(1), uint64(2)).
		WillReturnRows(sqlmock.NewRows(slotCols).
			AddRow(5, 10, playDate, 1, "available", nil, nil, nil, 1, 1, 1, 10, 6, "18:00:00", "19:00:00", 60, 50000, true).
			AddRow(6, 10, playDate, 2, "held", nil, "hold-1", expiry, 3, 2, 1, 10, 6, "19:00:00", "20:00:00", 60, 50000, true))

	tx, err := db.Begin()
	require.NoError(t, err)
	rows, err := repo.LockTx(context.Background(), tx, 10, playDate, []uint64{1, 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, model.SlotAvailable, rows[0].State)
	assert.Nil(t, rows[0].HoldID)
	assert.Equal(t, time.Saturday, rows[0].Definition.DayOfWeek)
	assert.Equal(t, model.TimeOfDay(18*60), rows[0].Definition.StartTime)

	assert.Equal(t, model.SlotHeld, rows[1].State)
	require.NotNil(t, rows[1].HoldID)
	assert.Equal(t, "hold-1", *rows[1].HoldID)
	require.NotNil(t, rows[1].HoldExpiry)
	assert.True(t, expiry.Equal(*rows[1].HoldExpiry))
	assert.Equal(t, uint32(3), rows[1].Version)
	assert.True(t, rows[1].Consistent())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotUpdateDetectsStaleVersion(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSlotRepo(db)
	bookingID := uint64(77)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slot_availability")).
		WithArgs("booked", sql.NullInt64{Int64: 77, Valid: true}, sql.NullString{}, sql.NullTime{}, fixedNow, uint64(5), uint32(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Begin()
	require.NoError(t, err)
	err = repo.UpdateTx(context.Background(), tx, model.SlotAvailability{
		ID: 5, State: model.SlotBooked, BookingID: &bookingID, Version: 2,
	}, fixedNow)
	assert.ErrorIs(t, err, booking.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSlotsUsesInsertIgnore(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSlotRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO slot_availability")).
		WithArgs(uint64(10), "2030-03-16", uint64(1), uint64(10), "2030-03-16", uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Ensure(context.Background(), db, 10, playDate, []uint64{1, 2}))
	require.NoError(t, repo.Ensure(context.Background(), db, 10, playDate, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHoldSetStatus(t *testing.T) {
	db, mock := newMock(t)
	repo := NewHoldRepo(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slot_holds SET status = ?")).
		WithArgs("released", "h1", "reserved").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM slot_holds")).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slot_holds SET status = ?")).
		WithArgs("released", "missing", "reserved").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM slot_holds")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	tx, err := db.Begin()
	require.NoError(t, err)
	assert.ErrorIs(t, repo.SetStatusTx(ctx, tx, "h1", model.HoldReserved, model.HoldReleased), booking.ErrVersionConflict)
	assert.ErrorIs(t, repo.SetStatusTx(ctx, tx, "missing", model.HoldReserved, model.HoldReleased), booking.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingCreateReportsDuplicateReference(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'BKAAAA2222' for key 'bookings.booking_reference'"})

	tx, err := db.Begin()
	require.NoError(t, err)
	b := &model.Booking{
		BookingReference: "BKAAAA2222", UserID: 100, VenueID: 1, CourtID: 10, BookingDate: playDate,
		StartTime: 18 * 60, EndTime: 19 * 60, TotalSlots: 1, Status: model.BookingPending,
		PaymentStatus: model.PaymentPending, CheckInStatus: model.NotCheckedIn, Version: 1, CreatedAt: fixedNow,
		Slots: []model.BookingSlot{{SlotAvailabilityID: 5, SlotSequence: 1}},
	}
	err = repo.CreateTx(context.Background(), tx, b)
	assert.ErrorIs(t, err, booking.ErrDuplicateReference)
	assert.Zero(t, b.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingCreateInsertsSlotLines(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO booking_slots (booking_id, slot_availability_id, slot_sequence) VALUES (?, ?, ?), (?, ?, ?)")).
		WithArgs(uint64(42), uint64(5), 1, uint64(42), uint64(6), 2).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM booking_slots WHERE booking_id = ?")).
		WithArgs(uint64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "slot_availability_id", "slot_sequence"}).
			AddRow(900, 42, 5, 1).
			AddRow(901, 42, 6, 2))

	tx, err := db.Begin()
	require.NoError(t, err)
	b := &model.Booking{
		BookingReference: "BKAAAA2222", UserID: 100, VenueID: 1, CourtID: 10, BookingDate: playDate,
		StartTime: 18 * 60, EndTime: 20 * 60, TotalSlots: 2, Version: 1, CreatedAt: fixedNow,
		Slots: []model.BookingSlot{{SlotAvailabilityID: 5, SlotSequence: 1}, {SlotAvailabilityID: 6, SlotSequence: 2}},
	}
	require.NoError(t, repo.CreateTx(context.Background(), tx, b))
	assert.Equal(t, uint64(42), b.ID)
	require.Len(t, b.Slots, 2)
	assert.Equal(t, uint64(901), b.Slots[1].ID)
	assert.Equal(t, uint64(6), b.Slots[1].SlotAvailabilityID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingListBuildsFilter(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = ? AND status = ? AND booking_date = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")).
		WithArgs(uint64(100), "confirmed", "2030-03-16", 20, 40).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	out, err := repo.List(context.Background(), booking.Filter{
		UserID: 100, Status: model.BookingConfirmed, Date: &playDate, Limit: 20, Offset: 40,
	})
	require.NoError(t, err)
	assert.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogCreateRejectsOverlap(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCatalogRepo(db, NewVenueRepo(db))
	courtCols := []string{"id", "venue_id", "name", "court_type", "is_active"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM courts WHERE id = ? FOR UPDATE")).
		WithArgs(uint64(10)).
		WillReturnRows(sqlmock.NewRows(courtCols).AddRow(10, 1, "Court 1", "indoor", true))
	mock.ExpectQuery(regexp.QuoteMeta("NOT (end_time <= ? OR start_time >= ?)")).
		WithArgs(uint64(10), 6, model.TimeOfDay(18*60+30), model.TimeOfDay(19*60+30)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.TimeSlotDefinition{
		VenueID: 1, CourtID: 10, DayOfWeek: time.Saturday, StartTime: 18*60 + 30, EndTime: 19*60 + 30, BasePrice: 50000, IsActive: true,
	})
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogCreateChecksVenue(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCatalogRepo(db, NewVenueRepo(db))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM courts WHERE id = ? FOR UPDATE")).
		WithArgs(uint64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "venue_id", "name", "court_type", "is_active"}).AddRow(10, 2, "Court 1", "indoor", true))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.TimeSlotDefinition{
		VenueID: 1, CourtID: 10, DayOfWeek: time.Saturday, StartTime: 18 * 60, EndTime: 19 * 60, IsActive: true,
	})
	assert.ErrorIs(t, err, ErrCourtVenueMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogCreateInserts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCatalogRepo(db, NewVenueRepo(db))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM courts WHERE id = ? FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "venue_id", "name", "court_type", "is_active"}).AddRow(10, 1, "Court 1", "indoor", true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO time_slot_definitions")).
		WithArgs(uint64(1), uint64(10), 6, model.TimeOfDay(18*60), model.TimeOfDay(19*60), 60, int64(50000), true).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	d := &model.TimeSlotDefinition{
		VenueID: 1, CourtID: 10, DayOfWeek: time.Saturday, StartTime: 18 * 60, EndTime: 19 * 60, BasePrice: 50000, IsActive: true,
	}
	require.NoError(t, repo.Create(context.Background(), d))
	assert.Equal(t, uint64(7), d.ID)
	assert.Equal(t, 60, d.DurationMinutes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPricingRulesScanNullableColumns(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPricingRuleRepo(db)
	cols := []string{"id", "venue_id", "court_id", "rule_type", "day_of_week", "start_time", "end_time",
		"price_value", "valid_from", "valid_to", "priority", "is_active"}

	mock.ExpectQuery(regexp.QuoteMeta("(court_id IS NULL OR court_id = ?)")).
		WithArgs(uint64(1), uint64(10), "2030-03-16", "2030-03-16").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, 1, nil, "multiplier", 6, nil, nil, "1.2000", playDate.AddDate(0, -1, 0), playDate.AddDate(0, 1, 0), 10, true).
			AddRow(2, 1, 10, "fixed_override", nil, "18:00:00", "19:00:00", "30000.0000", playDate, playDate, 5, true))

	rules, err := repo.ActiveFor(context.Background(), 1, 10, playDate)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Nil(t, rules[0].CourtID)
	require.NotNil(t, rules[0].DayOfWeek)
	assert.Equal(t, time.Saturday, *rules[0].DayOfWeek)
	assert.Nil(t, rules[0].StartTime)
	assert.Equal(t, model.RuleMultiplier, rules[0].RuleType)

	require.NotNil(t, rules[1].CourtID)
	assert.Equal(t, uint64(10), *rules[1].CourtID)
	assert.Nil(t, rules[1].DayOfWeek)
	require.NotNil(t, rules[1].StartTime)
	assert.Equal(t, model.TimeOfDay(18*60), *rules[1].StartTime)
	assert.Equal(t, "30000.0000", rules[1].PriceValue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWithTx(t *testing.T) {
	db, mock := newMock(t)
	store := NewStore(db, clock.NewFake(fixedNow))
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE slot_holds SET status = ?")).
			WithArgs("expired", "h1", "reserved").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithTx(ctx, func(tx booking.Tx) error {
			return tx.SetHoldStatus(ctx, "h1", model.HoldReserved, model.HoldExpired)
		})
		require.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		sentinel := errors.New("abort")
		err := store.WithTx(ctx, func(booking.Tx) error { return sentinel })
		assert.ErrorIs(t, err, sentinel)
	})

	t.Run("lock timeout", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF sa")).
			WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
		mock.ExpectRollback()

		err := store.WithTx(ctx, func(tx booking.Tx) error {
			_, err := tx.LockSlotsByID(ctx, []uint64{1})
			return err
		})
		assert.ErrorIs(t, err, booking.ErrLockTimeout)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
