package repository // repository for bookings and their slot lines

import (
    "context"      // context for managing deadlines
    "database/sql" // sql provides DB interfaces
    "fmt"
    "strings"
    "time"

    "github.com/iliyamo/court-slot-booking/internal/booking"
    "github.com/iliyamo/court-slot-booking/internal/model"
)

// BookingRepo persists bookings and booking_slots.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo constructs a BookingRepo.
func NewBookingRepo(db *sql.DB) *BookingRepo {
    return &BookingRepo{db: db}
}

const bookingColumns = `id, booking_reference, user_id, venue_id, court_id, game_type_id, booking_date,
       start_time, end_time, total_slots, slot_amount, service_fee, total_amount, status,
       payment_status, payment_ref, check_in_status, check_in_time, check_in_code_hash,
       qr_code_url, cancellation_reason, cancelled_at, hold_id, version, created_at, updated_at`

func scanBooking(row scanner) (model.Booking, error) {
    var (
        b           model.Booking
        gameType    sql.NullInt64
        paymentRef  sql.NullString
        checkInTime sql.NullTime
        qr          sql.NullString
        reason      sql.NullString
        cancelledAt sql.NullTime
        holdID      sql.NullString
    )
    err := row.Scan(&b.ID, &b.BookingReference, &b.UserID, &b.VenueID, &b.CourtID, &gameType, &b.BookingDate,
        &b.StartTime, &b.EndTime, &b.TotalSlots, &b.SlotAmount, &b.ServiceFee, &b.TotalAmount, &b.Status,
        &b.PaymentStatus, &paymentRef, &b.CheckInStatus, &checkInTime, &b.CheckInCodeHash,
        &qr, &reason, &cancelledAt, &holdID, &b.Version, &b.CreatedAt, &b.UpdatedAt)
    if err != nil {
        return model.Booking{}, translate(err)
    }
    if gameType.Valid {
        id := uint64(gameType.Int64)
        b.GameTypeID = &id
    }
    b.PaymentRef = nullString(paymentRef)
    b.QRCodeURL = nullString(qr)
    b.CancellationReason = nullString(reason)
    b.HoldID = nullString(holdID)
    b.CheckInTime = nullTime(checkInTime)
    b.CancelledAt = nullTime(cancelledAt)
    b.CreatedAt = b.CreatedAt.UTC()
    b.UpdatedAt = b.UpdatedAt.UTC()
    return b, nil
}

func nullString(ns sql.NullString) *string {
    if !ns.Valid {
        return nil
    }
    s := ns.String
    return &s
}

func nullTime(nt sql.NullTime) *time.Time {
    if !nt.Valid {
        return nil
    }
    t := nt.Time.UTC()
    return &t
}

func toNullString(s *string) sql.NullString {
    if s == nil {
        return sql.NullString{}
    }
    return sql.NullString{String: *s, Valid: true}
}

func toNullTime(t *time.Time) sql.NullTime {
    if t == nil {
        return sql.NullTime{}
    }
    return sql.NullTime{Time: t.UTC(), Valid: true}
}

// loadSlots attaches the booking_slots lines ordered by sequence.
func (r *BookingRepo) loadSlots(ctx context.Context, q querier, b *model.Booking) error {
    const sq = `SELECT id, booking_id, slot_availability_id, slot_sequence
FROM booking_slots WHERE booking_id = ? ORDER BY slot_sequence ASC`
    rows, err := q.QueryContext(ctx, sq, b.ID)
    if err != nil {
        return translate(err)
    }
    defer rows.Close()
    b.Slots = b.Slots[:0]
    for rows.Next() {
        var s model.BookingSlot
        if err := rows.Scan(&s.ID, &s.BookingID, &s.SlotAvailabilityID, &s.SlotSequence); err != nil {
            return err
        }
        b.Slots = append(b.Slots, s)
    }
    return translate(rows.Err())
}

func (r *BookingRepo) getOne(ctx context.Context, q querier, query string, arg any) (model.Booking, error) {
    b, err := scanBooking(q.QueryRowContext(ctx, query, arg))
    if err != nil {
        return model.Booking{}, err
    }
    if err := r.loadSlots(ctx, q, &b); err != nil {
        return model.Booking{}, err
    }
    return b, nil
}

// CreateTx inserts the booking and one booking_slots line per entry of
// b.Slots, then fills in the generated ids.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
    const q = `INSERT INTO bookings
(booking_reference, user_id, venue_id, court_id, game_type_id, booking_date, start_time, end_time,
 total_slots, slot_amount, service_fee, total_amount, status, payment_status, payment_ref,
 check_in_status, check_in_time, check_in_code_hash, qr_code_url, cancellation_reason, cancelled_at,
 hold_id, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    var gameType sql.NullInt64
    if b.GameTypeID != nil {
        gameType = sql.NullInt64{Int64: int64(*b.GameTypeID), Valid: true}
    }
    if b.UpdatedAt.IsZero() {
        b.UpdatedAt = b.CreatedAt
    }
    res, err := tx.ExecContext(ctx, q,
        b.BookingReference, b.UserID, b.VenueID, b.CourtID, gameType, dateArg(b.BookingDate), b.StartTime, b.EndTime,
        b.TotalSlots, b.SlotAmount, b.ServiceFee, b.TotalAmount, string(b.Status), string(b.PaymentStatus), toNullString(b.PaymentRef),
        string(b.CheckInStatus), toNullTime(b.CheckInTime), b.CheckInCodeHash, toNullString(b.QRCodeURL), toNullString(b.CancellationReason), toNullTime(b.CancelledAt),
        toNullString(b.HoldID), b.Version, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
    if err != nil {
        return translate(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    b.ID = uint64(id)
    if len(b.Slots) == 0 {
        return nil
    }

    var sb strings.Builder
    sb.WriteString("INSERT INTO booking_slots (booking_id, slot_availability_id, slot_sequence) VALUES ")
    args := make([]any, 0, len(b.Slots)*3)
    for i := range b.Slots {
        if i > 0 {
            sb.WriteString(", ")
        }
        sb.WriteString("(?, ?, ?)")
        b.Slots[i].BookingID = b.ID
        args = append(args, b.ID, b.Slots[i].SlotAvailabilityID, b.Slots[i].SlotSequence)
    }
    if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
        return translate(err)
    }
    return r.loadSlots(ctx, tx, b)
}

// GetByID returns a booking with its slot lines.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
    return r.getOne(ctx, r.db, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
}

// GetByReference returns the booking carrying the public reference.
func (r *BookingRepo) GetByReference(ctx context.Context, ref string) (model.Booking, error) {
    return r.getOne(ctx, r.db, `SELECT `+bookingColumns+` FROM bookings WHERE booking_reference = ?`, ref)
}

// LockTx selects the booking FOR UPDATE.
func (r *BookingRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Booking, error) {
    return r.getOne(ctx, tx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id)
}

// ReferenceExists reports whether a booking already uses ref.
func (r *BookingRepo) ReferenceExists(ctx context.Context, ref string) (bool, error) {
    var n int
    if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE booking_reference = ?`, ref).Scan(&n); err != nil {
        return false, translate(err)
    }
    return n > 0, nil
}

// UpdateTx writes the mutable lifecycle columns of b guarded by b.Version.
func (r *BookingRepo) UpdateTx(ctx context.Context, tx *sql.Tx, b model.Booking, now time.Time) error {
    const q = `UPDATE bookings
SET status = ?, payment_status = ?, payment_ref = ?, check_in_status = ?, check_in_time = ?,
    cancellation_reason = ?, cancelled_at = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?`
    res, err := tx.ExecContext(ctx, q, string(b.Status), string(b.PaymentStatus), toNullString(b.PaymentRef),
        string(b.CheckInStatus), toNullTime(b.CheckInTime), toNullString(b.CancellationReason), toNullTime(b.CancelledAt),
        now.UTC(), b.ID, b.Version)
    if err != nil {
        return translate(err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return fmt.Errorf("%w: booking %d at version %d", booking.ErrVersionConflict, b.ID, b.Version)
    }
    return nil
}

func (r *BookingRepo) queryMany(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
    rows, err := r.db.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, translate(err)
    }
    var out []model.Booking
    for rows.Next() {
        b, err := scanBooking(rows)
        if err != nil {
            rows.Close()
            return nil, err
        }
        out = append(out, b)
    }
    err = rows.Err()
    rows.Close()
    if err != nil {
        return nil, translate(err)
    }
    // Slot lines are loaded after the cursor is closed; a single
    // connection cannot serve two open result sets.
    for i := range out {
        if err := r.loadSlots(ctx, r.db, &out[i]); err != nil {
            return nil, err
        }
    }
    return out, nil
}

// List returns bookings matching f, newest first.
func (r *BookingRepo) List(ctx context.Context, f booking.Filter) ([]model.Booking, error) {
    var (
        where []string
        args  []any
    )
    if f.UserID != 0 {
        where = append(where, "user_id = ?")
        args = append(args, f.UserID)
    }
    if f.CourtID != 0 {
        where = append(where, "court_id = ?")
        args = append(args, f.CourtID)
    }
    if f.Status != "" {
        where = append(where, "status = ?")
        args = append(args, string(f.Status))
    }
    if f.Date != nil {
        where = append(where, "booking_date = ?")
        args = append(args, dateArg(*f.Date))
    }
    q := `SELECT ` + bookingColumns + ` FROM bookings`
    if len(where) > 0 {
        q += ` WHERE ` + strings.Join(where, " AND ")
    }
    q += ` ORDER BY created_at DESC, id DESC`
    if f.Limit > 0 {
        q += ` LIMIT ? OFFSET ?`
        args = append(args, f.Limit, f.Offset)
    }
    return r.queryMany(ctx, q, args...)
}

// Overdue lists confirmed bookings never checked in whose date is on or
// before the given date.
func (r *BookingRepo) Overdue(ctx context.Context, onOrBefore time.Time) ([]model.Booking, error) {
    const q = `SELECT ` + bookingColumns + `
FROM bookings
WHERE status = 'confirmed' AND check_in_status = 'not_checked_in' AND booking_date <= ?
ORDER BY booking_date ASC, end_time ASC`
    return r.queryMany(ctx, q, dateArg(onOrBefore))
}
