package repository // repository for the per-date slot ledger

import (
    "context"      // context for managing deadlines
    "database/sql" // sql provides DB interfaces
    "fmt"
    "strings"
    "time"

    "github.com/iliyamo/court-slot-booking/internal/booking"
    "github.com/iliyamo/court-slot-booking/internal/model"
)

// SlotRepo encapsulates database operations for slot_availability.  A row
// is the authoritative state of one definition on one date; every write is
// guarded by the row's version column.
type SlotRepo struct {
    db *sql.DB
}

// NewSlotRepo constructs a SlotRepo given a DB handle.
func NewSlotRepo(db *sql.DB) *SlotRepo {
    return &SlotRepo{db: db}
}

// slotSelect joins each ledger row with its definition so callers get the
// window and base price without a second query.
const slotSelect = `SELECT sa.id, sa.court_id, sa.slot_date, sa.time_slot_definition_id, sa.state,
       sa.booking_id, sa.hold_id, sa.hold_expiry, sa.version,
       d.id, d.venue_id, d.court_id, d.day_of_week, d.start_time, d.end_time,
       d.duration_minutes, d.base_price, d.is_active
FROM slot_availability sa
JOIN time_slot_definitions d ON d.id = sa.time_slot_definition_id`

func scanSlot(row scanner) (model.SlotAvailability, error) {
    var (
        s         model.SlotAvailability
        bookingID sql.NullInt64
        holdID    sql.NullString
        expiry    sql.NullTime
        day       int
    )
    d := &s.Definition
    err := row.Scan(&s.ID, &s.CourtID, &s.SlotDate, &s.DefinitionID, &s.State,
        &bookingID, &holdID, &expiry, &s.Version,
        &d.ID, &d.VenueID, &d.CourtID, &day, &d.StartTime, &d.EndTime,
        &d.DurationMinutes, &d.BasePrice, &d.IsActive)
    if err != nil {
        return model.SlotAvailability{}, err
    }
    d.DayOfWeek = time.Weekday(day)
    if bookingID.Valid {
        id := uint64(bookingID.Int64)
        s.BookingID = &id
    }
    if holdID.Valid {
        h := holdID.String
        s.HoldID = &h
    }
    if expiry.Valid {
        e := expiry.Time.UTC()
        s.HoldExpiry = &e
    }
    return s, nil
}

func querySlots(ctx context.Context, q querier, query string, args ...any) ([]model.SlotAvailability, error) {
    rows, err := q.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, translate(err)
    }
    defer rows.Close()
    var out []model.SlotAvailability
    for rows.Next() {
        s, err := scanSlot(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, s)
    }
    if err := rows.Err(); err != nil {
        return nil, translate(err)
    }
    return out, nil
}

// Ensure materializes one available row per definition for the date.
// Existing rows are left untouched by INSERT IGNORE against the
// (court_id, slot_date, time_slot_definition_id) unique key.
func (r *SlotRepo) Ensure(ctx context.Context, q querier, courtID uint64, date time.Time, definitionIDs []uint64) error {
    if len(definitionIDs) == 0 {
        return nil
    }
    var sb strings.Builder
    sb.WriteString("INSERT IGNORE INTO slot_availability (court_id, slot_date, time_slot_definition_id, state, version) VALUES ")
    args := make([]any, 0, len(definitionIDs)*3)
    for i, id := range definitionIDs {
        if i > 0 {
            sb.WriteString(", ")
        }
        sb.WriteString("(?, ?, ?, 'available', 1)")
        args = append(args, courtID, dateArg(date), id)
    }
    if _, err := q.ExecContext(ctx, sb.String(), args...); err != nil {
        return translate(err)
    }
    return nil
}

// ForDate returns the ledger rows of a court and date ordered by start time.
func (r *SlotRepo) ForDate(ctx context.Context, courtID uint64, date time.Time) ([]model.SlotAvailability, error) {
    const q = slotSelect + `
WHERE sa.court_id = ? AND sa.slot_date = ?
ORDER BY d.start_time ASC`
    return querySlots(ctx, r.db, q, courtID, dateArg(date))
}

// LockTx locks the rows of the given definitions on a date.  Rows are
// locked in ascending id order so concurrent writers cannot deadlock each
// other on the ledger.
func (r *SlotRepo) LockTx(ctx context.Context, tx *sql.Tx, courtID uint64, date time.Time, definitionIDs []uint64) ([]model.SlotAvailability, error) {
    if len(definitionIDs) == 0 {
        return nil, nil
    }
    q := slotSelect + `
WHERE sa.court_id = ? AND sa.slot_date = ? AND sa.time_slot_definition_id IN (` + placeholders(len(definitionIDs)) + `)
ORDER BY sa.id ASC
FOR UPDATE OF sa`
    args := []any{courtID, dateArg(date)}
    for _, id := range definitionIDs {
        args = append(args, id)
    }
    return querySlots(ctx, tx, q, args...)
}

// LockByIDsTx locks the given rows in ascending id order.
func (r *SlotRepo) LockByIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]model.SlotAvailability, error) {
    if len(ids) == 0 {
        return nil, nil
    }
    q := slotSelect + `
WHERE sa.id IN (` + placeholders(len(ids)) + `)
ORDER BY sa.id ASC
FOR UPDATE OF sa`
    args := make([]any, len(ids))
    for i, id := range ids {
        args[i] = id
    }
    return querySlots(ctx, tx, q, args...)
}

// LockByHoldTx locks every row currently carrying the hold.
func (r *SlotRepo) LockByHoldTx(ctx context.Context, tx *sql.Tx, holdID string) ([]model.SlotAvailability, error) {
    const q = slotSelect + `
WHERE sa.hold_id = ?
ORDER BY sa.id ASC
FOR UPDATE OF sa`
    return querySlots(ctx, tx, q, holdID)
}

// UpdateTx writes the state columns of s when the stored version still
// matches s.Version.  A miss means another transaction moved the row first
// and is reported as booking.ErrVersionConflict.
func (r *SlotRepo) UpdateTx(ctx context.Context, tx *sql.Tx, s model.SlotAvailability, now time.Time) error {
    const q = `UPDATE slot_availability
SET state = ?, booking_id = ?, hold_id = ?, hold_expiry = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?`
    var (
        bookingID sql.NullInt64
        holdID    sql.NullString
        expiry    sql.NullTime
    )
    if s.BookingID != nil {
        bookingID = sql.NullInt64{Int64: int64(*s.BookingID), Valid: true}
    }
    if s.HoldID != nil {
        holdID = sql.NullString{String: *s.HoldID, Valid: true}
    }
    if s.HoldExpiry != nil {
        expiry = sql.NullTime{Time: s.HoldExpiry.UTC(), Valid: true}
    }
    res, err := tx.ExecContext(ctx, q, string(s.State), bookingID, holdID, expiry, now.UTC(), s.ID, s.Version)
    if err != nil {
        return translate(err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return fmt.Errorf("%w: slot %d at version %d", booking.ErrVersionConflict, s.ID, s.Version)
    }
    return nil
}
