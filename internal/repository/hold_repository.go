package repository // repository for slot hold persistence

import (
    "context"      // context for managing deadlines
    "database/sql" // sql provides DB interfaces
    "fmt"
    "time"

    "github.com/iliyamo/court-slot-booking/internal/booking"
    "github.com/iliyamo/court-slot-booking/internal/model"
)

// HoldRepo manages slot_holds.  The hold row carries the window and the
// quoted amount; the ledger rows point back to it through hold_id.
type HoldRepo struct {
    db *sql.DB
}

// NewHoldRepo constructs a HoldRepo.
func NewHoldRepo(db *sql.DB) *HoldRepo {
    return &HoldRepo{db: db}
}

const holdColumns = `id, court_id, hold_date, start_time, end_time, user_id, quoted_amount, expires_at, status, created_at`

func scanHold(row scanner) (model.Hold, error) {
    var h model.Hold
    if err := row.Scan(&h.ID, &h.CourtID, &h.HoldDate, &h.StartTime, &h.EndTime, &h.UserID,
        &h.QuotedAmount, &h.ExpiresAt, &h.Status, &h.CreatedAt); err != nil {
        return model.Hold{}, translate(err)
    }
    h.ExpiresAt = h.ExpiresAt.UTC()
    h.CreatedAt = h.CreatedAt.UTC()
    return h, nil
}

func queryHolds(ctx context.Context, q querier, query string, args ...any) ([]model.Hold, error) {
    rows, err := q.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, translate(err)
    }
    defer rows.Close()
    var out []model.Hold
    for rows.Next() {
        h, err := scanHold(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, h)
    }
    return out, translate(rows.Err())
}

// CreateTx inserts a hold.
func (r *HoldRepo) CreateTx(ctx context.Context, tx *sql.Tx, h model.Hold) error {
    const q = `INSERT INTO slot_holds (` + holdColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    _, err := tx.ExecContext(ctx, q, h.ID, h.CourtID, dateArg(h.HoldDate), h.StartTime, h.EndTime, h.UserID,
        h.QuotedAmount, h.ExpiresAt.UTC(), string(h.Status), h.CreatedAt.UTC())
    return translate(err)
}

// Get returns the hold with the given id.
func (r *HoldRepo) Get(ctx context.Context, id string) (model.Hold, error) {
    const q = `SELECT ` + holdColumns + ` FROM slot_holds WHERE id = ?`
    return scanHold(r.db.QueryRowContext(ctx, q, id))
}

// LockTx selects the hold FOR UPDATE.
func (r *HoldRepo) LockTx(ctx context.Context, tx *sql.Tx, id string) (model.Hold, error) {
    const q = `SELECT ` + holdColumns + ` FROM slot_holds WHERE id = ? FOR UPDATE`
    return scanHold(tx.QueryRowContext(ctx, q, id))
}

// ActiveByUser lists the unexpired reserved holds of a user, soonest
// expiry first.
func (r *HoldRepo) ActiveByUser(ctx context.Context, userID uint64, now time.Time) ([]model.Hold, error) {
    const q = `SELECT ` + holdColumns + `
FROM slot_holds
WHERE user_id = ? AND status = 'reserved' AND expires_at > ?
ORDER BY expires_at ASC`
    return queryHolds(ctx, r.db, q, userID, now.UTC())
}

// Expired lists up to limit reserved holds whose expiry has passed.
func (r *HoldRepo) Expired(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
    const q = `SELECT ` + holdColumns + `
FROM slot_holds
WHERE status = 'reserved' AND expires_at <= ?
ORDER BY expires_at ASC
LIMIT ?`
    return queryHolds(ctx, r.db, q, now.UTC(), limit)
}

// SetStatusTx moves a hold from one status to another.  The from status
// acts as the optimistic guard: a hold that already left it is reported as
// booking.ErrVersionConflict, a missing hold as booking.ErrNotFound.
func (r *HoldRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to model.HoldStatus) error {
    const q = `UPDATE slot_holds SET status = ? WHERE id = ? AND status = ?`
    res, err := tx.ExecContext(ctx, q, string(to), id, string(from))
    if err != nil {
        return translate(err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n > 0 {
        return nil
    }
    var exists int
    if err := tx.QueryRowContext(ctx, `SELECT 1 FROM slot_holds WHERE id = ?`, id).Scan(&exists); err != nil {
        return translate(err)
    }
    return fmt.Errorf("%w: hold %s is not %s", booking.ErrVersionConflict, id, from)
}
