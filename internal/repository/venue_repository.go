package repository // repository holds data access logic for domain entities

import (
    "context"      // context is used to manage deadlines and cancellation
    "database/sql" // sql provides DB primitives

    "github.com/iliyamo/court-slot-booking/internal/model"
)

// VenueRepo reads venues and courts.  Both are reference data owned by the
// directory service; this repository never writes them.
type VenueRepo struct {
    db *sql.DB // db is the underlying database connection
}

// NewVenueRepo constructs a VenueRepo with the given DB handle.
func NewVenueRepo(db *sql.DB) *VenueRepo {
    return &VenueRepo{db: db}
}

// GetVenue retrieves a venue by its ID.  It returns booking.ErrNotFound
// when no row is found.
func (r *VenueRepo) GetVenue(ctx context.Context, id uint64) (model.Venue, error) {
    const q = `SELECT id, name, address, phone FROM venues WHERE id = ?`
    var v model.Venue
    var phone sql.NullString
    if err := r.db.QueryRowContext(ctx, q, id).Scan(&v.ID, &v.Name, &v.Address, &phone); err != nil {
        return model.Venue{}, translate(err)
    }
    if phone.Valid {
        p := phone.String
        v.Phone = &p
    }
    return v, nil
}

// GetCourt retrieves a court by its ID.
func (r *VenueRepo) GetCourt(ctx context.Context, id uint64) (model.Court, error) {
    const q = `SELECT id, venue_id, name, court_type, is_active FROM courts WHERE id = ?`
    return scanCourt(r.db.QueryRowContext(ctx, q, id))
}

// LockCourtTx selects a court FOR UPDATE.  Catalog writers take this lock so
// overlap checks for one court are serialized.
func (r *VenueRepo) LockCourtTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Court, error) {
    const q = `SELECT id, venue_id, name, court_type, is_active FROM courts WHERE id = ? FOR UPDATE`
    return scanCourt(tx.QueryRowContext(ctx, q, id))
}

func scanCourt(row scanner) (model.Court, error) {
    var c model.Court
    if err := row.Scan(&c.ID, &c.VenueID, &c.Name, &c.CourtType, &c.IsActive); err != nil {
        return model.Court{}, translate(err)
    }
    return c, nil
}
