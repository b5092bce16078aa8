// This file holds data access for the time slot catalog.  A definition is
// the template of a bookable window on one court for one weekday; active
// definitions of one court and weekday never overlap.
package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides DB abstraction
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/court-slot-booking/internal/model"
)

// ErrCourtVenueMismatch indicates a definition naming a venue that does not
// own the court.
var ErrCourtVenueMismatch = errors.New("court does not belong to venue")

const definitionColumns = `id, venue_id, court_id, day_of_week, start_time, end_time, duration_minutes, base_price, is_active`

// CatalogRepo manages persistence for time slot definitions.
type CatalogRepo struct {
	db     *sql.DB
	venues *VenueRepo
}

// NewCatalogRepo constructs a CatalogRepo with the given DB handle.
func NewCatalogRepo(db *sql.DB, venues *VenueRepo) *CatalogRepo {
	return &CatalogRepo{db: db, venues: venues}
}

func scanDefinition(row scanner) (model.TimeSlotDefinition, error) {
	var d model.TimeSlotDefinition
	var day int
	if err := row.Scan(&d.ID, &d.VenueID, &d.CourtID, &day, &d.StartTime, &d.EndTime, &d.DurationMinutes, &d.BasePrice, &d.IsActive); err != nil {
		return model.TimeSlotDefinition{}, err
	}
	d.DayOfWeek = time.Weekday(day)
	return d, nil
}

// ActiveFor returns the active definitions of a court for one weekday
// ordered by start time.
func (r *CatalogRepo) ActiveFor(ctx context.Context, courtID uint64, day time.Weekday) ([]model.TimeSlotDefinition, error) {
	const q = `SELECT ` + definitionColumns + `
               FROM time_slot_definitions
               WHERE court_id = ? AND day_of_week = ? AND is_active = 1
               ORDER BY start_time ASC`
	rows, err := r.db.QueryContext(ctx, q, courtID, int(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []model.TimeSlotDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Create inserts a new definition after checking it against the court's
// active windows for the same weekday.  The court row is locked for the
// duration of the check so concurrent creates cannot both pass it.  It
// returns ErrConflict when the window overlaps, booking.ErrNotFound when
// the court does not exist and ErrCourtVenueMismatch when the venue does
// not own the court.
func (r *CatalogRepo) Create(ctx context.Context, d *model.TimeSlotDefinition) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// Ensure rollback or commit at the end
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	court, err := r.venues.LockCourtTx(ctx, tx, d.CourtID)
	if err != nil {
		return err
	}
	if court.VenueID != d.VenueID {
		return ErrCourtVenueMismatch
	}
	// A window overlaps when it starts before the proposed end and ends
	// after the proposed start.
	const overlapQ = `SELECT COUNT(*)
                      FROM time_slot_definitions
                      WHERE court_id = ? AND day_of_week = ? AND is_active = 1
                        AND NOT (end_time <= ? OR start_time >= ?)`
	var overlaps int
	if err = tx.QueryRowContext(ctx, overlapQ, d.CourtID, int(d.DayOfWeek), d.StartTime, d.EndTime).Scan(&overlaps); err != nil {
		return err
	}
	if overlaps > 0 {
		return fmt.Errorf("%w: window %s-%s overlaps %d active definition(s)", ErrConflict, d.StartTime, d.EndTime, overlaps)
	}

	const ins = `INSERT INTO time_slot_definitions
                 (venue_id, court_id, day_of_week, start_time, end_time, duration_minutes, base_price, is_active)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	d.DurationMinutes = int(d.EndTime - d.StartTime)
	res, err := tx.ExecContext(ctx, ins, d.VenueID, d.CourtID, int(d.DayOfWeek), d.StartTime, d.EndTime, d.DurationMinutes, d.BasePrice, d.IsActive)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	return nil
}
