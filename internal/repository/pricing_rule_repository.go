package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/court-slot-booking/internal/model"
)

// PricingRuleRepo reads and writes pricing_rules.
type PricingRuleRepo struct {
    db *sql.DB
}

// NewPricingRuleRepo constructs a PricingRuleRepo.
func NewPricingRuleRepo(db *sql.DB) *PricingRuleRepo {
    return &PricingRuleRepo{db: db}
}

const ruleColumns = `id, venue_id, court_id, rule_type, day_of_week, start_time, end_time,
       price_value, valid_from, valid_to, priority, is_active`

func scanRule(row scanner) (model.PricingRule, error) {
    var (
        r       model.PricingRule
        courtID sql.NullInt64
        day     sql.NullInt16
        start   sql.NullString
        end     sql.NullString
    )
    if err := row.Scan(&r.ID, &r.VenueID, &courtID, &r.RuleType, &day, &start, &end,
        &r.PriceValue, &r.ValidFrom, &r.ValidTo, &r.Priority, &r.IsActive); err != nil {
        return model.PricingRule{}, translate(err)
    }
    if courtID.Valid {
        id := uint64(courtID.Int64)
        r.CourtID = &id
    }
    if day.Valid {
        wd := time.Weekday(day.Int16)
        r.DayOfWeek = &wd
    }
    var err error
    if r.StartTime, err = nullTimeOfDay(start); err != nil {
        return model.PricingRule{}, err
    }
    if r.EndTime, err = nullTimeOfDay(end); err != nil {
        return model.PricingRule{}, err
    }
    return r, nil
}

func nullTimeOfDay(ns sql.NullString) (*model.TimeOfDay, error) {
    if !ns.Valid {
        return nil, nil
    }
    t, err := model.ParseTimeOfDay(ns.String)
    if err != nil {
        return nil, err
    }
    return &t, nil
}

// ActiveFor returns the active rules of a venue that apply to the court,
// either naming it or leaving court_id empty, and are valid on date.
func (r *PricingRuleRepo) ActiveFor(ctx context.Context, venueID, courtID uint64, date time.Time) ([]model.PricingRule, error) {
    const q = `SELECT ` + ruleColumns + `
FROM pricing_rules
WHERE venue_id = ? AND is_active = 1
  AND (court_id IS NULL OR court_id = ?)
  AND valid_from <= ? AND valid_to >= ?
ORDER BY priority DESC, id ASC`
    d := dateArg(date)
    rows, err := r.db.QueryContext(ctx, q, venueID, courtID, d, d)
    if err != nil {
        return nil, translate(err)
    }
    defer rows.Close()
    var out []model.PricingRule
    for rows.Next() {
        rule, err := scanRule(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, rule)
    }
    return out, translate(rows.Err())
}

// Create inserts a rule and sets its id.
func (r *PricingRuleRepo) Create(ctx context.Context, rule *model.PricingRule) error {
    const q = `INSERT INTO pricing_rules
(venue_id, court_id, rule_type, day_of_week, start_time, end_time, price_value, valid_from, valid_to, priority, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    var (
        courtID sql.NullInt64
        day     sql.NullInt16
        start   sql.NullString
        end     sql.NullString
    )
    if rule.CourtID != nil {
        courtID = sql.NullInt64{Int64: int64(*rule.CourtID), Valid: true}
    }
    if rule.DayOfWeek != nil {
        day = sql.NullInt16{Int16: int16(*rule.DayOfWeek), Valid: true}
    }
    if rule.StartTime != nil {
        start = sql.NullString{String: rule.StartTime.String() + ":00", Valid: true}
    }
    if rule.EndTime != nil {
        end = sql.NullString{String: rule.EndTime.String() + ":00", Valid: true}
    }
    res, err := r.db.ExecContext(ctx, q, rule.VenueID, courtID, string(rule.RuleType), day, start, end,
        rule.PriceValue, dateArg(rule.ValidFrom), dateArg(rule.ValidTo), rule.Priority, rule.IsActive)
    if err != nil {
        return translate(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    rule.ID = uint64(id)
    return nil
}
