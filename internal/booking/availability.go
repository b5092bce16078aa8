package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-slot-booking/internal/model"
	"github.com/iliyamo/court-slot-booking/internal/pricing"
)

// SlotView is one ledger row as shown to clients.
type SlotView struct {
	SlotID       uint64          `json:"slot_id,omitempty"` // zero when the row is not materialized
	DefinitionID uint64          `json:"time_slot_definition_id"`
	StartTime    model.TimeOfDay `json:"start_time"`
	EndTime      model.TimeOfDay `json:"end_time"`
	State        model.SlotState `json:"state"`
	Price        int64           `json:"price"`
}

// civil truncates t to its calendar date at midnight UTC.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) activeCourt(ctx context.Context, courtID uint64) (model.Court, error) {
	c, err := s.store.Court(ctx, courtID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Court{}, fmt.Errorf("court %d: %w", courtID, ErrNotFound)
		}
		return model.Court{}, fmt.Errorf("load court: %w", err)
	}
	if !c.IsActive {
		return model.Court{}, fmt.Errorf("court %d is inactive: %w", courtID, ErrNotFound)
	}
	return c, nil
}

// QueryAvailability returns the slots of a court on date with their
// effective state and single-slot price.  Missing ledger rows are
// materialized first when date lies inside the booking horizon; nothing
// else is written and nothing is locked.
func (s *Service) QueryAvailability(ctx context.Context, courtID uint64, date time.Time) ([]SlotView, error) {
	if courtID == 0 {
		return nil, invalid("court_id", "required")
	}
	date = civil(date)
	court, err := s.activeCourt(ctx, courtID)
	if err != nil {
		return nil, err
	}
	defs, err := s.store.Definitions(ctx, courtID, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	if len(defs) == 0 {
		return []SlotView{}, nil
	}
	// Rows are only materialized inside the booking horizon; other dates
	// are answered from whatever rows already exist.
	if s.withinHorizon(date) {
		if err := s.store.EnsureSlots(ctx, courtID, date, definitionIDs(defs)); err != nil {
			return nil, fmt.Errorf("materialize slots: %w", err)
		}
	}
	rows, err := s.store.Slots(ctx, courtID, date)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	rules, err := s.store.Rules(ctx, court.VenueID, courtID, date)
	if err != nil {
		return nil, fmt.Errorf("load pricing rules: %w", err)
	}

	byDef := make(map[uint64]model.SlotAvailability, len(rows))
	for _, row := range rows {
		byDef[row.DefinitionID] = row
	}
	now := s.now()
	out := make([]SlotView, 0, len(defs))
	for _, d := range defs {
		view := SlotView{DefinitionID: d.ID, StartTime: d.StartTime, EndTime: d.EndTime, State: model.SlotAvailable}
		if row, ok := byDef[d.ID]; ok {
			if !row.Consistent() {
				s.log.WithFields(logrus.Fields{
					"slot_id": row.ID, "state": row.State, "court_id": courtID, "date": date.Format(model.DateLayout),
				}).Error("ledger row in impossible state")
				return nil, fmt.Errorf("slot %d: %w", row.ID, ErrInvariantViolation)
			}
			view.SlotID = row.ID
			view.State = row.EffectiveState(now)
		}
		price, err := pricing.SlotPrice(d, date, rules)
		if err != nil {
			return nil, err
		}
		view.Price = price
		out = append(out, view)
	}
	return out, nil
}

// cover resolves the catalog windows tiling [start, end) on date.
func (s *Service) cover(ctx context.Context, courtID uint64, date time.Time, start, end model.TimeOfDay) ([]model.TimeSlotDefinition, error) {
	defs, err := s.store.Definitions(ctx, courtID, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	return pricing.Cover(defs, start, end)
}

func (s *Service) price(ctx context.Context, court model.Court, date time.Time, covered []model.TimeSlotDefinition) (int64, error) {
	rules, err := s.store.Rules(ctx, court.VenueID, court.ID, date)
	if err != nil {
		return 0, fmt.Errorf("load pricing rules: %w", err)
	}
	return pricing.Price(covered, date, rules)
}

// withinHorizon reports whether date lies between today and today plus the
// booking horizon, both in the venue zone.
func (s *Service) withinHorizon(date time.Time) bool {
	today := s.today()
	return !date.Before(today) && !date.After(today.AddDate(0, 0, s.opts.HorizonDays))
}

func validateWindow(date time.Time, start, end model.TimeOfDay) error {
	if date.IsZero() {
		return invalid("date", "required")
	}
	if start < 0 || end > model.MinutesPerDay {
		return invalid("start_time", "out of range")
	}
	if start >= end {
		return invalid("end_time", "must be after start_time")
	}
	return nil
}

// CalculatePrice quotes the slot amount for [start, end) on date.  It is a
// pure read: the same inputs over unchanged catalog and rules give the same
// amount.
func (s *Service) CalculatePrice(ctx context.Context, venueID, courtID uint64, date time.Time, start, end model.TimeOfDay) (int64, error) {
	if venueID == 0 {
		return 0, invalid("venue_id", "required")
	}
	if courtID == 0 {
		return 0, invalid("court_id", "required")
	}
	if err := validateWindow(date, start, end); err != nil {
		return 0, err
	}
	date = civil(date)
	court, err := s.activeCourt(ctx, courtID)
	if err != nil {
		return 0, err
	}
	if court.VenueID != venueID {
		return 0, fmt.Errorf("court %d is not in venue %d: %w", courtID, venueID, ErrNotFound)
	}
	covered, err := s.cover(ctx, courtID, date, start, end)
	if err != nil {
		return 0, err
	}
	return s.price(ctx, court, date, covered)
}
