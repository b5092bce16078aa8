package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-slot-booking/internal/model"
)

// ReserveRequest asks for a hold on a contiguous window.
type ReserveRequest struct {
	CourtID uint64
	Date    time.Time
	Start   model.TimeOfDay
	End     model.TimeOfDay
	UserID  uint64
	// TTL defaults to the service hold TTL when zero.
	TTL time.Duration
}

func (s *Service) validateReserve(r *ReserveRequest) error {
	if r.CourtID == 0 {
		return invalid("court_id", "required")
	}
	if r.UserID == 0 {
		return invalid("user_id", "required")
	}
	if err := validateWindow(r.Date, r.Start, r.End); err != nil {
		return err
	}
	if r.TTL == 0 {
		r.TTL = s.opts.HoldTTL
	}
	if r.TTL < 0 || r.TTL > s.opts.MaxHoldTTL {
		return invalid("ttl", fmt.Sprintf("must be between 1s and %s", s.opts.MaxHoldTTL))
	}
	r.Date = civil(r.Date)
	if !r.End.On(r.Date, s.opts.Location).After(s.now()) {
		return invalid("date", "window is in the past")
	}
	if !s.withinHorizon(r.Date) {
		return invalid("date", fmt.Sprintf("must be within %d days", s.opts.HorizonDays))
	}
	return nil
}

// ReserveSlot places a hold on every slot covering the window.  Either all
// covering slots become held by the new hold or none change.
func (s *Service) ReserveSlot(ctx context.Context, req ReserveRequest) (model.Hold, error) {
	if err := s.validateReserve(&req); err != nil {
		return model.Hold{}, err
	}
	court, err := s.activeCourt(ctx, req.CourtID)
	if err != nil {
		return model.Hold{}, err
	}
	covered, err := s.cover(ctx, req.CourtID, req.Date, req.Start, req.End)
	if err != nil {
		return model.Hold{}, err
	}
	quote, err := s.price(ctx, court, req.Date, covered)
	if err != nil {
		return model.Hold{}, err
	}

	now := s.now()
	hold := model.Hold{
		ID:           uuid.NewString(),
		CourtID:      req.CourtID,
		HoldDate:     req.Date,
		StartTime:    req.Start,
		EndTime:      req.End,
		UserID:       req.UserID,
		QuotedAmount: quote,
		ExpiresAt:    now.Add(req.TTL),
		Status:       model.HoldReserved,
		CreatedAt:    now,
	}
	defIDs := definitionIDs(covered)

	err = s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.EnsureSlots(ctx, req.CourtID, req.Date, defIDs); err != nil {
			return err
		}
		rows, err := tx.LockSlots(ctx, req.CourtID, req.Date, defIDs)
		if err != nil {
			return err
		}
		if len(rows) != len(defIDs) {
			return fmt.Errorf("locked %d of %d slots: %w", len(rows), len(defIDs), ErrInvariantViolation)
		}
		lapsed := map[string]bool{}
		for _, row := range rows {
			if !row.Consistent() {
				return fmt.Errorf("slot %d: %w", row.ID, ErrInvariantViolation)
			}
			if row.EffectiveState(now) != model.SlotAvailable {
				return fmt.Errorf("slot %d is %s: %w", row.ID, row.State, ErrSlotUnavailable)
			}
			if row.State == model.SlotHeld {
				lapsed[*row.HoldID] = true
			}
		}
		if err := s.expireHolds(ctx, tx, lapsed); err != nil {
			return err
		}
		if err := tx.CreateHold(ctx, hold); err != nil {
			return err
		}
		for _, row := range rows {
			row.State = model.SlotHeld
			row.BookingID = nil
			row.HoldID = &hold.ID
			row.HoldExpiry = &hold.ExpiresAt
			if err := tx.UpdateSlot(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Hold{}, contention(err)
	}
	s.log.WithFields(logrus.Fields{
		"hold_id": hold.ID, "court_id": hold.CourtID, "user_id": hold.UserID,
		"date": hold.HoldDate.Format(model.DateLayout), "start": hold.StartTime, "end": hold.EndTime,
	}).Info("hold placed")
	return hold, nil
}

// expireHolds marks lapsed holds discovered under slot locks as expired.
// A hold already moved on by another writer is left alone.
func (s *Service) expireHolds(ctx context.Context, tx Tx, holdIDs map[string]bool) error {
	for id := range holdIDs {
		err := tx.SetHoldStatus(ctx, id, model.HoldReserved, model.HoldExpired)
		if err != nil && !errors.Is(err, ErrVersionConflict) && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// ReleaseHold cancels an active hold owned by userID and frees its slots.
func (s *Service) ReleaseHold(ctx context.Context, holdID string, userID uint64) error {
	if holdID == "" {
		return invalid("reservation_id", "required")
	}
	h, err := s.store.Hold(ctx, holdID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("hold %s: %w", holdID, ErrNotFound)
		}
		return fmt.Errorf("load hold: %w", err)
	}
	if h.UserID != userID {
		return ErrForbidden
	}
	now := s.now()
	err = s.store.WithTx(ctx, func(tx Tx) error {
		rows, err := tx.LockSlotsByHold(ctx, holdID)
		if err != nil {
			return err
		}
		h, err := tx.LockHold(ctx, holdID)
		if err != nil {
			return err
		}
		if !h.Active(now) {
			return fmt.Errorf("hold %s is %s: %w", holdID, h.Status, ErrHoldNotActive)
		}
		if err := freeSlots(ctx, tx, rows, holdID); err != nil {
			return err
		}
		return tx.SetHoldStatus(ctx, holdID, model.HoldReserved, model.HoldReleased)
	})
	if err != nil {
		return contention(err)
	}
	s.log.WithFields(logrus.Fields{"hold_id": holdID, "user_id": userID}).Info("hold released")
	return nil
}

// freeSlots returns the rows still held by holdID to available.
func freeSlots(ctx context.Context, tx Tx, rows []model.SlotAvailability, holdID string) error {
	for _, row := range rows {
		if row.State != model.SlotHeld || row.HoldID == nil || *row.HoldID != holdID {
			continue
		}
		row.State = model.SlotAvailable
		row.HoldID = nil
		row.HoldExpiry = nil
		row.BookingID = nil
		if err := tx.UpdateSlot(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// SweepExpiredHolds eagerly expires lapsed holds, one transaction per hold,
// and returns how many were expired.  Readers never depend on it: a lapsed
// hold is already treated as available.
func (s *Service) SweepExpiredHolds(ctx context.Context) (int, error) {
	now := s.now()
	holds, err := s.store.ExpiredHolds(ctx, now, s.opts.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list expired holds: %w", err)
	}
	var (
		swept int
		errs  []error
	)
	for _, h := range holds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		done, err := s.sweepHold(ctx, h.ID, now)
		if err != nil {
			s.log.WithError(err).WithField("hold_id", h.ID).Warn("sweep: hold not expired")
			errs = append(errs, err)
			continue
		}
		if done {
			swept++
		}
	}
	return swept, errors.Join(errs...)
}

func (s *Service) sweepHold(ctx context.Context, holdID string, now time.Time) (bool, error) {
	done := false
	err := s.store.WithTx(ctx, func(tx Tx) error {
		rows, err := tx.LockSlotsByHold(ctx, holdID)
		if err != nil {
			return err
		}
		h, err := tx.LockHold(ctx, holdID)
		if err != nil {
			return err
		}
		if h.Status != model.HoldReserved || h.ExpiresAt.After(now) {
			return nil
		}
		if err := freeSlots(ctx, tx, rows, holdID); err != nil {
			return err
		}
		if err := tx.SetHoldStatus(ctx, holdID, model.HoldReserved, model.HoldExpired); err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}

// ListActiveHolds returns the caller's holds that still block others.
func (s *Service) ListActiveHolds(ctx context.Context, userID uint64) ([]model.Hold, error) {
	if userID == 0 {
		return nil, invalid("user_id", "required")
	}
	return s.store.ActiveHolds(ctx, userID, s.now())
}
