package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-slot-booking/internal/model"
	"github.com/iliyamo/court-slot-booking/internal/utils"
)

// BookRequest asks for a booking of a contiguous window.
type BookRequest struct {
	CourtID    uint64
	VenueID    uint64
	Date       time.Time
	Start      model.TimeOfDay
	End        model.TimeOfDay
	UserID     uint64
	GameTypeID *uint64
	// TotalSlots must equal the number of catalog windows covering
	// [Start, End).  Zero means one.
	TotalSlots int
}

func (s *Service) validateBook(r *BookRequest) error {
	if r.CourtID == 0 {
		return invalid("court_id", "required")
	}
	if r.VenueID == 0 {
		return invalid("venue_id", "required")
	}
	if r.UserID == 0 {
		return invalid("user_id", "required")
	}
	if err := validateWindow(r.Date, r.Start, r.End); err != nil {
		return err
	}
	if r.TotalSlots == 0 {
		r.TotalSlots = 1
	}
	if r.TotalSlots < 0 {
		return invalid("total_slots", "must be at least 1")
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

// BookSlotsAtomic books every slot covering the window in one transaction.
// Slots must be available, held by a lapsed hold, or held by an active hold
// of the same user; otherwise ErrSlotConflict is returned and nothing
// changes.  There is no internal retry.
func (s *Service) BookSlotsAtomic(ctx context.Context, req BookRequest) (model.Booking, error) {
	if err := s.validateBook(&req); err != nil {
		return model.Booking{}, err
	}
	court, err := s.activeCourt(ctx, req.CourtID)
	if err != nil {
		return model.Booking{}, err
	}
	if court.VenueID != req.VenueID {
		return model.Booking{}, invalid("venue_id", "does not own the court")
	}
	covered, err := s.cover(ctx, req.CourtID, req.Date, req.Start, req.End)
	if err != nil {
		return model.Booking{}, err
	}
	if len(covered) != req.TotalSlots {
		return model.Booking{}, invalid("total_slots", fmt.Sprintf("window covers %d slots", len(covered)))
	}
	quoted, err := s.price(ctx, court, req.Date, covered)
	if err != nil {
		return model.Booking{}, err
	}

	ref, err := s.newReference(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	code, err := randomString(referenceAlpha, checkInCodeLength)
	if err != nil {
		return model.Booking{}, fmt.Errorf("generate check-in code: %w", err)
	}
	codeHash, err := utils.HashSecret(code, s.opts.BcryptCost)
	if err != nil {
		return model.Booking{}, fmt.Errorf("hash check-in code: %w", err)
	}
	verifyURL := strings.TrimRight(s.opts.PublicURL, "/") + "/verify-booking/" + ref

	now := s.now()
	defIDs := definitionIDs(covered)
	var b model.Booking

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

		own := map[string]model.Hold{}
		lapsed := map[string]bool{}
		for _, row := range rows {
			if !row.Consistent() {
				return fmt.Errorf("slot %d: %w", row.ID, ErrInvariantViolation)
			}
			switch row.State {
			case model.SlotAvailable:
			case model.SlotBooked:
				return fmt.Errorf("slot %d is booked: %w", row.ID, ErrSlotConflict)
			case model.SlotHeld:
				id := *row.HoldID
				if row.HoldExpired(now) {
					lapsed[id] = true
					continue
				}
				if _, ok := own[id]; ok {
					continue
				}
				h, err := tx.LockHold(ctx, id)
				if err != nil {
					return err
				}
				if h.UserID != req.UserID || !h.Active(now) {
					return fmt.Errorf("slot %d is held: %w", row.ID, ErrSlotConflict)
				}
				own[id] = h
			}
		}

		amount := quoted
		var holdID *string
		if h, ok := singleCoveringHold(own, rows); ok {
			holdID = &h.ID
			if h.CourtID == req.CourtID && h.HoldDate.Equal(req.Date) && h.StartTime == req.Start && h.EndTime == req.End {
				amount = h.QuotedAmount
			}
		}

		b = model.Booking{
			BookingReference: ref,
			UserID:           req.UserID,
			VenueID:          req.VenueID,
			CourtID:          req.CourtID,
			GameTypeID:       req.GameTypeID,
			BookingDate:      req.Date,
			StartTime:        req.Start,
			EndTime:          req.End,
			TotalSlots:       len(rows),
			SlotAmount:       amount,
			ServiceFee:       s.opts.ServiceFee,
			TotalAmount:      amount + s.opts.ServiceFee,
			Status:           model.BookingPending,
			PaymentStatus:    model.PaymentPending,
			CheckInStatus:    model.NotCheckedIn,
			CheckInCodeHash:  codeHash,
			QRCodeURL:        &verifyURL,
			HoldID:           holdID,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		// Slots are locked in id order; the sequence follows the window.
		for i, d := range covered {
			for _, row := range rows {
				if row.DefinitionID == d.ID {
					b.Slots = append(b.Slots, model.BookingSlot{SlotAvailabilityID: row.ID, SlotSequence: i + 1})
				}
			}
		}
		if err := tx.CreateBooking(ctx, &b); err != nil {
			return err
		}
		for _, row := range rows {
			row.State = model.SlotBooked
			row.BookingID = &b.ID
			row.HoldID = nil
			row.HoldExpiry = nil
			if err := tx.UpdateSlot(ctx, row); err != nil {
				return err
			}
		}
		// A consumed hold may span more slots than the window; those rows
		// go back to available so the hold leaves nothing held behind.
		for id := range own {
			rest, err := tx.LockSlotsByHold(ctx, id)
			if err != nil {
				return err
			}
			if err := freeSlots(ctx, tx, rest, id); err != nil {
				return err
			}
			if err := tx.SetHoldStatus(ctx, id, model.HoldReserved, model.HoldConfirmed); err != nil {
				return err
			}
		}
		return s.expireHolds(ctx, tx, lapsed)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return model.Booking{}, fmt.Errorf("%w: %s", ErrReferenceCollision, ref)
		}
		return model.Booking{}, contention(err)
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": b.ID, "reference": b.BookingReference, "court_id": b.CourtID, "user_id": b.UserID,
		"date": b.BookingDate.Format(model.DateLayout), "start": b.StartTime, "end": b.EndTime,
		"total_amount": b.TotalAmount,
	}).Info("booking committed")
	qr := s.qrPayload(ref, code)
	s.publish(ctx, EventCreated, b, func(ev *Event) { ev.QRPayload = qr })
	return b, nil
}

// singleCoveringHold returns the caller's hold when exactly one of them
// holds every locked row.
func singleCoveringHold(own map[string]model.Hold, rows []model.SlotAvailability) (model.Hold, bool) {
	if len(own) != 1 {
		return model.Hold{}, false
	}
	for id, h := range own {
		for _, row := range rows {
			if row.HoldID == nil || *row.HoldID != id {
				return model.Hold{}, false
			}
		}
		return h, true
	}
	return model.Hold{}, false
}
