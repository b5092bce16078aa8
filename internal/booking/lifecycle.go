package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-slot-booking/internal/model"
	"github.com/iliyamo/court-slot-booking/internal/utils"
)

// CheckInResult reports the outcome of a check-in.  AlreadyCheckedIn is set
// when the booking had been checked in before; the booking is unchanged.
type CheckInResult struct {
	Booking          model.Booking `json:"booking"`
	AlreadyCheckedIn bool          `json:"already_checked_in"`
}

// CancelRequest identifies the booking to cancel and who asks for it.
type CancelRequest struct {
	BookingID uint64
	ActorID   uint64
	IsAdmin   bool
	Reason    string
}

func notFound(what string, id any, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return err
}

// transition runs fn on the locked booking and persists the result when fn
// reports a change.
func (s *Service) transition(ctx context.Context, bookingID uint64, fn func(tx Tx, b *model.Booking) (bool, error)) (model.Booking, bool, error) {
	if bookingID == 0 {
		return model.Booking{}, false, invalid("booking_id", "required")
	}
	var (
		out     model.Booking
		changed bool
	)
	err := s.store.WithTx(ctx, func(tx Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return notFound("booking", bookingID, err)
		}
		changed, err = fn(tx, &b)
		if err != nil {
			return err
		}
		if changed {
			b.UpdatedAt = s.now()
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return err
			}
			b.Version++
		}
		out = b
		return nil
	})
	if err != nil {
		return model.Booking{}, false, err
	}
	return out, changed, nil
}

// ConfirmPayment records a completed payment and confirms a pending
// booking.  Repeating it on a confirmed, paid booking is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, bookingID uint64, paymentRef string) (model.Booking, error) {
	b, changed, err := s.transition(ctx, bookingID, func(_ Tx, b *model.Booking) (bool, error) {
		if b.Status == model.BookingConfirmed && b.PaymentStatus == model.PaymentCompleted {
			return false, nil
		}
		if b.Status != model.BookingPending {
			return false, fmt.Errorf("confirm %s booking: %w", b.Status, ErrInvalidTransition)
		}
		b.Status = model.BookingConfirmed
		b.PaymentStatus = model.PaymentCompleted
		if paymentRef != "" {
			b.PaymentRef = &paymentRef
		}
		return true, nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	if changed {
		s.log.WithFields(logrus.Fields{"booking_id": b.ID, "payment_ref": paymentRef}).Info("booking confirmed")
		s.publish(ctx, EventConfirmed, b, nil)
	}
	return b, nil
}

// FailPayment records a failed capture.  The booking stays pending so the
// customer may pay again.
func (s *Service) FailPayment(ctx context.Context, bookingID uint64, reason string) (model.Booking, error) {
	b, changed, err := s.transition(ctx, bookingID, func(_ Tx, b *model.Booking) (bool, error) {
		if b.Status != model.BookingPending {
			return false, fmt.Errorf("fail payment of %s booking: %w", b.Status, ErrInvalidTransition)
		}
		if b.PaymentStatus == model.PaymentFailed {
			return false, nil
		}
		b.PaymentStatus = model.PaymentFailed
		return true, nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	if changed {
		s.log.WithFields(logrus.Fields{"booking_id": b.ID, "reason": reason}).Warn("payment failed")
	}
	return b, nil
}

// CheckIn marks a confirmed booking as attended and completes it.
func (s *Service) CheckIn(ctx context.Context, bookingID uint64) (CheckInResult, error) {
	already := false
	b, changed, err := s.transition(ctx, bookingID, func(_ Tx, b *model.Booking) (bool, error) {
		if b.CheckInStatus == model.CheckedIn {
			already = true
			return false, nil
		}
		if b.Status != model.BookingConfirmed {
			return false, fmt.Errorf("check in %s booking: %w", b.Status, ErrNotConfirmed)
		}
		now := s.now()
		b.CheckInStatus = model.CheckedIn
		b.CheckInTime = &now
		b.Status = model.BookingCompleted
		return true, nil
	})
	if err != nil {
		return CheckInResult{}, err
	}
	if changed {
		s.log.WithField("booking_id", b.ID).Info("booking checked in")
		s.publish(ctx, EventCheckedIn, b, nil)
	}
	return CheckInResult{Booking: b, AlreadyCheckedIn: already}, nil
}

// VerifyAndCheckIn checks in the booking named by a QR payload after
// verifying its check-in code.
func (s *Service) VerifyAndCheckIn(ctx context.Context, reference, code string) (CheckInResult, error) {
	if reference == "" {
		return CheckInResult{}, invalid("reference", "required")
	}
	if code == "" {
		return CheckInResult{}, invalid("code", "required")
	}
	b, err := s.store.BookingByReference(ctx, reference)
	if err != nil {
		return CheckInResult{}, notFound("booking", reference, err)
	}
	if !utils.VerifySecret(b.CheckInCodeHash, code) {
		return CheckInResult{}, ErrInvalidCheckInCode
	}
	return s.CheckIn(ctx, b.ID)
}

// Cancel cancels a pending or confirmed booking and frees its slots in the
// same transaction.  The booking_slots rows are kept.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (model.Booking, error) {
	b, _, err := s.transition(ctx, req.BookingID, func(tx Tx, b *model.Booking) (bool, error) {
		if b.UserID != req.ActorID && !req.IsAdmin {
			return false, ErrForbidden
		}
		if !b.Cancellable() {
			return false, fmt.Errorf("cancel %s booking: %w", b.Status, ErrInvalidTransition)
		}
		slotIDs := make([]uint64, len(b.Slots))
		for i, bs := range b.Slots {
			slotIDs[i] = bs.SlotAvailabilityID
		}
		rows, err := tx.LockSlotsByID(ctx, slotIDs)
		if err != nil {
			return false, err
		}
		if len(rows) != len(slotIDs) {
			return false, fmt.Errorf("booking %d: locked %d of %d slots: %w", b.ID, len(rows), len(slotIDs), ErrInvariantViolation)
		}
		for _, row := range rows {
			if row.State != model.SlotBooked || row.BookingID == nil || *row.BookingID != b.ID {
				return false, fmt.Errorf("slot %d is not booked by booking %d: %w", row.ID, b.ID, ErrInvariantViolation)
			}
			row.State = model.SlotAvailable
			row.BookingID = nil
			row.HoldID = nil
			row.HoldExpiry = nil
			if err := tx.UpdateSlot(ctx, row); err != nil {
				return false, err
			}
		}
		now := s.now()
		b.Status = model.BookingCancelled
		b.CancelledAt = &now
		if req.Reason != "" {
			reason := req.Reason
			b.CancellationReason = &reason
		}
		return true, nil
	})
	if err != nil {
		return model.Booking{}, contention(err)
	}
	s.log.WithFields(logrus.Fields{"booking_id": b.ID, "actor_id": req.ActorID, "admin": req.IsAdmin}).Info("booking cancelled")
	s.publish(ctx, EventCancelled, b, nil)
	return b, nil
}

// MarkNoShows moves confirmed bookings that were never checked in to
// no_show once their window ended more than the grace period ago.
func (s *Service) MarkNoShows(ctx context.Context) (int, error) {
	candidates, err := s.store.OverdueBookings(ctx, s.today())
	if err != nil {
		return 0, fmt.Errorf("list overdue bookings: %w", err)
	}
	var (
		marked int
		errs   []error
	)
	for _, c := range candidates {
		if s.now().Before(s.endsAt(c).Add(s.opts.NoShowGrace)) {
			continue
		}
		_, changed, err := s.transition(ctx, c.ID, func(_ Tx, b *model.Booking) (bool, error) {
			if b.Status != model.BookingConfirmed || b.CheckInStatus == model.CheckedIn {
				return false, nil
			}
			b.Status = model.BookingNoShow
			return true, nil
		})
		if err != nil {
			s.log.WithError(err).WithField("booking_id", c.ID).Warn("no-show: update failed")
			errs = append(errs, err)
			continue
		}
		if changed {
			marked++
		}
	}
	return marked, errors.Join(errs...)
}

// GetBooking returns a booking to its owner or to an admin.
func (s *Service) GetBooking(ctx context.Context, bookingID, actorID uint64, isAdmin bool) (model.Booking, error) {
	if bookingID == 0 {
		return model.Booking{}, invalid("booking_id", "required")
	}
	b, err := s.store.Booking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, notFound("booking", bookingID, err)
	}
	if b.UserID != actorID && !isAdmin {
		return model.Booking{}, ErrForbidden
	}
	return b, nil
}

// GetBookingByReference looks a booking up by its public reference.
func (s *Service) GetBookingByReference(ctx context.Context, reference string) (model.Booking, error) {
	if reference == "" {
		return model.Booking{}, invalid("reference", "required")
	}
	b, err := s.store.BookingByReference(ctx, reference)
	if err != nil {
		return model.Booking{}, notFound("booking", reference, err)
	}
	return b, nil
}

// ListUserBookings returns a user's bookings, optionally by status.
func (s *Service) ListUserBookings(ctx context.Context, userID uint64, status model.BookingStatus) ([]model.Booking, error) {
	if userID == 0 {
		return nil, invalid("user_id", "required")
	}
	return s.ListBookings(ctx, Filter{UserID: userID, Status: status})
}

// ListBookings returns bookings matching f, newest first.
func (s *Service) ListBookings(ctx context.Context, f Filter) ([]model.Booking, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Date != nil {
		d := civil(*f.Date)
		f.Date = &d
	}
	return s.store.ListBookings(ctx, f)
}
