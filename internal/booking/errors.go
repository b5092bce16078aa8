package booking

import (
	"errors"
	"fmt"

	"github.com/iliyamo/court-slot-booking/internal/pricing"
)

// Errors returned by the service.  Handlers map them onto HTTP statuses.
var (
	ErrNotFound           = errors.New("not found")
	ErrNoDefinitionFound  = pricing.ErrNoDefinitionFound
	ErrSlotUnavailable    = errors.New("slot unavailable")
	ErrSlotConflict       = errors.New("slot conflict")
	ErrHoldNotActive      = errors.New("hold is not active")
	ErrNotConfirmed       = errors.New("booking is not confirmed")
	ErrInvalidTransition  = errors.New("invalid booking status transition")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCheckInCode = errors.New("invalid check-in code")
	ErrInvariantViolation = errors.New("ledger invariant violated")
	ErrReferenceCollision = errors.New("booking reference collision")
)

// Errors returned by Store implementations.
var (
	// ErrVersionConflict reports a guarded update that matched no row.
	ErrVersionConflict = errors.New("version conflict")
	// ErrLockTimeout reports a lock wait timeout or deadlock.
	ErrLockTimeout = errors.New("lock wait timeout")
	// ErrDuplicateReference reports a unique key violation on the booking
	// reference.
	ErrDuplicateReference = errors.New("duplicate booking reference")
)

// ValidationError reports a malformed request.  Nothing was written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// contention folds storage-level contention into ErrSlotConflict.
func contention(err error) error {
	if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrLockTimeout) {
		return fmt.Errorf("%w: %v", ErrSlotConflict, err)
	}
	return err
}
