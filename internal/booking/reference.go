package booking

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	referencePrefix  = "BK"
	referenceLength  = 8
	referenceAlpha   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	referenceRetries = 5
)

// newReference returns a booking reference that did not exist when checked.
// The unique key on bookings.booking_reference remains the final arbiter.
func (s *Service) newReference(ctx context.Context) (string, error) {
	for i := 0; i < referenceRetries; i++ {
		ref, err := s.genReference()
		if err != nil {
			return "", err
		}
		exists, err := s.store.ReferenceExists(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("check booking reference: %w", err)
		}
		if !exists {
			return ref, nil
		}
	}
	return "", errors.New("could not allocate a unique booking reference")
}

func randomReference() (string, error) {
	code, err := randomString(referenceAlpha, referenceLength)
	if err != nil {
		return "", err
	}
	return referencePrefix + code, nil
}

// randomString draws n characters of alphabet from crypto/rand.
func randomString(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}
