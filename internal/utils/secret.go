package utils

import "golang.org/x/crypto/bcrypt"

// DefaultSecretCost is the bcrypt cost used when none is configured.
const DefaultSecretCost = bcrypt.DefaultCost

// HashSecret returns the bcrypt hash of a one-time secret such as a
// check-in code.
func HashSecret(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultSecretCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifySecret safely compares a bcrypt hash and the presented secret.
func VerifySecret(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
