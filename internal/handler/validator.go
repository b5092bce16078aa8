package handler

import (
    "github.com/go-playground/validator/v10"
)

// Validator adapts go-playground/validator to echo.Validator so handlers
// can call c.Validate on bound request structs.
type Validator struct {
    v *validator.Validate
}

// NewValidator returns a Validator using struct tags named "validate".
func NewValidator() *Validator {
    return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i interface{}) error {
    return cv.v.Struct(i)
}
