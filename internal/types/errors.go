package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadySettled   = errors.New("order already paid")
	ErrSettlementFailed = errors.New("settlement failed")
	ErrValidationFailed = errors.New("validation failed")
	ErrDataIntegrity    = errors.New("data integrity fault")
	ErrInvalidStatus    = errors.New("invalid status transition")
)

// SettlementError wraps the cause of a rolled back settlement
type SettlementError struct {
	OrderID string
	Err     error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement of order %s failed: %v", e.OrderID, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

func (e *SettlementError) Is(target error) bool {
	return target == ErrSettlementFailed
}

// ValidationError names the offending field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Invalid builds a ValidationError for field
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
