package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidateID checks that value is a well-formed UUID. field names the
// offending request field in the returned error.
func ValidateID(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required: %w", field, ErrValidation)
	}
	if _, err := uuid.Parse(value); err != nil {
		return fmt.Errorf("%s must be a UUID: %w", field, ErrValidation)
	}
	return nil
}
