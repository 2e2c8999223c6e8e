// Package secrets implements the secret lifecycle: creation, guarded
// disclosure, owner-scoped updates and deletes, and dashboard aggregation.
// It coordinates the repository layer and the password guard; handlers map
// its sentinel errors onto HTTP responses.
package secrets

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by lifecycle operations. Handlers translate these
// to status codes; the order they are checked in Disclose is fixed so a caller
// probing a secret learns nothing past the first failing gate.
var (
	ErrNotFound         = errors.New("secret not found")
	ErrExpired          = errors.New("secret has expired")
	ErrAlreadyConsumed  = errors.New("secret has already been viewed")
	ErrPasswordRequired = errors.New("password required")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrForbidden        = errors.New("secret can no longer be modified")
)

// ValidationError reports a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
