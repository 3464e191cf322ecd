package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource is absent or not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrGone is returned for revoked or expired share links.
	ErrGone = errors.New("share link is no longer available")
	// ErrPasswordRequired is returned when a protected share link has not been unlocked.
	ErrPasswordRequired = errors.New("password required")
	// ErrInvalidCredentials covers unknown accounts, wrong passwords and wrong codes alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned for missing, malformed or expired tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTwoFactorNotSetup is returned when verifying a code for an account without a secret.
	ErrTwoFactorNotSetup = errors.New("two-factor authentication is not set up")
	// ErrSystemFolder is returned when renaming or deleting the archive folder.
	ErrSystemFolder = errors.New("system folder cannot be modified")
	// ErrConflict is returned when a unique resource already exists.
	ErrConflict = errors.New("already exists")
	// ErrForbidden is returned when a share link does not grant the requested action.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports missing or malformed input for one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
