// Package domain defines domain-level errors for the auth feature.
package domain

import "auth_backend/internal/shared/apperr"

// Domain errors for authentication operations.
// Each carries an apperr.Kind so the transport layer can map it without knowing the feature.
var (
	// ErrValidation indicates that the handle or password does not satisfy the input rules.
	// Use NewValidationError to attach a specific message; errors.Is still matches this value.
	ErrValidation = apperr.New(apperr.KindValidation, "invalid request")

	// ErrDuplicateHandle indicates that a user with the given handle already exists.
	ErrDuplicateHandle = apperr.New(apperr.KindDuplicateHandle, "handle already registered")

	// ErrInvalidCredentials indicates that the handle is unknown or the password is wrong.
	// Both cases return this same value.
	ErrInvalidCredentials = apperr.New(apperr.KindInvalidCredentials, "invalid handle or password")

	// ErrUnauthorized indicates a missing, invalid or expired access token.
	ErrUnauthorized = apperr.New(apperr.KindUnauthorized, "authentication required")
)

// NewValidationError returns a validation error with a client-facing message.
func NewValidationError(message string) error {
	return apperr.New(apperr.KindValidation, message)
}
