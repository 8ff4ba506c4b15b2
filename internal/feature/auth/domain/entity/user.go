// Package entity defines the domain entities for the auth feature.
package entity

import "time"

// User represents a registered user in the system.
type User struct {
	// ID is the unique identifier assigned by the store.
	ID uint

	// Handle is the normalized (trimmed, lower-cased) email address used to log in.
	// It is unique across all users.
	Handle string

	// PasswordHash is the bcrypt hash of the user's password.
	// Plaintext passwords are never stored or logged.
	PasswordHash string

	CreatedAt time.Time
	UpdatedAt time.Time
}
