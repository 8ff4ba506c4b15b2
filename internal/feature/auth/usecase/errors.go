// Package usecase implements the business logic for the auth feature.
package usecase

import "errors"

var (
	// ErrUserNotFound is returned by repositories when a user cannot be found by handle or ID.
	ErrUserNotFound = errors.New("user not found")
)
