// ABOUTME: Sentinel errors shared between the store and the reconciliation engine
// ABOUTME: Lets the engine react to store conditions without importing the db package
package models

import "errors"

var (
	// ErrEmailConflict is returned by the store when an upsert would give a
	// user an email already owned by a different user.
	ErrEmailConflict = errors.New("email already belongs to another user")

	// ErrInvalidInput is returned when a record is missing a required field.
	ErrInvalidInput = errors.New("invalid input")
)
