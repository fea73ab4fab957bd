// Package profile implements the student profile gateway: name, account
// status, and credit balance. The dialogue core only ever reads profiles;
// mutation (registration, credit debits, the nightly refresh) happens here
// and in the scheduler.
package profile

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no profile exists for a student.
var ErrNotFound = errors.New("student profile not found")

// AccountStatus is the account state of a student.
type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusSuspended AccountStatus = "suspended"
)

// StudentProfile is the read model exposed to the dialogue core.
type StudentProfile struct {
	// ID is the platform identifier (e.g. a WhatsApp JID).
	ID string

	// DisplayName personalizes replies.
	DisplayName string

	// Status is the account state.
	Status AccountStatus

	// Credits is the remaining daily balance, never negative.
	Credits int
}

// Gateway is the read-only accessor used by the resolver.
type Gateway interface {
	Get(ctx context.Context, studentID string) (*StudentProfile, error)
}
