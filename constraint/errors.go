package constraint

import "errors"

var (
	// ErrProfileNotFound is returned when the user has no stored profile.
	ErrProfileNotFound = errors.New("constraint: profile not found")

	// ErrInvalidProfile is returned when a stored profile violates the
	// non-negative invariants for targets or directive caps.
	ErrInvalidProfile = errors.New("constraint: invalid profile")

	// ErrEmptyUserID is returned when a lookup is attempted without a user ID.
	ErrEmptyUserID = errors.New("constraint: user id is empty")
)
