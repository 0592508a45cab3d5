package signature

import "errors"

var (
	// ErrUnsupportedParam is returned when a request parameter cannot be
	// rendered canonically (functions, channels, non-finite numbers).
	ErrUnsupportedParam = errors.New("signature: unsupported parameter")

	// ErrKeyCollision is returned when two parameter keys normalize to the
	// same key.
	ErrKeyCollision = errors.New("signature: parameter keys collide after normalization")
)
