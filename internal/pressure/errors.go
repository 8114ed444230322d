package pressure

import "github.com/jadujoel/pressure-observer/internal/errors"

const (
	// Subscription errors
	ErrNotAllowed    = errors.ErrorCode("pressure_not_allowed")
	ErrNotSupported  = errors.ErrorCode("pressure_source_not_supported")
	ErrInvalidSource = errors.ErrorCode("pressure_invalid_source")

	// Environment errors
	ErrUnavailable = errors.ErrorCode("pressure_observer_unavailable")
)

// IsNotAllowed reports whether err is a permission denial. The condition is
// terminal for the failed Observe call; the observer never retries on its own.
func IsNotAllowed(err error) bool {
	return errors.HasCode(err, ErrNotAllowed)
}

// IsNotSupported reports whether err means the source cannot be observed on
// this host. Callers may retry with a different source.
func IsNotSupported(err error) bool {
	return errors.HasCode(err, ErrNotSupported)
}

// IsUnavailable reports whether pressure observation is absent from the
// environment altogether.
func IsUnavailable(err error) bool {
	return errors.HasCode(err, ErrUnavailable)
}
