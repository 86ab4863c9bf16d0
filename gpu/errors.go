package gpu

import "github.com/cockroachdb/errors"

// Failure classes. Errors returned by this module carry one of these marks
// and can be tested with errors.Is.
var (
	// ErrUnsatisfiable marks a required format, present mode or queue-family
	// combination that the device or surface does not offer.
	ErrUnsatisfiable = errors.New("configuration unsatisfiable")

	// ErrCreation marks a device object that could not be created.
	ErrCreation = errors.New("resource creation failed")

	// ErrOutOfDate marks a swapchain that no longer matches its surface.
	ErrOutOfDate = errors.New("swapchain out of date")

	// ErrSuboptimal marks a swapchain that still works but should be rebuilt.
	ErrSuboptimal = errors.New("swapchain suboptimal")

	// ErrDeviceLost marks an unrecoverable device failure.
	ErrDeviceLost = errors.New("device lost")
)

// IsInvalidation reports whether err means the swapchain must be rebuilt.
func IsInvalidation(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal)
}

// Creation wraps err as a creation failure of the named object.
func Creation(err error, object string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "create %s", object), ErrCreation)
}

// Unsatisfiable builds a configuration error.
func Unsatisfiable(format string, args ...interface{}) error {
	return errors.Mark(errors.Errorf(format, args...), ErrUnsatisfiable)
}
