package vm

import "errors"

var (
	// ErrMissingConfiguration is returned when Start is called without
	// the mandatory boot source or machine configuration. No control
	// call is issued in that case.
	ErrMissingConfiguration = errors.New("missing required configuration")

	// ErrInvalidState is returned when an operation is not valid in the
	// VM's current lifecycle state.
	ErrInvalidState = errors.New("operation not valid in current state")
)
