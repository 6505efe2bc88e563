package binaries

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no candidate path yields the binary.
	ErrNotFound = errors.New("binary not found")

	// ErrChecksumMismatch is returned when a resolved binary's content
	// digest differs from the expected one.
	ErrChecksumMismatch = errors.New("binary checksum mismatch")

	// ErrInvalidPolicy is returned for malformed policies (bad release
	// version, bad expected checksum, unknown mode).
	ErrInvalidPolicy = errors.New("invalid resolution policy")

	// ErrNotExecutable is returned when a discovered file cannot be
	// made executable.
	ErrNotExecutable = errors.New("binary not executable")
)

// NotFoundError enumerates every path tried, to aid diagnosis.
type NotFoundError struct {
	Kind     Kind
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s binary not found; searched: %s", e.Kind, strings.Join(e.Searched, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ChecksumMismatchError reports a digest mismatch for an otherwise
// resolvable binary, including the source it was resolved from.
type ChecksumMismatchError struct {
	Kind     Kind
	Path     string
	Source   Source
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%s binary at %s (source %s): checksum mismatch: expected %s, got %s",
		e.Kind, e.Path, e.Source, e.Expected, e.Actual)
}

func (e *ChecksumMismatchError) Is(target error) bool { return target == ErrChecksumMismatch }
