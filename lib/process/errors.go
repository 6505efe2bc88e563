package process

import "errors"

var (
	// ErrBinaryNotExecutable is returned when the launch binary is
	// missing or lacks executable permission.
	ErrBinaryNotExecutable = errors.New("binary not executable")

	// ErrSocketPathConflict is returned when an explicit socket path is
	// supplied for a jailer launch; the jailer derives it from the
	// chroot layout.
	ErrSocketPathConflict = errors.New("socket path cannot be supplied in jailer mode")

	// ErrDaemonizeWithoutDetach is returned when daemonize is requested
	// without a declared detach intent.
	ErrDaemonizeWithoutDetach = errors.New("daemonize requires detach intent")

	// ErrSocketInUse is returned when something is already listening on
	// the requested socket path.
	ErrSocketInUse = errors.New("socket already in use")

	// ErrReadinessTimeout is returned when the API socket did not become
	// connectable within the readiness timeout while the process kept
	// running. Distinct from ErrProcessExitedEarly: a timeout may just
	// mean a slow host.
	ErrReadinessTimeout = errors.New("timed out waiting for API socket")

	// ErrProcessExitedEarly is returned when the spawned process exited
	// before its API socket became ready.
	ErrProcessExitedEarly = errors.New("process exited before API socket was ready")
)
