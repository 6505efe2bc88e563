package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/hollowvm/firekit/lib/logger"
)

// Defaults for socket readiness waiting.
const (
	DefaultReadyTimeout = 5 * time.Second
	DefaultPollInterval = 10 * time.Millisecond
	DefaultGracePeriod  = 5 * time.Second
)

// FirecrackerOptions describes a direct Firecracker launch. Binary and
// SocketPath are required; everything else is optional.
type FirecrackerOptions struct {
	// Binary is the path to the firecracker executable.
	Binary string

	// SocketPath is where Firecracker binds its API socket.
	SocketPath string

	// ID sets the --id instance identifier.
	ID string

	// NoSeccomp disables seccomp filtering (--no-seccomp).
	NoSeccomp bool

	// SeccompFilter is the path to a custom seccomp filter.
	SeccompFilter string

	// BootTimer enables the boot timer device.
	BootTimer bool

	// LogPath, LogLevel, ShowLevel and ShowLogOrigin configure
	// Firecracker's own logging flags.
	LogPath       string
	LogLevel      string
	ShowLevel     bool
	ShowLogOrigin bool

	// MetricsPath configures Firecracker's metrics output flag.
	MetricsPath string

	// MmdsSizeLimit caps the MMDS data store size in bytes (0 = default).
	MmdsSizeLimit int

	// ExtraArgs are appended verbatim to the command line.
	ExtraArgs []string

	// ProcessLogPath, when set, receives the process's combined
	// stdout+stderr (appended). Empty discards process output.
	ProcessLogPath string

	// KeepStaleSocket skips removal of a pre-existing socket file.
	KeepStaleSocket bool

	// ReadyTimeout and PollInterval bound the socket readiness wait.
	ReadyTimeout time.Duration
	PollInterval time.Duration

	// GracePeriod bounds the SIGTERM-to-SIGKILL escalation on cleanup.
	GracePeriod time.Duration
}

func (o FirecrackerOptions) args() []string {
	args := []string{"--api-sock", o.SocketPath}
	if o.ID != "" {
		args = append(args, "--id", o.ID)
	}
	if o.SeccompFilter != "" {
		args = append(args, "--seccomp-filter", o.SeccompFilter)
	}
	if o.NoSeccomp {
		args = append(args, "--no-seccomp")
	}
	if o.BootTimer {
		args = append(args, "--boot-timer")
	}
	if o.LogPath != "" {
		args = append(args, "--log-path", o.LogPath)
	}
	if o.LogLevel != "" {
		args = append(args, "--level", o.LogLevel)
	}
	if o.ShowLevel {
		args = append(args, "--show-level")
	}
	if o.ShowLogOrigin {
		args = append(args, "--show-log-origin")
	}
	if o.MetricsPath != "" {
		args = append(args, "--metrics-path", o.MetricsPath)
	}
	if o.MmdsSizeLimit > 0 {
		args = append(args, "--mmds-size-limit", strconv.Itoa(o.MmdsSizeLimit))
	}
	return append(args, o.ExtraArgs...)
}

// SpawnFirecracker launches Firecracker directly and waits for its API
// socket to become connectable. The returned Handle owns the process
// and the socket file.
func SpawnFirecracker(ctx context.Context, opts FirecrackerOptions) (*Handle, error) {
	log := logger.FromContext(ctx)

	if opts.Binary == "" {
		return nil, fmt.Errorf("firecracker binary is required")
	}
	if opts.SocketPath == "" {
		return nil, fmt.Errorf("socket path is required")
	}
	if err := checkExecutable(opts.Binary); err != nil {
		return nil, err
	}

	if isSocketInUse(opts.SocketPath) {
		return nil, fmt.Errorf("%w: %s", ErrSocketInUse, opts.SocketPath)
	}
	if !opts.KeepStaleSocket {
		// Ignore error - if we can't remove it, firecracker will fail
		// with a clearer one.
		os.Remove(opts.SocketPath)
	}

	cmd := exec.Command(opts.Binary, opts.args()...)
	// New process group so our signals do not reach the child via the
	// terminal, and the child survives parent context cancellation.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	closeLog, err := redirectOutput(cmd, opts.ProcessLogPath)
	if err != nil {
		return nil, err
	}
	defer closeLog()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start firecracker: %w", err)
	}

	h := newHandle(cmd, opts.SocketPath, true, opts.GracePeriod)
	log.DebugContext(ctx, "spawned firecracker", "pid", h.PID(), "socket", opts.SocketPath)

	if err := awaitReady(ctx, h, opts.SocketPath, opts.ReadyTimeout, opts.PollInterval); err != nil {
		return nil, err
	}
	return h, nil
}

// awaitReady waits for the socket and, on failure, tears the process
// down before returning so no spawn error path leaks a child or socket
// file.
func awaitReady(ctx context.Context, h *Handle, socketPath string, timeout, interval time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	waitErr := waitForSocket(ctx, socketPath, timeout, interval)
	if waitErr == nil {
		return nil
	}

	// Exited-early is a definite startup failure; report it instead of
	// the timeout. Daemonized launches hold no child, so only the
	// timeout applies there.
	if h.cmd != nil {
		select {
		case <-h.waitCh:
			h.mu.Lock()
			code := h.exitCode
			h.mu.Unlock()
			waitErr = fmt.Errorf("%w: exit code %d", ErrProcessExitedEarly, code)
		default:
		}
	}

	if cerr := h.Close(); cerr != nil {
		logger.FromContext(ctx).WarnContext(ctx, "cleanup after failed spawn", "error", cerr)
	}
	return waitErr
}

// redirectOutput points the command's stdout and stderr at an append-only
// log file. The returned closer releases the parent's descriptor; the
// child keeps its duplicated one.
func redirectOutput(cmd *exec.Cmd, logPath string) (func(), error) {
	if logPath == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open process log: %w", err)
	}
	cmd.Stdout = f
	cmd.Stderr = f
	return func() { f.Close() }, nil
}
