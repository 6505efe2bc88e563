// Package process spawns and supervises Firecracker host processes,
// either directly or through the jailer, and owns their control socket
// lifecycle.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hollowvm/firekit/lib/fcapi"
	"github.com/hollowvm/firekit/lib/vm"
)

// TerminationState tracks what happened to the child process.
type TerminationState string

const (
	// StateRunning means the child has not been reaped yet.
	StateRunning TerminationState = "running"
	// StateExited means the child exited on its own or after SIGTERM.
	StateExited TerminationState = "exited"
	// StateKilled means the child had to be SIGKILLed.
	StateKilled TerminationState = "killed"
)

// Handle owns a live spawned process and, when it created one, the
// socket file's deletion responsibility. Exactly one Handle owns a
// process; Close is safe to defer on every exit path and runs the
// termination sequence at most once.
type Handle struct {
	cmd          *exec.Cmd // nil for daemonized jailer launches
	pid          int
	socketPath   string
	removeSocket bool
	gracePeriod  time.Duration

	waitCh  chan struct{}
	waitErr error

	mu       sync.Mutex
	state    TerminationState
	exitCode int
	detached bool

	closeOnce sync.Once
	closeErr  error
}

// Detached is the metadata left after ownership of a process has been
// handed to an external tracker.
type Detached struct {
	PID        int
	SocketPath string
}

func newHandle(cmd *exec.Cmd, socketPath string, removeSocket bool, grace time.Duration) *Handle {
	h := &Handle{
		cmd:          cmd,
		socketPath:   socketPath,
		removeSocket: removeSocket,
		gracePeriod:  grace,
		waitCh:       make(chan struct{}),
		state:        StateRunning,
	}
	if cmd != nil && cmd.Process != nil {
		h.pid = cmd.Process.Pid
		go func() {
			err := cmd.Wait()
			h.mu.Lock()
			if h.state == StateRunning {
				h.state = StateExited
			}
			h.exitCode = exitCode(cmd, err)
			h.mu.Unlock()
			h.waitErr = err
			close(h.waitCh)
		}()
	} else {
		// Daemonized launch: the intermediate process was already
		// reaped and the real child is not ours to wait on.
		close(h.waitCh)
	}
	return h
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// PID returns the child process id, or 0 for daemonized launches.
func (h *Handle) PID() int { return h.pid }

// SocketPath returns the API socket path the process serves.
func (h *Handle) SocketPath() string { return h.socketPath }

// State reports the current termination state.
func (h *Handle) State() TerminationState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Client returns a control API client bound to this process's socket.
func (h *Handle) Client() *fcapi.Client {
	return fcapi.NewClient(h.socketPath)
}

// VMBuilder returns a fresh VM builder pre-bound to this process's socket.
func (h *Handle) VMBuilder() *vm.Builder {
	return vm.NewBuilder(h.socketPath)
}

// Wait blocks until the child exits or the context is cancelled, and
// returns the exit code.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-h.waitCh:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitCode, nil
	}
}

// Detach relinquishes ownership: the process is no longer terminated on
// Close and the socket file is left in place. One-way handoff.
func (h *Handle) Detach() Detached {
	h.mu.Lock()
	h.detached = true
	h.removeSocket = false
	h.mu.Unlock()
	return Detached{PID: h.pid, SocketPath: h.socketPath}
}

// Shutdown terminates the child gracefully: SIGTERM, bounded grace
// period, then SIGKILL, then socket removal. Safe to call on an
// already-exited child.
func (h *Handle) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()
	return h.terminate(ctx)
}

// Kill forcefully terminates the child and cleans up the socket.
func (h *Handle) Kill() error {
	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	if h.cmd != nil && !h.exited() {
		if err := unix.Kill(h.pid, unix.SIGKILL); err == nil {
			h.markKilled()
		}
		<-h.waitCh
	}
	return h.cleanupSocket()
}

// Close runs the full termination sequence exactly once: graceful
// signal, grace period, forced kill, socket removal. A detached handle
// does nothing. Idempotent and defer-friendly.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		detached := h.detached
		h.mu.Unlock()
		if detached {
			return
		}
		h.closeErr = h.terminate(context.Background())
	})
	return h.closeErr
}

func (h *Handle) terminate(ctx context.Context) error {
	if h.cmd != nil && !h.exited() {
		if err := unix.Kill(h.pid, unix.SIGTERM); err != nil && err != unix.ESRCH {
			slog.Warn("failed to signal process", "pid", h.pid, "error", err)
		}

		grace := h.gracePeriod
		if grace <= 0 {
			grace = 5 * time.Second
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()

		select {
		case <-h.waitCh:
		case <-timer.C:
			h.escalate()
		case <-ctx.Done():
			// Cancellation does not skip cleanup; escalate immediately
			// so the child is reaped before we return.
			h.escalate()
		}
	}
	return h.cleanupSocket()
}

func (h *Handle) escalate() {
	if err := unix.Kill(h.pid, unix.SIGKILL); err == nil {
		h.markKilled()
	}
	<-h.waitCh
}

func (h *Handle) exited() bool {
	select {
	case <-h.waitCh:
		return true
	default:
		return false
	}
}

func (h *Handle) markKilled() {
	h.mu.Lock()
	if h.state == StateRunning {
		h.state = StateKilled
	}
	h.mu.Unlock()
}

func (h *Handle) cleanupSocket() error {
	if !h.removeSocket {
		return nil
	}
	if err := os.Remove(h.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove socket: %w", err)
	}
	return nil
}

// waitForSocket polls until the socket is connectable or the timeout
// elapses.
func waitForSocket(ctx context.Context, path string, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrReadinessTimeout, path)
		case <-ticker.C:
			if conn, err := net.Dial("unix", path); err == nil {
				conn.Close()
				return nil
			}
		}
	}
}

// isSocketInUse checks if a unix socket is actively being listened on.
func isSocketInUse(path string) bool {
	conn, err := net.DialTimeout("unix", path, 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// checkExecutable validates the launch binary before any process is
// started.
func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBinaryNotExecutable, path, err)
	}
	if !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s", ErrBinaryNotExecutable, path)
	}
	return nil
}
