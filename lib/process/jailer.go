package process

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/hollowvm/firekit/lib/logger"
)

// DefaultChrootBaseDir is the jailer's default chroot base.
const DefaultChrootBaseDir = "/srv/jailer"

// jailSocketName is the socket path Firecracker is given inside the
// chroot; the host-visible path is derived from the chroot layout.
const jailSocketName = "run/firecracker.socket"

// JailerOptions describes a privilege-isolated launch through the
// jailer. Binary, ExecFile, ID, UID and GID are required. The API
// socket path is always derived from the chroot layout; supplying one
// is a configuration error.
type JailerOptions struct {
	// Binary is the path to the jailer executable.
	Binary string

	// ExecFile is the path to the firecracker executable the jailer
	// re-execs inside the jail.
	ExecFile string

	// ID is the VM identifier; it names the jail directory.
	ID string

	// UID and GID are the credentials the jailed process drops to.
	UID int
	GID int

	// ChrootBaseDir is the jail root parent (default /srv/jailer).
	ChrootBaseDir string

	// SocketPath must be empty: the socket location is derived. Kept as
	// a field so misconfiguration is detected before spawn rather than
	// silently ignored.
	SocketPath string

	// NetNS is an optional network namespace path.
	NetNS string

	// Daemonize exits the jailer after forking the jailed process. Only
	// valid together with Detach.
	Daemonize bool

	// Detach declares the intent to hand the process to an external
	// tracker; cleanup-on-close is disabled for the spawned handle.
	Detach bool

	// NewPidNS runs the jailed process in a new PID namespace.
	NewPidNS bool

	// Cgroups are cgroup settings, e.g. "cpu.shares=100".
	Cgroups []string

	// ResourceLimits are rlimit settings, e.g. "fsize=2048".
	ResourceLimits []string

	// CgroupVersion is "1" or "2".
	CgroupVersion string

	// ParentCgroup nests the jail's cgroup under an existing one.
	ParentCgroup string

	// FirecrackerArgs are passed to the jailed firecracker after "--".
	FirecrackerArgs []string

	// ProcessLogPath, when set, receives the jailer's combined
	// stdout+stderr (appended).
	ProcessLogPath string

	// ReadyTimeout and PollInterval bound the socket readiness wait.
	ReadyTimeout time.Duration
	PollInterval time.Duration

	// GracePeriod bounds the SIGTERM-to-SIGKILL escalation on cleanup.
	GracePeriod time.Duration
}

// DerivedSocketPath computes the host-visible API socket path:
// {chroot_base}/{exec basename}/{id}/root/run/firecracker.socket.
func (o JailerOptions) DerivedSocketPath() string {
	base := o.ChrootBaseDir
	if base == "" {
		base = DefaultChrootBaseDir
	}
	return filepath.Join(base, filepath.Base(o.ExecFile), o.ID, "root", jailSocketName)
}

func (o JailerOptions) validate() error {
	if o.Binary == "" {
		return fmt.Errorf("jailer binary is required")
	}
	if o.ExecFile == "" {
		return fmt.Errorf("exec file is required")
	}
	if o.ID == "" {
		return fmt.Errorf("vm id is required")
	}
	if o.UID <= 0 || o.GID <= 0 {
		return fmt.Errorf("uid and gid are required")
	}
	if o.SocketPath != "" {
		return fmt.Errorf("%w: got %s", ErrSocketPathConflict, o.SocketPath)
	}
	if o.Daemonize && !o.Detach {
		return ErrDaemonizeWithoutDetach
	}
	return nil
}

func (o JailerOptions) args() []string {
	args := []string{
		"--exec-file", o.ExecFile,
		"--id", o.ID,
		"--uid", strconv.Itoa(o.UID),
		"--gid", strconv.Itoa(o.GID),
	}
	if o.ChrootBaseDir != "" && o.ChrootBaseDir != DefaultChrootBaseDir {
		args = append(args, "--chroot-base-dir", o.ChrootBaseDir)
	}
	if o.NetNS != "" {
		args = append(args, "--netns", o.NetNS)
	}
	if o.Daemonize {
		args = append(args, "--daemonize")
	}
	if o.NewPidNS {
		args = append(args, "--new-pid-ns")
	}
	for _, cg := range o.Cgroups {
		args = append(args, "--cgroup", cg)
	}
	for _, limit := range o.ResourceLimits {
		args = append(args, "--resource-limit", limit)
	}
	if o.CgroupVersion != "" {
		args = append(args, "--cgroup-version", o.CgroupVersion)
	}
	if o.ParentCgroup != "" {
		args = append(args, "--parent-cgroup", o.ParentCgroup)
	}
	if len(o.FirecrackerArgs) > 0 {
		args = append(args, "--")
		args = append(args, o.FirecrackerArgs...)
	}
	return args
}

// SpawnJailer launches Firecracker through the jailer and waits for the
// derived API socket to become connectable. Configuration-shape errors
// are reported before any process is started.
func SpawnJailer(ctx context.Context, opts JailerOptions) (*Handle, error) {
	log := logger.FromContext(ctx)

	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := checkExecutable(opts.Binary); err != nil {
		return nil, err
	}

	socketPath := opts.DerivedSocketPath()

	cmd := exec.Command(opts.Binary, opts.args()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	closeLog, err := redirectOutput(cmd, opts.ProcessLogPath)
	if err != nil {
		return nil, err
	}
	defer closeLog()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start jailer: %w", err)
	}

	var h *Handle
	if opts.Daemonize {
		// The jailer exits quickly after double-forking; reap it and
		// keep no child. The real firecracker pid is not ours to own.
		_ = cmd.Wait()
		h = newHandle(nil, socketPath, false, opts.GracePeriod)
	} else {
		h = newHandle(cmd, socketPath, true, opts.GracePeriod)
	}
	log.DebugContext(ctx, "spawned jailer", "pid", h.PID(), "socket", socketPath, "daemonize", opts.Daemonize)

	if err := awaitReady(ctx, h, socketPath, opts.ReadyTimeout, opts.PollInterval); err != nil {
		return nil, err
	}
	return h, nil
}
