package vm

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/hollowvm/firekit/lib/fcapi"
	"github.com/hollowvm/firekit/lib/logger"
)

// Vm is a handle to a booted microVM, bound to its control socket. It
// logically owns the socket path but not the host process; a process
// handle may or may not exist alongside it.
type Vm struct {
	client ControlClient
	state  State
}

func newVm(client ControlClient, state State) *Vm {
	return &Vm{client: client, state: state}
}

// Restore loads a snapshot on a fresh Firecracker instance at
// socketPath, bypassing the builder path entirely. The returned Vm is
// Running or Paused depending on params.ResumeVM.
func Restore(ctx context.Context, socketPath string, params fcapi.SnapshotLoadParams) (*Vm, error) {
	return RestoreWithClient(ctx, fcapi.NewClient(socketPath), params)
}

// RestoreWithClient is Restore using an existing control client.
func RestoreWithClient(ctx context.Context, client ControlClient, params fcapi.SnapshotLoadParams) (*Vm, error) {
	if err := client.LoadSnapshot(ctx, params); err != nil {
		return nil, err
	}
	state := StatePaused
	if params.ResumeVM {
		state = StateRunning
	}
	logger.FromContext(ctx).InfoContext(ctx, "microvm restored from snapshot",
		"socket", client.SocketPath(), "state", state)
	return newVm(client, state), nil
}

// State reports the current lifecycle state.
func (v *Vm) State() State {
	return v.state
}

// SocketPath returns the control socket this Vm is bound to.
func (v *Vm) SocketPath() string {
	return v.client.SocketPath()
}

// Client exposes the raw control client for operations the lifecycle
// API does not model. Lifecycle-state tracking is unaffected by calls
// made through it.
func (v *Vm) Client() ControlClient {
	return v.client
}

func (v *Vm) guard(op string, allowed ...State) error {
	if !lo.Contains(allowed, v.state) {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidState, op, v.state)
	}
	return nil
}

// Pause suspends guest execution. Valid only from Running; on failure
// the state is unchanged.
func (v *Vm) Pause(ctx context.Context) error {
	if err := v.guard("pause", StateRunning); err != nil {
		return err
	}
	if err := v.client.PatchVmState(ctx, fcapi.VmStatePaused); err != nil {
		return err
	}
	v.state = StatePaused
	return nil
}

// Resume continues guest execution. Valid only from Paused; on failure
// the state is unchanged.
func (v *Vm) Resume(ctx context.Context) error {
	if err := v.guard("resume", StatePaused); err != nil {
		return err
	}
	if err := v.client.PatchVmState(ctx, fcapi.VmStateResumed); err != nil {
		return err
	}
	v.state = StateRunning
	return nil
}

// CreateSnapshot writes a full snapshot. Valid from Running or Paused;
// the Vm returns to its prior state whether the call succeeds or fails.
func (v *Vm) CreateSnapshot(ctx context.Context, snapshotPath, memFilePath string) error {
	return v.snapshot(ctx, snapshotPath, memFilePath, fcapi.SnapshotTypeFull)
}

// CreateDiffSnapshot writes a diff snapshot; requires track_dirty_pages
// in the machine configuration.
func (v *Vm) CreateDiffSnapshot(ctx context.Context, snapshotPath, memFilePath string) error {
	return v.snapshot(ctx, snapshotPath, memFilePath, fcapi.SnapshotTypeDiff)
}

func (v *Vm) snapshot(ctx context.Context, snapshotPath, memFilePath, snapshotType string) error {
	if err := v.guard("snapshot", StateRunning, StatePaused); err != nil {
		return err
	}
	prior := v.state
	v.state = StateSnapshotting
	defer func() { v.state = prior }()

	return v.client.CreateSnapshot(ctx, fcapi.SnapshotCreateParams{
		SnapshotPath: snapshotPath,
		MemFilePath:  memFilePath,
		SnapshotType: &snapshotType,
	})
}

// Config exports the currently-applied configuration, re-consumable by
// FromConfig on a fresh socket. Valid in any non-terminal state.
func (v *Vm) Config(ctx context.Context) (fcapi.FullVmConfiguration, error) {
	if err := v.guard("export config", StateRunning, StatePaused, StateSnapshotting); err != nil {
		return fcapi.FullVmConfiguration{}, err
	}
	return v.client.GetExportVmConfig(ctx)
}

// Describe returns general instance information.
func (v *Vm) Describe(ctx context.Context) (fcapi.InstanceInfo, error) {
	if err := v.guard("describe", StateRunning, StatePaused, StateSnapshotting); err != nil {
		return fcapi.InstanceInfo{}, err
	}
	return v.client.DescribeInstance(ctx)
}

// Version returns the running Firecracker version.
func (v *Vm) Version(ctx context.Context) (fcapi.FirecrackerVersion, error) {
	if err := v.guard("get version", StateRunning, StatePaused, StateSnapshotting); err != nil {
		return fcapi.FirecrackerVersion{}, err
	}
	return v.client.GetFirecrackerVersion(ctx)
}

// UpdateBalloon adjusts the balloon target size.
func (v *Vm) UpdateBalloon(ctx context.Context, amountMib int64) error {
	if err := v.guard("update balloon", StateRunning, StatePaused); err != nil {
		return err
	}
	return v.client.PatchBalloon(ctx, fcapi.BalloonUpdate{AmountMib: amountMib})
}

// Mmds returns the metadata service contents.
func (v *Vm) Mmds(ctx context.Context) (fcapi.MmdsData, error) {
	if err := v.guard("get mmds", StateRunning, StatePaused, StateSnapshotting); err != nil {
		return nil, err
	}
	return v.client.GetMmds(ctx)
}

// SetMmds replaces the metadata service contents.
func (v *Vm) SetMmds(ctx context.Context, data fcapi.MmdsData) error {
	if err := v.guard("set mmds", StateRunning, StatePaused); err != nil {
		return err
	}
	return v.client.PutMmds(ctx, data)
}

// PatchMmds merges into the metadata service contents.
func (v *Vm) PatchMmds(ctx context.Context, data fcapi.MmdsData) error {
	if err := v.guard("patch mmds", StateRunning, StatePaused); err != nil {
		return err
	}
	return v.client.PatchMmds(ctx, data)
}

// FlushMetrics flushes Firecracker metrics to the configured path.
func (v *Vm) FlushMetrics(ctx context.Context) error {
	if err := v.guard("flush metrics", StateRunning, StatePaused); err != nil {
		return err
	}
	return v.client.CreateSyncAction(ctx, fcapi.ActionFlushMetrics)
}

// SendCtrlAltDel asks the guest to shut down. Valid only from Running;
// the state is unchanged (use Stop to also mark the handle stopped).
func (v *Vm) SendCtrlAltDel(ctx context.Context) error {
	if err := v.guard("send ctrl-alt-del", StateRunning); err != nil {
		return err
	}
	return v.client.CreateSyncAction(ctx, fcapi.ActionSendCtrlAltDel)
}

// Stop requests guest shutdown and marks the handle Stopped (terminal).
func (v *Vm) Stop(ctx context.Context) error {
	if err := v.guard("stop", StateRunning); err != nil {
		return err
	}
	if err := v.client.CreateSyncAction(ctx, fcapi.ActionSendCtrlAltDel); err != nil {
		return err
	}
	v.state = StateStopped
	return nil
}
