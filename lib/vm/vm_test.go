package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollowvm/firekit/lib/fcapi"
)

// fakeClient records control calls in order and fails the ops named in
// failOn.
type fakeClient struct {
	calls    []string
	failOn   map[string]error
	exported fcapi.FullVmConfiguration
	mmds     fcapi.MmdsData
}

func newFakeClient() *fakeClient {
	return &fakeClient{failOn: map[string]error{}}
}

func (f *fakeClient) record(op string) error {
	f.calls = append(f.calls, op)
	if err, ok := f.failOn[op]; ok {
		return err
	}
	return nil
}

func (f *fakeClient) SocketPath() string { return "/tmp/fake.sock" }

func (f *fakeClient) PutLogger(_ context.Context, _ fcapi.LoggerConfig) error {
	return f.record("logger")
}
func (f *fakeClient) PutMetrics(_ context.Context, _ fcapi.MetricsConfig) error {
	return f.record("metrics")
}
func (f *fakeClient) PutBootSource(_ context.Context, _ fcapi.BootSource) error {
	return f.record("boot-source")
}
func (f *fakeClient) PutMachineConfiguration(_ context.Context, _ fcapi.MachineConfiguration) error {
	return f.record("machine-config")
}
func (f *fakeClient) PutDrive(_ context.Context, drive fcapi.Drive) error {
	return f.record("drive/" + drive.DriveID)
}
func (f *fakeClient) PutNetworkInterface(_ context.Context, iface fcapi.NetworkInterface) error {
	return f.record("netif/" + iface.IfaceID)
}
func (f *fakeClient) PutBalloon(_ context.Context, _ fcapi.Balloon) error {
	return f.record("balloon")
}
func (f *fakeClient) PatchBalloon(_ context.Context, _ fcapi.BalloonUpdate) error {
	return f.record("patch-balloon")
}
func (f *fakeClient) PutVsock(_ context.Context, _ fcapi.Vsock) error {
	return f.record("vsock")
}
func (f *fakeClient) PutMmdsConfig(_ context.Context, _ fcapi.MmdsConfig) error {
	return f.record("mmds-config")
}
func (f *fakeClient) PutMmds(_ context.Context, data fcapi.MmdsData) error {
	f.mmds = data
	return f.record("mmds-put")
}
func (f *fakeClient) PatchMmds(_ context.Context, _ fcapi.MmdsData) error {
	return f.record("mmds-patch")
}
func (f *fakeClient) GetMmds(_ context.Context) (fcapi.MmdsData, error) {
	return f.mmds, f.record("mmds-get")
}
func (f *fakeClient) CreateSyncAction(_ context.Context, actionType string) error {
	return f.record("action/" + actionType)
}
func (f *fakeClient) PatchVmState(_ context.Context, state string) error {
	return f.record("vm-state/" + state)
}
func (f *fakeClient) CreateSnapshot(_ context.Context, _ fcapi.SnapshotCreateParams) error {
	return f.record("snapshot-create")
}
func (f *fakeClient) LoadSnapshot(_ context.Context, _ fcapi.SnapshotLoadParams) error {
	return f.record("snapshot-load")
}
func (f *fakeClient) GetExportVmConfig(_ context.Context) (fcapi.FullVmConfiguration, error) {
	return f.exported, f.record("export-config")
}
func (f *fakeClient) DescribeInstance(_ context.Context) (fcapi.InstanceInfo, error) {
	return fcapi.InstanceInfo{ID: "vm", State: "Running"}, f.record("describe")
}
func (f *fakeClient) GetFirecrackerVersion(_ context.Context) (fcapi.FirecrackerVersion, error) {
	return fcapi.FirecrackerVersion{FirecrackerVersion: "v1.12.1"}, f.record("version")
}

var _ ControlClient = (*fakeClient)(nil)

func strPtr(s string) *string { return &s }

func fullBuilder(client ControlClient) *Builder {
	return NewBuilderWithClient(client).
		Logger(fcapi.LoggerConfig{LogPath: "/var/log/fc.log"}).
		Metrics(fcapi.MetricsConfig{MetricsPath: "/var/metrics/fc.json"}).
		BootSource(fcapi.BootSource{KernelImagePath: "/path/to/vmlinux", BootArgs: strPtr("console=ttyS0")}).
		MachineConfig(fcapi.MachineConfiguration{VcpuCount: 2, MemSizeMib: 512}).
		RootDrive(fcapi.Drive{DriveID: "rootfs", PathOnHost: strPtr("/path/to/rootfs.ext4")}).
		Drive(fcapi.Drive{DriveID: "data", PathOnHost: strPtr("/path/to/data.ext4")}).
		NetworkInterface(fcapi.NetworkInterface{IfaceID: "eth0", HostDevName: "tap0"}).
		Balloon(fcapi.Balloon{AmountMib: 128}).
		Vsock(fcapi.Vsock{GuestCid: 3, UdsPath: "/tmp/vsock.sock"}).
		MmdsConfig(fcapi.MmdsConfig{IPv4Address: strPtr("169.254.169.254")}).
		MmdsData(fcapi.MmdsData{"hostname": "vm-1"})
}

func TestStartMissingBootSource(t *testing.T) {
	client := newFakeClient()
	b := NewBuilderWithClient(client).
		MachineConfig(fcapi.MachineConfiguration{VcpuCount: 1, MemSizeMib: 128})

	_, err := b.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingConfiguration)
	assert.Empty(t, client.calls, "missing configuration must issue zero control calls")
}

func TestStartMissingMachineConfig(t *testing.T) {
	client := newFakeClient()
	b := NewBuilderWithClient(client).
		BootSource(fcapi.BootSource{KernelImagePath: "/path/to/vmlinux"})

	_, err := b.Start(context.Background())
	assert.ErrorIs(t, err, ErrMissingConfiguration)
	assert.Empty(t, client.calls)
}

func TestStartMissingConfigLeavesBuilderReusable(t *testing.T) {
	client := newFakeClient()
	b := NewBuilderWithClient(client).
		BootSource(fcapi.BootSource{KernelImagePath: "/path/to/vmlinux"})

	_, err := b.Start(context.Background())
	require.ErrorIs(t, err, ErrMissingConfiguration)

	b.MachineConfig(fcapi.MachineConfiguration{VcpuCount: 1, MemSizeMib: 128})
	machine, err := b.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, machine.State())
}

func TestStartAppliesConfigInOrder(t *testing.T) {
	client := newFakeClient()
	machine, err := fullBuilder(client).Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, machine.State())

	assert.Equal(t, []string{
		"logger",
		"metrics",
		"boot-source",
		"machine-config",
		"drive/rootfs",
		"drive/data",
		"netif/eth0",
		"balloon",
		"vsock",
		"mmds-config",
		"mmds-put",
		"action/InstanceStart",
	}, client.calls)
}

func TestStartAbortsOnFirstRejectedCall(t *testing.T) {
	client := newFakeClient()
	rejection := errors.New("bad machine config")
	client.failOn["machine-config"] = rejection

	b := NewBuilderWithClient(client).
		BootSource(fcapi.BootSource{KernelImagePath: "/path/to/vmlinux"}).
		MachineConfig(fcapi.MachineConfiguration{VcpuCount: 1, MemSizeMib: 128}).
		Drive(fcapi.Drive{DriveID: "rootfs"})

	_, err := b.Start(context.Background())
	require.ErrorIs(t, err, rejection)
	assert.Equal(t, []string{"boot-source", "machine-config"}, client.calls,
		"no call after the rejected one")

	// A failed start is terminal for the builder.
	_, err = b.Start(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPauseResume(t *testing.T) {
	client := newFakeClient()
	machine := newVm(client, StateRunning)

	require.NoError(t, machine.Pause(context.Background()))
	assert.Equal(t, StatePaused, machine.State())

	err := machine.Pause(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, machine.Resume(context.Background()))
	assert.Equal(t, StateRunning, machine.State())

	err = machine.Resume(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, []string{"vm-state/Paused", "vm-state/Resumed"}, client.calls)
}

func TestPauseFailureKeepsState(t *testing.T) {
	client := newFakeClient()
	client.failOn["vm-state/Paused"] = errors.New("vmm rejected pause")
	machine := newVm(client, StateRunning)

	err := machine.Pause(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateRunning, machine.State())
}

func TestSnapshotRestoresPriorState(t *testing.T) {
	for _, initial := range []State{StateRunning, StatePaused} {
		for _, fail := range []bool{false, true} {
			client := newFakeClient()
			if fail {
				client.failOn["snapshot-create"] = errors.New("snapshot rejected")
			}
			machine := newVm(client, initial)

			err := machine.CreateSnapshot(context.Background(), "/snap/state", "/snap/mem")
			if fail {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, initial, machine.State(),
				"snapshot from %s (fail=%v) must restore prior state", initial, fail)
		}
	}
}

func TestSnapshotInvalidFromStopped(t *testing.T) {
	client := newFakeClient()
	machine := newVm(client, StateStopped)

	err := machine.CreateSnapshot(context.Background(), "/snap/state", "/snap/mem")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, client.calls)
}

func TestRestoreResumeFlag(t *testing.T) {
	client := newFakeClient()
	machine, err := RestoreWithClient(context.Background(), client, fcapi.SnapshotLoadParams{
		SnapshotPath: "/snap/state",
		ResumeVM:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, machine.State())
	assert.Equal(t, []string{"snapshot-load"}, client.calls)

	client = newFakeClient()
	machine, err = RestoreWithClient(context.Background(), client, fcapi.SnapshotLoadParams{
		SnapshotPath: "/snap/state",
	})
	require.NoError(t, err)
	assert.Equal(t, StatePaused, machine.State())
}

func TestRestoreFailure(t *testing.T) {
	client := newFakeClient()
	client.failOn["snapshot-load"] = errors.New("no such snapshot")

	machine, err := RestoreWithClient(context.Background(), client, fcapi.SnapshotLoadParams{
		SnapshotPath: "/missing",
	})
	assert.Error(t, err)
	assert.Nil(t, machine)
}

func TestConfigRoundTrip(t *testing.T) {
	client := newFakeClient()
	original := fullBuilder(client)
	wantConfig := original.Config()

	machine, err := original.Start(context.Background())
	require.NoError(t, err)

	// The fake exports exactly what was applied.
	client.exported = wantConfig
	exported, err := machine.Config(context.Background())
	require.NoError(t, err)

	reseeded := FromConfigWithClient(newFakeClient(), exported)
	assert.Equal(t, wantConfig, reseeded.Config(),
		"re-seeded builder must be field-for-field equal to the original")
}

func TestStopIsTerminal(t *testing.T) {
	client := newFakeClient()
	machine := newVm(client, StateRunning)

	require.NoError(t, machine.Stop(context.Background()))
	assert.Equal(t, StateStopped, machine.State())
	assert.True(t, machine.State().IsTerminal())

	assert.ErrorIs(t, machine.Pause(context.Background()), ErrInvalidState)
	_, err := machine.Config(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestGuardErrorNamesOperationAndState(t *testing.T) {
	machine := newVm(newFakeClient(), StatePaused)
	err := machine.SendCtrlAltDel(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send ctrl-alt-del")
	assert.Contains(t, err.Error(), string(StatePaused))
}

func TestMmdsOps(t *testing.T) {
	client := newFakeClient()
	machine := newVm(client, StateRunning)

	require.NoError(t, machine.SetMmds(context.Background(), fcapi.MmdsData{"k": "v"}))
	data, err := machine.Mmds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v", data["k"])
}
