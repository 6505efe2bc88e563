package vm

import (
	"context"

	"github.com/hollowvm/firekit/lib/fcapi"
)

// ControlClient is the control-plane capability the lifecycle layer
// consumes: typed request/response calls against the bound socket.
// *fcapi.Client satisfies it.
type ControlClient interface {
	SocketPath() string

	PutLogger(ctx context.Context, cfg fcapi.LoggerConfig) error
	PutMetrics(ctx context.Context, cfg fcapi.MetricsConfig) error
	PutBootSource(ctx context.Context, src fcapi.BootSource) error
	PutMachineConfiguration(ctx context.Context, cfg fcapi.MachineConfiguration) error
	PutDrive(ctx context.Context, drive fcapi.Drive) error
	PutNetworkInterface(ctx context.Context, iface fcapi.NetworkInterface) error
	PutBalloon(ctx context.Context, balloon fcapi.Balloon) error
	PatchBalloon(ctx context.Context, update fcapi.BalloonUpdate) error
	PutVsock(ctx context.Context, vsock fcapi.Vsock) error
	PutMmdsConfig(ctx context.Context, cfg fcapi.MmdsConfig) error
	PutMmds(ctx context.Context, data fcapi.MmdsData) error
	PatchMmds(ctx context.Context, data fcapi.MmdsData) error
	GetMmds(ctx context.Context) (fcapi.MmdsData, error)
	CreateSyncAction(ctx context.Context, actionType string) error
	PatchVmState(ctx context.Context, state string) error
	CreateSnapshot(ctx context.Context, params fcapi.SnapshotCreateParams) error
	LoadSnapshot(ctx context.Context, params fcapi.SnapshotLoadParams) error
	GetExportVmConfig(ctx context.Context) (fcapi.FullVmConfiguration, error)
	DescribeInstance(ctx context.Context) (fcapi.InstanceInfo, error)
	GetFirecrackerVersion(ctx context.Context) (fcapi.FirecrackerVersion, error)
}

var _ ControlClient = (*fcapi.Client)(nil)
