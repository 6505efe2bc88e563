// Package vm provides the typestate microVM lifecycle: a Builder
// accumulates pre-boot configuration and, on Start, becomes a live Vm
// handle bound to the control socket.
package vm

import (
	"context"
	"fmt"

	"github.com/hollowvm/firekit/lib/fcapi"
	"github.com/hollowvm/firekit/lib/logger"
)

// Builder accumulates pre-boot VM configuration and applies it on
// Start. Boot source and machine configuration are mandatory;
// everything else is optional.
type Builder struct {
	client ControlClient

	bootSource        *fcapi.BootSource
	machineConfig     *fcapi.MachineConfiguration
	drives            []fcapi.Drive
	networkInterfaces []fcapi.NetworkInterface
	balloon           *fcapi.Balloon
	vsock             *fcapi.Vsock
	mmdsConfig        *fcapi.MmdsConfig
	mmdsData          fcapi.MmdsData
	fcLogger          *fcapi.LoggerConfig
	fcMetrics         *fcapi.MetricsConfig

	// consumed is set once Start has run to completion, successfully or
	// not; a consumed builder accepts no further Start.
	consumed bool
}

// NewBuilder creates a builder bound to the Firecracker socket at
// socketPath.
func NewBuilder(socketPath string) *Builder {
	return NewBuilderWithClient(fcapi.NewClient(socketPath))
}

// NewBuilderWithClient creates a builder using an existing control
// client.
func NewBuilderWithClient(client ControlClient) *Builder {
	return &Builder{client: client}
}

// FromConfig seeds a fresh builder from a previously exported
// configuration, enabling re-creation on a new socket. Equivalent to
// replaying the individual setters.
func FromConfig(socketPath string, cfg fcapi.FullVmConfiguration) *Builder {
	return FromConfigWithClient(fcapi.NewClient(socketPath), cfg)
}

// FromConfigWithClient seeds a fresh builder from an exported
// configuration using an existing control client.
func FromConfigWithClient(client ControlClient, cfg fcapi.FullVmConfiguration) *Builder {
	return &Builder{
		client:            client,
		bootSource:        cfg.BootSource,
		machineConfig:     cfg.MachineConfig,
		drives:            cfg.Drives,
		networkInterfaces: cfg.NetworkInterfaces,
		balloon:           cfg.Balloon,
		vsock:             cfg.Vsock,
		mmdsConfig:        cfg.MmdsConfig,
		fcLogger:          cfg.Logger,
		fcMetrics:         cfg.Metrics,
	}
}

// BootSource sets the guest kernel. Required.
func (b *Builder) BootSource(src fcapi.BootSource) *Builder {
	b.bootSource = &src
	return b
}

// MachineConfig sets vCPU count and memory size. Required.
func (b *Builder) MachineConfig(cfg fcapi.MachineConfiguration) *Builder {
	b.machineConfig = &cfg
	return b
}

// Drive adds a block device.
func (b *Builder) Drive(drive fcapi.Drive) *Builder {
	b.drives = append(b.drives, drive)
	return b
}

// RootDrive adds a block device marked as the root device.
func (b *Builder) RootDrive(drive fcapi.Drive) *Builder {
	drive.IsRootDevice = true
	b.drives = append(b.drives, drive)
	return b
}

// NetworkInterface adds a guest network interface.
func (b *Builder) NetworkInterface(iface fcapi.NetworkInterface) *Builder {
	b.networkInterfaces = append(b.networkInterfaces, iface)
	return b
}

// Balloon configures the memory balloon device.
func (b *Builder) Balloon(balloon fcapi.Balloon) *Builder {
	b.balloon = &balloon
	return b
}

// Vsock configures a vsock device.
func (b *Builder) Vsock(vsock fcapi.Vsock) *Builder {
	b.vsock = &vsock
	return b
}

// MmdsConfig configures the metadata service.
func (b *Builder) MmdsConfig(cfg fcapi.MmdsConfig) *Builder {
	b.mmdsConfig = &cfg
	return b
}

// MmdsData sets the initial metadata service contents. MmdsConfig must
// also be set for this to take effect; the data is applied after the
// MMDS config during Start.
func (b *Builder) MmdsData(data fcapi.MmdsData) *Builder {
	b.mmdsData = data
	return b
}

// Logger configures Firecracker's own log output.
func (b *Builder) Logger(cfg fcapi.LoggerConfig) *Builder {
	b.fcLogger = &cfg
	return b
}

// Metrics configures Firecracker's metrics output.
func (b *Builder) Metrics(cfg fcapi.MetricsConfig) *Builder {
	b.fcMetrics = &cfg
	return b
}

// Client returns the underlying control client.
func (b *Builder) Client() ControlClient {
	return b.client
}

// Config returns the accumulated configuration as it would be exported
// by a live Vm.
func (b *Builder) Config() fcapi.FullVmConfiguration {
	return fcapi.FullVmConfiguration{
		BootSource:        b.bootSource,
		MachineConfig:     b.machineConfig,
		Drives:            b.drives,
		NetworkInterfaces: b.networkInterfaces,
		Balloon:           b.balloon,
		Vsock:             b.vsock,
		Logger:            b.fcLogger,
		Metrics:           b.fcMetrics,
		MmdsConfig:        b.mmdsConfig,
	}
}

// Start applies the accumulated configuration in dependency order and
// boots the microVM, yielding a running Vm handle.
//
// Missing boot source or machine configuration fails with
// ErrMissingConfiguration before any control call is issued and leaves
// the builder reusable. A rejected control call aborts immediately,
// surfaces that call's error, and consumes the builder.
func (b *Builder) Start(ctx context.Context) (*Vm, error) {
	if b.consumed {
		return nil, fmt.Errorf("%w: builder already consumed by start", ErrInvalidState)
	}
	if b.bootSource == nil {
		return nil, fmt.Errorf("%w: boot_source", ErrMissingConfiguration)
	}
	if b.machineConfig == nil {
		return nil, fmt.Errorf("%w: machine_config", ErrMissingConfiguration)
	}

	b.consumed = true
	log := logger.FromContext(ctx)
	log.DebugContext(ctx, "starting microvm", "socket", b.client.SocketPath())

	// Logger and metrics first so the boot itself is observable.
	if b.fcLogger != nil {
		if err := b.client.PutLogger(ctx, *b.fcLogger); err != nil {
			return nil, err
		}
	}
	if b.fcMetrics != nil {
		if err := b.client.PutMetrics(ctx, *b.fcMetrics); err != nil {
			return nil, err
		}
	}

	if err := b.client.PutBootSource(ctx, *b.bootSource); err != nil {
		return nil, err
	}
	if err := b.client.PutMachineConfiguration(ctx, *b.machineConfig); err != nil {
		return nil, err
	}

	for _, drive := range b.drives {
		if err := b.client.PutDrive(ctx, drive); err != nil {
			return nil, err
		}
	}
	for _, iface := range b.networkInterfaces {
		if err := b.client.PutNetworkInterface(ctx, iface); err != nil {
			return nil, err
		}
	}

	if b.balloon != nil {
		if err := b.client.PutBalloon(ctx, *b.balloon); err != nil {
			return nil, err
		}
	}
	if b.vsock != nil {
		if err := b.client.PutVsock(ctx, *b.vsock); err != nil {
			return nil, err
		}
	}
	if b.mmdsConfig != nil {
		if err := b.client.PutMmdsConfig(ctx, *b.mmdsConfig); err != nil {
			return nil, err
		}
	}
	if b.mmdsData != nil {
		if err := b.client.PutMmds(ctx, b.mmdsData); err != nil {
			return nil, err
		}
	}

	if err := b.client.CreateSyncAction(ctx, fcapi.ActionInstanceStart); err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "microvm started", "socket", b.client.SocketPath())
	return newVm(b.client, StateRunning), nil
}
