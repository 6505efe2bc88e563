package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hollowvm/firekit/cmd/firekit/config"
	"github.com/hollowvm/firekit/lib/binaries"
	"github.com/hollowvm/firekit/lib/fcapi"
	"github.com/hollowvm/firekit/lib/paths"
	"github.com/hollowvm/firekit/lib/process"
)

func newRunCmd(cfg *config.Config) *cobra.Command {
	var (
		id        string
		kernel    string
		rootfs    string
		bootArgs  string
		vcpus     int
		memory    string
		useJailer bool
		uid       int
		gid       int
		netns     string
		mode      string
		release   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot a microVM in the foreground and tear it down on interrupt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, log := commandContext(cmd, cfg)
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if kernel == "" || rootfs == "" {
				return fmt.Errorf("--kernel and --rootfs are required")
			}
			if id == "" {
				id = uuid.NewString()
			}

			var mem datasize.ByteSize
			if err := mem.UnmarshalText([]byte(memory)); err != nil {
				return fmt.Errorf("invalid --memory %q: %w", memory, err)
			}

			policy := binaries.DefaultPolicy()
			policy.Mode = binaries.Mode(mode)
			policy.ReleaseVersion = release
			policy.BundleRoot = cfg.BundleDir

			fc, err := binaries.ResolveFirecracker(policy)
			if err != nil {
				return err
			}
			log.Info("resolved firecracker", "path", fc.Path, "source", fc.Source)

			p := paths.New(cfg.DataDir)
			if err := os.MkdirAll(p.VMLogs(id), 0o755); err != nil {
				return fmt.Errorf("create vm directory: %w", err)
			}

			var handle *process.Handle
			if useJailer {
				jl, err := binaries.ResolveJailer(policy)
				if err != nil {
					return err
				}
				handle, err = process.SpawnJailer(ctx, process.JailerOptions{
					Binary:         jl.Path,
					ExecFile:       fc.Path,
					ID:             id,
					UID:            uid,
					GID:            gid,
					ChrootBaseDir:  cfg.ChrootBaseDir,
					NetNS:          netns,
					ProcessLogPath: p.VMProcessLog(id),
					ReadyTimeout:   cfg.ReadyTimeout,
				})
				if err != nil {
					return err
				}
			} else {
				handle, err = process.SpawnFirecracker(ctx, process.FirecrackerOptions{
					Binary:         fc.Path,
					SocketPath:     p.VMSocket(id),
					ID:             id,
					ProcessLogPath: p.VMProcessLog(id),
					ReadyTimeout:   cfg.ReadyTimeout,
				})
				if err != nil {
					return err
				}
			}
			defer handle.Close()

			machine, err := handle.VMBuilder().
				BootSource(fcapi.BootSource{KernelImagePath: kernel, BootArgs: &bootArgs}).
				MachineConfig(fcapi.MachineConfiguration{
					VcpuCount:  int64(vcpus),
					MemSizeMib: int64(mem.MBytes()),
				}).
				RootDrive(fcapi.Drive{DriveID: "rootfs", PathOnHost: &rootfs}).
				Start(ctx)
			if err != nil {
				return fmt.Errorf("boot microvm: %w", err)
			}
			log.Info("microvm running", "id", id, "pid", handle.PID(), "socket", handle.SocketPath())

			<-ctx.Done()
			log.Info("shutting down", "id", id)

			shutdownCtx := context.WithoutCancel(ctx)
			if err := machine.Stop(shutdownCtx); err != nil {
				log.Warn("guest shutdown request failed, killing process", "error", err)
			}
			return handle.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "VM identifier (default: random UUID)")
	cmd.Flags().StringVar(&kernel, "kernel", "", "path to the guest kernel image")
	cmd.Flags().StringVar(&rootfs, "rootfs", "", "path to the root filesystem image")
	cmd.Flags().StringVar(&bootArgs, "boot-args", "console=ttyS0 reboot=k panic=1 pci=off", "kernel boot arguments")
	cmd.Flags().IntVar(&vcpus, "vcpus", cfg.GuestVcpus, "number of guest vCPUs")
	cmd.Flags().StringVar(&memory, "memory", cfg.GuestMemory, "guest memory size, e.g. 512MB")
	cmd.Flags().BoolVar(&useJailer, "jailer", false, "launch through the jailer")
	cmd.Flags().IntVar(&uid, "uid", cfg.JailUID, "uid the jailed process drops to")
	cmd.Flags().IntVar(&gid, "gid", cfg.JailGID, "gid the jailed process drops to")
	cmd.Flags().StringVar(&netns, "netns", "", "network namespace path for the jailer")
	cmd.Flags().StringVar(&mode, "mode", cfg.BinaryMode, "binary resolution mode")
	cmd.Flags().StringVar(&release, "release", cfg.Release, "Firecracker release version")
	return cmd
}
