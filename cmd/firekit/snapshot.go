package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hollowvm/firekit/cmd/firekit/config"
	"github.com/hollowvm/firekit/lib/fcapi"
	"github.com/hollowvm/firekit/lib/paths"
)

// newSnapshotCmd snapshots a live microVM over its API socket: pause,
// write the snapshot, resume.
func newSnapshotCmd(cfg *config.Config) *cobra.Command {
	var (
		id     string
		socket string
		name   string
		diff   bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Snapshot a running microVM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, log := commandContext(cmd, cfg)

			p := paths.New(cfg.DataDir)
			if socket == "" {
				if id == "" {
					return fmt.Errorf("either --id or --socket is required")
				}
				socket = p.VMSocket(id)
			}
			if id == "" {
				id = "adhoc"
			}

			snapPath := p.VMSnapshotFile(id, name)
			memPath := p.VMSnapshotMemFile(id, name)
			if err := os.MkdirAll(filepath.Dir(snapPath), 0o755); err != nil {
				return fmt.Errorf("create snapshot directory: %w", err)
			}

			client := fcapi.NewClient(socket)
			if err := client.PatchVmState(ctx, fcapi.VmStatePaused); err != nil {
				return err
			}

			snapType := fcapi.SnapshotTypeFull
			if diff {
				snapType = fcapi.SnapshotTypeDiff
			}
			snapErr := client.CreateSnapshot(ctx, fcapi.SnapshotCreateParams{
				SnapshotPath: snapPath,
				MemFilePath:  memPath,
				SnapshotType: &snapType,
			})

			if err := client.PatchVmState(ctx, fcapi.VmStateResumed); err != nil {
				log.Warn("failed to resume after snapshot", "error", err)
			}
			if snapErr != nil {
				return snapErr
			}

			log.Info("snapshot written", "state", snapPath, "memory", memPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "VM identifier under the data directory")
	cmd.Flags().StringVar(&socket, "socket", "", "explicit API socket path (overrides --id lookup)")
	cmd.Flags().StringVar(&name, "name", "default", "snapshot name")
	cmd.Flags().BoolVar(&diff, "diff", false, "write a diff snapshot (requires track_dirty_pages)")
	return cmd
}
