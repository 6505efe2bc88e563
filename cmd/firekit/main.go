// firekit is a thin CLI over the library: resolve binaries, boot a
// microVM in the foreground, snapshot it.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hollowvm/firekit/cmd/firekit/config"
	"github.com/hollowvm/firekit/lib/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()

	root := &cobra.Command{
		Use:           "firekit",
		Short:         "Firecracker microVM launcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "firekit data directory")

	root.AddCommand(newResolveCmd(cfg))
	root.AddCommand(newRunCmd(cfg))
	root.AddCommand(newSnapshotCmd(cfg))
	root.AddCommand(newVersionCmd())
	return root
}

// commandContext attaches a leveled logger to the cobra command context.
func commandContext(cmd *cobra.Command, cfg *config.Config) (context.Context, *slog.Logger) {
	log := logger.New(cfg.LogLevel)
	return logger.AddToContext(cmd.Context(), log), log
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the firekit version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	}
}
