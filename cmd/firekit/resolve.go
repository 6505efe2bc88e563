package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hollowvm/firekit/cmd/firekit/config"
	"github.com/hollowvm/firekit/lib/binaries"
)

func newResolveCmd(cfg *config.Config) *cobra.Command {
	var (
		mode       string
		release    string
		bundleRoot string
		fcSHA      string
		jailerSHA  string
		jailer     bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the firecracker (and optionally jailer) binaries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log := commandContext(cmd, cfg)

			policy := binaries.DefaultPolicy()
			policy.Mode = binaries.Mode(mode)
			policy.ReleaseVersion = release
			policy.BundleRoot = bundleRoot
			policy.FirecrackerSHA256 = fcSHA
			policy.JailerSHA256 = jailerSHA

			fc, err := binaries.ResolveFirecracker(policy)
			if err != nil {
				var notFound *binaries.NotFoundError
				if errors.As(err, &notFound) {
					log.Error("firecracker not found", "searched", notFound.Searched)
				}
				return err
			}
			cmd.Printf("firecracker\t%s\t%s\tverified=%v\n", fc.Path, fc.Source, fc.Verified)

			if jailer {
				jl, err := binaries.ResolveJailer(policy)
				if err != nil {
					return err
				}
				cmd.Printf("jailer\t%s\t%s\tverified=%v\n", jl.Path, jl.Source, jl.Verified)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", cfg.BinaryMode, "resolution mode (bundled-only, system-only, bundled-then-system, system-then-bundled)")
	cmd.Flags().StringVar(&release, "release", cfg.Release, "Firecracker release version, e.g. v1.12.1")
	cmd.Flags().StringVar(&bundleRoot, "bundle-root", cfg.BundleDir, "explicit bundled binaries root")
	cmd.Flags().StringVar(&fcSHA, "firecracker-sha256", "", "expected firecracker sha256 digest")
	cmd.Flags().StringVar(&jailerSHA, "jailer-sha256", "", "expected jailer sha256 digest")
	cmd.Flags().BoolVar(&jailer, "jailer", false, "also resolve the jailer binary")
	return cmd
}
