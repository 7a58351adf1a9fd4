// File: cmd/smoke.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/observability"
	"github.com/xkilldash9x/compass-pilot/internal/runner"
)

// newSmokeCmd creates the `smoke` command, the harness's main entry point:
// launch the packaged build, walk the sampling suite, emit the run outputs.
func newSmokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Launches the packaged build and runs the sampling smoke suite",
		Long: `Smoke launches the packaged Compass build under the egress guard, walks
the connect-and-sample scenario suite against it, and writes the JUnit
report and artifact bundle for the run. A scenario failure exits non-zero
after filing the configured failure outputs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			res, err := runner.New(cfg, logger).Run(cmd.Context())
			if err != nil {
				return err
			}

			if !res.Passed {
				logger.Error("Smoke suite failed.",
					zap.String("command", res.FailedCommand),
					zap.String("bundle", res.BundlePath),
					zap.String("issue", res.IssueURL))
				return fmt.Errorf("smoke suite failed at %q: %w", res.FailedCommand, res.Err)
			}

			logger.Info("Smoke suite passed.",
				zap.Int("commands", len(res.Steps)),
				zap.Duration("took", res.Duration),
				zap.String("bundle", res.BundlePath))
			return nil
		},
	}

	cmd.Flags().String("dist", "", "packaged build directory (overrides app.dist_dir)")
	cmd.Flags().String("junit", "", "JUnit report path (overrides report.junit_path)")
	cmd.Flags().String("artifact-dir", "", "artifact bundle directory (overrides report.artifact_dir)")
	return cmd
}
