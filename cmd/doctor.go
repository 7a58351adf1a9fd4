// File: cmd/doctor.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/compass-pilot/internal/config"
	"github.com/xkilldash9x/compass-pilot/internal/launcher"
)

// doctorCheck probes one precondition of a smoke run. The returned detail
// is shown to the user either way; the error marks the check failed.
type doctorCheck struct {
	name string
	run  func(ctx context.Context, cfg *config.Config) (string, error)
}

// doctorChecks covers everything a run needs before it starts: a packaged
// build to launch, somewhere to put artifacts, and reachable sinks for the
// optional outputs.
var doctorChecks = []doctorCheck{
	{name: "packaged build", run: checkBuild},
	{name: "artifact directory", run: checkArtifactDir},
	{name: "history store", run: checkHistory},
	{name: "issue filing", run: checkGitHub},
	{name: "failure triage", run: checkTriage},
}

// newDoctorCmd creates the `doctor` command: run every environment check
// and exit non-zero if any precondition is missing.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Checks that the environment can support a smoke run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			failed := 0
			for _, check := range doctorChecks {
				detail, err := check.run(cmd.Context(), cfg)
				if err != nil {
					failed++
					fmt.Fprintf(out, "[FAIL] %-20s %v\n", check.name, err)
					continue
				}
				fmt.Fprintf(out, "[ OK ] %-20s %s\n", check.name, detail)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(doctorChecks))
			}
			fmt.Fprintln(out, "Environment is ready for a smoke run.")
			return nil
		},
	}
}

// checkBuild resolves the application executable the way the launcher
// will, so a missing build fails here instead of mid-run.
func checkBuild(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.App.Executable != "" {
		info, err := os.Stat(cfg.App.Executable)
		if err != nil {
			return "", fmt.Errorf("configured executable is unusable: %w", err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("configured executable %s is a directory", cfg.App.Executable)
		}
		return cfg.App.Executable, nil
	}
	exe, err := launcher.Resolve(cfg.App.DistDir)
	if err != nil {
		return "", err
	}
	return exe, nil
}

func checkArtifactDir(ctx context.Context, cfg *config.Config) (string, error) {
	if err := os.MkdirAll(cfg.Report.ArtifactDir, 0o755); err != nil {
		return "", fmt.Errorf("artifact directory is not writable: %w", err)
	}
	return cfg.Report.ArtifactDir, nil
}

// checkHistory pings the configured Postgres instance. Disabled history is
// a pass; the store is optional.
func checkHistory(ctx context.Context, cfg *config.Config) (string, error) {
	if !cfg.History.Enabled {
		return "disabled", nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(pingCtx, cfg.History.URL)
	if err != nil {
		return "", fmt.Errorf("history database unreachable: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(pingCtx); err != nil {
		return "", fmt.Errorf("history database unreachable: %w", err)
	}
	return "connected", nil
}

func checkGitHub(ctx context.Context, cfg *config.Config) (string, error) {
	gh := cfg.Report.GitHub
	if !gh.Enabled {
		return "disabled", nil
	}
	// Validation already enforced owner, name, and token presence.
	return fmt.Sprintf("filing to %s/%s", gh.RepoOwner, gh.RepoName), nil
}

func checkTriage(ctx context.Context, cfg *config.Config) (string, error) {
	if !cfg.Triage.Enabled {
		return "disabled", nil
	}
	return "model " + cfg.Triage.Model, nil
}
