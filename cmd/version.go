// File: cmd/version.go
package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/compass-pilot/internal/runner"
)

// Version is the harness version, set at build time:
//
//	go build -ldflags "-X github.com/xkilldash9x/compass-pilot/cmd.Version=1.0.0"
var Version = "0.1.0"

// newVersionCmd creates the `version` command, which adds the checkout
// revision and toolchain to the bare --version output.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the harness version, checkout revision, and toolchain",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "compass-pilot %s (revision %s, %s)\n",
				Version, runner.Revision("."), runtime.Version())
		},
	}
}
