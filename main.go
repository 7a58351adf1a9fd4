// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/compass-pilot/cmd"
	"github.com/xkilldash9x/compass-pilot/internal/observability"
)

// main wires signal handling around the CLI. An interrupted run exits
// non-zero like any other failure; CI must never mistake it for a pass.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		os.Exit(1)
	}
}
