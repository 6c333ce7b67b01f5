// Command agency-cli runs operator tasks against the agency service:
// migrations, seeding, report exports and reset token housekeeping.
//
// Exit codes: 0 success, 1 general failure, 2 usage or validation error,
// 3 Postgres or Redis unavailable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/otherjamesbrown/agency-service/internal/cli/clierrors"
	"github.com/otherjamesbrown/agency-service/internal/cli/commands"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCommand(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(clierrors.ExitCode(err))
	}
}
