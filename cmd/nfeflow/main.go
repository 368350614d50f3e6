package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dwsmith1983/nfeflow/internal/commands"
	"github.com/dwsmith1983/nfeflow/internal/lock"
)

var version = "dev"

// Exit codes seen by the scheduler.
const (
	exitOK       = 0
	exitFailure  = 1
	exitLockHeld = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.NewRootCmd(version).ExecuteContext(ctx)
	stop()

	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, lock.ErrHeld):
		fmt.Fprintln(os.Stderr, "another run is in progress")
		return exitLockHeld
	default:
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
}
