package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes denials from other failures for scripts
func exitCode(err error) int {
	switch accesserr.KindOf(err) {
	case accesserr.Unauthorized, accesserr.NoTenant, accesserr.Forbidden, accesserr.ProtectedRole:
		return 3
	case accesserr.StoreUnavailable:
		return 4
	default:
		return 1
	}
}
