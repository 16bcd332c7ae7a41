// Command creditsctl administers a credit ledger from the shell.
//
// Storage and engine settings come from CREDITS_* environment variables,
// optionally loaded from a .env file in the working directory.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, closeLedger := newRootCmd()
	err := root.ExecuteContext(ctx)
	if cerr := closeLedger(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Exit(1)
	}
}
