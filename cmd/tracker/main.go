package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"portfolio-tracker/internal/cli"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/security"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config is loaded by the root command once --config is parsed.
	rootCmd := cli.NewRootCmd(nil, logging.NewLogger())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", security.Redact(err.Error()))
		stop()
		os.Exit(1)
	}
}
