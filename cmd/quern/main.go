package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/quernio/quern/internal/cli"
	logpkg "github.com/quernio/quern/pkg/log"
)

func main() {
	// Respect QUERN_LOG_LEVEL for output emitted before config resolution.
	logger := logpkg.NewLogger(
		logpkg.WithLevel(logpkg.ParseLevel(os.Getenv("QUERN_LOG_LEVEL"))),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRoot()
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", logpkg.Err(err))
		os.Exit(1)
	}
}
