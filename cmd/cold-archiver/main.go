package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/archive"
	"github.com/jsmithdenverdev/poc-cold-archiver/internal/runner"
)

// archiveRunner runs a single archive pass over the configured container.
type archiveRunner interface {
	Run(ctx context.Context, environ map[string]string) (archive.Result, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(ctx, os.Stdout, runner.New(logger), env.ToMap(os.Environ())); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		stop()
		os.Exit(1)
	}
}

// run archives aged records once and prints a summary line. It is meant to
// be started by cron or a Kubernetes CronJob.
func run(ctx context.Context, stdout io.Writer, r archiveRunner, environ map[string]string) error {
	result, err := r.Run(ctx, environ)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "archived %d records older than %s (run %s)\n", result.Archived, result.Cutoff, result.RunID)
	return nil
}
