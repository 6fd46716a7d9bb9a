package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/runner"
)

func main() {
	if err := run(context.Background(), os.Stdout, os.Environ); err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v", err)
		os.Exit(1)
	}
}

// run executes the main logic of the program.
func run(ctx context.Context, stdout io.Writer, environ func() []string) error {
	// Create structured logger using JSON format
	logger := slog.New(slog.NewJSONHandler(stdout, nil))

	// Start lambda function. Configuration and clients are created per
	// invocation by the runner.
	lambda.StartWithOptions(handler(logger, runner.New(logger), environ), lambda.WithContext(ctx))

	return nil
}
