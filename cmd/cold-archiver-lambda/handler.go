package main

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/caarlos0/env/v11"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/archive"
)

// archiveRunner runs a single archive pass over the configured container.
type archiveRunner interface {
	Run(ctx context.Context, environ map[string]string) (archive.Result, error)
}

// response is the response for the handler function.
type response struct {
	RunID          string `json:"run_id"`
	Cutoff         string `json:"cutoff"`
	Archived       int    `json:"archived"`
	AlreadyDeleted int    `json:"already_deleted"`
	Skipped        int    `json:"skipped"`
}

// handler archives aged records whenever the schedule fires. The scheduled
// event carries no input, it is only logged.
func handler(logger *slog.Logger, r archiveRunner, environ func() []string) func(context.Context, events.CloudWatchEvent) (response, error) {
	return func(ctx context.Context, event events.CloudWatchEvent) (response, error) {
		logger.InfoContext(ctx, "Received scheduled event",
			"event_id", event.ID,
			"time", event.Time,
			"resources", event.Resources)

		result, err := r.Run(ctx, env.ToMap(environ()))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to archive records", "error", err)
			return response{}, err
		}

		return response{
			RunID:          result.RunID,
			Cutoff:         result.Cutoff,
			Archived:       result.Archived,
			AlreadyDeleted: result.AlreadyDeleted,
			Skipped:        result.Skipped,
		}, nil
	}
}
