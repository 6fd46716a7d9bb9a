package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/events"
)

func main() {
	if err := run(context.Background(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	logger := slog.New(slog.NewJSONHandler(stdout, nil))
	lambda.Start(handleArchiveEvents(logger))
	return nil
}

// handleArchiveEvents logs every archived record. Messages that cannot be
// decoded are reported back as batch item failures so SQS redelivers only
// those.
func handleArchiveEvents(logger *slog.Logger) func(context.Context, lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
	return func(ctx context.Context, event lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
		logger.InfoContext(ctx, "Received SQS event", "count", len(event.Records))

		var resp lambdaevents.SQSEventResponse
		for _, msg := range event.Records {
			record, err := events.Decode(msg.Body)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to decode archive event", "message_id", msg.MessageId, "error", err)
				resp.BatchItemFailures = append(resp.BatchItemFailures, lambdaevents.SQSBatchItemFailure{
					ItemIdentifier: msg.MessageId,
				})
				continue
			}

			logger.InfoContext(ctx, "Record archived",
				"run_id", record.RunID,
				"id", record.ID,
				"customer_id", record.CustomerID,
				"created_date", record.CreatedDate,
				"blob", record.BlobKey,
				"bytes", record.Bytes,
				"archived_at", record.ArchivedAt)
		}

		return resp, nil
	}
}
