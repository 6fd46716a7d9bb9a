// Package events publishes archived records to an SQS queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"golang.org/x/sync/errgroup"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/archive"
	"github.com/jsmithdenverdev/poc-cold-archiver/internal/models"
)

const (
	// sqsBatchSize is the most entries one SendMessageBatch call accepts.
	sqsBatchSize = 10
)

// sqsAPI is the subset of *sqs.Client used by Publisher.
type sqsAPI interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// Publisher sends one message per archived record.
type Publisher struct {
	client   sqsAPI
	queueURL string
	logger   *slog.Logger
}

var _ archive.PageObserver = (*Publisher)(nil)

// NewPublisher returns a Publisher for queueURL.
func NewPublisher(client *sqs.Client, queueURL string, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, queueURL: queueURL, logger: logger}
}

// publishRequest is one batch of a page's archive events.
type publishRequest struct {
	page       int
	batchIndex int
	records    []models.ArchivedRecord
}

// PageArchived publishes the records of a page in batches sent
// concurrently. Any failed entry fails the page.
func (p *Publisher) PageArchived(ctx context.Context, runID string, page int, records []models.ArchivedRecord) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i*sqsBatchSize < len(records); i++ {
		start := i * sqsBatchSize
		end := min(start+sqsBatchSize, len(records))
		g.Go(p.publishBatch(gctx, publishRequest{
			page:       page,
			batchIndex: i,
			records:    records[start:end],
		}))
	}

	if err := g.Wait(); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "Published archive events",
		"run_id", runID,
		"page", page,
		"count", len(records))
	return nil
}

// publishBatch returns an errgroup task that sends the archive events of
// one batch and fails if any entry is rejected.
func (p *Publisher) publishBatch(ctx context.Context, req publishRequest) func() error {
	return func() error {
		entries := make([]types.SendMessageBatchRequestEntry, 0, len(req.records))
		for j, record := range req.records {
			body, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal archive event for %s: %w", record.ID, err)
			}

			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(strconv.Itoa(req.batchIndex*sqsBatchSize + j)), // index within the page
				MessageBody: aws.String(string(body)),
			})
		}

		result, err := p.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(p.queueURL),
			Entries:  entries,
		})
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to send message batch to SQS",
				"page", req.page,
				"batch_index", req.batchIndex,
				"batch_size", len(req.records),
				"queue_url", p.queueURL,
				"error", err)
			return fmt.Errorf("failed to send message batch to SQS: %w", err)
		}

		if len(result.Failed) > 0 {
			p.logger.ErrorContext(ctx, "Some messages failed to send",
				"page", req.page,
				"batch_index", req.batchIndex,
				"failed_count", len(result.Failed),
				"failed_messages", result.Failed)
			return fmt.Errorf("failed to send %d messages in batch %d of page %d", len(result.Failed), req.batchIndex, req.page)
		}

		return nil
	}
}
