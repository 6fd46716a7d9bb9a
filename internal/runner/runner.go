// Package runner builds the clients for a single archive run from the
// environment and executes it.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/archive"
	"github.com/jsmithdenverdev/poc-cold-archiver/internal/blobstore"
	"github.com/jsmithdenverdev/poc-cold-archiver/internal/config"
	"github.com/jsmithdenverdev/poc-cold-archiver/internal/docstore"
	"github.com/jsmithdenverdev/poc-cold-archiver/internal/events"
	"github.com/jsmithdenverdev/poc-cold-archiver/internal/manifest"
	"github.com/jsmithdenverdev/poc-cold-archiver/internal/metrics"
)

// Runner executes archive runs. Every run reloads the configuration and
// creates new clients.
type Runner struct {
	logger *slog.Logger
	now    func() time.Time

	newStore     func(config.Config) (archive.Store, error)
	newBlobs     func(config.Config, func() (aws.Config, error)) (archive.BlobWriter, error)
	newPublisher func(config.Config, aws.Config) archive.PageObserver
	loadAWS      func(context.Context) (aws.Config, error)
}

// New returns a Runner using the Cosmos DB, Azure Blob Storage, S3 and SQS
// clients.
func New(logger *slog.Logger) *Runner {
	return &Runner{
		logger:       logger,
		now:          time.Now,
		newStore:     newCosmosStore,
		newBlobs:     newBlobWriter,
		newPublisher: newEventPublisher(logger),
		loadAWS: func(ctx context.Context) (aws.Config, error) {
			return awsconfig.LoadDefaultConfig(ctx)
		},
	}
}

// Run loads the configuration from environ and archives every aged record.
func (r *Runner) Run(ctx context.Context, environ map[string]string) (archive.Result, error) {
	cfg, err := config.Load(environ)
	if err != nil {
		return archive.Result{}, err
	}

	runID := uuid.NewString()

	// The AWS config is loaded at most once, and only when S3 or SQS is used.
	var (
		awscfg    aws.Config
		awsLoaded bool
	)
	loadAWS := func() (aws.Config, error) {
		if awsLoaded {
			return awscfg, nil
		}
		c, err := r.loadAWS(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
		}
		awscfg, awsLoaded = c, true
		return awscfg, nil
	}

	store, err := r.newStore(cfg)
	if err != nil {
		return archive.Result{}, err
	}

	blobs, err := r.newBlobs(cfg, loadAWS)
	if err != nil {
		return archive.Result{}, err
	}

	var observers []archive.PageObserver
	if cfg.Manifest {
		observers = append(observers, manifest.NewWriter(blobs, r.logger))
	}
	if cfg.QueueURL != "" {
		c, err := loadAWS()
		if err != nil {
			return archive.Result{}, err
		}
		observers = append(observers, r.newPublisher(cfg, c))
	}

	archiver := archive.New(r.logger, store, blobs, archive.Options{
		RunID:     runID,
		Retention: cfg.Retention(),
		PageSize:  cfg.PageSize,
		DryRun:    cfg.DryRun,
		Now:       r.now,
	}, observers...)

	result, runErr := archiver.Run(ctx)

	if cfg.PushgatewayURL != "" {
		m := metrics.NewRun()
		m.Observe(result, runErr)
		if err := m.Push(ctx, cfg.PushgatewayURL); err != nil {
			r.logger.WarnContext(ctx, "Failed to push run metrics", "error", err)
		}
	}

	if runErr != nil {
		return result, fmt.Errorf("archive run %s failed: %w", runID, runErr)
	}
	return result, nil
}

func newCosmosStore(cfg config.Config) (archive.Store, error) {
	return docstore.NewCosmos(cfg.CosmosEndpoint, cfg.CosmosKey, cfg.CosmosDatabase, cfg.CosmosContainer)
}

func newBlobWriter(cfg config.Config, loadAWS func() (aws.Config, error)) (archive.BlobWriter, error) {
	switch cfg.BlobProvider {
	case config.ProviderS3:
		awscfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		return blobstore.NewS3(s3.NewFromConfig(awscfg, blobstore.WithEndpointOverride(cfg.S3EndpointOverride)), cfg.BlobContainer), nil
	default:
		return blobstore.NewAzureFromConnectionString(cfg.BlobConnString, cfg.BlobContainer)
	}
}

func newEventPublisher(logger *slog.Logger) func(config.Config, aws.Config) archive.PageObserver {
	return func(cfg config.Config, awscfg aws.Config) archive.PageObserver {
		return events.NewPublisher(sqs.NewFromConfig(awscfg), cfg.QueueURL, logger)
	}
}
