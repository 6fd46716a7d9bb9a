// Package config loads the archiver configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/caarlos0/env/v11"
)

// Blob providers supported by BLOB_PROVIDER.
const (
	ProviderAzure = "azure"
	ProviderS3    = "s3"
)

// Config is the configuration for the program.
type Config struct {
	// CosmosEndpoint is the URL of the Cosmos DB account
	CosmosEndpoint string `env:"COSMOS_ENDPOINT,required,notEmpty"`

	// CosmosKey is the account key used to authenticate with Cosmos DB
	CosmosKey string `env:"COSMOS_KEY,required,notEmpty"`

	// CosmosDatabase is the database holding the records
	CosmosDatabase string `env:"COSMOS_DATABASE,required,notEmpty"`

	// CosmosContainer is the container holding the records
	CosmosContainer string `env:"COSMOS_CONTAINER,required,notEmpty"`

	// BlobProvider selects where archive blobs are written, azure or s3
	BlobProvider string `env:"BLOB_PROVIDER" envDefault:"azure"`

	// BlobConnString is the Azure Storage connection string
	BlobConnString string `env:"BLOB_CONN_STRING"`

	// BlobContainer is the container (or bucket for s3) archive blobs are written to
	BlobContainer string `env:"BLOB_CONTAINER,required,notEmpty"`

	// S3EndpointOverride is the endpoint to use for S3
	S3EndpointOverride string `env:"S3_ENDPOINT_OVERRIDE"`

	// RetentionDays is how many days a record stays in Cosmos DB
	RetentionDays int `env:"ARCHIVE_RETENTION_DAYS" envDefault:"90"`

	// PageSize is the number of documents requested per query page
	PageSize int `env:"ARCHIVE_PAGE_SIZE" envDefault:"100"`

	// DryRun only logs the documents that would be archived
	DryRun bool `env:"ARCHIVE_DRY_RUN" envDefault:"false"`

	// Manifest enables the parquet manifest written for every page
	Manifest bool `env:"ARCHIVE_MANIFEST" envDefault:"false"`

	// QueueURL is the URL of the SQS queue archive events are published to
	QueueURL string `env:"ARCHIVE_QUEUE_URL"`

	// PushgatewayURL is the Prometheus Pushgateway run metrics are pushed to
	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
}

// Load parses the configuration from environ and validates it. Every
// problem found is reported in the returned error.
func Load(environ map[string]string) (Config, error) {
	var cfg Config
	parseErr := env.ParseWithOptions(&cfg, env.Options{Environment: environ})

	if err := errors.Join(parseErr, cfg.validate()); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c Config) validate() error {
	var errs []error

	switch c.BlobProvider {
	case ProviderAzure:
		if c.BlobConnString == "" {
			errs = append(errs, errors.New(`BLOB_CONN_STRING is required when BLOB_PROVIDER is "azure"`))
		}
	case ProviderS3:
	default:
		errs = append(errs, fmt.Errorf("BLOB_PROVIDER must be %q or %q, got %q", ProviderAzure, ProviderS3, c.BlobProvider))
	}

	if c.RetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("ARCHIVE_RETENTION_DAYS must be positive, got %d", c.RetentionDays))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("ARCHIVE_PAGE_SIZE must be positive, got %d", c.PageSize))
	}
	// The document store takes the page size as an int32 hint.
	if c.PageSize > math.MaxInt32 {
		errs = append(errs, fmt.Errorf("ARCHIVE_PAGE_SIZE must be at most %d, got %d", math.MaxInt32, c.PageSize))
	}

	return errors.Join(errs...)
}

// Retention returns the retention window as a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
