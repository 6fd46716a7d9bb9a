// Package archive moves aged documents from the document store to cold
// blob storage.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/models"
)

const (
	// DefaultRetention is how long a record stays in the document store.
	DefaultRetention = 90 * 24 * time.Hour

	// DefaultPageSize is the number of documents requested per query page.
	DefaultPageSize = 100

	// CutoffLayout is the layout of createdDate values: naive UTC with up to
	// microsecond precision. A zero fraction is left off, so a whole-second
	// cutoff reads "2023-03-03T00:00:00".
	CutoffLayout = "2006-01-02T15:04:05.999999"

	contentTypeJSON = "application/json"
)

// ErrRecordNotFound is returned by a Store when the document to delete no
// longer exists. The archiver does not abort on it: the blob was just
// written, so the record counts as already archived and the run continues.
var ErrRecordNotFound = errors.New("record not found")

// ErrInvalidCreatedDate is returned when a createdDate cannot be read as a
// timestamp.
var ErrInvalidCreatedDate = errors.New("invalid createdDate")

// Store is the document store holding live records.
type Store interface {
	// QueryOlderThan calls fn with successive pages of raw documents whose
	// createdDate is strictly less than cutoff.
	QueryOlderThan(ctx context.Context, cutoff string, pageSize int, fn func(page []json.RawMessage) error) error

	// Delete removes a document addressed by id and partition key. It
	// returns an error wrapping ErrRecordNotFound when the document is gone.
	// Unlike any other delete failure, the archiver treats that as a record
	// an earlier or concurrent run already archived and keeps going.
	Delete(ctx context.Context, id, partitionKey string) error
}

// BlobWriter writes blobs, replacing any blob with the same key.
type BlobWriter interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// PageObserver is notified once per page with the records archived from it.
type PageObserver interface {
	PageArchived(ctx context.Context, runID string, page int, records []models.ArchivedRecord) error
}

// Options configures an Archiver.
type Options struct {
	// RunID identifies the run in logs, events and manifests
	RunID string

	// Retention is the age after which a record is archived
	Retention time.Duration

	// PageSize is the number of documents requested per query page
	PageSize int

	// DryRun only queries and logs matching records
	DryRun bool

	// Now returns the current time, defaults to time.Now
	Now func() time.Time
}

// Result summarises a run.
type Result struct {
	RunID          string
	Cutoff         string
	Pages          int
	Matched        int
	Archived       int
	AlreadyDeleted int
	Skipped        int
	Bytes          int64
	StartedAt      time.Time
	Duration       time.Duration
}

// Archiver copies aged records to blob storage and deletes them from the
// store, one record at a time.
type Archiver struct {
	logger    *slog.Logger
	store     Store
	blobs     BlobWriter
	observers []PageObserver
	opts      Options
}

// New returns an Archiver. Zero option values fall back to defaults.
func New(logger *slog.Logger, store Store, blobs BlobWriter, opts Options, observers ...PageObserver) *Archiver {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Archiver{
		logger:    logger,
		store:     store,
		blobs:     blobs,
		observers: observers,
		opts:      opts,
	}
}

// Cutoff returns the createdDate boundary for now and retention. Records
// strictly older than the boundary are archived.
func Cutoff(now time.Time, retention time.Duration) string {
	return now.UTC().Add(-retention).Format(CutoffLayout)
}

// ParseCreatedDate reads a createdDate value. Values without an offset are
// UTC; RFC 3339 values with an offset are accepted too.
func ParseCreatedDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidCreatedDate, value)
	}
	return t.UTC(), nil
}

// Run archives every record older than the retention window. The first
// error aborts the run; records processed before it stay archived.
func (a *Archiver) Run(ctx context.Context) (Result, error) {
	started := a.opts.Now().UTC()
	cutoff := started.Add(-a.opts.Retention)
	result := Result{
		RunID:     a.opts.RunID,
		Cutoff:    cutoff.Format(CutoffLayout),
		StartedAt: started,
	}

	a.logger.InfoContext(ctx, "Starting archive run",
		"run_id", result.RunID,
		"cutoff", result.Cutoff,
		"page_size", a.opts.PageSize,
		"dry_run", a.opts.DryRun)

	err := a.store.QueryOlderThan(ctx, result.Cutoff, a.opts.PageSize, func(page []json.RawMessage) error {
		result.Pages++
		return a.archivePage(ctx, &result, cutoff, page)
	})
	result.Duration = a.opts.Now().Sub(started)
	if err != nil {
		a.logger.ErrorContext(ctx, "Archive run failed",
			"run_id", result.RunID,
			"archived", result.Archived,
			"error", err)
		return result, err
	}

	a.logger.InfoContext(ctx, "Archive run completed",
		"run_id", result.RunID,
		"timestamp", started.Format(time.RFC3339),
		"pages", result.Pages,
		"matched", result.Matched,
		"archived", result.Archived,
		"already_deleted", result.AlreadyDeleted,
		"skipped", result.Skipped,
		"bytes", result.Bytes,
		"duration", result.Duration.String())

	return result, nil
}

func (a *Archiver) archivePage(ctx context.Context, result *Result, cutoff time.Time, page []json.RawMessage) error {
	archived := make([]models.ArchivedRecord, 0, len(page))

	for i, raw := range page {
		record, err := models.ParseRecord(raw)
		if err != nil {
			return fmt.Errorf("failed to parse document %d of page %d: %w", i, result.Pages, err)
		}
		result.Matched++

		created, err := ParseCreatedDate(record.CreatedDate)
		if err != nil {
			return fmt.Errorf("failed to read document %s: %w", record.ID, err)
		}

		// Instants, not strings: the store may over-match mixed precisions.
		if !created.Before(cutoff) {
			a.logger.WarnContext(ctx, "Skipping document newer than cutoff",
				"id", record.ID,
				"created_date", record.CreatedDate,
				"cutoff", result.Cutoff)
			result.Skipped++
			continue
		}

		if a.opts.DryRun {
			a.logger.InfoContext(ctx, "Would archive document",
				"id", record.ID,
				"customer_id", record.CustomerID,
				"blob", record.BlobKey())
			continue
		}

		entry, err := a.archiveRecord(ctx, result, record)
		if err != nil {
			return err
		}
		archived = append(archived, entry)
	}

	if a.opts.DryRun || len(archived) == 0 {
		return nil
	}

	for _, o := range a.observers {
		if err := o.PageArchived(ctx, result.RunID, result.Pages, archived); err != nil {
			return fmt.Errorf("failed to report page %d: %w", result.Pages, err)
		}
	}

	return nil
}

func (a *Archiver) archiveRecord(ctx context.Context, result *Result, record models.Record) (models.ArchivedRecord, error) {
	blob := record.BlobKey()

	if err := a.blobs.Upload(ctx, blob, record.Body, contentTypeJSON); err != nil {
		return models.ArchivedRecord{}, fmt.Errorf("failed to upload document %s to blob %s: %w", record.ID, blob, err)
	}
	result.Bytes += int64(len(record.Body))
	a.logger.InfoContext(ctx, "Archived document", "id", record.ID, "blob", blob)

	err := a.store.Delete(ctx, record.ID, record.CustomerID)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		result.AlreadyDeleted++
		a.logger.WarnContext(ctx, "Document already deleted, counting it as archived and continuing",
			"id", record.ID,
			"customer_id", record.CustomerID)
	case err != nil:
		return models.ArchivedRecord{}, fmt.Errorf("failed to delete document %s: %w", record.ID, err)
	default:
		a.logger.InfoContext(ctx, "Deleted document", "id", record.ID, "customer_id", record.CustomerID)
	}
	result.Archived++

	return models.ArchivedRecord{
		RunID:       result.RunID,
		ID:          record.ID,
		CustomerID:  record.CustomerID,
		CreatedDate: record.CreatedDate,
		BlobKey:     blob,
		Bytes:       int64(len(record.Body)),
		ArchivedAt:  a.opts.Now().UTC(),
	}, nil
}
