// Package manifest records every archived page as a parquet file next to
// the archive blobs.
package manifest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/parquet-go/parquet-go"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/archive"
	"github.com/jsmithdenverdev/poc-cold-archiver/internal/models"
)

const contentTypeParquet = "application/vnd.apache.parquet"

// Writer uploads one manifest per archived page.
type Writer struct {
	blobs  archive.BlobWriter
	logger *slog.Logger
}

var _ archive.PageObserver = (*Writer)(nil)

// NewWriter returns a manifest Writer storing manifests through blobs.
func NewWriter(blobs archive.BlobWriter, logger *slog.Logger) *Writer {
	return &Writer{blobs: blobs, logger: logger}
}

// Key returns the blob key of a page manifest.
func Key(runID string, page int) string {
	return fmt.Sprintf("manifests/%s/page-%05d.parquet", runID, page)
}

// Encode writes records as a parquet file.
func Encode(records []models.ArchivedRecord) ([]byte, error) {
	var buf bytes.Buffer

	w := parquet.NewGenericWriter[models.ArchivedRecord](&buf)
	if _, err := w.Write(records); err != nil {
		return nil, fmt.Errorf("failed to write manifest rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close manifest writer: %w", err)
	}

	return buf.Bytes(), nil
}

// PageArchived uploads the manifest of a page.
func (w *Writer) PageArchived(ctx context.Context, runID string, page int, records []models.ArchivedRecord) error {
	body, err := Encode(records)
	if err != nil {
		return err
	}

	key := Key(runID, page)
	if err := w.blobs.Upload(ctx, key, body, contentTypeParquet); err != nil {
		return fmt.Errorf("failed to upload manifest %s: %w", key, err)
	}

	w.logger.InfoContext(ctx, "Wrote manifest", "blob", key, "num_rows", len(records))
	return nil
}
