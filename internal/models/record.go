package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingField is returned when a document lacks one of the fields
// required to archive it.
var ErrMissingField = errors.New("missing required field")

// Record represents a document read from the document store. Only the
// fields needed to address and age the document are decoded, the rest of
// the document is kept verbatim in Body.
type Record struct {
	ID          string
	CustomerID  string
	CreatedDate string

	// Body is the document exactly as the store returned it
	Body json.RawMessage
}

// recordKeys mirrors the addressable fields of a document. Pointers let us
// tell a missing field apart from an empty one.
type recordKeys struct {
	ID          *string `json:"id"`
	CustomerID  *string `json:"customerId"`
	CreatedDate *string `json:"createdDate"`
}

// ParseRecord decodes the required fields of a raw document.
func ParseRecord(raw []byte) (Record, error) {
	var keys recordKeys
	if err := json.Unmarshal(raw, &keys); err != nil {
		return Record{}, fmt.Errorf("failed to decode document: %w", err)
	}

	switch {
	case keys.ID == nil || *keys.ID == "":
		return Record{}, fmt.Errorf("%w: id", ErrMissingField)
	case keys.CustomerID == nil || *keys.CustomerID == "":
		return Record{}, fmt.Errorf("%w: customerId (document %s)", ErrMissingField, *keys.ID)
	case keys.CreatedDate == nil || *keys.CreatedDate == "":
		return Record{}, fmt.Errorf("%w: createdDate (document %s)", ErrMissingField, *keys.ID)
	}

	return Record{
		ID:          *keys.ID,
		CustomerID:  *keys.CustomerID,
		CreatedDate: *keys.CreatedDate,
		Body:        json.RawMessage(raw),
	}, nil
}

// BlobKey is the name of the archive blob for the record.
func (r Record) BlobKey() string {
	return r.ID + ".json"
}

// ArchivedRecord describes a record that was uploaded and removed from the
// document store during a run.
type ArchivedRecord struct {
	RunID       string    `json:"run_id" parquet:"run_id"`
	ID          string    `json:"id" parquet:"id"`
	CustomerID  string    `json:"customer_id" parquet:"customer_id"`
	CreatedDate string    `json:"created_date" parquet:"created_date"`
	BlobKey     string    `json:"blob_key" parquet:"blob_key"`
	Bytes       int64     `json:"bytes" parquet:"bytes"`
	ArchivedAt  time.Time `json:"archived_at" parquet:"archived_at"`
}
