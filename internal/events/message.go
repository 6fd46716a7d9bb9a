package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/models"
)

// Decode parses the body of an archive event message.
func Decode(body string) (models.ArchivedRecord, error) {
	var record models.ArchivedRecord
	if err := json.Unmarshal([]byte(body), &record); err != nil {
		return models.ArchivedRecord{}, fmt.Errorf("failed to decode archive event: %w", err)
	}
	if record.ID == "" || record.BlobKey == "" {
		return models.ArchivedRecord{}, errors.New("archive event without id or blob key")
	}
	return record, nil
}
