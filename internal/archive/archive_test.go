package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/models"
)

// memStore is an in-memory partitioned document store.
type memStore struct {
	order     []string
	docs      map[string]json.RawMessage
	deleteErr func(id string) error
	queries   []string

	// ignoreCutoff returns every document, as a store with a looser
	// comparison would.
	ignoreCutoff bool
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]json.RawMessage)}
}

func storeKey(partitionKey, id string) string {
	return partitionKey + "/" + id
}

func (s *memStore) put(t *testing.T, doc map[string]any) json.RawMessage {
	t.Helper()

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	id, _ := doc["id"].(string)
	pk, _ := doc["customerId"].(string)
	key := storeKey(pk, id)
	if _, ok := s.docs[key]; !ok {
		s.order = append(s.order, key)
	}
	s.docs[key] = raw
	return raw
}

func (s *memStore) has(partitionKey, id string) bool {
	_, ok := s.docs[storeKey(partitionKey, id)]
	return ok
}

func (s *memStore) QueryOlderThan(ctx context.Context, cutoff string, pageSize int, fn func([]json.RawMessage) error) error {
	s.queries = append(s.queries, cutoff)

	var matches []json.RawMessage
	for _, key := range s.order {
		raw, ok := s.docs[key]
		if !ok {
			continue
		}
		var doc struct {
			CreatedDate string `json:"createdDate"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		if s.ignoreCutoff || doc.CreatedDate < cutoff {
			matches = append(matches, raw)
		}
	}

	for start := 0; start < len(matches); start += pageSize {
		end := min(start+pageSize, len(matches))
		if err := fn(matches[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) Delete(ctx context.Context, id, partitionKey string) error {
	if s.deleteErr != nil {
		if err := s.deleteErr(id); err != nil {
			return err
		}
	}
	key := storeKey(partitionKey, id)
	if _, ok := s.docs[key]; !ok {
		return ErrRecordNotFound
	}
	delete(s.docs, key)
	return nil
}

// memBlobs records uploads by key.
type memBlobs struct {
	blobs   map[string][]byte
	uploads int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: make(map[string][]byte)}
}

func (b *memBlobs) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	b.uploads++
	b.blobs[key] = append([]byte(nil), body...)
	return nil
}

type pageCall struct {
	runID   string
	page    int
	records []models.ArchivedRecord
}

type recordingObserver struct {
	calls []pageCall
	err   error
}

func (o *recordingObserver) PageArchived(ctx context.Context, runID string, page int, records []models.ArchivedRecord) error {
	o.calls = append(o.calls, pageCall{runID: runID, page: page, records: records})
	return o.err
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var june2023 = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

func TestCutoff(t *testing.T) {
	assert.Equal(t, "2023-03-03T00:00:00", Cutoff(june2023, DefaultRetention))

	local := time.Date(2023, 6, 1, 2, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	assert.Equal(t, "2023-03-03T00:00:00", Cutoff(local, DefaultRetention), "cutoff is computed in UTC")

	fractional := june2023.Add(500 * time.Millisecond)
	assert.Equal(t, "2023-03-03T00:00:00.5", Cutoff(fractional, DefaultRetention))

	micros := june2023.Add(123456789 * time.Nanosecond)
	assert.Equal(t, "2023-03-03T00:00:00.123456", Cutoff(micros, DefaultRetention))
}

func TestParseCreatedDate(t *testing.T) {
	want := time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		value string
		want  time.Time
	}{
		{value: "2023-03-03T00:00:00", want: want},
		{value: "2023-03-03T00:00:00.000000", want: want},
		{value: "2023-03-03T00:00:00.25", want: want.Add(250 * time.Millisecond)},
		{value: "2023-03-03T00:00:00Z", want: want},
		{value: "2023-03-03T02:00:00+02:00", want: want},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := ParseCreatedDate(tt.value)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseCreatedDate("03/03/2023")
	assert.ErrorIs(t, err, ErrInvalidCreatedDate)
}

func TestRunArchivesAgedRecord(t *testing.T) {
	store := newMemStore()
	blobs := newMemBlobs()
	raw := store.put(t, map[string]any{
		"id":          "abc123",
		"customerId":  "cust1",
		"createdDate": "2023-01-01T00:00:00",
		"payload":     "x",
	})

	a := New(testLogger(), store, blobs, Options{RunID: "run-1", Now: fixedNow(june2023)})
	result, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Archived)
	assert.Equal(t, "2023-03-03T00:00:00", result.Cutoff)
	assert.Equal(t, int64(len(raw)), result.Bytes)
	assert.JSONEq(t, string(raw), string(blobs.blobs["abc123.json"]))
	assert.Equal(t, []byte(raw), blobs.blobs["abc123.json"])
	assert.False(t, store.has("cust1", "abc123"))
}

func TestRunLeavesRecentRecords(t *testing.T) {
	store := newMemStore()
	blobs := newMemBlobs()
	cutoff := Cutoff(june2023, DefaultRetention)
	store.put(t, map[string]any{"id": "old", "customerId": "c1", "createdDate": "2023-03-02T23:59:59.999999"})
	store.put(t, map[string]any{"id": "boundary", "customerId": "c1", "createdDate": cutoff})
	store.put(t, map[string]any{"id": "boundary-seconds", "customerId": "c1", "createdDate": "2023-03-03T00:00:00"})
	store.put(t, map[string]any{"id": "boundary-micros", "customerId": "c1", "createdDate": "2023-03-03T00:00:00.000000"})
	store.put(t, map[string]any{"id": "new", "customerId": "c2", "createdDate": "2023-05-30T10:00:00"})

	a := New(testLogger(), store, blobs, Options{Now: fixedNow(june2023)})
	result, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Archived)
	assert.Equal(t, []string{"old.json"}, keys(blobs.blobs))
	assert.False(t, store.has("c1", "old"))
	assert.True(t, store.has("c1", "boundary"))
	assert.True(t, store.has("c1", "boundary-seconds"))
	assert.True(t, store.has("c1", "boundary-micros"))
	assert.True(t, store.has("c2", "new"))
}

func TestRunSkipsRecordsAtCutoffWhenStoreOverMatches(t *testing.T) {
	store := newMemStore()
	store.ignoreCutoff = true
	blobs := newMemBlobs()
	store.put(t, map[string]any{"id": "old", "customerId": "c1", "createdDate": "2023-03-02T23:59:59"})
	store.put(t, map[string]any{"id": "seconds", "customerId": "c1", "createdDate": "2023-03-03T00:00:00"})
	store.put(t, map[string]any{"id": "micros", "customerId": "c1", "createdDate": "2023-03-03T00:00:00.000000"})
	store.put(t, map[string]any{"id": "offset", "customerId": "c1", "createdDate": "2023-03-03T02:00:00+02:00"})
	store.put(t, map[string]any{"id": "new", "customerId": "c2", "createdDate": "2023-05-30T10:00:00"})

	a := New(testLogger(), store, blobs, Options{Now: fixedNow(june2023)})
	result, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Matched)
	assert.Equal(t, 1, result.Archived)
	assert.Equal(t, 4, result.Skipped)
	assert.Equal(t, []string{"old.json"}, keys(blobs.blobs))
	for _, id := range []string{"seconds", "micros", "offset"} {
		assert.True(t, store.has("c1", id), id)
	}
	assert.True(t, store.has("c2", "new"))
}

func TestRunAbortsOnUnreadableCreatedDate(t *testing.T) {
	store := newMemStore()
	store.ignoreCutoff = true
	blobs := newMemBlobs()
	store.put(t, map[string]any{"id": "a", "customerId": "c1", "createdDate": "2022-01-01T00:00:00"})
	store.put(t, map[string]any{"id": "b", "customerId": "c1", "createdDate": "01/02/2022"})
	store.put(t, map[string]any{"id": "c", "customerId": "c1", "createdDate": "2022-01-03T00:00:00"})

	a := New(testLogger(), store, blobs, Options{Now: fixedNow(june2023)})
	result, err := a.Run(context.Background())
	require.ErrorIs(t, err, ErrInvalidCreatedDate)

	assert.Equal(t, 1, result.Archived)
	assert.True(t, store.has("c1", "b"))
	assert.True(t, store.has("c1", "c"))
	assert.NotContains(t, blobs.blobs, "c.json")
}

func TestRunIsIdempotent(t *testing.T) {
	store := newMemStore()
	blobs := newMemBlobs()
	store.put(t, map[string]any{"id": "a", "customerId": "c1", "createdDate": "2022-01-01T00:00:00"})
	store.put(t, map[string]any{"id": "b", "customerId": "c2", "createdDate": "2022-02-01T00:00:00"})

	a := New(testLogger(), store, blobs, Options{Now: fixedNow(june2023)})

	first, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Archived)
	assert.Equal(t, 2, blobs.uploads)

	second, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Matched)
	assert.Equal(t, 0, second.Pages)
	assert.Equal(t, 2, blobs.uploads, "second run must not upload")
	assert.Len(t, blobs.blobs, 2)
}

func TestRunResumesAfterFailedDelete(t *testing.T) {
	store := newMemStore()
	blobs := newMemBlobs()
	store.put(t, map[string]any{"id": "a", "customerId": "c1", "createdDate": "2022-01-01T00:00:00"})
	store.put(t, map[string]any{"id": "b", "customerId": "c1", "createdDate": "2022-01-02T00:00:00"})

	failure := errors.New("connection reset")
	store.deleteErr = func(id string) error {
		if id == "a" {
			return failure
		}
		return nil
	}

	a := New(testLogger(), store, blobs, Options{Now: fixedNow(june2023)})
	_, err := a.Run(context.Background())
	require.ErrorIs(t, err, failure)

	uploaded := append([]byte(nil), blobs.blobs["a.json"]...)
	assert.NotEmpty(t, uploaded, "blob is written before the failed delete")
	assert.True(t, store.has("c1", "a"))
	assert.True(t, store.has("c1", "b"), "records after the failure are not processed")
	assert.NotContains(t, blobs.blobs, "b.json")

	store.deleteErr = nil
	result, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Archived)
	assert.Equal(t, uploaded, blobs.blobs["a.json"], "re-run rewrites an identical blob")
	assert.False(t, store.has("c1", "a"))
	assert.False(t, store.has("c1", "b"))
}

func TestRunToleratesAlreadyDeletedRecord(t *testing.T) {
	store := newMemStore()
	blobs := newMemBlobs()
	store.put(t, map[string]any{"id": "a", "customerId": "c1", "createdDate": "2022-01-01T00:00:00"})
	store.put(t, map[string]any{"id": "b", "customerId": "c1", "createdDate": "2022-01-02T00:00:00"})
	store.deleteErr = func(id string) error {
		if id == "a" {
			return ErrRecordNotFound
		}
		return nil
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	a := New(logger, store, blobs, Options{Now: fixedNow(june2023)})
	result, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Archived)
	assert.Equal(t, 1, result.AlreadyDeleted)
	assert.Contains(t, blobs.blobs, "a.json")
	assert.False(t, store.has("c1", "b"))

	assert.Contains(t, logs.String(), `"msg":"Document already deleted, counting it as archived and continuing"`)
	assert.Contains(t, logs.String(), `"msg":"Archive run completed"`)
	assert.NotContains(t, logs.String(), `"msg":"Archive run failed"`)
}

func TestRunAbortsOnMissingField(t *testing.T) {
	store := newMemStore()
	blobs := newMemBlobs()
	store.put(t, map[string]any{"id": "a", "customerId": "c1", "createdDate": "2022-01-01T00:00:00"})
	store.put(t, map[string]any{"id": "broken", "createdDate": "2022-01-02T00:00:00"})
	store.put(t, map[string]any{"id": "c", "customerId": "c1", "createdDate": "2022-01-03T00:00:00"})

	a := New(testLogger(), store, blobs, Options{Now: fixedNow(june2023)})
	result, err := a.Run(context.Background())
	require.ErrorIs(t, err, models.ErrMissingField)

	assert.Equal(t, 1, result.Archived)
	assert.False(t, store.has("c1", "a"))
	assert.True(t, store.has("c1", "c"))
	assert.NotContains(t, blobs.blobs, "c.json")
}

func TestRunDryRun(t *testing.T) {
	store := newMemStore()
	blobs := newMemBlobs()
	observer := &recordingObserver{}
	store.put(t, map[string]any{"id": "a", "customerId": "c1", "createdDate": "2022-01-01T00:00:00"})

	a := New(testLogger(), store, blobs, Options{DryRun: true, Now: fixedNow(june2023)}, observer)
	result, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 0, result.Archived)
	assert.Zero(t, blobs.uploads)
	assert.True(t, store.has("c1", "a"))
	assert.Empty(t, observer.calls)
}

func TestRunNotifiesObserversPerPage(t *testing.T) {
	store := newMemStore()
	blobs := newMemBlobs()
	observer := &recordingObserver{}
	for _, id := range []string{"a", "b", "c"} {
		store.put(t, map[string]any{"id": id, "customerId": "c1", "createdDate": "2022-01-01T00:00:00"})
	}

	a := New(testLogger(), store, blobs, Options{RunID: "run-7", PageSize: 2, Now: fixedNow(june2023)}, observer)
	result, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Pages)
	require.Len(t, observer.calls, 2)

	assert.Equal(t, "run-7", observer.calls[0].runID)
	assert.Equal(t, 1, observer.calls[0].page)
	require.Len(t, observer.calls[0].records, 2)
	assert.Equal(t, "a", observer.calls[0].records[0].ID)
	assert.Equal(t, "a.json", observer.calls[0].records[0].BlobKey)
	assert.Equal(t, june2023, observer.calls[0].records[0].ArchivedAt)

	assert.Equal(t, 2, observer.calls[1].page)
	require.Len(t, observer.calls[1].records, 1)
	assert.Equal(t, "c", observer.calls[1].records[0].ID)
}

func TestRunFailsWhenObserverFails(t *testing.T) {
	store := newMemStore()
	blobs := newMemBlobs()
	failure := errors.New("queue unavailable")
	observer := &recordingObserver{err: failure}
	store.put(t, map[string]any{"id": "a", "customerId": "c1", "createdDate": "2022-01-01T00:00:00"})

	a := New(testLogger(), store, blobs, Options{Now: fixedNow(june2023)}, observer)
	_, err := a.Run(context.Background())
	require.ErrorIs(t, err, failure)
}

func TestNewAppliesDefaults(t *testing.T) {
	store := newMemStore()
	a := New(testLogger(), store, newMemBlobs(), Options{Now: fixedNow(june2023)})

	_, err := a.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.queries, 1)
	assert.Equal(t, "2023-03-03T00:00:00", store.queries[0])
	assert.Equal(t, DefaultPageSize, a.opts.PageSize)
}
