package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/archive"
	"github.com/jsmithdenverdev/poc-cold-archiver/internal/docstore"
)

var (
	firstNames      = []string{"James", "Mary", "John", "Patricia", "Robert", "Jennifer", "Michael", "Linda", "William", "Elizabeth"}
	lastNames       = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez"}
	cities          = []string{"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Philadelphia", "San Antonio", "San Diego"}
	accountStatuses = []string{"active", "suspended", "pending", "closed"}
	tags            = []string{"vip", "new", "returning", "priority", "special_offer", "seasonal", "promotional"}
)

// seedDocument is a customer order document as stored in Cosmos DB.
type seedDocument struct {
	ID          string   `json:"id"`
	CustomerID  string   `json:"customerId"`
	CreatedDate string   `json:"createdDate"`
	Email       string   `json:"email"`
	City        string   `json:"city"`
	Status      string   `json:"status"`
	Amount      float64  `json:"amount"`
	Tags        []string `json:"tags"`
}

// upserter writes a document into a partition.
type upserter interface {
	Upsert(ctx context.Context, partitionKey string, doc []byte) error
}

func main() {
	if err := run(context.Background(), os.Stdout, os.Environ); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, environ func() []string) error {
	var cfg config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: env.ToMap(environ())}); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.MaxAgeDays <= 0 {
		return fmt.Errorf("SEED_MAX_AGE_DAYS must be positive, got %d", cfg.MaxAgeDays)
	}

	store, err := docstore.NewCosmos(cfg.CosmosEndpoint, cfg.CosmosKey, cfg.CosmosDatabase, cfg.CosmosContainer)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	aged, err := seed(ctx, store, rng, time.Now(), cfg.Count, cfg.MaxAgeDays)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "\nDone! %d of %d records are older than the default retention\n", aged, cfg.Count)
	return nil
}

// seed upserts count generated documents and returns how many of them fall
// behind the default retention window.
func seed(ctx context.Context, store upserter, rng *rand.Rand, now time.Time, count, maxAgeDays int) (int, error) {
	cutoff := now.UTC().Add(-archive.DefaultRetention)
	aged := 0

	for i := 0; i < count; i++ {
		doc := generateDocument(rng, now, maxAgeDays)

		body, err := json.Marshal(doc)
		if err != nil {
			return aged, fmt.Errorf("marshalling document: %w", err)
		}

		if err := store.Upsert(ctx, doc.CustomerID, body); err != nil {
			return aged, fmt.Errorf("seeding document %d: %w", i, err)
		}

		created, err := archive.ParseCreatedDate(doc.CreatedDate)
		if err != nil {
			return aged, err
		}
		if created.Before(cutoff) {
			aged++
		}
	}

	return aged, nil
}

func generateDocument(rng *rand.Rand, now time.Time, maxAgeDays int) seedDocument {
	age := time.Duration(rng.Intn(maxAgeDays*24*60)) * time.Minute

	doc := seedDocument{
		ID:          uuid.New().String(),
		CustomerID:  fmt.Sprintf("cust-%04d", rng.Intn(500)),
		CreatedDate: now.UTC().Add(-age).Format(archive.CutoffLayout),
		Email:       generateEmail(rng),
		City:        randomFromSlice(rng, cities),
		Status:      randomFromSlice(rng, accountStatuses),
		Amount:      float64(rng.Intn(10000)) + rng.Float64(),
	}

	numTags := rng.Intn(4)
	doc.Tags = make([]string, numTags)
	for i := 0; i < numTags; i++ {
		doc.Tags[i] = randomFromSlice(rng, tags)
	}

	return doc
}

func randomFromSlice(rng *rand.Rand, slice []string) string {
	return slice[rng.Intn(len(slice))]
}

func generateEmail(rng *rand.Rand) string {
	domains := []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com"}
	return fmt.Sprintf("%s.%s@%s",
		strings.ToLower(randomFromSlice(rng, firstNames)),
		strings.ToLower(randomFromSlice(rng, lastNames)),
		randomFromSlice(rng, domains))
}
