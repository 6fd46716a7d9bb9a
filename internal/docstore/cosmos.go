// Package docstore reads and deletes records in an Azure Cosmos DB
// container.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/archive"
)

// agedQuery selects documents older than the bound cutoff. It runs with an
// empty partition key so the gateway fans it out over every partition.
const agedQuery = "SELECT * FROM c WHERE c.createdDate < @cutoff"

// containerAPI is the subset of *azcosmos.ContainerClient used by Cosmos.
type containerAPI interface {
	NewQueryItemsPager(query string, partitionKey azcosmos.PartitionKey, o *azcosmos.QueryOptions) *runtime.Pager[azcosmos.QueryItemsResponse]
	DeleteItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemId string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	UpsertItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
}

// Cosmos is an archive.Store backed by a Cosmos DB container partitioned
// on customerId.
type Cosmos struct {
	container containerAPI
}

var _ archive.Store = (*Cosmos)(nil)

// NewCosmos creates a Cosmos store authenticated with an account key.
func NewCosmos(endpoint, key, database, container string) (*Cosmos, error) {
	cred, err := azcosmos.NewKeyCredential(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cosmos credential: %w", err)
	}

	client, err := azcosmos.NewClientWithKey(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cosmos client for %s: %w", endpoint, err)
	}

	containerClient, err := client.NewContainer(database, container)
	if err != nil {
		return nil, fmt.Errorf("failed to open cosmos container %s/%s: %w", database, container, err)
	}

	return &Cosmos{container: containerClient}, nil
}

// QueryOlderThan pages through documents whose createdDate sorts before
// cutoff. Each page is handed to fn before the next one is requested.
func (c *Cosmos) QueryOlderThan(ctx context.Context, cutoff string, pageSize int, fn func([]json.RawMessage) error) error {
	if pageSize <= 0 || pageSize > math.MaxInt32 {
		return fmt.Errorf("page size %d out of range 1..%d", pageSize, math.MaxInt32)
	}

	pager := c.container.NewQueryItemsPager(agedQuery, azcosmos.NewPartitionKey(), &azcosmos.QueryOptions{
		PageSizeHint: int32(pageSize),
		QueryParameters: []azcosmos.QueryParameter{
			{Name: "@cutoff", Value: cutoff},
		},
	})

	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to query documents older than %s: %w", cutoff, err)
		}

		if len(resp.Items) == 0 {
			continue
		}

		page := make([]json.RawMessage, len(resp.Items))
		for i, item := range resp.Items {
			page[i] = json.RawMessage(item)
		}

		if err := fn(page); err != nil {
			return err
		}
	}

	return nil
}

// Delete removes the document with the given id from its partition.
func (c *Cosmos) Delete(ctx context.Context, id, partitionKey string) error {
	_, err := c.container.DeleteItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), id, nil)
	if isNotFound(err) {
		return fmt.Errorf("document %s in partition %s: %w", id, partitionKey, archive.ErrRecordNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete document %s in partition %s: %w", id, partitionKey, err)
	}
	return nil
}

// Upsert writes a document into the partition named by partitionKey.
func (c *Cosmos) Upsert(ctx context.Context, partitionKey string, doc []byte) error {
	if _, err := c.container.UpsertItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), doc, nil); err != nil {
		return fmt.Errorf("failed to upsert document in partition %s: %w", partitionKey, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
