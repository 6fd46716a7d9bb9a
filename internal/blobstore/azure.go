// Package blobstore writes archive blobs to Azure Blob Storage or S3.
package blobstore

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/archive"
)

// azureAPI is the subset of *azblob.Client used by Azure.
type azureAPI interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// Azure writes blobs into a single Azure Storage container.
type Azure struct {
	client    azureAPI
	container string
}

var _ archive.BlobWriter = (*Azure)(nil)

// NewAzureFromConnectionString creates an Azure blob writer for container.
func NewAzureFromConnectionString(connString, container string) (*Azure, error) {
	client, err := azblob.NewClientFromConnectionString(connString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &Azure{client: client, container: container}, nil
}

// Upload writes body as a block blob named key. An existing blob with the
// same name is replaced.
func (a *Azure) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := a.client.UploadBuffer(ctx, a.container, key, body, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(contentType),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s/%s: %w", a.container, key, err)
	}
	return nil
}
