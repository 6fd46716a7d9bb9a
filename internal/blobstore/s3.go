package blobstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/archive"
)

// s3API is the subset of *s3.Client used by S3.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 writes blobs into a single bucket.
type S3 struct {
	client s3API
	bucket string
}

var _ archive.BlobWriter = (*S3)(nil)

// NewS3 returns an S3 blob writer for bucket.
func NewS3(client *s3.Client, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

// Upload puts body at key, replacing any existing object.
func (s *S3) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", s.bucket, key, err)
	}
	return nil
}
