package blobstore

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// WithEndpointOverride returns a function option that points an S3 client
// at endpoint. Path style addressing is switched on as well since local
// stacks do not resolve bucket subdomains. An empty endpoint leaves the
// client untouched.
func WithEndpointOverride(endpoint string) func(*s3.Options) {
	return func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}
}
