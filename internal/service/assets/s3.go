package assets

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore fetches raw objects for s3:// footer URLs.
type ObjectStore interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// S3Store reads footer documents straight from S3.
type S3Store struct {
	client *s3.Client
}

// NewS3Store builds a store from the ambient AWS credential chain.
func NewS3Store(ctx context.Context, region string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg)}, nil
}

// Fetch downloads one object.
func (s *S3Store) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("reading S3 object body: %w", err)
	}
	return data, nil
}

// parseS3URL splits s3://bucket/key/path into bucket and key.
func parseS3URL(raw string) (bucket, key string, ok bool) {
	trimmed := strings.TrimPrefix(raw, "s3://")
	if trimmed == raw {
		return "", "", false
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
