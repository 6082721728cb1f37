package receipt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Archive keeps a copy of every generated receipt in a bucket
type S3Archive struct {
	client *s3.Client
	bucket string
}

// NewS3Archive loads the default AWS configuration; endpoint overrides the S3 URL (LocalStack)
func NewS3Archive(ctx context.Context, bucket, endpoint string) (*S3Archive, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{client: client, bucket: bucket}, nil
}

// Key returns the object key of an order's receipt
func Key(orderID int64) string {
	return fmt.Sprintf("receipts/%d.pdf", orderID)
}

// Store uploads a receipt and returns its object key
func (a *S3Archive) Store(ctx context.Context, orderID int64, data []byte) (string, error) {
	key := Key(orderID)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload receipt %s: %w", key, err)
	}
	return key, nil
}
