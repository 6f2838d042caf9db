package persistent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dkrasnov/receipt-gateway/pkg/s3client"
)

// BlobRepo implements repo.BlobStore against a bucket served by
// s3client.S3Client.
type BlobRepo struct {
	*s3client.S3Client
	bucket string
}

func NewBlobRepo(s3c *s3client.S3Client, bucket string) *BlobRepo {
	return &BlobRepo{s3c, bucket}
}

func (r *BlobRepo) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("BlobRepo - Put - r.Client.PutObject: %w", err)
	}

	return fmt.Sprintf("blob://%s/%s", r.bucket, key), nil
}

func (r *BlobRepo) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := r.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("BlobRepo - Get - r.Client.GetObject: %w", err)
	}
	defer result.Body.Close()

	b, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("BlobRepo - Get - io.ReadAll: %w", err)
	}

	return b, nil
}

func (r *BlobRepo) Delete(ctx context.Context, key string) error {
	_, err := r.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("BlobRepo - Delete - r.Client.DeleteObject: %w", err)
	}

	return nil
}

func (r *BlobRepo) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	out, err := r.S3Client.Presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("BlobRepo - Presign - r.Presign.PresignGetObject: %w", err)
	}

	return out.URL, nil
}
