package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/JoGir/qabel-core/internal/logging"
	"github.com/JoGir/qabel-core/internal/metrics"
)

// S3Config configures an S3 (or S3-compatible, e.g. MinIO) backend.
type S3Config struct {
	Endpoint  string `json:"endpoint"` // empty for AWS default
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	Region    string `json:"region"`
	AccessKey string `json:"access_key"` // empty to use the default chain
	SecretKey string `json:"secret_key"`
}

// S3 stores blobs as objects under a bucket/prefix.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates an S3 backend from the given config.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (b *S3) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return strings.TrimSuffix(b.prefix, "/") + "/" + name
}

// Download fetches an object. A missing key yields ErrNotFound.
func (b *S3) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	start := time.Now()
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	metrics.RecordBackendOperation("s3", "download", time.Since(start), err == nil)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		logging.Debug("s3 download failed", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, name, err)
	}
	return result.Body, nil
}

// Upload stores an object, overwriting any existing one.
func (b *S3) Upload(ctx context.Context, name string, content io.Reader) (time.Time, error) {
	start := time.Now()
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
		Body:   content,
	})
	metrics.RecordBackendOperation("s3", "upload", time.Since(start), err == nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("put object %s: %w", name, err)
	}
	// S3 does not report the object mtime on put; the wall clock is close
	// enough for the conflict suffix.
	return time.Now(), nil
}

// Delete removes an object. S3 deletes are idempotent already.
func (b *S3) Delete(ctx context.Context, name string) error {
	start := time.Now()
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	metrics.RecordBackendOperation("s3", "delete", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}
