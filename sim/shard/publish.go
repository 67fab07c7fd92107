package shard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// ErrUploadFailed is returned when a file cannot be published.
var ErrUploadFailed = errors.New("upload failed")

// Publisher copies finished run files to durable storage.
type Publisher interface {
	Publish(ctx context.Context, localPath string) error
}

// PublishRun publishes every shard of m and then the manifest itself, so
// the manifest never appears remotely before its shards.
func PublishRun(ctx context.Context, p Publisher, m *Manifest) error {
	for _, s := range m.Shards {
		if err := p.Publish(ctx, s.Path); err != nil {
			return fmt.Errorf("publish %s: %w", s.Path, err)
		}
	}
	if err := p.Publish(ctx, ManifestPath(m.Base)); err != nil {
		return fmt.Errorf("publish manifest: %w", err)
	}
	logrus.Infof("published %d shard(s) and manifest", len(m.Shards))
	return nil
}

// S3Config holds configuration for S3 publishing.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	// Prefix is prepended to the file base name to form the object key.
	Prefix string `yaml:"prefix"`
	// Region is the AWS region for the S3 bucket.
	Region string `yaml:"region"`
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string `yaml:"endpoint"`
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool `yaml:"use_path_style"`
}

// S3Publisher uploads run files to an S3 bucket.
type S3Publisher struct {
	client     *s3.Client
	cfg        S3Config
	maxRetries int
}

// NewS3Publisher creates a publisher using the default AWS credential chain.
func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return NewS3PublisherWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

// NewS3PublisherWithClient creates a publisher with a pre-configured client.
func NewS3PublisherWithClient(client *s3.Client, cfg S3Config) *S3Publisher {
	return &S3Publisher{client: client, cfg: cfg, maxRetries: 3}
}

// ObjectKey returns the object key for a local file.
func (p *S3Publisher) ObjectKey(localPath string) string {
	return path.Join(p.cfg.Prefix, filepath.Base(localPath))
}

// Publish uploads localPath to the bucket.
func (p *S3Publisher) Publish(ctx context.Context, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer func() { _ = file.Close() }()

	key := p.ObjectKey(localPath)
	err = p.retryWithBackoff(ctx, func() error {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.cfg.Bucket),
			Key:    aws.String(key),
			Body:   file,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: s3://%s/%s: %v", ErrUploadFailed, p.cfg.Bucket, key, err)
	}
	logrus.Debugf("uploaded %s to s3://%s/%s", localPath, p.cfg.Bucket, key)
	return nil
}

func (p *S3Publisher) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if attempt < p.maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
