// Package s3 serves static content from an S3 bucket (or any S3-compatible
// object store).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/tinyweb/pkg/content"
)

// API is the subset of *s3.Client used by the store.
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ContentStore serves objects from a bucket.
//
// Keys mirror request paths: "/css/site.css" with prefix "www/" maps to
// "www/css/site.css". Object stores have no permission bits, so every object
// stats as mode 0644. A key that does not exist but has children (a "folder")
// stats as a directory.
//
// Open downloads the whole object into memory; objects larger than
// MaxObjectSize are refused with content.ErrTooLarge.
//
// Thread Safety:
// Safe for concurrent use. The underlying S3 client is safe for concurrent use.
type S3ContentStore struct {
	client        API
	bucket        string
	keyPrefix     string
	maxObjectSize int64
	metrics       S3Metrics
}

// S3ContentStoreConfig contains configuration for the S3 content store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client
	Client API

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	KeyPrefix string

	// MaxObjectSize caps the size of objects served (default: 64MB)
	MaxObjectSize int64

	// Metrics is optional; nil disables collection
	Metrics S3Metrics
}

// NewS3ContentStore creates a store and verifies bucket access. The bucket
// must already exist.
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	maxSize := cfg.MaxObjectSize
	if maxSize <= 0 {
		maxSize = 64 * 1024 * 1024
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	start := time.Now()
	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	metrics.ObserveOperation("HeadBucket", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3ContentStore{
		client:        cfg.Client,
		bucket:        cfg.Bucket,
		keyPrefix:     cfg.KeyPrefix,
		maxObjectSize: maxSize,
		metrics:       metrics,
	}, nil
}

// objectKey maps a request path to an object key.
func (s *S3ContentStore) objectKey(name string) string {
	key := strings.TrimPrefix(content.CleanPath(name), "/")
	return s.keyPrefix + key
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

// Stat implements content.Store.
func (s *S3ContentStore) Stat(ctx context.Context, name string) (content.Info, error) {
	key := s.objectKey(name)

	start := time.Now()
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.metrics.ObserveOperation("HeadObject", time.Since(start), err)

	if err != nil {
		if isNotFound(err) {
			return content.Info{}, fmt.Errorf("content %s: %w", name, content.ErrContentNotFound)
		}
		return content.Info{}, fmt.Errorf("head object %s: %w", key, err)
	}

	info := content.Info{
		Size: aws.ToInt64(out.ContentLength),
		Mode: 0o644,
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	if strings.HasSuffix(key, "/") || key == s.keyPrefix {
		info.Mode = fs.ModeDir | 0o755
	}
	return info, nil
}

// Open implements content.Store.
func (s *S3ContentStore) Open(ctx context.Context, name string) (content.Object, error) {
	key := s.objectKey(name)
	if key == s.keyPrefix || strings.HasSuffix(key, "/") {
		return nil, fmt.Errorf("content %s: %w", name, content.ErrIsDirectory)
	}

	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.metrics.ObserveOperation("GetObject", time.Since(start), err)
		if isNotFound(err) {
			return nil, fmt.Errorf("content %s: %w", name, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	size := aws.ToInt64(out.ContentLength)
	if size > s.maxObjectSize {
		err := fmt.Errorf("content %s (%d bytes): %w", name, size, content.ErrTooLarge)
		s.metrics.ObserveOperation("GetObject", time.Since(start), err)
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(out.Body, s.maxObjectSize+1))
	s.metrics.ObserveOperation("GetObject", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	if int64(len(data)) > s.maxObjectSize {
		return nil, fmt.Errorf("content %s: %w", name, content.ErrTooLarge)
	}

	s.metrics.RecordBytes("read", int64(len(data)))
	return content.BytesObject(data), nil
}

// Close implements content.Store.
func (s *S3ContentStore) Close() error {
	return nil
}
