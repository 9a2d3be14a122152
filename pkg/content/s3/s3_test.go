package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tinyweb/pkg/content"
)

type fakeS3 struct {
	objects   map[string][]byte
	bucketErr error
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.bucketErr != nil {
		return nil, f.bucketErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	now := time.Now()
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data))), LastModified: &now}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

type recordingMetrics struct {
	mu    sync.Mutex
	ops   []string
	bytes int64
}

func (m *recordingMetrics) ObserveOperation(op string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
}

func (m *recordingMetrics) RecordBytes(_ string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes += n
}

func newStore(t *testing.T, objects map[string][]byte, metrics S3Metrics) *S3ContentStore {
	t.Helper()
	store, err := NewS3ContentStore(context.Background(), S3ContentStoreConfig{
		Client:        &fakeS3{objects: objects},
		Bucket:        "site",
		KeyPrefix:     "www/",
		MaxObjectSize: 16,
		Metrics:       metrics,
	})
	require.NoError(t, err)
	return store
}

func TestStatAndOpen(t *testing.T) {
	metrics := &recordingMetrics{}
	store := newStore(t, map[string][]byte{"www/index.html": []byte("<p>s3</p>")}, metrics)
	ctx := context.Background()

	info, err := store.Stat(ctx, "/index.html")
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.Size)
	assert.True(t, info.WorldReadable())

	obj, err := store.Open(ctx, "/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<p>s3</p>", string(obj.Bytes()))
	require.NoError(t, obj.Close())

	assert.Equal(t, []string{"HeadBucket", "HeadObject", "GetObject"}, metrics.ops)
	assert.Equal(t, int64(9), metrics.bytes)
}

func TestNotFound(t *testing.T) {
	store := newStore(t, map[string][]byte{}, nil)
	ctx := context.Background()

	_, err := store.Stat(ctx, "/missing")
	assert.ErrorIs(t, err, content.ErrContentNotFound)

	_, err = store.Open(ctx, "/missing")
	assert.ErrorIs(t, err, content.ErrContentNotFound)
}

func TestTooLarge(t *testing.T) {
	store := newStore(t, map[string][]byte{"www/big.bin": bytes.Repeat([]byte("x"), 32)}, nil)
	_, err := store.Open(context.Background(), "/big.bin")
	assert.ErrorIs(t, err, content.ErrTooLarge)
}

func TestDirectoryKeys(t *testing.T) {
	store := newStore(t, map[string][]byte{}, nil)
	_, err := store.Open(context.Background(), "/")
	assert.ErrorIs(t, err, content.ErrIsDirectory)
}

func TestNewValidatesConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3ContentStore(ctx, S3ContentStoreConfig{Bucket: "b"})
	assert.Error(t, err)

	_, err = NewS3ContentStore(ctx, S3ContentStoreConfig{Client: &fakeS3{}})
	assert.Error(t, err)

	_, err = NewS3ContentStore(ctx, S3ContentStoreConfig{
		Client: &fakeS3{bucketErr: errors.New("denied")},
		Bucket: "b",
	})
	assert.ErrorContains(t, err, "denied")
}
