package service

import (
	"context"
	"io"
	"iter"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ProgressFunc receives the cumulative number of bytes uploaded.
type ProgressFunc func(uploaded int64)

type ObjectStore interface {
	// List lazily yields every object under prefix; iteration stops at the first error.
	List(ctx context.Context, bucket, prefix string) iter.Seq2[ObjectInfo, error]
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	// Move copies then deletes the source; a missing source is a no-op.
	Move(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	// MovePrefix moves every object under srcPrefix to the same suffix under dstPrefix.
	MovePrefix(ctx context.Context, bucket, srcPrefix, dstPrefix string) error
	Delete(ctx context.Context, bucket, key string) error
	DeletePrefix(ctx context.Context, bucket, prefix string) error
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	StreamUpload(ctx context.Context, bucket, key string, r io.Reader, contentType string, progress ProgressFunc) error
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// CDNSigner produces CDN-signed URLs. Signing is pure CPU.
type CDNSigner interface {
	SignedURL(key string, expires time.Time) (string, error)
}
