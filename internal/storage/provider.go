package storage

import (
	"context"
	"io"
)

type Object struct {
	Name string
	Size int64
}

type ObjectIterator func(yield func(obj Object, err error) bool)

// Provider abstracts the object store holding workspace artifacts. Keys are
// namespaced as <workspace-id>/<artifact-name> inside a single bucket.
type Provider interface {
	CreateBucket(ctx context.Context, bucket string) error

	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	// ListObjects returns the objects sitting directly under prefix. Names
	// are full keys relative to the bucket.
	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)

	// IterObjects walks every object below prefix, nested keys included.
	IterObjects(ctx context.Context, bucket, prefix string) ObjectIterator

	DeletePrefix(ctx context.Context, bucket, prefix string) error
}
