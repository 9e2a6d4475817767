package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"milkcast/internal/domain"
)

// Compile-time interface check.
var _ Backend = (*GCSBackend)(nil)

// GCSBackend stores objects in a Google Cloud Storage bucket under an
// optional prefix. An object becomes visible only when its writer closes.
type GCSBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSBackend connects to bucket using application default credentials
// unless opts say otherwise.
func NewGCSBackend(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCSBackend{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Close releases the underlying client.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}

// Name implements Backend.
func (b *GCSBackend) Name() string {
	if b.prefix == "" {
		return "gcs://" + b.bucket
	}
	return "gcs://" + b.bucket + "/" + b.prefix
}

// Put implements Backend.
func (b *GCSBackend) Put(ctx context.Context, key string, data []byte) error {
	w := b.object(key).NewWriter(ctx)
	w.ContentType = contentType(key)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// Get implements Backend.
func (b *GCSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", key, domain.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	return data, nil
}

// Exists reads object metadata only.
func (b *GCSBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("probing %s: %w", key, err)
	}
	return true, nil
}

// List implements Backend.
func (b *GCSBackend) List(ctx context.Context, prefix string, fn func(key string) error) error {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: b.fullKey(prefix)})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("listing %s: %w", prefix, err)
		}
		if err := fn(b.relKey(attrs.Name)); err != nil {
			return err
		}
	}
}

func (b *GCSBackend) object(key string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(b.fullKey(key))
}

func (b *GCSBackend) fullKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if b.prefix == "" {
		return key
	}
	if key == "" {
		return b.prefix + "/"
	}
	return path.Join(b.prefix, key)
}

func (b *GCSBackend) relKey(name string) string {
	if b.prefix == "" {
		return name
	}
	return strings.TrimPrefix(name, b.prefix+"/")
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
