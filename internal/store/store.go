// Package store defines the storage capability behind the milk price
// datalake and the partition, dataset, and ledger stores built on it.
package store

import (
	"context"
	"fmt"
	"strings"
)

// Backend is a flat key/value object store. Keys use forward slashes
// regardless of the underlying medium.
type Backend interface {
	// Put stores data under key, replacing any previous object. A reader
	// never observes a partially written object.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object stored under key. It returns an error wrapping
	// domain.ErrObjectNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists checks key without reading its content.
	Exists(ctx context.Context, key string) (bool, error)

	// List calls fn for every key under prefix, in no particular order.
	List(ctx context.Context, prefix string, fn func(key string) error) error

	// Name identifies the backend in logs ("local:/data", "gcs://bucket/prefix").
	Name() string
}

// Source selects a Backend implementation.
const (
	SourceLocal = "local"
	SourceGCS   = "gcs"
)

// Options configures Open.
type Options struct {
	Source  string
	DataDir string
	Bucket  string
	Prefix  string
}

// Open returns the Backend selected by opts.Source.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch strings.ToLower(opts.Source) {
	case "", SourceLocal:
		if opts.DataDir == "" {
			return nil, fmt.Errorf("local storage requires a data directory")
		}
		return NewLocalBackend(opts.DataDir), nil
	case SourceGCS, "s3", "remote":
		if opts.Bucket == "" {
			return nil, fmt.Errorf("remote storage requires a bucket")
		}
		return NewGCSBackend(ctx, opts.Bucket, opts.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage source %q", opts.Source)
	}
}
