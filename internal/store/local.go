package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"milkcast/internal/domain"
)

// Compile-time interface check.
var _ Backend = (*LocalBackend)(nil)

// LocalBackend stores objects as files under a root directory.
type LocalBackend struct {
	Root string
}

// NewLocalBackend creates a LocalBackend rooted at the given directory.
func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{Root: root}
}

// Name implements Backend.
func (b *LocalBackend) Name() string {
	return "local:" + b.Root
}

// Put writes data to a temp file next to the target and renames it into
// place, so a crash mid-write never leaves a truncated object behind.
func (b *LocalBackend) Put(_ context.Context, key string, data []byte) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publishing %s: %w", key, err)
	}
	return nil
}

// Get implements Backend.
func (b *LocalBackend) Get(_ context.Context, key string) ([]byte, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, domain.ErrObjectNotFound)
		}
		return nil, err
	}
	return data, nil
}

// Exists implements Backend.
func (b *LocalBackend) Exists(_ context.Context, key string) (bool, error) {
	path, err := b.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// List walks the directory under prefix. Temp files from in-flight writes
// are not reported.
func (b *LocalBackend) List(ctx context.Context, prefix string, fn func(key string) error) error {
	dir, err := b.path(prefix)
	if err != nil {
		return err
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(b.Root, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
	if err != nil {
		return fmt.Errorf("listing %s: %w", prefix, err)
	}
	return nil
}

// path maps a key to a file path and refuses keys that escape Root.
func (b *LocalBackend) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(b.Root, clean), nil
}
