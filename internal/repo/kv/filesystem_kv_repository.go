package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/repo/blob"
	"github.com/mkrupp/storefront/internal/util/encoding"
)

// FileSystemKVRepository stores each key as one blob. Keys are Crockford
// encoded so any string maps to a safe file name.
type FileSystemKVRepository struct {
	blobs blob.Repository
}

var _ Repository = (*FileSystemKVRepository)(nil)

// FileSystemKVRepositoryFactory creates a factory backed by blobs from blobFactory.
func FileSystemKVRepositoryFactory(blobFactory blob.RepositoryFactory) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		blobs, err := blobFactory(ctx, "kv", "json")
		if err != nil {
			return nil, fmt.Errorf("open blob repository: %w", err)
		}

		return NewFileSystemKVRepository(blobs), nil
	}
}

// NewFileSystemKVRepository wraps an existing blob repository.
func NewFileSystemKVRepository(blobs blob.Repository) *FileSystemKVRepository {
	return &FileSystemKVRepository{blobs: blobs}
}

func blobID(key string) domain.BlobID {
	return domain.BlobID(encoding.EncodeCrockfordB32LC([]byte(key)))
}

func (r *FileSystemKVRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	id := blobID(key)

	unlock, err := r.blobs.Lock(ctx, id, false)
	if err != nil {
		return nil, false, fmt.Errorf("lock: %w", err)
	}
	defer unlock()

	b, err := r.blobs.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("fetch: %w", err)
	}

	return b.Body, true, nil
}

func (r *FileSystemKVRepository) Set(ctx context.Context, key string, value []byte) error {
	id := blobID(key)

	unlock, err := r.blobs.Lock(ctx, id, true)
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer unlock()

	if err := r.blobs.Store(ctx, domain.NewBlob(id, value)); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func (r *FileSystemKVRepository) Delete(ctx context.Context, key string) error {
	id := blobID(key)

	unlock, err := r.blobs.Lock(ctx, id, true)
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer unlock()

	if err := r.blobs.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
		return fmt.Errorf("delete: %w", err)
	}

	return nil
}

func (r *FileSystemKVRepository) Close() error {
	return nil
}
