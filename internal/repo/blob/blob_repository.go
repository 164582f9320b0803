package blob

import (
	"context"

	"github.com/mkrupp/storefront/internal/domain"
)

// Repository defines the interface for blob storage operations.
type Repository interface {
	// Lock acquires a lock on the blob with the given ID.
	// If exclusive is true, acquires a write lock, otherwise a read lock.
	// Waiting for the lock is bounded by ctx. The returned func releases it.
	Lock(ctx context.Context, id domain.BlobID, exclusive bool) (func(), error)

	// Exists checks if a blob with the given ID exists.
	Exists(ctx context.Context, id domain.BlobID) bool

	// Store persists a blob, replacing any previous content under the same ID.
	Store(ctx context.Context, blob *domain.Blob) error

	// Fetch retrieves a blob by its ID.
	// Returns domain.ErrBlobNotFound if nothing is stored under id.
	Fetch(ctx context.Context, id domain.BlobID) (*domain.Blob, error)

	// Delete removes a blob with the given ID.
	// Returns domain.ErrBlobNotFound if nothing is stored under id.
	Delete(ctx context.Context, id domain.BlobID) error

	// DeleteAll removes every blob whose ID starts with id and whose
	// remainder matches the glob pattern.
	DeleteAll(ctx context.Context, id domain.BlobID, pattern string) error
}

// RepositoryFactory is a function that creates a new Repository instance.
// Parameters:
// - name: subdirectory name for the repository
// - ext: file extension for stored blobs
type RepositoryFactory func(
	ctx context.Context,
	name string,
	ext string,
) (Repository, error)
