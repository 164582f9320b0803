package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/mkrupp/storefront/internal/domain"
)

// MemoryRepository keeps blobs in a map. Locks are per repository rather
// than per id, which is enough for tests and single-process caches.
type MemoryRepository struct {
	lock sync.RWMutex

	mu    sync.Mutex
	blobs map[domain.BlobID][]byte
}

var _ Repository = (*MemoryRepository)(nil)

// MemoryBlobRepositoryFactory returns a factory handing out empty repositories.
func MemoryBlobRepositoryFactory() RepositoryFactory {
	return func(context.Context, string, string) (Repository, error) {
		return NewMemoryRepository(), nil
	}
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{blobs: make(map[domain.BlobID][]byte)}
}

func (m *MemoryRepository) Lock(ctx context.Context, _ domain.BlobID, exclusive bool) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}

	if exclusive {
		m.lock.Lock()

		return m.lock.Unlock, nil
	}

	m.lock.RLock()

	return m.lock.RUnlock, nil
}

func (m *MemoryRepository) Exists(_ context.Context, id domain.BlobID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.blobs[id]

	return ok
}

func (m *MemoryRepository) Store(_ context.Context, blob *domain.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[blob.ID] = bytes.Clone(blob.Body)

	return nil
}

func (m *MemoryRepository) Fetch(_ context.Context, id domain.BlobID) (*domain.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	body, ok := m.blobs[id]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", id, domain.ErrBlobNotFound)
	}

	return domain.NewBlob(id, bytes.Clone(body)), nil
}

func (m *MemoryRepository) Delete(_ context.Context, id domain.BlobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, domain.ErrBlobNotFound)
	}

	delete(m.blobs, id)

	return nil
}

func (m *MemoryRepository) DeleteAll(_ context.Context, id domain.BlobID, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.blobs {
		rest, ok := strings.CutPrefix(string(key), string(id))
		if !ok {
			continue
		}

		matched, err := path.Match(pattern, rest)
		if err != nil {
			return fmt.Errorf("match %q: %w", pattern, err)
		}

		if matched {
			delete(m.blobs, key)
		}
	}

	return nil
}

// Len returns the number of stored blobs.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.blobs)
}
