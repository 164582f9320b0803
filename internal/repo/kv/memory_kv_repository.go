package kv

import (
	"bytes"
	"context"
	"sync"
)

// MemoryKVRepository keeps values in process memory. Contents are lost on exit.
type MemoryKVRepository struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ Repository = (*MemoryKVRepository)(nil)

// NewMemoryKVRepository creates an empty MemoryKVRepository.
func NewMemoryKVRepository() *MemoryKVRepository {
	return &MemoryKVRepository{values: make(map[string][]byte)}
}

func (r *MemoryKVRepository) Get(_ context.Context, key string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.values[key]
	if !ok {
		return nil, false, nil
	}

	return bytes.Clone(value), true, nil
}

func (r *MemoryKVRepository) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = bytes.Clone(value)

	return nil
}

func (r *MemoryKVRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.values, key)

	return nil
}

func (r *MemoryKVRepository) Close() error {
	return nil
}
