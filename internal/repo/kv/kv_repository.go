// Package kv persists small JSON documents under string keys.
//
// Backends only move bytes. Decoding happens in Load, which never fails:
// a missing, unreadable or malformed value decays to the zero value and the
// reason is reported through Decoded.State.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkrupp/storefront/internal/repo/blob"
)

// ErrStoreBusy is returned when the backend rejected an operation because
// another writer holds it.
var ErrStoreBusy = errors.New("store busy")

// ErrUnknownBackend is returned by NewRepository for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown kv backend")

// Repository defines raw key-value persistence.
type Repository interface {
	// Get returns the value stored under key.
	// Returns nil and false if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
type RepositoryFactory func(ctx context.Context) (Repository, error)

// Backend names accepted by Config.Backend.
const (
	BackendSQLite     = "sqlite"
	BackendFilesystem = "filesystem"
	BackendRedis      = "redis"
	BackendMemory     = "memory"
)

// Config selects and configures the storage backend.
type Config struct {
	// Backend is one of "sqlite", "filesystem", "redis" or "memory"
	Backend string `env:"BACKEND" envDefault:"sqlite"`

	SQLite     SQLiteKVRepositoryConfig            `envPrefix:"SQLITE_"`
	Filesystem blob.FileSystemBlobRepositoryConfig `envPrefix:"FS_"`
	Redis      RedisKVRepositoryConfig             `envPrefix:"REDIS_"`
}

// RepositoryFactoryFor returns the factory for the configured backend.
func RepositoryFactoryFor(cfg Config) (RepositoryFactory, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		return SQLiteKVRepositoryFactory(cfg.SQLite), nil
	case BackendFilesystem:
		return FileSystemKVRepositoryFactory(blob.FileSystemBlobRepositoryFactory(cfg.Filesystem)), nil
	case BackendRedis:
		return RedisKVRepositoryFactory(cfg.Redis), nil
	case BackendMemory:
		return func(context.Context) (Repository, error) { return NewMemoryKVRepository(), nil }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// NewRepository opens the configured backend.
func NewRepository(ctx context.Context, cfg Config) (Repository, error) {
	factory, err := RepositoryFactoryFor(cfg)
	if err != nil {
		return nil, err
	}

	repo, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s repository: %w", cfg.Backend, err)
	}

	return repo, nil
}
