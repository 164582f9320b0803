package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/storefront/internal/infra/logging"
)

// SQLiteKVRepositoryConfig holds configuration for the SQLite key-value repository.
type SQLiteKVRepositoryConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" envDefault:"var/storage/storefront.db"`
	// BusyTimeout is how long a statement waits on a locked database
	BusyTimeout time.Duration `env:"BUSY_TIMEOUT" envDefault:"5s"`
}

// SQLiteKVRepository implements Repository on a single SQLite table.
type SQLiteKVRepository struct {
	db        *sql.DB
	log       logging.Logger
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Repository = (*SQLiteKVRepository)(nil)

// SQLiteKVRepositoryFactory creates a factory function that returns a new SQLiteKVRepository.
func SQLiteKVRepositoryFactory(cfg SQLiteKVRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		return NewSQLiteKVRepository(ctx, cfg)
	}
}

// NewSQLiteKVRepository opens the database at cfg.DatabasePath and creates
// the schema if needed.
func NewSQLiteKVRepository(ctx context.Context, cfg SQLiteKVRepositoryConfig) (*SQLiteKVRepository, error) {
	log := logging.GetLogger("repo.kv.sqlite_kv_repository").With(
		logging.Group("db", "path", cfg.DatabasePath),
	)

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping db: %w", err)
	}

	// Every pooled connection needs its own pragma; one connection keeps it simple.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := initializeDB(ctx, db); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("initialize db: %w", err)
	}

	log.DebugContext(ctx, "kv database ready")

	return &SQLiteKVRepository{
		db:        db,
		log:       log,
		writeLock: new(sync.Mutex),
	}, nil
}

func initializeDB(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT    PRIMARY KEY,
			value      BLOB    NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Get implements Repository.Get using SQLite.
func (r *SQLiteKVRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte

	err := r.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("query value: %w", classify(err))
	}

	return value, true, nil
}

// Set implements Repository.Set using SQLite.
func (r *SQLiteKVRepository) Set(ctx context.Context, key string, value []byte) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if value == nil {
		value = []byte{}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		value,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert value: %w", classify(err))
	}

	return nil
}

// Delete implements Repository.Delete using SQLite.
func (r *SQLiteKVRepository) Delete(ctx context.Context, key string) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if _, err := r.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete value: %w", classify(err))
	}

	return nil
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLiteKVRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}

func classify(err error) error {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return err
	}

	switch liteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return errors.Join(ErrStoreBusy, err)
	default:
		return err
	}
}
