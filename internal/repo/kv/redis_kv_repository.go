package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkrupp/storefront/internal/infra/logging"
)

const defaultRedisDialTimeout = 5 * time.Second

// RedisKVRepositoryConfig holds configuration for the Redis key-value repository.
type RedisKVRepositoryConfig struct {
	// URL is a redis:// or rediss:// connection URL
	URL string `env:"URL" envDefault:"redis://localhost:6379/0"`
	// KeyPrefix namespaces every key written by this process
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"storefront:"`
	// DialTimeout bounds connecting and the startup ping
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
}

// RedisKVRepository implements Repository on plain Redis strings.
type RedisKVRepository struct {
	client *redis.Client
	prefix string
	log    logging.Logger
}

var _ Repository = (*RedisKVRepository)(nil)

// RedisKVRepositoryFactory creates a factory function that returns a new RedisKVRepository.
func RedisKVRepositoryFactory(cfg RedisKVRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		return NewRedisKVRepository(ctx, cfg)
	}
}

// NewRedisKVRepository connects to cfg.URL and verifies the connection.
func NewRedisKVRepository(ctx context.Context, cfg RedisKVRepositoryConfig) (*RedisKVRepository, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultRedisDialTimeout
	}

	opts.DialTimeout = cfg.DialTimeout

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("ping: %w", err)
	}

	log := logging.GetLogger("repo.kv.redis_kv_repository").With(
		logging.Group("redis", "addr", opts.Addr, "db", opts.DB, "prefix", cfg.KeyPrefix),
	)
	log.DebugContext(ctx, "kv redis ready")

	return &RedisKVRepository{client: client, prefix: cfg.KeyPrefix, log: log}, nil
}

func (r *RedisKVRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("get: %w", err)
	}

	return value, true, nil
}

func (r *RedisKVRepository) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set: %w", err)
	}

	return nil
}

func (r *RedisKVRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}

	return nil
}

func (r *RedisKVRepository) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	return nil
}
