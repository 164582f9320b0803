//go:build integration || all

package kv_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkrupp/storefront/internal/repo/blob"
	"github.com/mkrupp/storefront/internal/repo/kv"
)

func TestSQLiteKVRepository(t *testing.T) {
	t.Parallel()

	repo, err := kv.NewSQLiteKVRepository(context.Background(), kv.SQLiteKVRepositoryConfig{
		DatabasePath: filepath.Join(t.TempDir(), "kv.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	testRepositoryContract(t, repo)
}

func TestSQLiteKVRepositoryReopen(t *testing.T) {
	t.Parallel()

	cfg := kv.SQLiteKVRepositoryConfig{DatabasePath: filepath.Join(t.TempDir(), "kv.db")}

	repo, err := kv.NewSQLiteKVRepository(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, repo.Set(context.Background(), "appTheme", []byte(`"dark"`)))
	require.NoError(t, repo.Close())

	repo, err = kv.NewSQLiteKVRepository(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	value, ok, err := repo.Get(context.Background(), "appTheme")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `"dark"`, string(value))
}

func TestFileSystemKVRepository(t *testing.T) {
	t.Parallel()

	factory := kv.FileSystemKVRepositoryFactory(blob.FileSystemBlobRepositoryFactory(
		blob.FileSystemBlobRepositoryConfig{Basedir: t.TempDir()},
	))

	repo, err := factory(context.Background())
	require.NoError(t, err)

	testRepositoryContract(t, repo)
}
