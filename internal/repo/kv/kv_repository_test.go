package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/storefront/internal/infra/logging"
	"github.com/mkrupp/storefront/internal/repo/kv"
)

var errBackendDown = errors.New("backend down")

// failingRepository fails every call with errBackendDown.
type failingRepository struct{}

func (failingRepository) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errBackendDown
}

func (failingRepository) Set(context.Context, string, []byte) error { return errBackendDown }
func (failingRepository) Delete(context.Context, string) error       { return errBackendDown }
func (failingRepository) Close() error                               { return nil }

// testRepositoryContract exercises the behavior every backend shares.
func testRepositoryContract(t *testing.T, repo kv.Repository) {
	t.Helper()

	ctx := context.Background()

	_, ok, err := repo.Get(ctx, "cartItems:guest")
	require.NoError(t, err)
	assert.False(t, ok, "fresh store should be empty")

	require.NoError(t, repo.Set(ctx, "cartItems:guest", []byte(`[{"id":1}]`)))
	require.NoError(t, repo.Set(ctx, "cartItems:1", []byte(`[]`)))

	value, ok, err := repo.Get(ctx, "cartItems:guest")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":1}]`, string(value))

	require.NoError(t, repo.Set(ctx, "cartItems:guest", []byte(`[{"id":2}]`)))

	value, _, err = repo.Get(ctx, "cartItems:guest")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":2}]`, string(value), "set overwrites")

	require.NoError(t, repo.Delete(ctx, "cartItems:guest"))
	require.NoError(t, repo.Delete(ctx, "cartItems:guest"), "deleting twice is fine")

	_, ok, err = repo.Get(ctx, "cartItems:guest")
	require.NoError(t, err)
	assert.False(t, ok)

	value, ok, err = repo.Get(ctx, "cartItems:1")
	require.NoError(t, err)
	assert.True(t, ok, "other keys untouched")
	assert.JSONEq(t, `[]`, string(value))
}

func TestMemoryKVRepository(t *testing.T) {
	t.Parallel()

	testRepositoryContract(t, kv.NewMemoryKVRepository())
}

func TestMemoryKVRepositoryCopiesValues(t *testing.T) {
	t.Parallel()

	repo := kv.NewMemoryKVRepository()
	value := []byte(`"dark"`)

	require.NoError(t, repo.Set(context.Background(), "appTheme", value))
	value[1] = 'X'

	got, _, err := repo.Get(context.Background(), "appTheme")
	require.NoError(t, err)
	assert.Equal(t, `"dark"`, string(got))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	type item struct {
		ID  int64 `json:"id"`
		Qty int   `json:"qty"`
	}

	tests := []struct {
		name      string
		repo      func() kv.Repository
		wantState kv.State
		wantValue []item
	}{
		{
			name:      "missing key",
			repo:      func() kv.Repository { return kv.NewMemoryKVRepository() },
			wantState: kv.Missing,
		},
		{
			name: "present value",
			repo: func() kv.Repository {
				repo := kv.NewMemoryKVRepository()
				_ = repo.Set(context.Background(), "k", []byte(`[{"id":1,"qty":2}]`))

				return repo
			},
			wantState: kv.Present,
			wantValue: []item{{ID: 1, Qty: 2}},
		},
		{
			name: "corrupt value",
			repo: func() kv.Repository {
				repo := kv.NewMemoryKVRepository()
				_ = repo.Set(context.Background(), "k", []byte(`[{"id":1,`))

				return repo
			},
			wantState: kv.Corrupt,
		},
		{
			name: "wrong shape",
			repo: func() kv.Repository {
				repo := kv.NewMemoryKVRepository()
				_ = repo.Set(context.Background(), "k", []byte(`{"id":1}`))

				return repo
			},
			wantState: kv.Corrupt,
		},
		{
			name:      "backend failure",
			repo:      func() kv.Repository { return failingRepository{} },
			wantState: kv.Unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := kv.Load[[]item](context.Background(), tt.repo(), "k", logging.NewNopLogger())

			assert.Equal(t, tt.wantState, got.State)
			assert.Equal(t, tt.wantValue, got.Value)
			assert.Equal(t, tt.wantState == kv.Present, got.Present())
		})
	}
}

func TestSave(t *testing.T) {
	t.Parallel()

	repo := kv.NewMemoryKVRepository()

	require.NoError(t, kv.Save(context.Background(), repo, "nextUserId", 3))

	got := kv.Load[int](context.Background(), repo, "nextUserId", logging.NewNopLogger())
	assert.Equal(t, kv.Present, got.State)
	assert.Equal(t, 3, got.Value)

	err := kv.Save(context.Background(), failingRepository{}, "nextUserId", 3)
	require.ErrorIs(t, err, errBackendDown)
}

func TestRepositoryFactoryFor(t *testing.T) {
	t.Parallel()

	factory, err := kv.RepositoryFactoryFor(kv.Config{Backend: kv.BackendMemory})
	require.NoError(t, err)

	repo, err := factory(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &kv.MemoryKVRepository{}, repo)

	_, err = kv.RepositoryFactoryFor(kv.Config{Backend: "etcd"})
	require.ErrorIs(t, err, kv.ErrUnknownBackend)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "missing", kv.Missing.String())
	assert.Equal(t, "present", kv.Present.String())
	assert.Equal(t, "corrupt", kv.Corrupt.String())
	assert.Equal(t, "unavailable", kv.Unavailable.String())
	assert.Equal(t, "State(9)", kv.State(9).String())
}
