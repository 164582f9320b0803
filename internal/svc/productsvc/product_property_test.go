package productsvc_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/infra/logging"
	"github.com/mkrupp/storefront/internal/repo/kv"
	"github.com/mkrupp/storefront/internal/svc/catalogclient/catalogtest"
	"github.com/mkrupp/storefront/internal/svc/productsvc"
)

// TestLocalProductInvariants mixes local edits over local and catalog ids and
// checks id assignment, catalog immutability and the stored local list after
// every step.
func TestLocalProductInvariants(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		repo := kv.NewMemoryKVRepository()

		catalog := catalogtest.NewCatalog(0)
		catalog.Products = catalogProducts(5)

		svc := productsvc.NewProductService(repo, catalog, productsvc.ProductConfig{InitLimit: 20})
		defer func() { _ = svc.Close() }()

		if err := svc.Init(ctx); err != nil {
			t.Fatalf("init: %v", err)
		}

		var (
			localIDs []int64
			lastID   int64
		)

		drawID := func(t *rapid.T) int64 {
			pool := []int64{1, 3, 5, 999, 1000, 4242}
			pool = append(pool, localIDs...)

			return rapid.SampledFrom(pool).Draw(t, "id")
		}
		drawProduct := func(t *rapid.T) domain.Product {
			return domain.Product{
				Title:    rapid.StringMatching(`[A-Z][a-z]{1,8}`).Draw(t, "title"),
				Price:    float64(rapid.IntRange(0, 50000).Draw(t, "cents")) / 100,
				Category: rapid.SampledFrom([]string{"home", "bags", "toys"}).Draw(t, "category"),
				Image:    "local.png",
			}
		}

		t.Repeat(map[string]func(*rapid.T){
			"addLocal": func(t *rapid.T) {
				p := drawProduct(t)
				p.ID = drawID(t)

				item, err := svc.AddLocal(ctx, p)
				if err != nil {
					t.Fatalf("add: %v", err)
				}

				if item.ID <= domain.LocalIDBase {
					t.Fatalf("local id %d not above %d", item.ID, domain.LocalIDBase)
				}

				if item.ID <= lastID {
					t.Fatalf("local id %d not above previous %d", item.ID, lastID)
				}

				lastID = item.ID
				localIDs = append(localIDs, item.ID)
			},
			"updateLocal": func(t *rapid.T) {
				p := drawProduct(t)
				p.ID = drawID(t)

				_, err := svc.UpdateLocal(ctx, p)

				switch {
				case slices.Contains(localIDs, p.ID):
					if err != nil {
						t.Fatalf("update %d: %v", p.ID, err)
					}
				case !errors.Is(err, domain.ErrProductNotFound):
					t.Fatalf("update %d = %v, want not found", p.ID, err)
				}
			},
			"deleteLocal": func(t *rapid.T) {
				id := drawID(t)

				err := svc.DeleteLocal(ctx, id)

				switch {
				case slices.Contains(localIDs, id):
					if err != nil {
						t.Fatalf("delete %d: %v", id, err)
					}

					localIDs = slices.DeleteFunc(localIDs, func(v int64) bool { return v == id })
				case !errors.Is(err, domain.ErrProductNotFound):
					t.Fatalf("delete %d = %v, want not found", id, err)
				}
			},
			"": func(t *rapid.T) {
				items := svc.State().Items

				var (
					local []domain.Product
					api   []domain.Product
				)

				for _, it := range items {
					if it.IsLocal() {
						local = append(local, it.Product)
					} else {
						api = append(api, it.Product)
					}
				}

				if !slices.Equal(api, catalog.Products) {
					t.Fatalf("catalog items changed: %+v", api)
				}

				if len(local) != len(localIDs) {
					t.Fatalf("local len = %d, model %d", len(local), len(localIDs))
				}

				for _, p := range local {
					if !slices.Contains(localIDs, p.ID) {
						t.Fatalf("unexpected local id %d", p.ID)
					}
				}

				stored := kv.Load[[]domain.Product](ctx, repo, domain.KeyProductsExtra, logging.NewNopLogger())
				if !slices.Equal(stored.Value, local) {
					t.Fatalf("stored %+v, memory %+v", stored.Value, local)
				}
			},
		})
	})
}
