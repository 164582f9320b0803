package cartsvc_test

import (
	"context"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/infra/logging"
	"github.com/mkrupp/storefront/internal/repo/kv"
	"github.com/mkrupp/storefront/internal/svc/cartsvc"
)

// TestCartInvariants drives random operation sequences against the cart and
// a reference model and checks the stored cart mirrors memory at every step.
func TestCartInvariants(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		repo := kv.NewMemoryKVRepository()

		svc, err := cartsvc.NewCartService(repo, cartsvc.CartConfig{Locale: "pt-BR", CurrencySymbol: "R$"})
		if err != nil {
			t.Fatalf("new cart: %v", err)
		}

		svc.Activate(ctx, nil)

		var model []domain.CartItem

		idGen := rapid.Int64Range(1, 6)
		index := func(id int64) int {
			return slices.IndexFunc(model, func(it domain.CartItem) bool { return it.ID == id })
		}

		t.Repeat(map[string]func(*rapid.T){
			"add": func(t *rapid.T) {
				id := idGen.Draw(t, "id")
				price := float64(rapid.IntRange(0, 10000).Draw(t, "cents")) / 100

				if err := svc.AddItem(ctx, id, "item", price, ""); err != nil {
					t.Fatalf("add: %v", err)
				}

				if i := index(id); i >= 0 {
					model[i].Qty++
				} else {
					model = slices.Insert(model, 0, domain.CartItem{ID: id, Title: "item", Price: price, Qty: 1})
				}
			},
			"decrement": func(t *rapid.T) {
				id := idGen.Draw(t, "id")

				if err := svc.DecrementItem(ctx, id); err != nil {
					t.Fatalf("decrement: %v", err)
				}

				if i := index(id); i >= 0 {
					model[i].Qty--
					if model[i].Qty == 0 {
						model = slices.Delete(model, i, i+1)
					}
				}
			},
			"setQty": func(t *rapid.T) {
				id := idGen.Draw(t, "id")
				qty := rapid.Float64Range(-5, 50).Draw(t, "qty")

				if err := svc.SetQty(ctx, id, qty); err != nil {
					t.Fatalf("setQty: %v", err)
				}

				if i := index(id); i >= 0 {
					model[i].Qty = cartsvc.NormalizeQty(qty)
				}
			},
			"remove": func(t *rapid.T) {
				id := idGen.Draw(t, "id")

				if err := svc.RemoveItem(ctx, id); err != nil {
					t.Fatalf("remove: %v", err)
				}

				model = slices.DeleteFunc(model, func(it domain.CartItem) bool { return it.ID == id })
			},
			"clear": func(t *rapid.T) {
				if err := svc.ClearCart(ctx); err != nil {
					t.Fatalf("clear: %v", err)
				}

				model = nil
			},
			"": func(t *rapid.T) {
				items := svc.Items()

				if len(items) != len(model) {
					t.Fatalf("len = %d, model %d", len(items), len(model))
				}

				seen := map[int64]bool{}
				wantCount := 0
				wantTotal := 0.0

				for i, it := range items {
					if it != model[i] {
						t.Fatalf("item %d = %+v, model %+v", i, it, model[i])
					}

					if it.Qty < 1 {
						t.Fatalf("qty %d < 1 for id %d", it.Qty, it.ID)
					}

					if seen[it.ID] {
						t.Fatalf("duplicate id %d", it.ID)
					}

					seen[it.ID] = true
					wantCount += it.Qty
					wantTotal += it.Price * float64(it.Qty)
				}

				if svc.Count() != wantCount {
					t.Fatalf("count = %d, want %d", svc.Count(), wantCount)
				}

				if svc.Total() != wantTotal {
					t.Fatalf("total = %v, want %v", svc.Total(), wantTotal)
				}

				decoded := kv.Load[[]domain.CartItem](ctx, repo, svc.Key(), logging.NewNopLogger())
				if len(model) > 0 && !slices.Equal(decoded.Value, items) {
					t.Fatalf("stored %+v, memory %+v", decoded.Value, items)
				}
			},
		})
	})
}
