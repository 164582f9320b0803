package shopsvc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/repo/blob"
	"github.com/mkrupp/storefront/internal/repo/kv"
	"github.com/mkrupp/storefront/internal/svc/cartsvc"
	"github.com/mkrupp/storefront/internal/svc/catalogclient/catalogtest"
	"github.com/mkrupp/storefront/internal/svc/clientsvc"
	"github.com/mkrupp/storefront/internal/svc/identitysvc"
	"github.com/mkrupp/storefront/internal/svc/imagesvc"
	"github.com/mkrupp/storefront/internal/svc/policysvc"
	"github.com/mkrupp/storefront/internal/svc/productsvc"
	"github.com/mkrupp/storefront/internal/svc/shopsvc"
)

type fixture struct {
	shop      *shopsvc.ShopService
	repo      *kv.MemoryKVRepository
	catalog   *catalogtest.Catalog
	thumbRepo *blob.MemoryRepository
	handler   http.Handler
}

func imageURL(id int64) string {
	return fmt.Sprintf("https://img.example.com/%d.png", id)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 20))))

	return buf.Bytes()
}

// defaults fills cfg from its envDefault tags only.
func defaults[T any](t *testing.T) T {
	t.Helper()

	var cfg T
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}))

	return cfg
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	repo := kv.NewMemoryKVRepository()

	catalog := catalogtest.NewCatalog(10)
	for id := int64(1); id <= 20; id++ {
		catalog.Products = append(catalog.Products, domain.Product{
			ID:       id,
			Title:    fmt.Sprintf("Product %d", id),
			Price:    float64(id) * 10,
			Category: "electronics",
			Image:    imageURL(id),
		})
	}
	catalog.Images[imageURL(1)] = catalogtest.Image{Body: pngBytes(t), ContentType: "image/png"}

	identity, err := identitysvc.NewIdentityService(repo, catalog, defaults[identitysvc.IdentityConfig](t))
	require.NoError(t, err)

	cart, err := cartsvc.NewCartService(repo, defaults[cartsvc.CartConfig](t))
	require.NoError(t, err)

	products := productsvc.NewProductService(repo, catalog, defaults[productsvc.ProductConfig](t))
	t.Cleanup(func() { _ = products.Close() })

	policy, err := policysvc.NewPolicy(defaults[policysvc.PolicyConfig](t))
	require.NoError(t, err)

	thumbRepo := blob.NewMemoryRepository()
	thumbFactory := func(context.Context, string, string) (blob.Repository, error) { return thumbRepo, nil }

	thumbs, err := imagesvc.NewBlobThumbnailService(ctx, thumbFactory, catalog, defaults[imagesvc.ThumbnailConfig](t))
	require.NoError(t, err)

	shop := shopsvc.NewShopService(shopsvc.Deps{
		Repo:     repo,
		Identity: identity,
		Cart:     cart,
		Products: products,
		Clients:  clientsvc.NewClientService(repo, catalog),
		Policy:   policy,
		Thumbs:   thumbs,
	}, defaults[shopsvc.ShopConfig](t))

	shop.Start(ctx)
	require.NoError(t, products.Init(ctx))

	thumbTransport := imagesvc.NewHTTPTransport(thumbs, shop, defaults[imagesvc.HTTPTransportConfig](t))

	return &fixture{
		shop:      shop,
		repo:      repo,
		catalog:   catalog,
		thumbRepo: thumbRepo,
		handler:   shopsvc.NewHTTPTransport(shop, thumbTransport, defaults[shopsvc.HTTPTransportConfig](t)),
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}
