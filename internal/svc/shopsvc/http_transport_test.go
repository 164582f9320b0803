package shopsvc_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/storefront/internal/domain"
	http_ "github.com/mkrupp/storefront/internal/infra/transport/http"
	"github.com/mkrupp/storefront/internal/svc/shopsvc"
)

type itemsBody[T any] struct {
	Items []T `json:"items"`
}

func TestHTTPCartFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/cart/items", `3`)
	require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
	assert.Equal(t, "Log in to add items to the cart.", decodeBody[http_.ErrorResponse](t, rec).Notice)

	rec = f.do(t, http.MethodPost, "/api/session/login", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/cart/items", `3`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	summary := decodeBody[domain.CartSummary](t, rec)
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, "Product 3", summary.Items[0].Title)

	// Only the id of an object body is used; the line comes from the product list.
	rec = f.do(t, http.MethodPost, "/api/cart/items", `{"id":5,"title":"Cheap","price":-1000,"image":"x.png"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	summary = decodeBody[domain.CartSummary](t, rec)
	assert.Equal(t, 2, summary.Count)
	assert.InDelta(t, 80.0, summary.Total, 1e-9)
	assert.Equal(t, "R$ 80,00", summary.FormattedTotal)
	assert.Equal(t, int64(5), summary.Items[0].ID, "new lines go to the front")
	assert.Equal(t, "Product 5", summary.Items[0].Title)
	assert.Equal(t, imageURL(5), summary.Items[0].Image)

	rec = f.do(t, http.MethodPut, "/api/cart/items/3", `{"qty":2.7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decodeBody[domain.CartSummary](t, rec).Count)

	rec = f.do(t, http.MethodPut, "/api/cart/items/3", `{"qty":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeBody[domain.CartSummary](t, rec).Count)

	rec = f.do(t, http.MethodPost, "/api/cart/items/5/decrement", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeBody[domain.CartSummary](t, rec).Count)

	rec = f.do(t, http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[domain.CartSummary](t, rec).Count)

	rec = f.do(t, http.MethodPost, "/api/cart/checkout", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	receipt := decodeBody[domain.Receipt](t, rec)
	assert.Equal(t, "cartItems:1", receipt.CartKey)
	assert.Equal(t, "R$ 30,00", receipt.FormattedTotal)

	rec = f.do(t, http.MethodPost, "/api/cart/checkout", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cart/items", `5`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/cart/items/5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decodeBody[domain.CartSummary](t, rec).Count)

	rec = f.do(t, http.MethodPost, "/api/cart/items", `5`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[domain.CartSummary](t, rec).Items)
}

func TestHTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		login      bool
		wantStatus int
		wantNotice string
	}{
		{name: "malformed cart line", method: http.MethodPost, target: "/api/cart/items", body: `"x"`, wantStatus: http.StatusBadRequest},
		{name: "truncated json", method: http.MethodPost, target: "/api/cart/items", body: `{"id":`, wantStatus: http.StatusBadRequest},
		{name: "cart line without id", method: http.MethodPost, target: "/api/cart/items", body: `{"title":"x"}`, wantStatus: http.StatusBadRequest},
		{
			name: "guest adds to cart", method: http.MethodPost, target: "/api/cart/items", body: `3`,
			wantStatus: http.StatusUnauthorized, wantNotice: "Log in to add items to the cart.",
		},
		{name: "unknown product", method: http.MethodPost, target: "/api/cart/items", body: `12345`, login: true, wantStatus: http.StatusNotFound},
		{name: "bad path id", method: http.MethodPut, target: "/api/cart/items/abc", body: `{"qty":1}`, wantStatus: http.StatusBadRequest},
		{
			name: "guest creates product", method: http.MethodPost, target: "/api/products",
			body:       `{"title":"Lamp","price":1,"category":"home","image":"x.png"}`,
			wantStatus: http.StatusUnauthorized, wantNotice: "Log in to add products.",
		},
		{name: "guest lists clients", method: http.MethodGet, target: "/api/clients", wantStatus: http.StatusUnauthorized, wantNotice: "Log in to see the clients."},
		{name: "guest opens admin", method: http.MethodGet, target: "/api/admin/users", wantStatus: http.StatusUnauthorized, wantNotice: "Administrators only."},
		{name: "invalid theme", method: http.MethodPut, target: "/api/theme", body: `{"theme":"blue"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown route", method: http.MethodGet, target: "/api/nope", wantStatus: http.StatusNotFound},
		{name: "wrong method", method: http.MethodPatch, target: "/api/cart", wantStatus: http.StatusMethodNotAllowed},
		{name: "thumbnail of unknown product", method: http.MethodGet, target: "/api/products/999/thumbnail", wantStatus: http.StatusNotFound},
		{name: "thumbnail with bad width", method: http.MethodGet, target: "/api/products/1/thumbnail?width=abc", wantStatus: http.StatusBadRequest},
		{name: "thumbnail with negative width", method: http.MethodGet, target: "/api/products/1/thumbnail?width=-5", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)

			if tt.login {
				_, err := f.shop.Login(context.Background())
				require.NoError(t, err)
			}

			rec := f.do(t, tt.method, tt.target, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

			resp := decodeBody[http_.ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.wantNotice, resp.Notice)
		})
	}
}

func TestHTTPProducts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/home", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[itemsBody[domain.Product]](t, rec).Items, 5)

	rec = f.do(t, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, rec.Code)

	state := decodeBody[domain.ProductsState](t, rec)
	assert.Len(t, state.Items, 20)
	assert.False(t, state.Loading)

	rec = f.do(t, http.MethodGet, "/api/products?q=product+20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[domain.ProductsState](t, rec).Items, 1)

	rec = f.do(t, http.MethodPost, "/api/session/login", "")
	require.Equal(t, http.StatusOK, rec.Code)

	session := decodeBody[shopsvc.Session](t, rec)
	require.NotNil(t, session.User)
	assert.True(t, session.IsAdmin)

	rec = f.do(t, http.MethodPost, "/api/products", `{"title":"","price":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/products", `{"title":"Lamp","price":40,"category":"home","image":"lamp.png"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody[domain.ProductItem](t, rec)
	assert.Equal(t, int64(1001), created.ID)
	assert.Equal(t, domain.SourceLocal, created.Source)

	rec = f.do(t, http.MethodPut, "/api/products/1001", `{"title":"Desk Lamp","price":45,"category":"home","image":"lamp.png"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Desk Lamp", decodeBody[domain.ProductItem](t, rec).Title)

	rec = f.do(t, http.MethodPut, "/api/products/3", `{"title":"Mine","price":1,"category":"c","image":"i"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotEmpty(t, decodeBody[http_.ErrorResponse](t, rec).Notice)

	rec = f.do(t, http.MethodDelete, "/api/products/1001", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/users", "")
	require.Equal(t, http.StatusOK, rec.Code)

	f.catalog.Lock()
	f.catalog.Err = errors.New("connection refused")
	f.catalog.Unlock()

	rec = f.do(t, http.MethodPost, "/api/products/reload", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "fake errors are not tagged as catalog errors")

	f.catalog.Lock()
	f.catalog.Err = domain.ErrCatalogUnavailable
	f.catalog.Unlock()

	rec = f.do(t, http.MethodPost, "/api/products/reload", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/products", "")
	state = decodeBody[domain.ProductsState](t, rec)
	assert.Equal(t, "failed to load products", state.Error)
	assert.Len(t, state.Items, 20, "items survive a failed reload")
}

func TestHTTPThumbnail(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/products/1/thumbnail?width=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("X-Placeholder"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=")

	rec = f.do(t, http.MethodGet, "/api/products/2/thumbnail", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "true", rec.Header().Get("X-Placeholder"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestHTTPSessionAndTheme(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[shopsvc.Session](t, rec).User)

	rec = f.do(t, http.MethodPost, "/api/session/login-admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[shopsvc.Session](t, rec).IsAdmin)

	rec = f.do(t, http.MethodGet, "/api/clients?q=last3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[domain.ClientsState](t, rec).Items, 1)

	rec = f.do(t, http.MethodPost, "/api/clients", `{"firstName":"Ana","lastName":"Silva","email":"ana@example.com","username":"ana"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPut, "/api/clients/1001", `{"firstName":"Ana","lastName":"Souza","email":"ana@example.com","username":"ana"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Souza", decodeBody[domain.Client](t, rec).LastName)

	rec = f.do(t, http.MethodDelete, "/api/clients/1001", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/clients/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/session/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[shopsvc.Session](t, rec).User)

	type themeBody struct {
		Theme string `json:"theme"`
	}

	rec = f.do(t, http.MethodGet, "/api/theme", "")
	assert.Equal(t, "light", decodeBody[themeBody](t, rec).Theme)

	rec = f.do(t, http.MethodPost, "/api/theme/toggle", "")
	assert.Equal(t, "dark", decodeBody[themeBody](t, rec).Theme)

	rec = f.do(t, http.MethodPut, "/api/theme", `{"theme":"light"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "light", decodeBody[themeBody](t, rec).Theme)
}
