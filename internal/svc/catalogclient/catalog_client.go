// Package catalogclient talks to the remote product and user catalog.
package catalogclient

import (
	"context"

	"github.com/mkrupp/storefront/internal/domain"
)

// CatalogClient defines read access to the remote catalog.
// Every failure is reported as domain.ErrCatalogUnavailable.
type CatalogClient interface {
	// TopProducts returns the first limit products in catalog order.
	TopProducts(ctx context.Context, limit int) ([]domain.Product, error)

	// User returns the catalog user with the given id.
	User(ctx context.Context, id int64) (*domain.CatalogUser, error)

	// Users returns every catalog user.
	Users(ctx context.Context) ([]domain.CatalogUser, error)

	// FetchImage downloads an image by absolute URL and returns its bytes
	// and the reported content type.
	FetchImage(ctx context.Context, url string) ([]byte, string, error)
}
