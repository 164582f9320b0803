// Package catalogtest provides an in-memory CatalogClient for tests.
package catalogtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/svc/catalogclient"
)

// Image is a canned FetchImage answer.
type Image struct {
	Body        []byte
	ContentType string
}

// Catalog is a fake catalog. Zero value serves nothing; fill the fields
// before use. Fields may be changed between calls under Lock/Unlock.
type Catalog struct {
	sync.Mutex

	Products []domain.Product
	UserList []domain.CatalogUser
	Images   map[string]Image

	// Err, when set, fails every call.
	Err error

	// Gate, when set, blocks TopProducts until a value is received or ctx ends.
	// Blocked callers are counted as "TopProducts.wait".
	Gate chan struct{}

	Calls map[string]int
}

var _ catalogclient.CatalogClient = (*Catalog)(nil)

// NewCatalog returns a fake serving count users named user1..userN.
func NewCatalog(count int64) *Catalog {
	users := make([]domain.CatalogUser, 0, count)
	for id := int64(1); id <= count; id++ {
		users = append(users, domain.CatalogUser{
			ID:       id,
			Email:    fmt.Sprintf("user%d@example.com", id),
			Username: fmt.Sprintf("user%d", id),
			Name:     domain.CatalogUserName{Firstname: "First", Lastname: fmt.Sprintf("Last%d", id)},
			Phone:    "1-555-0100",
		})
	}

	return &Catalog{UserList: users, Images: map[string]Image{}}
}

// CallCount returns how often method was called.
func (c *Catalog) CallCount(method string) int {
	c.Lock()
	defer c.Unlock()

	return c.Calls[method]
}

func (c *Catalog) count(method string) {
	c.Lock()
	defer c.Unlock()

	if c.Calls == nil {
		c.Calls = map[string]int{}
	}

	c.Calls[method]++
}

func (c *Catalog) enter(method string) error {
	c.count(method)

	c.Lock()
	defer c.Unlock()

	if c.Err != nil {
		return fmt.Errorf("%s: %w", method, c.Err)
	}

	return nil
}

func (c *Catalog) TopProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	c.Lock()
	gate := c.Gate
	c.Unlock()

	if gate != nil {
		c.count("TopProducts.wait")

		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("top products: %w", ctx.Err())
		}
	}

	if err := c.enter("TopProducts"); err != nil {
		return nil, err
	}

	c.Lock()
	defer c.Unlock()

	products := c.Products
	if limit >= 0 && limit < len(products) {
		products = products[:limit]
	}

	return append([]domain.Product(nil), products...), nil
}

func (c *Catalog) User(_ context.Context, id int64) (*domain.CatalogUser, error) {
	if err := c.enter("User"); err != nil {
		return nil, err
	}

	c.Lock()
	defer c.Unlock()

	for _, user := range c.UserList {
		if user.ID == id {
			return &user, nil
		}
	}

	return nil, fmt.Errorf("user %d: %w", id, domain.ErrCatalogUnavailable)
}

func (c *Catalog) Users(context.Context) ([]domain.CatalogUser, error) {
	if err := c.enter("Users"); err != nil {
		return nil, err
	}

	c.Lock()
	defer c.Unlock()

	return append([]domain.CatalogUser(nil), c.UserList...), nil
}

func (c *Catalog) FetchImage(_ context.Context, url string) ([]byte, string, error) {
	if err := c.enter("FetchImage"); err != nil {
		return nil, "", err
	}

	c.Lock()
	defer c.Unlock()

	img, ok := c.Images[url]
	if !ok {
		return nil, "", fmt.Errorf("image %s: %w", url, domain.ErrCatalogUnavailable)
	}

	return img.Body, img.ContentType, nil
}
