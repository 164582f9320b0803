// Package productsvc merges the remote catalog with locally created products.
package productsvc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/infra/logging"
	"github.com/mkrupp/storefront/internal/repo/kv"
	"github.com/mkrupp/storefront/internal/svc/catalogclient"
)

// LoadFailedMessage is the user-facing error set when Init fails.
const LoadFailedMessage = "failed to load products"

// ErrClosed is returned by InitAsync after Close.
var ErrClosed = errors.New("product service closed")

// ProductConfig holds configuration for the product service.
type ProductConfig struct {
	// InitLimit is how many catalog products Init fetches
	InitLimit int `env:"INIT_LIMIT" envDefault:"20"`
}

// ProductService owns the merged product list. Local products are listed
// before catalog ones and are the only ones that can be changed; they are
// written to domain.KeyProductsExtra after every change.
type ProductService struct {
	repo    kv.Repository
	catalog catalogclient.CatalogClient
	cfg     ProductConfig
	log     logging.Logger

	mu         sync.Mutex
	items      []domain.ProductItem
	loading    bool
	loadErr    string
	generation uint64
	closed     bool
	cancel     context.CancelFunc
	lastID     int64 // highest local id handed out or loaded

	wg sync.WaitGroup
}

// NewProductService creates an empty ProductService. Call Init to load it.
func NewProductService(
	repo kv.Repository,
	catalog catalogclient.CatalogClient,
	cfg ProductConfig,
) *ProductService {
	return &ProductService{
		repo:    repo,
		catalog: catalog,
		cfg:     cfg,
		log:     logging.GetLogger("svc.productsvc"),
		items:   []domain.ProductItem{},
	}
}

// Init fetches the catalog's top products and merges them with the stored
// local products. While it runs State reports loading. On failure the
// previous items are kept and State reports LoadFailedMessage.
//
// Only the latest Init may apply its result: one that is overtaken by a
// newer Init, or by Close, returns without touching state.
func (s *ProductService) Init(ctx context.Context) (err error) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.loading = true
	s.loadErr = ""
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.log.ErrorContext(ctx, "products init failed", "error", err)
		}
	}()

	remote, fetchErr := s.catalog.TopProducts(ctx, s.cfg.InitLimit)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.closed {
		s.log.DebugContext(ctx, "products init superseded", "generation", gen)

		return nil
	}

	s.loading = false

	if fetchErr != nil {
		s.loadErr = LoadFailedMessage

		return fmt.Errorf("fetch top products: %w", fetchErr)
	}

	local := s.loadLocal(ctx)
	items := make([]domain.ProductItem, 0, len(local)+len(remote))
	items = append(items, local...)

	for _, p := range remote {
		items = append(items, domain.ProductItem{Product: p, Source: domain.SourceAPI})
	}

	s.items = items
	s.lastID = max(s.lastID, nextLocalID(local)-1)

	s.log.InfoContext(ctx, "products loaded", "local", len(local), "api", len(remote))

	return nil
}

// InitAsync runs Init in the background. Close cancels and waits for it.
func (s *ProductService) InitAsync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer cancel()

		_ = s.Init(ctx)
	}()

	return nil
}

// Close voids any Init still running and waits for background loads to stop.
func (s *ProductService) Close() error {
	s.mu.Lock()
	s.closed = true
	s.generation++
	s.loading = false

	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	return nil
}

// State returns a snapshot of items and load status.
func (s *ProductService) State() domain.ProductsState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.ProductsState{
		Items:   slices.Clone(s.items),
		Loading: s.loading,
		Error:   s.loadErr,
	}
}

// Search returns the items whose title contains query, ignoring case and
// surrounding whitespace. An empty query matches everything.
func (s *ProductService) Search(query string) []domain.ProductItem {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	defer s.mu.Unlock()

	if query == "" {
		return slices.Clone(s.items)
	}

	matches := []domain.ProductItem{}

	for _, it := range s.items {
		if strings.Contains(strings.ToLower(it.Title), query) {
			matches = append(matches, it)
		}
	}

	return matches
}

// Find returns the first item with the given id.
func (s *ProductService) Find(id int64) (domain.ProductItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.items, func(it domain.ProductItem) bool { return it.ID == id })
	if idx < 0 {
		return domain.ProductItem{}, false
	}

	return s.items[idx], true
}

// Top fetches the first n catalog products without touching the store.
func (s *ProductService) Top(ctx context.Context, n int) ([]domain.Product, error) {
	products, err := s.catalog.TopProducts(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("fetch top products: %w", err)
	}

	return products, nil
}

// AddLocal stores p as a new local product. Its id is one above the highest
// id in the list, and never below domain.LocalIDBase+1. Ids of deleted
// products are not handed out again while the service runs.
func (s *ProductService) AddLocal(ctx context.Context, p domain.Product) (domain.ProductItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = max(nextLocalID(s.items), s.lastID+1)
	s.lastID = p.ID
	item := domain.ProductItem{Product: p, Source: domain.SourceLocal}
	s.items = slices.Insert(s.items, 0, item)

	s.log.DebugContext(ctx, "local product added", "id", p.ID)

	return item, s.persist(ctx)
}

// UpdateLocal replaces the fields of the local product with p.ID.
// Catalog products cannot be updated.
func (s *ProductService) UpdateLocal(ctx context.Context, p domain.Product) (domain.ProductItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.localIndex(p.ID)
	if idx < 0 {
		return domain.ProductItem{}, fmt.Errorf("update product %d: %w", p.ID, domain.ErrProductNotFound)
	}

	s.items[idx].Product = p

	s.log.DebugContext(ctx, "local product updated", "id", p.ID)

	return s.items[idx], s.persist(ctx)
}

// DeleteLocal removes the local product with the given id.
// Catalog products cannot be deleted.
func (s *ProductService) DeleteLocal(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.localIndex(id)
	if idx < 0 {
		return fmt.Errorf("delete product %d: %w", id, domain.ErrProductNotFound)
	}

	s.items = slices.Delete(s.items, idx, idx+1)

	s.log.DebugContext(ctx, "local product deleted", "id", id)

	return s.persist(ctx)
}

func (s *ProductService) localIndex(id int64) int {
	return slices.IndexFunc(s.items, func(it domain.ProductItem) bool {
		return it.ID == id && it.IsLocal()
	})
}

// loadLocal reads the stored local products. Ids below domain.LocalIDBase
// are raised to it.
func (s *ProductService) loadLocal(ctx context.Context) []domain.ProductItem {
	decoded := kv.Load[[]domain.Product](ctx, s.repo, domain.KeyProductsExtra, s.log)

	local := make([]domain.ProductItem, 0, len(decoded.Value))
	for _, p := range decoded.Value {
		p.ID = max(p.ID, domain.LocalIDBase)
		local = append(local, domain.ProductItem{Product: p, Source: domain.SourceLocal})
	}

	return local
}

// persist writes the local subset without its source tag.
func (s *ProductService) persist(ctx context.Context) error {
	local := []domain.Product{}

	for _, it := range s.items {
		if it.IsLocal() {
			local = append(local, it.Product)
		}
	}

	if err := kv.Save(ctx, s.repo, domain.KeyProductsExtra, local); err != nil {
		s.log.ErrorContext(ctx, "persist local products failed", "error", err)

		return fmt.Errorf("persist local products: %w", err)
	}

	return nil
}

func nextLocalID(items []domain.ProductItem) int64 {
	highest := domain.LocalIDBase
	for _, it := range items {
		highest = max(highest, it.ID)
	}

	return highest + 1
}
