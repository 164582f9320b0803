// Package cartsvc keeps the shopping cart of the active identity.
package cartsvc

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/infra/logging"
	"github.com/mkrupp/storefront/internal/repo/kv"
)

// maxQty bounds quantities so float input always fits an int.
const maxQty = math.MaxInt32

// CartService holds one cart at a time: the one of the identity passed to
// the last Activate. Every mutation is written through to storage before
// the call returns.
type CartService struct {
	repo    kv.Repository
	cfg     CartConfig
	printer *message.Printer
	log     logging.Logger

	mu    sync.Mutex
	key   string
	items []domain.CartItem
}

// NewCartService creates a CartService holding an empty guest cart.
// Call Activate to load a stored cart.
func NewCartService(repo kv.Repository, cfg CartConfig) (*CartService, error) {
	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", cfg.Locale, err)
	}

	return &CartService{
		repo:    repo,
		cfg:     cfg,
		printer: message.NewPrinter(tag),
		log:     logging.GetLogger("svc.cartsvc"),
		key:     domain.CartKey(nil),
		items:   []domain.CartItem{},
	}, nil
}

// Activate switches to the cart owned by user (nil for the guest) and loads
// it from storage. Missing or unreadable carts load as empty.
func (s *CartService) Activate(ctx context.Context, user *domain.User) []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.key = domain.CartKey(user)

	decoded := kv.Load[[]domain.CartItem](ctx, s.repo, s.key, s.log)
	s.items = sanitize(decoded.Value)

	s.log.DebugContext(ctx, "cart activated",
		"key", s.key,
		"state", decoded.State.String(),
		"items", len(s.items),
	)

	return slices.Clone(s.items)
}

// Key returns the storage key of the active cart.
func (s *CartService) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.key
}

// Items returns a copy of the active cart's lines, most recently added first.
func (s *CartService) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.items)
}

// AddItem adds one unit of a product. A product already in the cart has its
// quantity incremented in place; a new one is inserted at the front.
func (s *CartService) AddItem(ctx context.Context, id int64, title string, price float64, image string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexOf(id); idx >= 0 {
		if s.items[idx].Qty < maxQty {
			s.items[idx].Qty++
		}
	} else {
		item := domain.CartItem{ID: id, Title: title, Price: price, Image: image, Qty: 1}
		s.items = slices.Insert(s.items, 0, item)
	}

	return s.persist(ctx, "add item")
}

// DecrementItem removes one unit of a product, dropping the line when it
// reaches zero. An id not in the cart is ignored and nothing is written.
func (s *CartService) DecrementItem(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil
	}

	s.items[idx].Qty--
	if s.items[idx].Qty <= 0 {
		s.items = slices.Delete(s.items, idx, idx+1)
	}

	return s.persist(ctx, "decrement item")
}

// SetQty sets a line's quantity to max(1, floor(qty)). Zero, NaN and
// infinite values count as 1. An id not in the cart is ignored.
func (s *CartService) SetQty(ctx context.Context, id int64, qty float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil
	}

	s.items[idx].Qty = NormalizeQty(qty)

	return s.persist(ctx, "set qty")
}

// RemoveItem drops a line regardless of its quantity.
func (s *CartService) RemoveItem(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = slices.DeleteFunc(s.items, func(it domain.CartItem) bool { return it.ID == id })

	return s.persist(ctx, "remove item")
}

// ClearCart empties the active cart.
func (s *CartService) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = []domain.CartItem{}

	return s.persist(ctx, "clear cart")
}

// ReplaceAll replaces the active cart's lines. Lines with a quantity below
// one are raised to one and repeated ids keep their first occurrence.
func (s *CartService) ReplaceAll(ctx context.Context, items []domain.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = sanitize(slices.Clone(items))

	return s.persist(ctx, "replace all")
}

// Count returns the total number of units in the cart.
func (s *CartService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return count(s.items)
}

// Total returns the sum of price times quantity over all lines.
func (s *CartService) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return total(s.items)
}

// Summary returns the cart with its derived values.
func (s *CartService) Summary() domain.CartSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.summary()
}

// Checkout finalizes the purchase: it returns a receipt of the current
// cart and empties it. An empty cart cannot be checked out.
func (s *CartService) Checkout(ctx context.Context) (receipt *domain.Receipt, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if err != nil {
			s.log.WarnContext(ctx, "checkout failed", "key", s.key, "error", err)
		} else {
			s.log.InfoContext(ctx, "checkout",
				"key", receipt.CartKey,
				"count", receipt.Count,
				"total", receipt.FormattedTotal,
			)
		}
	}()

	if len(s.items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	receipt = &domain.Receipt{CartSummary: s.summary(), CartKey: s.key}
	s.items = []domain.CartItem{}

	if err := s.persist(ctx, "checkout"); err != nil {
		return nil, err
	}

	return receipt, nil
}

// FormatMoney renders amount in the configured locale, e.g. "R$ 1.234,50".
func (s *CartService) FormatMoney(amount float64) string {
	return s.cfg.CurrencySymbol + " " + s.printer.Sprint(number.Decimal(amount, number.Scale(2)))
}

// NormalizeQty maps user input to a valid quantity.
func NormalizeQty(qty float64) int {
	if math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 1
	}

	qty = math.Floor(qty)

	switch {
	case qty < 1:
		return 1
	case qty > maxQty:
		return maxQty
	default:
		return int(qty)
	}
}

func (s *CartService) summary() domain.CartSummary {
	sum := total(s.items)

	return domain.CartSummary{
		Items:          slices.Clone(s.items),
		Count:          count(s.items),
		Total:          sum,
		FormattedTotal: s.FormatMoney(sum),
	}
}

func (s *CartService) indexOf(id int64) int {
	return slices.IndexFunc(s.items, func(it domain.CartItem) bool { return it.ID == id })
}

// persist writes the active cart. A failed write is logged and returned;
// the in-memory cart keeps the change.
func (s *CartService) persist(ctx context.Context, op string) error {
	if err := kv.Save(ctx, s.repo, s.key, s.items); err != nil {
		s.log.ErrorContext(ctx, op+" failed", "key", s.key, "error", err)

		return fmt.Errorf("%s: persist cart: %w", op, err)
	}

	s.log.DebugContext(ctx, op, "key", s.key, "items", len(s.items))

	return nil
}

func sanitize(items []domain.CartItem) []domain.CartItem {
	seen := make(map[int64]struct{}, len(items))
	out := make([]domain.CartItem, 0, len(items))

	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			continue
		}

		seen[it.ID] = struct{}{}

		if it.Qty < 1 {
			it.Qty = 1
		}

		out = append(out, it)
	}

	return out
}

func count(items []domain.CartItem) int {
	n := 0
	for _, it := range items {
		n += it.Qty
	}

	return n
}

func total(items []domain.CartItem) float64 {
	sum := 0.0
	for _, it := range items {
		sum += it.Subtotal()
	}

	return sum
}
