// Package shopsvc is the storefront facade. It passes the active identity to
// the cart explicitly, applies the permission policy, validates input and
// keeps the theme preference.
package shopsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/infra/logging"
	"github.com/mkrupp/storefront/internal/repo/kv"
	"github.com/mkrupp/storefront/internal/svc/cartsvc"
	"github.com/mkrupp/storefront/internal/svc/clientsvc"
	"github.com/mkrupp/storefront/internal/svc/identitysvc"
	"github.com/mkrupp/storefront/internal/svc/imagesvc"
	"github.com/mkrupp/storefront/internal/svc/policysvc"
	"github.com/mkrupp/storefront/internal/svc/productsvc"
)

// Session describes who the storefront acts as.
type Session struct {
	User    *domain.User       `json:"user"`
	IsAdmin bool               `json:"isAdmin"`
	Cart    domain.CartSummary `json:"cart"`
}

// Deps are the stores the facade coordinates.
type Deps struct {
	Repo     kv.Repository
	Identity *identitysvc.IdentityService
	Cart     *cartsvc.CartService
	Products *productsvc.ProductService
	Clients  *clientsvc.ClientService
	Policy   *policysvc.Policy
	Thumbs   imagesvc.ThumbnailService
}

// ShopService implements the storefront use cases on top of the stores.
type ShopService struct {
	Deps

	cfg ShopConfig
	log logging.Logger

	// switchMu orders identity switches with their cart activation.
	switchMu sync.Mutex

	clientsMu     sync.Mutex
	clientsLoaded bool
}

// NewShopService creates the facade.
func NewShopService(deps Deps, cfg ShopConfig) *ShopService {
	return &ShopService{
		Deps: deps,
		cfg:  cfg,
		log:  logging.GetLogger("svc.shopsvc"),
	}
}

// Start activates the cart of the stored identity. Call it once before serving.
func (s *ShopService) Start(ctx context.Context) {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	user := s.Identity.Current(ctx)
	items := s.Cart.Activate(ctx, user)

	s.log.InfoContext(ctx, "storefront started", "user", userID(user), "cartItems", len(items))
}

// Session returns the active identity and its cart.
func (s *ShopService) Session(ctx context.Context) Session {
	user := s.Identity.Current(ctx)

	return Session{User: user, IsAdmin: user.IsAdmin(), Cart: s.Cart.Summary()}
}

// Login switches to the next pool user and activates their cart.
func (s *ShopService) Login(ctx context.Context) (Session, error) {
	return s.switchIdentity(ctx, "login", s.Identity.Login)
}

// LoginAsAdmin switches to the administrator and activates their cart.
func (s *ShopService) LoginAsAdmin(ctx context.Context) (Session, error) {
	return s.switchIdentity(ctx, "login as admin", s.Identity.LoginAsAdmin)
}

// Logout drops the identity and activates the guest cart.
func (s *ShopService) Logout(ctx context.Context) (Session, error) {
	return s.switchIdentity(ctx, "logout", func(ctx context.Context) (*domain.User, error) {
		return nil, s.Identity.Logout(ctx)
	})
}

func (s *ShopService) switchIdentity(
	ctx context.Context,
	op string,
	switchFn func(context.Context) (*domain.User, error),
) (session Session, err error) {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	defer func() {
		if err != nil {
			s.log.ErrorContext(ctx, op+" failed", "error", err)
		} else {
			s.log.InfoContext(ctx, op, "user", userID(session.User))
		}
	}()

	user, err := switchFn(ctx)
	if err != nil {
		// A partly applied switch may still have changed the stored user.
		if current := s.Identity.Current(ctx); domain.CartKey(current) != s.Cart.Key() {
			s.Cart.Activate(ctx, current)
		}

		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	s.Cart.Activate(ctx, user)

	return Session{User: user, IsAdmin: user.IsAdmin(), Cart: s.Cart.Summary()}, nil
}

// Home returns the products featured on the home view.
func (s *ShopService) Home(ctx context.Context) ([]domain.Product, error) {
	products, err := s.Products.Top(ctx, s.cfg.HomeLimit)
	if err != nil {
		return nil, fmt.Errorf("home: %w", err)
	}

	return products, nil
}

// ProductList returns the product state with items filtered by query.
func (s *ShopService) ProductList(query string) domain.ProductsState {
	state := s.Products.State()
	state.Items = s.Products.Search(query)

	return state
}

// ReloadProducts refetches the catalog.
func (s *ShopService) ReloadProducts(ctx context.Context) (domain.ProductsState, error) {
	err := s.Products.Init(ctx)

	return s.Products.State(), err
}

// CreateProduct adds a local product. Any logged-in user may create one.
func (s *ShopService) CreateProduct(ctx context.Context, p domain.Product) (domain.ProductItem, error) {
	user := s.Identity.Current(ctx)

	if err := s.Policy.Check(ctx, policysvc.ProductCreate, user, nil); err != nil {
		return domain.ProductItem{}, err
	}

	if err := p.Validate(); err != nil {
		return domain.ProductItem{}, err
	}

	return s.Products.AddLocal(ctx, p)
}

// UpdateProduct edits a local product. Cached thumbnails of a replaced
// image are purged.
func (s *ShopService) UpdateProduct(ctx context.Context, p domain.Product) (domain.ProductItem, error) {
	existing, err := s.guardProduct(ctx, policysvc.ProductUpdate, p.ID)
	if err != nil {
		return domain.ProductItem{}, err
	}

	if err := p.Validate(); err != nil {
		return domain.ProductItem{}, err
	}

	updated, err := s.Products.UpdateLocal(ctx, p)
	if err != nil {
		return domain.ProductItem{}, err
	}

	if existing.Image != updated.Image {
		s.purgeThumbnails(ctx, existing.Image)
	}

	return updated, nil
}

// DeleteProduct removes a local product and its cached thumbnails.
func (s *ShopService) DeleteProduct(ctx context.Context, id int64) error {
	existing, err := s.guardProduct(ctx, policysvc.ProductDelete, id)
	if err != nil {
		return err
	}

	if err := s.Products.DeleteLocal(ctx, id); err != nil {
		return err
	}

	s.purgeThumbnails(ctx, existing.Image)

	return nil
}

func (s *ShopService) guardProduct(ctx context.Context, action policysvc.Action, id int64) (domain.ProductItem, error) {
	existing, ok := s.Products.Find(id)
	if !ok {
		return domain.ProductItem{}, fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
	}

	user := s.Identity.Current(ctx)
	if err := s.Policy.Check(ctx, action, user, policysvc.ProductRecord(existing)); err != nil {
		return domain.ProductItem{}, err
	}

	return existing, nil
}

func (s *ShopService) purgeThumbnails(ctx context.Context, imageURL string) {
	if err := s.Thumbs.Purge(ctx, imageURL); err != nil {
		s.log.WarnContext(ctx, "purge thumbnails failed", "url", imageURL, "error", err)
	}
}

// ImageURL resolves the image of a listed product.
func (s *ShopService) ImageURL(_ context.Context, id int64) (string, error) {
	product, ok := s.Products.Find(id)
	if !ok {
		return "", fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
	}

	return product.Image, nil
}

// CartSummary returns the active cart.
func (s *ShopService) CartSummary() domain.CartSummary {
	return s.Cart.Summary()
}

// AddToCart adds one unit of a listed product to the active cart. Title,
// price and image always come from the product list.
func (s *ShopService) AddToCart(ctx context.Context, id int64) (domain.CartSummary, error) {
	user := s.Identity.Current(ctx)

	if err := s.Policy.Check(ctx, policysvc.CartAdd, user, nil); err != nil {
		return domain.CartSummary{}, err
	}

	product, ok := s.Products.Find(id)
	if !ok {
		return domain.CartSummary{}, fmt.Errorf("add to cart: product %d: %w", id, domain.ErrProductNotFound)
	}

	if err := s.Cart.AddItem(ctx, product.ID, product.Title, product.Price, product.Image); err != nil {
		return domain.CartSummary{}, err
	}

	return s.Cart.Summary(), nil
}

// DecrementCartItem removes one unit of id.
func (s *ShopService) DecrementCartItem(ctx context.Context, id int64) (domain.CartSummary, error) {
	return s.cartOp(s.Cart.DecrementItem(ctx, id))
}

// SetCartQty sets the quantity of id. A nil qty counts as 1.
func (s *ShopService) SetCartQty(ctx context.Context, id int64, qty *float64) (domain.CartSummary, error) {
	value := 1.0
	if qty != nil {
		value = *qty
	}

	return s.cartOp(s.Cart.SetQty(ctx, id, value))
}

// RemoveCartItem drops id from the cart.
func (s *ShopService) RemoveCartItem(ctx context.Context, id int64) (domain.CartSummary, error) {
	return s.cartOp(s.Cart.RemoveItem(ctx, id))
}

// ClearCart empties the cart.
func (s *ShopService) ClearCart(ctx context.Context) (domain.CartSummary, error) {
	return s.cartOp(s.Cart.ClearCart(ctx))
}

// Checkout finalizes the active cart.
func (s *ShopService) Checkout(ctx context.Context) (*domain.Receipt, error) {
	return s.Cart.Checkout(ctx)
}

func (s *ShopService) cartOp(err error) (domain.CartSummary, error) {
	if err != nil {
		return domain.CartSummary{}, err
	}

	return s.Cart.Summary(), nil
}

// ClientList returns the client state filtered by query. The list is loaded
// on first use, like the clients view does on mount.
func (s *ShopService) ClientList(ctx context.Context, query string) (domain.ClientsState, error) {
	if _, err := s.guardClients(ctx); err != nil {
		return domain.ClientsState{}, err
	}

	if err := s.ensureClients(ctx); err != nil {
		return s.Clients.State(), err
	}

	state := s.Clients.State()
	state.Items = s.Clients.Search(query)

	return state, nil
}

// ReloadClients refetches the catalog users.
func (s *ShopService) ReloadClients(ctx context.Context) (domain.ClientsState, error) {
	if _, err := s.guardClients(ctx); err != nil {
		return domain.ClientsState{}, err
	}

	err := s.Clients.Init(ctx)
	if err == nil {
		s.clientsMu.Lock()
		s.clientsLoaded = true
		s.clientsMu.Unlock()
	}

	return s.Clients.State(), err
}

// CreateClient adds a local client.
func (s *ShopService) CreateClient(ctx context.Context, c domain.Client) (domain.Client, error) {
	if _, err := s.guardClients(ctx); err != nil {
		return domain.Client{}, err
	}

	if err := c.Validate(); err != nil {
		return domain.Client{}, err
	}

	if err := s.ensureClients(ctx); err != nil {
		return domain.Client{}, err
	}

	return s.Clients.Create(ctx, c)
}

// UpdateClient edits a client. Editing one's own catalog record also
// rewrites the active identity.
func (s *ShopService) UpdateClient(ctx context.Context, c domain.Client) (domain.Client, error) {
	user, err := s.guardClient(ctx, policysvc.ClientUpdate, c.ID)
	if err != nil {
		return domain.Client{}, err
	}

	if err := c.Validate(); err != nil {
		return domain.Client{}, err
	}

	updated, err := s.Clients.Update(ctx, c)
	if err != nil {
		return domain.Client{}, err
	}

	if user != nil && !updated.IsLocal() && updated.ID == user.ID {
		if _, err := s.Identity.UpdateCurrent(ctx, domain.User{
			ID:        updated.ID,
			FirstName: updated.FirstName,
			LastName:  updated.LastName,
			Email:     updated.Email,
			Username:  updated.Username,
		}); err != nil {
			return updated, err
		}
	}

	return updated, nil
}

// DeleteClient removes a client.
func (s *ShopService) DeleteClient(ctx context.Context, id int64) error {
	if _, err := s.guardClient(ctx, policysvc.ClientDelete, id); err != nil {
		return err
	}

	return s.Clients.Delete(ctx, id)
}

func (s *ShopService) guardClients(ctx context.Context) (*domain.User, error) {
	user := s.Identity.Current(ctx)

	if err := s.Policy.Check(ctx, policysvc.ClientsView, user, nil); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *ShopService) guardClient(ctx context.Context, action policysvc.Action, id int64) (*domain.User, error) {
	user, err := s.guardClients(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ensureClients(ctx); err != nil {
		return nil, err
	}

	existing, ok := s.Clients.Find(id)
	if !ok {
		return nil, fmt.Errorf("client %d: %w", id, domain.ErrClientNotFound)
	}

	if err := s.Policy.Check(ctx, action, user, policysvc.ClientRecord(existing)); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *ShopService) ensureClients(ctx context.Context) error {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if s.clientsLoaded {
		return nil
	}

	if err := s.Clients.Init(ctx); err != nil {
		return err
	}

	s.clientsLoaded = true

	return nil
}

// AdminUsers backs the admin view, which has no content yet.
func (s *ShopService) AdminUsers(ctx context.Context) ([]domain.User, error) {
	if err := s.Policy.Check(ctx, policysvc.AdminView, s.Identity.Current(ctx), nil); err != nil {
		return nil, err
	}

	return []domain.User{}, nil
}

// Theme returns the stored color mode. Anything unreadable reads as light.
func (s *ShopService) Theme(ctx context.Context) domain.Theme {
	decoded := kv.Load[domain.Theme](ctx, s.Repo, domain.KeyAppTheme, s.log)
	if !decoded.Present() || !decoded.Value.Valid() {
		return domain.ThemeLight
	}

	return decoded.Value
}

// SetTheme stores the color mode.
func (s *ShopService) SetTheme(ctx context.Context, theme domain.Theme) (domain.Theme, error) {
	if !theme.Valid() {
		return "", errors.Join(domain.ErrInvalidTheme, fmt.Errorf("theme %q", theme))
	}

	if err := kv.Save(ctx, s.Repo, domain.KeyAppTheme, theme); err != nil {
		return "", fmt.Errorf("set theme: %w", err)
	}

	return theme, nil
}

// ToggleTheme flips the stored color mode.
func (s *ShopService) ToggleTheme(ctx context.Context) (domain.Theme, error) {
	return s.SetTheme(ctx, s.Theme(ctx).Toggled())
}

func userID(user *domain.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}
