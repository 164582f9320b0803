package shopsvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/infra/logging"
	http_ "github.com/mkrupp/storefront/internal/infra/transport/http"
	"github.com/mkrupp/storefront/internal/svc/imagesvc"
	"github.com/mkrupp/storefront/internal/svc/policysvc"
)

// ErrBadRequest tags malformed request bodies and parameters.
var ErrBadRequest = errors.New("bad request")

const defaultMaxBodyBytes = 1 << 20

// apiFunc handles one route. It returns the status and body to send as
// JSON; a nil body sends the status alone. Errors are mapped by writeError.
type apiFunc func(w http.ResponseWriter, r *http.Request) (int, any, error)

// HTTPTransport exposes the storefront as a JSON API.
type HTTPTransport struct {
	shop   *ShopService
	router chi.Router
	log    logging.Logger
	cfg    HTTPTransportConfig
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates the API router. Thumbnails are served by thumbs.
func NewHTTPTransport(shop *ShopService, thumbs *imagesvc.HTTPTransport, cfg HTTPTransportConfig) *HTTPTransport {
	ht := &HTTPTransport{
		shop: shop,
		log:  logging.GetLogger("svc.shopsvc.http_transport"),
		cfg:  cfg,
	}

	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/home", ht.api("home", ht.handleHome))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", ht.api("list products", ht.handleListProducts))
			r.Post("/", ht.api("create product", ht.handleCreateProduct))
			r.Post("/reload", ht.api("reload products", ht.handleReloadProducts))
			r.Put("/{id}", ht.api("update product", ht.handleUpdateProduct))
			r.Delete("/{id}", ht.api("delete product", ht.handleDeleteProduct))
			r.Get("/{id}/thumbnail", thumbs.HandleThumbnail)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", ht.api("get cart", ht.handleGetCart))
			r.Delete("/", ht.api("clear cart", ht.handleClearCart))
			r.Post("/checkout", ht.api("checkout", ht.handleCheckout))
			r.Post("/items", ht.api("add to cart", ht.handleAddToCart))
			r.Post("/items/{id}/decrement", ht.api("decrement cart item", ht.handleDecrementCartItem))
			r.Put("/items/{id}", ht.api("set cart qty", ht.handleSetCartQty))
			r.Delete("/items/{id}", ht.api("remove cart item", ht.handleRemoveCartItem))
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", ht.api("get session", ht.handleGetSession))
			r.Post("/login", ht.api("login", ht.handleLogin))
			r.Post("/login-admin", ht.api("login as admin", ht.handleLoginAsAdmin))
			r.Post("/logout", ht.api("logout", ht.handleLogout))
		})

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", ht.api("list clients", ht.handleListClients))
			r.Post("/", ht.api("create client", ht.handleCreateClient))
			r.Post("/reload", ht.api("reload clients", ht.handleReloadClients))
			r.Put("/{id}", ht.api("update client", ht.handleUpdateClient))
			r.Delete("/{id}", ht.api("delete client", ht.handleDeleteClient))
		})

		r.Get("/admin/users", ht.api("admin users", ht.handleAdminUsers))

		r.Route("/theme", func(r chi.Router) {
			r.Get("/", ht.api("get theme", ht.handleGetTheme))
			r.Put("/", ht.api("set theme", ht.handleSetTheme))
			r.Post("/toggle", ht.api("toggle theme", ht.handleToggleTheme))
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http_.WriteError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		http_.WriteError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), "")
	})

	ht.router = r

	return ht
}

// ServeHTTP implements http.Handler.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.router.ServeHTTP(w, r)
}

func (ht *HTTPTransport) api(op string, fn apiFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

		status, body, err := fn(w, r)
		if err != nil {
			status = ht.writeError(w, err)
			if status >= http.StatusInternalServerError {
				log.ErrorContext(r.Context(), op+" failed", "status", status, "error", err)
			} else {
				log.InfoContext(r.Context(), op+" rejected", "status", status, "error", err)
			}

			return
		}

		if body == nil {
			w.WriteHeader(status)
		} else if err := http_.WriteJSON(w, status, body); err != nil {
			log.WarnContext(r.Context(), "write response failed", "error", err)

			return
		}

		log.DebugContext(r.Context(), op, "status", status)
	}
}

// writeError maps err to a status and writes it. Policy denials carry their notice.
func (ht *HTTPTransport) writeError(w http.ResponseWriter, err error) int {
	status := statusOf(err)
	notice, _ := policysvc.Notice(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}

	http_.WriteError(w, status, message, notice)

	return status
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, domain.ErrInvalidProduct),
		errors.Is(err, domain.ErrInvalidClient),
		errors.Is(err, domain.ErrInvalidTheme),
		errors.Is(err, domain.ErrInvalidWidth),
		errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrClientNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCatalogUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (ht *HTTPTransport) decode(w http.ResponseWriter, r *http.Request, v any) error {
	limit := ht.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))

	if err := decoder.Decode(v); err != nil {
		return errors.Join(ErrBadRequest, fmt.Errorf("decode body: %w", err))
	}

	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errors.Join(ErrBadRequest, fmt.Errorf("parse id: %w", err))
	}

	return id, nil
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

type themeBody struct {
	Theme domain.Theme `json:"theme"`
}

type qtyBody struct {
	Qty *float64 `json:"qty"`
}

func (ht *HTTPTransport) handleHome(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	products, err := ht.shop.Home(r.Context())
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, itemsResponse[domain.Product]{Items: products}, nil
}

func (ht *HTTPTransport) handleListProducts(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	return http.StatusOK, ht.shop.ProductList(r.URL.Query().Get("q")), nil
}

func (ht *HTTPTransport) handleReloadProducts(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	state, err := ht.shop.ReloadProducts(r.Context())
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, state, nil
}

func (ht *HTTPTransport) handleCreateProduct(w http.ResponseWriter, r *http.Request) (int, any, error) {
	var product domain.Product
	if err := ht.decode(w, r, &product); err != nil {
		return 0, nil, err
	}

	item, err := ht.shop.CreateProduct(r.Context(), product)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusCreated, item, nil
}

func (ht *HTTPTransport) handleUpdateProduct(w http.ResponseWriter, r *http.Request) (int, any, error) {
	id, err := pathID(r)
	if err != nil {
		return 0, nil, err
	}

	var product domain.Product
	if err := ht.decode(w, r, &product); err != nil {
		return 0, nil, err
	}

	product.ID = id

	item, err := ht.shop.UpdateProduct(r.Context(), product)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, item, nil
}

func (ht *HTTPTransport) handleDeleteProduct(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	id, err := pathID(r)
	if err != nil {
		return 0, nil, err
	}

	if err := ht.shop.DeleteProduct(r.Context(), id); err != nil {
		return 0, nil, err
	}

	return http.StatusNoContent, nil, nil
}

func (ht *HTTPTransport) handleGetCart(_ http.ResponseWriter, _ *http.Request) (int, any, error) {
	return http.StatusOK, ht.shop.CartSummary(), nil
}

// cartAddRequest is the object form of an add-to-cart body. Fields other
// than id are ignored.
type cartAddRequest struct {
	ID *int64 `json:"id"`
}

// handleAddToCart accepts either a bare product id or an object with an id.
func (ht *HTTPTransport) handleAddToCart(w http.ResponseWriter, r *http.Request) (int, any, error) {
	var raw json.RawMessage
	if err := ht.decode(w, r, &raw); err != nil {
		return 0, nil, err
	}

	var id int64

	if err := json.Unmarshal(raw, &id); err != nil {
		var req cartAddRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return 0, nil, errors.Join(ErrBadRequest, fmt.Errorf("decode cart line: %w", err))
		}

		if req.ID == nil {
			return 0, nil, fmt.Errorf("%w: missing product id", ErrBadRequest)
		}

		id = *req.ID
	}

	summary, err := ht.shop.AddToCart(r.Context(), id)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, summary, nil
}

func (ht *HTTPTransport) handleDecrementCartItem(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	id, err := pathID(r)
	if err != nil {
		return 0, nil, err
	}

	summary, err := ht.shop.DecrementCartItem(r.Context(), id)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, summary, nil
}

func (ht *HTTPTransport) handleSetCartQty(w http.ResponseWriter, r *http.Request) (int, any, error) {
	id, err := pathID(r)
	if err != nil {
		return 0, nil, err
	}

	var body qtyBody
	if err := ht.decode(w, r, &body); err != nil {
		return 0, nil, err
	}

	summary, err := ht.shop.SetCartQty(r.Context(), id, body.Qty)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, summary, nil
}

func (ht *HTTPTransport) handleRemoveCartItem(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	id, err := pathID(r)
	if err != nil {
		return 0, nil, err
	}

	summary, err := ht.shop.RemoveCartItem(r.Context(), id)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, summary, nil
}

func (ht *HTTPTransport) handleClearCart(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	summary, err := ht.shop.ClearCart(r.Context())
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, summary, nil
}

func (ht *HTTPTransport) handleCheckout(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	receipt, err := ht.shop.Checkout(r.Context())
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, receipt, nil
}

func (ht *HTTPTransport) handleGetSession(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	return http.StatusOK, ht.shop.Session(r.Context()), nil
}

func (ht *HTTPTransport) handleLogin(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	return sessionResult(ht.shop.Login(r.Context()))
}

func (ht *HTTPTransport) handleLoginAsAdmin(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	return sessionResult(ht.shop.LoginAsAdmin(r.Context()))
}

func (ht *HTTPTransport) handleLogout(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	return sessionResult(ht.shop.Logout(r.Context()))
}

func sessionResult(session Session, err error) (int, any, error) {
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, session, nil
}

func (ht *HTTPTransport) handleListClients(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	state, err := ht.shop.ClientList(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, state, nil
}

func (ht *HTTPTransport) handleReloadClients(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	state, err := ht.shop.ReloadClients(r.Context())
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, state, nil
}

func (ht *HTTPTransport) handleCreateClient(w http.ResponseWriter, r *http.Request) (int, any, error) {
	var client domain.Client
	if err := ht.decode(w, r, &client); err != nil {
		return 0, nil, err
	}

	created, err := ht.shop.CreateClient(r.Context(), client)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusCreated, created, nil
}

func (ht *HTTPTransport) handleUpdateClient(w http.ResponseWriter, r *http.Request) (int, any, error) {
	id, err := pathID(r)
	if err != nil {
		return 0, nil, err
	}

	var client domain.Client
	if err := ht.decode(w, r, &client); err != nil {
		return 0, nil, err
	}

	client.ID = id

	updated, err := ht.shop.UpdateClient(r.Context(), client)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, updated, nil
}

func (ht *HTTPTransport) handleDeleteClient(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	id, err := pathID(r)
	if err != nil {
		return 0, nil, err
	}

	if err := ht.shop.DeleteClient(r.Context(), id); err != nil {
		return 0, nil, err
	}

	return http.StatusNoContent, nil, nil
}

func (ht *HTTPTransport) handleAdminUsers(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	users, err := ht.shop.AdminUsers(r.Context())
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, itemsResponse[domain.User]{Items: users}, nil
}

func (ht *HTTPTransport) handleGetTheme(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	return http.StatusOK, themeBody{Theme: ht.shop.Theme(r.Context())}, nil
}

func (ht *HTTPTransport) handleSetTheme(w http.ResponseWriter, r *http.Request) (int, any, error) {
	var body themeBody
	if err := ht.decode(w, r, &body); err != nil {
		return 0, nil, err
	}

	theme, err := ht.shop.SetTheme(r.Context(), body.Theme)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, themeBody{Theme: theme}, nil
}

func (ht *HTTPTransport) handleToggleTheme(_ http.ResponseWriter, r *http.Request) (int, any, error) {
	theme, err := ht.shop.ToggleTheme(r.Context())
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, themeBody{Theme: theme}, nil
}
