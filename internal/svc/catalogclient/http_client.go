package catalogclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mkrupp/storefront/internal/domain"
	context_ "github.com/mkrupp/storefront/internal/infra/context"
	"github.com/mkrupp/storefront/internal/infra/logging"
)

const TraceIDHeader = "X-Request-ID"

var (
	// ErrUnexpectedStatus is joined into errors for non-200 catalog answers.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrHostNotAllowed is returned for image URLs and redirects outside the allowed hosts.
	ErrHostNotAllowed = errors.New("host not allowed")
	// ErrTooManyRedirects is returned after maxRedirects hops.
	ErrTooManyRedirects = errors.New("too many redirects")
)

const maxRedirects = 10

// HTTPClientConfig holds configuration for the HTTP catalog client.
type HTTPClientConfig struct {
	// BaseURL is the catalog API root
	BaseURL string `env:"BASE_URL" envDefault:"https://fakestoreapi.com"`
	// Timeout bounds each request, including reading the body
	Timeout time.Duration `env:"TIMEOUT" envDefault:"12s"`
	// MaxImageBytes caps downloaded image sizes
	MaxImageBytes int64 `env:"MAX_IMAGE_BYTES" envDefault:"10485760"`
	// AllowedImageHosts lists the hosts images may be fetched from besides
	// the BaseURL host. An entry "*.example.com" matches its subdomains.
	AllowedImageHosts []string `env:"ALLOWED_IMAGE_HOSTS" envSeparator:","`
}

// HTTPClient implements CatalogClient over the catalog's REST API.
// Requests are not retried and responses are not cached.
type HTTPClient struct {
	httpClient *http.Client
	log        logging.Logger
	cfg        HTTPClientConfig
	baseHost   string
}

var _ CatalogClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTPClient with the given configuration.
// If httpClient is nil, a client with cfg.Timeout is used. The client is
// copied and its redirect policy replaced by the host allow list.
func NewHTTPClient(
	cfg HTTPClientConfig,
	httpClient *http.Client,
) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout} //nolint:exhaustruct
	}

	c := &HTTPClient{
		log: logging.GetLogger("svc.catalogclient.http_client"),
		cfg: cfg,
	}

	if base, err := url.Parse(cfg.BaseURL); err == nil {
		c.baseHost = strings.ToLower(base.Hostname())
	}

	client := *httpClient
	client.CheckRedirect = c.checkRedirect
	c.httpClient = &client

	return c
}

// TopProducts implements CatalogClient.TopProducts via GET /products?limit=N.
func (c *HTTPClient) TopProducts(ctx context.Context, limit int) (products []domain.Product, err error) {
	query := url.Values{"limit": []string{strconv.Itoa(limit)}}

	if err := c.getJSON(ctx, "/products?"+query.Encode(), &products); err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}

	return products, nil
}

// User implements CatalogClient.User via GET /users/{id}.
func (c *HTTPClient) User(ctx context.Context, id int64) (*domain.CatalogUser, error) {
	var user domain.CatalogUser

	if err := c.getJSON(ctx, "/users/"+strconv.FormatInt(id, 10), &user); err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}

	return &user, nil
}

// Users implements CatalogClient.Users via GET /users.
func (c *HTTPClient) Users(ctx context.Context) (users []domain.CatalogUser, err error) {
	if err := c.getJSON(ctx, "/users", &users); err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}

	return users, nil
}

// FetchImage implements CatalogClient.FetchImage. Only the BaseURL host
// and cfg.AllowedImageHosts are contacted.
func (c *HTTPClient) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse image url: %w", errors.Join(domain.ErrCatalogUnavailable, err))
	}

	if err := c.checkHost(parsed); err != nil {
		c.log.WarnContext(ctx, "image host rejected", "url", imageURL, "error", err)

		return nil, "", fmt.Errorf("get image: %w", err)
	}

	resp, err := c.get(ctx, imageURL)
	if err != nil {
		return nil, "", fmt.Errorf("get image: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", errors.Join(domain.ErrCatalogUnavailable, err))
	}

	if int64(len(body)) > c.cfg.MaxImageBytes {
		return nil, "", fmt.Errorf("read image: %w", errors.Join(domain.ErrCatalogUnavailable, domain.ErrImageTooLarge))
	}

	return body, resp.Header.Get("Content-Type"), nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.get(ctx, c.cfg.BaseURL+path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode: %w", errors.Join(domain.ErrCatalogUnavailable, err))
	}

	return nil
}

// get issues a GET and returns the response only for 200 answers.
// The caller closes the body.
func (c *HTTPClient) get(ctx context.Context, rawURL string) (resp *http.Response, err error) {
	log := c.log.With(logging.Group("http", "method", http.MethodGet, "url", rawURL))
	start := time.Now()

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "catalog request failed", "error", err, "duration", time.Since(start))
		} else {
			log.DebugContext(ctx, "catalog request", "duration", time.Since(start))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", errors.Join(domain.ErrCatalogUnavailable, err))
	}

	req.Header.Set("Accept", "application/json, image/*")

	if traceID, ok := context_.TraceIDFromContext(ctx); ok {
		req.Header.Set(TraceIDHeader, traceID)
	}

	resp, err = c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do: %w", errors.Join(domain.ErrCatalogUnavailable, err))
	}

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()

		return nil, fmt.Errorf("%w: %w %d", domain.ErrCatalogUnavailable, ErrUnexpectedStatus, resp.StatusCode)
	}

	return resp, nil
}

// checkHost accepts http(s) URLs on the BaseURL host or an allowed host.
func (c *HTTPClient) checkHost(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrHostNotAllowed, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrHostNotAllowed)
	}

	if host == c.baseHost {
		return nil
	}

	for _, allowed := range c.cfg.AllowedImageHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))

		if suffix, ok := strings.CutPrefix(allowed, "*"); ok {
			if strings.HasPrefix(suffix, ".") && strings.HasSuffix(host, suffix) {
				return nil
			}

			continue
		}

		if allowed != "" && host == allowed {
			return nil
		}
	}

	return fmt.Errorf("%w: %q", ErrHostNotAllowed, host)
}

func (c *HTTPClient) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return ErrTooManyRedirects
	}

	return c.checkHost(req.URL)
}

// BaseURL returns the configured catalog API root.
func (c *HTTPClient) BaseURL() string {
	return c.cfg.BaseURL
}
