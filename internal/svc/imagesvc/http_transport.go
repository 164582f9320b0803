package imagesvc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/infra/logging"
	http_ "github.com/mkrupp/storefront/internal/infra/transport/http"
)

// ErrNoImageID is returned when a request lacks the image owner id.
var ErrNoImageID = errors.New("no image id")

// ImageSource resolves the image URL of the record named by id.
type ImageSource interface {
	ImageURL(ctx context.Context, id int64) (string, error)
}

// HTTPTransportConfig contains configuration parameters for the thumbnail endpoint.
type HTTPTransportConfig struct {
	// URLIDParam is the route parameter holding the record id.
	URLIDParam string `env:"URL_ID_PARAM" envDefault:"id"`

	// URLWidthParam is the query parameter for the requested width.
	URLWidthParam string `env:"URL_WIDTH_PARAM" envDefault:"width"`

	// CacheMaxAge is sent as Cache-Control max-age for real images, in seconds.
	CacheMaxAge int `env:"CACHE_MAX_AGE" envDefault:"86400"`
}

// HTTPTransport serves thumbnails. It is mounted by the storefront router
// on a route carrying the URLIDParam parameter.
type HTTPTransport struct {
	thumbSvc ThumbnailService
	source   ImageSource
	log      logging.Logger
	cfg      HTTPTransportConfig
}

// NewHTTPTransport creates a new HTTPTransport instance with the given configuration.
func NewHTTPTransport(thumbSvc ThumbnailService, source ImageSource, cfg HTTPTransportConfig) *HTTPTransport {
	return &HTTPTransport{
		thumbSvc: thumbSvc,
		source:   source,
		log:      logging.GetLogger("svc.imagesvc.http_transport"),
		cfg:      cfg,
	}
}

// HandleThumbnail serves the image of the record in the route, scaled to
// the optional width query parameter.
func (ht *HTTPTransport) HandleThumbnail(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleThumbnail(w, r)
}

func (ht *HTTPTransport) handleThumbnail(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "thumbnail download failed", "error", err)
		} else {
			log.DebugContext(ctx, "thumbnail downloaded")
		}
	}(r.Context())

	rawID := chi.URLParam(r, ht.cfg.URLIDParam)
	if rawID == "" {
		http_.WriteError(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), "")

		return ErrNoImageID
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		http_.WriteError(w, http.StatusBadRequest, "invalid id", "")

		return fmt.Errorf("parse id: %w", err)
	}

	var width int

	if widthStr := r.URL.Query().Get(ht.cfg.URLWidthParam); widthStr != "" {
		width, err = strconv.Atoi(widthStr)
		if err != nil {
			http_.WriteError(w, http.StatusBadRequest, "invalid width", "")

			return fmt.Errorf("parse width: %w", err)
		}
	}

	imageURL, err := ht.source.ImageURL(r.Context(), id)
	if err != nil {
		ht.writeError(w, err)

		return fmt.Errorf("image url: %w", err)
	}

	thumb, err := ht.thumbSvc.Thumbnail(r.Context(), imageURL, width)
	if err != nil {
		ht.writeError(w, err)

		return fmt.Errorf("thumbnail: %w", err)
	}

	w.Header().Set("Content-Type", thumb.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(thumb.Body)))

	if thumb.Placeholder {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Placeholder", "true")
	} else {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(ht.cfg.CacheMaxAge))
	}

	if _, err := w.Write(thumb.Body); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

func (ht *HTTPTransport) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		http_.WriteError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrInvalidWidth):
		http_.WriteError(w, http.StatusBadRequest, err.Error(), "")
	default:
		http_.WriteError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), "")
	}
}
