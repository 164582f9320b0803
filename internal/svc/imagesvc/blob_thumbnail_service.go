package imagesvc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"

	"github.com/dustin/go-humanize"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/infra/logging"
	"github.com/mkrupp/storefront/internal/repo/blob"
	"github.com/mkrupp/storefront/internal/svc/catalogclient"
	"github.com/mkrupp/storefront/internal/util/encoding"
)

// PlaceholderText is drawn on the image served for unavailable sources.
const PlaceholderText = "image unavailable"

// BlobThumbnailService implements ThumbnailService on top of the catalog
// client, caching every size it produces in a blob repository.
type BlobThumbnailService struct {
	cacheRepo blob.Repository
	catalog   catalogclient.CatalogClient
	interpol  draw.Interpolator
	cfg       ThumbnailConfig
	log       logging.Logger
}

var _ ThumbnailService = (*BlobThumbnailService)(nil)

// NewBlobThumbnailService creates the service and its "thumbs" cache repository.
// Returns ErrUnknownInterpolator for an invalid config.
func NewBlobThumbnailService(
	ctx context.Context,
	repoFactory blob.RepositoryFactory,
	catalog catalogclient.CatalogClient,
	cfg ThumbnailConfig,
) (*BlobThumbnailService, error) {
	interpol, err := getInterpolatorByName(cfg.Interpolator)
	if err != nil {
		return nil, err
	}

	cacheRepo, err := repoFactory(ctx, "thumbs", "bin")
	if err != nil {
		return nil, fmt.Errorf("new cache repository: %w", err)
	}

	return &BlobThumbnailService{
		cacheRepo: cacheRepo,
		catalog:   catalog,
		interpol:  interpol,
		cfg:       cfg,
		log:       logging.GetLogger("svc.imagesvc.blob_thumbnail_service"),
	}, nil
}

// CacheKey returns the blob id prefix shared by every size of imageURL.
func CacheKey(imageURL string) domain.BlobID {
	sum := sha256.Sum256([]byte(imageURL))

	return domain.BlobID(encoding.EncodeCrockfordB32LC(sum[:]))
}

func cacheID(imageURL string, width int) domain.BlobID {
	return CacheKey(imageURL) + domain.BlobID("_"+strconv.Itoa(width))
}

// Thumbnail implements ThumbnailService.Thumbnail.
func (svc *BlobThumbnailService) Thumbnail(
	ctx context.Context,
	imageURL string,
	width int,
) (thumb domain.Thumbnail, err error) {
	log := svc.log.With(logging.Group("image", "url", imageURL, "width", width))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "thumbnail failed", "error", err)
		} else {
			log.DebugContext(ctx, "thumbnail served",
				logging.Group("thumbnail",
					"type", thumb.ContentType,
					"size", humanize.Bytes(uint64(len(thumb.Body))),
					"cached", thumb.Cached,
					"placeholder", thumb.Placeholder,
				))
		}
	}()

	if width < 0 {
		return domain.Thumbnail{}, fmt.Errorf("%w: %d", domain.ErrInvalidWidth, width)
	}

	if svc.cfg.MaxWidth > 0 {
		width = min(width, svc.cfg.MaxWidth)
	}

	id := cacheID(imageURL, width)

	thumb, found, err := svc.fromCache(ctx, id)
	if err != nil {
		return domain.Thumbnail{}, err
	}

	if found {
		thumb.Width = width

		return thumb, nil
	}

	if imageURL == "" {
		return svc.placeholder(width)
	}

	body, declared, err := svc.catalog.FetchImage(ctx, imageURL)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Thumbnail{}, fmt.Errorf("fetch image: %w", err)
		}

		log.WarnContext(ctx, "image unavailable, serving placeholder", "error", err)

		return svc.placeholder(width)
	}

	thumb, err = svc.render(body, declared, width)
	if err != nil {
		log.WarnContext(ctx, "image undecodable, serving placeholder", "error", err)

		return svc.placeholder(width)
	}

	svc.toCache(ctx, id, thumb.Body)

	return thumb, nil
}

// Purge implements ThumbnailService.Purge.
func (svc *BlobThumbnailService) Purge(ctx context.Context, imageURL string) (err error) {
	key := CacheKey(imageURL)

	defer func() {
		if err != nil {
			svc.log.ErrorContext(ctx, "thumbnail purge failed", "url", imageURL, "error", err)
		} else {
			svc.log.DebugContext(ctx, "thumbnails purged", "url", imageURL)
		}
	}()

	unlock, err := svc.cacheRepo.Lock(ctx, key, true)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	defer unlock()

	if err := svc.cacheRepo.DeleteAll(ctx, key, "_*"); err != nil {
		return fmt.Errorf("delete cache: %w", err)
	}

	return nil
}

func (svc *BlobThumbnailService) render(body []byte, declared string, width int) (domain.Thumbnail, error) {
	mimeType, err := sniffType(body, declared)
	if err != nil {
		return domain.Thumbnail{}, err
	}

	if width == 0 {
		return domain.Thumbnail{Body: body, ContentType: mimeType}, nil
	}

	limits := sizeLimits{maxHeight: svc.cfg.MaxHeight, maxPixels: svc.cfg.MaxSourcePixels}

	resized, outType, outWidth, err := resizeImage(body, mimeType, width, limits, svc.interpol)
	if err != nil {
		return domain.Thumbnail{}, fmt.Errorf("resize image: %w", err)
	}

	return domain.Thumbnail{Body: resized, ContentType: outType, Width: outWidth}, nil
}

func (svc *BlobThumbnailService) fromCache(ctx context.Context, id domain.BlobID) (domain.Thumbnail, bool, error) {
	unlock, err := svc.cacheRepo.Lock(ctx, id, false)
	if err != nil {
		return domain.Thumbnail{}, false, fmt.Errorf("lock cache: %w", err)
	}
	defer unlock()

	cached, err := svc.cacheRepo.Fetch(ctx, id)
	if errors.Is(err, domain.ErrBlobNotFound) {
		return domain.Thumbnail{}, false, nil
	}

	if err != nil {
		return domain.Thumbnail{}, false, fmt.Errorf("fetch cache: %w", err)
	}

	mimeType, err := sniffType(cached.Body, "")
	if err != nil {
		svc.log.WarnContext(ctx, "dropping unreadable cache entry", "id", id, "error", err)

		return domain.Thumbnail{}, false, nil
	}

	return domain.Thumbnail{Body: cached.Body, ContentType: mimeType, Cached: true}, true, nil
}

// toCache stores body under id. Failures only cost a later cache miss.
func (svc *BlobThumbnailService) toCache(ctx context.Context, id domain.BlobID, body []byte) {
	unlock, err := svc.cacheRepo.Lock(ctx, id, true)
	if err != nil {
		svc.log.WarnContext(ctx, "cache lock failed", "id", id, "error", err)

		return
	}
	defer unlock()

	if err := svc.cacheRepo.Store(ctx, domain.NewBlob(id, body)); err != nil {
		svc.log.WarnContext(ctx, "cache store failed", "id", id, "error", err)
	}
}

// placeholder draws a gray 4:3 image with PlaceholderText centered on it.
// Placeholders are not cached so the source is retried on the next request.
func (svc *BlobThumbnailService) placeholder(width int) (domain.Thumbnail, error) {
	if width == 0 {
		width = max(1, svc.cfg.PlaceholderWidth)
	}

	height := max(1, width*3/4)
	if svc.cfg.MaxHeight > 0 {
		height = min(height, svc.cfg.MaxHeight)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.RGBA{R: 0xE5, G: 0xE7, B: 0xEB, A: 0xFF}), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.RGBA{R: 0x6B, G: 0x72, B: 0x80, A: 0xFF}),
		Face: face,
	}

	if advance := drawer.MeasureString(PlaceholderText).Ceil(); advance <= width {
		drawer.Dot = fixed.P((width-advance)/2, (height+face.Ascent)/2)
		drawer.DrawString(PlaceholderText)
	}

	var buffer bytes.Buffer
	if err := png.Encode(&buffer, canvas); err != nil {
		return domain.Thumbnail{}, fmt.Errorf("encode placeholder: %w", err)
	}

	return domain.Thumbnail{
		Body:        buffer.Bytes(),
		ContentType: MIMETypePNG,
		Width:       width,
		Placeholder: true,
	}, nil
}
