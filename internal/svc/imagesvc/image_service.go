package imagesvc

import (
	"context"

	"github.com/mkrupp/storefront/internal/domain"
)

// ThumbnailService serves product images scaled to a requested width.
type ThumbnailService interface {
	// Thumbnail returns the image at imageURL scaled to width pixels, keeping
	// its aspect ratio. Width 0 returns the original image. Widths above the
	// configured maximum are capped. When the source cannot be fetched or
	// decoded, a placeholder image is returned instead of an error.
	Thumbnail(ctx context.Context, imageURL string, width int) (domain.Thumbnail, error)

	// Purge drops every cached size of imageURL.
	Purge(ctx context.Context, imageURL string) error
}
