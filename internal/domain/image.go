package domain

import "errors"

var (
	ErrImageTypeNotSupported = errors.New("image type not supported")
	ErrImageTooLarge         = errors.New("image too large")
	ErrInvalidWidth          = errors.New("invalid width")
)

// Thumbnail is an encoded product image, possibly scaled down.
type Thumbnail struct {
	Body        []byte
	ContentType string
	Width       int
	// Cached is set when the thumbnail was served from the cache.
	Cached bool
	// Placeholder is set when the source image could not be fetched.
	Placeholder bool
}
