package imagesvc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"golang.org/x/image/draw"

	"github.com/mkrupp/storefront/internal/domain"
)

// ErrUnknownInterpolator is returned when an unsupported interpolation method is specified.
var ErrUnknownInterpolator = errors.New("unknown interpolator")

//nolint:gochecknoglobals
var (
	// interpolMap maps interpolator names to their implementations.
	// Supported values: "nearestneighbor", "catmullrom", "bilinear", "approxbilinear".
	interpolMap = map[string]draw.Interpolator{
		"nearestneighbor": draw.NearestNeighbor,
		"catmullrom":      draw.CatmullRom,
		"bilinear":        draw.BiLinear,
		"approxbilinear":  draw.ApproxBiLinear,
	}
)

func getInterpolatorByName(name string) (draw.Interpolator, error) {
	interpol, ok := interpolMap[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterpolator, name)
	}

	return interpol, nil
}

// sizeLimits bounds the work a single resize may do. Zero disables a limit.
type sizeLimits struct {
	maxHeight int
	maxPixels int
}

// resizeImage scales an image to width while keeping its aspect ratio.
// Outputs taller than limits.maxHeight are scaled down further, so the
// returned width may be smaller than requested. Returns the encoded bytes,
// their content type (which differs from ctype when the source format
// cannot be encoded) and the produced width.
func resizeImage(
	data []byte,
	ctype string,
	width int,
	limits sizeLimits,
	interpol draw.Interpolator,
) ([]byte, string, int, error) {
	if err := checkSourceSize(data, ctype, limits.maxPixels); err != nil {
		return nil, "", 0, err
	}

	original, err := decodeImage(bytes.NewReader(data), ctype)
	if err != nil {
		return nil, "", 0, fmt.Errorf("decode image: %w", err)
	}

	bounds := original.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, "", 0, fmt.Errorf("decode image: %w: empty bounds", ErrEmptyImage)
	}

	width, height := targetSize(bounds.Dx(), bounds.Dy(), width, limits.maxHeight)

	bitmap := image.NewRGBA(image.Rect(0, 0, width, height))
	interpol.Scale(bitmap, bitmap.Bounds(), original, bounds, draw.Over, nil)

	resized, outType, err := encodeImage(bitmap, ctype)
	if err != nil {
		return nil, "", 0, fmt.Errorf("encode image: %w", err)
	}

	return resized, outType, width, nil
}

// checkSourceSize reads only the image header and rejects sources whose
// pixel count exceeds maxPixels before anything is decoded.
func checkSourceSize(data []byte, ctype string, maxPixels int) error {
	decodeConfig, err := getConfigDecoderByType(ctype)
	if err != nil {
		return err
	}

	cfg, err := decodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode %s header: %w", ctype, err)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("decode %s header: %w", ctype, ErrEmptyImage)
	}

	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", domain.ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	return nil
}

// targetSize scales srcW x srcH to width, then shrinks both sides when the
// height would exceed maxHeight.
func targetSize(srcW, srcH, width, maxHeight int) (int, int) {
	height := max(1, int(float64(srcH)*float64(width)/float64(srcW)))

	if maxHeight > 0 && height > maxHeight {
		height = maxHeight
		width = max(1, int(float64(srcW)*float64(maxHeight)/float64(srcH)))
	}

	return width, height
}

// ErrEmptyImage is returned for images without pixels.
var ErrEmptyImage = errors.New("empty image")

func decodeImage(reader io.Reader, ctype string) (image.Image, error) {
	decoder, err := getDecoderByType(ctype)
	if err != nil {
		return nil, err
	}

	img, err := decoder(reader)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ctype, err)
	}

	return img, nil
}

func encodeImage(bitmap image.Image, ctype string) ([]byte, string, error) {
	var buffer bytes.Buffer

	encoder, outType := getEncoderByType(ctype)

	if err := encoder(&buffer, bitmap); err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", outType, err)
	}

	return buffer.Bytes(), outType, nil
}
