package imagesvc

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/mkrupp/storefront/internal/domain"
)

const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeGIF  = "image/gif"
	MIMETypeTIFF = "image/tiff"
	MIMETypeWebP = "image/webp"
	MIMETypeBMP  = "image/bmp"
)

//nolint:gochecknoglobals
var (
	// imageHeaders lists magic numbers per type. '?' matches any byte.
	imageHeaders = map[string][]string{
		MIMETypeJPEG: {"\xFF\xD8"},
		MIMETypePNG:  {"\x89\x50\x4E\x47\x0D\x0A\x1A\x0A"},
		MIMETypeGIF:  {"GIF87a", "GIF89a"},
		MIMETypeTIFF: {"\x49\x49\x2A\x00", "\x4D\x4D\x00\x2A"},
		MIMETypeWebP: {"RIFF????WEBP"},
		MIMETypeBMP:  {"BM"},
	}

	imageDecoders = map[string]func(io.Reader) (image.Image, error){
		MIMETypeJPEG: jpeg.Decode,
		MIMETypePNG:  png.Decode,
		MIMETypeGIF:  gif.Decode,
		MIMETypeTIFF: tiff.Decode,
		MIMETypeWebP: webp.Decode,
		MIMETypeBMP:  bmp.Decode,
	}

	imageConfigDecoders = map[string]func(io.Reader) (image.Config, error){
		MIMETypeJPEG: jpeg.DecodeConfig,
		MIMETypePNG:  png.DecodeConfig,
		MIMETypeGIF:  gif.DecodeConfig,
		MIMETypeTIFF: tiff.DecodeConfig,
		MIMETypeWebP: webp.DecodeConfig,
		MIMETypeBMP:  bmp.DecodeConfig,
	}

	// webp has no encoder; such sources are re-encoded as png.
	imageEncoders = map[string]func(io.Writer, image.Image) error{
		MIMETypeJPEG: func(w io.Writer, i image.Image) error { return jpeg.Encode(w, i, nil) },
		MIMETypePNG:  png.Encode,
		MIMETypeGIF:  func(w io.Writer, i image.Image) error { return gif.Encode(w, i, nil) },
		MIMETypeTIFF: func(w io.Writer, i image.Image) error { return tiff.Encode(w, i, nil) },
		MIMETypeBMP:  bmp.Encode,
	}
)

// sniffType detects the image type from its leading bytes. The declared
// content type is only a fallback since catalog servers often send
// application/octet-stream.
func sniffType(data []byte, declared string) (string, error) {
	for mimeType, headers := range imageHeaders {
		for _, header := range headers {
			if hasHeader(data, header) {
				return mimeType, nil
			}
		}
	}

	declared, _, _ = strings.Cut(strings.ToLower(declared), ";")
	declared = strings.TrimSpace(declared)

	if _, ok := imageDecoders[declared]; ok {
		return declared, nil
	}

	return "", fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, declared)
}

func hasHeader(data []byte, header string) bool {
	if len(data) < len(header) {
		return false
	}

	for i := range len(header) {
		if header[i] != '?' && header[i] != data[i] {
			return false
		}
	}

	return true
}

func getDecoderByType(mimeType string) (func(io.Reader) (image.Image, error), error) {
	decoder, ok := imageDecoders[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, mimeType)
	}

	return decoder, nil
}

func getConfigDecoderByType(mimeType string) (func(io.Reader) (image.Config, error), error) {
	decoder, ok := imageConfigDecoders[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, mimeType)
	}

	return decoder, nil
}

// getEncoderByType returns the encoder for mimeType, falling back to png.
// The second result is the type actually produced.
func getEncoderByType(mimeType string) (func(io.Writer, image.Image) error, string) {
	encoder, ok := imageEncoders[mimeType]
	if !ok {
		return png.Encode, MIMETypePNG
	}

	return encoder, mimeType
}
