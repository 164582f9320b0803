package imagesvc

// ThumbnailConfig holds configuration parameters for the thumbnail service.
type ThumbnailConfig struct {
	// Interpolator specifies the image scaling algorithm to use.
	// Valid values are: "nearestneighbor", "catmullrom", "bilinear", "approxbilinear"
	Interpolator string `env:"INTERPOLATOR" envDefault:"catmullrom"`

	// MaxWidth caps the requested width in pixels.
	MaxWidth int `env:"MAX_WIDTH" envDefault:"1024"`

	// MaxHeight caps the produced height in pixels. Taller outputs are
	// scaled down to it, keeping the aspect ratio.
	MaxHeight int `env:"MAX_HEIGHT" envDefault:"1024"`

	// MaxSourcePixels rejects sources with more pixels than this before
	// they are decoded. Rejected sources are served as placeholders.
	MaxSourcePixels int `env:"MAX_SOURCE_PIXELS" envDefault:"40000000"`

	// PlaceholderWidth is the width of the image served when the source
	// cannot be fetched and no width was requested.
	PlaceholderWidth int `env:"PLACEHOLDER_WIDTH" envDefault:"300"`
}
