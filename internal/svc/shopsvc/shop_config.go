package shopsvc

import http_ "github.com/mkrupp/storefront/internal/infra/transport/http"

// ShopConfig holds configuration for the storefront facade.
type ShopConfig struct {
	// HomeLimit is the number of products on the home view
	HomeLimit int `env:"HOME_LIMIT" envDefault:"5"`
}

// HTTPTransportConfig contains configuration parameters for the storefront API.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig

	// MaxBodyBytes bounds JSON request bodies
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"1048576"`
}
