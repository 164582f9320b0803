package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mkrupp/storefront/internal/infra/config"
	"github.com/mkrupp/storefront/internal/infra/logging"
	"github.com/mkrupp/storefront/internal/infra/transport/http"
	"github.com/mkrupp/storefront/internal/repo/blob"
	"github.com/mkrupp/storefront/internal/repo/kv"
	"github.com/mkrupp/storefront/internal/svc/cartsvc"
	"github.com/mkrupp/storefront/internal/svc/catalogclient"
	"github.com/mkrupp/storefront/internal/svc/clientsvc"
	"github.com/mkrupp/storefront/internal/svc/identitysvc"
	"github.com/mkrupp/storefront/internal/svc/imagesvc"
	"github.com/mkrupp/storefront/internal/svc/policysvc"
	"github.com/mkrupp/storefront/internal/svc/productsvc"
	"github.com/mkrupp/storefront/internal/svc/shopsvc"
)

const (
	appName = "storefront"
	svcName = "svc"
)

type Config struct {
	config.EnvConfig

	Log       logging.LoggerConfig                `envPrefix:"LOG_"`
	KV        kv.Config                           `envPrefix:"KV_"`
	Blob      blob.FileSystemBlobRepositoryConfig `envPrefix:"BLOB_"`
	Catalog   catalogclient.HTTPClientConfig      `envPrefix:"CATALOG_"`
	Identity  identitysvc.IdentityConfig          `envPrefix:"IDENTITY_"`
	Cart      cartsvc.CartConfig                  `envPrefix:"CART_"`
	Products  productsvc.ProductConfig            `envPrefix:"PRODUCTS_"`
	Policy    policysvc.PolicyConfig              `envPrefix:"POLICY_"`
	Thumbnail imagesvc.ThumbnailConfig            `envPrefix:"THUMBNAIL_"`
	ThumbHTTP imagesvc.HTTPTransportConfig        `envPrefix:"THUMBNAIL_HTTP_"`
	Shop      shopsvc.ShopConfig                  `envPrefix:"SHOP_"`
	ShopHTTP  shopsvc.HTTPTransportConfig         `envPrefix:"HTTP_"`
}

func main() {
	var (
		cfg Config
		ctx = context.Background()

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		stop()
		os.Exit(1)
	}
}

//nolint:funlen
func run(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.storefrontsvc")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
		} else {
			log.InfoContext(ctx, "shutdown")
		}
	}()

	repo, err := kv.NewRepository(ctx, cfg.KV)
	if err != nil {
		return fmt.Errorf("new kv repository: %w", err)
	}

	defer func() {
		if err := repo.Close(); err != nil {
			log.WarnContext(ctx, "close kv repository", "error", err)
		}
	}()

	catalog := catalogclient.NewHTTPClient(cfg.Catalog, nil)

	identity, err := identitysvc.NewIdentityService(repo, catalog, cfg.Identity)
	if err != nil {
		return fmt.Errorf("new identity service: %w", err)
	}

	cart, err := cartsvc.NewCartService(repo, cfg.Cart)
	if err != nil {
		return fmt.Errorf("new cart service: %w", err)
	}

	policy, err := policysvc.NewPolicy(cfg.Policy)
	if err != nil {
		return fmt.Errorf("new policy: %w", err)
	}

	thumbs, err := imagesvc.NewBlobThumbnailService(
		ctx,
		blob.FileSystemBlobRepositoryFactory(cfg.Blob),
		catalog,
		cfg.Thumbnail,
	)
	if err != nil {
		return fmt.Errorf("new thumbnail service: %w", err)
	}

	products := productsvc.NewProductService(repo, catalog, cfg.Products)
	defer products.Close()

	shop := shopsvc.NewShopService(shopsvc.Deps{
		Repo:     repo,
		Identity: identity,
		Cart:     cart,
		Products: products,
		Clients:  clientsvc.NewClientService(repo, catalog),
		Policy:   policy,
		Thumbs:   thumbs,
	}, cfg.Shop)

	shop.Start(ctx)

	if err := products.InitAsync(ctx); err != nil {
		return fmt.Errorf("init products: %w", err)
	}

	httpTransport := shopsvc.NewHTTPTransport(
		shop,
		imagesvc.NewHTTPTransport(thumbs, shop, cfg.ThumbHTTP),
		cfg.ShopHTTP,
	)

	if err := http.ListenAndServe(ctx, httpTransport, identity, cfg.ShopHTTP.HTTPTransportConfig); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}
