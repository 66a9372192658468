package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/printforge/bridge/internal/domain"
	"github.com/printforge/bridge/internal/handlers"
	"github.com/printforge/bridge/internal/imaging"
	"github.com/printforge/bridge/internal/platform/auth"
	"github.com/printforge/bridge/internal/platform/config"
	"github.com/printforge/bridge/internal/platform/observability"
	"github.com/printforge/bridge/internal/platform/secrets"
	platformstorage "github.com/printforge/bridge/internal/platform/storage"
	"github.com/printforge/bridge/internal/platform/uploadcache"
	"github.com/printforge/bridge/internal/printful"
	"github.com/printforge/bridge/internal/services"
	"github.com/printforge/bridge/internal/shopify"
)

const (
	shopifySecretName  = "shopify-webhook"
	printfulSecretName = "printful-webhook"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("bridge")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(os.Getenv("BRIDGE_SECRETS_PROJECT_ID")),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	catalog, err := domain.LoadVariantCatalog(cfg.Bridge.VariantCatalogPath)
	if err != nil {
		logger.Fatal("failed to load variant catalog", zap.Error(err))
	}
	logger.Info("variant catalog loaded", zap.Int("variants", catalog.Len()))

	shopifyClient, err := shopify.NewClient(cfg.Shopify.ShopDomain, cfg.Shopify.AccessToken,
		shopify.WithAPIVersion(cfg.Shopify.APIVersion),
	)
	if err != nil {
		logger.Fatal("failed to initialise shopify client", zap.Error(err))
	}

	printfulClient, err := printful.NewClient(cfg.Printful.APIKey, cfg.Printful.StoreID,
		printful.WithBaseURL(cfg.Printful.BaseURL),
	)
	if err != nil {
		logger.Fatal("failed to initialise printful client", zap.Error(err))
	}

	uploader, cleanupUploader, err := newUploader(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("failed to initialise artwork uploader", zap.Error(err))
	}
	defer cleanupUploader(logger)

	cacheStore, cleanupCache, err := newCacheStore(ctx, cfg.Cache)
	if err != nil {
		logger.Fatal("failed to initialise upload cache", zap.Error(err))
	}
	defer cleanupCache(logger)

	uploads, err := uploadcache.NewCachingRegistrar(cacheStore, printfulClient)
	if err != nil {
		logger.Fatal("failed to initialise upload registrar", zap.Error(err))
	}

	artwork, err := services.NewArtworkService(services.ArtworkServiceDeps{
		ArtBaseURL:     cfg.Artwork.BaseURL,
		NumberProperty: cfg.Artwork.NumberProperty,
		Prober:         services.NewHTTPProber(nil),
		Fetcher:        imaging.NewHTTPFetcher(nil),
		Uploader:       uploader,
	})
	if err != nil {
		logger.Fatal("failed to initialise artwork service", zap.Error(err))
	}

	fulfillment, err := services.NewFulfillmentService(services.FulfillmentServiceDeps{
		Catalog:          catalog,
		Artwork:          artwork,
		Uploads:          uploads,
		Provider:         printfulClient,
		Products:         shopifyClient,
		ExternalIDPrefix: cfg.Bridge.ExternalIDPrefix,
		ShippingMethod:   cfg.Bridge.ShippingMethod,
		ConfirmInline:    cfg.Bridge.ConfirmInline,
	})
	if err != nil {
		logger.Fatal("failed to initialise fulfillment service", zap.Error(err))
	}

	shipments, err := services.NewShipmentService(services.ShipmentServiceDeps{
		Source:              shopifyClient,
		ExternalIDPrefix:    cfg.Bridge.ExternalIDPrefix,
		AltExternalIDPrefix: cfg.Bridge.AltExternalIDPrefix,
	})
	if err != nil {
		logger.Fatal("failed to initialise shipment service", zap.Error(err))
	}

	verifier := auth.NewVerifier(
		auth.SecretProviderFunc(func(_ context.Context, name string) (string, error) {
			switch name {
			case shopifySecretName:
				return cfg.Shopify.WebhookSecret, nil
			case printfulSecretName:
				return cfg.Printful.WebhookSecret, nil
			}
			return "", fmt.Errorf("unknown webhook secret %q", name)
		}),
		auth.WithBypassToken(cfg.Bridge.BypassToken),
	)

	webhooks := handlers.NewWebhookHandlers(fulfillment, shipments)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Trace.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(cfg.Trace.ProjectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(readinessChecks(catalog, cacheStore))),
		handlers.WithWebhookRoutes(func(r chi.Router) {
			r.With(verifier.RequireSignature(auth.SchemeOrderSource, shopifySecretName)).
				Post("/orders", webhooks.HandleOrder)
			r.With(verifier.RequireSignature(auth.SchemeProvider, printfulSecretName)).
				Post("/shipments", webhooks.HandleShipment)
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("order fulfillment bridge listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// readinessChecks names the downstream state /readyz reports on: the variant
// catalog must have loaded at least one mapping and the upload cache backend
// must answer reads.
func readinessChecks(catalog *domain.VariantCatalog, cacheStore uploadcache.Store) map[string]handlers.ReadinessCheck {
	return map[string]handlers.ReadinessCheck{
		"variant_catalog": func(context.Context) error {
			if catalog.Len() == 0 {
				return errors.New("variant catalog is empty")
			}
			return nil
		},
		"upload_cache": func(ctx context.Context) error {
			_, _, err := cacheStore.Get(ctx, "https://readiness.invalid/probe.png")
			return err
		},
	}
}

type cleanupFunc func(*zap.Logger)

func noCleanup(*zap.Logger) {}

// newUploader selects the composite artwork destination: a GCS bucket when
// configured, otherwise the HTTP upload proxy.
func newUploader(ctx context.Context, cfg config.StorageConfig) (platformstorage.Uploader, cleanupFunc, error) {
	if cfg.Bucket != "" {
		client, err := cloudstorage.NewClient(ctx)
		if err != nil {
			return nil, noCleanup, fmt.Errorf("storage client: %w", err)
		}
		uploader, err := platformstorage.NewObjectUploader(client, cfg.Bucket)
		if err != nil {
			_ = client.Close()
			return nil, noCleanup, err
		}
		cleanup := func(logger *zap.Logger) {
			if err := client.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}
		return uploader, cleanup, nil
	}

	uploader, err := platformstorage.NewProxyUploader(cfg.UploadProxyURL, nil)
	if err != nil {
		return nil, noCleanup, err
	}
	return uploader, noCleanup, nil
}

// newCacheStore selects the upload cache backend: Firestore when a project is
// configured, otherwise an in-memory store that lasts for the process.
func newCacheStore(ctx context.Context, cfg config.CacheConfig) (uploadcache.Store, cleanupFunc, error) {
	if cfg.FirestoreProjectID == "" {
		return uploadcache.NewMemoryStore(), noCleanup, nil
	}

	client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID)
	if err != nil {
		return nil, noCleanup, fmt.Errorf("firestore client: %w", err)
	}
	store := uploadcache.NewFirestoreStore(client, uploadcache.WithCollection(cfg.Collection))
	cleanup := func(logger *zap.Logger) {
		if err := client.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}
	return store, cleanup, nil
}
