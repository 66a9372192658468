package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShopifyVersion  = "2024-01"
	defaultPrintfulBaseURL = "https://api.printful.com"
	defaultExternalPrefix  = "shopify-"
	defaultAltPrefix       = "order-"
	defaultShippingMethod  = "STANDARD"
	defaultNumberProperty  = "Player Number"
	defaultCacheCollection = "upload_cache"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Trace    TraceConfig
	Shopify  ShopifyConfig
	Printful PrintfulConfig
	Artwork  ArtworkConfig
	Bridge   BridgeConfig
	Storage  StorageConfig
	Cache    CacheConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// TraceConfig controls trace correlation in logs.
type TraceConfig struct {
	ProjectID string
}

// ShopifyConfig holds order-source API access and webhook verification
// settings.
type ShopifyConfig struct {
	ShopDomain    string
	AccessToken   string
	APIVersion    string
	WebhookSecret string
}

// PrintfulConfig holds provider API access and webhook verification settings.
type PrintfulConfig struct {
	APIKey        string
	StoreID       string
	BaseURL       string
	WebhookSecret string
}

// ArtworkConfig locates base artwork and names the personalization property.
type ArtworkConfig struct {
	BaseURL        string
	NumberProperty string
}

// BridgeConfig groups order-bridging behaviour.
type BridgeConfig struct {
	ExternalIDPrefix    string
	AltExternalIDPrefix string
	ShippingMethod      string
	ConfirmInline       bool
	BypassToken         string
	VariantCatalogPath  string
}

// StorageConfig selects where composited artwork is uploaded.
type StorageConfig struct {
	Bucket         string
	UploadProxyURL string
}

// CacheConfig selects the upload cache backend. An empty project id selects
// the in-memory store.
type CacheConfig struct {
	FirestoreProjectID string
	Collection         string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "BRIDGE_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "BRIDGE_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "BRIDGE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "BRIDGE_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Trace: TraceConfig{
			ProjectID: stringWithDefault(lookup, "BRIDGE_TRACE_PROJECT_ID", ""),
		},
		Shopify: ShopifyConfig{
			ShopDomain:    stringWithDefault(lookup, "BRIDGE_SHOPIFY_SHOP_DOMAIN", ""),
			AccessToken:   stringWithDefault(lookup, "BRIDGE_SHOPIFY_ACCESS_TOKEN", ""),
			APIVersion:    stringWithDefault(lookup, "BRIDGE_SHOPIFY_API_VERSION", defaultShopifyVersion),
			WebhookSecret: stringWithDefault(lookup, "BRIDGE_SHOPIFY_WEBHOOK_SECRET", ""),
		},
		Printful: PrintfulConfig{
			APIKey:        stringWithDefault(lookup, "BRIDGE_PRINTFUL_API_KEY", ""),
			StoreID:       stringWithDefault(lookup, "BRIDGE_PRINTFUL_STORE_ID", ""),
			BaseURL:       stringWithDefault(lookup, "BRIDGE_PRINTFUL_BASE_URL", defaultPrintfulBaseURL),
			WebhookSecret: stringWithDefault(lookup, "BRIDGE_PRINTFUL_WEBHOOK_SECRET", ""),
		},
		Artwork: ArtworkConfig{
			BaseURL:        stringWithDefault(lookup, "BRIDGE_ARTWORK_BASE_URL", ""),
			NumberProperty: stringWithDefault(lookup, "BRIDGE_ARTWORK_NUMBER_PROPERTY", defaultNumberProperty),
		},
		Bridge: BridgeConfig{
			ExternalIDPrefix:    stringWithDefault(lookup, "BRIDGE_EXTERNAL_ID_PREFIX", defaultExternalPrefix),
			AltExternalIDPrefix: stringWithDefault(lookup, "BRIDGE_ALT_EXTERNAL_ID_PREFIX", defaultAltPrefix),
			ShippingMethod:      stringWithDefault(lookup, "BRIDGE_SHIPPING_METHOD", defaultShippingMethod),
			ConfirmInline:       boolWithDefault(lookup, "BRIDGE_CONFIRM_INLINE", false),
			BypassToken:         stringWithDefault(lookup, "BRIDGE_WEBHOOK_BYPASS_TOKEN", ""),
			VariantCatalogPath:  stringWithDefault(lookup, "BRIDGE_VARIANT_CATALOG_PATH", ""),
		},
		Storage: StorageConfig{
			Bucket:         stringWithDefault(lookup, "BRIDGE_STORAGE_BUCKET", ""),
			UploadProxyURL: stringWithDefault(lookup, "BRIDGE_STORAGE_UPLOAD_PROXY_URL", ""),
		},
		Cache: CacheConfig{
			FirestoreProjectID: stringWithDefault(lookup, "BRIDGE_CACHE_FIRESTORE_PROJECT_ID", ""),
			Collection:         stringWithDefault(lookup, "BRIDGE_CACHE_COLLECTION", defaultCacheCollection),
		},
	}

	// Resolve secrets when values reference Secret Manager.
	secretFields := []*string{
		&cfg.Shopify.AccessToken,
		&cfg.Shopify.WebhookSecret,
		&cfg.Printful.APIKey,
		&cfg.Printful.WebhookSecret,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Shopify.ShopDomain == "" {
		missing = append(missing, "Shopify.ShopDomain")
	}
	if cfg.Shopify.AccessToken == "" {
		missing = append(missing, "Shopify.AccessToken")
	}
	if cfg.Shopify.WebhookSecret == "" {
		missing = append(missing, "Shopify.WebhookSecret")
	}
	if cfg.Printful.APIKey == "" {
		missing = append(missing, "Printful.APIKey")
	}
	if cfg.Printful.WebhookSecret == "" {
		missing = append(missing, "Printful.WebhookSecret")
	}
	if cfg.Artwork.BaseURL == "" {
		missing = append(missing, "Artwork.BaseURL")
	}
	if cfg.Bridge.VariantCatalogPath == "" {
		missing = append(missing, "Bridge.VariantCatalogPath")
	}
	if cfg.Storage.Bucket == "" && cfg.Storage.UploadProxyURL == "" {
		missing = append(missing, "Storage.Bucket")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
