package services

import (
	"context"

	"github.com/printforge/bridge/internal/domain"
	"github.com/printforge/bridge/internal/shopify"
)

// OrderSource is the order-side API surface the bridge calls back into when
// shipment events arrive.
type OrderSource interface {
	GetOrder(ctx context.Context, orderID int64) (shopify.Order, error)
	FindOrderByName(ctx context.Context, name string) (shopify.Order, error)
	CreateFulfillment(ctx context.Context, orderID int64, fulfillment shopify.Fulfillment) error
	UpdateOrderStage(ctx context.Context, orderID int64, stage string) error
}

// ProductHandleResolver fetches the stable product handle that indexes base
// artwork files.
type ProductHandleResolver interface {
	GetProductHandle(ctx context.Context, productID int64) (string, error)
}

// FulfillmentProvider is the provider-side API surface for order submission.
type FulfillmentProvider interface {
	CreateOrder(ctx context.Context, order domain.FulfillmentOrder) (int64, error)
	ConfirmOrder(ctx context.Context, providerOrderID int64) error
}

// FileUploader deduplicates provider file registration by source URL.
type FileUploader interface {
	GetOrUpload(ctx context.Context, sourceURL string) (string, error)
}

// ExistenceProber checks whether a remote artwork file exists without
// downloading it.
type ExistenceProber interface {
	Exists(ctx context.Context, url string) (bool, error)
}

// ArtworkResolver produces the print files for one line item.
type ArtworkResolver interface {
	ResolveLineArt(ctx context.Context, input ResolveArtInput) (ResolvedArt, error)
}
