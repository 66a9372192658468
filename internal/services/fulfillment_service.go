package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/printforge/bridge/internal/domain"
	"github.com/printforge/bridge/internal/platform/requestctx"
	"github.com/printforge/bridge/internal/printful"
	"github.com/printforge/bridge/internal/shopify"
	"go.uber.org/zap"
)

const (
	defaultExternalIDPrefix = "shopify-"
	placeholderName         = "Customer"
	placeholderField        = "N/A"
)

// MissingLine records a line item that could not be resolved, with a short
// machine-readable reason for the webhook response.
type MissingLine struct {
	SKU    string `json:"sku"`
	Reason string `json:"reason"`
}

// SubmitResult is the outcome of processing one incoming order. Business
// failures are reported here rather than as errors so the webhook layer can
// acknowledge the event and stop redelivery.
type SubmitResult struct {
	OK              bool
	EventID         string
	ExternalID      string
	ProviderOrderID int64
	AlreadyExists   bool
	Missing         []MissingLine
	Reason          string
}

// FulfillmentServiceDeps lists the collaborators for NewFulfillmentService.
type FulfillmentServiceDeps struct {
	Catalog  *domain.VariantCatalog
	Artwork  ArtworkResolver
	Uploads  FileUploader
	Provider FulfillmentProvider
	Products ProductHandleResolver

	ExternalIDPrefix string
	ShippingMethod   string
	// ConfirmInline submits orders with inline confirmation instead of the
	// default draft-then-confirm sequence.
	ConfirmInline bool

	NewEventID func() string
}

// FulfillmentService turns an incoming source order into a provider
// fulfillment order: decode SKUs, resolve variants and artwork, register
// files, then submit as a draft and confirm.
type FulfillmentService struct {
	catalog  *domain.VariantCatalog
	artwork  ArtworkResolver
	uploads  FileUploader
	provider FulfillmentProvider
	products ProductHandleResolver

	externalIDPrefix string
	shippingMethod   string
	confirmInline    bool
	newEventID       func() string
}

func NewFulfillmentService(deps FulfillmentServiceDeps) (*FulfillmentService, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("services: variant catalog is required")
	}
	if deps.Artwork == nil {
		return nil, fmt.Errorf("services: artwork resolver is required")
	}
	if deps.Uploads == nil {
		return nil, fmt.Errorf("services: file uploader is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("services: fulfillment provider is required")
	}
	if deps.Products == nil {
		return nil, fmt.Errorf("services: product handle resolver is required")
	}
	prefix := deps.ExternalIDPrefix
	if prefix == "" {
		prefix = defaultExternalIDPrefix
	}
	newEventID := deps.NewEventID
	if newEventID == nil {
		newEventID = func() string {
			return "evt_" + ulid.MustNew(ulid.Now(), rand.Reader).String()
		}
	}
	return &FulfillmentService{
		catalog:          deps.Catalog,
		artwork:          deps.Artwork,
		uploads:          deps.Uploads,
		provider:         deps.Provider,
		products:         deps.Products,
		externalIDPrefix: prefix,
		shippingMethod:   deps.ShippingMethod,
		confirmInline:    deps.ConfirmInline,
		newEventID:       newEventID,
	}, nil
}

// ProcessOrder resolves and submits one source order. Unresolvable line items
// are collected into Missing and the remaining items ship; an order with no
// resolvable items is acknowledged without submission. A duplicate external
// id on the provider side is treated as success.
func (s *FulfillmentService) ProcessOrder(ctx context.Context, order shopify.Order) SubmitResult {
	result := SubmitResult{
		EventID:    s.newEventID(),
		ExternalID: s.externalIDFor(order),
	}
	logger := requestctx.Logger(ctx).With(
		zap.String("event_id", result.EventID),
		zap.String("external_id", result.ExternalID),
	)

	var items []domain.OrderItem
	for _, line := range order.LineItems {
		item, err := s.resolveLine(ctx, line)
		if err != nil {
			logger.Warn("line item skipped",
				zap.String("sku", line.SKU),
				zap.Error(err),
			)
			result.Missing = append(result.Missing, MissingLine{
				SKU:    line.SKU,
				Reason: reasonFor(err),
			})
			continue
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		result.Reason = "no_resolvable_items"
		logger.Warn("order has no resolvable line items, not submitting")
		return result
	}

	submission := domain.FulfillmentOrder{
		ExternalID:     result.ExternalID,
		Recipient:      buildRecipient(order),
		Items:          items,
		ShippingMethod: s.shippingMethod,
		Confirm:        s.confirmInline,
	}

	providerOrderID, err := s.provider.CreateOrder(ctx, submission)
	if err != nil {
		if printful.IsDuplicateExternalID(err) {
			logger.Info("order already submitted, acknowledging")
			result.OK = true
			result.AlreadyExists = true
			return result
		}
		logger.Error("order submission failed", zap.Error(err))
		result.Reason = "submission_failed"
		return result
	}
	result.ProviderOrderID = providerOrderID

	if !s.confirmInline {
		if err := s.provider.ConfirmOrder(ctx, providerOrderID); err != nil {
			logger.Error("order confirmation failed",
				zap.Int64("provider_order_id", providerOrderID),
				zap.Error(err),
			)
			result.Reason = "confirmation_failed"
			return result
		}
	}

	logger.Info("order submitted",
		zap.Int64("provider_order_id", providerOrderID),
		zap.Int("items", len(items)),
		zap.Int("missing", len(result.Missing)),
	)
	result.OK = true
	return result
}

// resolveLine turns one source line item into a provider order item with all
// of its print files registered.
func (s *FulfillmentService) resolveLine(ctx context.Context, line shopify.LineItem) (domain.OrderItem, error) {
	sku, err := domain.DecodeSKU(line.SKU)
	if err != nil {
		return domain.OrderItem{}, err
	}
	variantID, err := s.catalog.Resolve(sku)
	if err != nil {
		return domain.OrderItem{}, err
	}

	handle, err := s.products.GetProductHandle(ctx, line.ProductID)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("product handle: %w", err)
	}
	art, err := s.artwork.ResolveLineArt(ctx, ResolveArtInput{
		Handle:      handle,
		TemplateRef: sku.TemplateRef,
		Properties:  line.Properties,
	})
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("artwork: %w", err)
	}

	var files []domain.OrderFile
	fileID, err := s.uploads.GetOrUpload(ctx, art.DefaultFile.SourceURL)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("register default file: %w", err)
	}
	files = append(files, domain.OrderFile{Type: "default", FileID: fileID})

	for _, placement := range art.Placements {
		fileID, err := s.uploads.GetOrUpload(ctx, placement.SourceURL)
		if err != nil {
			return domain.OrderItem{}, fmt.Errorf("register %s file: %w", placement.Placement, err)
		}
		files = append(files, domain.OrderFile{Type: placement.Placement, FileID: fileID})
	}

	quantity := line.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	return domain.OrderItem{
		VariantID: variantID,
		Quantity:  quantity,
		Files:     files,
	}, nil
}

// externalIDFor derives the durable cross-reference id for a source order.
// The numeric order id is preferred; order number is a fallback for payloads
// that omit it.
func (s *FulfillmentService) externalIDFor(order shopify.Order) string {
	if order.ID > 0 {
		return s.externalIDPrefix + strconv.FormatInt(order.ID, 10)
	}
	return s.externalIDPrefix + strconv.FormatInt(order.OrderNumber, 10)
}

// reasonFor maps a resolution error to a short reason token.
func reasonFor(err error) string {
	switch {
	case isUnmapped(err):
		return "unmapped_variant"
	case strings.Contains(err.Error(), "artwork"):
		return "artwork_unavailable"
	case strings.Contains(err.Error(), "product handle"):
		return "product_lookup_failed"
	case strings.Contains(err.Error(), "register"):
		return "file_registration_failed"
	default:
		return "invalid_sku"
	}
}

func isUnmapped(err error) bool {
	var unmapped *domain.UnmappedVariantError
	return errors.As(err, &unmapped)
}

// buildRecipient assembles the shipping destination, falling back to the
// customer's default address and then to documented placeholders so required
// fields are never blank.
func buildRecipient(order shopify.Order) domain.Recipient {
	addr := order.ShippingAddress
	if addr == nil && order.Customer != nil {
		addr = order.Customer.DefaultAddress
	}
	if addr == nil {
		addr = &shopify.Address{}
	}

	name := strings.TrimSpace(addr.Name)
	if name == "" {
		name = strings.TrimSpace(strings.TrimSpace(addr.FirstName) + " " + strings.TrimSpace(addr.LastName))
	}
	if name == "" && order.Customer != nil {
		name = strings.TrimSpace(strings.TrimSpace(order.Customer.FirstName) + " " + strings.TrimSpace(order.Customer.LastName))
	}
	if name == "" {
		name = placeholderName
	}

	recipient := domain.Recipient{
		Name:     name,
		Address1: orPlaceholder(addr.Address1),
		Address2: addr.Address2,
		City:     orPlaceholder(addr.City),
		State:    addr.Province,
		Country:  orPlaceholder(addr.Country),
		Zip:      orPlaceholder(addr.Zip),
		Phone:    addr.Phone,
		Email:    order.Email,
	}
	if recipient.Phone == "" && order.Customer != nil {
		recipient.Phone = order.Customer.Phone
	}
	return recipient
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return placeholderField
	}
	return s
}
