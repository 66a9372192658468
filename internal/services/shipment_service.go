package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/printforge/bridge/internal/domain"
	"github.com/printforge/bridge/internal/platform/observability"
	"github.com/printforge/bridge/internal/platform/requestctx"
	"github.com/printforge/bridge/internal/shopify"
	"go.uber.org/zap"
)

const (
	defaultAltExternalIDPrefix = "order-"
	defaultCarrier             = "Other"
)

// Shipment event outcome actions reported back to the provider webhook.
const (
	ActionIgnored    = "ignored"
	ActionUnresolved = "ignored_unresolved"
	ActionInProgress = "in_progress"
	ActionFulfilled  = "fulfilled"
	ActionNoop       = "noop_already_fulfilled"
)

// EventOutcome is the result of handling one provider shipment event. Like
// order submission, business failures are reported in-band so the webhook is
// always acknowledged.
type EventOutcome struct {
	OK           bool
	EventID      string
	Action       string
	OrderID      int64
	Fulfillments int
	Reason       string
}

// ShipmentServiceDeps lists the collaborators for NewShipmentService.
type ShipmentServiceDeps struct {
	Source OrderSource

	ExternalIDPrefix    string
	AltExternalIDPrefix string
	Carrier             string

	NewEventID func() string
}

// ShipmentService reacts to provider shipment events: it resolves the source
// order the external id points at and drives that order's fulfillment state
// forward.
type ShipmentService struct {
	source OrderSource

	externalIDPrefix    string
	altExternalIDPrefix string
	carrier             string
	newEventID          func() string
}

func NewShipmentService(deps ShipmentServiceDeps) (*ShipmentService, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("services: order source is required")
	}
	prefix := deps.ExternalIDPrefix
	if prefix == "" {
		prefix = defaultExternalIDPrefix
	}
	altPrefix := deps.AltExternalIDPrefix
	if altPrefix == "" {
		altPrefix = defaultAltExternalIDPrefix
	}
	carrier := deps.Carrier
	if carrier == "" {
		carrier = defaultCarrier
	}
	newEventID := deps.NewEventID
	if newEventID == nil {
		newEventID = func() string {
			return "evt_" + ulid.MustNew(ulid.Now(), rand.Reader).String()
		}
	}
	return &ShipmentService{
		source:              deps.Source,
		externalIDPrefix:    prefix,
		altExternalIDPrefix: altPrefix,
		carrier:             carrier,
		newEventID:          newEventID,
	}, nil
}

// HandleEvent classifies a provider event, resolves the source order, and
// applies the matching state transition. Unknown event types and unresolvable
// identities are acknowledged without action so the provider stops retrying.
func (s *ShipmentService) HandleEvent(ctx context.Context, event domain.ShipmentEvent) EventOutcome {
	outcome := EventOutcome{EventID: s.newEventID()}
	logger := requestctx.Logger(ctx).With(
		zap.String("event_id", outcome.EventID),
		zap.String("event_type", event.RawType),
	)

	kind := domain.ClassifyShipmentEvent(event.RawType)
	if kind == domain.ShipmentEventIgnored {
		logger.Info("event type not actionable, ignoring")
		outcome.OK = true
		outcome.Action = ActionIgnored
		return outcome
	}

	orderID, ok := s.resolveOrderID(ctx, event.ExternalID)
	if !ok {
		logger.Warn("could not resolve source order, acknowledging",
			zap.String("external_id", observability.SanitizeExternalID(event.ExternalID)),
		)
		outcome.OK = true
		outcome.Action = ActionUnresolved
		return outcome
	}
	outcome.OrderID = orderID
	logger = logger.With(zap.Int64("order_id", orderID))

	switch kind {
	case domain.ShipmentEventProgress:
		return s.markInProgress(ctx, logger, outcome)
	case domain.ShipmentEventShipped:
		return s.registerShipments(ctx, logger, outcome, event.Shipments)
	default:
		outcome.OK = true
		outcome.Action = ActionIgnored
		return outcome
	}
}

func (s *ShipmentService) markInProgress(ctx context.Context, logger *zap.Logger, outcome EventOutcome) EventOutcome {
	if err := s.source.UpdateOrderStage(ctx, outcome.OrderID, string(domain.StatusInProgress)); err != nil {
		logger.Error("stage update failed", zap.Error(err))
		outcome.Action = ActionInProgress
		outcome.Reason = "stage_update_failed"
		return outcome
	}
	logger.Info("order marked in progress")
	outcome.OK = true
	outcome.Action = ActionInProgress
	return outcome
}

// registerShipments records each shipment as a fulfillment on the source
// order and marks the order fulfilled. Lines that already shipped have no
// fulfillable quantity left; when nothing remains the event is a no-op.
func (s *ShipmentService) registerShipments(ctx context.Context, logger *zap.Logger, outcome EventOutcome, shipments []domain.Shipment) EventOutcome {
	order, err := s.source.GetOrder(ctx, outcome.OrderID)
	if err != nil {
		logger.Error("order lookup failed", zap.Error(err))
		outcome.Action = ActionFulfilled
		outcome.Reason = "order_lookup_failed"
		return outcome
	}

	var lines []shopify.FulfillmentLineItem
	for _, line := range order.LineItems {
		if line.FulfillableQuantity > 0 {
			lines = append(lines, shopify.FulfillmentLineItem{
				ID:       line.ID,
				Quantity: line.FulfillableQuantity,
			})
		}
	}
	if len(lines) == 0 {
		logger.Info("no fulfillable line items remain, nothing to do")
		outcome.OK = true
		outcome.Action = ActionNoop
		return outcome
	}

	for _, shipment := range shipments {
		carrier := shipment.Carrier
		if carrier == "" {
			carrier = s.carrier
		}
		fulfillment := shopify.Fulfillment{
			TrackingNumber:  shipment.TrackingNumber,
			TrackingURL:     shipment.TrackingURL,
			TrackingCompany: carrier,
			LineItems:       lines,
			NotifyCustomer:  true,
		}
		if err := s.source.CreateFulfillment(ctx, outcome.OrderID, fulfillment); err != nil {
			logger.Error("fulfillment registration failed",
				zap.String("tracking_number", shipment.TrackingNumber),
				zap.Error(err),
			)
			outcome.Action = ActionFulfilled
			outcome.Reason = "fulfillment_failed"
			return outcome
		}
		outcome.Fulfillments++
	}

	if err := s.source.UpdateOrderStage(ctx, outcome.OrderID, string(domain.StatusFulfilled)); err != nil {
		logger.Error("stage update failed", zap.Error(err))
		outcome.Action = ActionFulfilled
		outcome.Reason = "stage_update_failed"
		return outcome
	}
	logger.Info("order fulfilled", zap.Int("shipments", outcome.Fulfillments))
	outcome.OK = true
	outcome.Action = ActionFulfilled
	return outcome
}

// resolveOrderID maps a provider external id back to the numeric source
// order id. Three forms are accepted, in order: the primary prefix followed
// by a numeric id, an order name looked up via the source API, and a legacy
// alternate prefix.
func (s *ShipmentService) resolveOrderID(ctx context.Context, externalID string) (int64, bool) {
	token := strings.TrimSpace(externalID)
	if token == "" {
		return 0, false
	}

	if id, ok := numericSuffix(token, s.externalIDPrefix); ok {
		return id, true
	}

	if id, ok := s.lookupByName(ctx, token); ok {
		return id, true
	}

	if rest, ok := strings.CutPrefix(token, s.altExternalIDPrefix); ok {
		if id, err := strconv.ParseInt(rest, 10, 64); err == nil && id > 0 {
			return id, true
		}
		if id, ok := s.lookupByName(ctx, rest); ok {
			return id, true
		}
	}
	return 0, false
}

func (s *ShipmentService) lookupByName(ctx context.Context, token string) (int64, bool) {
	names := []string{token}
	if !strings.HasPrefix(token, "#") {
		names = []string{"#" + token, token}
	}
	for _, name := range names {
		order, err := s.source.FindOrderByName(ctx, name)
		if err == nil && order.ID > 0 {
			return order.ID, true
		}
	}
	return 0, false
}

func numericSuffix(token, prefix string) (int64, bool) {
	rest, ok := strings.CutPrefix(token, prefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
