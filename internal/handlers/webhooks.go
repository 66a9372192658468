package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/printforge/bridge/internal/domain"
	"github.com/printforge/bridge/internal/platform/httpx"
	"github.com/printforge/bridge/internal/services"
	"github.com/printforge/bridge/internal/shopify"
)

const maxWebhookBodySize = 1 << 20

// OrderProcessor submits one source order to the fulfillment provider.
type OrderProcessor interface {
	ProcessOrder(ctx context.Context, order shopify.Order) services.SubmitResult
}

// ShipmentEventHandler applies one provider shipment event.
type ShipmentEventHandler interface {
	HandleEvent(ctx context.Context, event domain.ShipmentEvent) services.EventOutcome
}

// WebhookHandlers receives order-source and provider webhooks. Signature
// verification runs in middleware before these handlers; by the time a body
// reaches them it is authenticated.
type WebhookHandlers struct {
	orders    OrderProcessor
	shipments ShipmentEventHandler
}

// NewWebhookHandlers constructs webhook handlers for both inbound directions.
func NewWebhookHandlers(orders OrderProcessor, shipments ShipmentEventHandler) *WebhookHandlers {
	return &WebhookHandlers{orders: orders, shipments: shipments}
}

// Register mounts the webhook routes on the provided router group.
func (h *WebhookHandlers) Register(r chi.Router) {
	r.Post("/orders", h.HandleOrder)
	r.Post("/shipments", h.HandleShipment)
}

type orderResponse struct {
	OK              bool                   `json:"ok"`
	EventID         string                 `json:"event_id"`
	ExternalID      string                 `json:"external_id"`
	PrintfulOrderID int64                  `json:"printful_order_id,omitempty"`
	AlreadyExists   bool                   `json:"already_exists,omitempty"`
	Missing         []services.MissingLine `json:"missing,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
}

// HandleOrder decodes an order creation webhook and submits it. Business
// failures respond 200 so the source does not redeliver what will never
// succeed; only a malformed body earns a 400.
func (h *WebhookHandlers) HandleOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_body", "could not read request body", http.StatusBadRequest))
		return
	}
	var order shopify.Order
	if err := json.Unmarshal(body, &order); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_body", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	result := h.orders.ProcessOrder(r.Context(), order)
	httpx.WriteJSON(w, http.StatusOK, orderResponse{
		OK:              result.OK,
		EventID:         result.EventID,
		ExternalID:      result.ExternalID,
		PrintfulOrderID: result.ProviderOrderID,
		AlreadyExists:   result.AlreadyExists,
		Missing:         result.Missing,
		Reason:          result.Reason,
	})
}

// shipmentPayload tolerates the payload shapes provider webhooks arrive in:
// the event type under "event" or "type", and the order reference either at
// the top level or nested under "order"/"data".
type shipmentPayload struct {
	Event      string            `json:"event"`
	Type       string            `json:"type"`
	ExternalID string            `json:"external_id"`
	Order      *shipmentOrder    `json:"order"`
	Shipments  []shipmentRecord  `json:"shipments"`
	Data       *shipmentSubEvent `json:"data"`
}

type shipmentSubEvent struct {
	ExternalID string           `json:"external_id"`
	Order      *shipmentOrder   `json:"order"`
	Shipments  []shipmentRecord `json:"shipments"`
	Shipment   *shipmentRecord  `json:"shipment"`
}

type shipmentOrder struct {
	ExternalID string `json:"external_id"`
}

type shipmentRecord struct {
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
	Carrier        string `json:"carrier"`
	Service        string `json:"service"`
}

type shipmentResponse struct {
	OK      bool   `json:"ok"`
	EventID string `json:"event_id"`
	Action  string `json:"action"`
	OrderID int64  `json:"order_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// HandleShipment decodes a provider shipment/status webhook and applies it.
func (h *WebhookHandlers) HandleShipment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_body", "could not read request body", http.StatusBadRequest))
		return
	}
	var payload shipmentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_body", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	outcome := h.shipments.HandleEvent(r.Context(), payload.toEvent())
	httpx.WriteJSON(w, http.StatusOK, shipmentResponse{
		OK:      outcome.OK,
		EventID: outcome.EventID,
		Action:  outcome.Action,
		OrderID: outcome.OrderID,
		Reason:  outcome.Reason,
	})
}

func (p shipmentPayload) toEvent() domain.ShipmentEvent {
	event := domain.ShipmentEvent{RawType: p.Event}
	if event.RawType == "" {
		event.RawType = p.Type
	}

	event.ExternalID = p.ExternalID
	records := p.Shipments
	if p.Data != nil {
		if event.ExternalID == "" {
			event.ExternalID = p.Data.ExternalID
		}
		if event.ExternalID == "" && p.Data.Order != nil {
			event.ExternalID = p.Data.Order.ExternalID
		}
		if len(records) == 0 {
			records = p.Data.Shipments
		}
		if len(records) == 0 && p.Data.Shipment != nil {
			records = []shipmentRecord{*p.Data.Shipment}
		}
	}
	if event.ExternalID == "" && p.Order != nil {
		event.ExternalID = p.Order.ExternalID
	}

	for _, rec := range records {
		carrier := rec.Carrier
		if carrier == "" {
			carrier = rec.Service
		}
		event.Shipments = append(event.Shipments, domain.Shipment{
			TrackingNumber: rec.TrackingNumber,
			TrackingURL:    rec.TrackingURL,
			Carrier:        carrier,
		})
	}
	return event
}
