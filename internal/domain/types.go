package domain

import "time"

// Recipient is the shipping destination submitted to the fulfillment provider.
// Required fields are never blank: the assembler substitutes documented
// placeholders when the source order lacks a value.
type Recipient struct {
	Name     string `json:"name"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state_code,omitempty"`
	Country  string `json:"country_code"`
	Zip      string `json:"zip"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

// OrderFile attaches a registered provider file to an order item.
type OrderFile struct {
	Type   string `json:"type"`
	FileID string `json:"id"`
}

// OrderItem is one resolved line item of a fulfillment order.
type OrderItem struct {
	VariantID int         `json:"variant_id"`
	Quantity  int         `json:"quantity"`
	Files     []OrderFile `json:"files"`
}

// FulfillmentOrder is the payload submitted to the fulfillment provider. The
// external id durably cross-references the source order; repeated delivery of
// the same source event always derives the same external id.
type FulfillmentOrder struct {
	ExternalID     string
	Recipient      Recipient
	Items          []OrderItem
	ShippingMethod string
	Confirm        bool
}

// ArtworkKind distinguishes how an artwork asset was produced.
type ArtworkKind string

const (
	// ArtworkBase is the unmodified per-product base print file.
	ArtworkBase ArtworkKind = "base"
	// ArtworkPlacement is a template-derived placement file (front, back, …).
	ArtworkPlacement ArtworkKind = "placement"
	// ArtworkComposite is a generated personalization overlay composite.
	ArtworkComposite ArtworkKind = "composite"
)

// ArtworkAsset is one print file resolved for a line item. Composite assets
// additionally record their inputs and generation time.
type ArtworkAsset struct {
	SourceURL string
	Kind      ArtworkKind
	Placement string

	BaseURL     string
	OverlayURL  string
	GeneratedAt time.Time
}

// Shipment carries tracking data from a provider shipment event.
type Shipment struct {
	TrackingNumber string
	TrackingURL    string
	Carrier        string
}

// ShipmentEvent is the decoded provider shipment/status webhook. The raw
// event type is classified at handling time, not at decode time.
type ShipmentEvent struct {
	RawType    string
	ExternalID string
	Shipments  []Shipment
}

// FulfillmentStatus is the conceptual per-order state this bridge drives
// forward on the order source. The bridge only issues transitions; the state
// itself lives on the source order.
type FulfillmentStatus string

const (
	StatusPending    FulfillmentStatus = "pending"
	StatusInProgress FulfillmentStatus = "in_progress"
	StatusFulfilled  FulfillmentStatus = "fulfilled"
)
