package domain

import "strings"

// ShipmentEventKind is the closed classification of provider event types.
// Unknown types map to ShipmentEventIgnored and are acknowledged without
// side effects.
type ShipmentEventKind int

const (
	// ShipmentEventIgnored marks event types the bridge does not act on.
	ShipmentEventIgnored ShipmentEventKind = iota
	// ShipmentEventProgress moves the source order to in-progress.
	ShipmentEventProgress
	// ShipmentEventShipped fulfills the source order, with tracking when present.
	ShipmentEventShipped
)

var progressEventPatterns = []string{"order_in_process", "order_packaged"}

var shippedEventPatterns = []string{"package_shipped", "order_fulfilled"}

// ClassifyShipmentEvent maps a raw provider event type onto the closed event
// vocabulary. Matching is case-insensitive by substring because providers
// wrap the type in namespacing that varies across event versions.
func ClassifyShipmentEvent(rawType string) ShipmentEventKind {
	lowered := strings.ToLower(strings.TrimSpace(rawType))
	if lowered == "" {
		return ShipmentEventIgnored
	}
	for _, pattern := range shippedEventPatterns {
		if strings.Contains(lowered, pattern) {
			return ShipmentEventShipped
		}
	}
	for _, pattern := range progressEventPatterns {
		if strings.Contains(lowered, pattern) {
			return ShipmentEventProgress
		}
	}
	return ShipmentEventIgnored
}

// String names the event kind for logs and responses.
func (k ShipmentEventKind) String() string {
	switch k {
	case ShipmentEventProgress:
		return "progress"
	case ShipmentEventShipped:
		return "shipped"
	default:
		return "ignored"
	}
}
