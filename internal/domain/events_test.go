package domain

import "testing"

func TestClassifyShipmentEvent(t *testing.T) {
	cases := []struct {
		raw  string
		want ShipmentEventKind
	}{
		{"order_in_process", ShipmentEventProgress},
		{"ORDER_PACKAGED", ShipmentEventProgress},
		{"package_shipped", ShipmentEventShipped},
		{"order_fulfilled", ShipmentEventShipped},
		{"printful:package_shipped", ShipmentEventShipped},
		{"order_created", ShipmentEventIgnored},
		{"stock_updated", ShipmentEventIgnored},
		{"", ShipmentEventIgnored},
		{"   ", ShipmentEventIgnored},
	}
	for _, tc := range cases {
		if got := ClassifyShipmentEvent(tc.raw); got != tc.want {
			t.Fatalf("ClassifyShipmentEvent(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestShipmentEventKindString(t *testing.T) {
	if ShipmentEventShipped.String() != "shipped" || ShipmentEventProgress.String() != "progress" || ShipmentEventIgnored.String() != "ignored" {
		t.Fatalf("unexpected kind names: %s %s %s", ShipmentEventShipped, ShipmentEventProgress, ShipmentEventIgnored)
	}
}
