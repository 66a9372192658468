package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/printforge/bridge/internal/domain"
	"github.com/printforge/bridge/internal/printful"
	"github.com/printforge/bridge/internal/shopify"
)

type stubArtwork struct {
	art ResolvedArt
	err error
}

func (a *stubArtwork) ResolveLineArt(_ context.Context, _ ResolveArtInput) (ResolvedArt, error) {
	return a.art, a.err
}

type stubUploads struct {
	fileIDs map[string]string
	err     error
	calls   []string
}

func (u *stubUploads) GetOrUpload(_ context.Context, sourceURL string) (string, error) {
	u.calls = append(u.calls, sourceURL)
	if u.err != nil {
		return "", u.err
	}
	if id, ok := u.fileIDs[sourceURL]; ok {
		return id, nil
	}
	return "file-1", nil
}

type stubProvider struct {
	createErr  error
	confirmErr error
	orderID    int64

	created   []domain.FulfillmentOrder
	confirmed []int64
}

func (p *stubProvider) CreateOrder(_ context.Context, order domain.FulfillmentOrder) (int64, error) {
	p.created = append(p.created, order)
	if p.createErr != nil {
		return 0, p.createErr
	}
	return p.orderID, nil
}

func (p *stubProvider) ConfirmOrder(_ context.Context, providerOrderID int64) error {
	p.confirmed = append(p.confirmed, providerOrderID)
	return p.confirmErr
}

type stubProducts struct {
	handle string
	err    error
}

func (p *stubProducts) GetProductHandle(_ context.Context, _ int64) (string, error) {
	return p.handle, p.err
}

func testCatalog(t *testing.T) *domain.VariantCatalog {
	t.Helper()
	catalog, err := domain.NewVariantCatalog(map[string]int{
		"BC3001_WHITE_M": 4012,
		"BC3001_BLACK_L": 4013,
	})
	if err != nil {
		t.Fatalf("NewVariantCatalog: %v", err)
	}
	return catalog
}

func newTestFulfillmentService(t *testing.T, deps FulfillmentServiceDeps) *FulfillmentService {
	t.Helper()
	if deps.Catalog == nil {
		deps.Catalog = testCatalog(t)
	}
	if deps.Artwork == nil {
		deps.Artwork = &stubArtwork{art: ResolvedArt{
			DefaultFile: domain.ArtworkAsset{Kind: domain.ArtworkBase, SourceURL: "https://art.example/designs/team-jersey.png"},
		}}
	}
	if deps.Uploads == nil {
		deps.Uploads = &stubUploads{}
	}
	if deps.Provider == nil {
		deps.Provider = &stubProvider{orderID: 555}
	}
	if deps.Products == nil {
		deps.Products = &stubProducts{handle: "team-jersey"}
	}
	if deps.NewEventID == nil {
		deps.NewEventID = func() string { return "evt_test" }
	}
	svc, err := NewFulfillmentService(deps)
	if err != nil {
		t.Fatalf("NewFulfillmentService: %v", err)
	}
	return svc
}

func testOrder(lines ...shopify.LineItem) shopify.Order {
	return shopify.Order{
		ID:          4021,
		OrderNumber: 1021,
		Name:        "#1021",
		Email:       "buyer@example.com",
		ShippingAddress: &shopify.Address{
			Name:     "Jo Buyer",
			Address1: "1 Main St",
			City:     "Springfield",
			Country:  "US",
			Zip:      "12345",
		},
		LineItems: lines,
	}
}

func TestProcessOrderSubmitsAndConfirms(t *testing.T) {
	provider := &stubProvider{orderID: 555}
	svc := newTestFulfillmentService(t, FulfillmentServiceDeps{Provider: provider})

	result := svc.ProcessOrder(context.Background(), testOrder(
		shopify.LineItem{SKU: "71_BC3001_WHITE_M", ProductID: 9, Quantity: 2},
	))

	if !result.OK {
		t.Fatalf("result not OK: %+v", result)
	}
	if result.ExternalID != "shopify-4021" {
		t.Fatalf("external id = %q, want shopify-4021", result.ExternalID)
	}
	if result.ProviderOrderID != 555 {
		t.Fatalf("provider order id = %d, want 555", result.ProviderOrderID)
	}
	if len(provider.created) != 1 {
		t.Fatalf("created %d orders, want 1", len(provider.created))
	}
	created := provider.created[0]
	if created.Confirm {
		t.Fatal("draft submission must not confirm inline")
	}
	if len(created.Items) != 1 || created.Items[0].VariantID != 4012 || created.Items[0].Quantity != 2 {
		t.Fatalf("created items = %+v", created.Items)
	}
	if len(provider.confirmed) != 1 || provider.confirmed[0] != 555 {
		t.Fatalf("confirmed = %v, want [555]", provider.confirmed)
	}
}

func TestProcessOrderPartialResolution(t *testing.T) {
	provider := &stubProvider{orderID: 556}
	svc := newTestFulfillmentService(t, FulfillmentServiceDeps{Provider: provider})

	result := svc.ProcessOrder(context.Background(), testOrder(
		shopify.LineItem{SKU: "71_BC3001_WHITE_M", ProductID: 9, Quantity: 1},
		shopify.LineItem{SKU: "99_UNKNOWN_RED_L", ProductID: 9, Quantity: 1},
	))

	if !result.OK {
		t.Fatalf("result not OK: %+v", result)
	}
	if len(result.Missing) != 1 {
		t.Fatalf("missing = %+v, want 1 entry", result.Missing)
	}
	if result.Missing[0].SKU != "99_UNKNOWN_RED_L" || result.Missing[0].Reason != "unmapped_variant" {
		t.Fatalf("missing entry = %+v", result.Missing[0])
	}
	if len(provider.created) != 1 || len(provider.created[0].Items) != 1 {
		t.Fatalf("submission should carry the one resolvable item, got %+v", provider.created)
	}
}

func TestProcessOrderNothingResolvable(t *testing.T) {
	provider := &stubProvider{}
	svc := newTestFulfillmentService(t, FulfillmentServiceDeps{Provider: provider})

	result := svc.ProcessOrder(context.Background(), testOrder(
		shopify.LineItem{SKU: "99_UNKNOWN_RED_L", ProductID: 9, Quantity: 1},
		shopify.LineItem{SKU: "bad", ProductID: 9, Quantity: 1},
	))

	if result.OK {
		t.Fatal("result should not be OK when nothing resolves")
	}
	if result.Reason != "no_resolvable_items" {
		t.Fatalf("reason = %q", result.Reason)
	}
	if len(result.Missing) != 2 {
		t.Fatalf("missing = %+v, want 2 entries", result.Missing)
	}
	if len(provider.created) != 0 {
		t.Fatal("nothing should be submitted")
	}
}

func TestProcessOrderDuplicateExternalID(t *testing.T) {
	provider := &stubProvider{createErr: &printful.APIError{Status: 409, Message: "order with this external id already exists"}}
	svc := newTestFulfillmentService(t, FulfillmentServiceDeps{Provider: provider})

	result := svc.ProcessOrder(context.Background(), testOrder(
		shopify.LineItem{SKU: "71_BC3001_WHITE_M", ProductID: 9, Quantity: 1},
	))

	if !result.OK || !result.AlreadyExists {
		t.Fatalf("duplicate should be idempotent success, got %+v", result)
	}
	if len(provider.confirmed) != 0 {
		t.Fatal("duplicate must not trigger confirmation")
	}
}

func TestProcessOrderSubmissionFailure(t *testing.T) {
	provider := &stubProvider{createErr: errors.New("upstream down")}
	svc := newTestFulfillmentService(t, FulfillmentServiceDeps{Provider: provider})

	result := svc.ProcessOrder(context.Background(), testOrder(
		shopify.LineItem{SKU: "71_BC3001_WHITE_M", ProductID: 9, Quantity: 1},
	))

	if result.OK {
		t.Fatal("submission failure must not report OK")
	}
	if result.Reason != "submission_failed" {
		t.Fatalf("reason = %q", result.Reason)
	}
}

func TestProcessOrderConfirmationFailure(t *testing.T) {
	provider := &stubProvider{orderID: 557, confirmErr: errors.New("confirm rejected")}
	svc := newTestFulfillmentService(t, FulfillmentServiceDeps{Provider: provider})

	result := svc.ProcessOrder(context.Background(), testOrder(
		shopify.LineItem{SKU: "71_BC3001_WHITE_M", ProductID: 9, Quantity: 1},
	))

	if result.OK {
		t.Fatal("confirmation failure must not report OK")
	}
	if result.Reason != "confirmation_failed" {
		t.Fatalf("reason = %q", result.Reason)
	}
	if result.ProviderOrderID != 557 {
		t.Fatalf("provider order id = %d, want 557", result.ProviderOrderID)
	}
}

func TestProcessOrderConfirmInline(t *testing.T) {
	provider := &stubProvider{orderID: 558}
	svc := newTestFulfillmentService(t, FulfillmentServiceDeps{Provider: provider, ConfirmInline: true})

	result := svc.ProcessOrder(context.Background(), testOrder(
		shopify.LineItem{SKU: "71_BC3001_WHITE_M", ProductID: 9, Quantity: 1},
	))

	if !result.OK {
		t.Fatalf("result not OK: %+v", result)
	}
	if len(provider.created) != 1 || !provider.created[0].Confirm {
		t.Fatalf("inline confirmation not requested: %+v", provider.created)
	}
	if len(provider.confirmed) != 0 {
		t.Fatal("inline confirmation must skip the confirm call")
	}
}

func TestProcessOrderRegistersAllFiles(t *testing.T) {
	uploads := &stubUploads{fileIDs: map[string]string{
		"https://art.example/designs/team-jersey.png": "f-default",
		"https://art.example/designs/71_back.png":     "f-back",
		"https://art.example/designs/71_sleeve_l.png": "f-sl",
	}}
	artwork := &stubArtwork{art: ResolvedArt{
		DefaultFile: domain.ArtworkAsset{Kind: domain.ArtworkBase, SourceURL: "https://art.example/designs/team-jersey.png"},
		Placements: []domain.ArtworkAsset{
			{Kind: domain.ArtworkPlacement, Placement: "back", SourceURL: "https://art.example/designs/71_back.png"},
			{Kind: domain.ArtworkPlacement, Placement: "sleeve_left", SourceURL: "https://art.example/designs/71_sleeve_l.png"},
		},
	}}
	provider := &stubProvider{orderID: 559}
	svc := newTestFulfillmentService(t, FulfillmentServiceDeps{Provider: provider, Uploads: uploads, Artwork: artwork})

	result := svc.ProcessOrder(context.Background(), testOrder(
		shopify.LineItem{SKU: "71_BC3001_WHITE_M", ProductID: 9, Quantity: 1},
	))
	if !result.OK {
		t.Fatalf("result not OK: %+v", result)
	}
	files := provider.created[0].Items[0].Files
	if len(files) != 3 {
		t.Fatalf("files = %+v, want 3", files)
	}
	wantTypes := []string{"default", "back", "sleeve_left"}
	wantIDs := []string{"f-default", "f-back", "f-sl"}
	for i, f := range files {
		if f.Type != wantTypes[i] || f.FileID != wantIDs[i] {
			t.Fatalf("file[%d] = %+v, want type %s id %s", i, f, wantTypes[i], wantIDs[i])
		}
	}
}

func TestProcessOrderFileRegistrationFailure(t *testing.T) {
	uploads := &stubUploads{err: errors.New("registration failed")}
	provider := &stubProvider{}
	svc := newTestFulfillmentService(t, FulfillmentServiceDeps{Provider: provider, Uploads: uploads})

	result := svc.ProcessOrder(context.Background(), testOrder(
		shopify.LineItem{SKU: "71_BC3001_WHITE_M", ProductID: 9, Quantity: 1},
	))

	if result.OK {
		t.Fatal("result should not be OK")
	}
	if len(result.Missing) != 1 || result.Missing[0].Reason != "file_registration_failed" {
		t.Fatalf("missing = %+v", result.Missing)
	}
}

func TestBuildRecipientFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		order shopify.Order
		want  domain.Recipient
	}{
		{
			name: "shipping address preferred",
			order: shopify.Order{
				Email: "a@example.com",
				ShippingAddress: &shopify.Address{
					Name: "Jo Buyer", Address1: "1 Main St", City: "Springfield",
					Country: "US", Zip: "12345", Phone: "555-0100",
				},
				Customer: &shopify.Customer{
					DefaultAddress: &shopify.Address{Name: "Other Person"},
				},
			},
			want: domain.Recipient{
				Name: "Jo Buyer", Address1: "1 Main St", City: "Springfield",
				Country: "US", Zip: "12345", Phone: "555-0100", Email: "a@example.com",
			},
		},
		{
			name: "customer default address fallback",
			order: shopify.Order{
				Customer: &shopify.Customer{
					DefaultAddress: &shopify.Address{
						FirstName: "Sam", LastName: "Doe", Address1: "2 Oak Ave",
						City: "Shelbyville", Country: "CA", Zip: "A1B2C3",
					},
				},
			},
			want: domain.Recipient{
				Name: "Sam Doe", Address1: "2 Oak Ave", City: "Shelbyville",
				Country: "CA", Zip: "A1B2C3",
			},
		},
		{
			name:  "placeholders when nothing is present",
			order: shopify.Order{},
			want: domain.Recipient{
				Name: "Customer", Address1: "N/A", City: "N/A",
				Country: "N/A", Zip: "N/A",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildRecipient(tt.order)
			if got != tt.want {
				t.Fatalf("buildRecipient = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExternalIDFallsBackToOrderNumber(t *testing.T) {
	svc := newTestFulfillmentService(t, FulfillmentServiceDeps{})
	got := svc.externalIDFor(shopify.Order{OrderNumber: 1021})
	if got != "shopify-1021" {
		t.Fatalf("external id = %q, want shopify-1021", got)
	}
}

func TestExternalIDDeterministic(t *testing.T) {
	svc := newTestFulfillmentService(t, FulfillmentServiceDeps{})
	order := shopify.Order{ID: 4021}
	first := svc.externalIDFor(order)
	for i := 0; i < 3; i++ {
		if got := svc.externalIDFor(order); got != first {
			t.Fatalf("external id changed across calls: %q vs %q", got, first)
		}
	}
}

func TestNewFulfillmentServiceValidation(t *testing.T) {
	_, err := NewFulfillmentService(FulfillmentServiceDeps{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "catalog") {
		t.Fatalf("unexpected error: %v", err)
	}
}
