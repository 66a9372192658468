package shopify

// Address is a shipping or default customer address on the order source.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	City      string `json:"city"`
	Province  string `json:"province_code"`
	Country   string `json:"country_code"`
	Zip       string `json:"zip"`
	Phone     string `json:"phone"`
}

// Customer carries the fallback contact data used when the order has no
// shipping address of its own.
type Customer struct {
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Phone          string   `json:"phone"`
	DefaultAddress *Address `json:"default_address"`
}

// LineItemProperty is one custom property attached to a line item.
type LineItemProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LineItem is one purchasable line on a source order.
type LineItem struct {
	ID                  int64              `json:"id"`
	SKU                 string             `json:"sku"`
	ProductID           int64              `json:"product_id"`
	Title               string             `json:"title"`
	Quantity            int                `json:"quantity"`
	FulfillableQuantity int                `json:"fulfillable_quantity"`
	Properties          []LineItemProperty `json:"properties"`
}

// Order is the source order as delivered by webhook or fetched via the API.
type Order struct {
	ID              int64      `json:"id"`
	OrderNumber     int64      `json:"order_number"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	ShippingAddress *Address   `json:"shipping_address"`
	Customer        *Customer  `json:"customer"`
	LineItems       []LineItem `json:"line_items"`
}

// Product is the subset of a source product the bridge needs: its stable
// human-readable handle, which indexes base artwork files.
type Product struct {
	ID     int64  `json:"id"`
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

// FulfillmentLineItem references an order line inside a fulfillment record.
type FulfillmentLineItem struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

// Fulfillment is the record registered on the order source when the provider
// reports a shipment.
type Fulfillment struct {
	TrackingNumber  string                `json:"tracking_number,omitempty"`
	TrackingURL     string                `json:"tracking_url,omitempty"`
	TrackingCompany string                `json:"tracking_company,omitempty"`
	LineItems       []FulfillmentLineItem `json:"line_items,omitempty"`
	NotifyCustomer  bool                  `json:"notify_customer"`
}
