package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIVersion = "2024-01"
	accessTokenHeader = "X-Shopify-Access-Token"
	maxResponseBytes  = 4 << 20
)

// ErrOrderNotFound indicates the order source has no order for the query.
var ErrOrderNotFound = errors.New("shopify: order not found")

// APIError reports a non-success response from the order source.
type APIError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("shopify: api returned %d: %s", e.Status, e.Body)
}

// Client talks to the order source's admin REST API.
type Client struct {
	shopDomain  string
	accessToken string
	apiVersion  string
	httpClient  *http.Client
}

// Option customises the client.
type Option func(*Client)

// WithAPIVersion overrides the admin API version.
func WithAPIVersion(version string) Option {
	return func(c *Client) {
		if version != "" {
			c.apiVersion = version
		}
	}
}

// WithHTTPClient injects a custom HTTP client, primarily for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithBaseURL points the client at an explicit base URL instead of the
// https://{shop}/admin/api/{version} convention. Used by tests.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.shopDomain = strings.TrimRight(base, "/")
	}
}

// NewClient constructs an order-source API client.
func NewClient(shopDomain, accessToken string, opts ...Option) (*Client, error) {
	shopDomain = strings.TrimSpace(shopDomain)
	if shopDomain == "" {
		return nil, errors.New("shopify: shop domain is required")
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("shopify: access token is required")
	}

	client := &Client{
		shopDomain:  shopDomain,
		accessToken: accessToken,
		apiVersion:  defaultAPIVersion,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// GetOrder fetches a single order by its numeric identifier.
func (c *Client) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	var payload struct {
		Order Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/orders/%d.json", orderID), nil, &payload); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return payload.Order, nil
}

// FindOrderByName looks an order up by its display name (e.g. "#1234").
// Returns ErrOrderNotFound when the search yields nothing.
func (c *Client) FindOrderByName(ctx context.Context, name string) (Order, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Order{}, ErrOrderNotFound
	}

	query := url.Values{}
	query.Set("name", name)
	query.Set("status", "any")

	var payload struct {
		Orders []Order `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders.json?"+query.Encode(), nil, &payload); err != nil {
		return Order{}, err
	}
	if len(payload.Orders) == 0 {
		return Order{}, ErrOrderNotFound
	}
	return payload.Orders[0], nil
}

// GetProductHandle fetches the stable handle for a source product.
func (c *Client) GetProductHandle(ctx context.Context, productID int64) (string, error) {
	var payload struct {
		Product Product `json:"product"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d.json", productID), nil, &payload); err != nil {
		return "", err
	}
	handle := strings.TrimSpace(payload.Product.Handle)
	if handle == "" {
		return "", fmt.Errorf("shopify: product %d has no handle", productID)
	}
	return handle, nil
}

// CreateFulfillment registers a fulfillment record against the order.
func (c *Client) CreateFulfillment(ctx context.Context, orderID int64, fulfillment Fulfillment) error {
	body := map[string]any{"fulfillment": fulfillment}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/orders/%d/fulfillments.json", orderID), body, nil)
}

// UpdateOrderStage records the bridge's fulfillment stage on the order via a
// note attribute, so operators can see in-progress state before tracking
// exists.
func (c *Client) UpdateOrderStage(ctx context.Context, orderID int64, stage string) error {
	body := map[string]any{
		"order": map[string]any{
			"id": orderID,
			"note_attributes": []map[string]string{
				{"name": "fulfillment_stage", "value": stage},
			},
		},
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/orders/%d.json", orderID), body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	endpoint := c.baseURL() + path

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("shopify: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("shopify: build request: %w", err)
	}
	req.Header.Set(accessTokenHeader, c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("shopify: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: snippet(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("shopify: decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) baseURL() string {
	if strings.HasPrefix(c.shopDomain, "http://") || strings.HasPrefix(c.shopDomain, "https://") {
		return c.shopDomain
	}
	return fmt.Sprintf("https://%s/admin/api/%s", c.shopDomain, c.apiVersion)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
