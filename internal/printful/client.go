package printful

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/printforge/bridge/internal/domain"
)

const (
	defaultBaseURL   = "https://api.printful.com"
	storeIDHeader    = "X-PF-Store-Id"
	maxResponseBytes = 4 << 20
)

// APIError reports a non-success response from the fulfillment provider.
type APIError struct {
	Status  int
	Code    int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("printful: api returned %d (code %d): %s", e.Status, e.Code, e.Message)
}

// IsDuplicateExternalID reports whether the error is the provider's signal
// that an order with the same external id already exists. Callers treat this
// as idempotent success because source events may be redelivered.
func IsDuplicateExternalID(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusConflict || apiErr.Code == http.StatusConflict {
		return true
	}
	message := strings.ToLower(apiErr.Message)
	return strings.Contains(message, "already exists") || strings.Contains(message, "duplicate")
}

// Client talks to the fulfillment provider's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	storeID    string
	httpClient *http.Client
}

// Option customises the client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
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

// NewClient constructs a fulfillment-provider API client.
func NewClient(apiKey, storeID string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("printful: api key is required")
	}
	if strings.TrimSpace(storeID) == "" {
		return nil, errors.New("printful: store id is required")
	}

	client := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		storeID:    storeID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// RegisterFile registers a remote file URL with the provider's file store and
// returns the provider's file identifier. Implements the upload cache's
// FileRegistrar contract.
func (c *Client) RegisterFile(ctx context.Context, sourceURL string) (string, error) {
	body := map[string]any{"url": sourceURL}

	var result struct {
		ID json.Number `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/files", body, &result); err != nil {
		return "", err
	}
	fileID := result.ID.String()
	if fileID == "" {
		return "", errors.New("printful: file registration returned no id")
	}
	return fileID, nil
}

// CreateOrder submits a fulfillment order. With confirm=false the provider
// holds it as a draft; the id in the result feeds ConfirmOrder.
func (c *Client) CreateOrder(ctx context.Context, order domain.FulfillmentOrder) (int64, error) {
	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		files := make([]map[string]any, 0, len(item.Files))
		for _, file := range item.Files {
			entry := map[string]any{"type": file.Type}
			if id, err := strconv.ParseInt(file.FileID, 10, 64); err == nil {
				entry["id"] = id
			} else {
				entry["id"] = file.FileID
			}
			files = append(files, entry)
		}
		items = append(items, map[string]any{
			"variant_id": item.VariantID,
			"quantity":   item.Quantity,
			"files":      files,
		})
	}

	body := map[string]any{
		"external_id": order.ExternalID,
		"recipient":   order.Recipient,
		"items":       items,
	}
	if order.ShippingMethod != "" {
		body["shipping"] = order.ShippingMethod
	}

	path := "/orders"
	if order.Confirm {
		path += "?confirm=true"
	}

	var result struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return 0, err
	}
	if result.ID == 0 {
		return 0, errors.New("printful: order creation returned no id")
	}
	return result.ID, nil
}

// ConfirmOrder moves a draft order into fulfillment.
func (c *Client) ConfirmOrder(ctx context.Context, providerOrderID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/orders/%d/confirm", providerOrderID), nil, nil)
}

// CatalogVariant describes one sellable variant of a provider catalog product.
type CatalogVariant struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Size  string `json:"size"`
	Color string `json:"color"`
}

// GetProductVariants fetches the provider's catalog variants for a product.
// Operators use this when extending the variant table.
func (c *Client) GetProductVariants(ctx context.Context, productID int64) ([]CatalogVariant, error) {
	var result struct {
		Variants []CatalogVariant `json:"variants"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d", productID), nil, &result); err != nil {
		return nil, err
	}
	return result.Variants, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("printful: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("printful: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set(storeIDHeader, c.storeID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("printful: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if out != nil {
		var envelope struct {
			Result json.RawMessage `json:"result"`
		}
		payload := respBody
		if err := json.Unmarshal(respBody, &envelope); err == nil && len(envelope.Result) > 0 {
			payload = envelope.Result
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("printful: decode response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}

	var envelope struct {
		Code   int `json:"code"`
		Result any `json:"result"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Code = envelope.Code
		if envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
		} else if message, ok := envelope.Result.(string); ok {
			apiErr.Message = message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = errSnippet(body)
	}
	return apiErr
}

func errSnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
