package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"time"
)

const maxImageBytes = 32 << 20

// ErrOversizedImage is returned when a fetched image exceeds the decode limit.
var ErrOversizedImage = errors.New("imaging: image exceeds size limit")

// Fetcher retrieves and decodes a remote image.
type Fetcher interface {
	FetchImage(ctx context.Context, url string) (image.Image, error)
}

// HTTPFetcher fetches images over HTTP with a bounded reader.
type HTTPFetcher struct {
	httpClient *http.Client
}

// NewHTTPFetcher constructs an HTTPFetcher.
func NewHTTPFetcher(httpClient *http.Client) *HTTPFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{httpClient: httpClient}
}

// FetchImage implements Fetcher.
func (f *HTTPFetcher) FetchImage(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("imaging: build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imaging: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imaging: fetch %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("imaging: read %s: %w", url, err)
	}
	if len(data) > maxImageBytes {
		return nil, ErrOversizedImage
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imaging: decode %s: %w", url, err)
	}
	return img, nil
}

// Overlay composites the overlay image on top of the base image, top-left
// aligned with no scaling, and returns the result encoded as PNG. The overlay
// carries its position baked into its own transparent canvas.
func Overlay(base, overlay image.Image) ([]byte, error) {
	if base == nil || overlay == nil {
		return nil, errors.New("imaging: base and overlay images are required")
	}

	bounds := base.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, base, bounds.Min, draw.Src)

	overlayBounds := overlay.Bounds()
	target := image.Rectangle{
		Min: bounds.Min,
		Max: bounds.Min.Add(overlayBounds.Size()),
	}.Intersect(bounds)
	draw.Draw(canvas, target, overlay, overlayBounds.Min, draw.Over)

	var out bytes.Buffer
	if err := png.Encode(&out, canvas); err != nil {
		return nil, fmt.Errorf("imaging: encode composite: %w", err)
	}
	return out.Bytes(), nil
}
