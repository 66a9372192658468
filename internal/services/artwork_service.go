package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/printforge/bridge/internal/domain"
	"github.com/printforge/bridge/internal/imaging"
	"github.com/printforge/bridge/internal/platform/requestctx"
	"github.com/printforge/bridge/internal/platform/storage"
	"github.com/printforge/bridge/internal/shopify"
	"go.uber.org/zap"
)

// placements are probed in a fixed order so resolved file lists stay
// deterministic across runs.
var placements = []string{"front", "back", "sleeve_left", "sleeve_right"}

// numberAbsenceMarkers are property values treated the same as an absent
// personalization number.
var numberAbsenceMarkers = map[string]struct{}{
	"":     {},
	"none": {},
	"n/a":  {},
	"na":   {},
	"-":    {},
}

// ResolveArtInput carries everything needed to locate artwork for one line.
type ResolveArtInput struct {
	Handle      string
	TemplateRef string
	Properties  []shopify.LineItemProperty
}

// ResolvedArt is the set of print files for one line item. DefaultFile is the
// main print surface; Placements carry extra surfaces keyed by their
// placement name.
type ResolvedArt struct {
	DefaultFile domain.ArtworkAsset
	Placements  []domain.ArtworkAsset
}

// ArtworkServiceDeps lists the collaborators for NewArtworkService.
type ArtworkServiceDeps struct {
	ArtBaseURL     string
	NumberProperty string
	Prober         ExistenceProber
	Fetcher        imaging.Fetcher
	Uploader       storage.Uploader
}

// ArtworkService locates base artwork by product handle, probes optional
// placement files, and composites personalization numbers onto the base
// artwork when the order asks for one.
type ArtworkService struct {
	artBaseURL     string
	numberProperty string
	prober         ExistenceProber
	fetcher        imaging.Fetcher
	uploader       storage.Uploader
}

func NewArtworkService(deps ArtworkServiceDeps) (*ArtworkService, error) {
	if strings.TrimSpace(deps.ArtBaseURL) == "" {
		return nil, fmt.Errorf("services: artwork base URL is required")
	}
	if deps.Prober == nil {
		return nil, fmt.Errorf("services: existence prober is required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("services: image fetcher is required")
	}
	if deps.Uploader == nil {
		return nil, fmt.Errorf("services: uploader is required")
	}
	return &ArtworkService{
		artBaseURL:     strings.TrimRight(deps.ArtBaseURL, "/"),
		numberProperty: deps.NumberProperty,
		prober:         deps.Prober,
		fetcher:        deps.Fetcher,
		uploader:       deps.Uploader,
	}, nil
}

// ResolveLineArt resolves the default print file and any placement files for
// one line item. A personalization number, when present and backed by a
// number overlay file, replaces the default file with a freshly composited
// upload; compositing errors fail the whole line item rather than silently
// shipping the un-numbered base.
func (s *ArtworkService) ResolveLineArt(ctx context.Context, input ResolveArtInput) (ResolvedArt, error) {
	if strings.TrimSpace(input.Handle) == "" {
		return ResolvedArt{}, fmt.Errorf("services: product handle is empty, cannot locate base artwork")
	}

	baseURL := fmt.Sprintf("%s/%s.png", s.artBaseURL, input.Handle)
	art := ResolvedArt{
		DefaultFile: domain.ArtworkAsset{Kind: domain.ArtworkBase, SourceURL: baseURL},
	}

	if number, ok := s.numberFrom(input.Properties); ok {
		composite, found, err := s.compositeNumber(ctx, baseURL, input, number)
		if err != nil {
			return ResolvedArt{}, err
		}
		if found {
			art.DefaultFile = composite
		}
	}

	logger := requestctx.Logger(ctx)
	for _, placement := range placements {
		url := fmt.Sprintf("%s/%s_%s.png", s.artBaseURL, input.TemplateRef, placement)
		exists, err := s.prober.Exists(ctx, url)
		if err != nil {
			logger.Warn("placement probe failed, skipping",
				zap.String("placement", placement),
				zap.Error(err),
			)
			continue
		}
		if !exists {
			continue
		}
		art.Placements = append(art.Placements, domain.ArtworkAsset{
			Kind:      domain.ArtworkPlacement,
			Placement: placement,
			SourceURL: url,
		})
	}
	return art, nil
}

// compositeNumber overlays the number file for this template onto the base
// artwork and uploads the result next to the base file. found is false when
// no number overlay exists for the template, which is not an error.
func (s *ArtworkService) compositeNumber(ctx context.Context, baseURL string, input ResolveArtInput, number string) (domain.ArtworkAsset, bool, error) {
	numberURL := fmt.Sprintf("%s/%s_%s.png", s.artBaseURL, input.TemplateRef, number)
	exists, err := s.prober.Exists(ctx, numberURL)
	if err != nil {
		return domain.ArtworkAsset{}, false, fmt.Errorf("services: probe number overlay: %w", err)
	}
	if !exists {
		return domain.ArtworkAsset{}, false, nil
	}

	baseImg, err := s.fetcher.FetchImage(ctx, baseURL)
	if err != nil {
		return domain.ArtworkAsset{}, false, fmt.Errorf("services: fetch base artwork: %w", err)
	}
	numberImg, err := s.fetcher.FetchImage(ctx, numberURL)
	if err != nil {
		return domain.ArtworkAsset{}, false, fmt.Errorf("services: fetch number overlay: %w", err)
	}
	data, err := imaging.Overlay(baseImg, numberImg)
	if err != nil {
		return domain.ArtworkAsset{}, false, fmt.Errorf("services: composite number overlay: %w", err)
	}

	fileName, err := storage.CompositeFileName(input.Handle, input.TemplateRef, number)
	if err != nil {
		return domain.ArtworkAsset{}, false, fmt.Errorf("services: build composite filename: %w", err)
	}
	objectPath, err := storage.CompositeObjectPath(baseURL, fileName)
	if err != nil {
		return domain.ArtworkAsset{}, false, fmt.Errorf("services: build composite path: %w", err)
	}
	url, err := s.uploader.Upload(ctx, objectPath, "image/png", data)
	if err != nil {
		return domain.ArtworkAsset{}, false, fmt.Errorf("services: upload composite: %w", err)
	}
	return domain.ArtworkAsset{
		Kind:        domain.ArtworkComposite,
		SourceURL:   url,
		BaseURL:     baseURL,
		OverlayURL:  numberURL,
		GeneratedAt: time.Now().UTC(),
	}, true, nil
}

// numberFrom extracts a personalization number from line item properties. The
// configured property name wins; otherwise any property whose name contains
// "number" is considered. Values are accepted only when entirely numeric.
func (s *ArtworkService) numberFrom(properties []shopify.LineItemProperty) (string, bool) {
	for _, p := range properties {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		matches := strings.Contains(name, "number")
		if s.numberProperty != "" && strings.EqualFold(p.Name, s.numberProperty) {
			matches = true
		}
		if !matches {
			continue
		}
		value := strings.ToLower(strings.TrimSpace(p.Value))
		if _, absent := numberAbsenceMarkers[value]; absent {
			continue
		}
		if !digitsOnly(value) {
			continue
		}
		return value, true
	}
	return "", false
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// HTTPProber probes artwork existence with HEAD requests. A 404 is an
// authoritative "does not exist"; any other non-2xx status is an error so
// transient upstream trouble is not mistaken for missing artwork.
type HTTPProber struct {
	client *http.Client
}

func NewHTTPProber(client *http.Client) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{client: client}
}

func (p *HTTPProber) Exists(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("services: build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("services: probe %s: %w", url, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	default:
		return false, fmt.Errorf("services: probe %s: unexpected status %d", url, resp.StatusCode)
	}
}
