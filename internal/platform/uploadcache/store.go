package uploadcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Store persists the source-URL → provider-file-id mapping across bridge
// invocations. Entries are permanent: artwork URLs are treated as
// content-stable, so there is no eviction.
type Store interface {
	// Get returns the cached provider file id for the source URL, if any.
	Get(ctx context.Context, sourceURL string) (string, bool, error)
	// Put records the provider file id obtained for the source URL.
	Put(ctx context.Context, sourceURL, fileID string) error
}

// FileRegistrar registers a remote file with the fulfillment provider and
// returns the provider's file identifier.
type FileRegistrar interface {
	RegisterFile(ctx context.Context, sourceURL string) (string, error)
}

// ErrEmptySourceURL is returned when a caller passes a blank source URL.
var ErrEmptySourceURL = errors.New("uploadcache: source url is required")

// CachingRegistrar deduplicates provider uploads by source URL. For a given
// URL at most one registration call is issued over the cache's lifetime; a
// concurrent-miss race may issue a duplicate upload, which the provider
// tolerates, with last writer winning the cache slot.
type CachingRegistrar struct {
	store     Store
	registrar FileRegistrar
}

// NewCachingRegistrar wires a store and the provider file registrar together.
func NewCachingRegistrar(store Store, registrar FileRegistrar) (*CachingRegistrar, error) {
	if store == nil {
		return nil, errors.New("uploadcache: store is required")
	}
	if registrar == nil {
		return nil, errors.New("uploadcache: file registrar is required")
	}
	return &CachingRegistrar{store: store, registrar: registrar}, nil
}

// GetOrUpload returns the provider file id for the source URL, registering
// the file on a cache miss. Upload failures propagate and never populate the
// cache.
func (c *CachingRegistrar) GetOrUpload(ctx context.Context, sourceURL string) (string, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return "", ErrEmptySourceURL
	}

	if fileID, ok, err := c.store.Get(ctx, sourceURL); err != nil {
		return "", fmt.Errorf("uploadcache: lookup: %w", err)
	} else if ok {
		return fileID, nil
	}

	fileID, err := c.registrar.RegisterFile(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	if err := c.store.Put(ctx, sourceURL, fileID); err != nil {
		return "", fmt.Errorf("uploadcache: record: %w", err)
	}
	return fileID, nil
}

func cacheKey(sourceURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sourceURL)))
	return hex.EncodeToString(sum[:])
}
