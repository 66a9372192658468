package uploadcache

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type stubRegistrar struct {
	mu    sync.Mutex
	calls []string
	ids   map[string]string
	err   error
}

func (s *stubRegistrar) RegisterFile(_ context.Context, sourceURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sourceURL)
	if s.err != nil {
		return "", s.err
	}
	if id, ok := s.ids[sourceURL]; ok {
		return id, nil
	}
	return "file-default", nil
}

func (s *stubRegistrar) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestNewCachingRegistrar(t *testing.T) {
	if _, err := NewCachingRegistrar(nil, &stubRegistrar{}); err == nil {
		t.Fatalf("expected error for missing store")
	}
	if _, err := NewCachingRegistrar(NewMemoryStore(), nil); err == nil {
		t.Fatalf("expected error for missing registrar")
	}
}

func TestGetOrUploadDeduplicates(t *testing.T) {
	registrar := &stubRegistrar{ids: map[string]string{"https://cdn.example/a.png": "file-123"}}
	cache, err := NewCachingRegistrar(NewMemoryStore(), registrar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()

	first, err := cache.GetOrUpload(ctx, "https://cdn.example/a.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.GetOrUpload(ctx, "https://cdn.example/a.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != "file-123" || second != "file-123" {
		t.Fatalf("expected file-123 both times, got %q then %q", first, second)
	}
	if got := registrar.callCount(); got != 1 {
		t.Fatalf("expected exactly one registration call, got %d", got)
	}
}

func TestGetOrUploadFailureDoesNotPopulateCache(t *testing.T) {
	registrar := &stubRegistrar{err: errors.New("provider down")}
	store := NewMemoryStore()
	cache, err := NewCachingRegistrar(store, registrar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if _, err := cache.GetOrUpload(ctx, "https://cdn.example/b.png"); err == nil {
		t.Fatalf("expected upload failure to propagate")
	}
	if store.Len() != 0 {
		t.Fatalf("failed upload must not populate the cache, got %d entries", store.Len())
	}

	// Once the provider recovers, the URL uploads and caches normally.
	registrar.err = nil
	if _, err := cache.GetOrUpload(ctx, "https://cdn.example/b.png"); err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one cached entry after recovery, got %d", store.Len())
	}
}

func TestGetOrUploadRejectsEmptyURL(t *testing.T) {
	cache, err := NewCachingRegistrar(NewMemoryStore(), &stubRegistrar{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.GetOrUpload(context.Background(), "  "); !errors.Is(err, ErrEmptySourceURL) {
		t.Fatalf("expected ErrEmptySourceURL, got %v", err)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Put(ctx, "https://cdn.example/a.png", "file-123")
			_, _, _ = store.Get(ctx, "https://cdn.example/a.png")
		}()
	}
	wg.Wait()

	fileID, ok, err := store.Get(ctx, "https://cdn.example/a.png")
	if err != nil || !ok || fileID != "file-123" {
		t.Fatalf("expected cached file-123, got %q ok=%v err=%v", fileID, ok, err)
	}
}
