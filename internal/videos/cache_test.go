package videos

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingProvider struct {
	metadata Metadata
	err      error
	calls    int
}

func (p *countingProvider) Lookup(context.Context, string) (Metadata, error) {
	p.calls++
	if p.err != nil {
		return Metadata{}, p.err
	}
	return p.metadata, nil
}

func TestCachingProviderReusesLookups(t *testing.T) {
	base := &countingProvider{metadata: Metadata{Title: "Einführung", DurationSeconds: 95}}
	cache := NewCachingProvider(base, time.Minute)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	for _, url := range []string{"https://youtu.be/abc", " https://youtu.be/abc "} {
		meta, err := cache.Lookup(ctx, url)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if meta.Title != "Einführung" || meta.DurationMinutes() != 2 {
			t.Fatalf("unexpected metadata: %+v", meta)
		}
	}
	if base.calls != 1 {
		t.Fatalf("expected one provider call got %d", base.calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cache.Lookup(ctx, "https://youtu.be/abc"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("expected expired entry to be refreshed, got %d calls", base.calls)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one cached entry got %d", cache.Len())
	}
}

func TestCachingProviderDoesNotCacheFailures(t *testing.T) {
	if _, err := NewCachingProvider(nil, time.Minute).Lookup(context.Background(), "https://youtu.be/x"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable got %v", err)
	}

	base := &countingProvider{err: errors.New("yt-dlp failed")}
	cache := NewCachingProvider(base, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := cache.Lookup(context.Background(), "https://youtu.be/x"); err == nil {
			t.Fatal("expected error")
		}
	}
	if base.calls != 2 || cache.Len() != 0 {
		t.Fatalf("failures must not be cached: calls=%d cached=%d", base.calls, cache.Len())
	}
}
