// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestIdentityCacheReusesNamedIdentity(t *testing.T) {
	t.Parallel()
	p := newFakePlatform()
	existing := &fakeIdentity{p: p, name: IdentityName}
	listed := 0
	wrapped := &listOverridePlatform{fakePlatform: p, identities: []SendIdentity{
		&fakeIdentity{p: p, name: "someone-else"},
		existing,
	}, listed: &listed}
	cache := NewIdentityCache(wrapped, zerolog.Nop())

	got := cache.Get(context.Background(), "chan-1")
	if got != existing {
		t.Fatalf("Get returned %v, want the existing relay-named identity", got)
	}
	if cache.Get(context.Background(), "chan-1") != existing {
		t.Fatal("second Get missed the cache")
	}
	if listed != 1 {
		t.Errorf("list calls = %d, want 1", listed)
	}
}

func TestIdentityCacheCachesPermissionDenial(t *testing.T) {
	t.Parallel()
	p := newFakePlatform()
	p.identityErr = ErrPermissionDenied
	cache := NewIdentityCache(p, zerolog.Nop())

	if got := cache.Get(context.Background(), "chan-1"); got != nil {
		t.Fatalf("Get = %v, want nil on permission denial", got)
	}
	cache.Get(context.Background(), "chan-1")
	if p.listCalls != 1 {
		t.Errorf("list calls = %d, want 1 (denial cached)", p.listCalls)
	}
}

func TestIdentityCacheTransientErrorNotCached(t *testing.T) {
	t.Parallel()
	p := newFakePlatform()
	p.identityErr = fmt.Errorf("connection refused")
	cache := NewIdentityCache(p, zerolog.Nop())

	cache.Get(context.Background(), "chan-1")
	cache.Get(context.Background(), "chan-1")
	if p.listCalls != 2 {
		t.Errorf("list calls = %d, want 2 (transient errors retried)", p.listCalls)
	}
}

func TestIdentityCacheEvictsOldestFIFO(t *testing.T) {
	t.Parallel()
	p := newFakePlatform()
	cache := NewIdentityCache(p, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < identityCacheLimit+1; i++ {
		cache.Get(ctx, fmt.Sprintf("chan-%d", i))
	}
	if cache.Len() != identityCacheLimit {
		t.Fatalf("cache holds %d entries, want %d", cache.Len(), identityCacheLimit)
	}

	before := p.listCalls
	cache.Get(ctx, "chan-0")
	if p.listCalls != before+1 {
		t.Error("oldest entry was not evicted")
	}
	cache.Get(ctx, fmt.Sprintf("chan-%d", identityCacheLimit))
	if p.listCalls != before+1 {
		t.Error("newest entry was evicted")
	}
}

func TestIdentityCacheInvalidate(t *testing.T) {
	t.Parallel()
	p := newFakePlatform()
	cache := NewIdentityCache(p, zerolog.Nop())
	ctx := context.Background()

	cache.Get(ctx, "chan-1")
	cache.Invalidate("chan-1")
	if cache.Len() != 0 {
		t.Fatalf("cache holds %d entries after invalidate, want 0", cache.Len())
	}
	cache.Get(ctx, "chan-1")
	if p.listCalls != 2 {
		t.Errorf("list calls = %d, want 2", p.listCalls)
	}
}

func TestIdentityCacheSingleResolutionPerChannel(t *testing.T) {
	t.Parallel()
	p := newFakePlatform()
	wrapped := &blockingListPlatform{
		fakePlatform: p,
		entered:      make(chan struct{}, 2),
		release:      make(chan struct{}),
	}
	cache := NewIdentityCache(wrapped, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]SendIdentity, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cache.Get(ctx, "chan-1")
		}(i)
	}

	// Only one Get may reach the platform; the other waits on the
	// in-flight guard and must then hit the cache. Without the guard
	// both would list-then-create, leaving a duplicate identity.
	<-wrapped.entered
	close(wrapped.release)
	wg.Wait()

	if p.listCalls != 1 {
		t.Errorf("list calls = %d, want 1", p.listCalls)
	}
	if results[0] == nil || results[0] != results[1] {
		t.Errorf("concurrent gets returned different identities: %v vs %v", results[0], results[1])
	}
}

// blockingListPlatform parks ListSendIdentities until released so the
// test can overlap two resolutions deterministically.
type blockingListPlatform struct {
	*fakePlatform
	entered chan struct{}
	release chan struct{}
}

func (p *blockingListPlatform) ListSendIdentities(ctx context.Context, channelID string) ([]SendIdentity, error) {
	p.entered <- struct{}{}
	<-p.release
	return p.fakePlatform.ListSendIdentities(ctx, channelID)
}

// listOverridePlatform returns a fixed identity list instead of the
// fake's default create-on-demand behavior.
type listOverridePlatform struct {
	*fakePlatform
	identities []SendIdentity
	listed     *int
}

func (p *listOverridePlatform) ListSendIdentities(ctx context.Context, channelID string) ([]SendIdentity, error) {
	*p.listed++
	return p.identities, nil
}
