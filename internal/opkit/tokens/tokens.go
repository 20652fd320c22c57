// Package tokens implements the single-flight access-token refresh actor
// described in opkit's design (§4.9): an in-memory access token, a
// secure-storage-backed refresh token, and a one-slot in-flight load so
// concurrent callers share a single refresh round-trip.
package tokens

import (
	"context"
	"fmt"
	"sync"
)

// SecureStorage is a map-like, durable key/value store for the refresh
// token. Out-of-process mutation is allowed: a caller may read a value
// another process just wrote.
type SecureStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Loader performs the actual network round-trip to exchange a refresh
// token for a fresh access/refresh pair.
type Loader func(ctx context.Context, refreshToken []byte) (accessToken []byte, nextRefreshToken []byte, err error)

const refreshKey = "opkit.refreshToken"

// Tokens is the single-flight refresh actor. Grounded on
// pkg/manager/token.go's mutex-guarded map shape, generalized from a
// multi-token registry to the single access/refresh pair the spec
// describes, with the in-flight deduplication pattern borrowed from
// opkit's own Deduplicated modifier (one shared future per concurrent
// caller set).
type Tokens struct {
	storage SecureStorage

	mu        sync.Mutex
	access    []byte
	hasAccess bool
	inFlight  *loadFuture
}

type loadFuture struct {
	done   chan struct{}
	access []byte
	err    error
}

// New returns a Tokens actor backed by storage.
func New(storage SecureStorage) *Tokens {
	return &Tokens{storage: storage}
}

// Load returns the cached access token if one is present; otherwise it
// starts (or joins) a single in-flight refresh via loader, persists the
// resulting refresh token, and caches the access token before resolving
// every waiter with the same result.
func (t *Tokens) Load(ctx context.Context, loader Loader) ([]byte, error) {
	t.mu.Lock()
	if t.hasAccess {
		access := t.access
		t.mu.Unlock()
		return access, nil
	}
	if t.inFlight != nil {
		future := t.inFlight
		t.mu.Unlock()
		return awaitFuture(ctx, future)
	}

	future := &loadFuture{done: make(chan struct{})}
	t.inFlight = future
	t.mu.Unlock()

	go t.runLoad(future, loader)

	return awaitFuture(ctx, future)
}

func (t *Tokens) runLoad(future *loadFuture, loader Loader) {
	refresh, err := t.storage.Get(context.Background(), refreshKey)
	if err != nil {
		t.resolve(future, nil, fmt.Errorf("opkit/tokens: read refresh token: %w", err))
		return
	}

	access, nextRefresh, err := loader(context.Background(), refresh)
	if err != nil {
		t.resolve(future, nil, fmt.Errorf("opkit/tokens: refresh: %w", err))
		return
	}

	if nextRefresh != nil {
		if err := t.storage.Set(context.Background(), refreshKey, nextRefresh); err != nil {
			t.resolve(future, nil, fmt.Errorf("opkit/tokens: persist refresh token: %w", err))
			return
		}
	}

	t.resolve(future, access, nil)
}

func (t *Tokens) resolve(future *loadFuture, access []byte, err error) {
	t.mu.Lock()
	if err == nil {
		t.access = access
		t.hasAccess = true
	}
	if t.inFlight == future {
		t.inFlight = nil
	}
	t.mu.Unlock()

	future.access, future.err = access, err
	close(future.done)
}

func awaitFuture(ctx context.Context, future *loadFuture) ([]byte, error) {
	select {
	case <-future.done:
		return future.access, future.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BearerValues returns a snapshot of the cached access token and the
// stored refresh token, either of which may be absent.
func (t *Tokens) BearerValues(ctx context.Context) (access []byte, refresh []byte, err error) {
	t.mu.Lock()
	if t.hasAccess {
		access = t.access
	}
	t.mu.Unlock()

	refresh, err = t.storage.Get(ctx, refreshKey)
	if err != nil {
		return access, nil, fmt.Errorf("opkit/tokens: read refresh token: %w", err)
	}
	return access, refresh, nil
}

// Clear wipes the cached access token and deletes the refresh token from
// secure storage.
func (t *Tokens) Clear(ctx context.Context) error {
	t.mu.Lock()
	t.access = nil
	t.hasAccess = false
	t.mu.Unlock()

	if err := t.storage.Delete(ctx, refreshKey); err != nil {
		return fmt.Errorf("opkit/tokens: delete refresh token: %w", err)
	}
	return nil
}
