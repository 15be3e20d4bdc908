package tuxedo

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMissingCredentials is returned when account, username or password is empty.
var ErrMissingCredentials = errors.New("tuxedo: credentials not configured")

// ShowCache serves the provider show catalog for display filters. Shows are
// read-only here and never reconciled into the record store.
type ShowCache struct {
	api   API
	creds func() Credentials
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	shows     []ShowSummary
	updatedAt time.Time
}

// NewShowCache creates a cache that re-fetches after ttl (default 5m).
// creds is consulted on every refresh so settings changes apply.
func NewShowCache(api API, creds func() Credentials, ttl time.Duration) *ShowCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ShowCache{api: api, creds: creds, ttl: ttl, now: time.Now}
}

// Shows returns the cached catalog, refreshing it when stale.
func (c *ShowCache) Shows(ctx context.Context) ([]ShowSummary, error) {
	now := c.now()

	c.mu.RLock()
	if c.shows != nil && now.Sub(c.updatedAt) < c.ttl {
		out := c.shows
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	creds := c.creds()
	if !creds.Complete() {
		return nil, ErrMissingCredentials
	}
	tok, err := c.api.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	shows, err := c.api.FetchShows(ctx, tok)
	if err != nil {
		return nil, err
	}
	if shows == nil {
		shows = []ShowSummary{}
	}

	c.mu.Lock()
	c.shows = shows
	c.updatedAt = now
	c.mu.Unlock()
	return shows, nil
}

// Invalidate drops the cached catalog.
func (c *ShowCache) Invalidate() {
	c.mu.Lock()
	c.shows = nil
	c.mu.Unlock()
}
