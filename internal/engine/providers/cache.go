package providers

import (
	"context"
	"sync"
	"time"

	"conduit/internal/platform/models"
)

// Resolved is a provider together with its platform settings. Settings is
// nil when the operator never configured the provider.
type Resolved struct {
	Provider *models.Provider
	Settings *models.PlatformProviderSettings
	cachedAt time.Time
}

// Cache fronts Registry lookups by slug. Settings changes become visible
// after at most ttl; a ttl of zero disables caching.
type Cache struct {
	registry *Registry
	store    sync.Map // map[slug]*Resolved
	ttl      time.Duration
	now      func() time.Time
}

func NewCache(registry *Registry, ttl time.Duration) *Cache {
	return &Cache{registry: registry, ttl: ttl, now: time.Now}
}

// Lookup returns nil, nil for a slug that is not installed. Missing
// providers are not cached.
func (c *Cache) Lookup(ctx context.Context, slug string) (*Resolved, error) {
	if c.ttl > 0 {
		if val, ok := c.store.Load(slug); ok {
			r := val.(*Resolved)
			if c.now().Sub(r.cachedAt) <= c.ttl {
				return r, nil
			}
			c.store.Delete(slug)
		}
	}

	provider, err := c.registry.GetBySlug(ctx, slug)
	if err != nil || provider == nil {
		return nil, err
	}
	settings, err := c.registry.GetPlatformSettings(ctx, provider.ID)
	if err != nil {
		return nil, err
	}

	r := &Resolved{Provider: provider, Settings: settings, cachedAt: c.now()}
	if c.ttl > 0 {
		c.store.Store(slug, r)
	}
	return r, nil
}

// Invalidate drops one slug so the next Lookup reads the store.
func (c *Cache) Invalidate(slug string) {
	c.store.Delete(slug)
}
