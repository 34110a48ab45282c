package providers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"conduit/internal/engine/oauth"
	"conduit/internal/engine/vault"
	"conduit/internal/platform/models"
)

// Connector is the provider-specific half of an integration: how to reach its
// OAuth endpoints, how to key its webhooks and how to sync a connection.
type Connector interface {
	Slug() string
	OAuthConfig(settings models.OAuthSettings, fallbackRedirect string) oauth.Config
	// WebhookKey returns the idempotency key and event type of an inbound call.
	WebhookKey(h http.Header, rawBody []byte) (key, eventType string)
	Sync(ctx context.Context, secrets vault.Secrets) (any, error)
}

// Connectors maps slugs to connectors. It is built once at startup.
type Connectors struct {
	mu     sync.RWMutex
	bySlug map[string]Connector
}

func NewConnectors(cs ...Connector) *Connectors {
	c := &Connectors{bySlug: make(map[string]Connector, len(cs))}
	for _, conn := range cs {
		c.Register(conn)
	}
	return c
}

func (c *Connectors) Register(conn Connector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.bySlug[conn.Slug()]; dup {
		panic(fmt.Sprintf("providers: connector %q registered twice", conn.Slug()))
	}
	c.bySlug[conn.Slug()] = conn
}

func (c *Connectors) Get(slug string) (Connector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.bySlug[slug]
	return conn, ok
}

func (c *Connectors) Slugs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.bySlug))
	for slug := range c.bySlug {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}
