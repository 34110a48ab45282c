package gohighlevel

import (
	"context"
	"net/http"

	"conduit/internal/engine/oauth"
	"conduit/internal/engine/providers"
	"conduit/internal/engine/vault"
	"conduit/internal/platform/models"
)

var _ providers.Connector = (*Connector)(nil)

// Connector adapts the package functions to providers.Connector.
type Connector struct {
	opts []Option
}

func NewConnector(opts ...Option) *Connector {
	return &Connector{opts: opts}
}

func (c *Connector) Slug() string { return Slug }

func (c *Connector) OAuthConfig(settings models.OAuthSettings, fallbackRedirect string) oauth.Config {
	return OAuthConfig(settings, fallbackRedirect)
}

func (c *Connector) WebhookKey(h http.Header, rawBody []byte) (string, string) {
	return IdempotencyKeyFor(h, string(rawBody)), h.Get(EventTypeHeader)
}

func (c *Connector) Sync(ctx context.Context, secrets vault.Secrets) (any, error) {
	return SyncContacts(ctx, secrets, c.opts...)
}
