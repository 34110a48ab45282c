package providers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"conduit/internal/engine/oauth"
	"conduit/internal/engine/vault"
	"conduit/internal/platform/models"
)

type stubConnector string

func (s stubConnector) Slug() string { return string(s) }
func (s stubConnector) OAuthConfig(models.OAuthSettings, string) oauth.Config {
	return oauth.Config{}
}
func (s stubConnector) WebhookKey(http.Header, []byte) (string, string) { return "k", "" }
func (s stubConnector) Sync(context.Context, vault.Secrets) (any, error) { return nil, nil }

func TestConnectors(t *testing.T) {
	c := NewConnectors(stubConnector("b"), stubConnector("a"))

	conn, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "a", conn.Slug())

	_, ok = c.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, c.Slugs())
	assert.Panics(t, func() { c.Register(stubConnector("a")) })
}
