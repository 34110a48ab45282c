package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	apiContext "conduit/internal/api/context"
	"conduit/internal/engine/connections"
	"conduit/internal/engine/jobs"
	"conduit/internal/engine/oauth"
	"conduit/internal/engine/providers"
	"conduit/internal/engine/state"
	"conduit/internal/engine/webhooks"
	"conduit/internal/pkg/errors"
	"conduit/internal/pkg/logger"
	"conduit/internal/platform/audit"
	"conduit/internal/platform/config"
	"conduit/internal/platform/models"
)

const defaultReturnTo = "/integrations"

// IntegrationHandler serves the tenant-facing integration routes and the
// public provider callbacks.
type IntegrationHandler struct {
	registry    *providers.Registry
	cache       *providers.Cache
	connectors  *providers.Connectors
	connections *connections.Store
	signer      *state.Signer
	oauth       *oauth.Client
	webhooks    *webhooks.Router
	queue       *jobs.Queue
	audit       *audit.Logger
	server      config.ServerConfig
	webhookCfg  config.WebhooksConfig
	log         zerolog.Logger
	now         func() time.Time
}

type IntegrationDeps struct {
	Registry    *providers.Registry
	Cache       *providers.Cache
	Connectors  *providers.Connectors
	Connections *connections.Store
	Signer      *state.Signer
	OAuth       *oauth.Client
	Webhooks    *webhooks.Router
	Queue       *jobs.Queue
	Audit       *audit.Logger
	Server      config.ServerConfig
	WebhookCfg  config.WebhooksConfig
}

func NewIntegrationHandler(deps IntegrationDeps) *IntegrationHandler {
	cache := deps.Cache
	if cache == nil {
		cache = providers.NewCache(deps.Registry, 0)
	}
	return &IntegrationHandler{
		registry:    deps.Registry,
		cache:       cache,
		connectors:  deps.Connectors,
		connections: deps.Connections,
		signer:      deps.Signer,
		oauth:       deps.OAuth,
		webhooks:    deps.Webhooks,
		queue:       deps.Queue,
		audit:       deps.Audit,
		server:      deps.Server,
		webhookCfg:  deps.WebhookCfg,
		log:         logger.Component("api"),
		now:         time.Now,
	}
}

// providerContext is what every :provider route resolves first.
type providerContext struct {
	provider  *models.Provider
	settings  *models.PlatformProviderSettings
	connector providers.Connector
}

func param(r *http.Request, name string) string {
	ps, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return ps.ByName(name)
}

// resolveProvider writes the error response itself and returns nil when the
// request cannot proceed.
func (h *IntegrationHandler) resolveProvider(ctx context.Context, w http.ResponseWriter, r *http.Request) *providerContext {
	slug := param(r, "provider")

	connector, ok := h.connectors.Get(slug)
	if !ok {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Unknown provider", nil)
		return nil
	}

	resolved, err := h.cache.Lookup(ctx, slug)
	if err != nil {
		h.log.Error().Err(err).Str("provider", slug).Msg("failed to load provider")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load provider", nil)
		return nil
	}
	if resolved == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Provider is not installed", nil)
		return nil
	}

	provider, settings := resolved.Provider, resolved.Settings
	if settings == nil || !settings.Enabled {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeProviderDisabled,
			provider.Name+" is not enabled by the platform owner.", nil)
		return nil
	}

	return &providerContext{provider: provider, settings: settings, connector: connector}
}

// origin is the externally visible scheme and host.
func (h *IntegrationHandler) origin(r *http.Request) string {
	if h.server.PublicURL != "" {
		return strings.TrimRight(h.server.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (h *IntegrationHandler) callbackURL(r *http.Request, slug string) string {
	return h.origin(r) + "/api/v1/integrations/" + url.PathEscape(slug) + "/auth/callback"
}

// safeReturnTo accepts same-origin absolute paths only.
func safeReturnTo(candidate string) string {
	if strings.HasPrefix(candidate, "/") && !strings.HasPrefix(candidate, "//") && !strings.HasPrefix(candidate, "/\\") {
		return candidate
	}
	return defaultReturnTo
}
