package workers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"conduit/internal/engine/connections"
	"conduit/internal/engine/oauth"
	"conduit/internal/engine/providers"
	"conduit/internal/engine/vault"
	"conduit/internal/engine/webhooks"
	"conduit/internal/pkg/logger"
	"conduit/internal/pkg/metrics"
	"conduit/internal/platform/models"
)

// refreshWindow is how close to expiry an access token gets refreshed.
const refreshWindow = 60 * time.Second

var ErrNoSecrets = errors.New("connection has no stored secrets")

// SyncHandler runs contacts.sync jobs for a connection.
type SyncHandler struct {
	connections *connections.Store
	registry    *providers.Registry
	connectors  *providers.Connectors
	oauth       *oauth.Client
	publicURL   string
	log         zerolog.Logger
	now         func() time.Time
}

func NewSyncHandler(store *connections.Store, registry *providers.Registry, connectors *providers.Connectors, client *oauth.Client, publicURL string) *SyncHandler {
	return &SyncHandler{
		connections: store,
		registry:    registry,
		connectors:  connectors,
		oauth:       client,
		publicURL:   strings.TrimRight(publicURL, "/"),
		log:         logger.Component("sync"),
		now:         time.Now,
	}
}

func connectionID(job *models.Job) string {
	if job.ConnectionID != nil && *job.ConnectionID != "" {
		return *job.ConnectionID
	}
	id, _ := job.Payload["connection_id"].(string)
	return id
}

func (h *SyncHandler) Handle(ctx context.Context, job *models.Job) error {
	id := connectionID(job)
	if id == "" {
		return errors.New("sync job carries no connection id")
	}

	conn, err := h.connections.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if conn == nil {
		return fmt.Errorf("connection %s not found", id)
	}
	if conn.Status == models.ConnectionDisconnected {
		h.log.Info().Str("connection_id", id).Msg("connection disconnected, skipping sync")
		return nil
	}

	result, err := h.sync(ctx, conn)
	if err != nil {
		if markErr := h.connections.MarkError(context.WithoutCancel(ctx), conn.ID, err.Error()); markErr != nil {
			h.log.Error().Err(markErr).Str("connection_id", conn.ID).Msg("failed to record sync error")
		}
		return err
	}

	if err := h.connections.MarkSynced(ctx, conn.ID, h.now()); err != nil {
		return err
	}
	h.log.Info().Str("connection_id", conn.ID).Interface("result", result).Msg("sync finished")
	return nil
}

func (h *SyncHandler) sync(ctx context.Context, conn *models.Connection) (any, error) {
	provider, err := h.registry.GetByID(ctx, conn.ProviderID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("provider %s not installed", conn.ProviderID)
	}
	connector, ok := h.connectors.Get(provider.Slug)
	if !ok {
		return nil, fmt.Errorf("no connector for provider %s", provider.Slug)
	}

	secrets, err := h.connections.GetSecrets(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	if secrets == nil {
		return nil, ErrNoSecrets
	}

	secrets, err = h.refreshIfExpiring(ctx, conn, provider, connector, secrets)
	if err != nil {
		return nil, err
	}

	return connector.Sync(ctx, secrets)
}

func (h *SyncHandler) refreshIfExpiring(ctx context.Context, conn *models.Connection, provider *models.Provider, connector providers.Connector, secrets vault.Secrets) (vault.Secrets, error) {
	creds, ok := secrets.OAuth()
	if !ok || creds.RefreshToken == "" || creds.ExpiresAt == "" {
		return secrets, nil
	}
	expiresAt, err := time.Parse(time.RFC3339, creds.ExpiresAt)
	if err != nil {
		return secrets, nil
	}
	now := h.now()
	if expiresAt.Sub(now) > refreshWindow {
		return secrets, nil
	}

	settings, err := h.registry.GetPlatformSettings(ctx, provider.ID)
	if err != nil {
		return nil, err
	}
	var oauthSettings models.OAuthSettings
	if settings != nil {
		oauthSettings = settings.OAuth()
	}
	callback := h.publicURL + "/api/v1/integrations/" + url.PathEscape(provider.Slug) + "/auth/callback"
	cfg := connector.OAuthConfig(oauthSettings, callback)

	tokens, err := h.oauth.Refresh(ctx, cfg, creds.RefreshToken)
	if err != nil {
		metrics.TokenRequestsTotal.WithLabelValues(provider.Slug, "refresh_token", "error").Inc()
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	metrics.TokenRequestsTotal.WithLabelValues(provider.Slug, "refresh_token", "ok").Inc()

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = creds.RefreshToken
	}
	refreshed := tokens.Secrets(now)
	for k, v := range secrets {
		if _, ok := refreshed[k]; !ok {
			refreshed[k] = v
		}
	}

	if err := h.connections.SetSecrets(ctx, conn.ID, refreshed); err != nil {
		return nil, err
	}
	h.log.Info().Str("connection_id", conn.ID).Msg("access token refreshed")
	return refreshed, nil
}

// WebhookProcessor runs webhook.process jobs.
type WebhookProcessor struct {
	events *webhooks.Router
	log    zerolog.Logger
}

func NewWebhookProcessor(events *webhooks.Router) *WebhookProcessor {
	return &WebhookProcessor{events: events, log: logger.Component("webhook_processor")}
}

func (p *WebhookProcessor) Handle(ctx context.Context, job *models.Job) error {
	id, _ := job.Payload["event_id"].(string)
	if id == "" {
		return errors.New("webhook job carries no event id")
	}

	event, err := p.events.Get(ctx, id)
	if err != nil {
		return err
	}
	if event == nil {
		// Retrying cannot make the row appear.
		p.log.Warn().Str("event_id", id).Str("job_id", job.ID).Msg("webhook event not found, dropping job")
		return nil
	}
	if event.Status == models.WebhookProcessed {
		return nil
	}
	return p.events.MarkProcessed(ctx, id)
}
