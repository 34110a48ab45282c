package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/api/handlers"
	"conduit/internal/api/middleware"
	"conduit/internal/engine/connections"
	"conduit/internal/engine/jobs"
	"conduit/internal/engine/oauth"
	"conduit/internal/engine/providers"
	"conduit/internal/engine/state"
	"conduit/internal/engine/vault"
	"conduit/internal/engine/webhooks"
	"conduit/internal/platform/audit"
	"conduit/internal/platform/auth"
	"conduit/internal/platform/config"
	"conduit/internal/platform/database/dbtest"
	"conduit/internal/platform/models"
)

type acmeConnector struct {
	tokenURL string
}

func (c acmeConnector) Slug() string { return "acme" }

func (c acmeConnector) OAuthConfig(s models.OAuthSettings, fallback string) oauth.Config {
	redirect := s.RedirectURI
	if redirect == "" {
		redirect = fallback
	}
	return oauth.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURI:  redirect,
		Scopes:       s.Scopes,
		AuthorizeURL: "https://auth.acme.test/authorize",
		TokenURL:     c.tokenURL,
	}
}

func (c acmeConnector) WebhookKey(h http.Header, body []byte) (string, string) {
	return webhooks.ComputeIdempotencyKey("acme", h.Get("X-Event-Type"), string(body)), h.Get("X-Event-Type")
}

func (c acmeConnector) Sync(context.Context, vault.Secrets) (any, error) { return nil, nil }

type harness struct {
	router      http.Handler
	registry    *providers.Registry
	connections *connections.Store
	queue       *jobs.Queue
	webhooks    *webhooks.Router
	provider    *models.Provider
	tokens      *auth.TokenService
	tokenCalls  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{}

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.tokenCalls++
		r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"invalid_grant"}`))
			return
		}
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":86400,"locationId":"loc_1"}`))
	}))
	t.Cleanup(tokenSrv.Close)

	db := dbtest.Open(t)
	key, err := vault.GenerateKey()
	require.NoError(t, err)
	v, err := vault.New(key, "")
	require.NoError(t, err)
	signer, err := state.NewSigner("state-secret", state.DefaultMaxAge)
	require.NoError(t, err)

	h.registry = providers.NewRegistry(db)
	h.connections = connections.NewStore(db, v)
	h.queue = jobs.NewQueue(db)
	h.webhooks = webhooks.NewRouter(db)
	h.tokens = auth.NewTokenService(config.JWTConfig{Secret: "jwt-secret"})

	h.provider, err = h.registry.Install(ctx, models.Provider{Slug: "acme", Name: "Acme CRM", Category: "crm"})
	require.NoError(t, err)
	h.setSettings(t, true, models.JSONMap{"oauthClientId": "cid", "oauthClientSecret": "cs"})

	integration := handlers.NewIntegrationHandler(handlers.IntegrationDeps{
		Registry:    h.registry,
		Connectors:  providers.NewConnectors(acmeConnector{tokenURL: tokenSrv.URL}),
		Connections: h.connections,
		Signer:      signer,
		OAuth:       oauth.NewClient(tokenSrv.Client()),
		Webhooks:    h.webhooks,
		Queue:       h.queue,
		Audit:       audit.NewLogger(db),
		Server:      config.ServerConfig{PublicURL: "https://app.example.com"},
		WebhookCfg:  config.WebhooksConfig{MaxBodyBytes: 1024, SignatureHeader: "X-Webhook-Signature"},
	})

	h.router = NewRouter(&Dependencies{
		IntegrationHandler: integration,
		AuditHandler:       handlers.NewAuditHandler(audit.NewLogger(db)),
		HealthHandler:      handlers.NewHealthHandler(db, h.queue),
		MetricsHandler:     handlers.NewMetricsHandler(),
		AuthMiddleware:     middleware.NewAuthMiddleware(h.tokens),
		TenantMiddleware:   middleware.NewTenantMiddleware(),
		RateLimiter:        middleware.NewRateLimiter(),
		WebhookRate:        1000,
	})
	return h
}

func (h *harness) setSettings(t *testing.T, enabled bool, settings models.JSONMap) {
	t.Helper()
	require.NoError(t, h.registry.SetPlatformSettings(context.Background(), models.PlatformProviderSettings{
		ProviderID: h.provider.ID,
		Enabled:    enabled,
		Settings:   settings,
	}))
}

func (h *harness) do(t *testing.T, method, target, role string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if role != "" {
		token, err := h.tokens.GenerateAccessToken("u1", "t1", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	start := h.do(t, "GET", "/api/v1/integrations/acme/auth/start?returnTo=/settings/integrations", "admin", "", nil)
	require.Equal(t, http.StatusFound, start.Code, start.Body.String())

	authURL, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)

	cb := h.do(t, "GET", "/api/v1/integrations/acme/auth/callback?code=good&state="+url.QueryEscape(authURL.Query().Get("state")), "", "", nil)
	require.Equal(t, http.StatusFound, cb.Code, cb.Body.String())
}

func TestOAuthFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	start := h.do(t, "GET", "/api/v1/integrations/acme/auth/start?returnTo=/settings/integrations", "admin", "", nil)
	require.Equal(t, http.StatusFound, start.Code)

	authURL, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "auth.acme.test", authURL.Host)
	assert.Equal(t, "cid", authURL.Query().Get("client_id"))
	assert.Equal(t, "contacts.read", authURL.Query().Get("scope"))
	assert.Equal(t, "https://app.example.com/api/v1/integrations/acme/auth/callback", authURL.Query().Get("redirect_uri"))

	pending, err := h.connections.GetByTenantAndProvider(ctx, "t1", h.provider.ID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, models.ConnectionPending, pending.Status)

	cb := h.do(t, "GET", "/api/v1/integrations/acme/auth/callback?code=good&state="+url.QueryEscape(authURL.Query().Get("state")), "", "", nil)
	require.Equal(t, http.StatusFound, cb.Code, cb.Body.String())
	assert.Equal(t, "https://app.example.com/settings/integrations", cb.Header().Get("Location"))

	conn, err := h.connections.GetByTenantAndProvider(ctx, "t1", h.provider.ID)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, conn.ID)
	assert.Equal(t, models.ConnectionConnected, conn.Status)
	assert.Equal(t, "Acme CRM", *conn.DisplayName)
	assert.Equal(t, "loc_1", conn.Metadata.String("location_id"))
	assert.Equal(t, "u1", *conn.CreatedBy)

	secrets, err := h.connections.GetSecrets(ctx, conn.ID)
	require.NoError(t, err)
	creds, ok := secrets.OAuth()
	require.True(t, ok)
	assert.Equal(t, "at", creds.AccessToken)
	assert.Equal(t, "rt", creds.RefreshToken)
	assert.NotEmpty(t, creds.ExpiresAt)
	assert.Equal(t, "loc_1", secrets.String("location_id"))
}

func TestAuthStart_RejectsUnsafeReturnTo(t *testing.T) {
	h := newHarness(t)
	signer, err := state.NewSigner("state-secret", state.DefaultMaxAge)
	require.NoError(t, err)

	start := h.do(t, "GET", "/api/v1/integrations/acme/auth/start?returnTo=//evil.example.com", "admin", "", nil)
	require.Equal(t, http.StatusFound, start.Code)
	authURL, err := url.Parse(start.Header().Get("Location"))
	require.NoError(t, err)

	payload, err := signer.Parse(authURL.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, "/integrations", payload.ReturnTo)
	assert.Equal(t, "t1", payload.TenantID)
}

func TestAuthCallback_Errors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	missing := h.do(t, "GET", "/api/v1/integrations/acme/auth/callback?code=x", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	forged := h.do(t, "GET", "/api/v1/integrations/acme/auth/callback?code=x&state=abc.def", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, forged.Code)
	assert.Contains(t, forged.Body.String(), "INVALID_STATE")
	assert.Equal(t, 0, h.tokenCalls)

	start := h.do(t, "GET", "/api/v1/integrations/acme/auth/start", "admin", "", nil)
	authURL, _ := url.Parse(start.Header().Get("Location"))
	rejected := h.do(t, "GET", "/api/v1/integrations/acme/auth/callback?code=bad&state="+url.QueryEscape(authURL.Query().Get("state")), "", "", nil)
	assert.Equal(t, http.StatusBadGateway, rejected.Code)
	assert.NotContains(t, rejected.Body.String(), "invalid_grant")

	conn, err := h.connections.GetByTenantAndProvider(ctx, "t1", h.provider.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionError, conn.Status)
}

func TestAuthStart_AccessControl(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusUnauthorized, h.do(t, "GET", "/api/v1/integrations/acme/auth/start", "", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(t, "GET", "/api/v1/integrations/acme/auth/start", "member", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, "GET", "/api/v1/integrations/nope/auth/start", "admin", "", nil).Code)

	h.setSettings(t, false, models.JSONMap{"oauthClientId": "cid", "oauthClientSecret": "cs"})
	disabled := h.do(t, "GET", "/api/v1/integrations/acme/auth/start", "admin", "", nil)
	assert.Equal(t, http.StatusForbidden, disabled.Code)
	assert.Contains(t, disabled.Body.String(), "PROVIDER_DISABLED")

	h.setSettings(t, true, models.JSONMap{})
	assert.Equal(t, http.StatusInternalServerError, h.do(t, "GET", "/api/v1/integrations/acme/auth/start", "admin", "", nil).Code)
}

func TestWebhook_IdempotentIngestion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	body := `{"type":"ContactCreate","id":"c1"}`
	headers := map[string]string{"X-Event-Type": "ContactCreate", "Authorization": "Bearer provider-token"}

	first := h.do(t, "POST", "/api/v1/integrations/acme/webhook", "", body, headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	var res1 map[string]any
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &res1))
	assert.Equal(t, true, res1["ok"])
	assert.Equal(t, false, res1["idempotent"])

	second := h.do(t, "POST", "/api/v1/integrations/acme/webhook", "", body, headers)
	require.Equal(t, http.StatusOK, second.Code)
	var res2 map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &res2))
	assert.Equal(t, true, res2["idempotent"])

	counts, err := h.queue.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.JobQueued])

	job, err := h.queue.ClaimNext(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobs.TypeWebhookProcess, job.JobType)
	assert.Equal(t, res1["event_id"], job.Payload["event_id"])

	event, err := h.webhooks.Get(ctx, res1["event_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "ContactCreate", *event.EventType)
	assert.Equal(t, "c1", event.Payload.String("id"))
	assert.NotContains(t, event.Headers, "authorization")
	assert.Equal(t, "ContactCreate", event.Headers.String("x-event-type"))
}

func TestWebhook_Signature(t *testing.T) {
	h := newHarness(t)
	h.setSettings(t, true, models.JSONMap{"webhookSecret": "whsec"})
	body := `{"id":"c1"}`

	bad := h.do(t, "POST", "/api/v1/integrations/acme/webhook", "", body, map[string]string{"X-Webhook-Signature": "00"})
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	good := h.do(t, "POST", "/api/v1/integrations/acme/webhook", "", body,
		map[string]string{"X-Webhook-Signature": webhooks.Sign("whsec", []byte(body))})
	assert.Equal(t, http.StatusOK, good.Code)
}

func TestWebhook_DisabledAndOversized(t *testing.T) {
	h := newHarness(t)

	big := h.do(t, "POST", "/api/v1/integrations/acme/webhook", "", strings.Repeat("x", 2048), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, big.Code)

	h.setSettings(t, false, nil)
	disabled := h.do(t, "POST", "/api/v1/integrations/acme/webhook", "", `{}`, nil)
	assert.Equal(t, http.StatusForbidden, disabled.Code)
}

func TestSyncAndDisconnect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	notConnected := h.do(t, "POST", "/api/v1/integrations/acme/sync", "member", "", nil)
	assert.Equal(t, http.StatusBadRequest, notConnected.Code)
	assert.Contains(t, notConnected.Body.String(), "NOT_CONNECTED")

	h.connect(t)

	queued := h.do(t, "POST", "/api/v1/integrations/acme/sync", "member", "", nil)
	require.Equal(t, http.StatusAccepted, queued.Code, queued.Body.String())
	var res map[string]any
	require.NoError(t, json.Unmarshal(queued.Body.Bytes(), &res))

	job, err := h.queue.Get(ctx, res["job_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, jobs.TypeContactsSync, job.JobType)
	require.NotNil(t, job.TenantID)
	assert.Equal(t, "t1", *job.TenantID)
	require.NotNil(t, job.ConnectionID)

	list := h.do(t, "GET", "/api/v1/integrations", "member", "", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), `"status":"connected"`)

	gone := h.do(t, "DELETE", "/api/v1/integrations/acme/connection", "owner", "", nil)
	require.Equal(t, http.StatusOK, gone.Code, gone.Body.String())

	conn, err := h.connections.GetByID(ctx, *job.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionDisconnected, conn.Status)
	require.NotNil(t, conn.CreatedBy)
	assert.Equal(t, "u1", *conn.CreatedBy)
	require.NotNil(t, conn.DisplayName)
	assert.Equal(t, "Acme CRM", *conn.DisplayName)

	secrets, err := h.connections.GetSecrets(ctx, conn.ID)
	require.NoError(t, err)
	assert.Nil(t, secrets)

	denied := h.do(t, "GET", "/api/v1/audit", "member", "", nil)
	assert.Equal(t, http.StatusForbidden, denied.Code)

	trail := h.do(t, "GET", "/api/v1/audit", "admin", "", nil)
	require.Equal(t, http.StatusOK, trail.Code, trail.Body.String())
	var body struct {
		Entries []models.AuditEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(trail.Body.Bytes(), &body))
	var actions []string
	for _, e := range body.Entries {
		actions = append(actions, e.Action)
		assert.Equal(t, "t1", e.TenantID)
		assert.Equal(t, conn.ID, e.ResourceID)
	}
	assert.ElementsMatch(t, []string{models.AuditConnected, models.AuditSyncRequested, models.AuditDisconnected}, actions)

	badLimit := h.do(t, "GET", "/api/v1/audit?limit=zero", "admin", "", nil)
	assert.Equal(t, http.StatusBadRequest, badLimit.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	health := h.do(t, "GET", "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, health.Code)
	assert.Contains(t, health.Body.String(), `"status":"healthy"`)

	h.do(t, "POST", "/api/v1/integrations/acme/webhook", "", `{}`, nil)
	m := h.do(t, "GET", "/metrics", "", "", nil)
	assert.Equal(t, http.StatusOK, m.Code)
	assert.Contains(t, m.Body.String(), "conduit_webhooks_ingested_total")
}
