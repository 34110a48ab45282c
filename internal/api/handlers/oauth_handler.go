package handlers

import (
	stderrors "errors"
	"net/http"

	"conduit/internal/api/middleware"
	"conduit/internal/engine/connections"
	"conduit/internal/engine/oauth"
	"conduit/internal/engine/state"
	"conduit/internal/pkg/errors"
	"conduit/internal/pkg/metrics"
	"conduit/internal/platform/audit"
	"conduit/internal/platform/models"
)

// AuthStart records a pending connection and redirects to the provider's
// consent screen.
func (h *IntegrationHandler) AuthStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := middleware.TenantFrom(ctx)

	pc := h.resolveProvider(ctx, w, r)
	if pc == nil {
		return
	}

	settings := pc.settings.OAuth()
	if settings.ClientID == "" || settings.ClientSecret == "" {
		h.log.Error().Str("provider", pc.provider.Slug).Msg("oauth client id or secret missing from platform settings")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal,
			pc.provider.Name+" OAuth is not configured.", nil)
		return
	}
	cfg := pc.connector.OAuthConfig(settings, h.callbackURL(r, pc.provider.Slug))

	nonce, err := state.NewNonce()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to generate nonce")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to start authorization", nil)
		return
	}

	token, err := h.signer.Create(tenant.TenantID, tenant.UserID, safeReturnTo(r.URL.Query().Get("returnTo")), nonce)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to sign state")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to start authorization", nil)
		return
	}

	userID := tenant.UserID
	_, err = h.connections.Upsert(ctx, connections.UpsertInput{
		TenantID:   tenant.TenantID,
		ProviderID: pc.provider.ID,
		Status:     models.ConnectionPending,
		Scopes:     cfg.Scopes,
		Metadata:   map[string]any{},
		CreatedBy:  &userID,
	})
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", tenant.TenantID).Str("provider", pc.provider.Slug).Msg("failed to record pending connection")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to start authorization", nil)
		return
	}

	http.Redirect(w, r, h.oauth.AuthorizationURL(cfg, token), http.StatusFound)
}

// AuthCallback completes the authorization code flow. The tenant comes from
// the signed state, not from a session.
func (h *IntegrationHandler) AuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	code, rawState := q.Get("code"), q.Get("state")
	if code == "" || rawState == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Missing code or state", nil)
		return
	}

	st, err := h.signer.Parse(rawState)
	if err != nil {
		h.log.Warn().Err(err).Msg("rejected oauth state")
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidState, "Invalid or expired authorization state", nil)
		return
	}

	pc := h.resolveProvider(ctx, w, r)
	if pc == nil {
		return
	}
	log := h.log.With().Str("tenant_id", st.TenantID).Str("provider", pc.provider.Slug).Logger()

	settings := pc.settings.OAuth()
	if settings.ClientID == "" || settings.ClientSecret == "" {
		log.Error().Msg("oauth client id or secret missing from platform settings")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal,
			pc.provider.Name+" OAuth is not configured.", nil)
		return
	}
	cfg := pc.connector.OAuthConfig(settings, h.callbackURL(r, pc.provider.Slug))

	tokens, err := h.oauth.ExchangeCode(ctx, cfg, code)
	if err != nil {
		status := "error"
		var perr *oauth.ProviderError
		if stderrors.As(err, &perr) {
			status = "rejected"
		}
		metrics.TokenRequestsTotal.WithLabelValues(pc.provider.Slug, "authorization_code", status).Inc()
		log.Error().Err(err).Msg("token exchange failed")

		msg := "token exchange failed"
		createdBy := st.UserID
		failed, uerr := h.connections.Upsert(ctx, connections.UpsertInput{
			TenantID:   st.TenantID,
			ProviderID: pc.provider.ID,
			Status:     models.ConnectionError,
			Scopes:     cfg.Scopes,
			CreatedBy:  &createdBy,
			LastError:  &msg,
		})
		if uerr != nil {
			log.Error().Err(uerr).Msg("failed to record connection error")
		} else {
			h.audit.Log(ctx, audit.Entry{
				TenantID:     st.TenantID,
				UserID:       st.UserID,
				Action:       models.AuditConnectFailed,
				ResourceType: "connection",
				ResourceID:   failed.ID,
				Metadata:     map[string]any{"provider": pc.provider.Slug},
				Request:      r,
			})
		}
		errors.WriteError(w, http.StatusBadGateway, errors.ErrCodeConnectionFailed, "Connection failed", nil)
		return
	}
	metrics.TokenRequestsTotal.WithLabelValues(pc.provider.Slug, "authorization_code", "ok").Inc()

	displayName := pc.provider.Name
	createdBy := st.UserID
	metadata := map[string]any{"provider": pc.provider.Slug}
	if tokens.LocationID != "" {
		metadata["location_id"] = tokens.LocationID
	}
	if tokens.CompanyID != "" {
		metadata["company_id"] = tokens.CompanyID
	}

	conn, err := h.connections.Upsert(ctx, connections.UpsertInput{
		TenantID:    st.TenantID,
		ProviderID:  pc.provider.ID,
		Status:      models.ConnectionConnected,
		DisplayName: &displayName,
		Scopes:      cfg.Scopes,
		Metadata:    metadata,
		CreatedBy:   &createdBy,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to store connection")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeConnectionFailed, "Connection failed", nil)
		return
	}

	if err := h.connections.SetSecrets(ctx, conn.ID, tokens.Secrets(h.now())); err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to store connection secrets")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeConnectionFailed, "Connection failed", nil)
		return
	}

	h.audit.Log(ctx, audit.Entry{
		TenantID:     st.TenantID,
		UserID:       st.UserID,
		Action:       models.AuditConnected,
		ResourceType: "connection",
		ResourceID:   conn.ID,
		Metadata:     metadata,
		Request:      r,
	})
	log.Info().Str("connection_id", conn.ID).Msg("connection established")
	http.Redirect(w, r, h.origin(r)+safeReturnTo(st.ReturnTo), http.StatusFound)
}
