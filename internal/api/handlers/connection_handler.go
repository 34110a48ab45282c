package handlers

import (
	"net/http"

	"conduit/internal/api/middleware"
	"conduit/internal/engine/connections"
	"conduit/internal/engine/jobs"
	"conduit/internal/pkg/errors"
	"conduit/internal/platform/audit"
	"conduit/internal/platform/models"
)

// Sync queues a contacts sync for the tenant's connected connection.
func (h *IntegrationHandler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := middleware.TenantFrom(ctx)

	pc := h.resolveProvider(ctx, w, r)
	if pc == nil {
		return
	}

	conn, err := h.connections.GetByTenantAndProvider(ctx, tenant.TenantID, pc.provider.ID)
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", tenant.TenantID).Msg("failed to load connection")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load connection", nil)
		return
	}
	if conn == nil || conn.Status != models.ConnectionConnected {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeNotConnected,
			pc.provider.Name+" is not connected for this tenant.", nil)
		return
	}

	tenantID, connID := tenant.TenantID, conn.ID
	job, err := h.queue.Enqueue(ctx, jobs.EnqueueInput{
		ProviderID:   pc.provider.ID,
		TenantID:     &tenantID,
		ConnectionID: &connID,
		JobType:      jobs.TypeContactsSync,
		Payload:      map[string]any{"requested_by": tenant.UserID},
	})
	if err != nil {
		h.log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to enqueue sync")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to queue sync", nil)
		return
	}

	h.audit.Log(ctx, audit.Entry{
		TenantID:     tenant.TenantID,
		UserID:       tenant.UserID,
		Action:       models.AuditSyncRequested,
		ResourceType: "connection",
		ResourceID:   conn.ID,
		Metadata:     map[string]any{"provider": pc.provider.Slug, "job_id": job.ID},
		Request:      r,
	})
	errors.WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true, "job_id": job.ID})
}

// Disconnect drops the stored credentials and marks the connection
// disconnected. The row itself is kept.
func (h *IntegrationHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := middleware.TenantFrom(ctx)

	slug := param(r, "provider")
	provider, err := h.registry.GetBySlug(ctx, slug)
	if err != nil {
		h.log.Error().Err(err).Str("provider", slug).Msg("failed to load provider")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load provider", nil)
		return
	}
	if provider == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Unknown provider", nil)
		return
	}

	conn, err := h.connections.GetByTenantAndProvider(ctx, tenant.TenantID, provider.ID)
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", tenant.TenantID).Msg("failed to load connection")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load connection", nil)
		return
	}
	if conn == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotConnected, "Not connected", nil)
		return
	}

	if err := h.connections.DeleteSecrets(ctx, conn.ID); err != nil {
		h.log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to delete secrets")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to disconnect", nil)
		return
	}

	updated, err := h.connections.Upsert(ctx, connections.UpsertInput{
		TenantID:    tenant.TenantID,
		ProviderID:  provider.ID,
		Status:      models.ConnectionDisconnected,
		DisplayName: conn.DisplayName,
		Scopes:      conn.Scopes,
		Metadata:    conn.Metadata,
		CreatedBy:   conn.CreatedBy,
		LastSyncAt:  conn.LastSyncAt,
	})
	if err != nil {
		h.log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to mark disconnected")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to disconnect", nil)
		return
	}

	h.audit.Log(ctx, audit.Entry{
		TenantID:     tenant.TenantID,
		UserID:       tenant.UserID,
		Action:       models.AuditDisconnected,
		ResourceType: "connection",
		ResourceID:   conn.ID,
		Metadata:     map[string]any{"provider": slug},
		Request:      r,
	})
	h.log.Info().Str("tenant_id", tenant.TenantID).Str("provider", slug).Msg("connection disconnected")
	errors.WriteJSON(w, http.StatusOK, updated)
}

type integrationView struct {
	Provider   models.Provider    `json:"provider"`
	Enabled    bool               `json:"enabled"`
	Connection *models.Connection `json:"connection"`
}

// List returns the catalog with the platform switch and this tenant's
// connection for each provider.
func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, _ := middleware.TenantFrom(ctx)

	catalog, err := h.registry.List(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list providers")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list integrations", nil)
		return
	}

	conns, err := h.connections.ListByTenant(ctx, tenant.TenantID)
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", tenant.TenantID).Msg("failed to list connections")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list integrations", nil)
		return
	}
	byProvider := make(map[string]*models.Connection, len(conns))
	for i := range conns {
		byProvider[conns[i].ProviderID] = &conns[i]
	}

	out := make([]integrationView, 0, len(catalog))
	for _, p := range catalog {
		enabled, err := h.registry.IsEnabled(ctx, p.ID)
		if err != nil {
			h.log.Error().Err(err).Str("provider", p.Slug).Msg("failed to read platform settings")
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list integrations", nil)
			return
		}
		out = append(out, integrationView{Provider: p, Enabled: enabled, Connection: byProvider[p.ID]})
	}

	errors.WriteJSON(w, http.StatusOK, map[string]any{"integrations": out})
}
