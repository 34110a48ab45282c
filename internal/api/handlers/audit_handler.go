package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"conduit/internal/api/middleware"
	"conduit/internal/pkg/errors"
	"conduit/internal/pkg/logger"
	"conduit/internal/platform/audit"
)

type AuditHandler struct {
	audit *audit.Logger
	log   zerolog.Logger
}

func NewAuditHandler(l *audit.Logger) *AuditHandler {
	return &AuditHandler{audit: l, log: logger.Component("api")}
}

// List returns the tenant's recent integration changes, newest first.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant, _ := middleware.TenantFrom(r.Context())

	limit := audit.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	entries, err := h.audit.List(r.Context(), tenant.TenantID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("tenant_id", tenant.TenantID).Msg("failed to list audit entries")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list audit entries", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
