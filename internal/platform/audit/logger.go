// Package audit keeps the per-tenant trail of integration changes.
package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"conduit/internal/pkg/logger"
	"conduit/internal/platform/models"
)

const DefaultListLimit = 100

// Entry is one change to record. Request, when set, supplies the client
// address and user agent.
type Entry struct {
	TenantID     string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	Request      *http.Request
}

type Logger struct {
	db  *sqlx.DB
	log zerolog.Logger
	now func() time.Time
}

func NewLogger(db *sqlx.DB) *Logger {
	return &Logger{db: db, log: logger.Component("audit"), now: time.Now}
}

// Log writes the entry. Failures are logged and never reach the caller; a
// nil Logger records nothing.
func (l *Logger) Log(ctx context.Context, e Entry) {
	if l == nil {
		return
	}
	if err := l.Record(context.WithoutCancel(ctx), e); err != nil {
		l.log.Error().Err(err).Str("action", e.Action).Str("tenant_id", e.TenantID).Msg("failed to write audit entry")
	}
}

func (l *Logger) Record(ctx context.Context, e Entry) error {
	if e.TenantID == "" || e.Action == "" {
		return fmt.Errorf("audit entry needs tenant and action")
	}

	row := models.AuditEntry{
		ID:           models.NewID(models.PrefixAudit),
		TenantID:     e.TenantID,
		UserID:       optional(e.UserID),
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Metadata:     models.JSONMap(e.Metadata),
		CreatedAt:    l.now().Unix(),
	}
	if row.Metadata == nil {
		row.Metadata = models.JSONMap{}
	}
	if e.Request != nil {
		row.IPAddress = optional(clientIP(e.Request))
		row.UserAgent = optional(e.Request.UserAgent())
	}

	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO integration_audit_log (
			id, tenant_id, user_id, action, resource_type, resource_id,
			metadata, ip_address, user_agent, created_at
		) VALUES (
			:id, :tenant_id, :user_id, :action, :resource_type, :resource_id,
			:metadata, :ip_address, :user_agent, :created_at
		)`, row)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns a tenant's most recent entries, newest first.
func (l *Logger) List(ctx context.Context, tenantID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}

	entries := []models.AuditEntry{}
	err := l.db.SelectContext(ctx, &entries, l.db.Rebind(`
		SELECT id, tenant_id, user_id, action, resource_type, resource_id,
			metadata, ip_address, user_agent, created_at
		FROM integration_audit_log
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`), tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries for tenant %s: %w", tenantID, err)
	}
	return entries, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
