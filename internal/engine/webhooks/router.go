// Package webhooks records inbound provider events exactly once per
// idempotency key.
package webhooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"conduit/internal/platform/database"
	"conduit/internal/platform/models"
)

// Receipt is one inbound call, already keyed and sanitized.
type Receipt struct {
	ProviderID     string
	TenantID       *string
	ConnectionID   *string
	IdempotencyKey string
	EventType      *string
	Headers        map[string]any
	Payload        map[string]any
}

// IngestResult is Idempotent with no Event when the key was seen before.
type IngestResult struct {
	Idempotent bool
	Event      *models.WebhookEvent
}

type Router struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRouter(db *sqlx.DB) *Router {
	return &Router{db: db, now: time.Now}
}

// Ingest inserts the receipt as a received event. A duplicate key is a
// success; any other store error is returned.
func (r *Router) Ingest(ctx context.Context, in Receipt) (*IngestResult, error) {
	if in.IdempotencyKey == "" {
		return nil, fmt.Errorf("ingest webhook: idempotency key is required")
	}

	event := &models.WebhookEvent{
		ID:             models.NewID(models.PrefixEvent),
		ProviderID:     in.ProviderID,
		TenantID:       in.TenantID,
		ConnectionID:   in.ConnectionID,
		IdempotencyKey: in.IdempotencyKey,
		EventType:      in.EventType,
		Headers:        models.JSONMap(in.Headers),
		Payload:        models.JSONMap(in.Payload),
		Status:         models.WebhookReceived,
		CreatedAt:      r.now().Unix(),
	}
	event.UpdatedAt = event.CreatedAt
	if event.Headers == nil {
		event.Headers = models.JSONMap{}
	}
	if event.Payload == nil {
		event.Payload = models.JSONMap{}
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO integration_webhook_events (
			id, provider_id, tenant_id, connection_id, idempotency_key, event_type,
			headers, payload, status, created_at, updated_at
		) VALUES (
			:id, :provider_id, :tenant_id, :connection_id, :idempotency_key, :event_type,
			:headers, :payload, :status, :created_at, :updated_at
		)`, event)
	if database.IsUniqueViolation(err) {
		return &IngestResult{Idempotent: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ingest webhook for provider %s: %w", in.ProviderID, err)
	}

	return &IngestResult{Event: event}, nil
}

// Get returns nil, nil for an unknown id.
func (r *Router) Get(ctx context.Context, id string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	query := r.db.Rebind(`SELECT * FROM integration_webhook_events WHERE id = ?`)
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook event %s: %w", id, err)
	}
	return &event, nil
}

func (r *Router) MarkProcessed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.WebhookProcessed)
}

func (r *Router) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.WebhookFailed)
}

func (r *Router) setStatus(ctx context.Context, id string, status models.WebhookStatus) error {
	query := r.db.Rebind(`UPDATE integration_webhook_events SET status = ?, updated_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, status, r.now().Unix(), id); err != nil {
		return fmt.Errorf("mark webhook event %s %s: %w", id, status, err)
	}
	return nil
}
