package models

type WebhookStatus string

const (
	WebhookReceived  WebhookStatus = "received"
	WebhookProcessed WebhookStatus = "processed"
	WebhookFailed    WebhookStatus = "failed"
)

// WebhookEvent is the append-only record of one inbound provider call.
type WebhookEvent struct {
	ID             string        `db:"id" json:"id"`
	ProviderID     string        `db:"provider_id" json:"provider_id"`
	TenantID       *string       `db:"tenant_id" json:"tenant_id,omitempty"`
	ConnectionID   *string       `db:"connection_id" json:"connection_id,omitempty"`
	IdempotencyKey string        `db:"idempotency_key" json:"idempotency_key"`
	EventType      *string       `db:"event_type" json:"event_type,omitempty"`
	Headers        JSONMap       `db:"headers" json:"headers"`
	Payload        JSONMap       `db:"payload" json:"payload"`
	Status         WebhookStatus `db:"status" json:"status"`
	CreatedAt      int64         `db:"created_at" json:"created_at"`
	UpdatedAt      int64         `db:"updated_at" json:"updated_at"`
}
