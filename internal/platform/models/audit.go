package models

// Audit actions recorded for integration changes.
const (
	AuditConnected     = "integration.connected"
	AuditConnectFailed = "integration.connect_failed"
	AuditDisconnected  = "integration.disconnected"
	AuditSyncRequested = "integration.sync_requested"
)

type AuditEntry struct {
	ID           string  `db:"id" json:"id"`
	TenantID     string  `db:"tenant_id" json:"tenant_id"`
	UserID       *string `db:"user_id" json:"user_id,omitempty"`
	Action       string  `db:"action" json:"action"`
	ResourceType string  `db:"resource_type" json:"resource_type"`
	ResourceID   string  `db:"resource_id" json:"resource_id"`
	Metadata     JSONMap `db:"metadata" json:"metadata"`
	IPAddress    *string `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent    *string `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt    int64   `db:"created_at" json:"created_at"`
}
