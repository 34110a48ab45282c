package models

type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionPending      ConnectionStatus = "pending"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionError        ConnectionStatus = "error"
)

// Connection is a tenant's link to one provider, unique per (tenant, provider).
type Connection struct {
	ID          string           `db:"id" json:"id"`
	TenantID    string           `db:"tenant_id" json:"tenant_id"`
	ProviderID  string           `db:"provider_id" json:"provider_id"`
	Status      ConnectionStatus `db:"status" json:"status"`
	DisplayName *string          `db:"display_name" json:"display_name,omitempty"`
	Scopes      StringList       `db:"scopes" json:"scopes"`
	Metadata    JSONMap          `db:"metadata" json:"metadata"`
	LastSyncAt  *int64           `db:"last_sync_at" json:"last_sync_at,omitempty"`
	LastError   *string          `db:"last_error" json:"last_error,omitempty"`
	CreatedBy   *string          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   int64            `db:"created_at" json:"created_at"`
	UpdatedAt   int64            `db:"updated_at" json:"updated_at"`
}

// ConnectionSecret is the sealed form of a connection's credentials. All
// three fields are base64.
type ConnectionSecret struct {
	ConnectionID string `db:"connection_id"`
	Ciphertext   string `db:"secrets_ciphertext"`
	Nonce        string `db:"secrets_nonce"`
	Tag          string `db:"secrets_tag"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}
