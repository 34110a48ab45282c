// Package connections persists tenant connections and their sealed secrets.
package connections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"conduit/internal/engine/vault"
	"conduit/internal/platform/models"
)

const connectionColumns = `id, tenant_id, provider_id, status, display_name, scopes, metadata,
	last_sync_at, last_error, created_by, created_at, updated_at`

type Store struct {
	db    *sqlx.DB
	vault *vault.Vault
	now   func() time.Time
}

func NewStore(db *sqlx.DB, v *vault.Vault) *Store {
	return &Store{db: db, vault: v, now: time.Now}
}

// UpsertInput replaces every field of an existing row, nil ones included.
// Callers that want to keep a stored value read the row and pass it back.
type UpsertInput struct {
	TenantID    string
	ProviderID  string
	Status      models.ConnectionStatus
	DisplayName *string
	Scopes      []string
	Metadata    map[string]any
	CreatedBy   *string
	LastError   *string
	LastSyncAt  *int64
}

// GetByTenantAndProvider returns nil, nil when the tenant has no connection
// to the provider.
func (s *Store) GetByTenantAndProvider(ctx context.Context, tenantID, providerID string) (*models.Connection, error) {
	query := s.db.Rebind(`SELECT ` + connectionColumns + `
		FROM integration_connections WHERE tenant_id = ? AND provider_id = ?`)

	var conn models.Connection
	err := s.db.GetContext(ctx, &conn, query, tenantID, providerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get connection for tenant %s: %w", tenantID, err)
	}
	return &conn, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	query := s.db.Rebind(`SELECT ` + connectionColumns + ` FROM integration_connections WHERE id = ?`)

	var conn models.Connection
	err := s.db.GetContext(ctx, &conn, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get connection %s: %w", id, err)
	}
	return &conn, nil
}

func (s *Store) ListByTenant(ctx context.Context, tenantID string) ([]models.Connection, error) {
	query := s.db.Rebind(`SELECT ` + connectionColumns + `
		FROM integration_connections WHERE tenant_id = ? ORDER BY created_at, id`)

	conns := []models.Connection{}
	if err := s.db.SelectContext(ctx, &conns, query, tenantID); err != nil {
		return nil, fmt.Errorf("list connections for tenant %s: %w", tenantID, err)
	}
	return conns, nil
}

// Upsert inserts or updates the single (tenant, provider) row and returns it.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) (*models.Connection, error) {
	if in.TenantID == "" || in.ProviderID == "" {
		return nil, errors.New("upsert connection: tenant and provider are required")
	}
	if in.Status == "" {
		in.Status = models.ConnectionPending
	}

	now := s.now().Unix()
	query := s.db.Rebind(`
		INSERT INTO integration_connections (
			id, tenant_id, provider_id, status, display_name, scopes, metadata,
			last_sync_at, last_error, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, provider_id) DO UPDATE SET
			status = excluded.status,
			display_name = excluded.display_name,
			scopes = excluded.scopes,
			metadata = excluded.metadata,
			last_sync_at = excluded.last_sync_at,
			last_error = excluded.last_error,
			created_by = excluded.created_by,
			updated_at = excluded.updated_at
	`)

	_, err := s.db.ExecContext(ctx, query,
		models.NewID(models.PrefixConnection),
		in.TenantID,
		in.ProviderID,
		in.Status,
		in.DisplayName,
		models.StringList(in.Scopes),
		models.JSONMap(in.Metadata),
		in.LastSyncAt,
		in.LastError,
		in.CreatedBy,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert connection for tenant %s: %w", in.TenantID, err)
	}

	conn, err := s.GetByTenantAndProvider(ctx, in.TenantID, in.ProviderID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("upsert connection for tenant %s: row not found after write", in.TenantID)
	}
	return conn, nil
}

// MarkSynced records a successful sync and clears any previous error.
func (s *Store) MarkSynced(ctx context.Context, id string, at time.Time) error {
	query := s.db.Rebind(`UPDATE integration_connections
		SET status = ?, last_sync_at = ?, last_error = NULL, updated_at = ? WHERE id = ?`)

	if _, err := s.db.ExecContext(ctx, query, models.ConnectionConnected, at.Unix(), s.now().Unix(), id); err != nil {
		return fmt.Errorf("mark connection %s synced: %w", id, err)
	}
	return nil
}

func (s *Store) MarkError(ctx context.Context, id, message string) error {
	query := s.db.Rebind(`UPDATE integration_connections
		SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`)

	if _, err := s.db.ExecContext(ctx, query, models.ConnectionError, message, s.now().Unix(), id); err != nil {
		return fmt.Errorf("mark connection %s errored: %w", id, err)
	}
	return nil
}
