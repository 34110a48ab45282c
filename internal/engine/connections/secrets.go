package connections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"conduit/internal/engine/vault"
	"conduit/internal/platform/models"
)

// SetSecrets seals secrets and replaces whatever the connection had before.
func (s *Store) SetSecrets(ctx context.Context, connectionID string, secrets vault.Secrets) error {
	sealed, err := s.vault.Encrypt(secrets)
	if err != nil {
		return fmt.Errorf("seal secrets for connection %s: %w", connectionID, err)
	}

	now := s.now().Unix()
	query := s.db.Rebind(`
		INSERT INTO integration_connection_secrets (
			connection_id, secrets_ciphertext, secrets_nonce, secrets_tag, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (connection_id) DO UPDATE SET
			secrets_ciphertext = excluded.secrets_ciphertext,
			secrets_nonce = excluded.secrets_nonce,
			secrets_tag = excluded.secrets_tag,
			updated_at = excluded.updated_at
	`)

	_, err = s.db.ExecContext(ctx, query, connectionID, sealed.Ciphertext, sealed.Nonce, sealed.Tag, now, now)
	if err != nil {
		return fmt.Errorf("store secrets for connection %s: %w", connectionID, err)
	}
	return nil
}

// GetSecrets returns nil, nil when nothing is stored. A record that fails to
// open returns vault.ErrDecryptionFailed unwrapped.
func (s *Store) GetSecrets(ctx context.Context, connectionID string) (vault.Secrets, error) {
	query := s.db.Rebind(`SELECT connection_id, secrets_ciphertext, secrets_nonce, secrets_tag, created_at, updated_at
		FROM integration_connection_secrets WHERE connection_id = ?`)

	var row models.ConnectionSecret
	err := s.db.GetContext(ctx, &row, query, connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get secrets for connection %s: %w", connectionID, err)
	}

	return s.vault.Decrypt(&vault.Sealed{
		Ciphertext: row.Ciphertext,
		Nonce:      row.Nonce,
		Tag:        row.Tag,
	})
}

func (s *Store) DeleteSecrets(ctx context.Context, connectionID string) error {
	query := s.db.Rebind(`DELETE FROM integration_connection_secrets WHERE connection_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, connectionID); err != nil {
		return fmt.Errorf("delete secrets for connection %s: %w", connectionID, err)
	}
	return nil
}
