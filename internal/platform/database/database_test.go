package database_test

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/platform/database"
	"conduit/internal/platform/database/dbtest"
)

func TestMigrateUp_CreatesSchema(t *testing.T) {
	db := dbtest.Open(t)

	for _, table := range []string{
		"integration_providers",
		"platform_integration_settings",
		"integration_connections",
		"integration_connection_secrets",
		"integration_webhook_events",
		"integration_jobs",
		"integration_audit_log",
	} {
		var name string
		err := db.Get(&name, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		require.NoError(t, err, table)
	}

	version, dirty, err := database.Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// A second run is a no-op.
	require.NoError(t, database.MigrateUp(db))
}

func TestIsUniqueViolation(t *testing.T) {
	db := dbtest.Open(t)

	insert := `INSERT INTO integration_webhook_events (id, provider_id, idempotency_key, created_at, updated_at) VALUES (?, 'prov_1', 'same-key', 0, 0)`
	_, err := db.Exec(insert, "evt_1")
	require.NoError(t, err)

	_, err = db.Exec(insert, "evt_2")
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	assert.True(t, database.IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, database.IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, database.IsUniqueViolation(errors.New("duplicate key value")))
	assert.False(t, database.IsUniqueViolation(nil))
}
