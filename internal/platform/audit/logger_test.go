package audit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/platform/database/dbtest"
	"conduit/internal/platform/models"
)

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	l := NewLogger(dbtest.Open(t))

	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	req := httptest.NewRequest("DELETE", "/api/v1/integrations/gohighlevel/connection", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("User-Agent", "dashboard/1.0")

	require.NoError(t, l.Record(ctx, Entry{
		TenantID:     "tenant_1",
		UserID:       "user_1",
		Action:       models.AuditConnected,
		ResourceType: "connection",
		ResourceID:   "conn_1",
		Metadata:     map[string]any{"provider": "gohighlevel"},
	}))

	clock = clock.Add(time.Minute)
	l.Log(ctx, Entry{
		TenantID:     "tenant_1",
		UserID:       "user_1",
		Action:       models.AuditDisconnected,
		ResourceType: "connection",
		ResourceID:   "conn_1",
		Request:      req,
	})
	l.Log(ctx, Entry{TenantID: "tenant_2", Action: models.AuditSyncRequested, ResourceType: "connection", ResourceID: "conn_9"})

	entries, err := l.List(ctx, "tenant_1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	latest := entries[0]
	assert.Equal(t, models.AuditDisconnected, latest.Action)
	require.NotNil(t, latest.IPAddress)
	assert.Equal(t, "203.0.113.7", *latest.IPAddress)
	require.NotNil(t, latest.UserAgent)
	assert.Equal(t, "dashboard/1.0", *latest.UserAgent)
	assert.Equal(t, models.JSONMap{}, latest.Metadata)

	first := entries[1]
	assert.Equal(t, models.AuditConnected, first.Action)
	assert.Equal(t, "gohighlevel", first.Metadata["provider"])
	require.NotNil(t, first.UserID)
	assert.Equal(t, "user_1", *first.UserID)
	assert.Nil(t, first.IPAddress)
	assert.Equal(t, clock.Add(-time.Minute).Unix(), first.CreatedAt)
}

func TestRecord_RequiresTenantAndAction(t *testing.T) {
	l := NewLogger(dbtest.Open(t))
	assert.Error(t, l.Record(context.Background(), Entry{Action: models.AuditConnected}))
	assert.Error(t, l.Record(context.Background(), Entry{TenantID: "tenant_1"}))
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Log(context.Background(), Entry{TenantID: "tenant_1", Action: models.AuditConnected})
	})
}
