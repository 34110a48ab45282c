package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/platform/database/dbtest"
	"conduit/internal/platform/models"
)

func TestCache_ServesWithinTTL(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(dbtest.Open(t))
	p, err := r.Install(ctx, models.Provider{Slug: "gohighlevel", Name: "GoHighLevel", Category: "crm"})
	require.NoError(t, err)
	require.NoError(t, r.SetPlatformSettings(ctx, models.PlatformProviderSettings{ProviderID: p.ID, Enabled: true}))

	c := NewCache(r, time.Minute)
	clock := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	got, err := c.Lookup(ctx, "gohighlevel")
	require.NoError(t, err)
	require.NotNil(t, got.Settings)
	assert.True(t, got.Settings.Enabled)

	require.NoError(t, r.SetPlatformSettings(ctx, models.PlatformProviderSettings{ProviderID: p.ID, Enabled: false}))

	got, err = c.Lookup(ctx, "gohighlevel")
	require.NoError(t, err)
	assert.True(t, got.Settings.Enabled, "cached copy")

	clock = clock.Add(2 * time.Minute)
	got, err = c.Lookup(ctx, "gohighlevel")
	require.NoError(t, err)
	assert.False(t, got.Settings.Enabled, "expired entry reloaded")

	require.NoError(t, r.SetPlatformSettings(ctx, models.PlatformProviderSettings{ProviderID: p.ID, Enabled: true}))
	c.Invalidate("gohighlevel")
	got, err = c.Lookup(ctx, "gohighlevel")
	require.NoError(t, err)
	assert.True(t, got.Settings.Enabled)
}

func TestCache_MissingAndDisabledTTL(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(dbtest.Open(t))
	c := NewCache(r, 0)

	got, err := c.Lookup(ctx, "hubspot")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = r.Install(ctx, models.Provider{Slug: "hubspot", Name: "HubSpot", Category: "crm"})
	require.NoError(t, err)

	got, err = c.Lookup(ctx, "hubspot")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Settings)
}
