package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/platform/database/dbtest"
	"conduit/internal/platform/models"
)

func TestInstallAndLookup(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(dbtest.Open(t))

	missing, err := r.GetBySlug(ctx, "gohighlevel")
	require.NoError(t, err)
	assert.Nil(t, missing)

	installed, err := r.Install(ctx, models.Provider{Slug: "gohighlevel", Name: "GoHighLevel", Category: "crm"})
	require.NoError(t, err)
	assert.Equal(t, models.AuthTypeOAuth2, installed.AuthType)
	assert.Contains(t, installed.ID, models.PrefixProvider)

	again, err := r.Install(ctx, models.Provider{Slug: "gohighlevel", Name: "HighLevel", Category: "crm", IsBeta: true})
	require.NoError(t, err)
	assert.Equal(t, installed.ID, again.ID)

	byID, err := r.GetByID(ctx, installed.ID)
	require.NoError(t, err)
	assert.Equal(t, "gohighlevel", byID.Slug)
	assert.Equal(t, "HighLevel", again.Name)
	assert.True(t, again.IsBeta)
}

func TestList_OrderedByCategoryThenName(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(dbtest.Open(t))

	for _, p := range []models.Provider{
		{Slug: "stripe", Name: "Stripe", Category: "payments"},
		{Slug: "hubspot", Name: "HubSpot", Category: "crm"},
		{Slug: "gohighlevel", Name: "GoHighLevel", Category: "crm"},
	} {
		_, err := r.Install(ctx, p)
		require.NoError(t, err)
	}

	list, err := r.List(ctx)
	require.NoError(t, err)

	var slugs []string
	for _, p := range list {
		slugs = append(slugs, p.Slug)
	}
	assert.Equal(t, []string{"gohighlevel", "hubspot", "stripe"}, slugs)
}

func TestPlatformSettingsAndEnabled(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(dbtest.Open(t))

	p, err := r.Install(ctx, models.Provider{Slug: "gohighlevel", Name: "GoHighLevel", Category: "crm"})
	require.NoError(t, err)

	enabled, err := r.IsEnabled(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, enabled)

	settings, err := r.GetPlatformSettings(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, settings)

	require.NoError(t, r.SetPlatformSettings(ctx, models.PlatformProviderSettings{
		ProviderID: p.ID,
		Enabled:    true,
		Settings:   models.JSONMap{"oauthClientId": "cid", "oauthScopes": "contacts.read, contacts.write"},
	}))

	enabled, err = r.IsEnabled(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, enabled)

	settings, err = r.GetPlatformSettings(ctx, p.ID)
	require.NoError(t, err)
	oauth := settings.OAuth()
	assert.Equal(t, "cid", oauth.ClientID)
	assert.Equal(t, []string{"contacts.read", "contacts.write"}, oauth.Scopes)

	require.NoError(t, r.SetPlatformSettings(ctx, models.PlatformProviderSettings{ProviderID: p.ID, Enabled: false}))
	enabled, err = r.IsEnabled(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, enabled)
}
