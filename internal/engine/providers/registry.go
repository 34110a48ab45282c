// Package providers is the catalog of integrations and the platform owner's
// per-provider switch and settings.
package providers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"conduit/internal/platform/models"
)

const providerColumns = `id, slug, name, category, description, icon_slug, auth_type, is_beta, created_at, updated_at`

type Registry struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRegistry(db *sqlx.DB) *Registry {
	return &Registry{db: db, now: time.Now}
}

// GetBySlug returns nil, nil for an unknown slug.
func (r *Registry) GetBySlug(ctx context.Context, slug string) (*models.Provider, error) {
	var p models.Provider
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT `+providerColumns+` FROM integration_providers WHERE slug = ?`), slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get provider %s: %w", slug, err)
	}
	return &p, nil
}

func (r *Registry) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	var p models.Provider
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT `+providerColumns+` FROM integration_providers WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get provider %s: %w", id, err)
	}
	return &p, nil
}

func (r *Registry) List(ctx context.Context) ([]models.Provider, error) {
	out := []models.Provider{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+providerColumns+` FROM integration_providers ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return out, nil
}

// GetPlatformSettings returns nil, nil when the operator has never configured
// the provider.
func (r *Registry) GetPlatformSettings(ctx context.Context, providerID string) (*models.PlatformProviderSettings, error) {
	var s models.PlatformProviderSettings
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`
		SELECT provider_id, enabled, settings, updated_at
		FROM platform_integration_settings WHERE provider_id = ?`), providerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get platform settings for %s: %w", providerID, err)
	}
	return &s, nil
}

// IsEnabled is false when no settings row exists.
func (r *Registry) IsEnabled(ctx context.Context, providerID string) (bool, error) {
	s, err := r.GetPlatformSettings(ctx, providerID)
	if err != nil {
		return false, err
	}
	return s != nil && s.Enabled, nil
}

// Install adds p to the catalog, or refreshes its descriptive fields when the
// slug already exists. The stored row is returned.
func (r *Registry) Install(ctx context.Context, p models.Provider) (*models.Provider, error) {
	if p.Slug == "" || p.Name == "" {
		return nil, errors.New("install provider: slug and name are required")
	}
	if p.ID == "" {
		p.ID = models.NewID(models.PrefixProvider)
	}
	if p.AuthType == "" {
		p.AuthType = models.AuthTypeOAuth2
	}
	now := r.now().Unix()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO integration_providers (
			id, slug, name, category, description, icon_slug, auth_type, is_beta, created_at, updated_at
		) VALUES (
			:id, :slug, :name, :category, :description, :icon_slug, :auth_type, :is_beta, :created_at, :updated_at
		)
		ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			description = excluded.description,
			icon_slug = excluded.icon_slug,
			auth_type = excluded.auth_type,
			is_beta = excluded.is_beta,
			updated_at = excluded.updated_at`, &p)
	if err != nil {
		return nil, fmt.Errorf("install provider %s: %w", p.Slug, err)
	}

	return r.GetBySlug(ctx, p.Slug)
}

// SetPlatformSettings replaces the operator settings for a provider.
func (r *Registry) SetPlatformSettings(ctx context.Context, s models.PlatformProviderSettings) error {
	if s.Settings == nil {
		s.Settings = models.JSONMap{}
	}
	s.UpdatedAt = r.now().Unix()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO platform_integration_settings (provider_id, enabled, settings, updated_at)
		VALUES (:provider_id, :enabled, :settings, :updated_at)
		ON CONFLICT (provider_id) DO UPDATE SET
			enabled = excluded.enabled,
			settings = excluded.settings,
			updated_at = excluded.updated_at`, &s)
	if err != nil {
		return fmt.Errorf("set platform settings for %s: %w", s.ProviderID, err)
	}
	return nil
}
