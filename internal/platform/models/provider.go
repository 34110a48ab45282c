package models

import "strings"

type AuthType string

const (
	AuthTypeOAuth2      AuthType = "oauth2"
	AuthTypeAPIKey      AuthType = "api_key"
	AuthTypeWebhookOnly AuthType = "webhook_only"
)

type Provider struct {
	ID          string   `db:"id" json:"id"`
	Slug        string   `db:"slug" json:"slug"`
	Name        string   `db:"name" json:"name"`
	Category    string   `db:"category" json:"category"`
	Description *string  `db:"description" json:"description,omitempty"`
	IconSlug    *string  `db:"icon_slug" json:"icon_slug,omitempty"`
	AuthType    AuthType `db:"auth_type" json:"auth_type"`
	IsBeta      bool     `db:"is_beta" json:"is_beta"`
	CreatedAt   int64    `db:"created_at" json:"created_at"`
	UpdatedAt   int64    `db:"updated_at" json:"updated_at"`
}

// PlatformProviderSettings gates whether any tenant may connect a provider.
// Settings is operator-owned and opaque; OAuth reads the typed view below.
type PlatformProviderSettings struct {
	ProviderID string  `db:"provider_id" json:"provider_id"`
	Enabled    bool    `db:"enabled" json:"enabled"`
	Settings   JSONMap `db:"settings" json:"settings"`
	UpdatedAt  int64   `db:"updated_at" json:"updated_at"`
}

const DefaultOAuthScopes = "contacts.read"

type OAuthSettings struct {
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	Scopes        []string
	WebhookSecret string
}

// OAuth returns the typed OAuth view of the settings map.
func (s *PlatformProviderSettings) OAuth() OAuthSettings {
	scopes := strings.TrimSpace(s.Settings.String("oauthScopes"))
	if scopes == "" {
		scopes = DefaultOAuthScopes
	}

	return OAuthSettings{
		ClientID:      strings.TrimSpace(s.Settings.String("oauthClientId")),
		ClientSecret:  strings.TrimSpace(s.Settings.String("oauthClientSecret")),
		RedirectURI:   strings.TrimSpace(s.Settings.String("oauthRedirectUri")),
		Scopes:        strings.FieldsFunc(scopes, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' }),
		WebhookSecret: strings.TrimSpace(s.Settings.String("webhookSecret")),
	}
}

// String returns m[key] when it holds a string, and "" otherwise.
func (m JSONMap) String(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
