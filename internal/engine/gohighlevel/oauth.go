package gohighlevel

import (
	"conduit/internal/engine/oauth"
	"conduit/internal/platform/models"
)

// OAuthConfig builds the token client configuration from the platform
// settings. fallbackRedirect is used when the operator left
// oauthRedirectUri empty.
func OAuthConfig(settings models.OAuthSettings, fallbackRedirect string) oauth.Config {
	redirect := settings.RedirectURI
	if redirect == "" {
		redirect = fallbackRedirect
	}
	return oauth.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		RedirectURI:  redirect,
		Scopes:       settings.Scopes,
		AuthorizeURL: AuthorizeURL,
		TokenURL:     TokenURL,
	}
}

// Provider is the catalog entry installed by conduitctl.
func Provider() models.Provider {
	description := "Sync contacts and receive events from GoHighLevel sub-accounts."
	icon := "gohighlevel"
	return models.Provider{
		Slug:        Slug,
		Name:        "GoHighLevel",
		Category:    "crm",
		Description: &description,
		IconSlug:    &icon,
		AuthType:    models.AuthTypeOAuth2,
		IsBeta:      true,
	}
}
