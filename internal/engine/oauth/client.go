// Package oauth performs the authorization-code and refresh-token grants
// against a provider's token endpoint.
package oauth

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"conduit/internal/engine/vault"
)

// Config is one provider's client registration plus its endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	AuthorizeURL string
	TokenURL     string
}

func (cfg Config) oauth2() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthorizeURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// TokenSet is the token endpoint response. LocationID and CompanyID are
// GoHighLevel extensions and empty elsewhere.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    *int64
	Scope        string
	LocationID   string
	CompanyID    string
}

func newTokenSet(tok *oauth2.Token) *TokenSet {
	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    expiresIn(tok.Extra("expires_in")),
		Scope:        extraString(tok, "scope"),
		LocationID:   extraString(tok, "locationId"),
		CompanyID:    extraString(tok, "companyId"),
	}
}

// Secrets converts the token set to the stored secrets layout.
func (t *TokenSet) Secrets(now time.Time) vault.Secrets {
	o := vault.OAuthSecrets{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Scope:        t.Scope,
	}
	if t.ExpiresIn != nil {
		o.ExpiresAt = now.Add(time.Duration(*t.ExpiresIn) * time.Second).UTC().Format(time.RFC3339)
	}

	s := vault.Secrets{}.WithOAuth(o)
	if t.LocationID != "" {
		s["location_id"] = t.LocationID
	}
	if t.CompanyID != "" {
		s["company_id"] = t.CompanyID
	}
	return s
}

// ProviderError is a non-2xx answer from the token endpoint.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("oauth provider returned %d: %s", e.Status, e.Message)
}

type Client struct {
	http *http.Client
}

// NewClient uses a 10 second timeout when httpClient is nil.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{http: httpClient}
}

// AuthorizationURL builds the consent redirect for cfg.
func (c *Client) AuthorizationURL(cfg Config, state string) string {
	return cfg.oauth2().AuthCodeURL(state)
}

func (c *Client) ExchangeCode(ctx context.Context, cfg Config, code string) (*TokenSet, error) {
	tok, err := cfg.oauth2().Exchange(c.context(ctx), code)
	if err != nil {
		return nil, tokenError(err)
	}
	return newTokenSet(tok), nil
}

// Refresh redeems refreshToken. A response without a new refresh token
// carries the old one forward.
func (c *Client) Refresh(ctx context.Context, cfg Config, refreshToken string) (*TokenSet, error) {
	tok, err := cfg.oauth2().TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, tokenError(err)
	}
	return newTokenSet(tok), nil
}

func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func tokenError(err error) error {
	var rerr *oauth2.RetrieveError
	if stderrors.As(err, &rerr) && rerr.Response != nil {
		msg := errorMessage(rerr.Body)
		if msg == "" {
			msg = rerr.ErrorDescription
		}
		return &ProviderError{Status: rerr.Response.StatusCode, Message: msg}
	}
	return fmt.Errorf("token request: %w", err)
}

// errorMessage prefers a "message" or "error_description" field and falls
// back to the raw body.
func errorMessage(body []byte) string {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, key := range []string{"message", "error_description", "error"} {
			if s, ok := parsed[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(body))
}

func extraString(tok *oauth2.Token, key string) string {
	s, _ := tok.Extra(key).(string)
	return s
}

// expiresIn reads the raw lifetime so callers can anchor it to their own clock.
func expiresIn(v any) *int64 {
	var n int64
	switch x := v.(type) {
	case float64:
		n = int64(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return nil
		}
		n = i
	case string:
		i, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	if n <= 0 {
		return nil
	}
	return &n
}
