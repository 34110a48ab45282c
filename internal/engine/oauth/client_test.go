package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(tokenURL string) Config {
	return Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURI:  "https://app.example.com/api/v1/integrations/gohighlevel/auth/callback",
		Scopes:       []string{"contacts.read", "contacts.write"},
		AuthorizeURL: "https://marketplace.example.com/oauth/chooselocation",
		TokenURL:     tokenURL,
	}
}

func TestAuthorizationURL(t *testing.T) {
	raw := NewClient(nil).AuthorizationURL(testConfig(""), "st.sig")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "marketplace.example.com", u.Host)
	assert.Equal(t, "/oauth/chooselocation", u.Path)

	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "contacts.read contacts.write", q.Get("scope"))
	assert.Equal(t, "st.sig", q.Get("state"))
	assert.Equal(t, "https://app.example.com/api/v1/integrations/gohighlevel/auth/callback", q.Get("redirect_uri"))
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "csecret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "https://app.example.com/api/v1/integrations/gohighlevel/auth/callback", r.PostForm.Get("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600,"scope":"contacts.read","locationId":"loc_1","companyId":"co_1"}`))
	}))
	defer srv.Close()

	tokens, err := NewClient(srv.Client()).ExchangeCode(context.Background(), testConfig(srv.URL), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "at", tokens.AccessToken)
	assert.Equal(t, "loc_1", tokens.LocationID)
	require.NotNil(t, tokens.ExpiresIn)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	secrets := tokens.Secrets(now)
	oauth, ok := secrets.OAuth()
	require.True(t, ok)
	assert.Equal(t, "rt", oauth.RefreshToken)
	assert.Equal(t, "2026-01-01T01:00:00Z", oauth.ExpiresAt)
	assert.Equal(t, "loc_1", secrets.String("location_id"))
	assert.Equal(t, "co_1", secrets.String("company_id"))
}

func TestRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at2"}`))
	}))
	defer srv.Close()

	tokens, err := NewClient(srv.Client()).Refresh(context.Background(), testConfig(srv.URL), "rt")
	require.NoError(t, err)
	assert.Equal(t, "at2", tokens.AccessToken)
	assert.Equal(t, "rt", tokens.RefreshToken, "refresh token carried forward")
	assert.Nil(t, tokens.ExpiresIn)

	_, hasExpiry := tokens.Secrets(time.Now())["oauth"].(map[string]any)["expires_at"]
	assert.False(t, hasExpiry)
}

func TestTokenEndpointErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid_grant"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.Client()).ExchangeCode(context.Background(), testConfig(srv.URL), "bad")

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusUnauthorized, perr.Status)
	assert.Equal(t, "invalid_grant", perr.Message)
}

func TestTokenEndpointPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.Client()).Refresh(context.Background(), testConfig(srv.URL), "rt")

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "upstream down", perr.Message)
}

func TestTokenResponseWithoutAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	tokens, err := NewClient(srv.Client()).ExchangeCode(context.Background(), testConfig(srv.URL), "code")
	require.Error(t, err)
	assert.Nil(t, tokens)
}

func TestExpiresIn(t *testing.T) {
	n := expiresIn(float64(3600))
	require.NotNil(t, n)
	assert.Equal(t, int64(3600), *n)

	n = expiresIn("120")
	require.NotNil(t, n)
	assert.Equal(t, int64(120), *n)

	assert.Nil(t, expiresIn(nil))
	assert.Nil(t, expiresIn(float64(0)))
	assert.Nil(t, expiresIn("soon"))
}
