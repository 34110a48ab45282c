// Package gohighlevel is the GoHighLevel (LeadConnector) connector: OAuth
// endpoints, a minimal API client, contact sync and webhook keying.
package gohighlevel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

const (
	Slug = "gohighlevel"

	AuthorizeURL   = "https://marketplace.gohighlevel.com/oauth/chooselocation"
	TokenURL       = "https://services.leadconnectorhq.com/oauth/token"
	DefaultBaseURL = "https://services.leadconnectorhq.com"

	// APIVersion is sent on every request as the Version header.
	APIVersion = "2021-07-28"
)

// APIError is a non-2xx API response.
type APIError struct {
	Status  int
	Message string
	Details any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gohighlevel: %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(accessToken string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	// The oauth2 transport stamps the bearer header on every request.
	base := context.WithValue(context.Background(), oauth2.HTTPClient, c.http)
	c.http = oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	return c
}

// ContactsPage is the subset of the contacts listing the sync reads.
type ContactsPage struct {
	Contacts []map[string]any `json:"contacts"`
	Meta     struct {
		Total *int `json:"total"`
	} `json:"meta"`
}

func (c *Client) ListContacts(ctx context.Context, locationID string, limit, offset int) (*ContactsPage, error) {
	q := url.Values{}
	q.Set("locationId", locationID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	var page ContactsPage
	if err := c.get(ctx, "/contacts/?"+q.Encode(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Version", APIVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gohighlevel: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("gohighlevel: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("GHL request failed: %d", resp.StatusCode)}
		var details map[string]any
		if json.Unmarshal(body, &details) == nil {
			apiErr.Details = details
			if msg, ok := details["message"].(string); ok && msg != "" {
				apiErr.Message = msg
			}
		}
		return apiErr
	}

	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("gohighlevel: decode response: %w", err)
	}
	return nil
}
