package gohighlevel

import (
	"context"
	"errors"

	"conduit/internal/engine/vault"
)

var ErrMissingLocation = errors.New("gohighlevel: sync requires location_id in connection secrets")

var ErrMissingAccessToken = errors.New("gohighlevel: connection secrets carry no access token")

type SyncResult struct {
	ContactCount *int `json:"contact_count,omitempty"`
}

// SyncContacts proves the connection works by reading one page of contacts.
// Nothing is persisted.
func SyncContacts(ctx context.Context, secrets vault.Secrets, opts ...Option) (*SyncResult, error) {
	creds, ok := secrets.OAuth()
	if !ok {
		return nil, ErrMissingAccessToken
	}
	locationID := secrets.String("location_id")
	if locationID == "" {
		return nil, ErrMissingLocation
	}

	page, err := NewClient(creds.AccessToken, opts...).ListContacts(ctx, locationID, 1, 0)
	if err != nil {
		return nil, err
	}
	return &SyncResult{ContactCount: page.Meta.Total}, nil
}
