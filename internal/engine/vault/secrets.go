package vault

import "encoding/json"

// OAuthSecrets is the typed view of the "oauth" object every OAuth provider
// stores in its secrets.
type OAuthSecrets struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// OAuth decodes the "oauth" entry. ok is false when the entry is missing or
// carries no access token.
func (s Secrets) OAuth() (OAuthSecrets, bool) {
	var out OAuthSecrets
	raw, found := s["oauth"]
	if !found {
		return out, false
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, false
	}
	return out, out.AccessToken != ""
}

// WithOAuth returns a copy of s with the "oauth" entry replaced.
func (s Secrets) WithOAuth(o OAuthSecrets) Secrets {
	out := Secrets{}
	for k, v := range s {
		out[k] = v
	}

	entry := map[string]any{"access_token": o.AccessToken}
	if o.RefreshToken != "" {
		entry["refresh_token"] = o.RefreshToken
	}
	if o.TokenType != "" {
		entry["token_type"] = o.TokenType
	}
	if o.ExpiresAt != "" {
		entry["expires_at"] = o.ExpiresAt
	}
	if o.Scope != "" {
		entry["scope"] = o.Scope
	}
	out["oauth"] = entry
	return out
}

// String returns s[key] when it is a string.
func (s Secrets) String(key string) string {
	v, _ := s[key].(string)
	return v
}
