// Package state signs and verifies the opaque state parameter that carries
// tenant context across the OAuth authorization round trip.
package state

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "conduit/internal/pkg/errors"
)

var (
	ErrInvalidFormat    = errors.New("state: invalid format")
	ErrInvalidSignature = errors.New("state: invalid signature")
	ErrExpired          = errors.New("state: expired")
)

// DefaultMaxAge bounds how long an authorization round trip may take.
const DefaultMaxAge = 10 * time.Minute

var encoding = base64.RawURLEncoding.Strict()

// Payload is the signed content. IssuedAt is unix milliseconds.
type Payload struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
	ReturnTo string `json:"returnTo"`
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"issuedAt"`
}

func (p *Payload) IssuedTime() time.Time {
	return time.UnixMilli(p.IssuedAt)
}

type Signer struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewSigner returns a signer for secret. A maxAge of zero or less disables the
// expiry check.
func NewSigner(secret string, maxAge time.Duration) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: state secret is not set", apperrors.ErrConfiguration)
	}
	return &Signer{secret: []byte(secret), maxAge: maxAge, now: time.Now}, nil
}

// Create returns payloadB64 + "." + sigB64, both unpadded base64url.
func (s *Signer) Create(tenantID, userID, returnTo, nonce string) (string, error) {
	payload := Payload{
		TenantID: tenantID,
		UserID:   userID,
		ReturnTo: returnTo,
		Nonce:    nonce,
		IssuedAt: s.now().UnixMilli(),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("state: marshal payload: %w", err)
	}

	payloadB64 := encoding.EncodeToString(raw)
	return payloadB64 + "." + encoding.EncodeToString(s.mac(payloadB64)), nil
}

// Parse verifies the signature before decoding anything else.
func (s *Signer) Parse(token string) (*Payload, error) {
	payloadB64, sigB64, ok := strings.Cut(token, ".")
	if !ok || payloadB64 == "" || sigB64 == "" || strings.Contains(sigB64, ".") {
		return nil, ErrInvalidFormat
	}

	sig, err := encoding.DecodeString(sigB64)
	if err != nil || !hmac.Equal(sig, s.mac(payloadB64)) {
		return nil, ErrInvalidSignature
	}

	raw, err := encoding.DecodeString(payloadB64)
	if err != nil {
		return nil, ErrInvalidFormat
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrInvalidFormat
	}

	if s.maxAge > 0 && s.now().Sub(payload.IssuedTime()) > s.maxAge {
		return nil, ErrExpired
	}

	return &payload, nil
}

func (s *Signer) mac(payloadB64 string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(payloadB64))
	return h.Sum(nil)
}

// NewNonce returns 16 random bytes as unpadded base64url.
func NewNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
