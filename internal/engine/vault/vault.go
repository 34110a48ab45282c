// Package vault seals connection secrets at rest with an AEAD cipher keyed by
// a single process-wide 32 byte key.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	apperrors "conduit/internal/pkg/errors"
)

const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16

	CipherAESGCM           = "aes-256-gcm"
	CipherChaCha20Poly1305 = "chacha20-poly1305"
)

// ErrDecryptionFailed covers a wrong key, tampered ciphertext or tag, and a
// malformed nonce. No plaintext is ever returned alongside it.
var ErrDecryptionFailed = errors.New("vault: decryption failed")

// Secrets is the decrypted, schema-less credential map of a connection.
type Secrets map[string]any

// Sealed is the at-rest form: base64 ciphertext, nonce and detached tag.
type Sealed struct {
	Ciphertext string
	Nonce      string
	Tag        string
}

type Vault struct {
	aead   cipher.AEAD
	cipher string
}

// New builds a vault from a base64 key. A missing key, a key that does not
// decode to exactly 32 bytes, or an unknown cipher is ErrConfiguration.
func New(keyB64, cipherName string) (*Vault, error) {
	keyB64 = strings.TrimSpace(keyB64)
	if keyB64 == "" {
		return nil, fmt.Errorf("%w: vault key is not set (base64-encoded 32-byte key)", apperrors.ErrConfiguration)
	}

	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: vault key is not valid base64", apperrors.ErrConfiguration)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: vault key must decode to %d bytes (got %d)", apperrors.ErrConfiguration, KeySize, len(key))
	}

	if cipherName == "" {
		cipherName = CipherAESGCM
	}

	var aead cipher.AEAD
	switch cipherName {
	case CipherAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
		}
		aead, err = cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
		}
	case CipherChaCha20Poly1305:
		aead, err = chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown vault cipher %q", apperrors.ErrConfiguration, cipherName)
	}

	return &Vault{aead: aead, cipher: cipherName}, nil
}

func (v *Vault) Cipher() string {
	return v.cipher
}

// Encrypt serializes secrets as JSON and seals them under a fresh random
// nonce. Nonces are random rather than counted; see DESIGN.md for the
// collision bound.
func (v *Vault) Encrypt(secrets Secrets) (*Sealed, error) {
	if secrets == nil {
		secrets = Secrets{}
	}

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return nil, fmt.Errorf("vault: marshal secrets: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: generate nonce: %w", err)
	}

	out := v.aead.Seal(nil, nonce, plaintext, nil)
	ct, tag := out[:len(out)-TagSize], out[len(out)-TagSize:]

	return &Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Tag:        base64.StdEncoding.EncodeToString(tag),
	}, nil
}

func (v *Vault) Decrypt(sealed *Sealed) (Secrets, error) {
	if sealed == nil {
		return nil, ErrDecryptionFailed
	}

	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	if err != nil || len(nonce) != NonceSize {
		return nil, ErrDecryptionFailed
	}
	ct, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	tag, err := base64.StdEncoding.DecodeString(sealed.Tag)
	if err != nil || len(tag) != TagSize {
		return nil, ErrDecryptionFailed
	}

	buf := make([]byte, 0, len(ct)+len(tag))
	buf = append(buf, ct...)
	buf = append(buf, tag...)

	plaintext, err := v.aead.Open(nil, nonce, buf, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	var secrets Secrets
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, ErrDecryptionFailed
	}
	return secrets, nil
}

// GenerateKey returns a new random key in the form New expects.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
