package webhooks

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type idempotencyInput struct {
	Provider    string  `json:"provider"`
	EventType   *string `json:"eventType"`
	RawBodyHash string  `json:"rawBodyHash"`
}

// ComputeIdempotencyKey derives a deterministic key for providers that do not
// send one: hex SHA-256 over {"provider","eventType","rawBodyHash"} in that
// order, with eventType null when empty.
func ComputeIdempotencyKey(providerSlug, eventType, rawBody string) string {
	in := idempotencyInput{
		Provider:    providerSlug,
		RawBodyHash: sha256Hex([]byte(rawBody)),
	}
	if eventType != "" {
		in.EventType = &eventType
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(in)

	return sha256Hex(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

// SanitizeHeaders flattens h for storage, dropping every header whose name
// contains "authorization".
func SanitizeHeaders(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for name, values := range h {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "authorization") {
			continue
		}
		out[lower] = strings.Join(values, ", ")
	}
	return out
}

// DecodePayload parses a JSON object body. An empty body is {}; anything
// else that is not a JSON object is kept verbatim under "raw".
func DecodePayload(raw []byte) map[string]any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{"raw": string(raw)}
	}
	return out
}
