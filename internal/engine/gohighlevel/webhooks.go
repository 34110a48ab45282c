package gohighlevel

import (
	"net/http"

	"conduit/internal/engine/webhooks"
)

const (
	EventTypeHeader   = "X-GHL-Event-Type"
	IdempotencyHeader = "X-Idempotency-Key"
)

func WebhookIdempotencyKey(rawBody, eventType string) string {
	return webhooks.ComputeIdempotencyKey(Slug, eventType, rawBody)
}

// IdempotencyKeyFor prefers the key the sender supplied.
func IdempotencyKeyFor(h http.Header, rawBody string) string {
	if key := h.Get(IdempotencyHeader); key != "" {
		return key
	}
	return WebhookIdempotencyKey(rawBody, h.Get(EventTypeHeader))
}
