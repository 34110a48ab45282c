package handlers

import (
	"io"
	"net/http"

	"conduit/internal/engine/jobs"
	"conduit/internal/engine/webhooks"
	"conduit/internal/pkg/errors"
	"conduit/internal/pkg/metrics"
)

type webhookResponse struct {
	OK         bool   `json:"ok"`
	Idempotent bool   `json:"idempotent"`
	EventID    string `json:"event_id,omitempty"`
}

// ReceiveWebhook ingests a provider event once per idempotency key and queues
// new events for processing. Redeliveries are acknowledged with 200.
func (h *IntegrationHandler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pc := h.resolveProvider(ctx, w, r)
	if pc == nil {
		return
	}
	slug := pc.provider.Slug
	log := h.log.With().Str("provider", slug).Logger()

	limit := h.webhookCfg.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		errors.WriteError(w, http.StatusRequestEntityTooLarge, errors.ErrCodeInvalidInput, "Request body too large", nil)
		return
	}

	if secret := pc.settings.OAuth().WebhookSecret; secret != "" {
		if !webhooks.VerifySignature(secret, body, r.Header.Get(h.signatureHeader())) {
			metrics.WebhookSignatureFailures.WithLabelValues(slug).Inc()
			log.Warn().Msg("webhook signature mismatch")
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid signature", nil)
			return
		}
	}

	key, eventType := pc.connector.WebhookKey(r.Header, body)
	receipt := webhooks.Receipt{
		ProviderID:     pc.provider.ID,
		IdempotencyKey: key,
		Headers:        webhooks.SanitizeHeaders(r.Header),
		Payload:        webhooks.DecodePayload(body),
	}
	if eventType != "" {
		receipt.EventType = &eventType
	}

	res, err := h.webhooks.Ingest(ctx, receipt)
	if err != nil {
		log.Error().Err(err).Msg("failed to ingest webhook")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to record event", nil)
		return
	}

	if res.Idempotent {
		metrics.WebhooksIngestedTotal.WithLabelValues(slug, "duplicate").Inc()
		log.Debug().Str("idempotency_key", key).Msg("duplicate webhook delivery")
		errors.WriteJSON(w, http.StatusOK, webhookResponse{OK: true, Idempotent: true})
		return
	}
	metrics.WebhooksIngestedTotal.WithLabelValues(slug, "new").Inc()

	// The event row is already durable; a failed enqueue leaves it received.
	if _, err := h.queue.Enqueue(ctx, jobs.EnqueueInput{
		ProviderID: pc.provider.ID,
		JobType:    jobs.TypeWebhookProcess,
		Payload:    map[string]any{"event_id": res.Event.ID},
	}); err != nil {
		log.Error().Err(err).Str("event_id", res.Event.ID).Msg("failed to enqueue webhook processing")
	}

	errors.WriteJSON(w, http.StatusOK, webhookResponse{OK: true, EventID: res.Event.ID})
}

func (h *IntegrationHandler) signatureHeader() string {
	if h.webhookCfg.SignatureHeader != "" {
		return h.webhookCfg.SignatureHeader
	}
	return "X-Webhook-Signature"
}
