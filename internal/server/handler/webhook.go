package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v73/github"

	"github.com/sevigo/codesentry/internal/config"
	"github.com/sevigo/codesentry/internal/qualitygate"
)

// WebhookHandler processes the CI webhook of spec.md §6: POST /webhook/ci,
// body {event_type, pull_request:{...}, repository:{...}}, authenticated by
// an HMAC signature over WEBHOOK_SIGNING_SECRET.
type WebhookHandler struct {
	cfg    *config.Config
	gate   *qualitygate.Engine
	logger *slog.Logger
}

// NewWebhookHandler creates a new webhook handler backed by gate.
func NewWebhookHandler(cfg *config.Config, gate *qualitygate.Engine, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{cfg: cfg, gate: gate, logger: logger}
}

// Handle verifies the request's HMAC signature, decodes the CI payload, and
// runs a quality-gate Check for handled event types. Unknown event types
// are acknowledged with 200 so the external CI never retries them
// needlessly, per spec.md §6.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := github.ValidatePayload(r, []byte(h.cfg.Webhook.SigningSecret))
	if err != nil {
		h.logger.Warn("invalid webhook payload signature", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload qualitygate.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("could not parse webhook payload", "error", err)
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	result, err := h.gate.WebhookHandle(r.Context(), payload)
	if err != nil {
		h.logger.Error("webhook-triggered quality gate check failed", "error", err, "event_type", payload.EventType)
		http.Error(w, "gate check failed", http.StatusInternalServerError)
		return
	}
	if result == nil {
		h.logger.Debug("ignoring unhandled webhook event type", "event_type", payload.EventType)
		_, _ = fmt.Fprint(w, "event type not handled")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
