package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/checkout"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/metrics"
)

// YocoWebhook handles POST /webhooks/yoco
// The provider retries anything but a 2xx, so every delivery is acknowledged
// with 200 and problems are logged for manual follow-up.
func (h *Handler) YocoWebhook(w http.ResponseWriter, r *http.Request) {
	eventType, result := h.processWebhook(r)
	metrics.WebhookRequestsTotal.WithLabelValues(eventType, result).Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) processWebhook(r *http.Request) (eventType, result string) {
	logger := log.With().Str("request_id", chimiddleware.GetReqID(r.Context())).Logger()

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err != nil {
		logger.Error().Err(err).Msg("read webhook body failed")
		return "unknown", "unreadable"
	}

	if h.webhookSecret != "" {
		if err := checkout.VerifyWebhook(h.webhookSecret, r.Header, body, time.Now()); err != nil {
			logger.Warn().Err(err).Str("webhook_id", r.Header.Get("webhook-id")).Msg("webhook signature rejected")
			return "unknown", "rejected"
		}
	}

	var ev checkout.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		logger.Error().Err(err).Msg("decode webhook body failed")
		return "unknown", "malformed"
	}
	if ev.Type == "" {
		ev.Type = "unknown"
	}
	return ev.Type, h.payments.HandleWebhook(r.Context(), ev)
}
