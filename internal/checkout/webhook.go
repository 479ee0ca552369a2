package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Webhook event types sent by the provider.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
)

// WebhookTolerance bounds how old a signed webhook may be.
const WebhookTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("webhook: missing signature headers")
	ErrBadSignature     = errors.New("webhook: signature mismatch")
	ErrStaleTimestamp   = errors.New("webhook: timestamp outside tolerance")
)

// WebhookEvent is the provider's webhook body.
type WebhookEvent struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload WebhookPayload `json:"payload"`
}

// WebhookPayload describes the payment the event is about.
type WebhookPayload struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

// Reference returns our internal reference from the payload metadata.
func (p WebhookPayload) Reference() string {
	if p.Metadata == nil {
		return ""
	}
	if ref := strings.TrimSpace(p.Metadata["reference"]); ref != "" {
		return ref
	}
	return ""
}

// OrderID returns the order id echoed from checkout metadata, falling back to
// the reference.
func (p WebhookPayload) OrderID() string {
	if p.Metadata != nil {
		if id := strings.TrimSpace(p.Metadata["orderId"]); id != "" {
			return id
		}
	}
	return p.Reference()
}

// VerifyWebhook checks the webhook-id / webhook-timestamp / webhook-signature
// headers: base64 HMAC-SHA256 of "id.timestamp.body" keyed by the decoded
// secret, in a space separated list of "v1,<sig>" entries.
func VerifyWebhook(secret string, h http.Header, body []byte, now time.Time) error {
	id := h.Get("webhook-id")
	ts := h.Get("webhook-timestamp")
	sigs := h.Get("webhook-signature")
	if id == "" || ts == "" || sigs == "" {
		return ErrMissingSignature
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("webhook: parse timestamp: %w", err)
	}
	sent := time.Unix(sec, 0)
	if now.Sub(sent) > WebhookTolerance || sent.Sub(now) > WebhookTolerance {
		return ErrStaleTimestamp
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return fmt.Errorf("webhook: decode secret: %w", err)
	}
	expected := Sign(key, id, ts, body)

	for _, candidate := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrBadSignature
}

// Sign computes the v1 signature for a webhook delivery.
func Sign(key []byte, id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
