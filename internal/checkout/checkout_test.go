package checkout

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckout(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Equal(t, "WKND-01ABC", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ch_1","redirectUrl":"https://pay.example/ch_1","status":"created"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, " sk_test_123 ", time.Second)
	s, err := c.CreateCheckout(context.Background(), Request{
		Amount:   160000,
		Currency: "ZAR",
		Metadata: Metadata{OrderID: "WKND-01ABC", Reference: "WKND-01ABC"},
		LineItems: []LineItem{{
			DisplayName:    "Weekend pass",
			Quantity:       1,
			PricingDetails: PricingDetails{Price: 160000},
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, Session{ID: "ch_1", RedirectURL: "https://pay.example/ch_1", Status: "created"}, s)
	assert.Equal(t, int64(160000), got.Amount)
	assert.Equal(t, "WKND-01ABC", got.Metadata.OrderID)
	require.Len(t, got.LineItems, 1)
}

func TestCreateCheckoutUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errorCode":"invalid_amount"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "sk", time.Second).CreateCheckout(context.Background(), Request{Amount: -1})

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusUnprocessableEntity, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "invalid_amount")
}

func TestCreateCheckoutNotConfigured(t *testing.T) {
	_, err := NewClient("http://unused", "", time.Second).CreateCheckout(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	var nilClient *Client
	assert.False(t, nilClient.Configured())
}

func TestVerifyWebhook(t *testing.T) {
	key := []byte("super-secret-signing-key")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(key)
	body := []byte(`{"type":"payment.succeeded","payload":{"metadata":{"reference":"WKND-1"}}}`)
	now := time.Unix(1_760_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)

	headers := func(sig string, ts string) http.Header {
		h := http.Header{}
		h.Set("webhook-id", "msg_1")
		h.Set("webhook-timestamp", ts)
		h.Set("webhook-signature", sig)
		return h
	}
	valid := "v1," + Sign(key, "msg_1", ts, body)

	assert.NoError(t, VerifyWebhook(secret, headers(valid, ts), body, now))
	assert.NoError(t, VerifyWebhook(secret, headers("v1,bogus "+valid, ts), body, now))
	assert.ErrorIs(t, VerifyWebhook(secret, headers("v1,bogus", ts), body, now), ErrBadSignature)
	assert.ErrorIs(t, VerifyWebhook(secret, headers(valid, ts), []byte(`{}`), now), ErrBadSignature)
	assert.ErrorIs(t, VerifyWebhook(secret, headers(valid, ts), body, now.Add(6*time.Minute)), ErrStaleTimestamp)
	assert.ErrorIs(t, VerifyWebhook(secret, http.Header{}, body, now), ErrMissingSignature)
}

func TestWebhookPayloadReferences(t *testing.T) {
	var ev WebhookEvent
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "evt_1",
		"type": "payment.succeeded",
		"payload": {"id": "p_1", "status": "succeeded", "amount": 160000, "currency": "ZAR",
			"metadata": {"reference": "WKND-9", "orderId": "WKND-9"}}
	}`), &ev))

	assert.Equal(t, EventPaymentSucceeded, ev.Type)
	assert.Equal(t, "WKND-9", ev.Payload.Reference())
	assert.Equal(t, "WKND-9", ev.Payload.OrderID())

	assert.Equal(t, "", WebhookPayload{}.Reference())
	assert.Equal(t, "WKND-2", WebhookPayload{Metadata: map[string]string{"reference": "WKND-2"}}.OrderID())
}
