// Package checkout talks to the Yoco hosted checkout API.
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no secret key was supplied.
var ErrNotConfigured = errors.New("checkout: secret key not configured")

// UpstreamError is returned when the provider answers with a non-2xx status.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("checkout provider returned %d: %s", e.StatusCode, e.Body)
}

// Metadata identifies the order on the provider side. It is echoed back in
// webhook payloads.
type Metadata struct {
	OrderID       string `json:"orderId"`
	Reference     string `json:"reference"`
	CustomerID    string `json:"customerId"`
	CustomerEmail string `json:"customerEmail"`
}

// PricingDetails holds a line item's unit price in minor units.
type PricingDetails struct {
	Price int64 `json:"price"`
}

// LineItem is one row of the checkout summary.
type LineItem struct {
	DisplayName    string         `json:"displayName"`
	Quantity       int            `json:"quantity"`
	PricingDetails PricingDetails `json:"pricingDetails"`
	Description    string         `json:"description,omitempty"`
}

// Request is the body of a checkout creation call.
type Request struct {
	Amount     int64      `json:"amount"`
	Currency   string     `json:"currency"`
	SuccessURL string     `json:"successUrl"`
	CancelURL  string     `json:"cancelUrl"`
	FailureURL string     `json:"failureUrl"`
	Metadata   Metadata   `json:"metadata"`
	LineItems  []LineItem `json:"lineItems"`

	// IdempotencyKey is sent as a header. Empty falls back to the order id.
	IdempotencyKey string `json:"-"`
}

// Session is the provider's answer.
type Session struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirectUrl"`
	Status      string `json:"status,omitempty"`
}

// Client creates hosted checkout sessions.
type Client struct {
	apiURL    string
	secretKey string
	http      *http.Client
}

// NewClient returns a client for apiURL authenticated with secretKey.
func NewClient(apiURL, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		apiURL:    apiURL,
		secretKey: strings.TrimSpace(secretKey),
		http:      &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c != nil && c.secretKey != ""
}

// CreateCheckout creates a checkout session. A retried call with the same
// idempotency key returns the same session instead of a second one.
func (c *Client) CreateCheckout(ctx context.Context, req Request) (Session, error) {
	if !c.Configured() {
		return Session{}, ErrNotConfigured
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Session{}, fmt.Errorf("encode checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("build checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	key := req.IdempotencyKey
	if key == "" {
		key = req.Metadata.OrderID
	}
	if key != "" {
		httpReq.Header.Set("Idempotency-Key", key)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return Session{}, fmt.Errorf("send checkout request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Session{}, fmt.Errorf("read checkout response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Session{}, &UpstreamError{StatusCode: res.StatusCode, Body: string(raw)}
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode checkout response: %w", err)
	}
	if s.RedirectURL == "" {
		return Session{}, &UpstreamError{StatusCode: res.StatusCode, Body: "response has no redirectUrl"}
	}
	return s, nil
}
