package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/apperr"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/checkout"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/kvstore"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/repository"
)

// PaymentService converges registration rows with payment outcomes reported
// by the client and by the provider's webhook. Every transition is guarded in
// SQL, so repeated signals change nothing.
type PaymentService struct {
	payments PaymentStore
	kv       EphemeralStore
	events   EventRecorder
	window   time.Duration
	now      func() time.Time
}

// NewPaymentService constructs a PaymentService. window is how long after an
// attempt starts a payment may still complete it.
func NewPaymentService(deps Deps, window time.Duration) *PaymentService {
	return &PaymentService{
		payments: deps.Payments,
		kv:       deps.Ephemeral,
		events:   deps.Events,
		window:   window,
		now:      deps.clock(),
	}
}

// Completion describes the outcome of a payment-complete signal.
type Completion struct {
	OrderID         string `json:"orderId"`
	AlreadyComplete bool   `json:"alreadyComplete"`
	Registrations   int    `json:"registrations"`
}

// PaymentInProgress records that the client reached the provider's page.
func (s *PaymentService) PaymentInProgress(_ context.Context, sig model.PaymentSignal) error {
	sessionID := strings.TrimSpace(sig.SessionID)
	if sessionID == "" {
		return apperr.Validation("sessionId is required")
	}
	record(s.events, sessionID, model.EventPaymentInProgress, map[string]any{"orderId": sig.OrderRef()})
	metrics.PaymentSignalsTotal.WithLabelValues("in_progress", "ok").Inc()
	return nil
}

// PaymentComplete marks the order's registrations complete. Completing a
// complete order is a no-op. A payment that arrives after the window marks the
// rows expired and returns an expired error instead.
func (s *PaymentService) PaymentComplete(ctx context.Context, sig model.PaymentSignal) (Completion, error) {
	sessionID := strings.TrimSpace(sig.SessionID)
	orderID := sig.OrderRef()
	if sessionID == "" || orderID == "" {
		return Completion{}, apperr.Validation("sessionId and reference are required")
	}
	logger := log.With().Str("order_id", orderID).Str("session_id", sessionID).Logger()

	res, err := s.complete(ctx, orderID)
	switch {
	case errors.Is(err, repository.ErrRegistrationExpired):
		logger.Warn().Int64("amount", total(res.Registrations)).Msg("payment arrived after the registration window, order expired")
		record(s.events, sessionID, model.EventSessionExpired, map[string]any{"orderId": orderID})
		metrics.PaymentSignalsTotal.WithLabelValues("complete", "expired").Inc()
		return Completion{}, apperr.Expired(orderID)
	case errors.Is(err, repository.ErrNotFound):
		metrics.PaymentSignalsTotal.WithLabelValues("complete", "not_found").Inc()
		return Completion{}, apperr.NotFound("order %s was not found", orderID)
	case err != nil:
		logger.Error().Err(err).Msg("complete order failed")
		metrics.PaymentSignalsTotal.WithLabelValues("complete", "error").Inc()
		return Completion{}, apperr.Internal("payment_complete", err)
	}

	if !res.AlreadyComplete {
		record(s.events, sessionID, model.EventPaymentComplete, map[string]any{
			"orderId": orderID,
			"amount":  total(res.Registrations),
		})
		logger.Info().Int("registrations", len(res.Registrations)).Msg("order complete")
	}
	metrics.PaymentSignalsTotal.WithLabelValues("complete", "ok").Inc()
	return Completion{
		OrderID:         orderID,
		AlreadyComplete: res.AlreadyComplete,
		Registrations:   len(res.Registrations),
	}, nil
}

// complete resolves the order's members through the order index and falls
// back to every row of the order when the index is missing or stale.
func (s *PaymentService) complete(ctx context.Context, orderID string) (repository.CompletionResult, error) {
	memberIDs := s.memberIDs(ctx, orderID)
	res, err := s.payments.CompleteOrder(ctx, orderID, memberIDs, s.now(), s.window)
	if errors.Is(err, repository.ErrNotFound) && memberIDs != nil {
		res, err = s.payments.CompleteOrder(ctx, orderID, nil, s.now(), s.window)
	}
	return res, err
}

// PaymentCancelled marks the session's pending registrations failed. It is
// best-effort: failures are logged and the number of rows changed returned.
func (s *PaymentService) PaymentCancelled(ctx context.Context, sessionID string) int64 {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		metrics.PaymentSignalsTotal.WithLabelValues("cancelled", "ignored").Inc()
		return 0
	}
	n, err := s.payments.FailSession(ctx, sessionID, s.now())
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("mark cancelled session failed")
		metrics.PaymentSignalsTotal.WithLabelValues("cancelled", "error").Inc()
	} else {
		metrics.PaymentSignalsTotal.WithLabelValues("cancelled", "ok").Inc()
	}
	record(s.events, sessionID, model.EventPaymentCancelled, map[string]any{"registrations": n})
	return n
}

// PaymentFailed marks the order's pending registrations failed. Complete rows
// are never downgraded.
func (s *PaymentService) PaymentFailed(ctx context.Context, sig model.PaymentSignal) error {
	sessionID := strings.TrimSpace(sig.SessionID)
	orderID := sig.OrderRef()
	if orderID == "" {
		return apperr.Validation("reference is required")
	}
	n, err := s.fail(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Str("session_id", sessionID).Msg("fail order failed")
		metrics.PaymentSignalsTotal.WithLabelValues("failed", "error").Inc()
		return apperr.Internal("payment_failed", err)
	}
	record(s.events, sessionID, model.EventPaymentFailed, map[string]any{"orderId": orderID, "registrations": n})
	metrics.PaymentSignalsTotal.WithLabelValues("failed", "ok").Inc()
	return nil
}

func (s *PaymentService) fail(ctx context.Context, orderID string) (int64, error) {
	memberIDs := s.memberIDs(ctx, orderID)
	n, err := s.payments.FailOrder(ctx, orderID, memberIDs, s.now())
	if err == nil && n == 0 && memberIDs != nil {
		n, err = s.payments.FailOrder(ctx, orderID, nil, s.now())
	}
	return n, err
}

// memberIDs reads the order index. nil means "every row of the order".
func (s *PaymentService) memberIDs(ctx context.Context, orderID string) []string {
	ids, err := s.kv.GetOrderMemberIDs(ctx, orderID)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			log.Warn().Err(err).Str("order_id", orderID).Msg("order index read failed, falling back to order rows")
		}
		return nil
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}

// HandleWebhook records a provider payment event and converges the order it
// refers to. It never fails: problems are logged for manual follow-up and the
// returned label says what happened.
func (s *PaymentService) HandleWebhook(ctx context.Context, ev checkout.WebhookEvent) string {
	ref := ev.Payload.Reference()
	logger := log.With().
		Str("event_type", ev.Type).
		Str("payment_id", ev.Payload.ID).
		Str("reference", ref).
		Int64("amount", ev.Payload.Amount).
		Logger()

	if ref == "" {
		logger.Warn().Msg("webhook without reference ignored")
		return "ignored"
	}

	result := "ok"
	err := s.kv.UpsertPayment(ctx, kvstore.PaymentRecord{
		Reference:  ref,
		ProviderID: ev.Payload.ID,
		EventType:  ev.Type,
		Status:     ev.Payload.Status,
		Amount:     ev.Payload.Amount,
		Currency:   ev.Payload.Currency,
		UpdatedAt:  s.now(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("payment tracking write failed")
		result = "error"
	}

	orderID := ev.Payload.OrderID()
	switch ev.Type {
	case checkout.EventPaymentSucceeded:
		if !s.webhookComplete(ctx, logger, orderID) {
			result = "error"
		}
	case checkout.EventPaymentFailed:
		if _, err := s.fail(ctx, orderID); err != nil {
			logger.Error().Err(err).Msg("webhook fail order failed")
			result = "error"
		}
	case checkout.EventPaymentRefunded:
		logger.Info().Msg("payment refunded")
	default:
		logger.Info().Msg("unhandled webhook event type")
		result = "ignored"
	}
	return result
}

func (s *PaymentService) webhookComplete(ctx context.Context, logger zerolog.Logger, orderID string) bool {
	res, err := s.complete(ctx, orderID)
	switch {
	case errors.Is(err, repository.ErrRegistrationExpired):
		logger.Error().Msg("provider confirmed payment for an expired registration, reconcile manually")
		for _, sessionID := range sessions(res.Registrations) {
			record(s.events, sessionID, model.EventSessionExpired, map[string]any{"orderId": orderID, "source": "webhook"})
		}
		return true
	case errors.Is(err, repository.ErrNotFound):
		logger.Error().Msg("provider confirmed payment for an unknown order, reconcile manually")
		return false
	case err != nil:
		logger.Error().Err(err).Msg("webhook complete order failed")
		return false
	}
	if !res.AlreadyComplete {
		for _, sessionID := range sessions(res.Registrations) {
			record(s.events, sessionID, model.EventPaymentComplete, map[string]any{"orderId": orderID, "source": "webhook"})
		}
	}
	return true
}

func sessions(regs []model.Registration) []string {
	seen := make(map[string]bool, len(regs))
	var out []string
	for _, reg := range regs {
		if reg.SessionID == "" || seen[reg.SessionID] {
			continue
		}
		seen[reg.SessionID] = true
		out = append(out, reg.SessionID)
	}
	return out
}

func total(regs []model.Registration) int64 {
	var sum int64
	for _, reg := range regs {
		sum += reg.Amount
	}
	return sum
}
