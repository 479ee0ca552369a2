// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the storage layers.
package service

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/balance"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/checkout"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/kvstore"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/pricing"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/repository"
)

// RegistrationStore is the relational side of a registration attempt.
type RegistrationStore interface {
	PrepareAttempt(ctx context.Context, a model.Attempt, now time.Time) ([]model.Registration, error)
	SaveDetails(ctx context.Context, registrationID string, details map[string]any) error
	ListByOrder(ctx context.Context, orderID string) ([]model.Registration, error)
	RestartOrder(ctx context.Context, orderID, sessionID string, now time.Time) ([]model.Registration, error)
	HasCompleteByName(ctx context.Context, pass model.PassType, name, surname string) (bool, error)
	HasCompleteByOrder(ctx context.Context, pass model.PassType, orderID string) (bool, error)
}

// PaymentStore applies payment outcomes to registration rows.
type PaymentStore interface {
	CompleteOrder(ctx context.Context, orderID string, memberIDs []string, now time.Time, window time.Duration) (repository.CompletionResult, error)
	FailOrder(ctx context.Context, orderID string, memberIDs []string, now time.Time) (int64, error)
	FailSession(ctx context.Context, sessionID string, now time.Time) (int64, error)
}

// WaitlistStore records dancers waiting for a balanced spot.
type WaitlistStore interface {
	Join(ctx context.Context, p model.Participant, e model.WaitlistEntry, now time.Time) (model.WaitlistEntry, error)
}

// EphemeralStore is the order index, session log and payment tracker. Losing
// it never affects what has been paid for.
type EphemeralStore interface {
	SetOrderMemberIDs(ctx context.Context, orderID string, memberIDs []string) error
	GetOrderMemberIDs(ctx context.Context, orderID string) ([]string, error)
	GetSessionStatus(ctx context.Context, sessionID string) (string, error)
	SessionEvents(ctx context.Context, sessionID string) ([]kvstore.Event, error)
	UpsertPayment(ctx context.Context, p kvstore.PaymentRecord) error
}

// CheckoutCreator opens hosted checkout sessions.
type CheckoutCreator interface {
	Configured() bool
	CreateCheckout(ctx context.Context, req checkout.Request) (checkout.Session, error)
}

// EventRecorder queues lifecycle events without blocking.
type EventRecorder interface {
	Record(sessionID, eventType string, metadata map[string]any)
}

// Settings are the prices and rules the services apply.
type Settings struct {
	Window                  time.Duration
	PublicBaseURL           string
	Currency                string
	DayPassPrice            int64
	PartyPassPrice          int64
	BootcampBeginnerPrice   int64
	BootcampFastTrackPrice  int64
	BootcampDiscountPercent int
}

// Deps are the collaborators shared by the services. Now defaults to
// time.Now.
type Deps struct {
	Registrations RegistrationStore
	Payments      PaymentStore
	Waitlist      WaitlistStore
	Ephemeral     EphemeralStore
	Checkout      CheckoutCreator
	Events        EventRecorder
	Pricing       *pricing.Engine
	Capacity      *pricing.CapacityChecker
	Balance       *balance.Evaluator
	Now           func() time.Time
}

func (d Deps) clock() func() time.Time {
	if d.Now != nil {
		return d.Now
	}
	return time.Now
}

// record is nil-safe so services can run without a recorder in tests.
func record(r EventRecorder, sessionID, eventType string, metadata map[string]any) {
	if r == nil {
		return
	}
	r.Record(sessionID, eventType, metadata)
}
