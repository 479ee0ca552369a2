package model

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Lifecycle event types recorded per browsing session.
const (
	EventRegistrationStarted = "registration_started"
	EventPaymentInProgress   = "payment_in_progress"
	EventPaymentComplete     = "payment_complete"
	EventPaymentCancelled    = "payment_cancelled"
	EventPaymentFailed       = "payment_failed"
	EventSessionExpired      = "session_expired"
)

// Order reference prefixes.
const (
	OrderPrefixWeekender = "WKND"
	OrderPrefixBootcamp  = "BOOT"
)

// NewOrderID returns a unique, human-readable order reference such as
// "WKND-01J9ZQ3N5Y". The ULID keeps references roughly time-ordered.
func NewOrderID(prefix string, now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader)
	return prefix + "-" + id.String()
}

// DancerInput is one dancer as sent by the registration form.
type DancerInput struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Role    string `json:"role,omitempty"`
}

// RegistrationInput is the weekender registration payload. Single
// registrations use the top-level dancer fields; couples use Lead and Follow.
type RegistrationInput struct {
	Type     string       `json:"type"`
	PassType string       `json:"passType"`
	PassDay  string       `json:"passDay,omitempty"`
	Name     string       `json:"name,omitempty"`
	Surname  string       `json:"surname,omitempty"`
	Email    string       `json:"email"`
	Role     string       `json:"role,omitempty"`
	Level    int          `json:"level,omitempty"`
	Lead     *DancerInput `json:"lead,omitempty"`
	Follow   *DancerInput `json:"follow,omitempty"`
	Phone    string       `json:"phone,omitempty"`
	Dietary  string       `json:"dietary,omitempty"`
}

// Trim normalises whitespace and email case in place.
func (in *RegistrationInput) Trim() {
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	in.PassDay = strings.ToLower(strings.TrimSpace(in.PassDay))
	in.Name = strings.TrimSpace(in.Name)
	in.Surname = strings.TrimSpace(in.Surname)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Dietary = strings.TrimSpace(in.Dietary)
	for _, d := range []*DancerInput{in.Lead, in.Follow} {
		if d != nil {
			d.Name = strings.TrimSpace(d.Name)
			d.Surname = strings.TrimSpace(d.Surname)
		}
	}
}

// SubmitRequest is the body of POST /weekender/submit-registration.
type SubmitRequest struct {
	SessionID    string            `json:"sessionId"`
	Registration RegistrationInput `json:"registration"`
	PriceTier    string            `json:"priceTier"`
}

// SubmitResult is returned after a checkout session has been created.
type SubmitResult struct {
	Success     bool   `json:"success"`
	CheckoutURL string `json:"checkoutUrl"`
	Reference   string `json:"reference"`
	PriceTier   string `json:"priceTier,omitempty"`
	Amount      int64  `json:"amount"`
}

// SessionRequest is the body of POST /weekender/start-registration.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// PayExistingRequest is the body of POST /weekender/pay-existing.
type PayExistingRequest struct {
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
}

// Bootcamp sub-types.
const (
	BootcampBeginner  = "beginner"
	BootcampFastTrack = "fast-track"
)

// BootcampRequest is the body of POST /bootcamp/submit-registration.
type BootcampRequest struct {
	SessionID          string `json:"sessionId"`
	Type               string `json:"type"`
	Name               string `json:"name"`
	Surname            string `json:"surname"`
	Email              string `json:"email"`
	Phone              string `json:"phone,omitempty"`
	Role               string `json:"role,omitempty"`
	WeekenderValidated bool   `json:"weekenderValidated"`
	WeekenderOrderID   string `json:"weekenderOrderId,omitempty"`

	// beginner questionnaire
	HasDancedBefore *bool  `json:"hasDancedBefore,omitempty"`
	Motivation      string `json:"motivation,omitempty"`

	// fast-track questionnaire
	YearsDancing *int   `json:"yearsDancing,omitempty"`
	OtherStyles  string `json:"otherStyles,omitempty"`
	CurrentLevel string `json:"currentLevel,omitempty"`
	FocusAreas   string `json:"focusAreas,omitempty"`
}

// ValidateWeekenderRequest looks up a weekender pass by name or order id.
type ValidateWeekenderRequest struct {
	Name    string `json:"name,omitempty"`
	Surname string `json:"surname,omitempty"`
	OrderID string `json:"orderId,omitempty"`
}

// RoleBalanceRequest is the body of POST /weekender/check-role-balance.
type RoleBalanceRequest struct {
	Role     string `json:"role"`
	Level    int    `json:"level"`
	PassType string `json:"passType"`
	PassDay  string `json:"passDay,omitempty"`
}

// WaitlistRequest is the body of POST /weekender/join-waitlist.
type WaitlistRequest struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Level     int    `json:"level"`
	PassType  string `json:"passType"`
	PassDay   string `json:"passDay,omitempty"`
}

// PaymentSignal is the body shared by the client payment callbacks.
type PaymentSignal struct {
	SessionID string `json:"sessionId"`
	Reference string `json:"reference,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
}

// OrderRef returns the order reference regardless of which field the client
// used.
func (p PaymentSignal) OrderRef() string {
	if ref := strings.TrimSpace(p.Reference); ref != "" {
		return ref
	}
	return strings.TrimSpace(p.OrderID)
}
