// Package model defines the core domain types for weekender registration.
package model

import (
	"strings"
	"time"
)

// Role is the partner role a dancer registers as.
type Role string

const (
	RoleLead   Role = "Lead"
	RoleFollow Role = "Follow"
)

// ParseRole accepts "Lead"/"Follow" in any case as well as the short "L"/"F"
// forms the registration form sends.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "lead", "leader":
		return RoleLead, true
	case "f", "follow", "follower":
		return RoleFollow, true
	}
	return "", false
}

// Opposite returns the partner role.
func (r Role) Opposite() Role {
	if r == RoleLead {
		return RoleFollow
	}
	return RoleLead
}

// PassType identifies what a registration pays for.
type PassType string

const (
	PassWeekend  PassType = "weekend"
	PassDay      PassType = "day"
	PassParty    PassType = "party"
	PassBootcamp PassType = "bootcamp"
)

// ParsePassType defaults an empty value to the weekend pass.
func ParsePassType(s string) (PassType, bool) {
	switch PassType(strings.ToLower(strings.TrimSpace(s))) {
	case "", PassWeekend:
		return PassWeekend, true
	case PassDay:
		return PassDay, true
	case PassParty:
		return PassParty, true
	case PassBootcamp:
		return PassBootcamp, true
	}
	return "", false
}

// Status is shared by payment_status and registration_status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
	StatusExpired  Status = "expired"
)

// RegistrationType distinguishes one dancer from a lead/follow couple
// sharing one order.
type RegistrationType string

const (
	TypeSingle RegistrationType = "single"
	TypeCouple RegistrationType = "couple"
)

// Valid pass days for the day pass.
var PassDays = []string{"saturday", "sunday"}

// Member is a person identity, unique by case-insensitive name and surname.
type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Surname   string    `json:"surname"`
	Role      Role      `json:"role,omitempty"`
	Level     int       `json:"level,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName is used in human-facing messages.
func (m Member) FullName() string {
	return strings.TrimSpace(m.Name + " " + m.Surname)
}

// Registration is one paid-entry attempt for one member and one pass type.
// Retries update the same row.
type Registration struct {
	ID                 string           `json:"id"`
	Email              string           `json:"email"`
	MemberID           string           `json:"member_id"`
	Role               Role             `json:"role,omitempty"`
	Level              int              `json:"level,omitempty"`
	SessionID          string           `json:"session_id"`
	OrderID            string           `json:"order_id"`
	PassType           PassType         `json:"pass_type"`
	PassDay            string           `json:"pass_day,omitempty"`
	PriceTier          string           `json:"price_tier"`
	Amount             int64            `json:"amount"`
	PaymentStatus      Status           `json:"payment_status"`
	RegistrationStatus Status           `json:"registration_status"`
	RegistrationType   RegistrationType `json:"registration_type"`
	CreatedAt          time.Time        `json:"created_at"`
	AttemptedAt        time.Time        `json:"attempted_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// IsComplete reports whether the registration has been paid for.
func (r Registration) IsComplete() bool {
	return r.RegistrationStatus == StatusComplete
}

// WindowElapsed reports whether more than window has passed since the
// attempt started.
func (r Registration) WindowElapsed(now time.Time, window time.Duration) bool {
	return now.Sub(r.AttemptedAt) > window
}

// Participant is one dancer in a registration attempt.
type Participant struct {
	Name    string
	Surname string
	Role    Role
	Level   int
}

// FullName is used in human-facing messages.
func (p Participant) FullName() string {
	return strings.TrimSpace(p.Name + " " + p.Surname)
}

// Key is the case-insensitive identity of a participant.
func (p Participant) Key() string {
	return strings.ToLower(strings.TrimSpace(p.Name)) + "|" + strings.ToLower(strings.TrimSpace(p.Surname))
}

// Attempt is everything the store needs to insert or retry registrations for
// one order. Amounts are per participant, in minor currency units.
type Attempt struct {
	Participants     []Participant
	Amounts          []int64
	Email            string
	SessionID        string
	OrderID          string
	PassType         PassType
	PassDay          string
	PriceTier        string
	RegistrationType RegistrationType
	Details          map[string]any
}

// Total is the amount charged for the whole order.
func (a Attempt) Total() int64 {
	var total int64
	for _, amt := range a.Amounts {
		total += amt
	}
	return total
}

// AttemptAction is what the store does with a participant's existing row.
type AttemptAction int

const (
	ActionInsert AttemptAction = iota
	ActionRetry
	ActionReject
)

// DecideAttempt returns the action for a participant given their current
// registration for the pass type, if any. A complete row is never touched.
func DecideAttempt(existing *Registration) AttemptAction {
	switch {
	case existing == nil:
		return ActionInsert
	case existing.IsComplete():
		return ActionReject
	default:
		return ActionRetry
	}
}

// WaitlistEntry is a dancer waiting for a role-balanced spot.
type WaitlistEntry struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"member_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Level     int       `json:"level"`
	PassType  PassType  `json:"pass_type"`
	PassDay   string    `json:"pass_day,omitempty"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RoleCounts are completed registrations per role within one balance scope.
type RoleCounts struct {
	Leads     int
	Followers int
}

// Of returns the count for role.
func (c RoleCounts) Of(role Role) int {
	if role == RoleLead {
		return c.Leads
	}
	return c.Followers
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
