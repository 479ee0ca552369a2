// Package balance decides whether a new dancer should be waitlisted to keep
// leads and follows balanced within a level.
//
// The check is advisory. It reads completed registrations and writes nothing,
// so two near-simultaneous registrations can both pass it and leave the floor
// briefly unbalanced. Completion is never gated on it.
package balance

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/apperr"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
)

// DefaultTolerance is the largest same-role surplus accepted at one level.
const DefaultTolerance = 2

// RoleCounter counts complete leads and follows within a pass type and level,
// and within one pass day when day is non-empty.
type RoleCounter interface {
	RoleCounts(ctx context.Context, pass model.PassType, day string, level int) (model.RoleCounts, error)
}

// WaitlistCounter counts dancers already waiting.
type WaitlistCounter interface {
	Count(ctx context.Context, pass model.PassType, day string, level int, role model.Role) (int, error)
}

// Request is one balance check.
type Request struct {
	Role     model.Role
	Level    int
	PassType model.PassType
	Day      string
}

// Result is the response of POST /weekender/check-role-balance.
type Result struct {
	ShouldWaitlist bool   `json:"shouldWaitlist"`
	Leads          int    `json:"leads"`
	Followers      int    `json:"followers"`
	WaitlistCount  int    `json:"waitlistCount"`
	Message        string `json:"message"`
}

// Evaluator applies the role balance rule.
type Evaluator struct {
	counts    RoleCounter
	waitlist  WaitlistCounter
	tolerance int
}

// NewEvaluator builds an Evaluator. waitlist may be nil.
func NewEvaluator(counts RoleCounter, waitlist WaitlistCounter, tolerance int) *Evaluator {
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	return &Evaluator{counts: counts, waitlist: waitlist, tolerance: tolerance}
}

// Tolerance returns the configured surplus limit.
func (e *Evaluator) Tolerance() int {
	return e.tolerance
}

// ShouldWaitlist reports whether accepting one more dancer of role would push
// the same-role surplus over tolerance.
func ShouldWaitlist(role model.Role, counts model.RoleCounts, tolerance int) bool {
	same := counts.Of(role)
	opposite := counts.Of(role.Opposite())
	return (same+1)-opposite > tolerance
}

// Evaluate runs the check. Weekend passes are balanced per level across the
// whole event; day passes per level within their day. Party and bootcamp
// passes are never waitlisted.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (Result, error) {
	switch req.PassType {
	case model.PassParty, model.PassBootcamp:
		return Result{Message: fmt.Sprintf("The %s pass has no role balancing.", req.PassType)}, nil
	case model.PassWeekend:
		req.Day = ""
	case model.PassDay:
		if !validDay(req.Day) {
			return Result{}, apperr.Validation("passDay must be one of %v for a day pass", model.PassDays)
		}
	default:
		return Result{}, apperr.Validation("unknown pass type %q", req.PassType)
	}
	if req.Role != model.RoleLead && req.Role != model.RoleFollow {
		return Result{}, apperr.Validation("role must be Lead or Follow")
	}
	if req.Level != 1 && req.Level != 2 {
		return Result{}, apperr.Validation("level must be 1 or 2")
	}

	counts, err := e.counts.RoleCounts(ctx, req.PassType, req.Day, req.Level)
	if err != nil {
		return Result{}, fmt.Errorf("count roles: %w", err)
	}

	res := Result{
		ShouldWaitlist: ShouldWaitlist(req.Role, counts, e.tolerance),
		Leads:          counts.Leads,
		Followers:      counts.Followers,
	}
	if e.waitlist != nil {
		n, err := e.waitlist.Count(ctx, req.PassType, req.Day, req.Level, req.Role)
		if err != nil {
			log.Warn().Err(err).Str("pass_type", string(req.PassType)).Int("level", req.Level).
				Msg("waitlist count failed")
		}
		res.WaitlistCount = n
	}
	res.Message = message(req, res)
	return res, nil
}

func message(req Request, res Result) string {
	scope := fmt.Sprintf("level %d", req.Level)
	if req.Day != "" {
		scope = fmt.Sprintf("level %d on %s", req.Level, req.Day)
	}
	if res.ShouldWaitlist {
		return fmt.Sprintf("We have %d leads and %d follows at %s. New %s registrations are being waitlisted until a partner signs up.",
			res.Leads, res.Followers, scope, req.Role)
	}
	return fmt.Sprintf("There is space for a %s at %s.", req.Role, scope)
}

func validDay(day string) bool {
	for _, d := range model.PassDays {
		if d == day {
			return true
		}
	}
	return false
}
