// Package repository implements all database queries for weekender registration.
// It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyRegistered is returned when a member already holds a complete
// registration for the pass type. The concrete error is *AlreadyRegisteredError.
var ErrAlreadyRegistered = errors.New("member already registered for this pass")

// ErrRegistrationExpired is returned when payment completes after the
// registration window. The rows have been marked expired.
var ErrRegistrationExpired = errors.New("registration window elapsed")

// ErrAlreadyComplete is returned when an order that is already paid is
// restarted.
var ErrAlreadyComplete = errors.New("order already complete")

// AlreadyRegisteredError names the member who blocked an attempt.
type AlreadyRegisteredError struct {
	Member   model.Member
	PassType model.PassType
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("%s already has a complete %s registration", e.Member.FullName(), e.PassType)
}

func (e *AlreadyRegisteredError) Is(target error) bool {
	return target == ErrAlreadyRegistered
}

const memberColumns = `id, name, surname, role, level, created_at`

// lockParticipants takes a transaction-scoped advisory lock per participant
// identity, in sorted order so that two couples sharing a dancer cannot
// deadlock. The locks serialise find-or-create and the retry-vs-insert
// decision for the same person.
func lockParticipants(ctx context.Context, tx pgx.Tx, participants []model.Participant) error {
	keys := make([]string, 0, len(participants))
	for _, p := range participants {
		keys = append(keys, "member:"+p.Key())
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("advisory lock %s: %w", key, err)
		}
	}
	return nil
}

// findOrCreateMember returns the member matching the participant's name and
// surname case-insensitively, creating it with the participant's role and
// level when absent. An existing member's role and level are left as stored.
func findOrCreateMember(ctx context.Context, tx pgx.Tx, p model.Participant, now time.Time) (model.Member, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO members (id, name, surname, role, level, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT DO NOTHING`,
		uuid.New().String(), p.Name, p.Surname, string(p.Role), p.Level, now,
	)
	if err != nil {
		return model.Member{}, fmt.Errorf("insert member: %w", err)
	}

	m, err := scanMember(tx.QueryRow(ctx,
		`SELECT `+memberColumns+`
		 FROM members
		 WHERE lower(name) = lower($1) AND lower(surname) = lower($2)`,
		p.Name, p.Surname,
	))
	if err != nil {
		return model.Member{}, fmt.Errorf("select member: %w", err)
	}
	return m, nil
}

func scanMember(row pgx.Row) (model.Member, error) {
	var (
		m    model.Member
		role string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Surname, &role, &m.Level, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Member{}, ErrNotFound
		}
		return model.Member{}, err
	}
	m.Role = model.Role(role)
	return m, nil
}

// rollback is deferred by every transactional method.
func rollback(ctx context.Context, tx pgx.Tx, err *error) {
	if *err != nil {
		_ = tx.Rollback(ctx)
	}
}
