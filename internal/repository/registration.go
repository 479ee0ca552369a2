package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
)

const registrationColumns = `id, email, member_id, role, level, session_id, order_id, pass_type,
	pass_day, price_tier, amount, payment_status, registration_status, registration_type,
	created_at, attempted_at, updated_at`

// RegistrationRepository handles persistence for members and registrations.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// PrepareAttempt finds or creates the members of an attempt and inserts or
// retries their registrations for the pass type, all in one transaction.
//
// Every participant is locked and checked before anything is written, so a
// couple where either dancer is already complete is rejected without touching
// the other dancer's row. Retries update the existing pending, failed or
// expired row in place; the unique (member_id, pass_type) constraint makes a
// second row impossible even if the locks were bypassed.
func (r *RegistrationRepository) PrepareAttempt(ctx context.Context, a model.Attempt, now time.Time) (regs []model.Registration, err error) {
	if len(a.Participants) == 0 || len(a.Participants) != len(a.Amounts) {
		return nil, fmt.Errorf("prepare attempt: %d participants for %d amounts", len(a.Participants), len(a.Amounts))
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx, &err)

	if err = lockParticipants(ctx, tx, a.Participants); err != nil {
		return nil, err
	}

	members := make([]model.Member, len(a.Participants))
	for i, p := range a.Participants {
		members[i], err = findOrCreateMember(ctx, tx, p, now)
		if err != nil {
			return nil, err
		}
		var existing *model.Registration
		existing, err = lockRegistration(ctx, tx, members[i].ID, a.PassType)
		if err != nil {
			return nil, err
		}
		if model.DecideAttempt(existing) == model.ActionReject {
			err = &AlreadyRegisteredError{Member: members[i], PassType: a.PassType}
			return nil, err
		}
	}

	regs = make([]model.Registration, 0, len(members))
	for i, m := range members {
		p := a.Participants[i]
		var reg model.Registration
		reg, err = scanRegistration(tx.QueryRow(ctx,
			`INSERT INTO registrations (id, email, member_id, role, level, session_id, order_id,
				pass_type, pass_day, price_tier, amount, payment_status, registration_status,
				registration_type, created_at, attempted_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', 'pending', $12, $13, $13, $13)
			 ON CONFLICT (member_id, pass_type) DO UPDATE SET
				email = EXCLUDED.email,
				role = EXCLUDED.role,
				level = EXCLUDED.level,
				session_id = EXCLUDED.session_id,
				order_id = EXCLUDED.order_id,
				pass_day = EXCLUDED.pass_day,
				price_tier = EXCLUDED.price_tier,
				amount = EXCLUDED.amount,
				payment_status = 'pending',
				registration_status = 'pending',
				registration_type = EXCLUDED.registration_type,
				attempted_at = EXCLUDED.attempted_at,
				updated_at = EXCLUDED.updated_at
			 WHERE registrations.registration_status <> 'complete'
			 RETURNING `+registrationColumns,
			uuid.New().String(), a.Email, m.ID, string(p.Role), p.Level, a.SessionID, a.OrderID,
			string(a.PassType), a.PassDay, a.PriceTier, a.Amounts[i], string(a.RegistrationType), now,
		))
		if errors.Is(err, ErrNotFound) {
			// The row turned complete between the check and the upsert.
			err = &AlreadyRegisteredError{Member: m, PassType: a.PassType}
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("upsert registration: %w", err)
		}
		regs = append(regs, reg)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return regs, nil
}

func lockRegistration(ctx context.Context, tx pgx.Tx, memberID string, pass model.PassType) (*model.Registration, error) {
	reg, err := scanRegistration(tx.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE member_id = $1 AND pass_type = $2
		 FOR UPDATE`,
		memberID, string(pass),
	))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock registration: %w", err)
	}
	return &reg, nil
}

// SaveDetails stores ancillary form details for a registration.
func (r *RegistrationRepository) SaveDetails(ctx context.Context, registrationID string, details map[string]any) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO registration_details (registration_id, details, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (registration_id) DO UPDATE SET details = EXCLUDED.details, updated_at = now()`,
		registrationID, details,
	)
	if err != nil {
		return fmt.Errorf("save registration details: %w", err)
	}
	return nil
}

// ListByOrder returns the registrations sharing an order id.
func (r *RegistrationRepository) ListByOrder(ctx context.Context, orderID string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE order_id = $1
		 ORDER BY created_at ASC`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations by order: %w", err)
	}
	return collectRegistrations(rows)
}

// CompletionResult describes what CompleteOrder did.
type CompletionResult struct {
	Registrations   []model.Registration
	AlreadyComplete bool
}

// CompleteOrder marks the order's registrations complete. memberIDs narrows
// the rows when the order index is available; nil means every row of the
// order. Completing an already complete order is a no-op. When the window
// since the attempt started has elapsed the rows are marked expired instead
// and ErrRegistrationExpired is returned.
func (r *RegistrationRepository) CompleteOrder(ctx context.Context, orderID string, memberIDs []string, now time.Time, window time.Duration) (res CompletionResult, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx, &err)

	regs, err := lockOrder(ctx, tx, orderID, memberIDs)
	if err != nil {
		return res, err
	}

	var open []string
	elapsed := false
	for _, reg := range regs {
		if reg.IsComplete() {
			continue
		}
		open = append(open, reg.ID)
		if reg.WindowElapsed(now, window) {
			elapsed = true
		}
	}
	if len(open) == 0 {
		res = CompletionResult{Registrations: regs, AlreadyComplete: true}
		err = tx.Commit(ctx)
		return res, err
	}

	target := model.StatusComplete
	if elapsed {
		target = model.StatusExpired
	}
	res.Registrations, err = setStatus(ctx, tx, open, target, now)
	if err != nil {
		return res, err
	}
	if err = tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit transaction: %w", err)
	}
	if elapsed {
		return res, ErrRegistrationExpired
	}
	return res, nil
}

// FailOrder marks the order's pending registrations failed and returns how
// many rows changed. Complete rows are never downgraded.
func (r *RegistrationRepository) FailOrder(ctx context.Context, orderID string, memberIDs []string, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations
		 SET payment_status = 'failed', registration_status = 'failed', updated_at = $3
		 WHERE order_id = $1
		   AND ($2::uuid[] IS NULL OR member_id = ANY($2::uuid[]))
		   AND registration_status = 'pending'`,
		orderID, memberIDs, now,
	)
	if err != nil {
		return 0, fmt.Errorf("fail order: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FailSession marks every pending registration created by a browsing session
// failed. Used when the client reports a cancelled checkout.
func (r *RegistrationRepository) FailSession(ctx context.Context, sessionID string, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations
		 SET payment_status = 'failed', registration_status = 'failed', updated_at = $2
		 WHERE session_id = $1 AND registration_status = 'pending'`,
		sessionID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("fail session: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RestartOrder reopens an unpaid order for a new checkout: the session id is
// replaced and the registration window starts again.
func (r *RegistrationRepository) RestartOrder(ctx context.Context, orderID, sessionID string, now time.Time) (regs []model.Registration, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx, &err)

	locked, err := lockOrder(ctx, tx, orderID, nil)
	if err != nil {
		return nil, err
	}
	for _, reg := range locked {
		if reg.IsComplete() {
			err = ErrAlreadyComplete
			return nil, err
		}
	}

	rows, err := tx.Query(ctx,
		`UPDATE registrations
		 SET session_id = $2, attempted_at = $3, updated_at = $3,
		     payment_status = 'pending', registration_status = 'pending'
		 WHERE order_id = $1
		 RETURNING `+registrationColumns,
		orderID, sessionID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("restart order: %w", err)
	}
	regs, err = collectRegistrations(rows)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return regs, nil
}

func lockOrder(ctx context.Context, tx pgx.Tx, orderID string, memberIDs []string) ([]model.Registration, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE order_id = $1
		   AND ($2::uuid[] IS NULL OR member_id = ANY($2::uuid[]))
		 ORDER BY id
		 FOR UPDATE`,
		orderID, memberIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	regs, err := collectRegistrations(rows)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, ErrNotFound
	}
	return regs, nil
}

func setStatus(ctx context.Context, tx pgx.Tx, ids []string, status model.Status, now time.Time) ([]model.Registration, error) {
	rows, err := tx.Query(ctx,
		`UPDATE registrations
		 SET payment_status = $2, registration_status = $2, updated_at = $3
		 WHERE id = ANY($1::uuid[]) AND registration_status <> 'complete'
		 RETURNING `+registrationColumns,
		ids, string(status), now,
	)
	if err != nil {
		return nil, fmt.Errorf("set status %s: %w", status, err)
	}
	return collectRegistrations(rows)
}

// CountComplete counts complete registrations for a pass type. A non-empty
// day narrows the count to one pass day.
func (r *RegistrationRepository) CountComplete(ctx context.Context, pass model.PassType, day string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM registrations
		 WHERE pass_type = $1 AND registration_status = 'complete'
		   AND ($2 = '' OR pass_day = $2)`,
		string(pass), day,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count complete registrations: %w", err)
	}
	return n, nil
}

// RoleCounts counts complete leads and follows at one level within a pass
// type, and within one pass day when day is non-empty.
func (r *RegistrationRepository) RoleCounts(ctx context.Context, pass model.PassType, day string, level int) (model.RoleCounts, error) {
	var c model.RoleCounts
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE role = 'Lead'),
		        COUNT(*) FILTER (WHERE role = 'Follow')
		 FROM registrations
		 WHERE pass_type = $1 AND registration_status = 'complete'
		   AND level = $3
		   AND ($2 = '' OR pass_day = $2)`,
		string(pass), day, level,
	).Scan(&c.Leads, &c.Followers)
	if err != nil {
		return model.RoleCounts{}, fmt.Errorf("count roles: %w", err)
	}
	return c, nil
}

// HasCompleteByName reports whether the named member holds a complete
// registration for the pass type.
func (r *RegistrationRepository) HasCompleteByName(ctx context.Context, pass model.PassType, name, surname string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1
			FROM registrations r
			JOIN members m ON m.id = r.member_id
			WHERE lower(m.name) = lower($2) AND lower(m.surname) = lower($3)
			  AND r.pass_type = $1 AND r.registration_status = 'complete'
		 )`,
		string(pass), name, surname,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("lookup registration by name: %w", err)
	}
	return ok, nil
}

// HasCompleteByOrder reports whether the order holds a complete registration
// for the pass type.
func (r *RegistrationRepository) HasCompleteByOrder(ctx context.Context, pass model.PassType, orderID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM registrations
			WHERE order_id = $2 AND pass_type = $1 AND registration_status = 'complete'
		 )`,
		string(pass), orderID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("lookup registration by order: %w", err)
	}
	return ok, nil
}

func scanRegistration(row pgx.Row) (model.Registration, error) {
	var (
		reg                                  model.Registration
		role, pass, payStatus, regStatus, rt string
	)
	err := row.Scan(
		&reg.ID, &reg.Email, &reg.MemberID, &role, &reg.Level, &reg.SessionID, &reg.OrderID, &pass,
		&reg.PassDay, &reg.PriceTier, &reg.Amount, &payStatus, &regStatus, &rt,
		&reg.CreatedAt, &reg.AttemptedAt, &reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Registration{}, ErrNotFound
		}
		return model.Registration{}, err
	}
	reg.Role = model.Role(role)
	reg.PassType = model.PassType(pass)
	reg.PaymentStatus = model.Status(payStatus)
	reg.RegistrationStatus = model.Status(regStatus)
	reg.RegistrationType = model.RegistrationType(rt)
	return reg, nil
}

func collectRegistrations(rows pgx.Rows) ([]model.Registration, error) {
	defer rows.Close()
	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}
