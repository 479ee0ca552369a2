package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
)

// WaitlistRepository handles persistence for the role-balance waitlist.
type WaitlistRepository struct {
	db *pgxpool.Pool
}

// NewWaitlistRepository constructs a WaitlistRepository.
func NewWaitlistRepository(db *pgxpool.Pool) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

// Join adds the participant to the waitlist for a pass type. Joining twice
// refreshes the existing entry.
func (r *WaitlistRepository) Join(ctx context.Context, p model.Participant, e model.WaitlistEntry, now time.Time) (entry model.WaitlistEntry, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return entry, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx, &err)

	if err = lockParticipants(ctx, tx, []model.Participant{p}); err != nil {
		return entry, err
	}
	m, err := findOrCreateMember(ctx, tx, p, now)
	if err != nil {
		return entry, err
	}

	var role, pass string
	err = tx.QueryRow(ctx,
		`INSERT INTO waitlist (id, member_id, email, role, level, pass_type, pass_day, session_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (member_id, pass_type) DO UPDATE SET
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			level = EXCLUDED.level,
			pass_day = EXCLUDED.pass_day,
			session_id = EXCLUDED.session_id
		 RETURNING id, member_id, email, role, level, pass_type, pass_day, session_id, created_at`,
		uuid.New().String(), m.ID, e.Email, string(p.Role), p.Level, string(e.PassType), e.PassDay, e.SessionID, now,
	).Scan(&entry.ID, &entry.MemberID, &entry.Email, &role, &entry.Level, &pass, &entry.PassDay, &entry.SessionID, &entry.CreatedAt)
	if err != nil {
		return entry, fmt.Errorf("insert waitlist entry: %w", err)
	}
	entry.Role = model.Role(role)
	entry.PassType = model.PassType(pass)

	if err = tx.Commit(ctx); err != nil {
		return entry, fmt.Errorf("commit transaction: %w", err)
	}
	return entry, nil
}

// Count returns how many dancers of a role and level wait for a pass type.
func (r *WaitlistRepository) Count(ctx context.Context, pass model.PassType, day string, level int, role model.Role) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM waitlist
		 WHERE pass_type = $1 AND level = $3 AND role = $4
		   AND ($2 = '' OR pass_day = $2)`,
		string(pass), day, level, string(role),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count waitlist: %w", err)
	}
	return n, nil
}
