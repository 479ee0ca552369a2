package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
)

// TierRepository persists the highest price tier ever reached per pass type.
type TierRepository struct {
	db *pgxpool.Pool
}

// NewTierRepository constructs a TierRepository.
func NewTierRepository(db *pgxpool.Pool) *TierRepository {
	return &TierRepository{db: db}
}

// AdvanceTier raises the stored tier index to at least index and returns the
// stored value. The update only ever moves forward, so concurrent callers that
// computed different tiers converge on the highest one.
func (r *TierRepository) AdvanceTier(ctx context.Context, pass model.PassType, index int) (int, error) {
	var stored int
	err := r.db.QueryRow(ctx,
		`INSERT INTO price_tier_state (pass_type, tier_index, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (pass_type) DO UPDATE
		 SET tier_index = GREATEST(price_tier_state.tier_index, EXCLUDED.tier_index),
		     updated_at = CASE
		         WHEN EXCLUDED.tier_index > price_tier_state.tier_index THEN now()
		         ELSE price_tier_state.updated_at
		     END
		 RETURNING tier_index`,
		string(pass), index,
	).Scan(&stored)
	if err != nil {
		return 0, fmt.Errorf("advance tier: %w", err)
	}
	return stored, nil
}
