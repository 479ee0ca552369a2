package pricing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/apperr"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
)

// CompletedCounter counts paid registrations. A non-empty day narrows the
// count to one pass day.
type CompletedCounter interface {
	CountComplete(ctx context.Context, pass model.PassType, day string) (int, error)
}

// TierStore persists the highest tier index ever reached. AdvanceTier never
// lowers the stored value and returns what is stored after the call.
type TierStore interface {
	AdvanceTier(ctx context.Context, pass model.PassType, index int) (int, error)
}

// Price is a tier's price in minor currency units.
type Price struct {
	Single int64 `json:"single"`
	Couple int64 `json:"couple"`
}

// Status is the response of GET /weekender/tier-status.
type Status struct {
	NowTierSoldOut bool   `json:"nowTierSoldOut"`
	CompletedCount int    `json:"completedCount"`
	CurrentTier    string `json:"currentTier"`
	CurrentPrice   Price  `json:"currentPrice"`
	Degraded       bool   `json:"degraded,omitempty"`
}

// Quote is the authoritative amount for one checkout.
type Quote struct {
	Tier   string
	Amount int64
}

// Engine resolves the active weekend tier. Once a tier is exhausted it is
// never offered again: the reported tier is the highest of the tier computed
// from the live count, the persisted tier and the highest tier this process
// has already reported.
type Engine struct {
	tiers   Tiers
	counter CompletedCounter
	store   TierStore

	mu   sync.Mutex
	high int
}

// NewEngine builds an Engine. store may be nil, in which case only the
// in-process high-water mark guards against moving backwards.
func NewEngine(tiers Tiers, counter CompletedCounter, store TierStore) *Engine {
	if len(tiers) == 0 {
		tiers = Default
	}
	return &Engine{tiers: tiers, counter: counter, store: store}
}

// Tiers returns the configured ladder.
func (e *Engine) Tiers() Tiers {
	return e.tiers
}

// Current reports the active tier for display. A failed lookup does not fail
// the request: the last tier seen is returned (the cheapest if none) and
// Degraded is set.
func (e *Engine) Current(ctx context.Context) Status {
	st, err := e.resolve(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("tier lookup failed, serving last known tier")
		return e.status(e.highWater(-1), 0, true)
	}
	return st
}

// Quote returns the amount to charge for a weekend pass. Unlike Current it
// fails when the tier cannot be resolved. A non-empty clientTier that does
// not match the active tier is rejected so the client can show the new
// price before paying it.
func (e *Engine) Quote(ctx context.Context, clientTier string, regType model.RegistrationType) (Quote, error) {
	st, err := e.resolve(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("resolve price tier: %w", err)
	}
	clientTier = strings.TrimSpace(clientTier)
	if clientTier != "" && !strings.EqualFold(clientTier, st.CurrentTier) {
		return Quote{}, apperr.Conflict(apperr.CodePriceTierChanged,
			"the price tier changed from %s to %s, please review the new price", clientTier, st.CurrentTier)
	}
	amount := st.CurrentPrice.Single
	if regType == model.TypeCouple {
		amount = st.CurrentPrice.Couple
	}
	return Quote{Tier: st.CurrentTier, Amount: amount}, nil
}

func (e *Engine) resolve(ctx context.Context) (Status, error) {
	count, err := e.counter.CountComplete(ctx, model.PassWeekend, "")
	if err != nil {
		return Status{}, err
	}
	idx := e.tiers.IndexFor(count)
	if e.store != nil {
		stored, err := e.store.AdvanceTier(ctx, model.PassWeekend, idx)
		if err != nil {
			return Status{}, err
		}
		if stored >= len(e.tiers) {
			stored = len(e.tiers) - 1
		}
		idx = max(idx, stored)
	}
	return e.status(e.highWater(idx), count, false), nil
}

// highWater raises the in-process mark to idx and returns the mark.
func (e *Engine) highWater(idx int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx > e.high {
		e.high = idx
	}
	metrics.CurrentTierIndex.Set(float64(e.high))
	return e.high
}

func (e *Engine) status(idx, count int, degraded bool) Status {
	tier := e.tiers[idx]
	return Status{
		NowTierSoldOut: idx > 0,
		CompletedCount: count,
		CurrentTier:    tier.Name,
		CurrentPrice:   Price{Single: tier.Single, Couple: tier.Couple},
		Degraded:       degraded,
	}
}
