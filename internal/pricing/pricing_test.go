package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/apperr"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
)

type fakeCounter struct {
	counts map[string]int
	err    error
}

func (f *fakeCounter) CountComplete(_ context.Context, pass model.PassType, day string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[string(pass)+"/"+day], nil
}

type fakeTierStore struct {
	stored int
	err    error
}

func (f *fakeTierStore) AdvanceTier(_ context.Context, _ model.PassType, index int) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.stored = max(f.stored, index)
	return f.stored, nil
}

func weekend(n int) *fakeCounter {
	return &fakeCounter{counts: map[string]int{"weekend/": n}}
}

func TestTiersDecode(t *testing.T) {
	var tiers Tiers
	require.NoError(t, tiers.Decode("now:40:160000:320000, now-now:80:180000:360000,ai-tog:0:220000:440000"))
	require.Len(t, tiers, 3)
	assert.Equal(t, Tier{Name: "now", Threshold: 40, Single: 160000, Couple: 320000}, tiers[0])
	assert.Equal(t, "ai-tog", tiers[2].Name)

	for _, bad := range []string{
		"",
		"now:40:160000",
		"now:x:160000:320000",
		"now:0:160000:320000,later:10:1:2",
		"now:40:1:2,later:30:1:2",
	} {
		var tt Tiers
		assert.Error(t, tt.Decode(bad), bad)
	}
}

func TestTiersIndexFor(t *testing.T) {
	assert.Equal(t, 0, Default.IndexFor(0))
	assert.Equal(t, 0, Default.IndexFor(39))
	assert.Equal(t, 1, Default.IndexFor(40))
	assert.Equal(t, 2, Default.IndexFor(80))
	assert.Equal(t, 3, Default.IndexFor(120))
	assert.Equal(t, 3, Default.IndexFor(10_000))
}

func TestCurrentReportsTierAndPrices(t *testing.T) {
	e := NewEngine(Default, weekend(12), &fakeTierStore{})

	st := e.Current(context.Background())

	assert.Equal(t, Status{
		NowTierSoldOut: false,
		CompletedCount: 12,
		CurrentTier:    "now",
		CurrentPrice:   Price{Single: 160000, Couple: 320000},
	}, st)
}

func TestCurrentNeverMovesBackwards(t *testing.T) {
	counter := weekend(40)
	e := NewEngine(Default, counter, nil)

	st := e.Current(context.Background())
	require.Equal(t, "now-now", st.CurrentTier)
	assert.True(t, st.NowTierSoldOut)

	// A stale or partial count must not bring "now" back.
	counter.counts["weekend/"] = 3
	st = e.Current(context.Background())
	assert.Equal(t, "now-now", st.CurrentTier)
	assert.True(t, st.NowTierSoldOut)

	counter.err = errors.New("connection reset")
	st = e.Current(context.Background())
	assert.Equal(t, "now-now", st.CurrentTier)
	assert.True(t, st.Degraded)
}

func TestCurrentUsesPersistedTier(t *testing.T) {
	// Another instance already escalated to just-now.
	e := NewEngine(Default, weekend(5), &fakeTierStore{stored: 2})

	st := e.Current(context.Background())

	assert.Equal(t, "just-now", st.CurrentTier)
	assert.Equal(t, int64(200000), st.CurrentPrice.Single)
}

func TestCurrentDefaultsToCheapestOnFirstFailure(t *testing.T) {
	e := NewEngine(Default, &fakeCounter{err: errors.New("down")}, nil)

	st := e.Current(context.Background())

	assert.Equal(t, "now", st.CurrentTier)
	assert.True(t, st.Degraded)
	assert.False(t, st.NowTierSoldOut)
}

func TestQuote(t *testing.T) {
	e := NewEngine(Default, weekend(41), &fakeTierStore{})
	ctx := context.Background()

	q, err := e.Quote(ctx, "now-now", model.TypeSingle)
	require.NoError(t, err)
	assert.Equal(t, Quote{Tier: "now-now", Amount: 180000}, q)

	q, err = e.Quote(ctx, "", model.TypeCouple)
	require.NoError(t, err)
	assert.Equal(t, int64(360000), q.Amount)

	_, err = e.Quote(ctx, "now", model.TypeSingle)
	require.Error(t, err)
	assert.Equal(t, apperr.CodePriceTierChanged, apperr.As(err).Code)
}

func TestQuoteFailsWhenLookupFails(t *testing.T) {
	e := NewEngine(Default, weekend(0), &fakeTierStore{err: errors.New("tier table locked")})

	_, err := e.Quote(context.Background(), "now", model.TypeSingle)

	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.As(err).Kind)
}

func TestCapacityChecker(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int{
		"day/saturday": 60,
		"day/sunday":   12,
		"party/":       149,
	}}
	c := NewCapacityChecker(counter, map[model.PassType]int{
		model.PassDay:   60,
		model.PassParty: 150,
	})
	ctx := context.Background()

	sat, err := c.Availability(ctx, model.PassDay, "saturday")
	require.NoError(t, err)
	assert.True(t, sat.SoldOut)

	sun, err := c.Availability(ctx, model.PassDay, "sunday")
	require.NoError(t, err)
	assert.False(t, sun.SoldOut)
	assert.Equal(t, 12, sun.Completed)

	party, err := c.Availability(ctx, model.PassParty, "saturday")
	require.NoError(t, err)
	assert.Equal(t, "", party.Day)
	assert.False(t, party.SoldOut)
	assert.Equal(t, 150, party.Limit)

	wk, err := c.Availability(ctx, model.PassWeekend, "")
	require.NoError(t, err)
	assert.False(t, wk.SoldOut)
}
