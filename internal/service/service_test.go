package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/apperr"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/balance"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/checkout"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/kvstore"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/pricing"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/service/servicetest"
)

var testSettings = Settings{
	Window:                  5 * time.Minute,
	PublicBaseURL:           "https://weekender.test/",
	Currency:                "ZAR",
	DayPassPrice:            90000,
	PartyPassPrice:          25000,
	BootcampBeginnerPrice:   60000,
	BootcampFastTrackPrice:  80000,
	BootcampDiscountPercent: 50,
}

type harness struct {
	store    *servicetest.Store
	kv       *kvstore.Store
	pay      *servicetest.Checkout
	events   *servicetest.Events
	clock    *servicetest.Clock
	regs     *RegistrationService
	payments *PaymentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kv, err := kvstore.Open(filepath.Join(t.TempDir(), "kv.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	h := &harness{
		store:  servicetest.NewStore(),
		kv:     kv,
		pay:    &servicetest.Checkout{},
		events: &servicetest.Events{},
		clock:  servicetest.NewClock(time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC)),
	}
	h.build(kv)
	return h
}

func (h *harness) build(eph EphemeralStore) {
	deps := Deps{
		Registrations: h.store,
		Payments:      h.store,
		Waitlist:      h.store,
		Ephemeral:     eph,
		Checkout:      h.pay,
		Events:        h.events,
		Pricing:       pricing.NewEngine(pricing.Default, h.store, h.store),
		Capacity: pricing.NewCapacityChecker(h.store, map[model.PassType]int{
			model.PassDay:   2,
			model.PassParty: 150,
		}),
		Balance: balance.NewEvaluator(h.store, h.store, balance.DefaultTolerance),
		Now:     h.clock.Now,
	}
	h.regs = NewRegistrationService(deps, testSettings)
	h.payments = NewPaymentService(deps, testSettings.Window)
}

func single(sessionID, name, surname, role string, level int, tier string) model.SubmitRequest {
	return model.SubmitRequest{
		SessionID: sessionID,
		PriceTier: tier,
		Registration: model.RegistrationInput{
			Type:     "single",
			PassType: "weekend",
			Name:     name,
			Surname:  surname,
			Email:    "ada@example.com",
			Role:     role,
			Level:    level,
		},
	}
}

func couple(sessionID string, lead, follow [2]string) model.SubmitRequest {
	return model.SubmitRequest{
		SessionID: sessionID,
		Registration: model.RegistrationInput{
			Type:     "couple",
			PassType: "weekend",
			Email:    "pair@example.com",
			Level:    1,
			Lead:     &model.DancerInput{Name: lead[0], Surname: lead[1]},
			Follow:   &model.DancerInput{Name: follow[0], Surname: follow[1]},
		},
	}
}

func code(err error) string {
	return apperr.As(err).Code
}

func TestAdaLovelaceScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.regs.SubmitWeekender(ctx, single("sess-ada", "Ada", "Lovelace", "F", 2, "now"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.CheckoutURL)
	assert.Regexp(t, `^WKND-[0-9A-Z]{26}$`, res.Reference)
	assert.Equal(t, "now", res.PriceTier)
	assert.Equal(t, int64(160000), res.Amount)

	reqs := h.pay.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, int64(160000), reqs[0].Amount)
	assert.Equal(t, "ZAR", reqs[0].Currency)
	assert.Equal(t, res.Reference, reqs[0].Metadata.OrderID)
	assert.Contains(t, reqs[0].SuccessURL, "https://weekender.test/weekender/payment/success?")
	assert.Contains(t, reqs[0].SuccessURL, "orderId="+res.Reference)
	assert.Contains(t, reqs[0].CancelURL, "sessionId=sess-ada")

	ids, err := h.kv.GetOrderMemberIDs(ctx, res.Reference)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	h.clock.Advance(2 * time.Minute)
	done, err := h.payments.PaymentComplete(ctx, model.PaymentSignal{SessionID: "sess-ada", Reference: res.Reference})
	require.NoError(t, err)
	assert.False(t, done.AlreadyComplete)

	reg, ok := h.store.Registration("ada", "LOVELACE", model.PassWeekend)
	require.True(t, ok)
	assert.Equal(t, model.StatusComplete, reg.RegistrationStatus)
	assert.Equal(t, model.StatusComplete, reg.PaymentStatus)
	assert.Equal(t, model.RoleFollow, reg.Role)
	assert.Equal(t, 2, reg.Level)

	_, err = h.regs.SubmitWeekender(ctx, single("sess-ada-2", "Ada", "Lovelace", "F", 2, ""))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAlreadyRegistered, code(err))
	assert.Equal(t, 409, apperr.StatusCode(err))
	assert.Contains(t, apperr.As(err).Message, "Ada Lovelace")

	assert.Equal(t, []string{
		"sess-ada:" + model.EventPaymentInProgress,
		"sess-ada:" + model.EventPaymentComplete,
	}, h.events.All())
}

func TestRetryUpdatesTheSameRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.regs.SubmitWeekender(ctx, single("s1", "Grace", "Hopper", "L", 1, "now"))
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	second, err := h.regs.SubmitWeekender(ctx, single("s2", "grace", "hopper", "Lead", 1, "now"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Reference, second.Reference)

	rows := h.store.Registrations()
	require.Len(t, rows, 1)
	assert.Equal(t, second.Reference, rows[0].OrderID)
	assert.Equal(t, "s2", rows[0].SessionID)
	assert.Equal(t, model.StatusPending, rows[0].RegistrationStatus)
	assert.Equal(t, h.clock.Now(), rows[0].AttemptedAt)
}

func TestPaymentCompleteTwiceIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.regs.SubmitWeekender(ctx, single("s1", "Alan", "Turing", "L", 1, ""))
	require.NoError(t, err)
	sig := model.PaymentSignal{SessionID: "s1", Reference: res.Reference}

	first, err := h.payments.PaymentComplete(ctx, sig)
	require.NoError(t, err)
	assert.False(t, first.AlreadyComplete)

	h.clock.Advance(10 * time.Minute)
	second, err := h.payments.PaymentComplete(ctx, sig)
	require.NoError(t, err)
	assert.True(t, second.AlreadyComplete)

	rows := h.store.Registrations()
	require.Len(t, rows, 1)
	assert.Equal(t, model.StatusComplete, rows[0].RegistrationStatus)

	n, err := h.store.CountComplete(ctx, model.PassWeekend, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	completions := 0
	for _, e := range h.events.All() {
		if e == "s1:"+model.EventPaymentComplete {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestAlreadyRegisteredLeavesRowUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	paid := h.store.Seed(model.Participant{Name: "Katherine", Surname: "Johnson", Role: model.RoleFollow, Level: 2}, model.Registration{
		Email:              "kj@example.com",
		SessionID:          "old",
		OrderID:            "WKND-OLD",
		PassType:           model.PassWeekend,
		PriceTier:          "now",
		Amount:             160000,
		PaymentStatus:      model.StatusComplete,
		RegistrationStatus: model.StatusComplete,
		RegistrationType:   model.TypeSingle,
		CreatedAt:          h.clock.Now().Add(-48 * time.Hour),
	})

	_, err := h.regs.SubmitWeekender(ctx, single("new", "Katherine", "Johnson", "F", 2, ""))
	assert.ErrorIs(t, err, apperr.ErrAlreadyRegistered)

	reg, ok := h.store.Registration("Katherine", "Johnson", model.PassWeekend)
	require.True(t, ok)
	assert.Equal(t, paid, reg)
	assert.Empty(t, h.pay.Requests())
}

func TestCoupleIsRejectedWhenFollowAlreadyPaid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.store.Seed(model.Participant{Name: "Ginger", Surname: "Rogers", Role: model.RoleFollow, Level: 1}, model.Registration{
		OrderID:            "WKND-G",
		PassType:           model.PassWeekend,
		PaymentStatus:      model.StatusComplete,
		RegistrationStatus: model.StatusComplete,
		CreatedAt:          h.clock.Now().Add(-time.Hour),
	})
	leadPending := h.store.Seed(model.Participant{Name: "Fred", Surname: "Astaire", Role: model.RoleLead, Level: 1}, model.Registration{
		OrderID:            "WKND-F",
		SessionID:          "earlier",
		PassType:           model.PassWeekend,
		Amount:             160000,
		PaymentStatus:      model.StatusExpired,
		RegistrationStatus: model.StatusExpired,
		CreatedAt:          h.clock.Now().Add(-time.Hour),
	})

	_, err := h.regs.SubmitWeekender(ctx, couple("s-couple", [2]string{"Fred", "Astaire"}, [2]string{"Ginger", "Rogers"}))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAlreadyRegistered, code(err))
	assert.Contains(t, apperr.As(err).Message, "Ginger Rogers")

	reg, ok := h.store.Registration("Fred", "Astaire", model.PassWeekend)
	require.True(t, ok)
	assert.Equal(t, leadPending, reg)
	assert.Empty(t, h.pay.Requests())
}

func TestCoupleSharesOneOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.regs.SubmitWeekender(ctx, couple("s-couple", [2]string{"Fred", "Astaire"}, [2]string{"Ginger", "Rogers"}))
	require.NoError(t, err)
	assert.Equal(t, int64(320000), res.Amount)

	rows := h.store.Registrations()
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, res.Reference, r.OrderID)
		assert.Equal(t, int64(160000), r.Amount)
		assert.Equal(t, model.TypeCouple, r.RegistrationType)
	}
	lead, _ := h.store.Registration("Fred", "Astaire", model.PassWeekend)
	follow, _ := h.store.Registration("Ginger", "Rogers", model.PassWeekend)
	assert.Equal(t, model.RoleLead, lead.Role)
	assert.Equal(t, model.RoleFollow, follow.Role)

	reqs := h.pay.Requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].LineItems, 2)
	assert.Equal(t, int64(320000), reqs[0].Amount)

	_, err = h.payments.PaymentComplete(ctx, model.PaymentSignal{SessionID: "s-couple", OrderID: res.Reference})
	require.NoError(t, err)
	n, err := h.store.CountComplete(ctx, model.PassWeekend, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    model.Status
		expired bool
	}{
		{"just inside the window", 4*time.Minute + 59*time.Second, model.StatusComplete, false},
		{"exactly at the window", 5 * time.Minute, model.StatusComplete, false},
		{"one second late", 5*time.Minute + time.Second, model.StatusExpired, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			res, err := h.regs.SubmitWeekender(ctx, single("s1", "Ada", "Lovelace", "F", 2, "now"))
			require.NoError(t, err)

			h.clock.Advance(tt.elapsed)
			_, err = h.payments.PaymentComplete(ctx, model.PaymentSignal{SessionID: "s1", Reference: res.Reference})
			if tt.expired {
				require.Error(t, err)
				assert.Equal(t, 410, apperr.StatusCode(err))
				assert.Equal(t, apperr.CodeExpired, code(err))
			} else {
				require.NoError(t, err)
			}

			reg, _ := h.store.Registration("Ada", "Lovelace", model.PassWeekend)
			assert.Equal(t, tt.want, reg.RegistrationStatus)
		})
	}
}

func TestExpiredOrderCanBeRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.regs.SubmitWeekender(ctx, single("s1", "Ada", "Lovelace", "F", 2, ""))
	require.NoError(t, err)
	h.clock.Advance(6 * time.Minute)
	_, err = h.payments.PaymentComplete(ctx, model.PaymentSignal{SessionID: "s1", Reference: res.Reference})
	require.ErrorIs(t, err, apperr.ErrExpired)

	again, err := h.regs.SubmitWeekender(ctx, single("s2", "Ada", "Lovelace", "F", 2, ""))
	require.NoError(t, err)
	_, err = h.payments.PaymentComplete(ctx, model.PaymentSignal{SessionID: "s2", Reference: again.Reference})
	require.NoError(t, err)
	require.Len(t, h.store.Registrations(), 1)
}

func TestPaymentCompleteFallsBackWithoutOrderIndex(t *testing.T) {
	h := newHarness(t)
	h.build(lossyIndex{h.kv})
	ctx := context.Background()

	res, err := h.regs.SubmitWeekender(ctx, single("s1", "Hedy", "Lamarr", "F", 1, ""))
	require.NoError(t, err)

	_, err = h.payments.PaymentComplete(ctx, model.PaymentSignal{SessionID: "s1", Reference: res.Reference})
	require.NoError(t, err)
	reg, _ := h.store.Registration("Hedy", "Lamarr", model.PassWeekend)
	assert.Equal(t, model.StatusComplete, reg.RegistrationStatus)
}

type lossyIndex struct {
	*kvstore.Store
}

func (lossyIndex) SetOrderMemberIDs(context.Context, string, []string) error {
	return errors.New("cache unavailable")
}

func (lossyIndex) GetOrderMemberIDs(context.Context, string) ([]string, error) {
	return nil, kvstore.ErrNotFound
}

func TestPaymentCompleteUnknownOrder(t *testing.T) {
	h := newHarness(t)

	_, err := h.payments.PaymentComplete(context.Background(), model.PaymentSignal{SessionID: "s", Reference: "WKND-NOPE"})

	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPriceTierChangedIsRejectedBeforeWriting(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 40; i++ {
		h.store.Seed(model.Participant{Name: "Dancer", Surname: string(rune('A'+i%26)) + string(rune('a'+i/26)), Role: model.RoleLead, Level: 1}, model.Registration{
			OrderID:            "WKND-SEED",
			PassType:           model.PassWeekend,
			PaymentStatus:      model.StatusComplete,
			RegistrationStatus: model.StatusComplete,
		})
	}
	ctx := context.Background()

	_, err := h.regs.SubmitWeekender(ctx, single("s1", "Ada", "Lovelace", "F", 2, "now"))
	require.Error(t, err)
	assert.Equal(t, apperr.CodePriceTierChanged, code(err))
	_, found := h.store.Registration("Ada", "Lovelace", model.PassWeekend)
	assert.False(t, found)

	assert.Equal(t, "now-now", h.regs.TierStatus(ctx).CurrentTier)
	res, err := h.regs.SubmitWeekender(ctx, single("s1", "Ada", "Lovelace", "F", 2, "now-now"))
	require.NoError(t, err)
	assert.Equal(t, int64(180000), res.Amount)
}

func TestPaymentSystemUnavailable(t *testing.T) {
	h := newHarness(t)
	h.pay.Unconfigured = true

	_, err := h.regs.SubmitWeekender(context.Background(), single("s1", "Ada", "Lovelace", "F", 2, ""))

	require.Error(t, err)
	assert.Equal(t, apperr.CodePaymentUnavailable, code(err))
	assert.Equal(t, 500, apperr.StatusCode(err))
	assert.Empty(t, h.store.Registrations())
}

func TestUpstreamCheckoutError(t *testing.T) {
	h := newHarness(t)
	h.pay.Err = &checkout.UpstreamError{StatusCode: 502, Body: "bad gateway"}

	_, err := h.regs.SubmitWeekender(context.Background(), single("s1", "Ada", "Lovelace", "F", 2, ""))

	require.Error(t, err)
	assert.Equal(t, apperr.CodeUpstreamPayment, code(err))
	// The pending row stays for a later retry.
	reg, ok := h.store.Registration("Ada", "Lovelace", model.PassWeekend)
	require.True(t, ok)
	assert.Equal(t, model.StatusPending, reg.RegistrationStatus)
	assert.Empty(t, h.events.All())
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := map[string]func(*model.SubmitRequest){
		"missing session":    func(r *model.SubmitRequest) { r.SessionID = "" },
		"missing name":       func(r *model.SubmitRequest) { r.Registration.Name = "" },
		"bad email":          func(r *model.SubmitRequest) { r.Registration.Email = "not-an-email" },
		"bad role":           func(r *model.SubmitRequest) { r.Registration.Role = "X" },
		"bad level":          func(r *model.SubmitRequest) { r.Registration.Level = 3 },
		"bad type":           func(r *model.SubmitRequest) { r.Registration.Type = "trio" },
		"bootcamp pass":      func(r *model.SubmitRequest) { r.Registration.PassType = "bootcamp" },
		"day without a day":  func(r *model.SubmitRequest) { r.Registration.PassType = "day" },
		"couple without one": func(r *model.SubmitRequest) { r.Registration.Type = "couple" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := single("s1", "Ada", "Lovelace", "F", 2, "")
			mutate(&req)
			_, err := h.regs.SubmitWeekender(ctx, req)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
	assert.Empty(t, h.store.Registrations())
}

func TestDayAndPartyPasses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	day := single("s1", "Ada", "Lovelace", "F", 2, "ignored")
	day.Registration.PassType = "day"
	day.Registration.PassDay = "Saturday"
	res, err := h.regs.SubmitWeekender(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(90000), res.Amount)
	reg, _ := h.store.Registration("Ada", "Lovelace", model.PassDay)
	assert.Equal(t, "saturday", reg.PassDay)

	party := model.SubmitRequest{SessionID: "s2", Registration: model.RegistrationInput{
		PassType: "party", Name: "Ada", Surname: "Lovelace", Email: "ada@example.com",
	}}
	res, err = h.regs.SubmitWeekender(ctx, party)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), res.Amount)

	// Separate pass types give one row each.
	assert.Len(t, h.store.Registrations(), 2)
}

func TestDayPassSoldOut(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"One", "Two"} {
		h.store.Seed(model.Participant{Name: name, Surname: "Dancer", Role: model.RoleLead, Level: 1}, model.Registration{
			PassType:           model.PassDay,
			PassDay:            "sunday",
			PaymentStatus:      model.StatusComplete,
			RegistrationStatus: model.StatusComplete,
		})
	}
	ctx := context.Background()

	req := single("s1", "Ada", "Lovelace", "F", 2, "")
	req.Registration.PassType = "day"
	req.Registration.PassDay = "sunday"
	_, err := h.regs.SubmitWeekender(ctx, req)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeSoldOut, code(err))

	req.Registration.PassDay = "saturday"
	_, err = h.regs.SubmitWeekender(ctx, req)
	require.NoError(t, err)

	avail, err := h.regs.PassStatus(ctx, "day", "sunday")
	require.NoError(t, err)
	assert.True(t, avail.SoldOut)
	assert.Equal(t, 2, avail.Completed)
}

func bootcamp(validated bool) model.BootcampRequest {
	danced := false
	return model.BootcampRequest{
		SessionID:          "s-boot",
		Type:               "beginner",
		Name:               "Ada",
		Surname:            "Lovelace",
		Email:              "ada@example.com",
		WeekenderValidated: validated,
		HasDancedBefore:    &danced,
		Motivation:         "Always wanted to learn",
	}
}

func TestBootcampDiscountRequiresPaidWeekender(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.regs.SubmitBootcamp(ctx, bootcamp(true))
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, h.store.Registrations())

	res, err := h.regs.SubmitBootcamp(ctx, bootcamp(false))
	require.NoError(t, err)
	assert.Equal(t, int64(60000), res.Amount)
	assert.Regexp(t, `^BOOT-`, res.Reference)
	assert.Contains(t, h.pay.Requests()[0].SuccessURL, "/bootcamp/payment/success")

	reg, ok := h.store.Registration("Ada", "Lovelace", model.PassBootcamp)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"bootcampType":    "beginner",
		"hasDancedBefore": false,
		"motivation":      "Always wanted to learn",
	}, h.store.Details(reg.ID))
}

func TestBootcampDiscountAppliedAfterRevalidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.Seed(model.Participant{Name: "Ada", Surname: "Lovelace", Role: model.RoleFollow, Level: 2}, model.Registration{
		OrderID:            "WKND-ADA",
		PassType:           model.PassWeekend,
		PaymentStatus:      model.StatusComplete,
		RegistrationStatus: model.StatusComplete,
	})

	ok, err := h.regs.ValidateWeekender(ctx, model.ValidateWeekenderRequest{Name: "ADA", Surname: "lovelace"})
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := h.regs.SubmitBootcamp(ctx, bootcamp(true))
	require.NoError(t, err)
	assert.Equal(t, int64(30000), res.Amount)
	assert.Equal(t, "beginner-weekender", res.PriceTier)
}

func TestBootcampDiscountByOrderID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.Seed(model.Participant{Name: "Augusta", Surname: "King", Role: model.RoleFollow, Level: 2}, model.Registration{
		OrderID:            "WKND-AK",
		PassType:           model.PassWeekend,
		PaymentStatus:      model.StatusComplete,
		RegistrationStatus: model.StatusComplete,
	})

	ok, err := h.regs.ValidateWeekender(ctx, model.ValidateWeekenderRequest{OrderID: "WKND-AK"})
	require.NoError(t, err)
	assert.True(t, ok)

	req := bootcamp(true)
	req.Type = "fast-track"
	req.HasDancedBefore = nil
	years := 3
	req.YearsDancing = &years
	req.CurrentLevel = "improver"
	req.WeekenderOrderID = "WKND-AK"
	res, err := h.regs.SubmitBootcamp(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(40000), res.Amount)

	_, err = h.regs.ValidateWeekender(ctx, model.ValidateWeekenderRequest{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPayExisting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.regs.SubmitWeekender(ctx, single("s1", "Ada", "Lovelace", "F", 2, ""))
	require.NoError(t, err)
	h.clock.Advance(10 * time.Minute)
	_, err = h.payments.PaymentComplete(ctx, model.PaymentSignal{SessionID: "s1", Reference: res.Reference})
	require.ErrorIs(t, err, apperr.ErrExpired)

	again, err := h.regs.PayExisting(ctx, res.Reference, "s2")
	require.NoError(t, err)
	assert.Equal(t, res.Reference, again.Reference)
	assert.Equal(t, int64(160000), again.Amount)

	reqs := h.pay.Requests()
	require.Len(t, reqs, 2)
	assert.NotEqual(t, reqs[0].IdempotencyKey, reqs[1].IdempotencyKey)

	reg, _ := h.store.Registration("Ada", "Lovelace", model.PassWeekend)
	assert.Equal(t, model.StatusPending, reg.RegistrationStatus)
	assert.Equal(t, "s2", reg.SessionID)
	assert.Equal(t, h.clock.Now(), reg.AttemptedAt)

	h.clock.Advance(time.Minute)
	_, err = h.payments.PaymentComplete(ctx, model.PaymentSignal{SessionID: "s2", Reference: res.Reference})
	require.NoError(t, err)

	_, err = h.regs.PayExisting(ctx, res.Reference, "s3")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = h.regs.PayExisting(ctx, "WKND-MISSING", "s3")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = h.regs.PayExisting(ctx, "", "s3")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPaymentFailedNeverDowngradesComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.regs.SubmitWeekender(ctx, single("s1", "Ada", "Lovelace", "F", 2, ""))
	require.NoError(t, err)
	_, err = h.payments.PaymentComplete(ctx, model.PaymentSignal{SessionID: "s1", Reference: res.Reference})
	require.NoError(t, err)

	require.NoError(t, h.payments.PaymentFailed(ctx, model.PaymentSignal{SessionID: "s1", Reference: res.Reference}))

	reg, _ := h.store.Registration("Ada", "Lovelace", model.PassWeekend)
	assert.Equal(t, model.StatusComplete, reg.RegistrationStatus)
}

func TestPaymentFailedAndCancelled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.regs.SubmitWeekender(ctx, single("s1", "Ada", "Lovelace", "F", 2, ""))
	require.NoError(t, err)
	_, err = h.regs.SubmitWeekender(ctx, single("s2", "Alan", "Turing", "L", 2, ""))
	require.NoError(t, err)

	require.NoError(t, h.payments.PaymentFailed(ctx, model.PaymentSignal{SessionID: "s1", Reference: a.Reference}))
	assert.Equal(t, int64(1), h.payments.PaymentCancelled(ctx, "s2"))
	assert.Equal(t, int64(0), h.payments.PaymentCancelled(ctx, ""))

	ada, _ := h.store.Registration("Ada", "Lovelace", model.PassWeekend)
	alan, _ := h.store.Registration("Alan", "Turing", model.PassWeekend)
	assert.Equal(t, model.StatusFailed, ada.RegistrationStatus)
	assert.Equal(t, model.StatusFailed, alan.RegistrationStatus)

	err = h.payments.PaymentFailed(ctx, model.PaymentSignal{SessionID: "s1"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestHandleWebhook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.regs.SubmitWeekender(ctx, single("s1", "Ada", "Lovelace", "F", 2, ""))
	require.NoError(t, err)

	ev := checkout.WebhookEvent{
		ID:   "evt_1",
		Type: checkout.EventPaymentSucceeded,
		Payload: checkout.WebhookPayload{
			ID:       "p_1",
			Status:   "succeeded",
			Amount:   160000,
			Currency: "ZAR",
			Metadata: map[string]string{"reference": res.Reference},
		},
	}
	assert.Equal(t, "ok", h.payments.HandleWebhook(ctx, ev))
	assert.Equal(t, "ok", h.payments.HandleWebhook(ctx, ev))

	reg, _ := h.store.Registration("Ada", "Lovelace", model.PassWeekend)
	assert.Equal(t, model.StatusComplete, reg.RegistrationStatus)

	rec, err := h.kv.GetPayment(ctx, res.Reference)
	require.NoError(t, err)
	assert.Equal(t, checkout.EventPaymentSucceeded, rec.EventType)
	assert.Equal(t, int64(160000), rec.Amount)

	ev.Type = checkout.EventPaymentRefunded
	assert.Equal(t, "ok", h.payments.HandleWebhook(ctx, ev))
	rec, err = h.kv.GetPayment(ctx, res.Reference)
	require.NoError(t, err)
	assert.Equal(t, checkout.EventPaymentRefunded, rec.EventType)

	assert.Equal(t, "ignored", h.payments.HandleWebhook(ctx, checkout.WebhookEvent{Type: checkout.EventPaymentSucceeded}))
	assert.Equal(t, "ignored", h.payments.HandleWebhook(ctx, checkout.WebhookEvent{
		Type:    "payment.mystery",
		Payload: checkout.WebhookPayload{Metadata: map[string]string{"reference": "WKND-X"}},
	}))
}

func TestHandleWebhookFailureDoesNotTouchCompleteRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.regs.SubmitWeekender(ctx, single("s1", "Ada", "Lovelace", "F", 2, ""))
	require.NoError(t, err)
	_, err = h.payments.PaymentComplete(ctx, model.PaymentSignal{SessionID: "s1", Reference: res.Reference})
	require.NoError(t, err)

	h.payments.HandleWebhook(ctx, checkout.WebhookEvent{
		Type:    checkout.EventPaymentFailed,
		Payload: checkout.WebhookPayload{Metadata: map[string]string{"reference": res.Reference}},
	})

	reg, _ := h.store.Registration("Ada", "Lovelace", model.PassWeekend)
	assert.Equal(t, model.StatusComplete, reg.RegistrationStatus)
}

func TestHandleWebhookUnknownOrder(t *testing.T) {
	h := newHarness(t)

	got := h.payments.HandleWebhook(context.Background(), checkout.WebhookEvent{
		Type:    checkout.EventPaymentSucceeded,
		Payload: checkout.WebhookPayload{Metadata: map[string]string{"reference": "WKND-GHOST"}},
	})

	assert.Equal(t, "error", got)
}

func TestStartRegistration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.regs.StartRegistration(ctx, "s1"))
	assert.ErrorIs(t, h.regs.StartRegistration(ctx, " "), apperr.ErrValidation)

	require.NoError(t, h.kv.LogEvent(ctx, "s-paid", model.EventPaymentComplete, nil))
	err := h.regs.StartRegistration(ctx, "s-paid")
	require.Error(t, err)
	assert.Equal(t, 409, apperr.StatusCode(err))
	assert.Equal(t, apperr.CodeAlreadyRegistered, code(err))
}

func TestSessionStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	empty, err := h.regs.SessionStatus(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, "", empty.Status)
	assert.Empty(t, empty.Events)

	require.NoError(t, h.kv.LogEvent(ctx, "s1", model.EventRegistrationStarted, nil))
	require.NoError(t, h.kv.LogEvent(ctx, "s1", model.EventPaymentInProgress, map[string]any{"orderId": "WKND-1"}))
	st, err := h.regs.SessionStatus(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.EventPaymentInProgress, st.Status)
	assert.Len(t, st.Events, 2)
}

func TestCheckRoleBalanceAndWaitlist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		h.store.Seed(model.Participant{Name: "Lead", Surname: string(rune('A' + i)), Role: model.RoleLead, Level: 1}, model.Registration{
			PassType:           model.PassWeekend,
			PaymentStatus:      model.StatusComplete,
			RegistrationStatus: model.StatusComplete,
		})
	}

	res, err := h.regs.CheckRoleBalance(ctx, model.RoleBalanceRequest{Role: "L", Level: 1, PassType: "weekend"})
	require.NoError(t, err)
	assert.True(t, res.ShouldWaitlist)
	assert.Equal(t, 3, res.Leads)

	entry, err := h.regs.JoinWaitlist(ctx, model.WaitlistRequest{
		SessionID: "s1", Name: "Alan", Surname: "Turing", Email: "alan@example.com",
		Role: "Lead", Level: 1, PassType: "weekend",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleLead, entry.Role)

	res, err = h.regs.CheckRoleBalance(ctx, model.RoleBalanceRequest{Role: "Lead", Level: 1, PassType: "weekend"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.WaitlistCount)

	follow, err := h.regs.CheckRoleBalance(ctx, model.RoleBalanceRequest{Role: "F", Level: 1, PassType: "weekend"})
	require.NoError(t, err)
	assert.False(t, follow.ShouldWaitlist)

	party, err := h.regs.CheckRoleBalance(ctx, model.RoleBalanceRequest{PassType: "party"})
	require.NoError(t, err)
	assert.False(t, party.ShouldWaitlist)

	_, err = h.regs.JoinWaitlist(ctx, model.WaitlistRequest{
		Name: "Alan", Surname: "Turing", Email: "alan@example.com", Role: "Lead", Level: 1, PassType: "party",
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
