package service

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/apperr"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/balance"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/checkout"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/kvstore"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/pricing"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/repository"
)

// RegistrationService validates registrations, prices them, stores the
// attempt and opens a checkout session.
type RegistrationService struct {
	regs     RegistrationStore
	waitlist WaitlistStore
	kv       EphemeralStore
	checkout CheckoutCreator
	events   EventRecorder
	pricing  *pricing.Engine
	capacity *pricing.CapacityChecker
	balance  *balance.Evaluator
	settings Settings
	now      func() time.Time
}

// NewRegistrationService constructs a RegistrationService with its dependencies.
func NewRegistrationService(deps Deps, settings Settings) *RegistrationService {
	return &RegistrationService{
		regs:     deps.Registrations,
		waitlist: deps.Waitlist,
		kv:       deps.Ephemeral,
		checkout: deps.Checkout,
		events:   deps.Events,
		pricing:  deps.Pricing,
		capacity: deps.Capacity,
		balance:  deps.Balance,
		settings: settings,
		now:      deps.clock(),
	}
}

// StartRegistration logs the start of a registration session. A session that
// already paid cannot start again.
func (s *RegistrationService) StartRegistration(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return apperr.Validation("sessionId is required")
	}
	status, err := s.kv.GetSessionStatus(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("session status lookup failed")
	}
	if status == model.EventPaymentComplete {
		return apperr.Conflict(apperr.CodeAlreadyRegistered, "this session has already completed a registration")
	}
	record(s.events, sessionID, model.EventRegistrationStarted, nil)
	return nil
}

// SubmitWeekender handles single, couple, day and party pass registrations.
func (s *RegistrationService) SubmitWeekender(ctx context.Context, req model.SubmitRequest) (model.SubmitResult, error) {
	req.Registration.Trim()
	a, err := s.planWeekender(ctx, req)
	if err != nil {
		s.countOutcome(a, err)
		return model.SubmitResult{}, err
	}
	a.OrderID = model.NewOrderID(model.OrderPrefixWeekender, s.now())

	res, err := s.submit(ctx, a)
	s.countOutcome(a, err)
	return res, err
}

func (s *RegistrationService) planWeekender(ctx context.Context, req model.SubmitRequest) (model.Attempt, error) {
	in := req.Registration
	a := model.Attempt{
		SessionID: strings.TrimSpace(req.SessionID),
		Email:     in.Email,
		Details:   map[string]any{},
	}
	if a.SessionID == "" {
		return a, apperr.Validation("sessionId is required")
	}

	pass, ok := model.ParsePassType(in.PassType)
	if !ok || pass == model.PassBootcamp {
		return a, apperr.Validation("passType must be weekend, day or party")
	}
	a.PassType = pass

	switch in.Type {
	case "", string(model.TypeSingle):
		a.RegistrationType = model.TypeSingle
	case string(model.TypeCouple):
		a.RegistrationType = model.TypeCouple
	default:
		return a, apperr.Validation("registration type must be single or couple")
	}
	if err := validateEmail(in.Email); err != nil {
		return a, err
	}

	if pass == model.PassDay {
		if !isPassDay(in.PassDay) {
			return a, apperr.Validation("passDay must be one of %s for a day pass", strings.Join(model.PassDays, ", "))
		}
		a.PassDay = in.PassDay
	}

	var err error
	if a.RegistrationType == model.TypeCouple {
		a.Participants, err = coupleParticipants(in, pass)
	} else {
		a.Participants, err = singleParticipant(in, pass)
	}
	if err != nil {
		return a, err
	}

	if in.Phone != "" {
		a.Details["phone"] = in.Phone
	}
	if in.Dietary != "" {
		a.Details["dietary"] = in.Dietary
	}

	if err := s.checkPayments("submit_registration"); err != nil {
		return a, err
	}
	if err := s.priceWeekender(ctx, &a, req.PriceTier); err != nil {
		return a, err
	}
	return a, nil
}

func singleParticipant(in model.RegistrationInput, pass model.PassType) ([]model.Participant, error) {
	if in.Name == "" || in.Surname == "" {
		return nil, apperr.Validation("name and surname are required")
	}
	p := model.Participant{Name: in.Name, Surname: in.Surname}

	// Party passes carry no role or level; keep them when given.
	if pass == model.PassParty {
		if role, ok := model.ParseRole(in.Role); ok {
			p.Role = role
		}
		if validLevel(in.Level) {
			p.Level = in.Level
		}
		return []model.Participant{p}, nil
	}

	role, ok := model.ParseRole(in.Role)
	if !ok {
		return nil, apperr.Validation("role must be Lead or Follow")
	}
	if !validLevel(in.Level) {
		return nil, apperr.Validation("level must be 1 or 2")
	}
	p.Role = role
	p.Level = in.Level
	return []model.Participant{p}, nil
}

func coupleParticipants(in model.RegistrationInput, pass model.PassType) ([]model.Participant, error) {
	if pass != model.PassWeekend {
		return nil, apperr.Validation("couple registration is only available for the weekend pass")
	}
	if in.Lead == nil || in.Lead.Name == "" || in.Lead.Surname == "" {
		return nil, apperr.Validation("lead name and surname are required")
	}
	if in.Follow == nil || in.Follow.Name == "" || in.Follow.Surname == "" {
		return nil, apperr.Validation("follow name and surname are required")
	}
	if !validLevel(in.Level) {
		return nil, apperr.Validation("level must be 1 or 2")
	}
	lead := model.Participant{Name: in.Lead.Name, Surname: in.Lead.Surname, Role: model.RoleLead, Level: in.Level}
	follow := model.Participant{Name: in.Follow.Name, Surname: in.Follow.Surname, Role: model.RoleFollow, Level: in.Level}
	if lead.Key() == follow.Key() {
		return nil, apperr.Validation("lead and follow must be different people")
	}
	return []model.Participant{lead, follow}, nil
}

// priceWeekender sets the tier and per-participant amounts. Weekend prices
// come from the tier engine; day and party passes have fixed prices and
// limits.
func (s *RegistrationService) priceWeekender(ctx context.Context, a *model.Attempt, clientTier string) error {
	switch a.PassType {
	case model.PassWeekend:
		q, err := s.pricing.Quote(ctx, clientTier, a.RegistrationType)
		if err != nil {
			if e := apperr.As(err); e.Kind != apperr.KindInternal {
				return e
			}
			log.Error().Err(err).Str("session_id", a.SessionID).Msg("weekend price lookup failed")
			return apperr.Internal("quote_price", err)
		}
		a.PriceTier = q.Tier
		if a.RegistrationType == model.TypeCouple {
			half := q.Amount / 2
			a.Amounts = []int64{half, q.Amount - half}
		} else {
			a.Amounts = []int64{q.Amount}
		}
		return nil

	case model.PassDay, model.PassParty:
		avail, err := s.capacity.Availability(ctx, a.PassType, a.PassDay)
		if err != nil {
			log.Error().Err(err).Str("pass_type", string(a.PassType)).Msg("capacity check failed")
			return apperr.Internal("check_capacity", err)
		}
		if avail.SoldOut {
			if a.PassDay != "" {
				return apperr.Conflict(apperr.CodeSoldOut, "the %s day pass is sold out", a.PassDay)
			}
			return apperr.Conflict(apperr.CodeSoldOut, "the %s pass is sold out", a.PassType)
		}
		price := s.settings.PartyPassPrice
		if a.PassType == model.PassDay {
			price = s.settings.DayPassPrice
		}
		a.PriceTier = string(a.PassType)
		a.Amounts = []int64{price}
		return nil
	}
	return apperr.Validation("unsupported pass type %q", a.PassType)
}

// SubmitBootcamp handles beginner and fast-track bootcamp registrations. The
// weekender discount is only given when this request finds a paid weekender
// pass for the dancer.
func (s *RegistrationService) SubmitBootcamp(ctx context.Context, req model.BootcampRequest) (model.SubmitResult, error) {
	a, err := s.planBootcamp(ctx, req)
	if err != nil {
		s.countOutcome(a, err)
		return model.SubmitResult{}, err
	}
	a.OrderID = model.NewOrderID(model.OrderPrefixBootcamp, s.now())

	res, err := s.submit(ctx, a)
	s.countOutcome(a, err)
	return res, err
}

func (s *RegistrationService) planBootcamp(ctx context.Context, req model.BootcampRequest) (model.Attempt, error) {
	name := strings.TrimSpace(req.Name)
	surname := strings.TrimSpace(req.Surname)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	kind := strings.ToLower(strings.TrimSpace(req.Type))

	a := model.Attempt{
		SessionID:        strings.TrimSpace(req.SessionID),
		Email:            email,
		PassType:         model.PassBootcamp,
		RegistrationType: model.TypeSingle,
		Details:          map[string]any{"bootcampType": kind},
	}
	if a.SessionID == "" {
		return a, apperr.Validation("sessionId is required")
	}
	if name == "" || surname == "" {
		return a, apperr.Validation("name and surname are required")
	}
	if err := validateEmail(email); err != nil {
		return a, err
	}

	var price int64
	switch kind {
	case model.BootcampBeginner:
		if req.HasDancedBefore == nil || strings.TrimSpace(req.Motivation) == "" {
			return a, apperr.Validation("beginner bootcamp requires hasDancedBefore and motivation")
		}
		a.Details["hasDancedBefore"] = *req.HasDancedBefore
		a.Details["motivation"] = strings.TrimSpace(req.Motivation)
		price = s.settings.BootcampBeginnerPrice
	case model.BootcampFastTrack:
		if req.YearsDancing == nil || *req.YearsDancing < 0 || strings.TrimSpace(req.CurrentLevel) == "" {
			return a, apperr.Validation("fast-track bootcamp requires yearsDancing and currentLevel")
		}
		a.Details["yearsDancing"] = *req.YearsDancing
		a.Details["currentLevel"] = strings.TrimSpace(req.CurrentLevel)
		if v := strings.TrimSpace(req.OtherStyles); v != "" {
			a.Details["otherStyles"] = v
		}
		if v := strings.TrimSpace(req.FocusAreas); v != "" {
			a.Details["focusAreas"] = v
		}
		price = s.settings.BootcampFastTrackPrice
	default:
		return a, apperr.Validation("bootcamp type must be %s or %s", model.BootcampBeginner, model.BootcampFastTrack)
	}
	if v := strings.TrimSpace(req.Phone); v != "" {
		a.Details["phone"] = v
	}

	p := model.Participant{Name: name, Surname: surname}
	if role, ok := model.ParseRole(req.Role); ok {
		p.Role = role
	}
	a.Participants = []model.Participant{p}
	a.PriceTier = kind

	if err := s.checkPayments("submit_bootcamp"); err != nil {
		return a, err
	}

	if req.WeekenderValidated {
		ok, err := s.hasWeekenderPass(ctx, name, surname, req.WeekenderOrderID)
		if err != nil {
			log.Error().Err(err).Str("session_id", a.SessionID).Msg("weekender pass revalidation failed")
			return a, apperr.Internal("validate_weekender", err)
		}
		if !ok {
			return a, apperr.Validation("no paid weekender pass was found for %s %s", name, surname)
		}
		price = price * int64(100-s.settings.BootcampDiscountPercent) / 100
		a.PriceTier = kind + "-weekender"
		a.Details["weekenderDiscount"] = true
	}
	a.Amounts = []int64{price}
	return a, nil
}

// ValidateWeekender reports whether a paid weekender pass exists for the
// given name and surname, or else for the given order id.
func (s *RegistrationService) ValidateWeekender(ctx context.Context, req model.ValidateWeekenderRequest) (bool, error) {
	name := strings.TrimSpace(req.Name)
	surname := strings.TrimSpace(req.Surname)
	orderID := strings.TrimSpace(req.OrderID)
	if (name == "" || surname == "") && orderID == "" {
		return false, apperr.Validation("name and surname, or orderId, are required")
	}
	ok, err := s.hasWeekenderPass(ctx, name, surname, orderID)
	if err != nil {
		return false, apperr.Internal("validate_weekender", err)
	}
	return ok, nil
}

func (s *RegistrationService) hasWeekenderPass(ctx context.Context, name, surname, orderID string) (bool, error) {
	if name != "" && surname != "" {
		ok, err := s.regs.HasCompleteByName(ctx, model.PassWeekend, name, surname)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, nil
	}
	return s.regs.HasCompleteByOrder(ctx, model.PassWeekend, orderID)
}

// PayExisting opens a new checkout for an unpaid order, charging the amounts
// already stored on it. The registration window starts again.
func (s *RegistrationService) PayExisting(ctx context.Context, orderID, sessionID string) (model.SubmitResult, error) {
	orderID = strings.TrimSpace(orderID)
	sessionID = strings.TrimSpace(sessionID)
	if orderID == "" || sessionID == "" {
		return model.SubmitResult{}, apperr.Validation("orderId and sessionId are required")
	}
	if err := s.checkPayments("pay_existing"); err != nil {
		return model.SubmitResult{}, err
	}

	regs, err := s.regs.RestartOrder(ctx, orderID, sessionID, s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return model.SubmitResult{}, apperr.NotFound("order %s was not found", orderID)
	case errors.Is(err, repository.ErrAlreadyComplete):
		return model.SubmitResult{}, apperr.Validation("order %s has already been paid", orderID)
	case err != nil:
		log.Error().Err(err).Str("order_id", orderID).Str("session_id", sessionID).Msg("restart order failed")
		return model.SubmitResult{}, apperr.Internal("pay_existing", err)
	}

	first := regs[0]
	a := model.Attempt{
		Email:            first.Email,
		SessionID:        sessionID,
		OrderID:          orderID,
		PassType:         first.PassType,
		PassDay:          first.PassDay,
		PriceTier:        first.PriceTier,
		RegistrationType: first.RegistrationType,
	}
	for _, reg := range regs {
		a.Amounts = append(a.Amounts, reg.Amount)
	}

	sess, err := s.launch(ctx, a, regs)
	if err != nil {
		return model.SubmitResult{}, err
	}
	return model.SubmitResult{
		Success:     true,
		CheckoutURL: sess.RedirectURL,
		Reference:   orderID,
		PriceTier:   a.PriceTier,
		Amount:      a.Total(),
	}, nil
}

// submit stores the attempt and opens its checkout.
func (s *RegistrationService) submit(ctx context.Context, a model.Attempt) (model.SubmitResult, error) {
	regs, err := s.regs.PrepareAttempt(ctx, a, s.now())
	if err != nil {
		var already *repository.AlreadyRegisteredError
		if errors.As(err, &already) {
			return model.SubmitResult{}, apperr.AlreadyRegistered(already.Member.FullName(), string(already.PassType))
		}
		log.Error().Err(err).
			Str("order_id", a.OrderID).
			Str("session_id", a.SessionID).
			Int64("amount", a.Total()).
			Msg("prepare registration failed")
		return model.SubmitResult{}, apperr.Internal("prepare_registration", err)
	}

	sess, err := s.launch(ctx, a, regs)
	if err != nil {
		return model.SubmitResult{}, err
	}
	return model.SubmitResult{
		Success:     true,
		CheckoutURL: sess.RedirectURL,
		Reference:   a.OrderID,
		PriceTier:   a.PriceTier,
		Amount:      a.Total(),
	}, nil
}

// launch runs the steps that follow a stored attempt concurrently. Only the
// checkout call can fail the request; detail and index writes are logged.
func (s *RegistrationService) launch(ctx context.Context, a model.Attempt, regs []model.Registration) (checkout.Session, error) {
	memberIDs := make([]string, 0, len(regs))
	for _, reg := range regs {
		memberIDs = append(memberIDs, reg.MemberID)
	}
	logger := log.With().
		Str("order_id", a.OrderID).
		Str("session_id", a.SessionID).
		Int64("amount", a.Total()).
		Logger()

	var (
		g    errgroup.Group
		sess checkout.Session
	)
	if len(a.Details) > 0 {
		g.Go(func() error {
			for _, reg := range regs {
				if err := s.regs.SaveDetails(ctx, reg.ID, a.Details); err != nil {
					logger.Warn().Err(err).Str("registration_id", reg.ID).Msg("save registration details failed")
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := s.kv.SetOrderMemberIDs(ctx, a.OrderID, memberIDs); err != nil {
			logger.Warn().Err(err).Msg("order index write failed")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sess, err = s.openCheckout(ctx, a, regs)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, checkout.ErrNotConfigured) {
			logger.Error().Err(err).Msg("payment system not configured")
			return checkout.Session{}, apperr.Configuration("create_checkout", err)
		}
		logger.Error().Err(err).Msg("checkout creation failed")
		return checkout.Session{}, apperr.Upstream("create_checkout", err)
	}

	record(s.events, a.SessionID, model.EventPaymentInProgress, map[string]any{
		"orderId":    a.OrderID,
		"checkoutId": sess.ID,
		"amount":     a.Total(),
		"passType":   string(a.PassType),
		"priceTier":  a.PriceTier,
	})
	logger.Info().Str("checkout_id", sess.ID).Msg("checkout created")
	return sess, nil
}

func (s *RegistrationService) openCheckout(ctx context.Context, a model.Attempt, regs []model.Registration) (checkout.Session, error) {
	start := time.Now()
	req := checkout.Request{
		Amount:     a.Total(),
		Currency:   s.settings.Currency,
		SuccessURL: s.returnURL("success", a),
		CancelURL:  s.returnURL("cancel", a),
		FailureURL: s.returnURL("failure", a),
		Metadata: checkout.Metadata{
			OrderID:       a.OrderID,
			Reference:     a.OrderID,
			CustomerID:    regs[0].MemberID,
			CustomerEmail: a.Email,
		},
		LineItems:      lineItems(a),
		IdempotencyKey: a.OrderID + ":" + strconv.FormatInt(regs[0].AttemptedAt.UnixMilli(), 10),
	}
	sess, err := s.checkout.CreateCheckout(ctx, req)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.CheckoutDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return sess, err
}

func (s *RegistrationService) returnURL(outcome string, a model.Attempt) string {
	section := "weekender"
	if a.PassType == model.PassBootcamp {
		section = "bootcamp"
	}
	q := url.Values{}
	q.Set("orderId", a.OrderID)
	q.Set("sessionId", a.SessionID)
	return strings.TrimRight(s.settings.PublicBaseURL, "/") + "/" + section + "/payment/" + outcome + "?" + q.Encode()
}

func lineItems(a model.Attempt) []checkout.LineItem {
	title := passTitle(a.PassType, a.PassDay)
	items := make([]checkout.LineItem, 0, len(a.Amounts))
	for i, amount := range a.Amounts {
		item := checkout.LineItem{
			DisplayName:    title,
			Quantity:       1,
			PricingDetails: checkout.PricingDetails{Price: amount},
		}
		if i < len(a.Participants) {
			p := a.Participants[i]
			item.Description = p.FullName()
			if p.Role != "" {
				item.Description += " (" + string(p.Role) + ")"
			}
		}
		if a.PriceTier != "" && a.PriceTier != string(a.PassType) {
			item.DisplayName += " - " + a.PriceTier
		}
		items = append(items, item)
	}
	return items
}

func passTitle(pass model.PassType, day string) string {
	switch pass {
	case model.PassDay:
		return "Day pass (" + day + ")"
	case model.PassParty:
		return "Party pass"
	case model.PassBootcamp:
		return "Bootcamp"
	}
	return "Weekender pass"
}

// CheckRoleBalance runs the advisory waitlist check.
func (s *RegistrationService) CheckRoleBalance(ctx context.Context, req model.RoleBalanceRequest) (balance.Result, error) {
	pass, ok := model.ParsePassType(req.PassType)
	if !ok {
		return balance.Result{}, apperr.Validation("unknown pass type %q", req.PassType)
	}
	var role model.Role
	if pass != model.PassParty && pass != model.PassBootcamp {
		if role, ok = model.ParseRole(req.Role); !ok {
			return balance.Result{}, apperr.Validation("role must be Lead or Follow")
		}
	}
	res, err := s.balance.Evaluate(ctx, balance.Request{
		Role:     role,
		Level:    req.Level,
		PassType: pass,
		Day:      strings.ToLower(strings.TrimSpace(req.PassDay)),
	})
	if err != nil {
		if e := apperr.As(err); e.Kind != apperr.KindInternal {
			return balance.Result{}, e
		}
		return balance.Result{}, apperr.Internal("check_role_balance", err)
	}
	return res, nil
}

// JoinWaitlist adds a dancer to the waitlist for a weekend or day pass.
func (s *RegistrationService) JoinWaitlist(ctx context.Context, req model.WaitlistRequest) (model.WaitlistEntry, error) {
	name := strings.TrimSpace(req.Name)
	surname := strings.TrimSpace(req.Surname)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	day := strings.ToLower(strings.TrimSpace(req.PassDay))

	if name == "" || surname == "" {
		return model.WaitlistEntry{}, apperr.Validation("name and surname are required")
	}
	if err := validateEmail(email); err != nil {
		return model.WaitlistEntry{}, err
	}
	pass, ok := model.ParsePassType(req.PassType)
	if !ok || (pass != model.PassWeekend && pass != model.PassDay) {
		return model.WaitlistEntry{}, apperr.Validation("only weekend and day passes have a waitlist")
	}
	if pass == model.PassDay {
		if !isPassDay(day) {
			return model.WaitlistEntry{}, apperr.Validation("passDay must be one of %s for a day pass", strings.Join(model.PassDays, ", "))
		}
	} else {
		day = ""
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		return model.WaitlistEntry{}, apperr.Validation("role must be Lead or Follow")
	}
	if !validLevel(req.Level) {
		return model.WaitlistEntry{}, apperr.Validation("level must be 1 or 2")
	}

	entry, err := s.waitlist.Join(ctx,
		model.Participant{Name: name, Surname: surname, Role: role, Level: req.Level},
		model.WaitlistEntry{Email: email, PassType: pass, PassDay: day, SessionID: strings.TrimSpace(req.SessionID)},
		s.now(),
	)
	if err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("join waitlist failed")
		return model.WaitlistEntry{}, apperr.Internal("join_waitlist", err)
	}
	log.Info().
		Str("member_id", entry.MemberID).
		Str("pass_type", string(pass)).
		Str("role", string(role)).
		Int("level", req.Level).
		Msg("dancer joined waitlist")
	return entry, nil
}

// TierStatus reports the active weekend tier.
func (s *RegistrationService) TierStatus(ctx context.Context) pricing.Status {
	return s.pricing.Current(ctx)
}

// PassStatus reports capacity for a pass type, and for a day on day passes.
func (s *RegistrationService) PassStatus(ctx context.Context, passType, day string) (pricing.Availability, error) {
	pass, ok := model.ParsePassType(passType)
	if !ok {
		return pricing.Availability{}, apperr.Validation("unknown pass type %q", passType)
	}
	day = strings.ToLower(strings.TrimSpace(day))
	if pass == model.PassDay && !isPassDay(day) {
		return pricing.Availability{}, apperr.Validation("day must be one of %s", strings.Join(model.PassDays, ", "))
	}
	avail, err := s.capacity.Availability(ctx, pass, day)
	if err != nil {
		return pricing.Availability{}, apperr.Internal("pass_status", err)
	}
	return avail, nil
}

// SessionStatus is the latest lifecycle event of a session and its history.
type SessionStatus struct {
	SessionID string          `json:"sessionId"`
	Status    string          `json:"status"`
	Events    []kvstore.Event `json:"events"`
}

// SessionStatus returns what the event log knows about a session. Unknown
// sessions yield an empty status.
func (s *RegistrationService) SessionStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionStatus{}, apperr.Validation("sessionId is required")
	}
	status, err := s.kv.GetSessionStatus(ctx, sessionID)
	if err != nil {
		return SessionStatus{}, apperr.Internal("session_status", err)
	}
	events, err := s.kv.SessionEvents(ctx, sessionID)
	if err != nil {
		return SessionStatus{}, apperr.Internal("session_status", err)
	}
	if events == nil {
		events = []kvstore.Event{}
	}
	return SessionStatus{SessionID: sessionID, Status: status, Events: events}, nil
}

// checkPayments fails fast when no checkout can be created, before anything
// is written.
func (s *RegistrationService) checkPayments(op string) error {
	if s.checkout == nil || !s.checkout.Configured() {
		log.Error().Str("op", op).Msg("payment system is not configured")
		return apperr.Configuration(op, checkout.ErrNotConfigured)
	}
	return nil
}

func (s *RegistrationService) countOutcome(a model.Attempt, err error) {
	outcome := "checkout_created"
	if err != nil {
		outcome = apperr.As(err).Code
	}
	pass := string(a.PassType)
	if pass == "" {
		pass = "unknown"
	}
	regType := string(a.RegistrationType)
	if regType == "" {
		regType = "unknown"
	}
	metrics.RegistrationsTotal.WithLabelValues(pass, regType, outcome).Inc()
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("email %q is not valid", email)
	}
	return nil
}

func validLevel(level int) bool {
	return level == 1 || level == 2
}

func isPassDay(day string) bool {
	for _, d := range model.PassDays {
		if d == day {
			return true
		}
	}
	return false
}
