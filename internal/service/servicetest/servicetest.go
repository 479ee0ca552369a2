// Package servicetest provides in-memory stand-ins for the service layer's
// stores and checkout provider. The store follows the same rules as the
// PostgreSQL repository so that service and handler tests exercise the real
// registration state machine.
package servicetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/checkout"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/model"
	"github.com/Shivanand-hulikatti/weekender-registration/internal/repository"
)

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts the clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Store is an in-memory registration, waitlist and tier store.
type Store struct {
	mu        sync.Mutex
	members   map[string]model.Member        // participant key -> member
	regs      map[string]*model.Registration // member id|pass type -> row
	details   map[string]map[string]any
	waitlist  map[string]model.WaitlistEntry // member id|pass type -> entry
	tierIndex map[model.PassType]int

	// Err, when set, is returned by every call.
	Err error
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		members:   map[string]model.Member{},
		regs:      map[string]*model.Registration{},
		details:   map[string]map[string]any{},
		waitlist:  map[string]model.WaitlistEntry{},
		tierIndex: map[model.PassType]int{},
	}
}

func regKey(memberID string, pass model.PassType) string {
	return memberID + "|" + string(pass)
}

func (s *Store) member(p model.Participant, now time.Time) (model.Member, bool) {
	if m, ok := s.members[p.Key()]; ok {
		return m, true
	}
	return model.Member{
		ID:        uuid.New().String(),
		Name:      p.Name,
		Surname:   p.Surname,
		Role:      p.Role,
		Level:     p.Level,
		CreatedAt: now,
	}, false
}

// PrepareAttempt mirrors repository.RegistrationRepository.PrepareAttempt:
// every participant is checked before anything is written.
func (s *Store) PrepareAttempt(_ context.Context, a model.Attempt, now time.Time) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if len(a.Participants) == 0 || len(a.Participants) != len(a.Amounts) {
		return nil, fmt.Errorf("prepare attempt: %d participants for %d amounts", len(a.Participants), len(a.Amounts))
	}

	members := make([]model.Member, len(a.Participants))
	for i, p := range a.Participants {
		members[i], _ = s.member(p, now)
		if model.DecideAttempt(s.regs[regKey(members[i].ID, a.PassType)]) == model.ActionReject {
			return nil, &repository.AlreadyRegisteredError{Member: members[i], PassType: a.PassType}
		}
	}

	out := make([]model.Registration, 0, len(members))
	for i, m := range members {
		p := a.Participants[i]
		s.members[p.Key()] = m
		key := regKey(m.ID, a.PassType)
		reg, ok := s.regs[key]
		if !ok {
			reg = &model.Registration{ID: uuid.New().String(), MemberID: m.ID, PassType: a.PassType, CreatedAt: now}
			s.regs[key] = reg
		}
		reg.Email = a.Email
		reg.Role = p.Role
		reg.Level = p.Level
		reg.SessionID = a.SessionID
		reg.OrderID = a.OrderID
		reg.PassDay = a.PassDay
		reg.PriceTier = a.PriceTier
		reg.Amount = a.Amounts[i]
		reg.PaymentStatus = model.StatusPending
		reg.RegistrationStatus = model.StatusPending
		reg.RegistrationType = a.RegistrationType
		reg.AttemptedAt = now
		reg.UpdatedAt = now
		out = append(out, *reg)
	}
	return out, nil
}

func (s *Store) SaveDetails(_ context.Context, registrationID string, details map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.details[registrationID] = details
	return nil
}

// Details returns what SaveDetails stored for a registration.
func (s *Store) Details(registrationID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.details[registrationID]
}

// orderRows returns the order's rows sorted by id. Callers hold mu.
func (s *Store) orderRows(orderID string, memberIDs []string) []*model.Registration {
	want := map[string]bool{}
	for _, id := range memberIDs {
		want[id] = true
	}
	var rows []*model.Registration
	for _, reg := range s.regs {
		if reg.OrderID != orderID {
			continue
		}
		if memberIDs != nil && !want[reg.MemberID] {
			continue
		}
		rows = append(rows, reg)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

func copyRows(rows []*model.Registration) []model.Registration {
	out := make([]model.Registration, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out
}

func (s *Store) ListByOrder(_ context.Context, orderID string) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return copyRows(s.orderRows(orderID, nil)), nil
}

func (s *Store) CompleteOrder(_ context.Context, orderID string, memberIDs []string, now time.Time, window time.Duration) (repository.CompletionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return repository.CompletionResult{}, s.Err
	}
	rows := s.orderRows(orderID, memberIDs)
	if len(rows) == 0 {
		return repository.CompletionResult{}, repository.ErrNotFound
	}

	var open []*model.Registration
	elapsed := false
	for _, reg := range rows {
		if reg.IsComplete() {
			continue
		}
		open = append(open, reg)
		if reg.WindowElapsed(now, window) {
			elapsed = true
		}
	}
	if len(open) == 0 {
		return repository.CompletionResult{Registrations: copyRows(rows), AlreadyComplete: true}, nil
	}

	target := model.StatusComplete
	if elapsed {
		target = model.StatusExpired
	}
	for _, reg := range open {
		reg.PaymentStatus = target
		reg.RegistrationStatus = target
		reg.UpdatedAt = now
	}
	res := repository.CompletionResult{Registrations: copyRows(open)}
	if elapsed {
		return res, repository.ErrRegistrationExpired
	}
	return res, nil
}

func (s *Store) FailOrder(_ context.Context, orderID string, memberIDs []string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for _, reg := range s.orderRows(orderID, memberIDs) {
		if reg.RegistrationStatus == model.StatusPending {
			reg.PaymentStatus = model.StatusFailed
			reg.RegistrationStatus = model.StatusFailed
			reg.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *Store) FailSession(_ context.Context, sessionID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for _, reg := range s.regs {
		if reg.SessionID == sessionID && reg.RegistrationStatus == model.StatusPending {
			reg.PaymentStatus = model.StatusFailed
			reg.RegistrationStatus = model.StatusFailed
			reg.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *Store) RestartOrder(_ context.Context, orderID, sessionID string, now time.Time) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	rows := s.orderRows(orderID, nil)
	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}
	for _, reg := range rows {
		if reg.IsComplete() {
			return nil, repository.ErrAlreadyComplete
		}
	}
	for _, reg := range rows {
		reg.SessionID = sessionID
		reg.AttemptedAt = now
		reg.UpdatedAt = now
		reg.PaymentStatus = model.StatusPending
		reg.RegistrationStatus = model.StatusPending
	}
	return copyRows(rows), nil
}

func (s *Store) HasCompleteByName(_ context.Context, pass model.PassType, name, surname string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	m, ok := s.members[model.Participant{Name: name, Surname: surname}.Key()]
	if !ok {
		return false, nil
	}
	reg, ok := s.regs[regKey(m.ID, pass)]
	return ok && reg.IsComplete(), nil
}

func (s *Store) HasCompleteByOrder(_ context.Context, pass model.PassType, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	for _, reg := range s.orderRows(orderID, nil) {
		if reg.PassType == pass && reg.IsComplete() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CountComplete(_ context.Context, pass model.PassType, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	n := 0
	for _, reg := range s.regs {
		if reg.PassType == pass && reg.IsComplete() && (day == "" || reg.PassDay == day) {
			n++
		}
	}
	return n, nil
}

func (s *Store) RoleCounts(_ context.Context, pass model.PassType, day string, level int) (model.RoleCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.RoleCounts{}, s.Err
	}
	var c model.RoleCounts
	for _, reg := range s.regs {
		if reg.PassType != pass || !reg.IsComplete() || reg.Level != level || (day != "" && reg.PassDay != day) {
			continue
		}
		switch reg.Role {
		case model.RoleLead:
			c.Leads++
		case model.RoleFollow:
			c.Followers++
		}
	}
	return c, nil
}

func (s *Store) AdvanceTier(_ context.Context, pass model.PassType, index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	if index > s.tierIndex[pass] {
		s.tierIndex[pass] = index
	}
	return s.tierIndex[pass], nil
}

func (s *Store) Join(_ context.Context, p model.Participant, e model.WaitlistEntry, now time.Time) (model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.WaitlistEntry{}, s.Err
	}
	m, _ := s.member(p, now)
	s.members[p.Key()] = m
	key := regKey(m.ID, e.PassType)
	if prev, ok := s.waitlist[key]; ok {
		e.ID = prev.ID
		e.CreatedAt = prev.CreatedAt
	} else {
		e.ID = uuid.New().String()
		e.CreatedAt = now
	}
	e.MemberID = m.ID
	e.Role = p.Role
	e.Level = p.Level
	s.waitlist[key] = e
	return e, nil
}

func (s *Store) Count(_ context.Context, pass model.PassType, day string, level int, role model.Role) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	n := 0
	for _, e := range s.waitlist {
		if e.PassType == pass && e.Level == level && e.Role == role && (day == "" || e.PassDay == day) {
			n++
		}
	}
	return n, nil
}

// Registrations returns every row, ordered by creation then id.
func (s *Store) Registrations() []model.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]*model.Registration, 0, len(s.regs))
	for _, r := range s.regs {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
	return copyRows(rows)
}

// Registration returns the named member's row for a pass type.
func (s *Store) Registration(name, surname string, pass model.PassType) (model.Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[model.Participant{Name: name, Surname: surname}.Key()]
	if !ok {
		return model.Registration{}, false
	}
	reg, ok := s.regs[regKey(m.ID, pass)]
	if !ok {
		return model.Registration{}, false
	}
	return *reg, true
}

// Seed stores a registration for a new or existing member and returns it.
func (s *Store) Seed(p model.Participant, reg model.Registration) model.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, _ := s.member(p, reg.CreatedAt)
	s.members[p.Key()] = m
	if reg.ID == "" {
		reg.ID = uuid.New().String()
	}
	reg.MemberID = m.ID
	reg.Role = p.Role
	reg.Level = p.Level
	if reg.AttemptedAt.IsZero() {
		reg.AttemptedAt = reg.CreatedAt
	}
	s.regs[regKey(m.ID, reg.PassType)] = &reg
	return reg
}

// Checkout records checkout requests and answers with a fake session.
type Checkout struct {
	mu       sync.Mutex
	requests []checkout.Request

	Unconfigured bool
	Err          error
}

func (c *Checkout) Configured() bool {
	return !c.Unconfigured
}

func (c *Checkout) CreateCheckout(_ context.Context, req checkout.Request) (checkout.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Unconfigured {
		return checkout.Session{}, checkout.ErrNotConfigured
	}
	c.requests = append(c.requests, req)
	if c.Err != nil {
		return checkout.Session{}, c.Err
	}
	id := fmt.Sprintf("ch_%d", len(c.requests))
	return checkout.Session{ID: id, RedirectURL: "https://pay.test/checkout/" + id}, nil
}

// Requests returns every checkout request made so far.
func (c *Checkout) Requests() []checkout.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]checkout.Request(nil), c.requests...)
}

// Events records lifecycle events synchronously as "session:event".
type Events struct {
	mu     sync.Mutex
	events []string
}

func (e *Events) Record(sessionID, eventType string, _ map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, sessionID+":"+eventType)
}

// All returns the recorded events in order.
func (e *Events) All() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}
