package web_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-router"
	"github.com/goliatone/go-union"
	"github.com/goliatone/go-union/web"
	"github.com/google/uuid"
)

type stubProvider struct {
	sessions  map[string]*union.Session
	signIn    *union.Session
	signInErr error
	signUp    *union.Session
	signUpErr error
	signOut   error
	signedOut []*union.Session
}

func (p *stubProvider) SignUp(_ context.Context, _ union.SignUpRequest) (*union.Session, error) {
	return p.signUp, p.signUpErr
}

func (p *stubProvider) SignIn(_ context.Context, _, _ string) (*union.Session, error) {
	return p.signIn, p.signInErr
}

func (p *stubProvider) SignOut(_ context.Context, session *union.Session) error {
	p.signedOut = append(p.signedOut, session)
	return p.signOut
}

func (p *stubProvider) Refresh(_ context.Context, session *union.Session) (*union.Session, error) {
	return session, nil
}

func (p *stubProvider) SessionFromToken(_ context.Context, token string) (*union.Session, error) {
	if s, ok := p.sessions[token]; ok {
		return s, nil
	}
	return nil, union.ErrNoSession
}

type stubStores struct {
	mu        sync.Mutex
	roles     map[string]union.Role
	roleErr   error
	workers   map[string]*union.WorkerProfile
	employers map[string]*union.EmployerProfile
	cities    []*union.City
	skills    []uuid.UUID
	roleCalls int
	honorCtx  bool
}

func newStubStores() *stubStores {
	return &stubStores{
		roles:     map[string]union.Role{},
		workers:   map[string]*union.WorkerProfile{},
		employers: map[string]*union.EmployerProfile{},
	}
}

func (s *stubStores) RoleByUser(ctx context.Context, userID string) (union.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleCalls++
	if s.honorCtx && ctx.Err() != nil {
		return "", ctx.Err()
	}
	if s.roleErr != nil {
		return "", s.roleErr
	}
	role, ok := s.roles[userID]
	if !ok {
		return "", union.ErrRoleNotFound
	}
	return role, nil
}

func (s *stubStores) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roleCalls
}

func (s *stubStores) WorkerByUser(_ context.Context, userID string) (*union.WorkerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[userID]
	if !ok {
		return nil, union.ErrWorkerProfileNotFound
	}
	out := *w
	return &out, nil
}

func (s *stubStores) EmployerByUser(_ context.Context, userID string) (*union.EmployerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employers[userID]
	if !ok {
		return nil, union.ErrEmployerProfileNotFound
	}
	out := *e
	return &out, nil
}

func (s *stubStores) ListPendingWorkers(_ context.Context) ([]*union.WorkerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*union.WorkerProfile
	for _, w := range s.workers {
		if w.ApprovalStatus == union.ApprovalPending {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *stubStores) WorkerByID(_ context.Context, id uuid.UUID) (*union.WorkerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		if w.ID == id {
			out := *w
			return &out, nil
		}
	}
	return nil, union.ErrWorkerProfileNotFound
}

func (s *stubStores) UpdateApproval(_ context.Context, worker *union.WorkerProfile) (*union.WorkerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *worker
	s.workers[worker.UserID.String()] = &out
	return worker, nil
}

func (s *stubStores) CityByID(_ context.Context, id uuid.UUID) (*union.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cities {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, union.ErrInvalidOnboarding
}

func (s *stubStores) CreateCity(_ context.Context, city *union.City) (*union.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *city
	out.ID = uuid.New()
	s.cities = append(s.cities, &out)
	return &out, nil
}

func (s *stubStores) ListCities(_ context.Context) ([]*union.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cities, nil
}

func (s *stubStores) ListSkills(_ context.Context) ([]*union.Skill, error) {
	return []*union.Skill{{ID: uuid.New(), Name: "Plumbing", Category: "home"}}, nil
}

func (s *stubStores) SaveWorkerProfile(_ context.Context, worker *union.WorkerProfile, skillIDs []uuid.UUID) (*union.WorkerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *worker
	s.workers[worker.UserID.String()] = &out
	s.skills = skillIDs
	return worker, nil
}

func (s *stubStores) SaveEmployerProfile(_ context.Context, employer *union.EmployerProfile) (*union.EmployerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *employer
	s.employers[employer.UserID.String()] = &out
	return employer, nil
}

func (s *stubStores) addWorker(userID string, status union.ApprovalStatus) *union.WorkerProfile {
	w := &union.WorkerProfile{
		ID:             uuid.New(),
		UserID:         uuid.MustParse(userID),
		FullName:       "Ravi Kumar",
		ApprovalStatus: status,
	}
	s.workers[userID] = w
	return w
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// requestCtx overrides the request path and body binding of the router
// mock context.
type requestCtx struct {
	*router.MockContext
	path    string
	method  string
	headers map[string]string
	body    any
}

func newRequestCtx(path string) *requestCtx {
	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background()).Maybe()
	return &requestCtx{MockContext: ctx, path: path}
}

func (c *requestCtx) Path() string {
	return c.path
}

func (c *requestCtx) Method() string {
	if c.method == "" {
		return "GET"
	}
	return c.method
}

func (c *requestCtx) GetString(key string, def string) string {
	if v, ok := c.headers[key]; ok {
		return v
	}
	return def
}

func (c *requestCtx) Bind(out any) error {
	switch dst := out.(type) {
	case *union.SignInInput:
		*dst = c.body.(union.SignInInput)
	case *union.SignUpInput:
		*dst = c.body.(union.SignUpInput)
	case *web.RejectRequest:
		*dst = c.body.(web.RejectRequest)
	case *union.WorkerOnboarding:
		*dst = c.body.(union.WorkerOnboarding)
	case *union.EmployerOnboarding:
		*dst = c.body.(union.EmployerOnboarding)
	}
	return nil
}

const (
	workerID   = "7f1c2d4e-1111-4a2b-9c3d-000000000001"
	employerID = "7f1c2d4e-2222-4a2b-9c3d-000000000002"
	adminID    = "7f1c2d4e-3333-4a2b-9c3d-000000000003"
	customerID = "7f1c2d4e-4444-4a2b-9c3d-000000000004"
)

func sessionFor(userID string) *union.Session {
	return &union.Session{UserID: userID, Email: userID[:8] + "@example.com", AccessToken: "token-" + userID}
}
