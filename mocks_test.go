package union_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-union"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) SignUp(ctx context.Context, req union.SignUpRequest) (*union.Session, error) {
	args := m.Called(ctx, req)
	session, _ := args.Get(0).(*union.Session)
	return session, args.Error(1)
}

func (m *MockProvider) SignIn(ctx context.Context, email, password string) (*union.Session, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*union.Session)
	return session, args.Error(1)
}

func (m *MockProvider) SignOut(ctx context.Context, session *union.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockProvider) Refresh(ctx context.Context, session *union.Session) (*union.Session, error) {
	args := m.Called(ctx, session)
	next, _ := args.Get(0).(*union.Session)
	return next, args.Error(1)
}

func (m *MockProvider) SessionFromToken(ctx context.Context, token string) (*union.Session, error) {
	args := m.Called(ctx, token)
	session, _ := args.Get(0).(*union.Session)
	return session, args.Error(1)
}

// notifyingProvider pushes session changes the way a background token
// refresh would.
type notifyingProvider struct {
	*MockProvider

	mu      sync.Mutex
	handler func(*union.Session)
}

func (p *notifyingProvider) OnSessionChange(handler func(*union.Session)) func() {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.handler = nil
		p.mu.Unlock()
	}
}

func (p *notifyingProvider) push(session *union.Session) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(session)
	}
}

type MockWorkerReviewStore struct {
	mock.Mock
}

func (m *MockWorkerReviewStore) ListPendingWorkers(ctx context.Context) ([]*union.WorkerProfile, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]*union.WorkerProfile)
	return out, args.Error(1)
}

func (m *MockWorkerReviewStore) WorkerByID(ctx context.Context, id uuid.UUID) (*union.WorkerProfile, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*union.WorkerProfile)
	return out, args.Error(1)
}

func (m *MockWorkerReviewStore) UpdateApproval(ctx context.Context, worker *union.WorkerProfile) (*union.WorkerProfile, error) {
	args := m.Called(ctx, worker)
	out, _ := args.Get(0).(*union.WorkerProfile)
	return out, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, update union.ApprovalUpdate) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}

// roleStore serves roles from memory. A non nil gate blocks every lookup
// until it is closed or the context expires.
type roleStore struct {
	mu      sync.Mutex
	roles   map[string]union.Role
	err     error
	gate    chan struct{}
	entered chan struct{}
	calls   atomic.Int32
}

func newRoleStore(roles map[string]union.Role) *roleStore {
	if roles == nil {
		roles = map[string]union.Role{}
	}
	return &roleStore{roles: roles, entered: make(chan struct{}, 64)}
}

func (s *roleStore) RoleByUser(ctx context.Context, userID string) (union.Role, error) {
	s.calls.Add(1)
	select {
	case s.entered <- struct{}{}:
	default:
	}

	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	role, ok := s.roles[userID]
	if !ok {
		return "", union.ErrRoleNotFound
	}
	return role, nil
}

func (s *roleStore) set(userID string, role union.Role) {
	s.mu.Lock()
	s.roles[userID] = role
	s.mu.Unlock()
}

func (s *roleStore) block() chan struct{} {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	return gate
}

type workerStore struct {
	mu      sync.Mutex
	workers map[string]*union.WorkerProfile
	err     error
	calls   atomic.Int32
}

func newWorkerStore() *workerStore {
	return &workerStore{workers: map[string]*union.WorkerProfile{}}
}

func (s *workerStore) WorkerByUser(_ context.Context, userID string) (*union.WorkerProfile, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	w, ok := s.workers[userID]
	if !ok {
		return nil, union.ErrWorkerProfileNotFound
	}
	out := *w
	return &out, nil
}

func (s *workerStore) set(userID string, status union.ApprovalStatus, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, _ := uuid.Parse(userID)
	s.workers[userID] = &union.WorkerProfile{
		ID:                      uuid.New(),
		UserID:                  uid,
		FullName:                "Test Worker",
		ApprovalStatus:          status,
		ApprovalRejectionReason: reason,
	}
}

type employerStore struct {
	mu        sync.Mutex
	employers map[string]*union.EmployerProfile
}

func newEmployerStore() *employerStore {
	return &employerStore{employers: map[string]*union.EmployerProfile{}}
}

func (s *employerStore) EmployerByUser(_ context.Context, userID string) (*union.EmployerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employers[userID]
	if !ok {
		return nil, union.ErrEmployerProfileNotFound
	}
	out := *e
	return &out, nil
}

func (s *employerStore) set(userID string, e *union.EmployerProfile) {
	s.mu.Lock()
	s.employers[userID] = e
	s.mu.Unlock()
}

type feedSub struct {
	userID  string
	handler func(union.ApprovalUpdate)
}

type fakeFeed struct {
	mu   sync.Mutex
	subs map[int]feedSub
	next int
	err  error
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subs: map[int]feedSub{}}
}

func (f *fakeFeed) Subscribe(_ context.Context, userID string, handler func(union.ApprovalUpdate)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.next++
	id := f.next
	f.subs[id] = feedSub{userID: userID, handler: handler}
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}, nil
}

func (f *fakeFeed) emit(update union.ApprovalUpdate) {
	f.mu.Lock()
	var handlers []func(union.ApprovalUpdate)
	for _, sub := range f.subs {
		if sub.userID == update.UserID {
			handlers = append(handlers, sub.handler)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(update)
	}
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type recordingNavigator struct {
	mu      sync.Mutex
	path    string
	history []string
}

func newNavigator(path string) *recordingNavigator {
	return &recordingNavigator{path: path}
}

func (n *recordingNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	n.history = append(n.history, path)
}

func (n *recordingNavigator) Path() string {
	return n.CurrentPath()
}

func (n *recordingNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.history))
	copy(out, n.history)
	return out
}

type memStorage struct {
	mu      sync.Mutex
	session *union.Session
	saves   int
	clears  int
}

func (s *memStorage) Load(context.Context) (*union.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone(), nil
}

func (s *memStorage) Save(_ context.Context, session *union.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session.Clone()
	s.saves++
	return nil
}

func (s *memStorage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	s.clears++
	return nil
}

func (s *memStorage) current() *union.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

type logCall struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, message string, args ...any) {
	l.mu.Lock()
	l.calls = append(l.calls, logCall{level: level, message: message, args: args})
	l.mu.Unlock()
}

func (l *captureLogger) Debug(message string, args ...any) { l.record("debug", message, args...) }
func (l *captureLogger) Info(message string, args ...any)  { l.record("info", message, args...) }
func (l *captureLogger) Warn(message string, args ...any)  { l.record("warn", message, args...) }
func (l *captureLogger) Error(message string, args ...any) { l.record("error", message, args...) }

func (l *captureLogger) has(level, message string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.calls {
		if c.level == level && c.message == message {
			return true
		}
	}
	return false
}

type activityRecorder struct {
	mu     sync.Mutex
	events []union.ActivityEvent
}

func (r *activityRecorder) Record(_ context.Context, event union.ActivityEvent) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

func (r *activityRecorder) types() []union.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]union.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func newSession(userID string) *union.Session {
	return &union.Session{
		UserID:       userID,
		Email:        userID + "@union.test",
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
	}
}

const (
	workerID   = "11111111-1111-4111-8111-111111111111"
	employerID = "22222222-2222-4222-8222-222222222222"
	adminID    = "33333333-3333-4333-8333-333333333333"
	customerID = "44444444-4444-4444-8444-444444444444"
)
