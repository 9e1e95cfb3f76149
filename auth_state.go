package union

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/errgroup"
)

// DefaultApprovalRedirectDelay is how long the pending approval view shows
// its confirmation before moving to the home route.
const DefaultApprovalRedirectDelay = 2 * time.Second

// AuthStateConfig wires the collaborators of an AuthState.
type AuthStateConfig struct {
	Provider  IdentityProvider
	Roles     RoleStore
	Workers   WorkerStore
	Employers EmployerStore
	Feed      ApprovalFeed
	Storage   SessionStorage
	Navigator Navigator
}

// AuthStateOption customizes an AuthState.
type AuthStateOption func(*AuthState)

// WithLogger sets the logger of the state and its components.
func WithLogger(logger Logger) AuthStateOption {
	return func(a *AuthState) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLoggerProvider hands each component a named logger.
func WithLoggerProvider(provider LoggerProvider) AuthStateOption {
	return func(a *AuthState) {
		a.loggerProvider = provider
	}
}

// WithQueryTimeout bounds background role and approval lookups.
func WithQueryTimeout(timeout time.Duration) AuthStateOption {
	return func(a *AuthState) {
		if timeout > 0 {
			a.queryTimeout = timeout
		}
	}
}

// WithApprovalRedirectDelay sets the pause before the pending approval
// view navigates home after an approval.
func WithApprovalRedirectDelay(delay time.Duration) AuthStateOption {
	return func(a *AuthState) {
		if delay >= 0 {
			a.redirectDelay = delay
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish auth events.
func WithActivitySink(sink ActivitySink) AuthStateOption {
	return func(a *AuthState) {
		a.activity = normalizeActivitySink(sink)
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) AuthStateOption {
	return func(a *AuthState) {
		if clock != nil {
			a.now = clock
		}
	}
}

// Listener observes snapshot and decision changes. It may call back into
// the AuthState, for example to retry with RefreshRole.
type Listener func(Snapshot, Decision)

type listenerEntry struct {
	id uint64
	fn Listener
}

type employerState struct {
	incomplete bool
	gen        uint64
}

// AuthState is the injectable container holding the session, role and
// approval caches and driving navigation from them.
type AuthState struct {
	provider  IdentityProvider
	employers EmployerStore
	navigator Navigator

	sessions  *SessionStore
	roles     *RoleResolver
	approvals *ApprovalGate

	logger         Logger
	loggerProvider LoggerProvider
	activity       ActivitySink
	now            func() time.Time
	queryTimeout   time.Duration
	redirectDelay  time.Duration

	mu           sync.RWMutex
	loading      bool
	employer     employerState
	listeners    []listenerEntry
	nextListener uint64
	stopSession  func()

	evalMu       sync.Mutex
	lastDecision Decision
	hasDecision  bool
	evalSeq      uint64
}

// NewAuthState builds the container. Call Init before use and Teardown
// when done.
func NewAuthState(cfg AuthStateConfig, opts ...AuthStateOption) *AuthState {
	a := &AuthState{
		provider:      cfg.Provider,
		employers:     cfg.Employers,
		navigator:     cfg.Navigator,
		logger:        defLogger{name: "auth"},
		activity:      noopActivitySink{},
		now:           time.Now,
		queryTimeout:  DefaultQueryTimeout,
		redirectDelay: DefaultApprovalRedirectDelay,
		loading:       true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	a.logger = ResolveLogger("auth", a.loggerProvider, a.logger)

	a.sessions = NewSessionStore(cfg.Provider,
		WithSessionStorage(cfg.Storage),
		WithSessionLogger(ResolveLogger("session", a.loggerProvider, a.logger)),
		WithSessionClock(a.now),
	)
	a.roles = NewRoleResolver(cfg.Roles, a.sessions,
		WithRoleResolverLogger(ResolveLogger("roles", a.loggerProvider, a.logger)),
		WithRoleQueryTimeout(a.queryTimeout),
	)
	a.approvals = NewApprovalGate(cfg.Workers, a.sessions,
		WithApprovalGateLogger(ResolveLogger("approval", a.loggerProvider, a.logger)),
		WithApprovalQueryTimeout(a.queryTimeout),
		WithApprovalFeed(cfg.Feed),
	)
	return a
}

// Init loads the session, resolves role and approval for it and runs the
// first navigation evaluation. Until the session is loaded the state
// reports Loading and no navigation happens.
func (a *AuthState) Init(ctx context.Context) error {
	if err := a.sessions.Init(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize session")
	}

	stop := a.sessions.OnSessionChange(a.onSessionChange)

	a.mu.Lock()
	a.stopSession = stop
	a.loading = false
	a.mu.Unlock()

	session, gen := a.sessions.Current()
	if session == nil {
		a.evaluate()
		return nil
	}
	a.refresh(ctx, gen, refreshAll)
	return nil
}

// Teardown releases the session subscription and every listener.
func (a *AuthState) Teardown() {
	a.mu.Lock()
	stop := a.stopSession
	a.stopSession = nil
	a.listeners = nil
	a.loading = true
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	a.sessions.Teardown()
	a.roles.Reset()
	a.approvals.Reset()

	a.evalMu.Lock()
	a.hasDecision = false
	a.lastDecision = Decision{}
	a.evalSeq++
	a.evalMu.Unlock()
}

// Sessions exposes the session store.
func (a *AuthState) Sessions() *SessionStore { return a.sessions }

// Roles exposes the role resolver.
func (a *AuthState) Roles() *RoleResolver { return a.roles }

// Approvals exposes the approval gate.
func (a *AuthState) Approvals() *ApprovalGate { return a.approvals }

// Loading reports whether the session has not been loaded yet.
func (a *AuthState) Loading() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loading
}

// CurrentSession returns the signed in session, or nil.
func (a *AuthState) CurrentSession() *Session {
	return a.sessions.GetCurrentSession()
}

// CurrentRole returns the cached role of the current session.
func (a *AuthState) CurrentRole() RoleState {
	return a.roles.Current()
}

// CurrentApproval returns the cached approval of the current session.
func (a *AuthState) CurrentApproval() ApprovalState {
	return a.approvals.Current()
}

// Snapshot returns a consistent view of the caches for the live session
// generation.
func (a *AuthState) Snapshot() Snapshot {
	session, gen := a.sessions.Current()

	a.mu.RLock()
	loading := a.loading
	employer := a.employer
	a.mu.RUnlock()

	snap := Snapshot{
		Loading:    loading,
		Session:    session,
		Generation: gen,
	}
	if session == nil {
		return snap
	}
	snap.Role = a.roles.currentFor(gen)
	snap.Approval = a.approvals.currentFor(gen)
	snap.EmployerIncomplete = employer.gen == gen && employer.incomplete
	return snap
}

// Decision evaluates the policy for the current snapshot.
func (a *AuthState) Decision() Decision {
	return Decide(a.Snapshot())
}

// Guard applies the current decision to path.
func (a *AuthState) Guard(path string) (string, bool) {
	return Route(path, a.Decision())
}

// Subscribe registers fn for decision changes. The returned function
// deregisters it.
func (a *AuthState) Subscribe(fn Listener) (dispose func()) {
	if fn == nil {
		return func() {}
	}
	a.mu.Lock()
	a.nextListener++
	id := a.nextListener
	a.listeners = append(a.listeners, listenerEntry{id: id, fn: fn})
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			for i, l := range a.listeners {
				if l.id == id {
					a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// RefreshRole re-resolves the role of the current session and
// re-evaluates navigation. It is the retry affordance after a failed
// lookup.
func (a *AuthState) RefreshRole(ctx context.Context) RoleState {
	state := a.roles.RefreshRole(ctx)
	a.evaluate()
	return state
}

// ApplyApprovalUpdate folds a pushed approval update into the cache and
// re-evaluates navigation. It reports whether the cache changed.
func (a *AuthState) ApplyApprovalUpdate(update ApprovalUpdate) bool {
	if !a.approvals.apply(a.sessions.Generation(), update) {
		return false
	}
	a.evaluate()
	return true
}

type refreshScope int

const (
	refreshAll refreshScope = iota
	refreshProfiles
)

// refresh resolves role, approval and employer completeness for the
// session generation gen concurrently and evaluates navigation once all
// of them settled. Results for an older generation are discarded by the
// components.
func (a *AuthState) refresh(ctx context.Context, gen uint64, scope refreshScope) {
	session, live := a.sessions.Current()
	if session == nil || live != gen {
		return
	}
	userID := session.UserID

	var g errgroup.Group
	if scope == refreshAll {
		g.Go(func() error {
			a.roles.refreshFor(ctx, gen, userID)
			return nil
		})
	}
	g.Go(func() error {
		a.approvals.refreshFor(ctx, gen, userID)
		return nil
	})
	if a.employers != nil {
		g.Go(func() error {
			a.refreshEmployer(ctx, gen, userID)
			return nil
		})
	}
	_ = g.Wait()

	if a.sessions.Generation() != gen {
		return
	}
	a.evaluate()
}

func (a *AuthState) refreshEmployer(ctx context.Context, gen uint64, userID string) {
	ctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	incomplete := false
	employer, err := a.employers.EmployerByUser(ctx, userID)
	switch {
	case err == nil:
		incomplete = !employer.IsComplete()
	case goerrors.IsNotFound(err) || HasTextCode(err, TextCodeEmployerProfileNotFound):
		incomplete = true
	default:
		a.logger.Warn("employer lookup failed", "user_id", userID, "error", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sessions.Generation() != gen {
		return
	}
	a.employer = employerState{incomplete: incomplete, gen: gen}
}

func (a *AuthState) resetCaches() {
	a.roles.Reset()
	a.approvals.Reset()
	a.mu.Lock()
	a.employer = employerState{}
	a.mu.Unlock()
}

// onSessionChange reacts to transitions pushed by the provider. Changes
// made by the actions are handled inline by the actions themselves.
func (a *AuthState) onSessionChange(change SessionChange) {
	if !change.External || !change.IdentityChanged {
		return
	}
	a.resetCaches()
	if change.Session == nil {
		a.evaluate()
		return
	}
	go a.refresh(context.Background(), change.Generation, refreshAll)
}

// evaluate recomputes the decision, notifies listeners when it changed
// and asks the navigator to redirect when the current path is not
// allowed. The navigator and listeners run without evalMu held, so they
// may call back into the state. A decision superseded by a newer one is
// not delivered any further.
func (a *AuthState) evaluate() {
	a.evalMu.Lock()
	snap := a.Snapshot()
	decision := Decide(snap)
	if a.hasDecision && decision == a.lastDecision {
		a.evalMu.Unlock()
		return
	}
	a.lastDecision = decision
	a.hasDecision = true
	a.evalSeq++
	seq := a.evalSeq
	a.evalMu.Unlock()

	if decision.Warning != "" {
		userID := ""
		if snap.Session != nil {
			userID = snap.Session.UserID
		}
		a.logger.Warn("navigation fallback", "state", decision.State, "user_id", userID, "warning", decision.Warning)
	}

	if a.navigator != nil && a.latest(seq) {
		current := a.navigator.CurrentPath()
		if target, redirect := Route(current, decision); redirect {
			a.logger.Debug("navigating", "from", current, "to", target, "state", decision.State)
			a.navigator.Navigate(target)
		}
	}

	a.mu.RLock()
	listeners := make([]listenerEntry, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.RUnlock()

	for _, l := range listeners {
		if !a.latest(seq) {
			return
		}
		l.fn(snap, decision)
	}
}

func (a *AuthState) latest(seq uint64) bool {
	a.evalMu.Lock()
	defer a.evalMu.Unlock()
	return a.evalSeq == seq
}

func (a *AuthState) navigate(path string) {
	if a.navigator == nil {
		return
	}
	if NormalizePath(a.navigator.CurrentPath()) == path {
		return
	}
	a.navigator.Navigate(path)
}
