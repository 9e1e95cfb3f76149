package web

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-union"
	"github.com/goliatone/go-union/realtime"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how long a resolved role and approval are reused
// across requests of the same user.
const DefaultCacheTTL = 30 * time.Second

type profileEntry struct {
	role       union.RoleState
	approval   union.ApprovalState
	incomplete bool
	expires    time.Time
}

// Evaluator applies the navigation policy to request sessions. Lookups
// are shared per user and cached until the TTL runs out or the approval
// feed reports a change.
type Evaluator struct {
	employers union.EmployerStore

	roles     *union.RoleResolver
	approvals *union.ApprovalGate

	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  union.Logger
	group   singleflight.Group

	mu      sync.RWMutex
	entries map[string]profileEntry
	swept   time.Time
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithEvaluatorLogger sets the logger.
func WithEvaluatorLogger(logger union.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCacheTTL sets how long lookups are reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if ttl >= 0 {
			e.ttl = ttl
		}
	}
}

// WithQueryTimeout bounds each store lookup.
func WithQueryTimeout(timeout time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithEvaluatorClock replaces time.Now.
func WithEvaluatorClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEvaluator returns an evaluator reading from the given stores.
// employers may be nil, in which case employer profiles count as complete.
func NewEvaluator(roles union.RoleStore, workers union.WorkerStore, employers union.EmployerStore, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		employers: employers,
		ttl:       DefaultCacheTTL,
		timeout:   union.DefaultQueryTimeout,
		now:       time.Now,
		logger:    union.ResolveLogger("web:nav", nil, nil),
		entries:   map[string]profileEntry{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	e.roles = union.NewRoleResolver(roles, nil,
		union.WithRoleResolverLogger(e.logger),
		union.WithRoleQueryTimeout(e.timeout),
	)
	e.approvals = union.NewApprovalGate(workers, nil,
		union.WithApprovalGateLogger(e.logger),
		union.WithApprovalQueryTimeout(e.timeout),
	)
	return e
}

// Snapshot builds the navigation input for session.
func (e *Evaluator) Snapshot(ctx context.Context, session *union.Session) union.Snapshot {
	if session == nil || session.UserID == "" {
		return union.Snapshot{}
	}

	entry := e.lookup(ctx, session.UserID)
	return union.Snapshot{
		Session:            session,
		Role:               entry.role,
		Approval:           entry.approval,
		EmployerIncomplete: entry.incomplete,
	}
}

// Evaluate returns the navigation decision for session.
func (e *Evaluator) Evaluate(ctx context.Context, session *union.Session) union.Decision {
	d := union.Decide(e.Snapshot(ctx, session))
	if d.Warning != "" && session != nil {
		e.logger.Warn("navigation fallback", "user_id", session.UserID, "state", d.State, "warning", d.Warning)
	}
	return d
}

// Invalidate drops the cached lookups of userID.
func (e *Evaluator) Invalidate(userID string) {
	e.mu.Lock()
	delete(e.entries, userID)
	e.mu.Unlock()
}

// Apply installs an approval update into the cache. Updates are applied
// in arrival order, the last one wins.
func (e *Evaluator) Apply(update union.ApprovalUpdate) {
	if update.UserID == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.entries[update.UserID]
	if !ok {
		return
	}
	entry.approval = union.ApprovalState{
		Value:           update.Status,
		RejectionReason: update.RejectionReason,
		Status:          union.Resolved,
	}
	e.entries[update.UserID] = entry
}

// Watch keeps the cache in line with feed until ctx is done.
func (e *Evaluator) Watch(ctx context.Context, feed union.ApprovalFeed) (func(), error) {
	if feed == nil {
		return func() {}, union.ErrSubscriptionNotAvailable
	}
	return feed.Subscribe(ctx, realtime.AllUsers, func(update union.ApprovalUpdate) {
		e.logger.Debug("approval update", "user_id", update.UserID, "status", update.Status)
		e.Apply(update)
	})
}

// lookup returns the cached entry of userID or resolves it. Concurrent
// callers share one resolution, which runs detached from their
// cancellation and bounded by the query timeout.
func (e *Evaluator) lookup(ctx context.Context, userID string) profileEntry {
	now := e.now()

	e.mu.RLock()
	entry, ok := e.entries[userID]
	e.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry
	}

	v, _, _ := e.group.Do(userID, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		fresh := e.resolve(qctx, userID)

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.ttl > 0 && fresh.role.Status == union.Resolved && fresh.approval.Status != union.Failed {
			fresh.expires = now.Add(e.ttl)
			e.entries[userID] = fresh
		} else {
			delete(e.entries, userID)
		}
		e.sweep(now)
		return fresh, nil
	})

	fresh, _ := v.(profileEntry)
	return fresh
}

// sweep drops expired entries, at most once per TTL. Callers hold mu.
func (e *Evaluator) sweep(now time.Time) {
	if e.ttl <= 0 || now.Before(e.swept.Add(e.ttl)) {
		return
	}
	e.swept = now
	for userID, entry := range e.entries {
		if !now.Before(entry.expires) {
			delete(e.entries, userID)
		}
	}
}

func (e *Evaluator) resolve(ctx context.Context, userID string) profileEntry {
	var out profileEntry

	var g errgroup.Group
	g.Go(func() error {
		out.role = e.roles.ResolveRole(ctx, userID)
		return nil
	})
	g.Go(func() error {
		out.approval = e.approvals.GetApprovalStatus(ctx, userID)
		return nil
	})
	if e.employers != nil {
		g.Go(func() error {
			out.incomplete = e.employerIncomplete(ctx, userID)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (e *Evaluator) employerIncomplete(ctx context.Context, userID string) bool {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	employer, err := e.employers.EmployerByUser(ctx, userID)
	switch {
	case err == nil:
		return !employer.IsComplete()
	case goerrors.IsNotFound(err) || union.HasTextCode(err, union.TextCodeEmployerProfileNotFound):
		return true
	default:
		e.logger.Warn("employer lookup failed", "user_id", userID, "error", err)
		return false
	}
}
