package union

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

// ApprovalGateOption customizes an ApprovalGate.
type ApprovalGateOption func(*ApprovalGate)

// WithApprovalGateLogger sets the logger.
func WithApprovalGateLogger(logger Logger) ApprovalGateOption {
	return func(g *ApprovalGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithApprovalQueryTimeout bounds each approval lookup.
func WithApprovalQueryTimeout(timeout time.Duration) ApprovalGateOption {
	return func(g *ApprovalGate) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// WithApprovalFeed sets the change feed used by SubscribeApprovalChanges.
func WithApprovalFeed(feed ApprovalFeed) ApprovalGateOption {
	return func(g *ApprovalGate) {
		g.feed = feed
	}
}

// ApprovalGate tracks the approval status of the current session's worker
// profile, from lookups and from the change feed.
//
// Feed updates are applied last-write-wins in arrival order. Updates carry
// no version, so a late delivery of an older status replaces a newer one
// until the next lookup.
type ApprovalGate struct {
	store    WorkerStore
	feed     ApprovalFeed
	sessions *SessionStore
	logger   Logger
	timeout  time.Duration
	group    singleflight.Group

	mu       sync.RWMutex
	state    ApprovalState
	stateGen uint64
}

// NewApprovalGate returns a gate reading worker rows from store.
func NewApprovalGate(store WorkerStore, sessions *SessionStore, opts ...ApprovalGateOption) *ApprovalGate {
	g := &ApprovalGate{
		store:    store,
		sessions: sessions,
		logger:   defLogger{name: "approval"},
		timeout:  DefaultQueryTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// GetApprovalStatus looks up the approval of userID's worker profile. A
// missing row resolves to an empty value, which the policy treats as
// pending. Failures are logged and reported as a Failed state.
func (g *ApprovalGate) GetApprovalStatus(ctx context.Context, userID string) ApprovalState {
	if userID == "" || g.store == nil {
		return ApprovalState{}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	worker, err := g.store.WorkerByUser(ctx, userID)
	if err != nil {
		switch {
		case goerrors.IsNotFound(err) || HasTextCode(err, TextCodeWorkerProfileNotFound):
			return ApprovalState{Status: Resolved}
		case errors.Is(err, context.DeadlineExceeded):
			g.logger.Warn("approval lookup timed out", "user_id", userID, "timeout", g.timeout)
		default:
			g.logger.Error("approval lookup failed", "user_id", userID, "error", err)
		}
		return ApprovalState{Status: Failed}
	}

	state := worker.Approval()
	if state.Value != "" && !state.Value.IsValid() {
		g.logger.Warn("unrecognized approval status, treating as pending", "user_id", userID, "status", state.Value)
		state.Value = ApprovalPending
	}
	return state
}

// Current returns the cached approval for the live session generation.
func (g *ApprovalGate) Current() ApprovalState {
	return g.currentFor(g.sessions.Generation())
}

func (g *ApprovalGate) currentFor(gen uint64) ApprovalState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.stateGen != gen {
		return ApprovalState{}
	}
	return g.state
}

// Refresh re-reads the approval for the current session.
func (g *ApprovalGate) Refresh(ctx context.Context) ApprovalState {
	session, gen := g.sessions.Current()
	if session == nil {
		g.Reset()
		return ApprovalState{}
	}
	return g.refreshFor(ctx, gen, session.UserID)
}

func (g *ApprovalGate) refreshFor(ctx context.Context, gen uint64, userID string) ApprovalState {
	key := strconv.FormatUint(gen, 10) + ":" + userID
	v, _, _ := g.group.Do(key, func() (any, error) {
		state := g.GetApprovalStatus(ctx, userID)
		g.commit(gen, state)
		return state, nil
	})
	if g.sessions.Generation() != gen {
		return ApprovalState{}
	}
	if current := g.currentFor(gen); current.Status != Unresolved {
		return current
	}
	state, _ := v.(ApprovalState)
	return state
}

func (g *ApprovalGate) commit(gen uint64, state ApprovalState) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if live := g.sessions.Generation(); live != gen {
		g.logger.Debug("discarding stale approval result", "generation", gen, "live_generation", live)
		return false
	}

	if state.Status == Failed && g.stateGen == gen && g.state.Status == Resolved {
		g.logger.Warn("approval refresh failed, keeping cached status", "status", g.state.Value)
		return false
	}

	if g.stateGen == gen && g.state.Same(state) {
		return false
	}

	g.state = state
	g.stateGen = gen
	return true
}

// apply folds a feed update into the cache. It reports false when the
// update is stale, targets another user, or repeats the cached status.
func (g *ApprovalGate) apply(gen uint64, update ApprovalUpdate) bool {
	session, live := g.sessions.Current()
	if session == nil || live != gen || session.UserID != update.UserID {
		return false
	}
	return g.commit(gen, ApprovalState{
		Value:           update.Status,
		RejectionReason: update.RejectionReason,
		Status:          Resolved,
	})
}

// SubscribeApprovalChanges registers handler for approval updates of
// userID's worker row. Updates repeating the last known status are
// dropped. The returned function unsubscribes and may be called more than
// once.
func (g *ApprovalGate) SubscribeApprovalChanges(ctx context.Context, userID string, handler func(ApprovalUpdate)) (func(), error) {
	if g.feed == nil {
		return func() {}, ErrSubscriptionNotAvailable
	}
	if handler == nil {
		return func() {}, nil
	}

	var (
		mu   sync.Mutex
		last ApprovalState
	)
	if session, gen := g.sessions.Current(); session != nil && session.UserID == userID {
		last = g.currentFor(gen)
	}

	unsubscribe, err := g.feed.Subscribe(ctx, userID, func(update ApprovalUpdate) {
		if update.UserID != userID {
			return
		}
		next := ApprovalState{Value: update.Status, RejectionReason: update.RejectionReason, Status: Resolved}

		mu.Lock()
		if last.Same(next) {
			mu.Unlock()
			g.logger.Debug("duplicate approval update ignored", "user_id", userID, "status", update.Status)
			return
		}
		last = next
		mu.Unlock()

		handler(update)
	})
	if err != nil {
		return func() {}, goerrors.Wrap(err, goerrors.CategoryOperation, "approval subscription failed")
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if unsubscribe != nil {
				unsubscribe()
			}
		})
	}, nil
}

// Reset drops the cached approval.
func (g *ApprovalGate) Reset() {
	g.mu.Lock()
	g.state = ApprovalState{}
	g.stateGen = 0
	g.mu.Unlock()
}
