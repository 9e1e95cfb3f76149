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

// DefaultQueryTimeout bounds background role and approval lookups.
const DefaultQueryTimeout = 10 * time.Second

// RoleResolverOption customizes a RoleResolver.
type RoleResolverOption func(*RoleResolver)

// WithRoleResolverLogger sets the logger.
func WithRoleResolverLogger(logger Logger) RoleResolverOption {
	return func(r *RoleResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRoleQueryTimeout bounds each role lookup.
func WithRoleQueryTimeout(timeout time.Duration) RoleResolverOption {
	return func(r *RoleResolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// RoleResolver maps the current session to its role. The cached value is
// tagged with the session generation it was computed for.
type RoleResolver struct {
	store    RoleStore
	sessions *SessionStore
	logger   Logger
	timeout  time.Duration
	group    singleflight.Group

	mu       sync.RWMutex
	state    RoleState
	stateGen uint64
}

// NewRoleResolver returns a resolver reading roles from store for the
// sessions held by sessions.
func NewRoleResolver(store RoleStore, sessions *SessionStore, opts ...RoleResolverOption) *RoleResolver {
	r := &RoleResolver{
		store:    store,
		sessions: sessions,
		logger:   defLogger{name: "roles"},
		timeout:  DefaultQueryTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// ResolveRole looks up the role of userID. It never returns an error:
// failures are logged and reported as a Failed state.
func (r *RoleResolver) ResolveRole(ctx context.Context, userID string) RoleState {
	if userID == "" || r.store == nil {
		return RoleState{}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	role, err := r.store.RoleByUser(ctx, userID)
	if err != nil {
		switch {
		case goerrors.IsNotFound(err) || HasTextCode(err, TextCodeRoleNotFound):
			r.logger.Warn("no role row for user", "user_id", userID)
		case errors.Is(err, context.DeadlineExceeded):
			r.logger.Warn("role lookup timed out", "user_id", userID, "timeout", r.timeout)
		default:
			r.logger.Error("role lookup failed", "user_id", userID, "error", err)
		}
		return RoleState{Status: Failed}
	}

	parsed, ok := ParseRole(string(role))
	if !ok {
		r.logger.Warn("unrecognized role value", "user_id", userID, "role", role)
		return RoleState{Value: role, Status: Resolved}
	}
	return RoleState{Value: parsed, Status: Resolved}
}

// Current returns the cached role for the live session generation.
func (r *RoleResolver) Current() RoleState {
	return r.currentFor(r.sessions.Generation())
}

func (r *RoleResolver) currentFor(gen uint64) RoleState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stateGen != gen {
		return RoleState{}
	}
	return r.state
}

// RefreshRole re-runs resolution for the current session. Concurrent
// calls for the same session generation share one lookup.
func (r *RoleResolver) RefreshRole(ctx context.Context) RoleState {
	session, gen := r.sessions.Current()
	if session == nil {
		r.Reset()
		return RoleState{}
	}
	return r.refreshFor(ctx, gen, session.UserID)
}

func (r *RoleResolver) refreshFor(ctx context.Context, gen uint64, userID string) RoleState {
	key := strconv.FormatUint(gen, 10) + ":" + userID
	v, _, _ := r.group.Do(key, func() (any, error) {
		state := r.ResolveRole(ctx, userID)
		r.commit(gen, state)
		return state, nil
	})
	state, _ := v.(RoleState)
	return r.currentOr(gen, state)
}

func (r *RoleResolver) currentOr(gen uint64, fallback RoleState) RoleState {
	if r.sessions.Generation() != gen {
		return RoleState{}
	}
	if current := r.currentFor(gen); current.Status != Unresolved {
		return current
	}
	return fallback
}

// commit stores state if gen is still the live generation. A failed
// lookup does not overwrite a role already resolved for the same
// generation.
func (r *RoleResolver) commit(gen uint64, state RoleState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if live := r.sessions.Generation(); live != gen {
		r.logger.Debug("discarding stale role result", "generation", gen, "live_generation", live)
		return false
	}

	if state.Status == Failed && r.stateGen == gen && r.state.Status == Resolved {
		r.logger.Warn("role refresh failed, keeping cached role", "role", r.state.Value)
		return false
	}

	r.state = state
	r.stateGen = gen
	return true
}

// seed installs a role known from context, e.g. the role requested at
// sign up, while the stored row is being provisioned.
func (r *RoleResolver) seed(gen uint64, role Role) bool {
	return r.commit(gen, RoleState{Value: role, Status: Resolved})
}

// Reset drops the cached role.
func (r *RoleResolver) Reset() {
	r.mu.Lock()
	r.state = RoleState{}
	r.stateGen = 0
	r.mu.Unlock()
}
