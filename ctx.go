package union

import (
	"context"

	"github.com/goliatone/go-router"
)

// SessionLocalsKey is the router locals key holding the request session.
const SessionLocalsKey = "session"

// DecisionLocalsKey is the router locals key holding the request decision.
const DecisionLocalsKey = "decision"

var sessionCtxKey = &contextKey{"session"}
var decisionCtxKey = &contextKey{"decision"}

type contextKey struct {
	name string
}

// WithSession sets the session in the given context
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the session in the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok && raw != nil
}

// WithDecision sets the navigation decision in the given context
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionCtxKey, d)
}

// DecisionFromContext returns the navigation decision in the context.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	raw, ok := ctx.Value(decisionCtxKey).(Decision)
	return raw, ok
}

// SessionFromRouter extracts the session from the router context
func SessionFromRouter(ctx router.Context) (*Session, bool) {
	raw := ctx.Locals(SessionLocalsKey)
	if raw == nil {
		return nil, false
	}
	session, ok := raw.(*Session)
	return session, ok && session != nil
}

// DecisionFromRouter extracts the navigation decision from the router context
func DecisionFromRouter(ctx router.Context) (Decision, bool) {
	raw := ctx.Locals(DecisionLocalsKey)
	if raw == nil {
		return Decision{}, false
	}
	d, ok := raw.(Decision)
	return d, ok
}

// IsAdmin reports whether the request decision belongs to an admin.
func IsAdmin(ctx router.Context) bool {
	d, ok := DecisionFromRouter(ctx)
	return ok && d.Role == RoleAdmin
}
