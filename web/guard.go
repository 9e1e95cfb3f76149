package web

import (
	"net/http"

	"github.com/goliatone/go-router"
	"github.com/goliatone/go-union"
)

// Guard applies the navigation policy before protected handlers. A
// request whose path the policy rejects is redirected with 303, otherwise
// the session and decision are stored in the router locals.
type Guard struct {
	provider   union.IdentityProvider
	evaluator  *Evaluator
	cookieName string
	logger     union.Logger
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithGuardLogger sets the logger.
func WithGuardLogger(logger union.Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardCookieName sets the session cookie name.
func WithGuardCookieName(name string) GuardOption {
	return func(g *Guard) {
		if name != "" {
			g.cookieName = name
		}
	}
}

// NewGuard returns a guard resolving sessions through provider.
func NewGuard(provider union.IdentityProvider, evaluator *Evaluator, opts ...GuardOption) *Guard {
	g := &Guard{
		provider:   provider,
		evaluator:  evaluator,
		cookieName: DefaultCookieName,
		logger:     union.ResolveLogger("web:guard", nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Middleware returns the guard as router middleware.
func (g *Guard) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			session := sessionFromCookie(ctx, g.provider, g.cookieName, g.logger)
			decision := g.evaluator.Evaluate(ctx.Context(), session)

			path := ctx.Path()
			if target, redirect := union.Route(path, decision); redirect {
				g.logger.Debug("route guard redirect", "path", path, "target", target, "state", decision.State)
				return ctx.Redirect(target, http.StatusSeeOther)
			}

			if session != nil {
				ctx.Locals(union.SessionLocalsKey, session)
			}
			ctx.Locals(union.DecisionLocalsKey, decision)

			return next(ctx)
		}
	}
}

// Protect wraps a single handler with the guard.
func (g *Guard) Protect(handler router.HandlerFunc) router.HandlerFunc {
	return g.Middleware()(handler)
}

func sessionFromCookie(ctx router.Context, provider union.IdentityProvider, name string, logger union.Logger) *union.Session {
	token := ctx.Cookies(name)
	if token == "" {
		return nil
	}

	session, err := provider.SessionFromToken(ctx.Context(), token)
	if err != nil {
		logger.Debug("session cookie rejected", "error", err)
		return nil
	}
	return session
}
