package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-union"
)

// DefaultCookieName is the cookie carrying the provider access token.
const DefaultCookieName = "union_session"

// AuthControllerRoutes are the paths served by the AuthController.
type AuthControllerRoutes struct {
	SignIn     string
	SignUp     string
	SignOut    string
	Navigation string
}

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name     string
	Duration time.Duration
	Secure   bool
	SameSite string
}

// AuthController serves the sign in, sign up and sign out actions and the
// navigation decision of the request session.
type AuthController struct {
	Debug        bool
	Logger       union.Logger
	Provider     union.IdentityProvider
	Evaluator    *Evaluator
	Activity     union.ActivitySink
	Routes       *AuthControllerRoutes
	Cookie       CookieConfig
	ErrorHandler func(router.Context, error) error
	now          func() time.Time
}

// AuthControllerOption customizes the controller.
type AuthControllerOption func(*AuthController) *AuthController

// NewAuthController builds the controller. Provider and Evaluator are
// required.
func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       union.ResolveLogger("web:auth", nil, nil),
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			SignIn:     "/auth/sign-in",
			SignUp:     "/auth/sign-up",
			SignOut:    "/auth/sign-out",
			Navigation: "/api/navigation",
		},
		Cookie: CookieConfig{
			Name:     DefaultCookieName,
			Duration: 24 * time.Hour,
			Secure:   true,
			SameSite: "Lax",
		},
		now: time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	if c.Provider == nil {
		panic("Missing IdentityProvider in auth controller...")
	}

	if c.Evaluator == nil {
		panic("Missing Evaluator in auth controller...")
	}

	return c
}

// SessionResponse is returned by the sign in and sign up actions.
type SessionResponse struct {
	UserID      string         `json:"user_id"`
	Email       string         `json:"email,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Route       string         `json:"route"`
	Decision    union.Decision `json:"decision"`
}

// SignIn authenticates the user and answers with the landing route.
func (a *AuthController) SignIn(ctx router.Context) error {
	payload := new(union.SignInInput)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, validationError(union.ErrInvalidCredentials, err))
	}
	payload.Email = normalizeEmail(payload.Email)

	if err := payload.Validate(); err != nil {
		a.record(ctx, union.ActivityEvent{
			EventType: union.ActivityEventSignInFailure,
			Actor:     union.ActorRef{ID: payload.Email, Type: "anonymous"},
			Metadata:  map[string]any{"error": err.Error()},
		})
		return a.ErrorHandler(ctx, validationError(union.ErrInvalidCredentials, err))
	}

	session, err := a.Provider.SignIn(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		a.Logger.Info("sign in failed", "email", payload.Email, "error", err)
		a.record(ctx, union.ActivityEvent{
			EventType: union.ActivityEventSignInFailure,
			Actor:     union.ActorRef{ID: payload.Email, Type: "anonymous"},
			Metadata:  map[string]any{"error": err.Error()},
		})
		return a.ErrorHandler(ctx, union.AsAuthError(err, "sign_in"))
	}

	a.setCookieToken(ctx, session)
	a.Evaluator.Invalidate(session.UserID)
	decision := a.Evaluator.Evaluate(ctx.Context(), session)

	a.record(ctx, union.ActivityEvent{
		EventType: union.ActivityEventSignInSuccess,
		Actor:     union.ActorRef{ID: session.UserID, Type: "user"},
		UserID:    session.UserID,
		Role:      decision.Role,
		Metadata:  map[string]any{"email": payload.Email},
	})

	return ctx.JSON(http.StatusOK, sessionResponse(session, decision, decision.Route))
}

// SignUp creates the account and answers with the onboarding route of
// the requested role. When the backend requires email confirmation no
// cookie is set and the response is 202.
func (a *AuthController) SignUp(ctx router.Context) error {
	payload := new(union.SignUpInput)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, validationError(union.ErrInvalidSignUp, err))
	}
	payload.Email = normalizeEmail(payload.Email)
	payload.DisplayName = strings.TrimSpace(payload.DisplayName)

	if a.Debug {
		a.Logger.Debug("sign up", "payload", print.MaybePrettyJSON(map[string]any{
			"email":     payload.Email,
			"full_name": payload.DisplayName,
			"role":      payload.Role,
		}))
	}

	if err := payload.Validate(); err != nil {
		a.record(ctx, union.ActivityEvent{
			EventType: union.ActivityEventSignUpFailure,
			Actor:     union.ActorRef{ID: payload.Email, Type: "anonymous"},
			Role:      payload.Role,
			Metadata:  map[string]any{"error": err.Error()},
		})
		return a.ErrorHandler(ctx, validationError(union.ErrInvalidSignUp, err))
	}

	session, err := a.Provider.SignUp(ctx.Context(), union.SignUpRequest{
		Email:       payload.Email,
		Password:    payload.Password,
		DisplayName: payload.DisplayName,
		Role:        payload.Role,
	})
	if err != nil {
		a.Logger.Info("sign up failed", "email", payload.Email, "error", err)
		a.record(ctx, union.ActivityEvent{
			EventType: union.ActivityEventSignUpFailure,
			Actor:     union.ActorRef{ID: payload.Email, Type: "anonymous"},
			Role:      payload.Role,
			Metadata:  map[string]any{"error": err.Error()},
		})
		return a.ErrorHandler(ctx, union.AsAuthError(err, "sign_up"))
	}

	if session == nil {
		return ctx.JSON(http.StatusAccepted, ErrorResponse{
			Error:    union.ErrConfirmationRequired.Message,
			TextCode: union.ErrConfirmationRequired.TextCode,
		})
	}

	a.setCookieToken(ctx, session)
	a.Evaluator.Invalidate(session.UserID)

	a.record(ctx, union.ActivityEvent{
		EventType: union.ActivityEventSignUpSuccess,
		Actor:     union.ActorRef{ID: session.UserID, Type: "user"},
		UserID:    session.UserID,
		Role:      payload.Role,
		Metadata:  map[string]any{"email": payload.Email},
	})

	decision := union.Decision{Role: payload.Role}
	return ctx.JSON(http.StatusCreated, sessionResponse(session, decision, payload.Role.OnboardingRoute()))
}

// SignOut always clears the session cookie. A provider failure is logged
// and reported as a warning in the response.
func (a *AuthController) SignOut(ctx router.Context) error {
	token := ctx.Cookies(a.Cookie.Name)
	a.cookieDel(ctx)

	body := map[string]any{"route": union.RouteAuth}
	if token == "" {
		return ctx.JSON(http.StatusOK, body)
	}

	session := &union.Session{AccessToken: token}
	if current, err := a.Provider.SessionFromToken(ctx.Context(), token); err == nil && current != nil {
		session = current
		a.Evaluator.Invalidate(current.UserID)
	}

	if err := a.Provider.SignOut(ctx.Context(), session); err != nil {
		a.Logger.Error("remote sign out failed, cookie cleared", "user_id", session.UserID, "error", err)
		body["warning"] = union.AsAuthError(err, "sign_out").Error()
	}

	a.record(ctx, union.ActivityEvent{
		EventType: union.ActivityEventSignOut,
		Actor:     union.ActorRef{ID: session.UserID, Type: "user"},
		UserID:    session.UserID,
	})

	return ctx.JSON(http.StatusOK, body)
}

// NavigationResponse is the decision of the navigation endpoint.
type NavigationResponse struct {
	Path     string         `json:"path"`
	Redirect bool           `json:"redirect"`
	Decision union.Decision `json:"decision"`
}

// Navigation applies the navigation policy to the path query parameter.
func (a *AuthController) Navigation(ctx router.Context) error {
	session, _ := union.SessionFromRouter(ctx)
	if session == nil {
		session = sessionFromCookie(ctx, a.Provider, a.Cookie.Name, a.Logger)
	}

	decision := a.Evaluator.Evaluate(ctx.Context(), session)
	target, redirect := union.Route(ctx.Query("path", union.RouteHome), decision)

	return ctx.JSON(http.StatusOK, NavigationResponse{
		Path:     target,
		Redirect: redirect,
		Decision: decision,
	})
}

func (a *AuthController) record(ctx router.Context, event union.ActivityEvent) {
	if a.Activity == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = a.now()
	}
	if err := a.Activity.Record(ctx.Context(), event); err != nil {
		a.Logger.Warn("activity sink failed", "event", event.EventType, "error", err)
	}
}

func (a *AuthController) setCookieToken(ctx router.Context, session *union.Session) {
	expires := a.now().Add(a.Cookie.Duration)
	if session.ExpiresAt != nil && session.ExpiresAt.After(expires) {
		expires = *session.ExpiresAt
	}

	ctx.Cookie(&router.Cookie{
		Name:     a.Cookie.Name,
		Value:    session.AccessToken,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   a.Cookie.Secure,
		SameSite: a.Cookie.SameSite,
	})
}

func (a *AuthController) cookieDel(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     a.Cookie.Name,
		Value:    "",
		Expires:  a.now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.Cookie.Secure,
		SameSite: a.Cookie.SameSite,
	})
}

func sessionResponse(session *union.Session, decision union.Decision, route string) SessionResponse {
	return SessionResponse{
		UserID:      session.UserID,
		Email:       session.Email,
		DisplayName: session.DisplayName,
		ExpiresAt:   session.ExpiresAt,
		Route:       route,
		Decision:    decision,
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
