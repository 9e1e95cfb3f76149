package web

import (
	"context"
	"net/http"

	"github.com/goliatone/go-router"
	"github.com/goliatone/go-union"
)

// Catalog lists the reference data shown by the onboarding forms.
type Catalog interface {
	ListCities(ctx context.Context) ([]*union.City, error)
	ListSkills(ctx context.Context) ([]*union.Skill, error)
}

// OnboardingControllerRoutes are the paths served by the
// OnboardingController.
type OnboardingControllerRoutes struct {
	Cities   string
	Skills   string
	Worker   string
	Employer string
}

// OnboardingController serves the profile forms. The session comes from
// the router locals or the session cookie.
type OnboardingController struct {
	Logger       union.Logger
	Provider     union.IdentityProvider
	Onboarding   *union.Onboarding
	Catalog      Catalog
	Evaluator    *Evaluator
	CookieName   string
	Routes       *OnboardingControllerRoutes
	ErrorHandler func(router.Context, error) error
}

// OnboardingControllerOption customizes the controller.
type OnboardingControllerOption func(*OnboardingController) *OnboardingController

// NewOnboardingController builds the controller. Provider and Onboarding
// are required.
func NewOnboardingController(opts ...OnboardingControllerOption) *OnboardingController {
	c := &OnboardingController{
		Logger:       union.ResolveLogger("web:onboarding", nil, nil),
		CookieName:   DefaultCookieName,
		ErrorHandler: defaultErrHandler,
		Routes: &OnboardingControllerRoutes{
			Cities:   "/api/catalog/cities",
			Skills:   "/api/catalog/skills",
			Worker:   "/api/onboarding/worker",
			Employer: "/api/onboarding/employer",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	if c.Provider == nil {
		panic("Missing IdentityProvider in onboarding controller...")
	}

	if c.Onboarding == nil {
		panic("Missing Onboarding in onboarding controller...")
	}

	return c
}

// OnboardingResponse is returned after a profile is saved.
type OnboardingResponse struct {
	Profile any    `json:"profile"`
	Route   string `json:"route"`
}

// ListCities returns the known cities.
func (o *OnboardingController) ListCities(ctx router.Context) error {
	if o.Catalog == nil {
		return ctx.JSON(http.StatusOK, map[string]any{"cities": []*union.City{}})
	}
	cities, err := o.Catalog.ListCities(ctx.Context())
	if err != nil {
		return o.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"cities": cities})
}

// ListSkills returns the skills a worker can pick.
func (o *OnboardingController) ListSkills(ctx router.Context) error {
	if o.Catalog == nil {
		return ctx.JSON(http.StatusOK, map[string]any{"skills": []*union.Skill{}})
	}
	skills, err := o.Catalog.ListSkills(ctx.Context())
	if err != nil {
		return o.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"skills": skills})
}

// ShowWorker returns the worker profile of the signed in user, waiting
// for it to be provisioned.
func (o *OnboardingController) ShowWorker(ctx router.Context) error {
	session, err := o.session(ctx)
	if err != nil {
		return o.ErrorHandler(ctx, err)
	}

	worker, err := o.Onboarding.LoadWorker(ctx.Context(), session.UserID)
	if err != nil {
		return o.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, worker)
}

// SaveWorker completes the worker profile.
func (o *OnboardingController) SaveWorker(ctx router.Context) error {
	session, err := o.session(ctx)
	if err != nil {
		return o.ErrorHandler(ctx, err)
	}

	payload := new(union.WorkerOnboarding)
	if err := ctx.Bind(payload); err != nil {
		return o.ErrorHandler(ctx, validationError(union.ErrInvalidOnboarding, err))
	}

	worker, err := o.Onboarding.CompleteWorker(ctx.Context(), session.UserID, *payload)
	if err != nil {
		return o.ErrorHandler(ctx, err)
	}
	o.invalidate(session.UserID)

	return ctx.JSON(http.StatusOK, OnboardingResponse{
		Profile: worker,
		Route:   union.NextWorkerRoute(worker),
	})
}

// ShowEmployer returns the employer profile of the signed in user.
func (o *OnboardingController) ShowEmployer(ctx router.Context) error {
	session, err := o.session(ctx)
	if err != nil {
		return o.ErrorHandler(ctx, err)
	}

	employer, err := o.Onboarding.LoadEmployer(ctx.Context(), session.UserID)
	if err != nil {
		return o.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, employer)
}

// SaveEmployer completes the employer profile.
func (o *OnboardingController) SaveEmployer(ctx router.Context) error {
	session, err := o.session(ctx)
	if err != nil {
		return o.ErrorHandler(ctx, err)
	}

	payload := new(union.EmployerOnboarding)
	if err := ctx.Bind(payload); err != nil {
		return o.ErrorHandler(ctx, validationError(union.ErrInvalidOnboarding, err))
	}

	employer, err := o.Onboarding.CompleteEmployer(ctx.Context(), session.UserID, *payload)
	if err != nil {
		return o.ErrorHandler(ctx, err)
	}
	o.invalidate(session.UserID)

	return ctx.JSON(http.StatusOK, OnboardingResponse{
		Profile: employer,
		Route:   union.RouteEmployerProfile,
	})
}

func (o *OnboardingController) session(ctx router.Context) (*union.Session, error) {
	if session, ok := union.SessionFromRouter(ctx); ok {
		return session, nil
	}
	if session := sessionFromCookie(ctx, o.Provider, o.CookieName, o.Logger); session != nil {
		return session, nil
	}
	return nil, union.ErrNoSession
}

func (o *OnboardingController) invalidate(userID string) {
	if o.Evaluator != nil {
		o.Evaluator.Invalidate(userID)
	}
}
