package web

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-union"
	"github.com/google/uuid"
)

// AdminControllerRoutes are the paths served by the AdminController.
type AdminControllerRoutes struct {
	Workers string
	Approve string
	Reject  string
}

// AdminController exposes the worker review workflow.
type AdminController struct {
	Logger       union.Logger
	Review       *union.AdminReview
	Evaluator    *Evaluator
	Routes       *AdminControllerRoutes
	ErrorHandler func(router.Context, error) error
}

// AdminControllerOption customizes the controller.
type AdminControllerOption func(*AdminController) *AdminController

// NewAdminController builds the controller. Review is required.
func NewAdminController(opts ...AdminControllerOption) *AdminController {
	c := &AdminController{
		Logger:       union.ResolveLogger("web:admin", nil, nil),
		ErrorHandler: defaultErrHandler,
		Routes: &AdminControllerRoutes{
			Workers: "/admin/workers",
			Approve: "/admin/workers/:id/approve",
			Reject:  "/admin/workers/:id/reject",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	if c.Review == nil {
		panic("Missing AdminReview in admin controller...")
	}

	return c
}

// RejectRequest payload
type RejectRequest struct {
	Reason string `form:"reason" json:"reason"`
}

// Validate will run validation rules
func (r RejectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.Required, validation.Length(1, 1000)),
	)
}

// ListWorkers returns the workers awaiting review.
func (a *AdminController) ListWorkers(ctx router.Context) error {
	actor, ok := union.SessionFromRouter(ctx)
	if !ok {
		return a.ErrorHandler(ctx, union.ErrNoSession)
	}

	workers, err := a.Review.ListPending(ctx.Context(), actor.UserID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"workers": workers,
	})
}

// Approve moves a worker to approved.
func (a *AdminController) Approve(ctx router.Context) error {
	actor, workerID, err := a.target(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	worker, err := a.Review.Approve(ctx.Context(), actor.UserID, workerID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}
	a.invalidate(worker)

	return ctx.JSON(http.StatusOK, worker)
}

// Reject moves a worker to rejected with the given reason.
func (a *AdminController) Reject(ctx router.Context) error {
	actor, workerID, err := a.target(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(RejectRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, validationError(union.ErrRejectionReasonRequired, err))
	}
	payload.Reason = strings.TrimSpace(payload.Reason)

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, validationError(union.ErrRejectionReasonRequired, err))
	}

	worker, err := a.Review.Reject(ctx.Context(), actor.UserID, workerID, payload.Reason)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}
	a.invalidate(worker)

	return ctx.JSON(http.StatusOK, worker)
}

func (a *AdminController) target(ctx router.Context) (*union.Session, uuid.UUID, error) {
	actor, ok := union.SessionFromRouter(ctx)
	if !ok {
		return nil, uuid.Nil, union.ErrNoSession
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return nil, uuid.Nil, union.ErrWorkerProfileNotFound.Clone().WithMetadata(map[string]any{
			"id": ctx.Param("id"),
		})
	}
	return actor, id, nil
}

func (a *AdminController) invalidate(worker *union.WorkerProfile) {
	if a.Evaluator == nil || worker == nil {
		return
	}
	a.Evaluator.Invalidate(worker.UserID.String())
}
