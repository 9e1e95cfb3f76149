package union

import (
	"context"

	"github.com/google/uuid"
)

// AdminReview is the admin side of the worker approval workflow.
type AdminReview struct {
	roles   *RoleResolver
	store   WorkerReviewStore
	machine ApprovalStateMachine
	logger  Logger
}

// AdminReviewOption customizes an AdminReview.
type AdminReviewOption func(*AdminReview)

// WithAdminReviewLogger sets the logger.
func WithAdminReviewLogger(logger Logger) AdminReviewOption {
	return func(r *AdminReview) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAdminReviewStateMachine replaces the default state machine.
func WithAdminReviewStateMachine(sm ApprovalStateMachine) AdminReviewOption {
	return func(r *AdminReview) {
		if sm != nil {
			r.machine = sm
		}
	}
}

// NewAdminReview returns the review service. Actors are authorized through
// roles, which only needs its store.
func NewAdminReview(roles *RoleResolver, store WorkerReviewStore, opts ...AdminReviewOption) *AdminReview {
	r := &AdminReview{
		roles:  roles,
		store:  store,
		logger: defLogger{name: "review"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.machine == nil {
		r.machine = NewApprovalStateMachine(store, WithStateMachineLogger(r.logger))
	}
	return r
}

// ListPending returns workers awaiting review, newest first.
func (r *AdminReview) ListPending(ctx context.Context, actorID string) ([]*WorkerProfile, error) {
	if err := r.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return r.store.ListPendingWorkers(ctx)
}

// Approve makes the worker profile public.
func (r *AdminReview) Approve(ctx context.Context, actorID string, workerID uuid.UUID) (*WorkerProfile, error) {
	return r.transition(ctx, actorID, workerID, ApprovalApproved, "")
}

// Reject sends the worker back with reason, which must not be blank.
func (r *AdminReview) Reject(ctx context.Context, actorID string, workerID uuid.UUID, reason string) (*WorkerProfile, error) {
	return r.transition(ctx, actorID, workerID, ApprovalRejected, reason)
}

func (r *AdminReview) transition(ctx context.Context, actorID string, workerID uuid.UUID, target ApprovalStatus, reason string) (*WorkerProfile, error) {
	if err := r.authorize(ctx, actorID); err != nil {
		return nil, err
	}

	worker, err := r.store.WorkerByID(ctx, workerID)
	if err != nil {
		return nil, err
	}

	updated, err := r.machine.Transition(ctx, ActorRef{ID: actorID, Type: "admin"}, worker, target, WithTransitionReason(reason))
	if err != nil {
		r.logger.Warn("worker review failed", "worker_id", workerID, "target", target, "error", err)
		return nil, err
	}

	r.logger.Info("worker reviewed", "worker_id", workerID, "status", updated.ApprovalStatus, "actor_id", actorID)
	return updated, nil
}

func (r *AdminReview) authorize(ctx context.Context, actorID string) error {
	state := r.roles.ResolveRole(ctx, actorID)
	if state.Status != Resolved || state.Value != RoleAdmin {
		return ErrNotAdmin.Clone().WithMetadata(map[string]any{
			"actor_id": actorID,
		})
	}
	return nil
}
