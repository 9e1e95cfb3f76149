package union

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor  ActorRef
	Worker *WorkerProfile
	From   ApprovalStatus
	To     ApprovalStatus
	Meta   TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// ApprovalStateMachine moves worker profiles through the review workflow.
type ApprovalStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, worker *WorkerProfile, target ApprovalStatus, opts ...TransitionOption) (*WorkerProfile, error)
	CanTransition(from, to ApprovalStatus) bool
}

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*approvalStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *approvalStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish review events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *approvalStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachinePublisher announces every persisted transition on the
// approval feed.
func WithStateMachinePublisher(publisher ApprovalPublisher) StateMachineOption {
	return func(sm *approvalStateMachine) {
		sm.publisher = publisher
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
// By default the hook error is returned to the caller.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *approvalStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *approvalStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
// Rejections require one.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = strings.TrimSpace(reason)
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewApprovalStateMachine returns the review workflow backed by store.
func NewApprovalStateMachine(store WorkerReviewStore, opts ...StateMachineOption) ApprovalStateMachine {
	sm := &approvalStateMachine{
		store: store,
		transitions: map[ApprovalStatus]map[ApprovalStatus]struct{}{
			ApprovalPending: {
				ApprovalApproved: {},
				ApprovalRejected: {},
			},
			ApprovalRejected: {
				ApprovalPending:  {},
				ApprovalApproved: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{name: "review"},
		hookErrorHandler: func(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
			return goerrors.Wrap(err, goerrors.CategoryOperation, fmt.Sprintf("%s hook failed", phase)).
				WithMetadata(map[string]any{
					"worker_id": workerID(tc.Worker),
					"from":      tc.From,
					"to":        tc.To,
				})
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type approvalStateMachine struct {
	store            WorkerReviewStore
	publisher        ApprovalPublisher
	transitions      map[ApprovalStatus]map[ApprovalStatus]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *approvalStateMachine) Transition(ctx context.Context, actor ActorRef, worker *WorkerProfile, target ApprovalStatus, opts ...TransitionOption) (*WorkerProfile, error) {
	if worker == nil {
		return nil, ErrInvalidApprovalTransition.Clone().WithMetadata(map[string]any{
			"target": target,
			"reason": "worker is nil",
		})
	}
	if !target.IsValid() {
		return nil, ErrInvalidApprovalTransition.Clone().WithMetadata(map[string]any{
			"target": target,
			"reason": "unknown target status",
		})
	}

	from := worker.ApprovalStatus
	if from == "" {
		from = ApprovalPending
	}
	if from == target {
		return worker, nil
	}

	if !sm.CanTransition(from, target) {
		return nil, ErrInvalidApprovalTransition.Clone().WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	options := sm.buildTransitionOptions(opts...)
	if target == ApprovalRejected && options.metadata.Reason == "" {
		return nil, ErrRejectionReasonRequired
	}

	tc := TransitionContext{
		Actor:  actor,
		Worker: worker,
		From:   from,
		To:     target,
		Meta:   options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return nil, err
	}

	record := sm.buildRecord(actor, worker, target, options)
	updated, err := sm.store.UpdateApproval(ctx, record)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = record
	}
	tc.Worker = updated

	if err := sm.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.publish(ctx, updated)
	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventApprovalChanged,
		Actor:      actor,
		UserID:     updated.UserID.String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   sm.transitionMetadata(updated, tc.Meta),
	})

	return updated, nil
}

func (sm *approvalStateMachine) CanTransition(from, to ApprovalStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *approvalStateMachine) buildRecord(actor ActorRef, worker *WorkerProfile, target ApprovalStatus, opts *transitionOptions) *WorkerProfile {
	record := *worker
	now := sm.now()
	record.ApprovalStatus = target
	record.UpdatedAt = &now

	var reviewer *uuid.UUID
	if id, err := uuid.Parse(actor.ID); err == nil {
		reviewer = &id
	}

	switch target {
	case ApprovalApproved:
		record.ApprovedAt = &now
		record.ApprovedBy = reviewer
		record.ApprovalRejectionReason = ""
	case ApprovalRejected:
		record.ApprovedAt = nil
		record.ApprovedBy = reviewer
		record.ApprovalRejectionReason = opts.metadata.Reason
	case ApprovalPending:
		record.ApprovedAt = nil
		record.ApprovedBy = nil
		record.ApprovalRejectionReason = ""
	}
	return &record
}

func (sm *approvalStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *approvalStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *approvalStateMachine) publish(ctx context.Context, worker *WorkerProfile) {
	if sm.publisher == nil {
		return
	}
	err := sm.publisher.Publish(ctx, ApprovalUpdate{
		UserID:          worker.UserID.String(),
		WorkerID:        worker.ID.String(),
		Status:          worker.ApprovalStatus,
		RejectionReason: worker.ApprovalRejectionReason,
	})
	if err != nil {
		sm.logger.Warn("approval publish failed", "worker_id", worker.ID, "error", err)
	}
}

func (sm *approvalStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}
	recordActivity(ctx, sm.activitySink, sm.logger, sm.now, event)
}

func (sm *approvalStateMachine) transitionMetadata(worker *WorkerProfile, meta TransitionMetadata) map[string]any {
	result := map[string]any{
		"worker_id": worker.ID.String(),
	}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}

func workerID(worker *WorkerProfile) string {
	if worker == nil {
		return ""
	}
	return worker.ID.String()
}
