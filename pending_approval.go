package union

import (
	"context"
	"sync"
	"time"
)

// PendingApprovalOption customizes a PendingApprovalView.
type PendingApprovalOption func(*PendingApprovalView)

// WithPendingApprovalDelay overrides the pause before navigating home
// after an approval arrives.
func WithPendingApprovalDelay(delay time.Duration) PendingApprovalOption {
	return func(v *PendingApprovalView) {
		if delay >= 0 {
			v.delay = delay
		}
	}
}

// WithPendingApprovalListener is called with every approval status the
// view shows, including the one loaded on entry.
func WithPendingApprovalListener(fn func(ApprovalState)) PendingApprovalOption {
	return func(v *PendingApprovalView) {
		v.onStatus = fn
	}
}

// PendingApprovalView drives the pending review page: it shows the
// worker's approval status, follows the change feed while the page is
// open and moves to the home route once the profile is approved.
type PendingApprovalView struct {
	state    *AuthState
	delay    time.Duration
	onStatus func(ApprovalState)
	after    func(time.Duration, func()) *time.Timer

	mu          sync.Mutex
	entered     bool
	unsubscribe func()
	stopWatch   func()
	timer       *time.Timer
	scheduled   bool
}

// PendingApprovalView returns a view bound to the state.
func (a *AuthState) PendingApprovalView(opts ...PendingApprovalOption) *PendingApprovalView {
	v := &PendingApprovalView{
		state: a,
		delay: a.redirectDelay,
		after: time.AfterFunc,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Enter loads the current approval status and subscribes to its changes.
// An already approved worker is sent home right away. Every exit path
// that fails after subscribing releases the subscription.
func (v *PendingApprovalView) Enter(ctx context.Context) (ApprovalState, error) {
	session, gen := v.state.sessions.Current()
	if session == nil {
		return ApprovalState{}, ErrNoSession
	}

	v.mu.Lock()
	if v.entered {
		v.mu.Unlock()
		return v.state.approvals.currentFor(gen), nil
	}
	v.entered = true
	v.stopWatch = v.state.Subscribe(v.watch)
	v.mu.Unlock()

	current := v.state.approvals.refreshFor(ctx, gen, session.UserID)
	v.state.evaluate()
	v.notify(current)

	if current.Status == Resolved && current.Value == ApprovalApproved {
		v.Exit()
		v.state.navigate(RouteHome)
		return current, nil
	}

	unsubscribe, err := v.state.approvals.SubscribeApprovalChanges(ctx, session.UserID, v.handle)
	if err != nil {
		v.state.logger.Warn("pending approval view could not subscribe", "user_id", session.UserID, "error", err)
		v.Exit()
		return current, err
	}

	v.mu.Lock()
	if !v.entered {
		v.mu.Unlock()
		unsubscribe()
		return current, nil
	}
	v.unsubscribe = unsubscribe
	v.mu.Unlock()

	return current, nil
}

// Exit cancels a scheduled navigation and releases the subscription. It
// is safe to call more than once.
func (v *PendingApprovalView) Exit() {
	v.mu.Lock()
	unsubscribe := v.unsubscribe
	stopWatch := v.stopWatch
	v.unsubscribe = nil
	v.stopWatch = nil
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.entered = false
	v.scheduled = false
	v.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
}

// handle receives the updates of this view's subscription, which already
// drops repeats of the status the view last saw. The home navigation is
// scheduled from here even when another path put the approval into the
// shared cache first.
func (v *PendingApprovalView) handle(update ApprovalUpdate) {
	session := v.state.sessions.GetCurrentSession()
	if session == nil || session.UserID != update.UserID {
		return
	}

	if !v.state.ApplyApprovalUpdate(update) {
		v.state.evaluate()
	} else {
		recordActivity(context.Background(), v.state.activity, v.state.logger, v.state.now, ActivityEvent{
			EventType: ActivityEventApprovalChanged,
			Actor:     ActorRef{Type: "system"},
			UserID:    update.UserID,
			ToStatus:  update.Status,
		})
	}

	v.notify(ApprovalState{Value: update.Status, RejectionReason: update.RejectionReason, Status: Resolved})

	if update.Status == ApprovalApproved {
		v.scheduleHome()
	}
}

// watch follows decisions while the view is open, covering approvals
// that reach the state outside the feed.
func (v *PendingApprovalView) watch(_ Snapshot, d Decision) {
	if d.State == StateWorkerApproved {
		v.scheduleHome()
	}
}

func (v *PendingApprovalView) scheduleHome() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.entered || v.scheduled {
		return
	}
	v.scheduled = true
	v.timer = v.after(v.delay, func() {
		v.mu.Lock()
		active := v.entered
		v.timer = nil
		v.mu.Unlock()
		if active {
			v.state.navigate(RouteHome)
		}
	})
}

func (v *PendingApprovalView) notify(state ApprovalState) {
	if v.onStatus != nil {
		v.onStatus(state)
	}
}
