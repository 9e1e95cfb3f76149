package union_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-union"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingWorkerFixture(t *testing.T, status union.ApprovalStatus) *authFixture {
	t.Helper()
	f := newAuthFixture(t, union.RoutePendingApproval)
	f.roles.set(workerID, union.RoleWorker)
	f.workers.set(workerID, status, "")
	f.init(t)
	f.signIn(t, workerID)
	return f
}

func TestPendingApprovalViewNavigatesHomeAfterDelay(t *testing.T) {
	f := pendingWorkerFixture(t, union.ApprovalPending)
	require.Equal(t, union.RoutePendingApproval, f.nav.Path())

	var mu sync.Mutex
	var shown []union.ApprovalState
	view := f.state.PendingApprovalView(
		union.WithPendingApprovalDelay(150*time.Millisecond),
		union.WithPendingApprovalListener(func(s union.ApprovalState) {
			mu.Lock()
			shown = append(shown, s)
			mu.Unlock()
		}),
	)
	defer view.Exit()

	current, err := view.Enter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, union.ApprovalPending, current.Value)
	assert.Equal(t, 1, f.feed.count())

	f.feed.emit(union.ApprovalUpdate{UserID: workerID, Status: union.ApprovalApproved})

	assert.Equal(t, union.StateWorkerApproved, f.state.Decision().State)
	assert.Equal(t, union.RoutePendingApproval, f.nav.Path())

	assert.Eventually(t, func() bool {
		return f.nav.Path() == union.RouteHome
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, shown, 2)
	assert.Equal(t, union.ApprovalPending, shown[0].Value)
	assert.Equal(t, union.ApprovalApproved, shown[1].Value)
}

func TestPendingApprovalViewDuplicateUpdatesNavigateOnce(t *testing.T) {
	f := pendingWorkerFixture(t, union.ApprovalPending)
	view := f.state.PendingApprovalView(union.WithPendingApprovalDelay(10 * time.Millisecond))
	defer view.Exit()

	_, err := view.Enter(context.Background())
	require.NoError(t, err)

	approved := union.ApprovalUpdate{UserID: workerID, Status: union.ApprovalApproved}
	f.feed.emit(approved)
	f.feed.emit(approved)

	assert.Eventually(t, func() bool {
		return f.nav.Path() == union.RouteHome
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	homes := 0
	for _, p := range f.nav.History() {
		if p == union.RouteHome {
			homes++
		}
	}
	assert.Equal(t, 1, homes)
}

func TestPendingApprovalViewShowsRejection(t *testing.T) {
	f := pendingWorkerFixture(t, union.ApprovalPending)
	view := f.state.PendingApprovalView(union.WithPendingApprovalDelay(10 * time.Millisecond))
	defer view.Exit()

	_, err := view.Enter(context.Background())
	require.NoError(t, err)

	f.feed.emit(union.ApprovalUpdate{UserID: workerID, Status: union.ApprovalRejected, RejectionReason: "photo unclear"})

	d := f.state.Decision()
	assert.Equal(t, union.StateWorkerRejected, d.State)
	assert.Equal(t, "photo unclear", d.RejectionReason)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, union.RoutePendingApproval, f.nav.Path())
}

func TestPendingApprovalViewExitCancelsNavigation(t *testing.T) {
	f := pendingWorkerFixture(t, union.ApprovalPending)
	view := f.state.PendingApprovalView(union.WithPendingApprovalDelay(100 * time.Millisecond))

	_, err := view.Enter(context.Background())
	require.NoError(t, err)

	f.feed.emit(union.ApprovalUpdate{UserID: workerID, Status: union.ApprovalApproved})
	view.Exit()
	view.Exit()

	assert.Equal(t, 0, f.feed.count())
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, union.RoutePendingApproval, f.nav.Path())
}

func TestPendingApprovalViewAlreadyApproved(t *testing.T) {
	f := newAuthFixture(t, "/profile/worker")
	f.roles.set(workerID, union.RoleWorker)
	f.workers.set(workerID, union.ApprovalPending, "")
	f.init(t)
	f.nav.Navigate("/profile/worker")
	f.signIn(t, workerID)

	f.nav.Navigate(union.RoutePendingApproval)
	f.workers.set(workerID, union.ApprovalApproved, "")

	view := f.state.PendingApprovalView()
	defer view.Exit()

	current, err := view.Enter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, union.ApprovalApproved, current.Value)
	assert.Equal(t, union.RouteHome, f.nav.Path())
	assert.Equal(t, 0, f.feed.count())
}

func TestPendingApprovalViewSubscribeFailure(t *testing.T) {
	f := pendingWorkerFixture(t, union.ApprovalPending)
	f.feed.err = errors.New("channel closed")

	view := f.state.PendingApprovalView()
	_, err := view.Enter(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, f.feed.count())
	view.Exit()
}

func TestPendingApprovalViewRequiresSession(t *testing.T) {
	f := newAuthFixture(t, union.RoutePendingApproval)
	f.init(t)

	_, err := f.state.PendingApprovalView().Enter(context.Background())
	require.Error(t, err)
	assert.True(t, union.HasTextCode(err, union.TextCodeNoSession))
}

func TestPendingApprovalViewRemountStillNavigatesHome(t *testing.T) {
	f := pendingWorkerFixture(t, union.ApprovalPending)

	first := f.state.PendingApprovalView(union.WithPendingApprovalDelay(50 * time.Millisecond))
	second := f.state.PendingApprovalView(union.WithPendingApprovalDelay(50 * time.Millisecond))
	defer second.Exit()

	_, err := first.Enter(context.Background())
	require.NoError(t, err)
	_, err = second.Enter(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, f.feed.count())

	f.feed.emit(union.ApprovalUpdate{UserID: workerID, Status: union.ApprovalApproved})
	first.Exit()

	assert.Eventually(t, func() bool {
		return f.nav.Path() == union.RouteHome
	}, time.Second, 10*time.Millisecond)
}

func TestPendingApprovalViewApprovalCachedBeforeFeed(t *testing.T) {
	f := pendingWorkerFixture(t, union.ApprovalPending)
	view := f.state.PendingApprovalView(union.WithPendingApprovalDelay(50 * time.Millisecond))
	defer view.Exit()

	_, err := view.Enter(context.Background())
	require.NoError(t, err)

	f.workers.set(workerID, union.ApprovalApproved, "")
	refreshed := f.state.Approvals().Refresh(context.Background())
	require.Equal(t, union.ApprovalApproved, refreshed.Value)

	f.feed.emit(union.ApprovalUpdate{UserID: workerID, Status: union.ApprovalApproved})

	assert.Equal(t, union.StateWorkerApproved, f.state.Decision().State)
	assert.Eventually(t, func() bool {
		return f.nav.Path() == union.RouteHome
	}, time.Second, 10*time.Millisecond)
}

func TestPendingApprovalViewReenterAfterApprovedSubscribes(t *testing.T) {
	f := pendingWorkerFixture(t, union.ApprovalPending)
	f.workers.set(workerID, union.ApprovalApproved, "")

	view := f.state.PendingApprovalView(union.WithPendingApprovalDelay(10 * time.Millisecond))
	defer view.Exit()

	current, err := view.Enter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, union.ApprovalApproved, current.Value)
	assert.Equal(t, union.RouteHome, f.nav.Path())
	assert.Equal(t, 0, f.feed.count())

	f.workers.set(workerID, union.ApprovalRejected, "id expired")
	f.nav.Navigate(union.RoutePendingApproval)

	current, err = view.Enter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, union.ApprovalRejected, current.Value)
	assert.Equal(t, 1, f.feed.count())
}
