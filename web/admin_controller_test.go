package web_test

import (
	"net/http"
	"testing"

	"github.com/goliatone/go-union"
	"github.com/goliatone/go-union/realtime"
	"github.com/goliatone/go-union/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type adminFixture struct {
	stores *stubStores
	hub    *realtime.Hub
	ctrl   *web.AdminController
	worker *union.WorkerProfile
}

func newAdminFixture() *adminFixture {
	stores := newStubStores()
	stores.roles[adminID] = union.RoleAdmin
	stores.roles[customerID] = union.RoleCustomer
	stores.roles[workerID] = union.RoleWorker
	worker := stores.addWorker(workerID, union.ApprovalPending)

	hub := realtime.NewHub()
	machine := union.NewApprovalStateMachine(stores, union.WithStateMachinePublisher(hub))
	review := union.NewAdminReview(union.NewRoleResolver(stores, nil), stores,
		union.WithAdminReviewStateMachine(machine),
	)

	ctrl := web.NewAdminController(func(c *web.AdminController) *web.AdminController {
		c.Review = review
		c.Evaluator = newEvaluator(stores, newClock())
		return c
	})

	return &adminFixture{stores: stores, hub: hub, ctrl: ctrl, worker: worker}
}

func adminRequest(path, actorID string) *requestCtx {
	ctx := newRequestCtx(path)
	ctx.LocalsMock[union.SessionLocalsKey] = sessionFor(actorID)
	return ctx
}

func TestAdminListWorkers(t *testing.T) {
	f := newAdminFixture()
	ctx := adminRequest("/admin/workers", adminID)

	var body map[string]any
	ctx.On("JSON", http.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(map[string]any)
	}).Return(nil)

	require.NoError(t, f.ctrl.ListWorkers(ctx))
	workers := body["workers"].([]*union.WorkerProfile)
	require.Len(t, workers, 1)
	assert.Equal(t, f.worker.ID, workers[0].ID)
}

func TestAdminApprovePublishesUpdate(t *testing.T) {
	f := newAdminFixture()

	var updates []union.ApprovalUpdate
	unsubscribe, err := f.hub.Subscribe(t.Context(), workerID, func(u union.ApprovalUpdate) {
		updates = append(updates, u)
	})
	require.NoError(t, err)
	defer unsubscribe()

	ctx := adminRequest("/admin/workers/"+f.worker.ID.String()+"/approve", adminID)
	ctx.ParamsM["id"] = f.worker.ID.String()

	var worker *union.WorkerProfile
	ctx.On("JSON", http.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		worker = args.Get(1).(*union.WorkerProfile)
	}).Return(nil)

	require.NoError(t, f.ctrl.Approve(ctx))
	require.NotNil(t, worker)
	assert.Equal(t, union.ApprovalApproved, worker.ApprovalStatus)
	require.NotNil(t, worker.ApprovedBy)
	assert.Equal(t, adminID, worker.ApprovedBy.String())

	require.Len(t, updates, 1)
	assert.Equal(t, union.ApprovalApproved, updates[0].Status)
}

func TestAdminRejectRequiresReason(t *testing.T) {
	f := newAdminFixture()
	ctx := adminRequest("/admin/workers/x/reject", adminID)
	ctx.ParamsM["id"] = f.worker.ID.String()
	ctx.body = web.RejectRequest{Reason: "   "}

	var resp web.ErrorResponse
	ctx.On("JSON", http.StatusBadRequest, mock.Anything).Run(func(args mock.Arguments) {
		resp = args.Get(1).(web.ErrorResponse)
	}).Return(nil)

	require.NoError(t, f.ctrl.Reject(ctx))
	assert.Equal(t, union.TextCodeRejectionReasonRequired, resp.TextCode)
	assert.Contains(t, resp.Fields, "reason")
}

func TestAdminReject(t *testing.T) {
	f := newAdminFixture()
	ctx := adminRequest("/admin/workers/x/reject", adminID)
	ctx.ParamsM["id"] = f.worker.ID.String()
	ctx.body = web.RejectRequest{Reason: " ID photo unreadable "}

	var worker *union.WorkerProfile
	ctx.On("JSON", http.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		worker = args.Get(1).(*union.WorkerProfile)
	}).Return(nil)

	require.NoError(t, f.ctrl.Reject(ctx))
	assert.Equal(t, union.ApprovalRejected, worker.ApprovalStatus)
	assert.Equal(t, "ID photo unreadable", worker.ApprovalRejectionReason)
}

func TestAdminEndpointsRejectNonAdmins(t *testing.T) {
	f := newAdminFixture()
	ctx := adminRequest("/admin/workers", customerID)

	var resp web.ErrorResponse
	ctx.On("JSON", http.StatusForbidden, mock.Anything).Run(func(args mock.Arguments) {
		resp = args.Get(1).(web.ErrorResponse)
	}).Return(nil)

	require.NoError(t, f.ctrl.ListWorkers(ctx))
	assert.Equal(t, union.TextCodeNotAdmin, resp.TextCode)
}

func TestAdminApproveUnknownWorker(t *testing.T) {
	f := newAdminFixture()
	ctx := adminRequest("/admin/workers/nope/approve", adminID)
	ctx.ParamsM["id"] = "nope"

	ctx.On("JSON", http.StatusNotFound, mock.Anything).Return(nil)

	require.NoError(t, f.ctrl.Approve(ctx))
	ctx.AssertExpectations(t)
}

func TestAdminRequiresSession(t *testing.T) {
	f := newAdminFixture()
	ctx := newRequestCtx("/admin/workers")

	ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Return(nil)

	require.NoError(t, f.ctrl.ListWorkers(ctx))
	ctx.AssertExpectations(t)
}
