package web_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-union"
	"github.com/goliatone/go-union/web"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newOnboardingController(stores *stubStores, provider *stubProvider) *web.OnboardingController {
	onboarding := union.NewOnboarding(stores,
		union.WithProvisioningPolicy(union.ProvisioningPolicy{
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			MaxElapsedTime:  5 * time.Millisecond,
		}),
	)
	return web.NewOnboardingController(func(c *web.OnboardingController) *web.OnboardingController {
		c.Provider = provider
		c.Onboarding = onboarding
		c.Catalog = stores
		c.Evaluator = newEvaluator(stores, newClock())
		c.CookieName = "sid"
		return c
	})
}

func signedIn(userID string) *stubProvider {
	s := sessionFor(userID)
	return &stubProvider{sessions: map[string]*union.Session{s.AccessToken: s}}
}

func TestSaveWorkerResubmitsRejectedProfile(t *testing.T) {
	stores := newStubStores()
	stores.roles[workerID] = union.RoleWorker
	stores.addWorker(workerID, union.ApprovalRejected).ApprovalRejectionReason = "photo unclear"
	ctrl := newOnboardingController(stores, signedIn(workerID))

	skill := uuid.New()
	ctx := newRequestCtx("/api/onboarding/worker")
	ctx.CookiesM["sid"] = "token-" + workerID
	ctx.body = union.WorkerOnboarding{
		Phone:                "98765 43210",
		YearsOfExperience:    4,
		CustomCity:           "Pune, Maharashtra",
		PreferredPaymentMode: union.PaymentDaily,
		SkillIDs:             []string{skill.String()},
	}

	var resp web.OnboardingResponse
	ctx.On("JSON", http.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		resp = args.Get(1).(web.OnboardingResponse)
	}).Return(nil)

	require.NoError(t, ctrl.SaveWorker(ctx))
	assert.Equal(t, union.RoutePendingApproval, resp.Route)

	worker := resp.Profile.(*union.WorkerProfile)
	assert.Equal(t, union.ApprovalPending, worker.ApprovalStatus)
	assert.Equal(t, "Pune", worker.LocationCity)
	assert.Equal(t, "Maharashtra", worker.LocationState)
	assert.Equal(t, []uuid.UUID{skill}, stores.skills)
	require.Len(t, stores.cities, 1)
}

func TestSaveWorkerValidation(t *testing.T) {
	stores := newStubStores()
	stores.addWorker(workerID, union.ApprovalPending)
	ctrl := newOnboardingController(stores, signedIn(workerID))

	ctx := newRequestCtx("/api/onboarding/worker")
	ctx.CookiesM["sid"] = "token-" + workerID
	ctx.body = union.WorkerOnboarding{Phone: "12", PreferredPaymentMode: "weekly"}

	var resp web.ErrorResponse
	ctx.On("JSON", http.StatusBadRequest, mock.Anything).Run(func(args mock.Arguments) {
		resp = args.Get(1).(web.ErrorResponse)
	}).Return(nil)

	require.NoError(t, ctrl.SaveWorker(ctx))
	assert.Equal(t, union.TextCodeInvalidOnboarding, resp.TextCode)
	assert.Contains(t, resp.Fields, "phone")
	assert.Contains(t, resp.Fields, "skill_ids")
	assert.Contains(t, resp.Fields, "preferred_payment_mode")
}

func TestSaveEmployerCompletesProfile(t *testing.T) {
	stores := newStubStores()
	stores.roles[employerID] = union.RoleEmployer
	stores.employers[employerID] = &union.EmployerProfile{ID: uuid.New(), UserID: uuid.MustParse(employerID), FullName: "Asha Patil"}
	ctrl := newOnboardingController(stores, signedIn(employerID))

	nashik := &union.City{ID: uuid.New(), Name: "Nashik", State: "Maharashtra"}
	stores.cities = append(stores.cities, nashik)

	ctx := newRequestCtx("/api/onboarding/employer")
	ctx.CookiesM["sid"] = "token-" + employerID
	ctx.body = union.EmployerOnboarding{
		CompanyName: " Patil Builders ",
		Phone:       "+91 98765 43210",
		CityID:      nashik.ID.String(),
	}

	var resp web.OnboardingResponse
	ctx.On("JSON", http.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		resp = args.Get(1).(web.OnboardingResponse)
	}).Return(nil)

	require.NoError(t, ctrl.SaveEmployer(ctx))
	assert.Equal(t, union.RouteEmployerProfile, resp.Route)
	assert.Equal(t, "Patil Builders", stores.employers[employerID].CompanyName)
	assert.Equal(t, "Nashik", stores.employers[employerID].LocationCity)
	assert.Equal(t, "Maharashtra", stores.employers[employerID].LocationState)
	assert.Len(t, stores.cities, 1)
}

func TestSaveEmployerCustomCity(t *testing.T) {
	stores := newStubStores()
	stores.roles[employerID] = union.RoleEmployer
	stores.employers[employerID] = &union.EmployerProfile{ID: uuid.New(), UserID: uuid.MustParse(employerID), FullName: "Asha Patil"}
	ctrl := newOnboardingController(stores, signedIn(employerID))

	ctx := newRequestCtx("/api/onboarding/employer")
	ctx.CookiesM["sid"] = "token-" + employerID
	ctx.body = union.EmployerOnboarding{
		Phone:      "+91 98765 43210",
		CustomCity: "Kolhapur, Maharashtra",
	}
	ctx.On("JSON", http.StatusOK, mock.Anything).Return(nil)

	require.NoError(t, ctrl.SaveEmployer(ctx))
	require.Len(t, stores.cities, 1)
	assert.Equal(t, "Kolhapur", stores.cities[0].Name)
	assert.Equal(t, "Kolhapur", stores.employers[employerID].LocationCity)
	assert.Equal(t, "Maharashtra", stores.employers[employerID].LocationState)
}

func TestSaveEmployerRequiresCity(t *testing.T) {
	stores := newStubStores()
	stores.employers[employerID] = &union.EmployerProfile{ID: uuid.New(), UserID: uuid.MustParse(employerID), FullName: "Asha Patil"}
	ctrl := newOnboardingController(stores, signedIn(employerID))

	ctx := newRequestCtx("/api/onboarding/employer")
	ctx.CookiesM["sid"] = "token-" + employerID
	ctx.body = union.EmployerOnboarding{Phone: "+91 98765 43210"}

	var resp web.ErrorResponse
	ctx.On("JSON", http.StatusBadRequest, mock.Anything).Run(func(args mock.Arguments) {
		resp = args.Get(1).(web.ErrorResponse)
	}).Return(nil)

	require.NoError(t, ctrl.SaveEmployer(ctx))
	assert.Equal(t, union.TextCodeInvalidOnboarding, resp.TextCode)
	assert.Contains(t, resp.Fields, "city_id")
}

func TestShowWorkerNotProvisioned(t *testing.T) {
	ctrl := newOnboardingController(newStubStores(), signedIn(workerID))

	ctx := newRequestCtx("/api/onboarding/worker")
	ctx.CookiesM["sid"] = "token-" + workerID

	var resp web.ErrorResponse
	ctx.On("JSON", http.StatusConflict, mock.Anything).Run(func(args mock.Arguments) {
		resp = args.Get(1).(web.ErrorResponse)
	}).Return(nil)

	require.NoError(t, ctrl.ShowWorker(ctx))
	assert.Equal(t, union.TextCodeProfileNotProvisioned, resp.TextCode)
}

func TestOnboardingRequiresSession(t *testing.T) {
	ctrl := newOnboardingController(newStubStores(), &stubProvider{})

	ctx := newRequestCtx("/api/onboarding/employer")
	ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Return(nil)

	require.NoError(t, ctrl.ShowEmployer(ctx))
	ctx.AssertExpectations(t)
}

func TestCatalogEndpoints(t *testing.T) {
	stores := newStubStores()
	stores.cities = []*union.City{{ID: uuid.New(), Name: "Mumbai", State: "Maharashtra", IsMetro: true}}
	ctrl := newOnboardingController(stores, &stubProvider{})

	ctx := newRequestCtx("/api/catalog/cities")
	var cities map[string]any
	ctx.On("JSON", http.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		cities = args.Get(1).(map[string]any)
	}).Return(nil)
	require.NoError(t, ctrl.ListCities(ctx))
	assert.Len(t, cities["cities"], 1)

	ctx = newRequestCtx("/api/catalog/skills")
	var skills map[string]any
	ctx.On("JSON", http.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		skills = args.Get(1).(map[string]any)
	}).Return(nil)
	require.NoError(t, ctrl.ListSkills(ctx))
	assert.Len(t, skills["skills"], 1)
}
