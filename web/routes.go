package web

import "github.com/goliatone/go-router"

// RegisterAuthRoutes mounts the auth actions and the navigation endpoint.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.SignIn, controller.SignIn).
		SetName("sign-in.post")

	app.Post(controller.Routes.SignUp, controller.SignUp).
		SetName("sign-up.post")

	app.Post(controller.Routes.SignOut, controller.SignOut).
		SetName("sign-out.post")

	app.Get(controller.Routes.Navigation, controller.Navigation).
		SetName("navigation.get")

	return controller
}

// RegisterAdminRoutes mounts the worker review endpoints behind guard.
func RegisterAdminRoutes[T any](app router.Router[T], guard *Guard, opts ...AdminControllerOption) *AdminController {
	controller := NewAdminController(opts...)

	app.Get(controller.Routes.Workers, guard.Protect(controller.ListWorkers)).
		SetName("admin-workers.get")

	app.Post(controller.Routes.Approve, guard.Protect(controller.Approve)).
		SetName("admin-workers-approve.post")

	app.Post(controller.Routes.Reject, guard.Protect(controller.Reject)).
		SetName("admin-workers-reject.post")

	return controller
}

// RegisterPageGuard guards the member pages served by the UI shell. Each
// path is answered by handler once the navigation policy lets it through.
func RegisterPageGuard[T any](app router.Router[T], guard *Guard, handler router.HandlerFunc, paths ...string) {
	for _, path := range paths {
		app.Get(path, guard.Protect(handler)).
			SetName("page:" + path)
	}
}

// RegisterOnboardingRoutes mounts the profile forms and the catalog
// lookups they use.
func RegisterOnboardingRoutes[T any](app router.Router[T], opts ...OnboardingControllerOption) *OnboardingController {
	controller := NewOnboardingController(opts...)

	app.Get(controller.Routes.Cities, controller.ListCities).
		SetName("catalog-cities.get")

	app.Get(controller.Routes.Skills, controller.ListSkills).
		SetName("catalog-skills.get")

	app.Get(controller.Routes.Worker, controller.ShowWorker).
		SetName("onboarding-worker.get")

	app.Post(controller.Routes.Worker, controller.SaveWorker).
		SetName("onboarding-worker.post")

	app.Get(controller.Routes.Employer, controller.ShowEmployer).
		SetName("onboarding-employer.get")

	app.Post(controller.Routes.Employer, controller.SaveEmployer).
		SetName("onboarding-employer.post")

	return controller
}
