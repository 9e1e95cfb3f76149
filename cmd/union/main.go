package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-union"
	"github.com/goliatone/go-union/activitymap"
	"github.com/goliatone/go-union/config"
	"github.com/goliatone/go-union/provider/gotrue"
	"github.com/goliatone/go-union/provider/local"
	"github.com/goliatone/go-union/realtime"
	"github.com/goliatone/go-union/repository"
	"github.com/goliatone/go-union/web"
	"github.com/joho/godotenv"
)

const usage = `usage: union [serve|migrate|watch] [flags]

  serve    run the HTTP server (default)
  migrate  apply database migrations and exit
  watch    sign in and follow the navigation of one account
`

// App holds the long lived dependencies shared by the commands.
type App struct {
	config   *config.Config
	logger   *glog.BaseLogger
	db       *database
	repo     repository.Manager
	hub      *realtime.Hub
	provider union.IdentityProvider
	activity union.ActivitySink
	srv      router.Server[*fiber.App]
	closers  []func()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	configPath := flags.String("config", "config.yaml", "path to the YAML config file")
	email := flags.String("email", "", "account email (watch)")
	password := flags.String("password", os.Getenv("UNION_WATCH_PASSWORD"), "account password (watch)")
	sessionFile := flags.String("session-file", defaultSessionFile(), "where watch keeps the session")
	_ = flags.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	level := glog.Info
	switch strings.ToLower(strings.TrimSpace(cfg.GetLogLevel())) {
	case "trace":
		level = glog.Trace
	case "debug":
		level = glog.Debug
	case "warn", "warning":
		level = glog.Warn
	case "error":
		level = glog.Error
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("union"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	app := &App{
		config: cfg,
		logger: lgr,
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		fmt.Println("============")
		fmt.Println(print.MaybeHighlightJSON(cfg))
		fmt.Println("============")
		err = serve(ctx, app)
	case "migrate":
		err = WithPersistence(ctx, app, true)
	case "watch":
		err = watch(ctx, app, *email, *password, *sessionFile)
	default:
		flags.Usage()
		os.Exit(2)
	}

	if err != nil {
		app.GetLogger("main").Error("command failed", "command", command, "error", err)
		app.Close()
		os.Exit(1)
	}
}

func serve(ctx context.Context, app *App) error {
	if err := WithPersistence(ctx, app, app.config.Database.AutoMigrate); err != nil {
		return err
	}

	if err := WithRealtime(ctx, app); err != nil {
		return err
	}

	if err := WithProvider(ctx, app); err != nil {
		return err
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		return err
	}

	go func() {
		if err := app.srv.Serve(app.config.GetServerAddr()); err != nil {
			app.GetLogger("http").Error("server stopped", "error", err)
		}
	}()

	<-ctx.Done()

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.srv.Shutdown(shutdown)
}

// WithPersistence opens the database and optionally applies migrations.
func WithPersistence(ctx context.Context, app *App, migrate bool) error {
	db, err := openDatabase(ctx, app.config, app.GetLogger("persistence"))
	if err != nil {
		return err
	}
	app.db = db
	app.onClose(db.Close)

	if migrate {
		if err := repository.Migrate(db.sql, app.config.GetDialect(), app.GetLogger("migrations")); err != nil {
			return err
		}
	}

	app.repo = repository.NewManager(db.bun, repository.WithLogger(app.GetLogger("repository")))
	return app.repo.Validate()
}

// WithRealtime starts the approval change feed. On Postgres the feed is
// backed by LISTEN/NOTIFY; otherwise only changes made by this process
// are delivered.
func WithRealtime(ctx context.Context, app *App) error {
	app.hub = realtime.NewHub(realtime.WithHubLogger(app.GetLogger("realtime:hub")))
	app.activity = activitymap.LogSink(app.GetLogger("activity"))

	if app.db.pool == nil {
		app.GetLogger("realtime").Warn("approval listener disabled", "dialect", app.config.GetDialect())
		return nil
	}

	listener := realtime.NewListener(app.config.GetDSN(), app.hub,
		realtime.WithListenerLogger(app.GetLogger("realtime:listener")),
		realtime.WithDialer(app.db.dedicatedConn),
	)

	go func() {
		if err := listener.Run(ctx); err != nil {
			app.GetLogger("realtime").Error("approval listener stopped", "error", err)
		}
	}()

	return nil
}

// WithProvider builds the identity provider selected in the config.
func WithProvider(_ context.Context, app *App) error {
	cfg := app.config

	switch cfg.GetProvider() {
	case config.ProviderGoTrue:
		gcfg := gotrue.Config{
			URL:       cfg.Auth.GoTrueURL,
			AnonKey:   cfg.Auth.GoTrueAnonKey,
			JWTSecret: cfg.Auth.JWTSecret,
			JWKSURL:   cfg.Auth.JWKSURL,
			Timeout:   cfg.GetQueryTimeout(),
		}

		validator, err := gotrue.NewTokenValidator(gcfg)
		if err != nil {
			return err
		}
		app.onClose(validator.Close)

		provider, err := gotrue.New(gcfg,
			gotrue.WithLogger(app.GetLogger("auth:gotrue")),
			gotrue.WithValidator(validator),
		)
		if err != nil {
			return err
		}
		app.provider = provider
	default:
		app.provider = local.New(app.db.bun, []byte(cfg.GetSigningKey()),
			local.WithLogger(app.GetLogger("auth:local")),
			local.WithPasswordCost(cfg.Auth.PasswordCost),
			local.WithHashidUserIDs(cfg.Auth.HashidUserIDs),
			local.WithTokenTTL(cfg.GetTokenExpiration(), cfg.Auth.RefreshTokenTTL),
			local.WithIssuer(cfg.Auth.Issuer),
		)
	}

	return nil
}

// WithHTTPServer mounts the auth, onboarding and review endpoints and the
// guarded page routes.
func WithHTTPServer(ctx context.Context, app *App) error {
	cfg := app.config
	repo := app.repo

	evaluator := web.NewEvaluator(repo.Roles(), repo.Workers(), repo.Employers(),
		web.WithEvaluatorLogger(app.GetLogger("web:evaluator")),
		web.WithCacheTTL(cfg.Navigation.CacheTTL),
		web.WithQueryTimeout(cfg.GetQueryTimeout()),
	)
	unsubscribe, err := evaluator.Watch(ctx, app.hub)
	if err != nil {
		return err
	}
	app.onClose(unsubscribe)

	machine := union.NewApprovalStateMachine(repo.Workers(),
		union.WithStateMachinePublisher(app.hub),
		union.WithStateMachineLogger(app.GetLogger("review")),
		union.WithStateMachineActivitySink(app.activity),
	)

	roles := union.NewRoleResolver(repo.Roles(), nil,
		union.WithRoleQueryTimeout(cfg.GetQueryTimeout()),
	)
	review := union.NewAdminReview(roles, repo.Workers(),
		union.WithAdminReviewLogger(app.GetLogger("review")),
		union.WithAdminReviewStateMachine(machine),
	)

	onboarding := union.NewOnboarding(repo.Profiles(),
		union.WithOnboardingLogger(app.GetLogger("onboarding")),
		union.WithProvisioningPolicy(cfg.GetProvisioningPolicy()),
		union.WithOnboardingStateMachine(machine),
	)

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:       "union",
			UnescapePath:  true,
			StrictRouting: false,
		}))
	})

	r := srv.Router()

	csrfKey := cfg.GetCSRFKey()
	if len(csrfKey) == 0 {
		csrfKey = make([]byte, 32)
		if _, err := rand.Read(csrfKey); err != nil {
			return err
		}
		app.GetLogger("web").Warn("no CSRF key configured, tokens will not survive a restart")
	}
	csrf := web.NewCSRF(csrfKey, web.WithCSRFCookieName(cfg.GetCookieName()))
	r.Use(csrf.Middleware())
	r.Get("/api/csrf", csrf.TokenHandler).SetName("csrf.get")
	guard := web.NewGuard(app.provider, evaluator,
		web.WithGuardLogger(app.GetLogger("web:guard")),
		web.WithGuardCookieName(cfg.GetCookieName()),
	)

	web.RegisterAuthRoutes(r, func(c *web.AuthController) *web.AuthController {
		c.Logger = app.GetLogger("web:auth")
		c.Provider = app.provider
		c.Evaluator = evaluator
		c.Activity = app.activity
		c.Cookie.Name = cfg.GetCookieName()
		c.Cookie.Secure = cfg.Server.CookieSecure
		c.Cookie.SameSite = cfg.Server.CookieSameSite
		c.Cookie.Duration = cfg.GetTokenExpiration()
		return c
	})

	web.RegisterOnboardingRoutes(r, func(c *web.OnboardingController) *web.OnboardingController {
		c.Logger = app.GetLogger("web:onboarding")
		c.Provider = app.provider
		c.Onboarding = onboarding
		c.Catalog = repo.Catalog()
		c.Evaluator = evaluator
		c.CookieName = cfg.GetCookieName()
		return c
	})

	web.RegisterAdminRoutes(r, guard, func(c *web.AdminController) *web.AdminController {
		c.Logger = app.GetLogger("web:admin")
		c.Review = review
		c.Evaluator = evaluator
		return c
	})

	web.RegisterPageGuard(r, guard, pageHandler(cfg.GetApprovalRedirectDelay()),
		union.RouteHome,
		union.RouteProviders,
		union.RouteProvider+":id",
		union.RouteAuth,
		union.RouteProfile,
		union.RouteWorkerProfile,
		union.RouteEmployerProfile,
		union.RouteWorkerOnboarding,
		union.RouteEmployerOnboarding,
		union.RoutePendingApproval,
		union.RouteAdmin,
	)

	app.srv = srv
	return nil
}

// pageHandler answers a page request that passed the guard with the
// decision the UI shell renders from.
func pageHandler(approvalDelay time.Duration) router.HandlerFunc {
	return func(ctx router.Context) error {
		decision, _ := union.DecisionFromRouter(ctx)
		return ctx.JSON(http.StatusOK, map[string]any{
			"path":                    ctx.Path(),
			"decision":                decision,
			"approval_redirect_delay": approvalDelay.String(),
		})
	}
}
