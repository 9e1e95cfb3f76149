package main

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goliatone/go-union"
)

// watch signs in (or reuses the stored session) and follows the
// navigation decisions of that account until interrupted. Entering the
// pending approval page subscribes to approval changes, so an admin
// approval made elsewhere moves the account home after the configured
// delay.
func watch(ctx context.Context, app *App, email, password, sessionFile string) error {
	if err := WithPersistence(ctx, app, false); err != nil {
		return err
	}
	if err := WithRealtime(ctx, app); err != nil {
		return err
	}
	if err := WithProvider(ctx, app); err != nil {
		return err
	}

	logger := app.GetLogger("watch")
	nav := newConsoleNavigator(logger, union.RouteHome)

	state := union.NewAuthState(union.AuthStateConfig{
		Provider:  app.provider,
		Roles:     app.repo.Roles(),
		Workers:   app.repo.Workers(),
		Employers: app.repo.Employers(),
		Feed:      app.hub,
		Storage:   &fileSessionStorage{path: sessionFile},
		Navigator: nav,
	},
		union.WithLogger(logger),
		union.WithQueryTimeout(app.config.GetQueryTimeout()),
		union.WithApprovalRedirectDelay(app.config.GetApprovalRedirectDelay()),
		union.WithActivitySink(app.activity),
	)

	dispose := state.Subscribe(func(_ union.Snapshot, d union.Decision) {
		logger.Info("decision", "state", d.State, "role", d.Role, "route", d.Route)
	})
	defer dispose()

	if err := state.Init(ctx); err != nil {
		return err
	}
	defer state.Teardown()

	if state.CurrentSession() == nil {
		if email == "" {
			return errors.New("no stored session, pass -email and -password")
		}
		if _, err := state.SignIn(ctx, union.SignInInput{Email: email, Password: password}); err != nil {
			return err
		}
	}

	view := state.PendingApprovalView(
		union.WithPendingApprovalListener(func(s union.ApprovalState) {
			logger.Info("approval status", "status", s.Value, "reason", s.RejectionReason)
		}),
	)
	defer view.Exit()

	onPath := func(path string) {
		if path != union.RoutePendingApproval {
			view.Exit()
			return
		}
		if _, err := view.Enter(ctx); err != nil {
			logger.Warn("pending approval view failed", "error", err)
		}
	}
	onPath(union.NormalizePath(nav.CurrentPath()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-nav.moves:
			onPath(path)
		}
	}
}

// consoleNavigator records the current path and reports moves on a
// channel so views are entered outside the state's evaluation.
type consoleNavigator struct {
	mu     sync.Mutex
	path   string
	moves  chan string
	logger union.Logger
}

func newConsoleNavigator(logger union.Logger, start string) *consoleNavigator {
	return &consoleNavigator{
		path:   start,
		moves:  make(chan string, 16),
		logger: logger,
	}
}

func (n *consoleNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *consoleNavigator) Navigate(path string) {
	n.mu.Lock()
	from := n.path
	n.path = path
	n.mu.Unlock()

	n.logger.Info("navigate", "from", from, "to", path)
	select {
	case n.moves <- path:
	default:
		n.logger.Warn("navigation backlog full, dropping move", "to", path)
	}
}

// fileSessionStorage keeps the session of the watch command between runs.
type fileSessionStorage struct {
	path string
}

type storedSession struct {
	UserID       string         `json:"user_id"`
	Email        string         `json:"email,omitempty"`
	DisplayName  string         `json:"display_name,omitempty"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (f *fileSessionStorage) Load(_ context.Context) (*union.Session, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	return &union.Session{
		UserID:       stored.UserID,
		Email:        stored.Email,
		DisplayName:  stored.DisplayName,
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		ExpiresAt:    stored.ExpiresAt,
		Metadata:     stored.Metadata,
	}, nil
}

func (f *fileSessionStorage) Save(_ context.Context, session *union.Session) error {
	if session == nil {
		return f.Clear(context.Background())
	}
	raw, err := json.Marshal(storedSession{
		UserID:       session.UserID,
		Email:        session.Email,
		DisplayName:  session.DisplayName,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt,
		Metadata:     session.Metadata,
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(f.path, raw, 0o600)
}

func (f *fileSessionStorage) Clear(_ context.Context) error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".union-session.json"
	}
	return filepath.Join(dir, "union", "session.json")
}
