package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-union"
)

var _ union.IdentityProvider = (*Provider)(nil)

// Provider talks to a hosted GoTrue auth backend.
type Provider struct {
	config    Config
	client    *http.Client
	validator *TokenValidator
	logger    union.Logger
	now       func() time.Time
}

// Option configures the provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(logger union.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithValidator validates access tokens locally instead of asking the
// backend for the user.
func WithValidator(v *TokenValidator) Option {
	return func(p *Provider) {
		p.validator = v
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates the provider.
func New(cfg Config, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("gotrue: URL is required")
	}
	if strings.TrimSpace(cfg.AnonKey) == "" {
		return nil, fmt.Errorf("gotrue: anon key is required")
	}
	p := &Provider{
		config: cfg,
		client: cfg.client(),
		logger: union.ResolveLogger("gotrue", nil, nil),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         *userResponse `json:"user"`
}

type errorResponse struct {
	Code             int    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func (e errorResponse) text() string {
	code := e.ErrorCode
	if code == "" {
		code = e.Error
	}
	msg := e.Msg
	if msg == "" {
		msg = e.ErrorDescription
	}
	if msg == "" {
		msg = e.Message
	}
	return strings.TrimSpace(code + ": " + msg)
}

// SignUp creates the account. Backends that require email confirmation
// return the user without a session, which yields a nil session.
func (p *Provider) SignUp(ctx context.Context, req union.SignUpRequest) (*union.Session, error) {
	body := map[string]any{
		"email":    req.Email,
		"password": req.Password,
		"data":     req.Metadata(),
	}

	raw, err := p.do(ctx, http.MethodPost, "/signup", "", body)
	if err != nil {
		return nil, err
	}

	var out sessionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, p.decodeError("sign_up", err)
	}
	if out.AccessToken == "" {
		return nil, nil
	}
	return p.toSession(out), nil
}

// SignIn exchanges credentials for a session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*union.Session, error) {
	return p.grant(ctx, "password", map[string]any{
		"email":    email,
		"password": password,
	})
}

// Refresh exchanges the refresh token for a new session.
func (p *Provider) Refresh(ctx context.Context, session *union.Session) (*union.Session, error) {
	if session == nil || session.RefreshToken == "" {
		return nil, union.ErrNoSession.Clone().WithMetadata(map[string]any{
			"provider": "gotrue",
			"reason":   "missing refresh token",
		})
	}
	return p.grant(ctx, "refresh_token", map[string]any{
		"refresh_token": session.RefreshToken,
	})
}

// SignOut ends the session on the backend.
func (p *Provider) SignOut(ctx context.Context, session *union.Session) error {
	if session == nil || session.AccessToken == "" {
		return nil
	}
	_, err := p.do(ctx, http.MethodPost, "/logout", session.AccessToken, nil)
	return err
}

// SessionFromToken resolves an access token, locally when a validator
// is configured and through the user endpoint otherwise.
func (p *Provider) SessionFromToken(ctx context.Context, token string) (*union.Session, error) {
	if p.validator != nil {
		claims, err := p.validator.Validate(token)
		if err != nil {
			return nil, err
		}
		session := &union.Session{
			UserID:      claims.Subject,
			Email:       claims.Email,
			AccessToken: token,
			Metadata:    claims.UserMetadata,
		}
		session.DisplayName, _ = claims.UserMetadata["full_name"].(string)
		if claims.ExpiresAt != nil {
			exp := claims.ExpiresAt.Time
			session.ExpiresAt = &exp
		}
		return session, nil
	}

	raw, err := p.do(ctx, http.MethodGet, "/user", token, nil)
	if err != nil {
		return nil, err
	}
	var user userResponse
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, p.decodeError("user", err)
	}
	return p.toSession(sessionResponse{AccessToken: token, User: &user}), nil
}

func (p *Provider) grant(ctx context.Context, grantType string, body map[string]any) (*union.Session, error) {
	raw, err := p.do(ctx, http.MethodPost, "/token?grant_type="+grantType, "", body)
	if err != nil {
		return nil, err
	}
	var out sessionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, p.decodeError(grantType, err)
	}
	if out.AccessToken == "" {
		return nil, union.ErrAuthProvider.Clone().WithMetadata(map[string]any{
			"provider": "gotrue",
			"grant":    grantType,
			"reason":   "response without access token",
		})
	}
	return p.toSession(out), nil
}

func (p *Provider) do(ctx context.Context, method, path, bearer string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "gotrue: encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.config.authURL(path), reader)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "gotrue: build request")
	}
	req.Header.Set("apikey", p.config.AnonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := p.client.Do(req)
	if err != nil {
		p.logger.Error("gotrue request failed", "path", path, "error", err)
		return nil, union.AsAuthError(goerrors.Wrap(err, goerrors.CategoryExternal, "gotrue: request failed"), path)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, union.AsAuthError(goerrors.Wrap(err, goerrors.CategoryExternal, "gotrue: read response"), path)
	}

	if res.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		text := apiErr.text()
		if text == "" || text == ":" {
			text = res.Status
		}
		p.logger.Debug("gotrue request rejected", "path", path, "status", res.StatusCode, "error", text)
		return nil, p.apiError(res.StatusCode, path, text)
	}
	return raw, nil
}

func (p *Provider) apiError(status int, path, text string) error {
	if status == http.StatusUnauthorized && (path == "/user" || path == "/logout") {
		clone := union.ErrNoSession.Clone()
		clone.Source = fmt.Errorf("gotrue: %s", text)
		return clone.WithMetadata(map[string]any{
			"provider": "gotrue",
			"status":   status,
		})
	}
	source := goerrors.New("gotrue: "+text, goerrors.CategoryExternal).
		WithMetadata(map[string]any{"status": status, "path": path})
	return union.AsAuthError(source, path)
}

func (p *Provider) decodeError(op string, err error) error {
	return union.ErrAuthProvider.Clone().WithMetadata(map[string]any{
		"provider":  "gotrue",
		"operation": op,
		"cause":     err.Error(),
	})
}

func (p *Provider) toSession(res sessionResponse) *union.Session {
	session := &union.Session{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}
	switch {
	case res.ExpiresAt > 0:
		exp := time.Unix(res.ExpiresAt, 0).UTC()
		session.ExpiresAt = &exp
	case res.ExpiresIn > 0:
		exp := p.now().Add(time.Duration(res.ExpiresIn) * time.Second).UTC()
		session.ExpiresAt = &exp
	}
	if res.User != nil {
		session.UserID = res.User.ID
		session.Email = res.User.Email
		session.Metadata = res.User.UserMetadata
		session.DisplayName, _ = res.User.UserMetadata["full_name"].(string)
	}
	return session
}
