package local

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-union"
	unionrepo "github.com/goliatone/go-union/repository"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var _ union.IdentityProvider = (*Provider)(nil)

// Provider is a self hosted identity provider. Sign up provisions the
// role and profile rows in the same transaction as the account.
type Provider struct {
	db      *bun.DB
	stores  unionrepo.Manager
	users   repository.Repository[*User]
	tokens  *TokenService
	cost    int
	useHash bool
	logger  union.Logger
	now     func() time.Time
	issuer  string
	access  time.Duration
	refresh time.Duration
	signKey []byte
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

// WithPasswordCost sets the bcrypt cost.
func WithPasswordCost(cost int) Option {
	return func(p *Provider) {
		p.cost = cost
	}
}

// WithHashidUserIDs derives user ids from the email address.
func WithHashidUserIDs(enabled bool) Option {
	return func(p *Provider) {
		p.useHash = enabled
	}
}

// WithTokenTTL sets the access and refresh token lifetimes.
func WithTokenTTL(access, refresh time.Duration) Option {
	return func(p *Provider) {
		p.access = access
		p.refresh = refresh
	}
}

// WithIssuer sets the token issuer.
func WithIssuer(issuer string) Option {
	return func(p *Provider) {
		p.issuer = issuer
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

// New creates a local provider on db signing tokens with signingKey.
func New(db *bun.DB, signingKey []byte, opts ...Option) *Provider {
	p := &Provider{
		db:      db,
		stores:  unionrepo.NewManager(db),
		users:   newUsersRepository(db),
		cost:    DefaultPasswordCost,
		logger:  union.ResolveLogger("local", nil, nil),
		now:     time.Now,
		issuer:  "union",
		signKey: signingKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.tokens = NewTokenService(p.signKey, p.issuer, p.access, p.refresh, p.now)
	return p
}

func newUsersRepository(db *bun.DB) repository.Repository[*User] {
	return repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})
}

// SignUp creates the account and provisions the requested role.
func (p *Provider) SignUp(ctx context.Context, req union.SignUpRequest) (*union.Session, error) {
	email := normalizeEmail(req.Email)
	if _, err := p.userByEmail(ctx, p.db, email); err == nil {
		return nil, union.ErrAccountExists.Clone().WithMetadata(map[string]any{"email": email})
	} else if !goerrors.IsNotFound(err) {
		return nil, err
	}

	hash, err := HashPassword(req.Password, p.cost)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if !role.CanSignUpAs() {
		role = union.RoleCustomer
	}

	now := p.now().UTC()
	user := &User{
		ID:              uuid.New(),
		Email:           email,
		PasswordHash:    hash,
		FullName:        strings.TrimSpace(req.DisplayName),
		RawUserMetaData: req.Metadata(),
		LastSignInAt:    &now,
	}
	if p.useHash {
		if id, err := hashid.NewUUID(email); err == nil {
			user.ID = id
		}
	}

	err = p.stores.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if user, err = p.users.CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}
		return p.provisionTx(ctx, tx, user, role)
	})
	if err != nil {
		p.logger.Error("sign up failed", "email", email, "error", err)
		return nil, err
	}

	p.logger.Info("user registered", "user_id", user.ID, "role", role)
	return p.session(user)
}

func (p *Provider) provisionTx(ctx context.Context, tx bun.IDB, user *User, role union.Role) error {
	if err := p.stores.Roles().AssignTx(ctx, tx, user.ID, role); err != nil {
		return err
	}
	if role.IsWorker() {
		if _, err := p.stores.Workers().CreateWorkerTx(ctx, tx, user.ID, user.FullName); err != nil {
			return err
		}
	}
	if role.IsEmployer() {
		if _, err := p.stores.Employers().CreateEmployerTx(ctx, tx, user.ID, user.FullName); err != nil {
			return err
		}
	}
	return nil
}

// SignIn checks the password and opens a session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*union.Session, error) {
	email = normalizeEmail(email)
	user, err := p.userByEmail(ctx, p.db, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			_ = ComparePasswordAndHash(password, string(dummyHash))
			return nil, union.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		p.logger.Warn("sign in rejected", "user_id", user.ID)
		return nil, union.ErrInvalidCredentials
	}

	now := p.now().UTC()
	user.LastSignInAt = &now
	if _, err := p.db.NewUpdate().
		Model(user).
		Column("last_sign_in_at").
		WherePK().
		Exec(ctx); err != nil {
		p.logger.Warn("failed to track sign in", "user_id", user.ID, "error", err)
	}

	return p.session(user)
}

// SignOut revokes every token issued to the user so far.
func (p *Provider) SignOut(ctx context.Context, session *union.Session) error {
	if session == nil {
		return nil
	}
	claims, err := p.tokens.Parse(session.AccessToken, KindAccess)
	if err != nil {
		if session.RefreshToken == "" {
			return err
		}
		if claims, err = p.tokens.Parse(session.RefreshToken, KindRefresh); err != nil {
			return err
		}
	}

	now := p.now().UTC()
	_, err = p.db.NewUpdate().
		Model((*User)(nil)).
		Set("signed_out_at = ?", now).
		Where("id = ?", claims.Subject).
		Exec(ctx)
	return err
}

// Refresh exchanges the refresh token for a new session.
func (p *Provider) Refresh(ctx context.Context, session *union.Session) (*union.Session, error) {
	if session == nil || session.RefreshToken == "" {
		return nil, noSession("missing refresh token", nil)
	}
	claims, err := p.tokens.Parse(session.RefreshToken, KindRefresh)
	if err != nil {
		return nil, err
	}
	user, err := p.activeUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	return p.session(user)
}

// SessionFromToken resolves an access token into a session.
func (p *Provider) SessionFromToken(ctx context.Context, token string) (*union.Session, error) {
	claims, err := p.tokens.Parse(token, KindAccess)
	if err != nil {
		return nil, err
	}
	user, err := p.activeUser(ctx, claims)
	if err != nil {
		return nil, err
	}

	session := p.toSession(user)
	session.AccessToken = token
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		session.ExpiresAt = &exp
	}
	return session, nil
}

func (p *Provider) activeUser(ctx context.Context, claims *Claims) (*User, error) {
	user := &User{}
	err := p.db.NewSelect().
		Model(user).
		Where("?TableAlias.id = ?", claims.Subject).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, noSession("unknown user", nil)
		}
		return nil, err
	}
	if user.revoked(claims.Issued) {
		return nil, noSession("signed out", nil)
	}
	return user, nil
}

func (p *Provider) userByEmail(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	user := &User{}
	err := tx.NewSelect().
		Model(user).
		Where("lower(?TableAlias.email) = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, goerrors.New("user not found", goerrors.CategoryNotFound).
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}
	return user, nil
}

func (p *Provider) session(user *User) (*union.Session, error) {
	access, refresh, expires, err := p.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	session := p.toSession(user)
	session.AccessToken = access
	session.RefreshToken = refresh
	session.ExpiresAt = &expires
	return session, nil
}

func (p *Provider) toSession(user *User) *union.Session {
	return &union.Session{
		UserID:      user.ID.String(),
		Email:       user.Email,
		DisplayName: user.FullName,
		Metadata:    user.RawUserMetaData,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
