package local_test

import (
	"context"
	"database/sql"
	"io/fs"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-union"
	"github.com/goliatone/go-union/provider/local"
	"github.com/goliatone/go-union/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/mattn/go-sqlite3"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	migrations, err := union.SQLiteMigrations()
	require.NoError(t, err)
	files, err := fs.Glob(migrations, "*.up.sql")
	require.NoError(t, err)
	sort.Strings(files)
	for _, name := range files {
		body, err := fs.ReadFile(migrations, name)
		require.NoError(t, err)
		_, err = sqldb.Exec(string(body))
		require.NoError(t, err, name)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })
	return db
}

func newProvider(t *testing.T) (*local.Provider, *bun.DB, *clock) {
	t.Helper()
	db := setupDB(t)
	clk := newClock()
	p := local.New(db, []byte("test-signing-key"),
		local.WithPasswordCost(bcrypt.MinCost),
		local.WithClock(clk.Now),
		local.WithTokenTTL(time.Hour, 24*time.Hour),
	)
	return p, db, clk
}

func signUp(t *testing.T, p *local.Provider, email string, role union.Role) *union.Session {
	t.Helper()
	session, err := p.SignUp(context.Background(), union.SignUpRequest{
		Email:       email,
		Password:    "secret123",
		DisplayName: "Ravi Kumar",
		Role:        role,
	})
	require.NoError(t, err)
	require.NotNil(t, session)
	return session
}

func TestSignUpProvisionsWorker(t *testing.T) {
	ctx := context.Background()
	p, db, _ := newProvider(t)
	stores := repository.NewManager(db)

	session := signUp(t, p, " Ravi@Example.com ", union.RoleWorker)
	assert.Equal(t, "ravi@example.com", session.Email)
	assert.Equal(t, "Ravi Kumar", session.DisplayName)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	require.NotNil(t, session.ExpiresAt)
	assert.Equal(t, "worker", session.Metadata["role"])

	role, err := stores.Roles().RoleByUser(ctx, session.UserID)
	require.NoError(t, err)
	assert.Equal(t, union.RoleWorker, role)

	worker, err := stores.Workers().WorkerByUser(ctx, session.UserID)
	require.NoError(t, err)
	assert.Equal(t, union.ApprovalPending, worker.ApprovalStatus)
	assert.Equal(t, "Ravi Kumar", worker.FullName)

	_, err = stores.Employers().EmployerByUser(ctx, session.UserID)
	assert.True(t, union.HasTextCode(err, union.TextCodeEmployerProfileNotFound))
}

func TestSignUpRoles(t *testing.T) {
	ctx := context.Background()
	p, db, _ := newProvider(t)
	stores := repository.NewManager(db)

	both := signUp(t, p, "both@example.com", union.RoleBoth)
	_, err := stores.Workers().WorkerByUser(ctx, both.UserID)
	require.NoError(t, err)
	_, err = stores.Employers().EmployerByUser(ctx, both.UserID)
	require.NoError(t, err)

	admin := signUp(t, p, "sneaky@example.com", union.RoleAdmin)
	role, err := stores.Roles().RoleByUser(ctx, admin.UserID)
	require.NoError(t, err)
	assert.Equal(t, union.RoleCustomer, role)
}

func TestSignUpFailures(t *testing.T) {
	p, _, _ := newProvider(t)
	signUp(t, p, "ravi@example.com", union.RoleWorker)

	_, err := p.SignUp(context.Background(), union.SignUpRequest{Email: "RAVI@example.com", Password: "secret123", Role: union.RoleWorker})
	assert.True(t, union.HasTextCode(err, union.TextCodeAccountExists))

	_, err = p.SignUp(context.Background(), union.SignUpRequest{Email: "new@example.com", Password: "123", Role: union.RoleWorker})
	assert.True(t, union.HasTextCode(err, union.TextCodeWeakPassword))
}

func TestSignUpWithHashidIDs(t *testing.T) {
	db := setupDB(t)
	p := local.New(db, []byte("k"), local.WithPasswordCost(bcrypt.MinCost), local.WithHashidUserIDs(true))

	first := signUp(t, p, "ravi@example.com", union.RoleCustomer)

	other := local.New(setupDB(t), []byte("k"), local.WithPasswordCost(bcrypt.MinCost), local.WithHashidUserIDs(true))
	second := signUp(t, other, "ravi@example.com", union.RoleCustomer)
	assert.Equal(t, first.UserID, second.UserID)
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newProvider(t)
	created := signUp(t, p, "ravi@example.com", union.RoleWorker)

	session, err := p.SignIn(ctx, "RAVI@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, created.UserID, session.UserID)

	_, err = p.SignIn(ctx, "ravi@example.com", "wrong-password")
	assert.True(t, union.HasTextCode(err, union.TextCodeInvalidCredentials))

	_, err = p.SignIn(ctx, "nobody@example.com", "secret123")
	assert.True(t, union.HasTextCode(err, union.TextCodeInvalidCredentials))
}

func TestSessionFromToken(t *testing.T) {
	ctx := context.Background()
	p, _, clk := newProvider(t)
	created := signUp(t, p, "ravi@example.com", union.RoleWorker)

	session, err := p.SessionFromToken(ctx, created.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.UserID, session.UserID)
	assert.Equal(t, created.AccessToken, session.AccessToken)

	_, err = p.SessionFromToken(ctx, created.RefreshToken)
	assert.True(t, union.HasTextCode(err, union.TextCodeNoSession))

	_, err = p.SessionFromToken(ctx, "not-a-token")
	assert.True(t, union.HasTextCode(err, union.TextCodeNoSession))

	clk.Advance(2 * time.Hour)
	_, err = p.SessionFromToken(ctx, created.AccessToken)
	assert.True(t, union.HasTextCode(err, union.TextCodeNoSession))
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	p, _, clk := newProvider(t)
	created := signUp(t, p, "ravi@example.com", union.RoleWorker)

	clk.Advance(2 * time.Hour)
	refreshed, err := p.Refresh(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, created.UserID, refreshed.UserID)
	assert.NotEqual(t, created.AccessToken, refreshed.AccessToken)

	_, err = p.SessionFromToken(ctx, refreshed.AccessToken)
	require.NoError(t, err)

	clk.Advance(48 * time.Hour)
	_, err = p.Refresh(ctx, refreshed)
	assert.True(t, union.HasTextCode(err, union.TextCodeNoSession))

	_, err = p.Refresh(ctx, &union.Session{UserID: created.UserID})
	assert.True(t, union.HasTextCode(err, union.TextCodeNoSession))
}

func TestSignOutRevokesTokens(t *testing.T) {
	ctx := context.Background()
	p, _, clk := newProvider(t)
	created := signUp(t, p, "ravi@example.com", union.RoleWorker)

	clk.Advance(time.Minute)
	require.NoError(t, p.SignOut(ctx, created))

	_, err := p.SessionFromToken(ctx, created.AccessToken)
	assert.True(t, union.HasTextCode(err, union.TextCodeNoSession))
	_, err = p.Refresh(ctx, created)
	assert.True(t, union.HasTextCode(err, union.TextCodeNoSession))

	clk.Advance(time.Minute)
	again, err := p.SignIn(ctx, "ravi@example.com", "secret123")
	require.NoError(t, err)
	_, err = p.SessionFromToken(ctx, again.AccessToken)
	assert.NoError(t, err)

	assert.NoError(t, p.SignOut(ctx, nil))
}

type pathNavigator struct {
	mu   sync.Mutex
	path string
}

func (n *pathNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *pathNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
}

func TestAuthStateOnLocalProvider(t *testing.T) {
	ctx := context.Background()
	p, db, _ := newProvider(t)
	stores := repository.NewManager(db)
	nav := &pathNavigator{path: union.RouteAuth}

	state := union.NewAuthState(union.AuthStateConfig{
		Provider:  p,
		Roles:     stores.Roles(),
		Workers:   stores.Workers(),
		Employers: stores.Employers(),
		Navigator: nav,
	})
	t.Cleanup(state.Teardown)
	require.NoError(t, state.Init(ctx))

	_, err := state.SignUp(ctx, union.SignUpInput{
		Email:       "ravi@example.com",
		Password:    "secret123",
		DisplayName: "Ravi",
		Role:        union.RoleWorker,
	})
	require.NoError(t, err)
	assert.Equal(t, union.RouteWorkerOnboarding, nav.CurrentPath())

	require.NoError(t, state.SignOut(ctx))
	assert.Nil(t, state.CurrentSession())

	nav.Navigate(union.RouteAuth)
	_, err = state.SignIn(ctx, union.SignInInput{Email: "ravi@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, union.RoutePendingApproval, nav.CurrentPath())
	assert.Equal(t, union.RoleWorker, state.CurrentRole().Value)
}
