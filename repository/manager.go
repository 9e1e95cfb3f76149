package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-union"
	"github.com/uptrace/bun"
)

// Manager exposes all stores
type Manager interface {
	repository.Validator
	repository.TransactionManager
	Roles() *Roles
	Workers() *Workers
	Employers() *Employers
	Catalog() *Catalog
	Profiles() *Profiles
}

var (
	_ union.RoleStore         = (*Roles)(nil)
	_ union.WorkerStore       = (*Workers)(nil)
	_ union.EmployerStore     = (*Employers)(nil)
	_ union.WorkerReviewStore = (*Workers)(nil)
	_ union.ProfileStore      = (*Profiles)(nil)
	_ union.WorkerReviewStore = (*Profiles)(nil)
)

type mngr struct {
	db        *bun.DB
	logger    union.Logger
	roles     *Roles
	workers   *Workers
	employers *Employers
	catalog   *Catalog
}

// ManagerOption customizes the Manager.
type ManagerOption func(*mngr)

// WithLogger sets the logger handed to the stores.
func WithLogger(logger union.Logger) ManagerOption {
	return func(m *mngr) {
		m.logger = logger
	}
}

// NewManager wires every store on the given database.
func NewManager(db *bun.DB, opts ...ManagerOption) Manager {
	m := &mngr{db: db}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.roles = NewRoles(db, WithRolesLogger(m.logger))
	m.workers = NewWorkers(db)
	m.employers = NewEmployers(db)
	m.catalog = NewCatalog(db)
	return m
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}
	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}
	if m.workers == nil {
		return errors.New("repository workers should be initialized")
	}
	if m.employers == nil {
		return errors.New("repository employers should be initialized")
	}
	if m.catalog == nil {
		return errors.New("repository catalog should be initialized")
	}
	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Roles() *Roles {
	return m.roles
}

func (m mngr) Workers() *Workers {
	return m.workers
}

func (m mngr) Employers() *Employers {
	return m.employers
}

func (m mngr) Catalog() *Catalog {
	return m.catalog
}

func (m mngr) Profiles() *Profiles {
	return &Profiles{
		Workers:   m.workers,
		Employers: m.employers,
		Catalog:   m.catalog,
	}
}

// Profiles groups the stores used by onboarding and admin review.
type Profiles struct {
	*Workers
	*Employers
	*Catalog
}
