package repository

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-union"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Employers reads and writes employer profiles.
type Employers struct {
	db *bun.DB
}

// NewEmployers creates the employer store.
func NewEmployers(db *bun.DB) *Employers {
	return &Employers{db: db}
}

// EmployerByUser returns the employer row of a user.
func (e *Employers) EmployerByUser(ctx context.Context, userID string) (*union.EmployerProfile, error) {
	return e.EmployerByUserTx(ctx, e.db, userID)
}

// EmployerByUserTx is EmployerByUser on the given connection.
func (e *Employers) EmployerByUserTx(ctx context.Context, tx bun.IDB, userID string) (*union.EmployerProfile, error) {
	record := &union.EmployerProfile{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, union.ErrEmployerProfileNotFound.Clone().WithMetadata(map[string]any{
				"user_id": userID,
			})
		}
		return nil, err
	}
	return record, nil
}

// SaveEmployerProfile writes the onboarding columns of an employer.
func (e *Employers) SaveEmployerProfile(ctx context.Context, employer *union.EmployerProfile) (*union.EmployerProfile, error) {
	touch(&employer.UpdatedAt)
	res, err := e.db.NewUpdate().
		Model(employer).
		Column("company_name", "phone", "location_city", "location_state", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, union.ErrEmployerProfileNotFound.Clone().WithMetadata(map[string]any{
			"id": employer.ID.String(),
		})
	}
	return e.EmployerByUser(ctx, employer.UserID.String())
}

// CreateEmployerTx inserts the initial employer row for a new user.
func (e *Employers) CreateEmployerTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, fullName string) (*union.EmployerProfile, error) {
	record := &union.EmployerProfile{
		ID:       uuid.New(),
		UserID:   userID,
		FullName: fullName,
	}
	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (user_id) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}
