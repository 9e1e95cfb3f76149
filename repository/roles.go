package repository

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-union"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles reads and writes the role-by-user relation.
type Roles struct {
	repository.Repository[*union.RoleRecord]
	db     *bun.DB
	logger union.Logger
}

// RolesOption customizes the role store.
type RolesOption func(*Roles)

// WithRolesLogger sets the logger used to report users holding more than
// one role row.
func WithRolesLogger(logger union.Logger) RolesOption {
	return func(r *Roles) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRoles creates the role store.
func NewRoles(db *bun.DB, opts ...RolesOption) *Roles {
	repo := repository.NewRepository[*union.RoleRecord](db, repository.ModelHandlers[*union.RoleRecord]{
		NewRecord: func() *union.RoleRecord { return &union.RoleRecord{} },
		GetID: func(r *union.RoleRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *union.RoleRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "user_id"
		},
	})
	r := &Roles{Repository: repo, db: db}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RoleByUser returns the earliest role row of the user. A user with more
// than one row is logged as a warning.
func (r *Roles) RoleByUser(ctx context.Context, userID string) (union.Role, error) {
	return r.RoleByUserTx(ctx, r.db, userID)
}

// RoleByUserTx is RoleByUser on the given connection.
func (r *Roles) RoleByUserTx(ctx context.Context, tx bun.IDB, userID string) (union.Role, error) {
	var records []*union.RoleRecord
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.created_at ASC, ?TableAlias.id ASC").
		Limit(2).
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return "", err
	}
	if len(records) == 0 {
		return "", union.ErrRoleNotFound.Clone().WithMetadata(map[string]any{
			"user_id": userID,
		})
	}
	if len(records) > 1 && r.logger != nil {
		r.logger.Warn("user has more than one role, using the earliest",
			"user_id", userID, "role", records[0].Role, "other_role", records[1].Role)
	}
	return records[0].Role, nil
}

// AssignTx inserts the role row for a user. Assigning a role the user
// already holds is a no-op.
func (r *Roles) AssignTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, role union.Role) error {
	record := &union.RoleRecord{
		ID:     uuid.New(),
		UserID: userID,
		Role:   role,
	}
	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (user_id, role) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	return err
}
