package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-union"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var workerProfileColumns = []string{
	"full_name",
	"phone",
	"bio",
	"years_of_experience",
	"city_id",
	"location_city",
	"location_state",
	"hourly_rate",
	"daily_rate",
	"monthly_rate",
	"preferred_payment_mode",
	"updated_at",
}

var workerApprovalColumns = []string{
	"approval_status",
	"approval_rejection_reason",
	"approved_at",
	"approved_by",
	"updated_at",
}

// Workers reads and writes worker profiles and their skills.
type Workers struct {
	db *bun.DB
}

// NewWorkers creates the worker store.
func NewWorkers(db *bun.DB) *Workers {
	return &Workers{db: db}
}

// WorkerByUser returns the worker row of a user.
func (w *Workers) WorkerByUser(ctx context.Context, userID string) (*union.WorkerProfile, error) {
	return w.workerWhere(ctx, w.db, "?TableAlias.user_id = ?", userID)
}

// WorkerByID returns a worker row by primary key.
func (w *Workers) WorkerByID(ctx context.Context, id uuid.UUID) (*union.WorkerProfile, error) {
	return w.workerWhere(ctx, w.db, "?TableAlias.id = ?", id.String())
}

// ListPendingWorkers returns workers awaiting review, newest first.
func (w *Workers) ListPendingWorkers(ctx context.Context) ([]*union.WorkerProfile, error) {
	records := []*union.WorkerProfile{}
	err := w.db.NewSelect().
		Model(&records).
		Where("?TableAlias.approval_status = ?", union.ApprovalPending).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}

// UpdateApproval writes the approval columns of a worker.
func (w *Workers) UpdateApproval(ctx context.Context, worker *union.WorkerProfile) (*union.WorkerProfile, error) {
	return w.UpdateApprovalTx(ctx, w.db, worker)
}

// UpdateApprovalTx is UpdateApproval on the given connection.
func (w *Workers) UpdateApprovalTx(ctx context.Context, tx bun.IDB, worker *union.WorkerProfile) (*union.WorkerProfile, error) {
	touch(&worker.UpdatedAt)
	res, err := tx.NewUpdate().
		Model(worker).
		Column(workerApprovalColumns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, workerNotFound("id", worker.ID.String())
	}
	return w.workerWhere(ctx, tx, "?TableAlias.id = ?", worker.ID.String())
}

// SaveWorkerProfile writes the onboarding columns and replaces the skill
// set in one transaction.
func (w *Workers) SaveWorkerProfile(ctx context.Context, worker *union.WorkerProfile, skillIDs []uuid.UUID) (*union.WorkerProfile, error) {
	var saved *union.WorkerProfile
	err := w.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		touch(&worker.UpdatedAt)
		res, err := tx.NewUpdate().
			Model(worker).
			Column(workerProfileColumns...).
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return workerNotFound("id", worker.ID.String())
		}

		if err := w.ReplaceSkillsTx(ctx, tx, worker.ID, skillIDs); err != nil {
			return err
		}

		saved, err = w.workerWhere(ctx, tx, "?TableAlias.id = ?", worker.ID.String())
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// ReplaceSkillsTx swaps the skills linked to a worker.
func (w *Workers) ReplaceSkillsTx(ctx context.Context, tx bun.IDB, workerID uuid.UUID, skillIDs []uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*union.WorkerSkill)(nil)).
		Where("worker_id = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	if len(skillIDs) == 0 {
		return nil
	}

	links := make([]*union.WorkerSkill, 0, len(skillIDs))
	seen := map[uuid.UUID]bool{}
	for _, id := range skillIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		links = append(links, &union.WorkerSkill{
			ID:       uuid.New(),
			WorkerID: workerID,
			SkillID:  id,
		})
	}
	_, err = tx.NewInsert().Model(&links).Exec(ctx)
	return err
}

// SkillIDs lists the skills linked to a worker.
func (w *Workers) SkillIDs(ctx context.Context, workerID uuid.UUID) ([]uuid.UUID, error) {
	links := []*union.WorkerSkill{}
	err := w.db.NewSelect().
		Model(&links).
		Where("?TableAlias.worker_id = ?", workerID.String()).
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		out = append(out, l.SkillID)
	}
	return out, nil
}

// CreateWorkerTx inserts the initial pending worker row for a new user.
func (w *Workers) CreateWorkerTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, fullName string) (*union.WorkerProfile, error) {
	record := &union.WorkerProfile{
		ID:             uuid.New(),
		UserID:         userID,
		FullName:       fullName,
		ApprovalStatus: union.ApprovalPending,
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

func (w *Workers) workerWhere(ctx context.Context, tx bun.IDB, where string, value string) (*union.WorkerProfile, error) {
	record := &union.WorkerProfile{}
	err := tx.NewSelect().
		Model(record).
		Where(where, value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, workerNotFound("lookup", value)
		}
		return nil, err
	}
	return record, nil
}

func workerNotFound(key, value string) error {
	return union.ErrWorkerProfileNotFound.Clone().WithMetadata(map[string]any{
		key: value,
	})
}

func touch(ts **time.Time) {
	now := time.Now().UTC()
	*ts = &now
}
