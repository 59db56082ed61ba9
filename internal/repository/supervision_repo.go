package repository

import (
	"context"
	"errors"
	"time"

	"backend/internal/model"
	"backend/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SupervisionFilter narrows queue listings. Pending entries only unless
// Status is set explicitly.
type SupervisionFilter struct {
	QueueKind string
	Status    string
	Page      int
	Limit     int
}

type SupervisionRepository interface {
	Create(ctx context.Context, entry *model.SupervisionEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.SupervisionEntry, error)
	// List surfaces entries FIFO by creation time, priority-boosted entries
	// first within a queue.
	List(ctx context.Context, filter SupervisionFilter) ([]model.SupervisionEntry, int64, error)
	// Claim atomically takes the entry for operator. Fails when a live claim
	// by another operator exists or the operator already holds a claim in
	// the same queue. Returns false on claim collision.
	Claim(ctx context.Context, id uuid.UUID, operator string, now time.Time) (bool, error)
	// ClaimBatch claims all ids or none.
	ClaimBatch(ctx context.Context, ids []uuid.UUID, operator string, now time.Time) (bool, error)
	Release(ctx context.Context, id uuid.UUID, operator string) error
	// Decide finalizes a PENDING entry. Returns false when the entry was
	// already decided (stale decision).
	Decide(ctx context.Context, id uuid.UUID, status, operator, note, overrideValue string, now time.Time) (bool, error)
	CountPendingByQueue(ctx context.Context) (map[string]int64, error)
	CountAll(ctx context.Context) (int64, error)
}

type supervisionRepository struct {
	db *gorm.DB
}

func NewSupervisionRepository(db *gorm.DB) SupervisionRepository {
	return &supervisionRepository{db: db}
}

func (r *supervisionRepository) Create(ctx context.Context, entry *model.SupervisionEntry) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *supervisionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.SupervisionEntry, error) {
	var entry model.SupervisionEntry
	if err := GetDB(ctx, r.db).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *supervisionRepository) List(ctx context.Context, filter SupervisionFilter) ([]model.SupervisionEntry, int64, error) {
	db := GetDB(ctx, r.db).Model(&model.SupervisionEntry{})
	if filter.QueueKind != "" {
		db = db.Where("queue_kind = ?", filter.QueueKind)
	}
	status := filter.Status
	if status == "" {
		status = model.SupervisionPending
	}
	db = db.Where("status = ?", status)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	filter.Page, filter.Limit = pagination.Clamp(filter.Page, filter.Limit)

	var entries []model.SupervisionEntry
	if err := db.
		Order("priority DESC, created_at ASC").
		Offset(pagination.Offset(filter.Page, filter.Limit)).
		Limit(filter.Limit).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// claimableSQL matches entries with no live claim held by another operator.
const claimableSQL = "(claimed_by IS NULL OR claimed_at <= ? OR claimed_by = ?)"

var errClaimDenied = errors.New("claim denied")

func (r *supervisionRepository) Claim(ctx context.Context, id uuid.UUID, operator string, now time.Time) (bool, error) {
	db := GetDB(ctx, r.db)
	cutoff := now.Add(-model.ClaimTTL)

	// One claimed entry per operator per queue.
	var entry model.SupervisionEntry
	if err := db.First(&entry, "id = ?", id).Error; err != nil {
		return false, err
	}
	var held int64
	if err := db.Model(&model.SupervisionEntry{}).
		Where("queue_kind = ? AND claimed_by = ? AND status = ? AND id <> ? AND claimed_at > ?",
			entry.QueueKind, operator, model.SupervisionPending, id, cutoff).
		Count(&held).Error; err != nil {
		return false, err
	}
	if held > 0 {
		return false, nil
	}

	res := db.Model(&model.SupervisionEntry{}).
		Where("id = ? AND status = ?", id, model.SupervisionPending).
		Where(claimableSQL, cutoff, operator).
		Updates(map[string]interface{}{"claimed_by": operator, "claimed_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *supervisionRepository) ClaimBatch(ctx context.Context, ids []uuid.UUID, operator string, now time.Time) (bool, error) {
	cutoff := now.Add(-model.ClaimTTL)
	err := GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.SupervisionEntry{}).
			Where("id IN ? AND status = ?", ids, model.SupervisionPending).
			Where(claimableSQL, cutoff, operator).
			Updates(map[string]interface{}{"claimed_by": operator, "claimed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			// All or nothing: roll back partial claims.
			return errClaimDenied
		}
		return nil
	})
	if errors.Is(err, errClaimDenied) {
		return false, nil
	}
	return err == nil, err
}

func (r *supervisionRepository) Release(ctx context.Context, id uuid.UUID, operator string) error {
	return GetDB(ctx, r.db).Model(&model.SupervisionEntry{}).
		Where("id = ? AND claimed_by = ?", id, operator).
		Updates(map[string]interface{}{"claimed_by": nil, "claimed_at": nil}).Error
}

func (r *supervisionRepository) Decide(ctx context.Context, id uuid.UUID, status, operator, note, overrideValue string, now time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.SupervisionEntry{}).
		Where("id = ? AND status = ?", id, model.SupervisionPending).
		Updates(map[string]interface{}{
			"status":         status,
			"decided_by":     operator,
			"decided_at":     now,
			"note":           note,
			"override_value": overrideValue,
			"claimed_by":     nil,
			"claimed_at":     nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *supervisionRepository) CountPendingByQueue(ctx context.Context) (map[string]int64, error) {
	type row struct {
		QueueKind string
		N         int64
	}
	var rows []row
	if err := GetDB(ctx, r.db).Model(&model.SupervisionEntry{}).
		Select("queue_kind, COUNT(*) as n").
		Where("status = ?", model.SupervisionPending).
		Group("queue_kind").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.QueueKind] = r.N
	}
	return out, nil
}

func (r *supervisionRepository) CountAll(ctx context.Context) (int64, error) {
	var total int64
	err := GetDB(ctx, r.db).Model(&model.SupervisionEntry{}).Count(&total).Error
	return total, err
}
