package repository

import (
	"context"

	"backend/internal/model"
	"backend/pkg/pagination"

	"gorm.io/gorm"
)

// AuditFilter narrows activity log listings.
type AuditFilter struct {
	Operator   string
	Action     string
	EntityKind string
	EntityID   string
	Page       int
	Limit      int
}

// AuditRepository appends to and reads the activity log. Entries are never
// updated or deleted.
type AuditRepository interface {
	Append(ctx context.Context, entry *model.ActivityLog) error
	List(ctx context.Context, filter AuditFilter) ([]model.ActivityLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, entry *model.ActivityLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]model.ActivityLog, int64, error) {
	db := GetDB(ctx, r.db).Model(&model.ActivityLog{})
	if filter.Operator != "" {
		db = db.Where("operator = ?", filter.Operator)
	}
	if filter.Action != "" {
		db = db.Where("action = ?", filter.Action)
	}
	if filter.EntityKind != "" {
		db = db.Where("entity_kind = ?", filter.EntityKind)
	}
	if filter.EntityID != "" {
		db = db.Where("entity_id = ?", filter.EntityID)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	filter.Page, filter.Limit = pagination.Clamp(filter.Page, filter.Limit)

	var logs []model.ActivityLog
	if err := db.Order("created_at DESC").
		Offset(pagination.Offset(filter.Page, filter.Limit)).
		Limit(filter.Limit).
		Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
