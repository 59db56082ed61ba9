package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AnomalyRepository interface {
	Create(ctx context.Context, anomaly *model.Anomaly) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Anomaly, error)
	// OpenByOrder returns open anomalies in deterministic resolution order:
	// kind, line ordinal, then anomaly id.
	OpenByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Anomaly, error)
	CountOpenBlocking(ctx context.Context, orderID uuid.UUID) (int64, error)
	// Close marks the anomaly resolved or dismissed by operator, optionally
	// linking the ordinary rule that resolved it.
	Close(ctx context.Context, id uuid.UUID, state, operator string, ruleID *uuid.UUID) error
	SetBeforeAfter(ctx context.Context, id uuid.UUID, beforeAfter string) error
	CountAll(ctx context.Context) (int64, error)
}

type anomalyRepository struct {
	db *gorm.DB
}

func NewAnomalyRepository(db *gorm.DB) AnomalyRepository {
	return &anomalyRepository{db: db}
}

func (r *anomalyRepository) Create(ctx context.Context, anomaly *model.Anomaly) error {
	return GetDB(ctx, r.db).Create(anomaly).Error
}

func (r *anomalyRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Anomaly, error) {
	var a model.Anomaly
	if err := GetDB(ctx, r.db).Preload("Line").First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *anomalyRepository) OpenByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Anomaly, error) {
	var anomalies []model.Anomaly
	err := GetDB(ctx, r.db).
		Preload("Supervision").
		Joins("LEFT JOIN order_lines ON order_lines.id = anomalies.line_id").
		Where("anomalies.order_id = ? AND anomalies.state = ?", orderID, model.AnomalyOpen).
		Order("anomalies.kind ASC, order_lines.ordinal ASC, anomalies.id ASC").
		Find(&anomalies).Error
	return anomalies, err
}

func (r *anomalyRepository) CountOpenBlocking(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.Anomaly{}).
		Where("order_id = ? AND state = ? AND severity = ?", orderID, model.AnomalyOpen, model.SeverityBlocking).
		Count(&n).Error
	return n, err
}

func (r *anomalyRepository) Close(ctx context.Context, id uuid.UUID, state, operator string, ruleID *uuid.UUID) error {
	now := time.Now()
	updates := map[string]interface{}{
		"state":       state,
		"resolved_by": operator,
		"resolved_at": now,
	}
	if ruleID != nil {
		updates["rule_id"] = *ruleID
	}
	return GetDB(ctx, r.db).Model(&model.Anomaly{}).
		Where("id = ? AND state = ?", id, model.AnomalyOpen).
		Updates(updates).Error
}

func (r *anomalyRepository) SetBeforeAfter(ctx context.Context, id uuid.UUID, beforeAfter string) error {
	return GetDB(ctx, r.db).Model(&model.Anomaly{}).Where("id = ?", id).
		Update("before_after", beforeAfter).Error
}

func (r *anomalyRepository) CountAll(ctx context.Context) (int64, error) {
	var total int64
	err := GetDB(ctx, r.db).Model(&model.Anomaly{}).Count(&total).Error
	return total, err
}
