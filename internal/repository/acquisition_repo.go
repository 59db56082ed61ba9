package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AcquisitionRepository interface {
	Create(ctx context.Context, acq *model.Acquisition) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Acquisition, error)
	FindByContentHash(ctx context.Context, hash string) (*model.Acquisition, error)
	// Delete removes the acquisition and everything it owns: orders, lines,
	// anomalies and supervision entries. Ordinary rules are untouched.
	Delete(ctx context.Context, id uuid.UUID) error
}

type acquisitionRepository struct {
	db *gorm.DB
}

func NewAcquisitionRepository(db *gorm.DB) AcquisitionRepository {
	return &acquisitionRepository{db: db}
}

func (r *acquisitionRepository) Create(ctx context.Context, acq *model.Acquisition) error {
	return GetDB(ctx, r.db).Create(acq).Error
}

func (r *acquisitionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Acquisition, error) {
	var acq model.Acquisition
	if err := GetDB(ctx, r.db).Preload("Orders").First(&acq, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &acq, nil
}

func (r *acquisitionRepository) FindByContentHash(ctx context.Context, hash string) (*model.Acquisition, error) {
	var acq model.Acquisition
	if err := GetDB(ctx, r.db).First(&acq, "content_hash = ?", hash).Error; err != nil {
		return nil, err
	}
	return &acq, nil
}

func (r *acquisitionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	// Cascade explicitly so the behavior does not depend on store-level
	// foreign key enforcement.
	return GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var orderIDs []uuid.UUID
		if err := tx.Model(&model.Order{}).Where("acquisition_id = ?", id).Pluck("id", &orderIDs).Error; err != nil {
			return err
		}
		if len(orderIDs) > 0 {
			var anomalyIDs []uuid.UUID
			if err := tx.Model(&model.Anomaly{}).Where("order_id IN ?", orderIDs).Pluck("id", &anomalyIDs).Error; err != nil {
				return err
			}
			if len(anomalyIDs) > 0 {
				if err := tx.Where("anomaly_id IN ?", anomalyIDs).Delete(&model.SupervisionEntry{}).Error; err != nil {
					return err
				}
				if err := tx.Where("id IN ?", anomalyIDs).Delete(&model.Anomaly{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("order_id IN ?", orderIDs).Delete(&model.OrderLine{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", orderIDs).Delete(&model.Order{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&model.Acquisition{}, "id = ?", id).Error
	})
}
