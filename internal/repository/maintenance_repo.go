package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"gorm.io/gorm"
)

// ResetCounts reports what a pipeline reset removed.
type ResetCounts struct {
	Acquisitions       int64 `json:"acquisitions"`
	Orders             int64 `json:"orders"`
	Lines              int64 `json:"lines"`
	Anomalies          int64 `json:"anomalies"`
	SupervisionEntries int64 `json:"supervision_entries"`
}

// Snapshot is a point-in-time copy of every table the pipeline owns, taken
// inside a single transaction.
type Snapshot struct {
	TakenAt            time.Time                `json:"taken_at"`
	Acquisitions       []model.Acquisition      `json:"acquisitions"`
	Orders             []model.Order            `json:"orders"`
	Lines              []model.OrderLine        `json:"lines"`
	Anomalies          []model.Anomaly          `json:"anomalies"`
	SupervisionEntries []model.SupervisionEntry `json:"supervision_entries"`
	Rules              []model.OrdinaryRule     `json:"rules"`
	ActivityLog        []model.ActivityLog      `json:"activity_log"`
}

// MaintenanceRepository backs the admin reset and backup operations.
type MaintenanceRepository interface {
	// ResetPipeline deletes all acquisitions, orders, lines, anomalies and
	// supervision entries. Ordinary rules, master data, operators and the
	// activity log survive.
	ResetPipeline(ctx context.Context) (*ResetCounts, error)
	Snapshot(ctx context.Context) (*Snapshot, error)
}

type maintenanceRepository struct {
	db *gorm.DB
}

func NewMaintenanceRepository(db *gorm.DB) MaintenanceRepository {
	return &maintenanceRepository{db: db}
}

func (r *maintenanceRepository) ResetPipeline(ctx context.Context) (*ResetCounts, error) {
	var counts ResetCounts
	err := GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		tables := []struct {
			target interface{}
			count  *int64
		}{
			{&model.SupervisionEntry{}, &counts.SupervisionEntries},
			{&model.Anomaly{}, &counts.Anomalies},
			{&model.OrderLine{}, &counts.Lines},
			{&model.Order{}, &counts.Orders},
			{&model.Acquisition{}, &counts.Acquisitions},
		}
		for _, t := range tables {
			if err := tx.Model(t.target).Count(t.count).Error; err != nil {
				return err
			}
			if err := tx.Where("1 = 1").Delete(t.target).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &counts, nil
}

func (r *maintenanceRepository) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := Snapshot{TakenAt: time.Now()}
	err := GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Find(&snap.Acquisitions).Error; err != nil {
			return err
		}
		if err := tx.Find(&snap.Orders).Error; err != nil {
			return err
		}
		if err := tx.Find(&snap.Lines).Error; err != nil {
			return err
		}
		if err := tx.Find(&snap.Anomalies).Error; err != nil {
			return err
		}
		if err := tx.Find(&snap.SupervisionEntries).Error; err != nil {
			return err
		}
		if err := tx.Find(&snap.Rules).Error; err != nil {
			return err
		}
		return tx.Find(&snap.ActivityLog).Error
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
