package database

import (
	"backend/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate auto-migrates every model. Shared with the sqlite-backed test stores.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Operator{},
		&model.RefreshToken{},
		&model.Customer{},
		&model.CatalogProduct{},
		&model.PriceListEntry{},
		&model.DisplayCaseSpec{},
		&model.Acquisition{},
		&model.Order{},
		&model.OrderLine{},
		&model.Anomaly{},
		&model.SupervisionEntry{},
		&model.OrdinaryRule{},
		&model.ActivityLog{},
	)
}
