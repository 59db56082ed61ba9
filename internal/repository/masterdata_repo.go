package repository

import (
	"context"
	"errors"

	"backend/internal/model"

	"gorm.io/gorm"
)

// MasterDataRepository reads the reference data the detector validates
// against. The core never writes these tables; imports happen out of band.
type MasterDataRepository interface {
	ProductByCode(ctx context.Context, code string) (*model.CatalogProduct, error)
	PriceFor(ctx context.Context, vendorCode, productCode string) (*model.PriceListEntry, error)
	DisplayCase(ctx context.Context, vendorCode, caseCode string) (*model.DisplayCaseSpec, error)
	CustomerByVAT(ctx context.Context, vat string) (*model.Customer, error)
	CustomerByCode(ctx context.Context, code string) (*model.Customer, error)
	Customers(ctx context.Context) ([]model.Customer, error)
}

type masterDataRepository struct {
	db *gorm.DB
}

func NewMasterDataRepository(db *gorm.DB) MasterDataRepository {
	return &masterDataRepository{db: db}
}

func (r *masterDataRepository) ProductByCode(ctx context.Context, code string) (*model.CatalogProduct, error) {
	var p model.CatalogProduct
	if err := GetDB(ctx, r.db).First(&p, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *masterDataRepository) PriceFor(ctx context.Context, vendorCode, productCode string) (*model.PriceListEntry, error) {
	var e model.PriceListEntry
	if err := GetDB(ctx, r.db).First(&e, "vendor_code = ? AND product_code = ?", vendorCode, productCode).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *masterDataRepository) DisplayCase(ctx context.Context, vendorCode, caseCode string) (*model.DisplayCaseSpec, error) {
	var s model.DisplayCaseSpec
	if err := GetDB(ctx, r.db).First(&s, "vendor_code = ? AND case_code = ?", vendorCode, caseCode).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *masterDataRepository) CustomerByVAT(ctx context.Context, vat string) (*model.Customer, error) {
	var c model.Customer
	err := GetDB(ctx, r.db).First(&c, "vat_number = ?", vat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Ambiguity guard: exact VAT hit only counts when it is unique.
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	var n int64
	if err := GetDB(ctx, r.db).Model(&model.Customer{}).Where("vat_number = ?", vat).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 1 {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *masterDataRepository) CustomerByCode(ctx context.Context, code string) (*model.Customer, error) {
	var c model.Customer
	if err := GetDB(ctx, r.db).First(&c, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *masterDataRepository) Customers(ctx context.Context) ([]model.Customer, error) {
	var out []model.Customer
	if err := GetDB(ctx, r.db).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
