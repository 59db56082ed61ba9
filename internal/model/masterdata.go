package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Customer is one entry of the pharmacy directory. Read-only to the core:
// only master-data imports write these rows.
type Customer struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code      string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"` // internal customer key
	VATNumber string    `gorm:"type:varchar(20);index" json:"vat_number"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Address   string    `gorm:"type:varchar(255)" json:"address"`
	ZIP       string    `gorm:"type:varchar(10)" json:"zip"`
	City      string    `gorm:"type:varchar(100)" json:"city"`
	Province  string    `gorm:"type:varchar(5)" json:"province"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CatalogProduct is one identifier of the national product catalogue (AIC).
type CatalogProduct struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Code        string          `gorm:"type:varchar(20);uniqueIndex;not null" json:"code"` // 9-digit AIC
	Description string          `gorm:"type:varchar(255);not null" json:"description"`
	PublicPrice decimal.Decimal `gorm:"type:decimal(12,2)" json:"public_price"`
	VATRate     decimal.Decimal `gorm:"type:decimal(8,4)" json:"vat_rate"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (p *CatalogProduct) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PriceListEntry is the reference net price for (vendor, product).
type PriceListEntry struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	VendorCode  string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_pricelist_vendor_product" json:"vendor_code"`
	ProductCode string          `gorm:"type:varchar(20);not null;uniqueIndex:idx_pricelist_vendor_product" json:"product_code"`
	NetPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"net_price"`
	PublicPrice decimal.Decimal `gorm:"type:decimal(12,2)" json:"public_price"`
	ValidFrom   *time.Time      `json:"valid_from"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (p *PriceListEntry) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// DisplayCaseSpec declares the expected piece count of a vendor display case.
type DisplayCaseSpec struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VendorCode     string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_case_vendor_code" json:"vendor_code"`
	CaseCode       string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_case_vendor_code" json:"case_code"`
	ExpectedPieces int       `gorm:"type:int;not null" json:"expected_pieces"`
	Description    string    `gorm:"type:varchar(255)" json:"description"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (d *DisplayCaseSpec) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
