package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order lifecycle states
const (
	OrderStateExtracted     = "EXTRACTED"
	OrderStateValidated     = "VALIDATED"
	OrderStateBlocked       = "BLOCKED"
	OrderStateReadyToExport = "READY_TO_EXPORT"
	OrderStateExported      = "EXPORTED"
)

// Customer lookup resolution statuses
const (
	LookupUnresolved = "UNRESOLVED"
	LookupAuto       = "AUTO"
	LookupSupervised = "SUPERVISED"
)

// Order is one extracted purchase-order header. It owns its lines and
// anomalies (cascade delete).
type Order struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AcquisitionID uuid.UUID `gorm:"type:uuid;not null;index" json:"acquisition_id"`
	VendorCode    string    `gorm:"type:varchar(50);not null;index" json:"vendor_code"`
	OrderNumber   string    `gorm:"type:varchar(100);not null" json:"order_number"`
	OrderDate     *time.Time `json:"order_date"`
	DeliveryDate  *time.Time `json:"delivery_date"`

	// Candidate customer identity as extracted from the document.
	CustomerVAT      string `gorm:"type:varchar(20)" json:"customer_vat"`
	CustomerName     string `gorm:"type:varchar(255)" json:"customer_name"`
	CustomerAddress  string `gorm:"type:varchar(255)" json:"customer_address"`
	CustomerZIP      string `gorm:"type:varchar(10)" json:"customer_zip"`
	CustomerCity     string `gorm:"type:varchar(100)" json:"customer_city"`
	CustomerProvince string `gorm:"type:varchar(5)" json:"customer_province"`

	// Resolved identity and lookup quality.
	CustomerKey      string          `gorm:"type:varchar(50);index" json:"customer_key"`
	LookupScore      decimal.Decimal `gorm:"type:decimal(8,4)" json:"lookup_score"`
	LookupCandidates int             `gorm:"type:int" json:"lookup_candidates"`
	LookupStatus     string          `gorm:"type:varchar(20);not null;default:'UNRESOLVED'" json:"lookup_status"`

	State     string      `gorm:"type:varchar(20);not null;default:'EXTRACTED';index" json:"state"`
	Lines     []OrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
	Anomalies []Anomaly   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"anomalies,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderLine is one extracted line. Ordinal indices are dense within an order
// and the order reference never changes after creation.
type OrderLine struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_line_order_ordinal" json:"order_id"`
	Ordinal int       `gorm:"type:int;not null;uniqueIndex:idx_line_order_ordinal" json:"ordinal"`

	ProductCode string `gorm:"type:varchar(20);index" json:"product_code"`
	Description string `gorm:"type:varchar(255)" json:"description"`

	QtySold      int `gorm:"type:int;not null;default:0" json:"qty_sold"`
	QtyGratis    int `gorm:"type:int;not null;default:0" json:"qty_gratis"`
	QtyBonus     int `gorm:"type:int;not null;default:0" json:"qty_bonus"`
	QtyFulfilled int `gorm:"type:int;not null;default:0" json:"qty_fulfilled"`

	Discount1 decimal.Decimal `gorm:"type:decimal(8,4)" json:"discount1"`
	Discount2 decimal.Decimal `gorm:"type:decimal(8,4)" json:"discount2"`
	Discount3 decimal.Decimal `gorm:"type:decimal(8,4)" json:"discount3"`
	Discount4 decimal.Decimal `gorm:"type:decimal(8,4)" json:"discount4"`

	NetPrice     decimal.Decimal `gorm:"type:decimal(12,2)" json:"net_price"`
	ListPrice    decimal.Decimal `gorm:"type:decimal(12,2)" json:"list_price"`
	PublicPrice  decimal.Decimal `gorm:"type:decimal(12,2)" json:"public_price"`
	VATRate      decimal.Decimal `gorm:"type:decimal(8,4)" json:"vat_rate"`
	VATIncluded  bool            `gorm:"not null;default:false" json:"vat_included"`

	// Display-case grouping: a parent line carries the case code, child lines
	// point back at the parent ordinal.
	IsDisplayCase bool   `gorm:"not null;default:false" json:"is_display_case"`
	CaseCode      string `gorm:"type:varchar(50)" json:"case_code"`
	ParentOrdinal *int   `gorm:"type:int" json:"parent_ordinal"`

	State     string    `gorm:"type:varchar(20);not null;default:'EXTRACTED'" json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *OrderLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
