package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Acquisition origins
const (
	OriginEmail  = "EMAIL"
	OriginFTP    = "FTP"
	OriginUpload = "UPLOAD"
)

// Acquisition is one ingested document delivery. Immutable after creation;
// it owns its orders (cascade delete).
type Acquisition struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Origin      string    `gorm:"type:varchar(20);not null" json:"origin"` // EMAIL, FTP, UPLOAD
	VendorCode  string    `gorm:"type:varchar(50);not null;index" json:"vendor_code"`
	ContentHash string    `gorm:"type:varchar(64);not null;index" json:"content_hash"`
	ReceivedAt  time.Time `gorm:"not null" json:"received_at"`
	Orders      []Order   `gorm:"foreignKey:AcquisitionID;constraint:OnDelete:CASCADE" json:"orders,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (a *Acquisition) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
