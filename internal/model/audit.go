package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Action categories recorded in the activity log.
const (
	ActionIngestAcquisition = "INGEST_ACQUISITION"
	ActionStateTransition   = "STATE_TRANSITION"
	ActionQueueDecision     = "QUEUE_DECISION"
	ActionBulkDecision      = "BULK_DECISION"
	ActionAutoResolution    = "AUTO_RESOLUTION"
	ActionRulePromotion     = "RULE_PROMOTION"
	ActionRuleRevocation    = "RULE_REVOCATION"
	ActionLineCorrection    = "LINE_CORRECTION"
	ActionExport            = "EXPORT"
	ActionReopenOrder       = "REOPEN_ORDER"
	ActionReset             = "RESET"
	ActionBackup            = "BACKUP"
)

// Entity kinds referenced by log entries.
const (
	EntityAcquisition = "ACQUISITION"
	EntityOrder       = "ORDER"
	EntityOrderLine   = "ORDER_LINE"
	EntityAnomaly     = "ANOMALY"
	EntitySupervision = "SUPERVISION_ENTRY"
	EntityRule        = "ORDINARY_RULE"
	EntityStore       = "STORE"
)

// Outcomes
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeError   = "ERROR"
)

// ActivityLog tracks who did what, on which entity, with what outcome.
// Append-only: entries are never mutated, corrections are new entries
// referencing the prior id via RefersTo.
type ActivityLog struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Operator    string     `gorm:"type:varchar(255);not null;index" json:"operator"` // username or SYSTEM
	Action      string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityKind  string     `gorm:"type:varchar(30);not null;index" json:"entity_kind"`
	EntityID    string     `gorm:"type:varchar(64);index" json:"entity_id"`
	Outcome     string     `gorm:"type:varchar(10);not null" json:"outcome"`
	Description string     `gorm:"type:varchar(500)" json:"description"`
	Details     string     `gorm:"type:jsonb" json:"details"`
	RefersTo    *uuid.UUID `gorm:"type:uuid" json:"refers_to"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
}

func (l *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
