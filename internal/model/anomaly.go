package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Anomaly kinds — one per supervision queue, plus the detector fault sink.
const (
	AnomalyKindAIC           = "AIC"
	AnomalyKindListino       = "LISTINO"
	AnomalyKindLookup        = "LOOKUP"
	AnomalyKindEspositore    = "ESPOSITORE"
	AnomalyKindDetectorFault = "DETECTOR_FAULT"
)

// QueueKinds enumerates the four supervision queues. DETECTOR_FAULT anomalies
// never enter a queue.
var QueueKinds = []string{AnomalyKindAIC, AnomalyKindListino, AnomalyKindLookup, AnomalyKindEspositore}

// Anomaly severities
const (
	SeverityAttention = "ATTENTION"
	SeverityBlocking  = "BLOCKING"
)

// Anomaly states
const (
	AnomalyOpen      = "OPEN"
	AnomalyResolved  = "RESOLVED"
	AnomalyDismissed = "DISMISSED"
)

// Deviation bands for display-case piece counts.
const (
	BandExact    = "EXACT"
	BandMinor    = "MINOR"    // ≤ 5%
	BandModerate = "MODERATE" // ≤ 15%
	BandMajor    = "MAJOR"    // > 15%
)

// Anomaly is a detected deviation between extracted data and reference data.
// Header-level anomalies carry a nil LineID.
type Anomaly struct {
	ID      uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID uuid.UUID  `gorm:"type:uuid;not null;index" json:"order_id"`
	LineID  *uuid.UUID `gorm:"type:uuid;index" json:"line_id"`
	Line    *OrderLine `gorm:"foreignKey:LineID" json:"line,omitempty"`

	Kind     string `gorm:"type:varchar(20);not null;index" json:"kind"`
	Severity string `gorm:"type:varchar(20);not null" json:"severity"`
	State    string `gorm:"type:varchar(20);not null;default:'OPEN';index" json:"state"`

	OffendingValue string `gorm:"type:varchar(255)" json:"offending_value"`
	BeforeAfter    string `gorm:"type:jsonb" json:"before_after"` // {"before":…,"after":…}
	Context        string `gorm:"type:jsonb" json:"context"`      // kind-specific detail payload

	Signature string `gorm:"type:varchar(64);not null;index" json:"signature"`

	// Set when the anomaly is closed.
	ResolvedBy *string    `gorm:"type:varchar(255)" json:"resolved_by"`
	ResolvedAt *time.Time `json:"resolved_at"`
	RuleID     *uuid.UUID `gorm:"type:uuid;index" json:"rule_id"` // set when closed by the auto-resolver

	Supervision *SupervisionEntry `gorm:"foreignKey:AnomalyID;constraint:OnDelete:CASCADE" json:"supervision,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Anomaly) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// IsBlocking reports whether the anomaly gates the order's validated state.
func (a *Anomaly) IsBlocking() bool {
	return a.Severity == SeverityBlocking
}
