package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Supervision entry statuses. PENDING entries are open for decision; the
// other three are terminal outcomes.
const (
	SupervisionPending  = "PENDING"
	SupervisionApproved = "APPROVED"
	SupervisionRejected = "REJECTED"
	SupervisionModified = "MODIFIED"
)

// ClaimTTL is how long a claim holds an entry before it returns to the queue.
const ClaimTTL = 15 * time.Minute

// SupervisionEntry is one pending human decision, routed to exactly one
// queue by anomaly kind. Links 1:1 back to its anomaly; the anomaly owns it.
type SupervisionEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AnomalyID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_supervision_queue_anomaly" json:"anomaly_id"`
	QueueKind string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_supervision_queue_anomaly;index" json:"queue_kind"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`

	Status string `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`

	// Queue-specific context derived from the anomaly (expected vs found
	// pieces, list vs extracted price, lookup candidates with scores).
	Context string `gorm:"type:jsonb" json:"context"`
	Note    string `gorm:"type:text" json:"note"`

	// Priority boost when the pattern signature is already promoted elsewhere.
	Priority int `gorm:"type:int;not null;default:0;index" json:"priority"`

	// Claim: at most one non-expired claim at a time.
	ClaimedBy *string    `gorm:"type:varchar(255);index" json:"claimed_by"`
	ClaimedAt *time.Time `json:"claimed_at"`

	DecidedBy     *string    `gorm:"type:varchar(255)" json:"decided_by"`
	DecidedAt     *time.Time `json:"decided_at"`
	OverrideValue string     `gorm:"type:varchar(255)" json:"override_value"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *SupervisionEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// ClaimExpired reports whether the current claim, if any, has lapsed at now.
func (e *SupervisionEntry) ClaimExpired(now time.Time) bool {
	return e.ClaimedAt != nil && now.Sub(*e.ClaimedAt) > ClaimTTL
}

// ClaimedByOther reports whether operator would collide with a live claim.
func (e *SupervisionEntry) ClaimedByOther(operator string, now time.Time) bool {
	if e.ClaimedBy == nil || e.ClaimExpired(now) {
		return false
	}
	return *e.ClaimedBy != operator
}
