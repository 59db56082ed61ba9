package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Rule action types — the canonical corrective action per queue kind.
const (
	RuleActionSetProductCode = "SET_PRODUCT_CODE" // AIC: vendor + description ⇒ identifier
	RuleActionSetNetPrice    = "SET_NET_PRICE"    // LISTINO: accept corrected price
	RuleActionSetCustomerKey = "SET_CUSTOMER_KEY" // LOOKUP: VAT + name ⇒ customer key
	RuleActionAcceptBand     = "ACCEPT_BAND"      // ESPOSITORE: accept deviation within band
)

// PromotionMinApprovals and PromotionMinOperators gate the is_ordinary flag:
// no single operator's repeated approvals can promote a rule alone.
const (
	PromotionMinApprovals = 3
	PromotionMinOperators = 2
)

// OrdinaryRule is a learned pattern keyed by signature. Rules live
// independently of the anomalies they were learned from: deleting source
// orders never invalidates them. One logical table per queue kind,
// discriminated by QueueKind with a unique (queue_kind, signature) index.
type OrdinaryRule struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QueueKind string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_rule_queue_signature" json:"queue_kind"`
	Signature string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_rule_queue_signature" json:"signature"`

	ActionType  string `gorm:"type:varchar(30);not null" json:"action_type"`
	ActionValue string `gorm:"type:varchar(255)" json:"action_value"`
	// Human-readable restatement of the pattern (vendor, normalized
	// description, case code…), kept for the admin surface.
	PatternText string `gorm:"type:varchar(500)" json:"pattern_text"`

	ApprovalCount int    `gorm:"type:int;not null;default:0" json:"approval_count"`
	Contested     int    `gorm:"type:int;not null;default:0" json:"contested"`
	Approvers     string `gorm:"type:jsonb;not null;default:'[]'" json:"approvers"` // distinct approving operators

	IsOrdinary bool `gorm:"not null;default:false;index" json:"is_ordinary"`

	PromotedAt    *time.Time `json:"promoted_at"`
	LastAppliedAt *time.Time `json:"last_applied_at"`
	RevokedAt     *time.Time `json:"revoked_at"`
	RevokedBy     *string    `gorm:"type:varchar(255)" json:"revoked_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *OrdinaryRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Suspended reports whether auto-resolution on this signature is on hold.
// A promoted rule stays visible to admins but is not applied while the
// contested count exceeds its approvals.
func (r *OrdinaryRule) Suspended() bool {
	return r.Contested > r.ApprovalCount
}

// Applicable reports whether the auto-resolver may apply this rule.
func (r *OrdinaryRule) Applicable() bool {
	return r.IsOrdinary && !r.Suspended() && r.RevokedAt == nil
}
