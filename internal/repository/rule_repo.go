package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"backend/internal/apperr"
	"backend/internal/model"
	"backend/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// optimisticRetries bounds the compare-and-swap loop on rule counters.
const optimisticRetries = 3

type RuleRepository interface {
	FindBySignature(ctx context.Context, queueKind, signature string) (*model.OrdinaryRule, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.OrdinaryRule, error)
	List(ctx context.Context, queueKind string, page, limit int) ([]model.OrdinaryRule, int64, error)
	// RecordApproval upserts the rule for the signature, increments its
	// approval count, adds the operator to the approver set and flips
	// is_ordinary when the promotion threshold is crossed. Concurrent
	// decisions on the same signature serialize via optimistic retry.
	// Returns the rule and whether this call promoted it.
	RecordApproval(ctx context.Context, queueKind, signature, actionType, actionValue, patternText, operator string, minApprovals, minOperators int) (*model.OrdinaryRule, bool, error)
	// RecordContested upserts the rule for the signature and increments its
	// contested counter. Rejections recorded before the first approval still
	// count toward suspension.
	RecordContested(ctx context.Context, queueKind, signature string) error
	Touch(ctx context.Context, id uuid.UUID, appliedAt time.Time) error
	Revoke(ctx context.Context, id uuid.UUID, operator string) (*model.OrdinaryRule, error)
	CountPromoted(ctx context.Context) (int64, error)
	CountAll(ctx context.Context) (int64, error)
}

type ruleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) FindBySignature(ctx context.Context, queueKind, signature string) (*model.OrdinaryRule, error) {
	var rule model.OrdinaryRule
	if err := GetDB(ctx, r.db).First(&rule, "queue_kind = ? AND signature = ?", queueKind, signature).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.OrdinaryRule, error) {
	var rule model.OrdinaryRule
	if err := GetDB(ctx, r.db).First(&rule, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) List(ctx context.Context, queueKind string, page, limit int) ([]model.OrdinaryRule, int64, error) {
	db := GetDB(ctx, r.db).Model(&model.OrdinaryRule{})
	if queueKind != "" {
		db = db.Where("queue_kind = ?", queueKind)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit = pagination.Clamp(page, limit)

	var rules []model.OrdinaryRule
	if err := db.Order("approval_count DESC, created_at ASC").
		Offset(pagination.Offset(page, limit)).Limit(limit).
		Find(&rules).Error; err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

func (r *ruleRepository) RecordApproval(ctx context.Context, queueKind, signature, actionType, actionValue, patternText, operator string, minApprovals, minOperators int) (*model.OrdinaryRule, bool, error) {
	db := GetDB(ctx, r.db)

	for attempt := 0; attempt < optimisticRetries; attempt++ {
		var rule model.OrdinaryRule
		err := db.First(&rule, "queue_kind = ? AND signature = ?", queueKind, signature).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rule = model.OrdinaryRule{
				QueueKind:   queueKind,
				Signature:   signature,
				ActionType:  actionType,
				ActionValue: actionValue,
				PatternText: patternText,
				Approvers:   "[]",
			}
			if createErr := db.Create(&rule).Error; createErr != nil {
				// Lost the creation race; retry as an update.
				continue
			}
		} else if err != nil {
			return nil, false, err
		}

		approvers, err := decodeApprovers(rule.Approvers)
		if err != nil {
			return nil, false, err
		}
		if !containsString(approvers, operator) {
			approvers = append(approvers, operator)
		}
		encoded, err := json.Marshal(approvers)
		if err != nil {
			return nil, false, err
		}

		newCount := rule.ApprovalCount + 1
		promoted := false
		// Rows created by a contest have no action yet; the latest approval
		// defines it either way.
		updates := map[string]interface{}{
			"approval_count": newCount,
			"approvers":      string(encoded),
			"action_type":    actionType,
			"action_value":   actionValue,
			"pattern_text":   patternText,
		}
		if !rule.IsOrdinary && rule.RevokedAt == nil &&
			newCount >= minApprovals && len(approvers) >= minOperators {
			now := time.Now()
			updates["is_ordinary"] = true
			updates["promoted_at"] = now
			promoted = true
		}

		// Compare-and-swap on approval_count keeps parallel decisions from
		// losing increments.
		res := db.Model(&model.OrdinaryRule{}).
			Where("id = ? AND approval_count = ?", rule.ID, rule.ApprovalCount).
			Updates(updates)
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}

		var out model.OrdinaryRule
		if err := db.First(&out, "id = ?", rule.ID).Error; err != nil {
			return nil, false, err
		}
		return &out, promoted, nil
	}

	return nil, false, apperr.Infrastructure(nil, "rule approval: optimistic retries exhausted")
}

func (r *ruleRepository) RecordContested(ctx context.Context, queueKind, signature string) error {
	db := GetDB(ctx, r.db)

	res := db.Model(&model.OrdinaryRule{}).
		Where("queue_kind = ? AND signature = ?", queueKind, signature).
		Update("contested", gorm.Expr("contested + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// First signal on this signature is a rejection: the counter lives on a
	// rule row so later approvals cannot promote past it.
	rule := model.OrdinaryRule{
		QueueKind: queueKind,
		Signature: signature,
		Approvers: "[]",
		Contested: 1,
	}
	if err := db.Create(&rule).Error; err != nil {
		// Lost the creation race; the row exists now.
		return db.Model(&model.OrdinaryRule{}).
			Where("queue_kind = ? AND signature = ?", queueKind, signature).
			Update("contested", gorm.Expr("contested + 1")).Error
	}
	return nil
}

func (r *ruleRepository) Touch(ctx context.Context, id uuid.UUID, appliedAt time.Time) error {
	return GetDB(ctx, r.db).Model(&model.OrdinaryRule{}).
		Where("id = ?", id).
		Update("last_applied_at", appliedAt).Error
}

func (r *ruleRepository) Revoke(ctx context.Context, id uuid.UUID, operator string) (*model.OrdinaryRule, error) {
	now := time.Now()
	res := GetDB(ctx, r.db).Model(&model.OrdinaryRule{}).
		Where("id = ? AND is_ordinary = ?", id, true).
		Updates(map[string]interface{}{
			"is_ordinary": false,
			"revoked_at":  now,
			"revoked_by":  operator,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Conflict("rule is not promoted")
	}

	var rule model.OrdinaryRule
	if err := GetDB(ctx, r.db).First(&rule, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) CountPromoted(ctx context.Context) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.OrdinaryRule{}).
		Where("is_ordinary = ?", true).Count(&n).Error
	return n, err
}

func (r *ruleRepository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.OrdinaryRule{}).Count(&n).Error
	return n, err
}

func decodeApprovers(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
