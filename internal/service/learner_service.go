package service

import (
	"context"
	"errors"

	"backend/internal/apperr"
	"backend/internal/config"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RuleResponse struct {
	ID            string  `json:"id"`
	QueueKind     string  `json:"queue_kind"`
	Signature     string  `json:"signature"`
	ActionType    string  `json:"action_type"`
	ActionValue   string  `json:"action_value"`
	PatternText   string  `json:"pattern_text"`
	ApprovalCount int     `json:"approval_count"`
	Contested     int     `json:"contested"`
	IsOrdinary    bool    `json:"is_ordinary"`
	Suspended     bool    `json:"suspended"`
	PromotedAt    *string `json:"promoted_at"`
	LastAppliedAt *string `json:"last_applied_at"`
	RevokedAt     *string `json:"revoked_at"`
	RevokedBy     *string `json:"revoked_by"`
	CreatedAt     string  `json:"created_at"`
}

// LearnerService turns repeated consistent human decisions into ordinary
// rules. Every approval of the same pattern signature accumulates toward
// promotion; rejections count against it and can suspend an already promoted
// rule without deleting it.
type LearnerService interface {
	// Approve records one operator approval for the signature and promotes the
	// rule when both thresholds are crossed. Returns the rule and whether this
	// call promoted it.
	Approve(ctx context.Context, queueKind, signature, actionType, actionValue, patternText, operator string) (*model.OrdinaryRule, bool, error)
	// Contest records one operator rejection of the pattern.
	Contest(ctx context.Context, queueKind, signature string) error
	Revoke(ctx context.Context, ruleID uuid.UUID, operator string) (*RuleResponse, error)
	Get(ctx context.Context, ruleID uuid.UUID) (*RuleResponse, error)
	List(ctx context.Context, queueKind string, page, limit int) ([]RuleResponse, int64, error)
}

type learnerService struct {
	cfg      *config.Store
	rules    repository.RuleRepository
	audit    AuditService
	notifier Notifier
}

func NewLearnerService(cfg *config.Store, rules repository.RuleRepository, audit AuditService, notifier Notifier) LearnerService {
	return &learnerService{cfg: cfg, rules: rules, audit: audit, notifier: notifier}
}

func (s *learnerService) Approve(ctx context.Context, queueKind, signature, actionType, actionValue, patternText, operator string) (*model.OrdinaryRule, bool, error) {
	cfg := s.cfg.Get()
	rule, promoted, err := s.rules.RecordApproval(ctx, queueKind, signature, actionType, actionValue, patternText, operator,
		cfg.Learner.MinApprovals, cfg.Learner.MinOperators)
	if err != nil {
		return nil, false, eris.Wrap(err, "learner: record approval")
	}

	if promoted {
		zap.L().Info("rule promoted",
			zap.String("rule_id", rule.ID.String()),
			zap.String("queue_kind", queueKind),
			zap.Int("approval_count", rule.ApprovalCount))
		if err := s.audit.Record(ctx, model.SystemOperator, model.ActionRulePromotion, model.EntityRule, rule.ID.String(),
			model.OutcomeSuccess, "promoted to ordinary rule", map[string]interface{}{
				"queue_kind":     queueKind,
				"signature":      signature,
				"action_type":    actionType,
				"approval_count": rule.ApprovalCount,
			}); err != nil {
			return nil, false, eris.Wrap(err, "learner: audit promotion")
		}
		s.notifier.Broadcast(EventRulePromoted, toRuleResponse(rule))
	}
	return rule, promoted, nil
}

func (s *learnerService) Contest(ctx context.Context, queueKind, signature string) error {
	if err := s.rules.RecordContested(ctx, queueKind, signature); err != nil {
		return eris.Wrap(err, "learner: record contested")
	}
	return nil
}

func (s *learnerService) Revoke(ctx context.Context, ruleID uuid.UUID, operator string) (*RuleResponse, error) {
	rule, err := s.rules.Revoke(ctx, ruleID, operator)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("rule " + ruleID.String())
		}
		return nil, err
	}

	if err := s.audit.Record(ctx, operator, model.ActionRuleRevocation, model.EntityRule, rule.ID.String(),
		model.OutcomeSuccess, "ordinary rule revoked", map[string]interface{}{
			"queue_kind": rule.QueueKind,
			"signature":  rule.Signature,
		}); err != nil {
		return nil, eris.Wrap(err, "learner: audit revocation")
	}

	resp := toRuleResponse(rule)
	s.notifier.Broadcast(EventRuleRevoked, resp)
	return resp, nil
}

func (s *learnerService) Get(ctx context.Context, ruleID uuid.UUID) (*RuleResponse, error) {
	rule, err := s.rules.FindByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("rule " + ruleID.String())
		}
		return nil, err
	}
	return toRuleResponse(rule), nil
}

func (s *learnerService) List(ctx context.Context, queueKind string, page, limit int) ([]RuleResponse, int64, error) {
	rules, total, err := s.rules.List(ctx, queueKind, page, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]RuleResponse, 0, len(rules))
	for i := range rules {
		out = append(out, *toRuleResponse(&rules[i]))
	}
	return out, total, nil
}

func toRuleResponse(r *model.OrdinaryRule) *RuleResponse {
	resp := &RuleResponse{
		ID:            r.ID.String(),
		QueueKind:     r.QueueKind,
		Signature:     r.Signature,
		ActionType:    r.ActionType,
		ActionValue:   r.ActionValue,
		PatternText:   r.PatternText,
		ApprovalCount: r.ApprovalCount,
		Contested:     r.Contested,
		IsOrdinary:    r.IsOrdinary,
		Suspended:     r.Suspended(),
		RevokedBy:     r.RevokedBy,
		CreatedAt:     r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	resp.PromotedAt = formatTimePtr(r.PromotedAt)
	resp.LastAppliedAt = formatTimePtr(r.LastAppliedAt)
	resp.RevokedAt = formatTimePtr(r.RevokedAt)
	return resp
}
