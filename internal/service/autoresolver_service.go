package service

import (
	"context"
	"errors"
	"time"

	"backend/internal/config"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoResolverService applies promoted ordinary rules to the open anomalies
// of an order before any supervision entry is created. Runs inside the
// ingestion transaction.
//
// Anomalies are visited in deterministic order (kind, line ordinal, id). A
// soft deadline bounds the pass; anomalies not reached fall through to the
// supervision queues unchanged. Re-running the resolver on the same order is
// a no-op: closed anomalies stay closed.
type AutoResolverService interface {
	// Resolve returns how many anomalies were auto-resolved.
	Resolve(ctx context.Context, orderID uuid.UUID) (int, error)
}

type autoResolverService struct {
	cfg       *config.Store
	anomalies repository.AnomalyRepository
	rules     repository.RuleRepository
	correct   corrector
	audit     AuditService
}

func NewAutoResolverService(cfg *config.Store, anomalies repository.AnomalyRepository, rules repository.RuleRepository, orders repository.OrderRepository, audit AuditService) AutoResolverService {
	return &autoResolverService{
		cfg:       cfg,
		anomalies: anomalies,
		rules:     rules,
		correct:   corrector{orders: orders},
		audit:     audit,
	}
}

func (s *autoResolverService) Resolve(ctx context.Context, orderID uuid.UUID) (int, error) {
	cfg := s.cfg.Get()
	deadline := time.Now().Add(time.Duration(cfg.Resolver.SoftDeadlineMS) * time.Millisecond)

	open, err := s.anomalies.OpenByOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for i := range open {
		anomaly := &open[i]
		if anomaly.Kind == model.AnomalyKindDetectorFault {
			continue
		}
		if time.Now().After(deadline) {
			zap.L().Warn("auto-resolver deadline reached",
				zap.String("order_id", orderID.String()),
				zap.Int("remaining", len(open)-i))
			break
		}

		rule, err := s.rules.FindBySignature(ctx, anomaly.Kind, anomaly.Signature)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return resolved, err
		}
		if !rule.Applicable() {
			continue
		}

		beforeAfter, err := s.correct.apply(ctx, anomaly, rule.ActionType, rule.ActionValue)
		if err != nil {
			// A rule that no longer applies cleanly must not block ingestion;
			// the anomaly stays open and goes to its queue.
			zap.L().Warn("rule application failed, anomaly left open",
				zap.String("anomaly_id", anomaly.ID.String()),
				zap.String("rule_id", rule.ID.String()),
				zap.Error(err))
			continue
		}

		if err := s.anomalies.Close(ctx, anomaly.ID, model.AnomalyResolved, model.SystemOperator, &rule.ID); err != nil {
			return resolved, err
		}
		if err := s.anomalies.SetBeforeAfter(ctx, anomaly.ID, beforeAfter); err != nil {
			return resolved, err
		}
		if err := s.rules.Touch(ctx, rule.ID, time.Now()); err != nil {
			return resolved, err
		}
		if err := s.audit.Record(ctx, model.SystemOperator, model.ActionAutoResolution, model.EntityAnomaly, anomaly.ID.String(),
			model.OutcomeSuccess, "anomaly auto-resolved by ordinary rule", map[string]interface{}{
				"rule_id":     rule.ID.String(),
				"queue_kind":  anomaly.Kind,
				"signature":   anomaly.Signature,
				"action_type": rule.ActionType,
			}); err != nil {
			return resolved, err
		}
		resolved++
	}

	return resolved, nil
}
