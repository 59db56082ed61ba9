package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/apperr"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gorm.io/gorm"
)

// Decisions an operator can take on a queue entry.
const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"
	DecisionModify  = "MODIFY"
)

type QueueEntryResponse struct {
	ID             string  `json:"id"`
	QueueKind      string  `json:"queue_kind"`
	AnomalyID      string  `json:"anomaly_id"`
	OrderID        string  `json:"order_id"`
	Status         string  `json:"status"`
	Severity       string  `json:"severity"`
	OffendingValue string  `json:"offending_value"`
	Context        string  `json:"context"`
	Note           string  `json:"note"`
	Priority       int     `json:"priority"`
	ClaimedBy      *string `json:"claimed_by"`
	ClaimedAt      *string `json:"claimed_at"`
	DecidedBy      *string `json:"decided_by"`
	DecidedAt      *string `json:"decided_at"`
	CreatedAt      string  `json:"created_at"`
}

type DecisionRequest struct {
	Decision      string `json:"decision" binding:"required"`
	OverrideValue string `json:"override_value"`
	Note          string `json:"note"`
}

type DecisionResponse struct {
	EntryID      string `json:"entry_id"`
	OrderID      string `json:"order_id"`
	Status       string `json:"status"`
	AnomalyState string `json:"anomaly_state"`
	OrderState   string `json:"order_state"`
	RulePromoted bool   `json:"rule_promoted"`
}

type BulkDecisionResponse struct {
	Decided   []DecisionResponse `json:"decided"`
	OrderSets int                `json:"order_sets"`
}

type QueueStats struct {
	Pending map[string]int64 `json:"pending"`
}

// QueueService is the human side of the anomaly pipeline: four supervision
// queues, claim/decide semantics, and the hook into the learner so every
// consistent decision accumulates toward an ordinary rule.
type QueueService interface {
	// Populate creates one supervision entry per open queue-routable anomaly
	// of the order. Already enqueued anomalies are skipped.
	Populate(ctx context.Context, orderID uuid.UUID) (int, error)
	List(ctx context.Context, filter repository.SupervisionFilter) ([]QueueEntryResponse, int64, error)
	Get(ctx context.Context, entryID uuid.UUID) (*QueueEntryResponse, error)
	// Claim takes the entry for operator for ClaimTTL. One live claim per
	// operator per queue.
	Claim(ctx context.Context, entryID uuid.UUID, operator string) error
	Release(ctx context.Context, entryID uuid.UUID, operator string) error
	// Decide finalizes a claimed entry: corrects the order data, feeds the
	// learner, closes the anomaly and reevaluates the order state, all in one
	// transaction. The operator must hold a live claim.
	Decide(ctx context.Context, entryID uuid.UUID, operator string, req DecisionRequest) (*DecisionResponse, error)
	// BulkDecide applies one decision to many entries atomically: either all
	// entries are claimed and decided or none are.
	BulkDecide(ctx context.Context, entryIDs []uuid.UUID, operator string, req DecisionRequest) (*BulkDecisionResponse, error)
	Stats(ctx context.Context) (*QueueStats, error)
}

type queueService struct {
	txManager   repository.TransactionManager
	supervision repository.SupervisionRepository
	anomalies   repository.AnomalyRepository
	orders      repository.OrderRepository
	rules       repository.RuleRepository
	master      repository.MasterDataRepository
	correct     corrector
	learner     LearnerService
	lifecycle   LifecycleService
	audit       AuditService
	notifier    Notifier
}

func NewQueueService(
	txManager repository.TransactionManager,
	supervision repository.SupervisionRepository,
	anomalies repository.AnomalyRepository,
	orders repository.OrderRepository,
	rules repository.RuleRepository,
	master repository.MasterDataRepository,
	learner LearnerService,
	lifecycle LifecycleService,
	audit AuditService,
	notifier Notifier,
) QueueService {
	return &queueService{
		txManager:   txManager,
		supervision: supervision,
		anomalies:   anomalies,
		orders:      orders,
		rules:       rules,
		master:      master,
		correct:     corrector{orders: orders},
		learner:     learner,
		lifecycle:   lifecycle,
		audit:       audit,
		notifier:    notifier,
	}
}

func (s *queueService) Populate(ctx context.Context, orderID uuid.UUID) (int, error) {
	open, err := s.anomalies.OpenByOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range open {
		anomaly := &open[i]
		if !isQueueKind(anomaly.Kind) {
			continue
		}
		if anomaly.Supervision != nil {
			continue
		}

		// Known pattern, not yet ordinary: surface it first so approvals
		// accumulate faster.
		priority := 0
		if _, err := s.rules.FindBySignature(ctx, anomaly.Kind, anomaly.Signature); err == nil {
			priority = 1
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return created, err
		}

		entry := model.SupervisionEntry{
			AnomalyID: anomaly.ID,
			QueueKind: anomaly.Kind,
			OrderID:   anomaly.OrderID,
			Status:    model.SupervisionPending,
			Context:   anomaly.Context,
			Priority:  priority,
		}
		if err := s.supervision.Create(ctx, &entry); err != nil {
			return created, eris.Wrap(err, "queue: enqueue anomaly")
		}
		created++
	}
	return created, nil
}

func (s *queueService) List(ctx context.Context, filter repository.SupervisionFilter) ([]QueueEntryResponse, int64, error) {
	if filter.QueueKind != "" && !isQueueKind(filter.QueueKind) {
		return nil, 0, apperr.Validation("unknown queue " + filter.QueueKind)
	}

	entries, total, err := s.supervision.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]QueueEntryResponse, 0, len(entries))
	for i := range entries {
		resp, err := s.toEntryResponse(ctx, &entries[i])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *resp)
	}
	return out, total, nil
}

func (s *queueService) Get(ctx context.Context, entryID uuid.UUID) (*QueueEntryResponse, error) {
	entry, err := s.supervision.FindByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("queue entry " + entryID.String())
		}
		return nil, err
	}
	return s.toEntryResponse(ctx, entry)
}

func (s *queueService) Claim(ctx context.Context, entryID uuid.UUID, operator string) error {
	ok, err := s.supervision.Claim(ctx, entryID, operator, time.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("queue entry " + entryID.String())
		}
		return err
	}
	if !ok {
		return apperr.Conflict("entry already claimed or operator holds a claim in this queue")
	}
	return nil
}

func (s *queueService) Release(ctx context.Context, entryID uuid.UUID, operator string) error {
	return s.supervision.Release(ctx, entryID, operator)
}

func (s *queueService) Decide(ctx context.Context, entryID uuid.UUID, operator string, req DecisionRequest) (*DecisionResponse, error) {
	var resp *DecisionResponse
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		resp, err = s.decideOne(txCtx, entryID, operator, req, model.ActionQueueDecision)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Broadcast(EventQueueUpdated, resp)
	if resp.OrderState == model.OrderStateValidated {
		s.notifier.Broadcast(EventOrderReleased, resp)
	}
	return resp, nil
}

func (s *queueService) BulkDecide(ctx context.Context, entryIDs []uuid.UUID, operator string, req DecisionRequest) (*BulkDecisionResponse, error) {
	if len(entryIDs) == 0 {
		return nil, apperr.Validation("no entries to decide")
	}

	var out BulkDecisionResponse
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		ok, err := s.supervision.ClaimBatch(txCtx, entryIDs, operator, time.Now())
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("one or more entries are claimed by another operator")
		}

		orders := make(map[string]struct{})
		for _, id := range entryIDs {
			resp, err := s.decideOne(txCtx, id, operator, req, model.ActionQueueDecision)
			if err != nil {
				return eris.Wrapf(err, "bulk decision on entry %s", id)
			}
			out.Decided = append(out.Decided, *resp)
			orders[resp.OrderID] = struct{}{}
		}
		out.OrderSets = len(orders)

		return s.audit.Record(txCtx, operator, model.ActionBulkDecision, model.EntitySupervision, "",
			model.OutcomeSuccess, fmt.Sprintf("%s applied to %d entries", req.Decision, len(entryIDs)),
			map[string]interface{}{"decision": req.Decision, "entries": len(entryIDs)})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Broadcast(EventQueueUpdated, out)
	return &out, nil
}

// decideOne runs inside the caller's transaction.
func (s *queueService) decideOne(ctx context.Context, entryID uuid.UUID, operator string, req DecisionRequest, auditAction string) (*DecisionResponse, error) {
	entry, err := s.supervision.FindByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("queue entry " + entryID.String())
		}
		return nil, err
	}
	if entry.Status != model.SupervisionPending {
		return nil, apperr.Conflict("entry already decided")
	}

	now := time.Now()
	if entry.ClaimedBy == nil || *entry.ClaimedBy != operator {
		return nil, apperr.Conflict("entry not claimed by " + operator)
	}
	if entry.ClaimExpired(now) {
		return nil, apperr.Conflict("claim expired, re-claim the entry")
	}

	anomaly, err := s.anomalies.FindByID(ctx, entry.AnomalyID)
	if err != nil {
		return nil, eris.Wrap(err, "queue: load anomaly")
	}
	if anomaly.State != model.AnomalyOpen {
		return nil, apperr.Conflict("anomaly already closed")
	}

	status, err := decisionStatus(req.Decision, req.OverrideValue)
	if err != nil {
		return nil, err
	}

	resp := DecisionResponse{EntryID: entry.ID.String(), OrderID: entry.OrderID.String(), Status: status}

	switch status {
	case model.SupervisionApproved, model.SupervisionModified:
		value, err := s.resolveActionValue(ctx, anomaly, status, req.OverrideValue)
		if err != nil {
			return nil, err
		}
		actionType := actionTypeFor(anomaly.Kind)

		beforeAfter, err := s.correct.apply(ctx, anomaly, actionType, value)
		if err != nil {
			return nil, err
		}
		if err := s.anomalies.SetBeforeAfter(ctx, anomaly.ID, beforeAfter); err != nil {
			return nil, err
		}
		if anomaly.LineID != nil && actionType != model.RuleActionAcceptBand {
			if err := s.audit.Record(ctx, operator, model.ActionLineCorrection, model.EntityOrderLine, anomaly.LineID.String(),
				model.OutcomeSuccess, actionType, map[string]interface{}{"value": value}); err != nil {
				return nil, err
			}
		}

		patternText, err := s.patternText(ctx, anomaly)
		if err != nil {
			return nil, err
		}
		_, promoted, err := s.learner.Approve(ctx, anomaly.Kind, anomaly.Signature, actionType, value, patternText, operator)
		if err != nil {
			return nil, err
		}
		resp.RulePromoted = promoted

		if err := s.anomalies.Close(ctx, anomaly.ID, model.AnomalyResolved, operator, nil); err != nil {
			return nil, err
		}
		resp.AnomalyState = model.AnomalyResolved

	case model.SupervisionRejected:
		if err := s.learner.Contest(ctx, anomaly.Kind, anomaly.Signature); err != nil {
			return nil, err
		}
		if err := s.anomalies.Close(ctx, anomaly.ID, model.AnomalyDismissed, operator, nil); err != nil {
			return nil, err
		}
		resp.AnomalyState = model.AnomalyDismissed
	}

	ok, err := s.supervision.Decide(ctx, entry.ID, status, operator, req.Note, req.OverrideValue, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("entry decided concurrently")
	}

	if err := s.audit.Record(ctx, operator, auditAction, model.EntitySupervision, entry.ID.String(),
		model.OutcomeSuccess, fmt.Sprintf("%s on %s queue", status, entry.QueueKind),
		map[string]interface{}{
			"anomaly_id": anomaly.ID.String(),
			"order_id":   entry.OrderID.String(),
			"decision":   req.Decision,
			"override":   req.OverrideValue,
		}); err != nil {
		return nil, err
	}

	state, err := s.lifecycle.Reevaluate(ctx, entry.OrderID)
	if err != nil {
		return nil, err
	}
	resp.OrderState = state
	return &resp, nil
}

// resolveActionValue determines the corrective value of an approval. MODIFY
// always carries the operator's override; APPROVE falls back to the
// kind-specific default when one exists.
func (s *queueService) resolveActionValue(ctx context.Context, anomaly *model.Anomaly, status, override string) (string, error) {
	value := override

	if value == "" {
		switch anomaly.Kind {
		case model.AnomalyKindListino:
			// Accepting the anomaly means the extracted price is right.
			value = anomaly.OffendingValue
		case model.AnomalyKindLookup:
			// Accepting means the top candidate is right.
			value = topCandidateKey(anomaly.Context)
		case model.AnomalyKindEspositore:
			value = contextField(anomaly.Context, "deviation_band")
		}
	}
	if value == "" {
		return "", apperr.Validation("decision on " + anomaly.Kind + " requires a correction value")
	}

	switch anomaly.Kind {
	case model.AnomalyKindAIC:
		if len(value) != 9 || !digitsOnly(value) {
			return "", apperr.Validation("product identifier must be 9 digits")
		}
		if _, err := s.master.ProductByCode(ctx, value); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", apperr.Validation("product identifier " + value + " not in catalogue")
			}
			return "", err
		}
	case model.AnomalyKindLookup:
		if _, err := s.master.CustomerByCode(ctx, value); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", apperr.Validation("customer key " + value + " not in directory")
			}
			return "", err
		}
	}

	return value, nil
}

// patternText renders the human-readable restatement of the pattern stored
// alongside the rule.
func (s *queueService) patternText(ctx context.Context, anomaly *model.Anomaly) (string, error) {
	order, err := s.orders.FindByID(ctx, anomaly.OrderID)
	if err != nil {
		return "", eris.Wrap(err, "queue: load order for pattern")
	}

	switch anomaly.Kind {
	case model.AnomalyKindAIC:
		return fmt.Sprintf("vendor=%s description=%s", order.VendorCode, contextField(anomaly.Context, "normalized_description")), nil
	case model.AnomalyKindListino:
		product := ""
		if anomaly.Line != nil {
			product = anomaly.Line.ProductCode
		}
		return fmt.Sprintf("vendor=%s product=%s price=%s", order.VendorCode, product, anomaly.OffendingValue), nil
	case model.AnomalyKindLookup:
		return fmt.Sprintf("vat=%s name=%s", contextField(anomaly.Context, "vat"), contextField(anomaly.Context, "name")), nil
	case model.AnomalyKindEspositore:
		caseCode := ""
		if anomaly.Line != nil {
			caseCode = anomaly.Line.CaseCode
		}
		return fmt.Sprintf("vendor=%s case=%s band=%s", order.VendorCode, caseCode, contextField(anomaly.Context, "deviation_band")), nil
	default:
		return "", nil
	}
}

func (s *queueService) Stats(ctx context.Context) (*QueueStats, error) {
	counts, err := s.supervision.CountPendingByQueue(ctx)
	if err != nil {
		return nil, err
	}
	pending := make(map[string]int64, len(model.QueueKinds))
	for _, kind := range model.QueueKinds {
		pending[kind] = counts[kind]
	}
	return &QueueStats{Pending: pending}, nil
}

func (s *queueService) toEntryResponse(ctx context.Context, entry *model.SupervisionEntry) (*QueueEntryResponse, error) {
	anomaly, err := s.anomalies.FindByID(ctx, entry.AnomalyID)
	if err != nil {
		return nil, eris.Wrap(err, "queue: load entry anomaly")
	}
	return &QueueEntryResponse{
		ID:             entry.ID.String(),
		QueueKind:      entry.QueueKind,
		AnomalyID:      entry.AnomalyID.String(),
		OrderID:        entry.OrderID.String(),
		Status:         entry.Status,
		Severity:       anomaly.Severity,
		OffendingValue: anomaly.OffendingValue,
		Context:        entry.Context,
		Note:           entry.Note,
		Priority:       entry.Priority,
		ClaimedBy:      entry.ClaimedBy,
		ClaimedAt:      formatTimePtr(entry.ClaimedAt),
		DecidedBy:      entry.DecidedBy,
		DecidedAt:      formatTimePtr(entry.DecidedAt),
		CreatedAt:      entry.CreatedAt.Format(timeLayout),
	}, nil
}

func decisionStatus(decision, override string) (string, error) {
	switch decision {
	case DecisionApprove:
		return model.SupervisionApproved, nil
	case DecisionModify:
		if override == "" {
			return "", apperr.Validation("MODIFY requires an override value")
		}
		return model.SupervisionModified, nil
	case DecisionReject:
		return model.SupervisionRejected, nil
	default:
		return "", apperr.Validation("unknown decision " + decision)
	}
}

func isQueueKind(kind string) bool {
	for _, k := range model.QueueKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func contextField(raw, field string) string {
	if raw == "" {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return ""
	}
	if v, ok := m[field].(string); ok {
		return v
	}
	return ""
}

func topCandidateKey(raw string) string {
	if raw == "" {
		return ""
	}
	var m struct {
		Candidates []struct {
			CustomerKey string `json:"customer_key"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil || len(m.Candidates) == 0 {
		return ""
	}
	return m.Candidates[0].CustomerKey
}
