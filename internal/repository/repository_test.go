package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"backend/internal/database"
	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, lines int) *model.Order {
	t.Helper()
	ctx := context.Background()

	acq := model.Acquisition{Origin: model.OriginUpload, VendorCode: "ACME", ContentHash: uuid.NewString(), ReceivedAt: time.Now()}
	require.NoError(t, NewAcquisitionRepository(db).Create(ctx, &acq))

	order := model.Order{
		AcquisitionID: acq.ID,
		VendorCode:    "ACME",
		OrderNumber:   "ORD-" + uuid.NewString()[:8],
		State:         model.OrderStateExtracted,
	}
	var ls []model.OrderLine
	for i := 1; i <= lines; i++ {
		ls = append(ls, model.OrderLine{Ordinal: i, ProductCode: fmt.Sprintf("0345520%02d", i), Description: "prodotto"})
	}
	require.NoError(t, NewOrderRepository(db).PersistOrder(ctx, &order, ls))
	order.Lines = ls
	return &order
}

func seedAnomaly(t *testing.T, db *gorm.DB, order *model.Order, kind string, lineID *uuid.UUID) *model.Anomaly {
	t.Helper()
	severity := model.SeverityAttention
	if kind == model.AnomalyKindAIC || kind == model.AnomalyKindLookup {
		severity = model.SeverityBlocking
	}
	a := model.Anomaly{
		OrderID:   order.ID,
		LineID:    lineID,
		Kind:      kind,
		Severity:  severity,
		State:     model.AnomalyOpen,
		Signature: uuid.NewString(),
	}
	require.NoError(t, NewAnomalyRepository(db).Create(context.Background(), &a))
	return &a
}

func seedEntry(t *testing.T, db *gorm.DB, order *model.Order, anomaly *model.Anomaly) *model.SupervisionEntry {
	t.Helper()
	e := model.SupervisionEntry{
		AnomalyID: anomaly.ID,
		QueueKind: anomaly.Kind,
		OrderID:   order.ID,
		Status:    model.SupervisionPending,
	}
	require.NoError(t, NewSupervisionRepository(db).Create(context.Background(), &e))
	return &e
}

func TestSupervisionClaim(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewSupervisionRepository(db)

	order := seedOrder(t, db, 1)
	entry := seedEntry(t, db, order, seedAnomaly(t, db, order, model.AnomalyKindAIC, &order.Lines[0].ID))

	now := time.Now()
	ok, err := repo.Claim(ctx, entry.ID, "anna", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// A live claim blocks other operators.
	ok, err = repo.Claim(ctx, entry.ID, "bruno", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-claim by the holder is allowed.
	ok, err = repo.Claim(ctx, entry.ID, "anna", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// After the TTL the claim lapses and anyone can take it.
	ok, err = repo.Claim(ctx, entry.ID, "bruno", now.Add(model.ClaimTTL+2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSupervisionOneClaimPerOperatorPerQueue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewSupervisionRepository(db)

	order := seedOrder(t, db, 2)
	first := seedEntry(t, db, order, seedAnomaly(t, db, order, model.AnomalyKindAIC, &order.Lines[0].ID))
	second := seedEntry(t, db, order, seedAnomaly(t, db, order, model.AnomalyKindAIC, &order.Lines[1].ID))

	now := time.Now()
	ok, err := repo.Claim(ctx, first.ID, "anna", now)
	require.NoError(t, err)
	require.True(t, ok)

	// Second claim in the same queue while the first is live: denied.
	ok, err = repo.Claim(ctx, second.ID, "anna", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	// Releasing the first claim frees the operator.
	require.NoError(t, repo.Release(ctx, first.ID, "anna"))
	ok, err = repo.Claim(ctx, second.ID, "anna", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSupervisionDecideIsFinal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewSupervisionRepository(db)

	order := seedOrder(t, db, 1)
	entry := seedEntry(t, db, order, seedAnomaly(t, db, order, model.AnomalyKindListino, &order.Lines[0].ID))

	now := time.Now()
	ok, err := repo.Decide(ctx, entry.ID, model.SupervisionApproved, "anna", "ok", "", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second decision on the same entry is stale.
	ok, err = repo.Decide(ctx, entry.ID, model.SupervisionRejected, "bruno", "no", "", now)
	require.NoError(t, err)
	assert.False(t, ok)

	decided, err := repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SupervisionApproved, decided.Status)
	assert.Equal(t, "anna", *decided.DecidedBy)
	assert.Nil(t, decided.ClaimedBy)
}

func TestSupervisionClaimBatchAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewSupervisionRepository(db)

	order := seedOrder(t, db, 2)
	first := seedEntry(t, db, order, seedAnomaly(t, db, order, model.AnomalyKindListino, &order.Lines[0].ID))
	second := seedEntry(t, db, order, seedAnomaly(t, db, order, model.AnomalyKindListino, &order.Lines[1].ID))

	now := time.Now()
	ok, err := repo.Claim(ctx, second.ID, "bruno", now)
	require.NoError(t, err)
	require.True(t, ok)

	// One entry is held by someone else: nothing is claimed.
	ok, err = repo.ClaimBatch(ctx, []uuid.UUID{first.ID, second.ID}, "anna", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	reloaded, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.ClaimedBy)

	// Once the conflicting claim is gone the batch succeeds.
	require.NoError(t, repo.Release(ctx, second.ID, "bruno"))
	ok, err = repo.ClaimBatch(ctx, []uuid.UUID{first.ID, second.ID}, "anna", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRuleApprovalPromotesAtThresholds(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRuleRepository(db)

	sig := "a1b2c3"
	approve := func(operator string) (*model.OrdinaryRule, bool) {
		rule, promoted, err := repo.RecordApproval(ctx, model.AnomalyKindAIC, sig,
			model.RuleActionSetProductCode, "034552011", "vendor=ACME description=aspirina", operator, 3, 2)
		require.NoError(t, err)
		return rule, promoted
	}

	rule, promoted := approve("anna")
	assert.False(t, promoted)
	assert.Equal(t, 1, rule.ApprovalCount)

	_, promoted = approve("anna")
	assert.False(t, promoted)

	// Third approval, second distinct operator: both thresholds met.
	rule, promoted = approve("bruno")
	assert.True(t, promoted)
	assert.True(t, rule.IsOrdinary)
	assert.Equal(t, 3, rule.ApprovalCount)
	assert.NotNil(t, rule.PromotedAt)

	// Further approvals never re-promote.
	rule, promoted = approve("carla")
	assert.False(t, promoted)
	assert.True(t, rule.IsOrdinary)
	assert.Equal(t, 4, rule.ApprovalCount)
}

func TestRuleSingleOperatorCannotPromote(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRuleRepository(db)

	var rule *model.OrdinaryRule
	for i := 0; i < 5; i++ {
		var err error
		var promoted bool
		rule, promoted, err = repo.RecordApproval(ctx, model.AnomalyKindListino, "sig-solo",
			model.RuleActionSetNetPrice, "12.50", "", "anna", 3, 2)
		require.NoError(t, err)
		assert.False(t, promoted)
	}
	assert.False(t, rule.IsOrdinary)
	assert.Equal(t, 5, rule.ApprovalCount)
}

func TestRuleContestedSuspends(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRuleRepository(db)

	rule, _, err := repo.RecordApproval(ctx, model.AnomalyKindLookup, "sig-x",
		model.RuleActionSetCustomerKey, "C001", "", "anna", 3, 2)
	require.NoError(t, err)

	require.NoError(t, repo.RecordContested(ctx, model.AnomalyKindLookup, "sig-x"))
	require.NoError(t, repo.RecordContested(ctx, model.AnomalyKindLookup, "sig-x"))

	reloaded, err := repo.FindByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Contested)
	assert.True(t, reloaded.Suspended())
	assert.False(t, reloaded.Applicable())
}

func TestRuleContestedBeforeFirstApproval(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRuleRepository(db)

	// Five rejections land before anyone approves the pattern.
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.RecordContested(ctx, model.AnomalyKindAIC, "sig-c"))
	}

	var promoted bool
	for _, operator := range []string{"anna", "anna", "bruno"} {
		var err error
		_, promoted, err = repo.RecordApproval(ctx, model.AnomalyKindAIC, "sig-c",
			model.RuleActionSetProductCode, "034552011", "vendor=ACME description=aspirina", operator, 3, 2)
		require.NoError(t, err)
	}
	require.True(t, promoted)

	rule, err := repo.FindBySignature(ctx, model.AnomalyKindAIC, "sig-c")
	require.NoError(t, err)
	assert.Equal(t, 5, rule.Contested)
	assert.Equal(t, 3, rule.ApprovalCount)
	assert.Equal(t, model.RuleActionSetProductCode, rule.ActionType)
	assert.True(t, rule.Suspended())
	assert.False(t, rule.Applicable())
}

func TestRuleRevoke(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRuleRepository(db)

	rule, _, err := repo.RecordApproval(ctx, model.AnomalyKindAIC, "sig-r",
		model.RuleActionSetProductCode, "034552011", "", "anna", 1, 1)
	require.NoError(t, err)
	require.True(t, rule.IsOrdinary)

	revoked, err := repo.Revoke(ctx, rule.ID, "admin")
	require.NoError(t, err)
	assert.False(t, revoked.IsOrdinary)
	assert.NotNil(t, revoked.RevokedAt)
	assert.False(t, revoked.Applicable())

	// Revoking twice is a conflict.
	_, err = repo.Revoke(ctx, rule.ID, "admin")
	assert.Error(t, err)
}

func TestOrderTransitionStateIsConditional(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	order := seedOrder(t, db, 1)

	ok, err := repo.TransitionState(ctx, order.ID, model.OrderStateExtracted, model.OrderStateValidated)
	require.NoError(t, err)
	assert.True(t, ok)

	// Wrong source state: no flip.
	ok, err = repo.TransitionState(ctx, order.ID, model.OrderStateExtracted, model.OrderStateBlocked)
	require.NoError(t, err)
	assert.False(t, ok)

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateValidated, reloaded.State)
}

func TestAnomalyOpenByOrderIsDeterministic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewAnomalyRepository(db)

	order := seedOrder(t, db, 3)
	// Created out of order on purpose.
	seedAnomaly(t, db, order, model.AnomalyKindListino, &order.Lines[2].ID)
	seedAnomaly(t, db, order, model.AnomalyKindAIC, &order.Lines[1].ID)
	seedAnomaly(t, db, order, model.AnomalyKindAIC, &order.Lines[0].ID)
	seedAnomaly(t, db, order, model.AnomalyKindLookup, nil)

	open, err := repo.OpenByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, open, 4)
	assert.Equal(t, model.AnomalyKindAIC, open[0].Kind)
	assert.Equal(t, &order.Lines[0].ID, open[0].LineID)
	assert.Equal(t, model.AnomalyKindAIC, open[1].Kind)
	assert.Equal(t, &order.Lines[1].ID, open[1].LineID)
	assert.Equal(t, model.AnomalyKindListino, open[2].Kind)
	assert.Equal(t, model.AnomalyKindLookup, open[3].Kind)
}

func TestAcquisitionDeleteCascadesButKeepsRules(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	order := seedOrder(t, db, 1)
	anomaly := seedAnomaly(t, db, order, model.AnomalyKindAIC, &order.Lines[0].ID)
	seedEntry(t, db, order, anomaly)

	ruleRepo := NewRuleRepository(db)
	rule, _, err := ruleRepo.RecordApproval(ctx, model.AnomalyKindAIC, anomaly.Signature,
		model.RuleActionSetProductCode, "034552011", "", "anna", 1, 1)
	require.NoError(t, err)

	require.NoError(t, NewAcquisitionRepository(db).Delete(ctx, order.AcquisitionID))

	var orders, lines, anomalies, entries int64
	require.NoError(t, db.Model(&model.Order{}).Count(&orders).Error)
	require.NoError(t, db.Model(&model.OrderLine{}).Count(&lines).Error)
	require.NoError(t, db.Model(&model.Anomaly{}).Count(&anomalies).Error)
	require.NoError(t, db.Model(&model.SupervisionEntry{}).Count(&entries).Error)
	assert.Zero(t, orders)
	assert.Zero(t, lines)
	assert.Zero(t, anomalies)
	assert.Zero(t, entries)

	// Rules outlive the orders they were learned from.
	kept, err := ruleRepo.FindByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, kept.IsOrdinary)
}
