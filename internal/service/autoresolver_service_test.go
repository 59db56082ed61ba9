package service

import (
	"context"
	"testing"

	"backend/internal/model"
	"backend/internal/pattern"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// promoteRule plants an already ordinary rule for the AIC signature of an
// unknown-product line with the standard test description.
func promoteRule(t *testing.T, e *testEnv) *model.OrdinaryRule {
	t.Helper()
	sig := pattern.AIC("ACME", "Aspirina C 10 cpr")
	rule, promoted, err := e.rules.RecordApproval(context.Background(), model.AnomalyKindAIC, sig,
		model.RuleActionSetProductCode, "025940016", "vendor=ACME description=aspirina c 10 cpr", "anna", 1, 1)
	require.NoError(t, err)
	require.True(t, promoted)
	return rule
}

func TestResolveAppliesOrdinaryRule(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	rule := promoteRule(t, e)

	line := cleanLine(1)
	line.ProductCode = "099999999"
	order := e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano",
		[]model.OrderLine{line})
	scanOne(t, e, order)

	resolved, err := e.resolver.Resolve(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	corrected, err := e.orders.FindByIDWithLines(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "025940016", corrected.Lines[0].ProductCode)

	closed, err := e.anomalies.FindByID(ctx, e.anomalyID(t, order.ID))
	require.NoError(t, err)
	assert.Equal(t, model.AnomalyResolved, closed.State)
	require.NotNil(t, closed.RuleID)
	assert.Equal(t, rule.ID, *closed.RuleID)
	assert.NotEmpty(t, closed.BeforeAfter)

	touched, err := e.rules.FindByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.NotNil(t, touched.LastAppliedAt)

	// Re-running on the same order is a no-op.
	resolved, err = e.resolver.Resolve(ctx, order.ID)
	require.NoError(t, err)
	assert.Zero(t, resolved)
}

func TestResolveSkipsSuspendedRule(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	rule := promoteRule(t, e)
	// Contested past its approvals: suspended, still promoted.
	require.NoError(t, e.rules.RecordContested(ctx, rule.QueueKind, rule.Signature))
	require.NoError(t, e.rules.RecordContested(ctx, rule.QueueKind, rule.Signature))

	line := cleanLine(1)
	line.ProductCode = "099999999"
	order := e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano",
		[]model.OrderLine{line})
	scanOne(t, e, order)

	resolved, err := e.resolver.Resolve(ctx, order.ID)
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Len(t, e.openAnomalies(t, order.ID), 1)
}

func TestResolveSkipsRevokedRule(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	rule := promoteRule(t, e)
	_, err := e.learner.Revoke(ctx, rule.ID, "admin")
	require.NoError(t, err)

	line := cleanLine(1)
	line.ProductCode = "099999999"
	order := e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano",
		[]model.OrderLine{line})
	scanOne(t, e, order)

	resolved, err := e.resolver.Resolve(ctx, order.ID)
	require.NoError(t, err)
	assert.Zero(t, resolved)
}

func TestResolveDeadlineLeavesAnomaliesForQueues(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	promoteRule(t, e)

	line := cleanLine(1)
	line.ProductCode = "099999999"
	order := e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano",
		[]model.OrderLine{line})
	scanOne(t, e, order)

	// Deadline already passed when the pass starts: the rule is not applied
	// and the anomaly falls through to its queue instead of being dropped.
	e.cfg.Get().Resolver.SoftDeadlineMS = -1

	resolved, err := e.resolver.Resolve(ctx, order.ID)
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Len(t, e.openAnomalies(t, order.ID), 1)

	enqueued, err := e.queue.Populate(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, enqueued)
}

func TestResolveIgnoresDetectorFaults(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	order := e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano",
		[]model.OrderLine{cleanLine(1)})
	fault := model.Anomaly{
		OrderID:        order.ID,
		Kind:           model.AnomalyKindDetectorFault,
		Severity:       model.SeverityAttention,
		State:          model.AnomalyOpen,
		OffendingValue: "catalogue unavailable",
	}
	require.NoError(t, e.anomalies.Create(ctx, &fault))

	resolved, err := e.resolver.Resolve(ctx, order.ID)
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Len(t, e.openAnomalies(t, order.ID), 1)
}

// anomalyID returns the id of the single anomaly of an order.
func (e *testEnv) anomalyID(t *testing.T, orderID uuid.UUID) uuid.UUID {
	t.Helper()
	var anomalies []model.Anomaly
	require.NoError(t, e.db.Where("order_id = ?", orderID).Find(&anomalies).Error)
	require.Len(t, anomalies, 1)
	return anomalies[0].ID
}
