package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/apperr"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ingestUnknownProduct ingests one order whose single line carries a code the
// catalogue does not know, producing exactly one AIC queue entry.
func ingestUnknownProduct(t *testing.T, e *testEnv, number string) (orderID, entryID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	line := cleanIngestLine(1)
	line.ProductCode = "099999999"
	resp, err := e.ingestion.Ingest(ctx, ingestRequest(number, line))
	require.NoError(t, err)
	require.Equal(t, model.OrderStateBlocked, resp.Orders[0].State)

	orderID = uuid.MustParse(resp.Orders[0].ID)
	entries, _, err := e.queue.List(ctx, listPending(model.AnomalyKindAIC))
	require.NoError(t, err)
	for _, entry := range entries {
		if entry.OrderID == resp.Orders[0].ID {
			return orderID, uuid.MustParse(entry.ID)
		}
	}
	t.Fatalf("no queue entry for order %s", number)
	return
}

func TestDecideRequiresClaim(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	_, entryID := ingestUnknownProduct(t, e, "ORD-Q1")

	_, err := e.queue.Decide(context.Background(), entryID, "anna", DecisionRequest{
		Decision: DecisionModify, OverrideValue: "025940016",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestDecideRejectsExpiredClaim(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	_, entryID := ingestUnknownProduct(t, e, "ORD-Q2")

	// Backdated claim, well past the TTL.
	ok, err := e.supervision.Claim(ctx, entryID, "anna", time.Now().Add(-model.ClaimTTL-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	_, err = e.queue.Decide(ctx, entryID, "anna", DecisionRequest{
		Decision: DecisionModify, OverrideValue: "025940016",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestDecideModifyCorrectsTheLine(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	orderID, entryID := ingestUnknownProduct(t, e, "ORD-Q3")
	require.NoError(t, e.queue.Claim(ctx, entryID, "anna"))

	resp, err := e.queue.Decide(ctx, entryID, "anna", DecisionRequest{
		Decision: DecisionModify, OverrideValue: "025940016", Note: "codice corretto",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SupervisionModified, resp.Status)
	assert.Equal(t, model.AnomalyResolved, resp.AnomalyState)
	assert.Equal(t, model.OrderStateValidated, resp.OrderState)
	assert.False(t, resp.RulePromoted)

	order, err := e.orders.FindByIDWithLines(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "025940016", order.Lines[0].ProductCode)
	assert.Empty(t, e.openAnomalies(t, orderID))
}

func TestDecideModifyValidatesTheCorrection(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	_, entryID := ingestUnknownProduct(t, e, "ORD-Q4")
	require.NoError(t, e.queue.Claim(ctx, entryID, "anna"))

	for _, value := range []string{"", "12345", "088888888"} { // empty, malformed, not in catalogue
		_, err := e.queue.Decide(ctx, entryID, "anna", DecisionRequest{
			Decision: DecisionModify, OverrideValue: value,
		})
		require.Error(t, err, "value %q", value)
		assert.Equal(t, apperr.KindInputValidation, apperr.KindOf(err))
	}
}

func TestDecideRejectDismisses(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	orderID, entryID := ingestUnknownProduct(t, e, "ORD-Q5")
	require.NoError(t, e.queue.Claim(ctx, entryID, "anna"))

	resp, err := e.queue.Decide(ctx, entryID, "anna", DecisionRequest{Decision: DecisionReject})
	require.NoError(t, err)
	assert.Equal(t, model.SupervisionRejected, resp.Status)
	assert.Equal(t, model.AnomalyDismissed, resp.AnomalyState)
	// Dismissing the only blocking anomaly releases the order.
	assert.Equal(t, model.OrderStateValidated, resp.OrderState)
	assert.Empty(t, e.openAnomalies(t, orderID))
}

func TestDecideApproveListinoKeepsExtractedPrice(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	line := cleanIngestLine(1)
	line.NetPrice = decimal.RequireFromString("12.00")
	resp, err := e.ingestion.Ingest(ctx, ingestRequest("ORD-Q6", line))
	require.NoError(t, err)

	entries, _, err := e.queue.List(ctx, listPending(model.AnomalyKindListino))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entryID := uuid.MustParse(entries[0].ID)

	require.NoError(t, e.queue.Claim(ctx, entryID, "anna"))
	decided, err := e.queue.Decide(ctx, entryID, "anna", DecisionRequest{Decision: DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, model.SupervisionApproved, decided.Status)

	// APPROVE on LISTINO confirms the extracted price.
	order, err := e.orders.FindByIDWithLines(ctx, uuid.MustParse(resp.Orders[0].ID))
	require.NoError(t, err)
	assert.Equal(t, "12", order.Lines[0].NetPrice.String())
}

func TestConsistentDecisionsPromoteAndAutoResolve(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	// Same vendor, same description, three orders: the signature repeats.
	decideAs := func(number, operator string) *DecisionResponse {
		_, entryID := ingestUnknownProduct(t, e, number)
		require.NoError(t, e.queue.Claim(ctx, entryID, operator))
		resp, err := e.queue.Decide(ctx, entryID, operator, DecisionRequest{
			Decision: DecisionModify, OverrideValue: "025940016",
		})
		require.NoError(t, err)
		return resp
	}

	assert.False(t, decideAs("ORD-L1", "anna").RulePromoted)
	assert.False(t, decideAs("ORD-L2", "anna").RulePromoted)
	// Third approval, second distinct operator: the rule becomes ordinary.
	assert.True(t, decideAs("ORD-L3", "bruno").RulePromoted)

	// The fourth identical order never reaches a human.
	line := cleanIngestLine(1)
	line.ProductCode = "099999999"
	resp, err := e.ingestion.Ingest(ctx, ingestRequest("ORD-L4", line))
	require.NoError(t, err)

	o := resp.Orders[0]
	assert.Equal(t, model.OrderStateValidated, o.State)
	assert.Equal(t, 1, o.Anomalies)
	assert.Equal(t, 1, o.AutoResolved)
	assert.Zero(t, o.Enqueued)

	order, err := e.orders.FindByIDWithLines(ctx, uuid.MustParse(o.ID))
	require.NoError(t, err)
	assert.Equal(t, "025940016", order.Lines[0].ProductCode)
}

func TestKnownPatternBoostsPriority(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	// First decision creates the candidate rule.
	_, entryID := ingestUnknownProduct(t, e, "ORD-P1")
	require.NoError(t, e.queue.Claim(ctx, entryID, "anna"))
	_, err := e.queue.Decide(ctx, entryID, "anna", DecisionRequest{
		Decision: DecisionModify, OverrideValue: "025940016",
	})
	require.NoError(t, err)

	// The next entry with the same signature is surfaced first.
	_, nextID := ingestUnknownProduct(t, e, "ORD-P2")
	entry, err := e.queue.Get(ctx, nextID)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Priority)
}

func TestBulkDecideAllOrNothing(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	_, first := ingestUnknownProduct(t, e, "ORD-B1")
	_, second := ingestUnknownProduct(t, e, "ORD-B2")

	// One entry held by someone else: the whole batch is refused.
	require.NoError(t, e.queue.Claim(ctx, second, "bruno"))
	_, err := e.queue.BulkDecide(ctx, []uuid.UUID{first, second}, "anna", DecisionRequest{
		Decision: DecisionModify, OverrideValue: "025940016",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	entry, err := e.queue.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, model.SupervisionPending, entry.Status)

	require.NoError(t, e.queue.Release(ctx, second, "bruno"))
	out, err := e.queue.BulkDecide(ctx, []uuid.UUID{first, second}, "anna", DecisionRequest{
		Decision: DecisionModify, OverrideValue: "025940016",
	})
	require.NoError(t, err)
	assert.Len(t, out.Decided, 2)
	assert.Equal(t, 2, out.OrderSets)
}

func TestQueueStatsCoverAllQueues(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	ingestUnknownProduct(t, e, "ORD-S1")

	stats, err := e.queue.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.Pending, len(model.QueueKinds))
	assert.Equal(t, int64(1), stats.Pending[model.AnomalyKindAIC])
	assert.Equal(t, int64(0), stats.Pending[model.AnomalyKindEspositore])
}

func TestListRejectsUnknownQueue(t *testing.T) {
	e := newTestEnv(t)

	_, _, err := e.queue.List(context.Background(), listPending("FANTASMA"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindInputValidation, apperr.KindOf(err))
}

func listPending(kind string) repository.SupervisionFilter {
	return repository.SupervisionFilter{QueueKind: kind, Page: 1, Limit: 50}
}
