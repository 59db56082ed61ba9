package service

import (
	"context"
	"testing"

	"backend/internal/apperr"
	"backend/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestCleanOrderIsValidated(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	resp, err := e.ingestion.Ingest(context.Background(), ingestRequest("ORD-1", cleanIngestLine(1)))
	require.NoError(t, err)
	require.Len(t, resp.Orders, 1)

	o := resp.Orders[0]
	assert.Equal(t, model.OrderStateValidated, o.State)
	assert.Zero(t, o.Anomalies)
	assert.Zero(t, o.Enqueued)
}

func TestIngestUnknownProductBlocksAndEnqueues(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	line := cleanIngestLine(1)
	line.ProductCode = "099999999"
	resp, err := e.ingestion.Ingest(context.Background(), ingestRequest("ORD-2", line))
	require.NoError(t, err)

	o := resp.Orders[0]
	assert.Equal(t, model.OrderStateBlocked, o.State)
	assert.Equal(t, 1, o.Anomalies)
	assert.Equal(t, 1, o.Enqueued)

	stats, err := e.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending[model.AnomalyKindAIC])
}

func TestIngestPriceAnomalyDoesNotBlock(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	line := cleanIngestLine(1)
	line.NetPrice = decimal.RequireFromString("12.00") // list price is 10.00
	resp, err := e.ingestion.Ingest(context.Background(), ingestRequest("ORD-3", line))
	require.NoError(t, err)

	// LISTINO is attention-level: the order validates but still queues the
	// anomaly for review.
	o := resp.Orders[0]
	assert.Equal(t, model.OrderStateValidated, o.State)
	assert.Equal(t, 1, o.Anomalies)
	assert.Equal(t, 1, o.Enqueued)
}

func TestIngestDuplicateContent(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	req := ingestRequest("ORD-4", cleanIngestLine(1))
	req.ContentHash = "abc123"

	_, err := e.ingestion.Ingest(context.Background(), req)
	require.NoError(t, err)

	_, err = e.ingestion.Ingest(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestIngestValidation(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	bad := ingestRequest("ORD-5", cleanIngestLine(1))
	bad.Origin = "CARRIER_PIGEON"
	_, err := e.ingestion.Ingest(ctx, bad)
	assert.Equal(t, apperr.KindInputValidation, apperr.KindOf(err))

	// Ordinals must be dense starting at 1.
	sparse := ingestRequest("ORD-6", cleanIngestLine(1), cleanIngestLine(3))
	_, err = e.ingestion.Ingest(ctx, sparse)
	assert.Equal(t, apperr.KindInputValidation, apperr.KindOf(err))

	// A parent ordinal must reference an existing sibling.
	orphanParent := 9
	line := cleanIngestLine(1)
	line.ParentOrdinal = &orphanParent
	_, err = e.ingestion.Ingest(ctx, ingestRequest("ORD-7", line))
	assert.Equal(t, apperr.KindInputValidation, apperr.KindOf(err))

	noOrders := ingestRequest("ORD-8", cleanIngestLine(1))
	noOrders.Orders = nil
	_, err = e.ingestion.Ingest(ctx, noOrders)
	assert.Equal(t, apperr.KindInputValidation, apperr.KindOf(err))
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	good := ingestRequest("ORD-9", cleanIngestLine(1))
	bad := ingestRequest("ORD-10", cleanIngestLine(1))
	bad.VendorCode = ""

	results, err := e.ingestion.IngestBatch(context.Background(), []IngestRequest{good, bad})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Empty(t, results[0].Error)
	require.NotNil(t, results[0].Response)
	assert.Equal(t, model.OrderStateValidated, results[0].Response.Orders[0].State)

	assert.NotEmpty(t, results[1].Error)
}
