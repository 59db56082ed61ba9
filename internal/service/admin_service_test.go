package service

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"backend/internal/apperr"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetRequiresConfirmationPhrase(t *testing.T) {
	e := newTestEnv(t)

	for _, phrase := range []string{"", "reset", "RESET", "RESET COMPLETO"} {
		_, err := e.admin.Reset(context.Background(), "admin", phrase)
		require.Error(t, err, "phrase %q", phrase)
		assert.Equal(t, apperr.KindInputValidation, apperr.KindOf(err))
	}
}

func TestResetWipesPipelineButKeepsRulesAndLog(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	line := cleanIngestLine(1)
	line.ProductCode = "099999999"
	_, err := e.ingestion.Ingest(ctx, ingestRequest("ORD-R1", line))
	require.NoError(t, err)

	_, _, err = e.rules.RecordApproval(ctx, model.AnomalyKindAIC, "sig-keep",
		model.RuleActionSetProductCode, "025940016", "", "anna", 3, 2)
	require.NoError(t, err)

	counts, err := e.admin.Reset(ctx, "admin", ResetConfirmation)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Acquisitions)
	assert.Equal(t, int64(1), counts.Orders)
	assert.Equal(t, int64(1), counts.Anomalies)
	assert.Equal(t, int64(1), counts.SupervisionEntries)

	stats, err := e.admin.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Orders)
	assert.Zero(t, stats.Anomalies)
	assert.Equal(t, int64(1), stats.RulesTotal)

	// Master data survives too: a re-ingest of the same content works.
	var customers int64
	require.NoError(t, e.db.Model(&model.Customer{}).Count(&customers).Error)
	assert.Equal(t, int64(2), customers)

	// The reset itself is on the activity log.
	logs, _, err := e.audit.List(ctx, repository.AuditFilter{Action: model.ActionReset})
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "admin", logs[0].Operator)
}

func TestBackupWritesSnapshot(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)
	ctx := context.Background()

	_, err := e.ingestion.Ingest(ctx, ingestRequest("ORD-R2", cleanIngestLine(1)))
	require.NoError(t, err)

	path, err := e.admin.Backup(ctx, "admin")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var snap map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Contains(t, snap, "orders")
	assert.Contains(t, snap, "rules")
	assert.Contains(t, snap, "taken_at")
}

func TestStatsCountPromotedRules(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, _, err := e.rules.RecordApproval(ctx, model.AnomalyKindAIC, "sig-1",
		model.RuleActionSetProductCode, "025940016", "", "anna", 1, 1)
	require.NoError(t, err)
	_, _, err = e.rules.RecordApproval(ctx, model.AnomalyKindListino, "sig-2",
		model.RuleActionSetNetPrice, "12.50", "", "anna", 3, 2)
	require.NoError(t, err)

	stats, err := e.admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.RulesTotal)
	assert.Equal(t, int64(1), stats.RulesPromoted)
	assert.Len(t, stats.PendingByQueue, len(model.QueueKinds))
}
