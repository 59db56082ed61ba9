package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"backend/internal/apperr"
	"backend/internal/config"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ResetConfirmation is the phrase an admin must type to wipe the pipeline.
const ResetConfirmation = "RESET_COMPLETO"

type SystemStats struct {
	Orders         int64            `json:"orders"`
	Anomalies      int64            `json:"anomalies"`
	PendingByQueue map[string]int64 `json:"pending_by_queue"`
	RulesTotal     int64            `json:"rules_total"`
	RulesPromoted  int64            `json:"rules_promoted"`
	Operators      int64            `json:"operators"`
}

// AdminService covers the destructive and operational admin surface: full
// pipeline reset, JSON snapshot backup, and system counters.
type AdminService interface {
	// Reset wipes all ingested data. Learned rules, master data, operators
	// and the activity log are preserved. Requires the confirmation phrase.
	Reset(ctx context.Context, operator, confirmation string) (*repository.ResetCounts, error)
	// Backup writes a timestamped JSON snapshot and returns its path.
	Backup(ctx context.Context, operator string) (string, error)
	Stats(ctx context.Context) (*SystemStats, error)
}

type adminService struct {
	cfg         *config.Store
	maintenance repository.MaintenanceRepository
	orders      repository.OrderRepository
	anomalies   repository.AnomalyRepository
	supervision repository.SupervisionRepository
	rules       repository.RuleRepository
	operators   repository.OperatorRepository
	audit       AuditService
}

func NewAdminService(
	cfg *config.Store,
	maintenance repository.MaintenanceRepository,
	orders repository.OrderRepository,
	anomalies repository.AnomalyRepository,
	supervision repository.SupervisionRepository,
	rules repository.RuleRepository,
	operators repository.OperatorRepository,
	audit AuditService,
) AdminService {
	return &adminService{
		cfg:         cfg,
		maintenance: maintenance,
		orders:      orders,
		anomalies:   anomalies,
		supervision: supervision,
		rules:       rules,
		operators:   operators,
		audit:       audit,
	}
}

func (s *adminService) Reset(ctx context.Context, operator, confirmation string) (*repository.ResetCounts, error) {
	if confirmation != ResetConfirmation {
		return nil, apperr.Validation("reset requires the confirmation phrase " + ResetConfirmation)
	}

	counts, err := s.maintenance.ResetPipeline(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "admin: reset pipeline")
	}

	zap.L().Warn("pipeline reset",
		zap.String("operator", operator),
		zap.Int64("orders", counts.Orders),
		zap.Int64("acquisitions", counts.Acquisitions))

	if err := s.audit.Record(ctx, operator, model.ActionReset, model.EntityStore, "",
		model.OutcomeSuccess, "complete pipeline reset", map[string]interface{}{
			"acquisitions":        counts.Acquisitions,
			"orders":              counts.Orders,
			"lines":               counts.Lines,
			"anomalies":           counts.Anomalies,
			"supervision_entries": counts.SupervisionEntries,
		}); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *adminService) Backup(ctx context.Context, operator string) (string, error) {
	snap, err := s.maintenance.Snapshot(ctx)
	if err != nil {
		return "", eris.Wrap(err, "admin: snapshot")
	}

	dir := s.cfg.Get().Backup.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "admin: create backup dir")
	}

	path := filepath.Join(dir, fmt.Sprintf("backup_%s.json", snap.TakenAt.Format("20060102T150405")))
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "admin: encode snapshot")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", eris.Wrap(err, "admin: write snapshot")
	}

	if err := s.audit.Record(ctx, operator, model.ActionBackup, model.EntityStore, "",
		model.OutcomeSuccess, "snapshot written to "+path, map[string]interface{}{
			"orders": len(snap.Orders),
			"rules":  len(snap.Rules),
		}); err != nil {
		return "", err
	}
	return path, nil
}

func (s *adminService) Stats(ctx context.Context) (*SystemStats, error) {
	stats := &SystemStats{PendingByQueue: make(map[string]int64, len(model.QueueKinds))}

	var err error
	if stats.Orders, err = s.orders.CountAll(ctx); err != nil {
		return nil, err
	}
	if stats.Anomalies, err = s.anomalies.CountAll(ctx); err != nil {
		return nil, err
	}
	if stats.RulesTotal, err = s.rules.CountAll(ctx); err != nil {
		return nil, err
	}
	if stats.RulesPromoted, err = s.rules.CountPromoted(ctx); err != nil {
		return nil, err
	}
	if stats.Operators, err = s.operators.CountAll(ctx); err != nil {
		return nil, err
	}

	pending, err := s.supervision.CountPendingByQueue(ctx)
	if err != nil {
		return nil, err
	}
	for _, kind := range model.QueueKinds {
		stats.PendingByQueue[kind] = pending[kind]
	}
	return stats, nil
}
