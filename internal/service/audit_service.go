package service

import (
	"context"
	"encoding/json"

	"backend/internal/model"
	"backend/internal/repository"

	"go.uber.org/zap"
)

type AuditEntryResponse struct {
	ID          string `json:"id"`
	Operator    string `json:"operator"`
	Action      string `json:"action"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id"`
	Outcome     string `json:"outcome"`
	Description string `json:"description"`
	Details     string `json:"details"`
	CreatedAt   string `json:"created_at"`
}

type AuditService interface {
	// Record appends one activity log entry. details may be nil.
	Record(ctx context.Context, operator, action, entityKind, entityID, outcome, description string, details map[string]interface{}) error
	List(ctx context.Context, filter repository.AuditFilter) ([]AuditEntryResponse, int64, error)
}

type auditService struct {
	audits repository.AuditRepository
}

func NewAuditService(audits repository.AuditRepository) AuditService {
	return &auditService{audits: audits}
}

func (s *auditService) Record(ctx context.Context, operator, action, entityKind, entityID, outcome, description string, details map[string]interface{}) error {
	var encoded string
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			zap.L().Warn("audit: details not serializable", zap.Error(err))
		} else {
			encoded = string(raw)
		}
	}

	entry := model.ActivityLog{
		Operator:    operator,
		Action:      action,
		EntityKind:  entityKind,
		EntityID:    entityID,
		Outcome:     outcome,
		Description: description,
		Details:     encoded,
	}
	return s.audits.Append(ctx, &entry)
}

func (s *auditService) List(ctx context.Context, filter repository.AuditFilter) ([]AuditEntryResponse, int64, error) {
	logs, total, err := s.audits.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]AuditEntryResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, AuditEntryResponse{
			ID:          l.ID.String(),
			Operator:    l.Operator,
			Action:      l.Action,
			EntityKind:  l.EntityKind,
			EntityID:    l.EntityID,
			Outcome:     l.Outcome,
			Description: l.Description,
			Details:     l.Details,
			CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return out, total, nil
}
