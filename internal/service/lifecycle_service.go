package service

import (
	"context"
	"fmt"

	"backend/internal/apperr"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gorm.io/gorm"
)

// LifecycleService advances orders through their states as anomalies close
// and gates export readiness.
//
//	EXTRACTED -> VALIDATED        (0 open blocking anomalies)
//	EXTRACTED -> BLOCKED          (>=1 open blocking anomaly)
//	BLOCKED   -> VALIDATED        (last blocking anomaly closed)
//	VALIDATED -> READY_TO_EXPORT  (export requested)
//	READY_TO_EXPORT -> EXPORTED   (export confirmed)
//	EXPORTED  -> VALIDATED        (admin re-opens)
type LifecycleService interface {
	// Reevaluate recomputes the blocked/validated side of the machine from
	// the order's open blocking anomalies. Called after detector runs and
	// after every anomaly closure, inside the same transaction.
	Reevaluate(ctx context.Context, orderID uuid.UUID) (string, error)
	RequestExport(ctx context.Context, orderID uuid.UUID, operator string) error
	ConfirmExport(ctx context.Context, orderID uuid.UUID, operator string) error
	// Reopen returns an exported order to VALIDATED. Admin capability only.
	Reopen(ctx context.Context, orderID uuid.UUID, operator string) error
}

type lifecycleService struct {
	orders    repository.OrderRepository
	anomalies repository.AnomalyRepository
	audit     AuditService
}

func NewLifecycleService(orders repository.OrderRepository, anomalies repository.AnomalyRepository, audit AuditService) LifecycleService {
	return &lifecycleService{orders: orders, anomalies: anomalies, audit: audit}
}

func (s *lifecycleService) Reevaluate(ctx context.Context, orderID uuid.UUID) (string, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return "", apperr.NotFound("order " + orderID.String())
		}
		return "", eris.Wrap(err, "lifecycle: load order")
	}

	blocking, err := s.anomalies.CountOpenBlocking(ctx, orderID)
	if err != nil {
		return "", eris.Wrap(err, "lifecycle: count blocking anomalies")
	}

	var from, to string
	switch {
	case order.State == model.OrderStateExtracted && blocking == 0:
		from, to = model.OrderStateExtracted, model.OrderStateValidated
	case order.State == model.OrderStateExtracted && blocking > 0:
		from, to = model.OrderStateExtracted, model.OrderStateBlocked
	case order.State == model.OrderStateBlocked && blocking == 0:
		from, to = model.OrderStateBlocked, model.OrderStateValidated
	default:
		return order.State, nil
	}

	return s.transition(ctx, orderID, from, to, model.SystemOperator)
}

func (s *lifecycleService) RequestExport(ctx context.Context, orderID uuid.UUID, operator string) error {
	_, err := s.guardedTransition(ctx, orderID, model.OrderStateValidated, model.OrderStateReadyToExport, operator)
	return err
}

func (s *lifecycleService) ConfirmExport(ctx context.Context, orderID uuid.UUID, operator string) error {
	_, err := s.guardedTransition(ctx, orderID, model.OrderStateReadyToExport, model.OrderStateExported, operator)
	return err
}

func (s *lifecycleService) Reopen(ctx context.Context, orderID uuid.UUID, operator string) error {
	state, err := s.guardedTransition(ctx, orderID, model.OrderStateExported, model.OrderStateValidated, operator)
	if err != nil {
		return err
	}
	return s.audit.Record(ctx, operator, model.ActionReopenOrder, model.EntityOrder, orderID.String(),
		model.OutcomeSuccess, fmt.Sprintf("order re-opened to %s", state), nil)
}

// guardedTransition performs one explicit transition, failing with an
// invariant violation when the order is not in the expected source state.
func (s *lifecycleService) guardedTransition(ctx context.Context, orderID uuid.UUID, from, to, operator string) (string, error) {
	state, err := s.transition(ctx, orderID, from, to, operator)
	if err != nil {
		return "", err
	}
	if state != to {
		return state, apperr.Invariant(fmt.Sprintf("order %s is %s, expected %s", orderID, state, from))
	}
	return state, nil
}

func (s *lifecycleService) transition(ctx context.Context, orderID uuid.UUID, from, to, operator string) (string, error) {
	ok, err := s.orders.TransitionState(ctx, orderID, from, to)
	if err != nil {
		return "", eris.Wrapf(err, "lifecycle: transition %s -> %s", from, to)
	}
	if !ok {
		order, loadErr := s.orders.FindByID(ctx, orderID)
		if loadErr != nil {
			return "", eris.Wrap(loadErr, "lifecycle: reload order")
		}
		return order.State, nil
	}

	if err := s.audit.Record(ctx, operator, model.ActionStateTransition, model.EntityOrder, orderID.String(),
		model.OutcomeSuccess, fmt.Sprintf("%s -> %s", from, to), nil); err != nil {
		return "", eris.Wrap(err, "lifecycle: audit transition")
	}
	return to, nil
}
