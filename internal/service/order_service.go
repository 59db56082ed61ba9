package service

import (
	"context"
	"errors"

	"backend/internal/apperr"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderLineResponse struct {
	ID            string `json:"id"`
	Ordinal       int    `json:"ordinal"`
	ProductCode   string `json:"product_code"`
	Description   string `json:"description"`
	QtySold       int    `json:"qty_sold"`
	QtyGratis     int    `json:"qty_gratis"`
	QtyBonus      int    `json:"qty_bonus"`
	NetPrice      string `json:"net_price"`
	ListPrice     string `json:"list_price"`
	VATRate       string `json:"vat_rate"`
	IsDisplayCase bool   `json:"is_display_case"`
	CaseCode      string `json:"case_code,omitempty"`
	ParentOrdinal *int   `json:"parent_ordinal,omitempty"`
}

type AnomalyResponse struct {
	ID             string  `json:"id"`
	LineID         *string `json:"line_id"`
	Kind           string  `json:"kind"`
	Severity       string  `json:"severity"`
	State          string  `json:"state"`
	OffendingValue string  `json:"offending_value"`
	BeforeAfter    string  `json:"before_after,omitempty"`
	Context        string  `json:"context,omitempty"`
	ResolvedBy     *string `json:"resolved_by"`
	ResolvedAt     *string `json:"resolved_at"`
	RuleID         *string `json:"rule_id"`
}

type OrderResponse struct {
	ID               string              `json:"id"`
	AcquisitionID    string              `json:"acquisition_id"`
	VendorCode       string              `json:"vendor_code"`
	OrderNumber      string              `json:"order_number"`
	State            string              `json:"state"`
	CustomerVAT      string              `json:"customer_vat"`
	CustomerName     string              `json:"customer_name"`
	CustomerKey      string              `json:"customer_key"`
	LookupScore      string              `json:"lookup_score"`
	LookupStatus     string              `json:"lookup_status"`
	Lines            []OrderLineResponse `json:"lines,omitempty"`
	Anomalies        []AnomalyResponse   `json:"anomalies,omitempty"`
	CreatedAt        string              `json:"created_at"`
}

// OrderService is the read surface over ingested orders.
type OrderService interface {
	List(ctx context.Context, filter repository.OrderFilter) ([]OrderResponse, int64, error)
	Get(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error)
	// Anomalies returns the order's open anomalies in resolution order.
	Anomalies(ctx context.Context, orderID uuid.UUID) ([]AnomalyResponse, error)
}

type orderService struct {
	orders    repository.OrderRepository
	anomalies repository.AnomalyRepository
}

func NewOrderService(orders repository.OrderRepository, anomalies repository.AnomalyRepository) OrderService {
	return &orderService{orders: orders, anomalies: anomalies}
}

func (s *orderService) List(ctx context.Context, filter repository.OrderFilter) ([]OrderResponse, int64, error) {
	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, *toOrderResponse(&orders[i]))
	}
	return out, total, nil
}

func (s *orderService) Get(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	order, err := s.orders.FindByIDWithLines(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order " + orderID.String())
		}
		return nil, err
	}
	resp := toOrderResponse(order)

	open, err := s.anomalies.OpenByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := range open {
		resp.Anomalies = append(resp.Anomalies, toAnomalyResponse(&open[i]))
	}
	return resp, nil
}

func (s *orderService) Anomalies(ctx context.Context, orderID uuid.UUID) ([]AnomalyResponse, error) {
	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order " + orderID.String())
		}
		return nil, err
	}
	open, err := s.anomalies.OpenByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]AnomalyResponse, 0, len(open))
	for i := range open {
		out = append(out, toAnomalyResponse(&open[i]))
	}
	return out, nil
}

func toOrderResponse(o *model.Order) *OrderResponse {
	resp := &OrderResponse{
		ID:            o.ID.String(),
		AcquisitionID: o.AcquisitionID.String(),
		VendorCode:    o.VendorCode,
		OrderNumber:   o.OrderNumber,
		State:         o.State,
		CustomerVAT:   o.CustomerVAT,
		CustomerName:  o.CustomerName,
		CustomerKey:   o.CustomerKey,
		LookupScore:   o.LookupScore.StringFixed(2),
		LookupStatus:  o.LookupStatus,
		CreatedAt:     o.CreatedAt.Format(timeLayout),
	}
	for i := range o.Lines {
		l := &o.Lines[i]
		resp.Lines = append(resp.Lines, OrderLineResponse{
			ID:            l.ID.String(),
			Ordinal:       l.Ordinal,
			ProductCode:   l.ProductCode,
			Description:   l.Description,
			QtySold:       l.QtySold,
			QtyGratis:     l.QtyGratis,
			QtyBonus:      l.QtyBonus,
			NetPrice:      l.NetPrice.StringFixed(2),
			ListPrice:     l.ListPrice.StringFixed(2),
			VATRate:       l.VATRate.StringFixed(2),
			IsDisplayCase: l.IsDisplayCase,
			CaseCode:      l.CaseCode,
			ParentOrdinal: l.ParentOrdinal,
		})
	}
	return resp
}

func toAnomalyResponse(a *model.Anomaly) AnomalyResponse {
	resp := AnomalyResponse{
		ID:             a.ID.String(),
		Kind:           a.Kind,
		Severity:       a.Severity,
		State:          a.State,
		OffendingValue: a.OffendingValue,
		BeforeAfter:    a.BeforeAfter,
		Context:        a.Context,
		ResolvedBy:     a.ResolvedBy,
		ResolvedAt:     formatTimePtr(a.ResolvedAt),
	}
	if a.LineID != nil {
		id := a.LineID.String()
		resp.LineID = &id
	}
	if a.RuleID != nil {
		id := a.RuleID.String()
		resp.RuleID = &id
	}
	return resp
}
