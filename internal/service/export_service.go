package service

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/apperr"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gorm.io/gorm"
)

// ExportLine mirrors the management-system line record. Field order is the
// wire order; it never changes between releases.
type ExportLine struct {
	Ordinal      int    `json:"ordinal"`
	ProductCode  string `json:"product_code"`
	Description  string `json:"description"`
	QtySold      int    `json:"qty_sold"`
	QtyGratis    int    `json:"qty_gratis"`
	QtyBonus     int    `json:"qty_bonus"`
	Discount1    string `json:"discount1"`
	Discount2    string `json:"discount2"`
	Discount3    string `json:"discount3"`
	Discount4    string `json:"discount4"`
	NetPrice     string `json:"net_price"`
	ListPrice    string `json:"list_price"`
	PublicPrice  string `json:"public_price"`
	VATRate      string `json:"vat_rate"`
	VATIncluded  bool   `json:"vat_included"`
	CaseCode     string `json:"case_code,omitempty"`
	ParentLine   *int   `json:"parent_line,omitempty"`
}

// ExportPayload is the record handed to the management system.
type ExportPayload struct {
	OrderID             string       `json:"order_id"`
	VendorCode          string       `json:"vendor_code"`
	OrderNumber         string       `json:"order_number"`
	OrderDate           string       `json:"order_date,omitempty"`
	DeliveryDate        string       `json:"delivery_date,omitempty"`
	ResolvedCustomerKey string       `json:"resolved_customer_key"`
	Lines               []ExportLine `json:"lines"`
}

// ExportService hands validated orders to the downstream management system.
// An order is exportable only from READY_TO_EXPORT, which in turn is
// reachable only from VALIDATED, so no order with open blocking anomalies can
// ever leave.
type ExportService interface {
	// Request marks a validated order ready for export.
	Request(ctx context.Context, orderID uuid.UUID, operator string) error
	// Export builds the payload and confirms the export in one transaction.
	Export(ctx context.Context, orderID uuid.UUID, operator string) (*ExportPayload, error)
}

type exportService struct {
	txManager repository.TransactionManager
	orders    repository.OrderRepository
	lifecycle LifecycleService
	audit     AuditService
}

func NewExportService(txManager repository.TransactionManager, orders repository.OrderRepository, lifecycle LifecycleService, audit AuditService) ExportService {
	return &exportService{txManager: txManager, orders: orders, lifecycle: lifecycle, audit: audit}
}

func (s *exportService) Request(ctx context.Context, orderID uuid.UUID, operator string) error {
	return s.lifecycle.RequestExport(ctx, orderID, operator)
}

func (s *exportService) Export(ctx context.Context, orderID uuid.UUID, operator string) (*ExportPayload, error) {
	var payload *ExportPayload

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByIDWithLines(txCtx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("order " + orderID.String())
			}
			return eris.Wrap(err, "export: load order")
		}
		if order.CustomerKey == "" {
			return apperr.Invariant("order has no resolved customer key")
		}

		if err := s.lifecycle.ConfirmExport(txCtx, orderID, operator); err != nil {
			return err
		}

		payload = buildExportPayload(order)

		return s.audit.Record(txCtx, operator, model.ActionExport, model.EntityOrder, orderID.String(),
			model.OutcomeSuccess, fmt.Sprintf("order %s exported", order.OrderNumber),
			map[string]interface{}{"customer_key": order.CustomerKey, "lines": len(order.Lines)})
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func buildExportPayload(order *model.Order) *ExportPayload {
	payload := &ExportPayload{
		OrderID:             order.ID.String(),
		VendorCode:          order.VendorCode,
		OrderNumber:         order.OrderNumber,
		ResolvedCustomerKey: order.CustomerKey,
	}
	if order.OrderDate != nil {
		payload.OrderDate = order.OrderDate.Format(dateLayout)
	}
	if order.DeliveryDate != nil {
		payload.DeliveryDate = order.DeliveryDate.Format(dateLayout)
	}

	payload.Lines = make([]ExportLine, 0, len(order.Lines))
	for i := range order.Lines {
		l := &order.Lines[i]
		payload.Lines = append(payload.Lines, ExportLine{
			Ordinal:     l.Ordinal,
			ProductCode: l.ProductCode,
			Description: l.Description,
			QtySold:     l.QtySold,
			QtyGratis:   l.QtyGratis,
			QtyBonus:    l.QtyBonus,
			Discount1:   l.Discount1.StringFixed(2),
			Discount2:   l.Discount2.StringFixed(2),
			Discount3:   l.Discount3.StringFixed(2),
			Discount4:   l.Discount4.StringFixed(2),
			NetPrice:    l.NetPrice.StringFixed(2),
			ListPrice:   l.ListPrice.StringFixed(2),
			PublicPrice: l.PublicPrice.StringFixed(2),
			VATRate:     l.VATRate.StringFixed(2),
			VATIncluded: l.VATIncluded,
			CaseCode:    l.CaseCode,
			ParentLine:  l.ParentOrdinal,
		})
	}
	return payload
}
