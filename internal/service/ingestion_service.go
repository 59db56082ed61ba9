package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"backend/internal/apperr"
	"backend/internal/config"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/resilience"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// IngestLine is one extracted order line as delivered by the extraction
// pipeline. Ordinals must be dense starting at 1.
type IngestLine struct {
	Ordinal       int             `json:"ordinal" binding:"required"`
	ProductCode   string          `json:"product_code"`
	Description   string          `json:"description"`
	QtySold       int             `json:"qty_sold"`
	QtyGratis     int             `json:"qty_gratis"`
	QtyBonus      int             `json:"qty_bonus"`
	Discount1     decimal.Decimal `json:"discount1"`
	Discount2     decimal.Decimal `json:"discount2"`
	Discount3     decimal.Decimal `json:"discount3"`
	Discount4     decimal.Decimal `json:"discount4"`
	NetPrice      decimal.Decimal `json:"net_price"`
	ListPrice     decimal.Decimal `json:"list_price"`
	PublicPrice   decimal.Decimal `json:"public_price"`
	VATRate       decimal.Decimal `json:"vat_rate"`
	VATIncluded   bool            `json:"vat_included"`
	IsDisplayCase bool            `json:"is_display_case"`
	CaseCode      string          `json:"case_code"`
	ParentOrdinal *int            `json:"parent_ordinal"`
}

// IngestOrder is one extracted purchase order.
type IngestOrder struct {
	OrderNumber      string       `json:"order_number" binding:"required"`
	OrderDate        string       `json:"order_date"`
	DeliveryDate     string       `json:"delivery_date"`
	CustomerVAT      string       `json:"customer_vat"`
	CustomerName     string       `json:"customer_name"`
	CustomerAddress  string       `json:"customer_address"`
	CustomerZIP      string       `json:"customer_zip"`
	CustomerCity     string       `json:"customer_city"`
	CustomerProvince string       `json:"customer_province"`
	Lines            []IngestLine `json:"lines" binding:"required"`
}

// IngestRequest is one acquisition: a document delivery carrying one or more
// orders from a single vendor.
type IngestRequest struct {
	Origin      string        `json:"origin" binding:"required"`
	VendorCode  string        `json:"vendor_code" binding:"required"`
	ContentHash string        `json:"content_hash"`
	Orders      []IngestOrder `json:"orders" binding:"required"`
}

type IngestedOrder struct {
	ID           string `json:"id"`
	OrderNumber  string `json:"order_number"`
	State        string `json:"state"`
	Anomalies    int    `json:"anomalies"`
	AutoResolved int    `json:"auto_resolved"`
	Enqueued     int    `json:"enqueued"`
}

type IngestResponse struct {
	AcquisitionID string          `json:"acquisition_id"`
	Orders        []IngestedOrder `json:"orders"`
}

type BatchResult struct {
	Index    int             `json:"index"`
	Response *IngestResponse `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// IngestionService is the entry point of the pipeline. One call persists the
// acquisition and its orders, runs the detector, applies ordinary rules,
// populates the supervision queues and settles each order's state, all in a
// single transaction per acquisition.
type IngestionService interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestResponse, error)
	// IngestBatch processes independent acquisitions concurrently. Failures
	// are reported per acquisition; one bad delivery never blocks the rest.
	IngestBatch(ctx context.Context, reqs []IngestRequest) ([]BatchResult, error)
}

type ingestionService struct {
	cfg          *config.Store
	txManager    repository.TransactionManager
	acquisitions repository.AcquisitionRepository
	orders       repository.OrderRepository
	detector     DetectorService
	resolver     AutoResolverService
	queue        QueueService
	lifecycle    LifecycleService
	audit        AuditService
	notifier     Notifier
}

func NewIngestionService(
	cfg *config.Store,
	txManager repository.TransactionManager,
	acquisitions repository.AcquisitionRepository,
	orders repository.OrderRepository,
	detector DetectorService,
	resolver AutoResolverService,
	queue QueueService,
	lifecycle LifecycleService,
	audit AuditService,
	notifier Notifier,
) IngestionService {
	return &ingestionService{
		cfg:          cfg,
		txManager:    txManager,
		acquisitions: acquisitions,
		orders:       orders,
		detector:     detector,
		resolver:     resolver,
		queue:        queue,
		lifecycle:    lifecycle,
		audit:        audit,
		notifier:     notifier,
	}
}

func (s *ingestionService) Ingest(ctx context.Context, req IngestRequest) (*IngestResponse, error) {
	if err := validateIngest(&req); err != nil {
		return nil, err
	}

	hash := req.ContentHash
	if hash == "" {
		hash = contentHash(req)
	}
	if _, err := s.acquisitions.FindByContentHash(ctx, hash); err == nil {
		return nil, apperr.Conflict("acquisition with identical content already ingested")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, eris.Wrap(err, "ingest: duplicate check")
	}

	cfg := s.cfg.Get()
	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond,
	}

	var resp *IngestResponse
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		var err error
		resp, err = s.ingestOnce(ctx, req, hash)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, o := range resp.Orders {
		if o.State == model.OrderStateBlocked {
			s.notifier.Broadcast(EventOrderBlocked, o)
		}
	}
	return resp, nil
}

func (s *ingestionService) ingestOnce(ctx context.Context, req IngestRequest, hash string) (*IngestResponse, error) {
	var resp IngestResponse

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		acq := model.Acquisition{
			Origin:      req.Origin,
			VendorCode:  req.VendorCode,
			ContentHash: hash,
			ReceivedAt:  time.Now(),
		}
		if err := s.acquisitions.Create(txCtx, &acq); err != nil {
			return apperr.Infrastructure(err, "ingest: persist acquisition")
		}
		resp.AcquisitionID = acq.ID.String()

		for i := range req.Orders {
			ingested, err := s.ingestOrder(txCtx, &acq, &req.Orders[i])
			if err != nil {
				return eris.Wrapf(err, "ingest: order %s", req.Orders[i].OrderNumber)
			}
			resp.Orders = append(resp.Orders, *ingested)
		}

		return s.audit.Record(txCtx, model.SystemOperator, model.ActionIngestAcquisition, model.EntityAcquisition, acq.ID.String(),
			model.OutcomeSuccess, fmt.Sprintf("%d orders ingested from %s", len(resp.Orders), req.Origin),
			map[string]interface{}{"vendor_code": req.VendorCode, "content_hash": hash})
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *ingestionService) ingestOrder(ctx context.Context, acq *model.Acquisition, in *IngestOrder) (*IngestedOrder, error) {
	order := model.Order{
		AcquisitionID:    acq.ID,
		VendorCode:       acq.VendorCode,
		OrderNumber:      in.OrderNumber,
		OrderDate:        parseDate(in.OrderDate),
		DeliveryDate:     parseDate(in.DeliveryDate),
		CustomerVAT:      in.CustomerVAT,
		CustomerName:     in.CustomerName,
		CustomerAddress:  in.CustomerAddress,
		CustomerZIP:      in.CustomerZIP,
		CustomerCity:     in.CustomerCity,
		CustomerProvince: in.CustomerProvince,
		State:            model.OrderStateExtracted,
	}

	lines := make([]model.OrderLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		lines = append(lines, model.OrderLine{
			Ordinal:       l.Ordinal,
			ProductCode:   l.ProductCode,
			Description:   l.Description,
			QtySold:       l.QtySold,
			QtyGratis:     l.QtyGratis,
			QtyBonus:      l.QtyBonus,
			Discount1:     l.Discount1,
			Discount2:     l.Discount2,
			Discount3:     l.Discount3,
			Discount4:     l.Discount4,
			NetPrice:      l.NetPrice,
			ListPrice:     l.ListPrice,
			PublicPrice:   l.PublicPrice,
			VATRate:       l.VATRate,
			VATIncluded:   l.VATIncluded,
			IsDisplayCase: l.IsDisplayCase,
			CaseCode:      l.CaseCode,
			ParentOrdinal: l.ParentOrdinal,
			State:         model.OrderStateExtracted,
		})
	}

	if err := s.orders.PersistOrder(ctx, &order, lines); err != nil {
		return nil, apperr.Infrastructure(err, "ingest: persist order")
	}
	order.Lines = lines

	anomalies, err := s.detector.Scan(ctx, &order)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolver.Resolve(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	enqueued, err := s.queue.Populate(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	state, err := s.lifecycle.Reevaluate(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	zap.L().Info("order ingested",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("state", state),
		zap.Int("anomalies", len(anomalies)),
		zap.Int("auto_resolved", resolved),
		zap.Int("enqueued", enqueued))

	return &IngestedOrder{
		ID:           order.ID.String(),
		OrderNumber:  order.OrderNumber,
		State:        state,
		Anomalies:    len(anomalies),
		AutoResolved: resolved,
		Enqueued:     enqueued,
	}, nil
}

func (s *ingestionService) IngestBatch(ctx context.Context, reqs []IngestRequest) ([]BatchResult, error) {
	if len(reqs) == 0 {
		return nil, apperr.Validation("empty batch")
	}

	results := make([]BatchResult, len(reqs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range reqs {
		i := i
		g.Go(func() error {
			resp, err := s.Ingest(gctx, reqs[i])
			mu.Lock()
			defer mu.Unlock()
			results[i] = BatchResult{Index: i, Response: resp}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func validateIngest(req *IngestRequest) error {
	switch req.Origin {
	case model.OriginEmail, model.OriginFTP, model.OriginUpload:
	default:
		return apperr.Validation("unknown origin " + req.Origin)
	}
	if req.VendorCode == "" {
		return apperr.Validation("vendor code is required")
	}
	if len(req.Orders) == 0 {
		return apperr.Validation("acquisition carries no orders")
	}

	for i := range req.Orders {
		o := &req.Orders[i]
		if o.OrderNumber == "" {
			return apperr.Validation(fmt.Sprintf("order %d: order number is required", i))
		}
		if len(o.Lines) == 0 {
			return apperr.Validation(fmt.Sprintf("order %s: no lines", o.OrderNumber))
		}
		if o.OrderDate != "" && parseDate(o.OrderDate) == nil {
			return apperr.Validation(fmt.Sprintf("order %s: bad order date %q", o.OrderNumber, o.OrderDate))
		}
		if o.DeliveryDate != "" && parseDate(o.DeliveryDate) == nil {
			return apperr.Validation(fmt.Sprintf("order %s: bad delivery date %q", o.OrderNumber, o.DeliveryDate))
		}

		ordinals := make(map[int]struct{}, len(o.Lines))
		for _, l := range o.Lines {
			if l.QtySold < 0 || l.QtyGratis < 0 || l.QtyBonus < 0 {
				return apperr.Validation(fmt.Sprintf("order %s line %d: negative quantity", o.OrderNumber, l.Ordinal))
			}
			if _, dup := ordinals[l.Ordinal]; dup {
				return apperr.Validation(fmt.Sprintf("order %s: duplicate ordinal %d", o.OrderNumber, l.Ordinal))
			}
			ordinals[l.Ordinal] = struct{}{}
		}
		// Dense ordinals starting at 1.
		for n := 1; n <= len(o.Lines); n++ {
			if _, ok := ordinals[n]; !ok {
				return apperr.Validation(fmt.Sprintf("order %s: ordinals not dense, missing %d", o.OrderNumber, n))
			}
		}
		for _, l := range o.Lines {
			if l.ParentOrdinal != nil {
				if _, ok := ordinals[*l.ParentOrdinal]; !ok {
					return apperr.Validation(fmt.Sprintf("order %s line %d: parent ordinal %d does not exist", o.OrderNumber, l.Ordinal, *l.ParentOrdinal))
				}
				if *l.ParentOrdinal == l.Ordinal {
					return apperr.Validation(fmt.Sprintf("order %s line %d: line cannot parent itself", o.OrderNumber, l.Ordinal))
				}
			}
		}
	}
	return nil
}

// contentHash fingerprints the payload for duplicate detection when the
// delivery channel did not provide one.
func contentHash(req IngestRequest) string {
	req.ContentHash = ""
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
