package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"backend/internal/config"
	"backend/internal/lookup"
	"backend/internal/model"
	"backend/internal/pattern"
	"backend/internal/repository"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DetectorService runs the single-pass inspection of a freshly persisted
// order: product identifier validation, price-list check, customer lookup
// and display-case coherence. Each violation becomes one typed anomaly with
// its pattern signature computed at creation time.
//
// A failing check on one line is captured as a DETECTOR_FAULT anomaly and
// never aborts the scan of sibling lines.
type DetectorService interface {
	Scan(ctx context.Context, order *model.Order) ([]model.Anomaly, error)
}

type detectorService struct {
	cfg       *config.Store
	master    repository.MasterDataRepository
	orders    repository.OrderRepository
	anomalies repository.AnomalyRepository
}

func NewDetectorService(cfg *config.Store, master repository.MasterDataRepository, orders repository.OrderRepository, anomalies repository.AnomalyRepository) DetectorService {
	return &detectorService{cfg: cfg, master: master, orders: orders, anomalies: anomalies}
}

func (s *detectorService) Scan(ctx context.Context, order *model.Order) ([]model.Anomaly, error) {
	cfg := s.cfg.Get()
	var out []model.Anomaly

	for i := range order.Lines {
		line := &order.Lines[i]

		anomaly, err := s.checkProductCode(ctx, order, line)
		out = s.collect(ctx, out, order, line, anomaly, err)

		anomaly, err = s.checkPriceList(ctx, cfg, order, line)
		out = s.collect(ctx, out, order, line, anomaly, err)

		anomaly, err = s.checkDisplayCase(ctx, cfg, order, line)
		out = s.collect(ctx, out, order, line, anomaly, err)
	}

	anomaly, err := s.checkCustomer(ctx, cfg, order)
	out = s.collect(ctx, out, order, nil, anomaly, err)

	for i := range out {
		if err := s.anomalies.Create(ctx, &out[i]); err != nil {
			return nil, eris.Wrap(err, "detector: persist anomaly")
		}
	}
	return out, nil
}

// collect appends the anomaly if any; a check error degrades to a
// DETECTOR_FAULT anomaly so the order still progresses.
func (s *detectorService) collect(ctx context.Context, acc []model.Anomaly, order *model.Order, line *model.OrderLine, anomaly *model.Anomaly, err error) []model.Anomaly {
	if err != nil {
		zap.L().Error("detector check failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
		fault := model.Anomaly{
			OrderID:        order.ID,
			Kind:           model.AnomalyKindDetectorFault,
			Severity:       model.SeverityAttention,
			State:          model.AnomalyOpen,
			OffendingValue: err.Error(),
		}
		if line != nil {
			fault.LineID = &line.ID
		}
		return append(acc, fault)
	}
	if anomaly == nil {
		return acc
	}
	return append(acc, *anomaly)
}

// checkProductCode validates the line's identifier against the catalogue.
func (s *detectorService) checkProductCode(ctx context.Context, order *model.Order, line *model.OrderLine) (*model.Anomaly, error) {
	code := line.ProductCode
	malformed := len(code) != 9 || !digitsOnly(code)

	if !malformed {
		_, err := s.master.ProductByCode(ctx, code)
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, eris.Wrap(err, "detector: catalogue lookup")
		}
	}

	contextPayload, _ := json.Marshal(map[string]interface{}{
		"vendor":                 order.VendorCode,
		"original_code":          code,
		"description":            line.Description,
		"normalized_description": pattern.Normalize(line.Description),
	})
	return &model.Anomaly{
		OrderID:        order.ID,
		LineID:         &line.ID,
		Kind:           model.AnomalyKindAIC,
		Severity:       model.SeverityBlocking,
		State:          model.AnomalyOpen,
		OffendingValue: code,
		Context:        string(contextPayload),
		Signature:      pattern.AIC(order.VendorCode, line.Description),
	}, nil
}

// checkPriceList compares the extracted net price against the vendor price
// list and emits LISTINO above the configured percentage delta.
func (s *detectorService) checkPriceList(ctx context.Context, cfg *config.Config, order *model.Order, line *model.OrderLine) (*model.Anomaly, error) {
	if line.ProductCode == "" || line.NetPrice.IsZero() {
		return nil, nil
	}

	entry, err := s.master.PriceFor(ctx, order.VendorCode, line.ProductCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "detector: price list lookup")
	}
	if entry.NetPrice.IsZero() {
		return nil, nil
	}

	deltaPct := line.NetPrice.Sub(entry.NetPrice).Abs().
		Div(entry.NetPrice).Mul(decimal.NewFromInt(100))
	threshold := decimal.NewFromFloat(cfg.Detector.PriceDeltaPct)
	if deltaPct.LessThanOrEqual(threshold) {
		return nil, nil
	}

	contextPayload, _ := json.Marshal(map[string]interface{}{
		"extracted_price": line.NetPrice.StringFixed(2),
		"list_price":      entry.NetPrice.StringFixed(2),
		"delta_pct":       deltaPct.Round(4).String(),
	})
	return &model.Anomaly{
		OrderID:        order.ID,
		LineID:         &line.ID,
		Kind:           model.AnomalyKindListino,
		Severity:       model.SeverityAttention,
		State:          model.AnomalyOpen,
		OffendingValue: line.NetPrice.StringFixed(2),
		Context:        string(contextPayload),
		Signature:      pattern.Listino(order.VendorCode, line.ProductCode, line.NetPrice),
	}, nil
}

// checkDisplayCase verifies that a display-case parent line has the expected
// number of child lines for (vendor, case code).
func (s *detectorService) checkDisplayCase(ctx context.Context, cfg *config.Config, order *model.Order, line *model.OrderLine) (*model.Anomaly, error) {
	if !line.IsDisplayCase || line.CaseCode == "" {
		return nil, nil
	}

	spec, err := s.master.DisplayCase(ctx, order.VendorCode, line.CaseCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Unknown case code: nothing to compare against.
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "detector: display case lookup")
	}

	found := 0
	for i := range order.Lines {
		po := order.Lines[i].ParentOrdinal
		if po != nil && *po == line.Ordinal {
			found++
		}
	}

	deviationPct := deviationPercent(spec.ExpectedPieces, found)
	band := deviationBand(deviationPct, cfg.Detector)
	if band == model.BandExact {
		return nil, nil
	}

	contextPayload, _ := json.Marshal(map[string]interface{}{
		"pieces_expected": spec.ExpectedPieces,
		"pieces_found":    found,
		"deviation_pct":   deviationPct,
		"deviation_band":  band,
	})
	return &model.Anomaly{
		OrderID:        order.ID,
		LineID:         &line.ID,
		Kind:           model.AnomalyKindEspositore,
		Severity:       model.SeverityAttention,
		State:          model.AnomalyOpen,
		OffendingValue: fmt.Sprintf("%d/%d", found, spec.ExpectedPieces),
		Context:        string(contextPayload),
		Signature:      pattern.Espositore(order.VendorCode, line.CaseCode, band),
	}, nil
}

// checkCustomer resolves the candidate identity: unique exact VAT hit wins,
// otherwise fuzzy scoring against the directory.
func (s *detectorService) checkCustomer(ctx context.Context, cfg *config.Config, order *model.Order) (*model.Anomaly, error) {
	id := lookup.Identity{
		VAT:      order.CustomerVAT,
		Name:     order.CustomerName,
		Address:  order.CustomerAddress,
		ZIP:      order.CustomerZIP,
		City:     order.CustomerCity,
		Province: order.CustomerProvince,
	}

	if id.VAT != "" {
		customer, err := s.master.CustomerByVAT(ctx, id.VAT)
		if err == nil {
			if updErr := s.orders.UpdateCustomer(ctx, order.ID, customer.Code, 100, 1, model.LookupAuto); updErr != nil {
				return nil, eris.Wrap(updErr, "detector: store exact lookup")
			}
			return nil, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, eris.Wrap(err, "detector: VAT lookup")
		}
	}

	directory, err := s.master.Customers(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "detector: load directory")
	}

	result := lookup.Match(id, directory, cfg.Lookup)
	if result.Outcome == lookup.OutcomeAutoAccept {
		best, _ := result.Best()
		if updErr := s.orders.UpdateCustomer(ctx, order.ID, best.CustomerKey, best.Score, len(result.Candidates), model.LookupAuto); updErr != nil {
			return nil, eris.Wrap(updErr, "detector: store fuzzy lookup")
		}
		return nil, nil
	}

	topScore := 0.0
	if best, ok := result.Best(); ok {
		topScore = best.Score
	}
	if updErr := s.orders.UpdateCustomer(ctx, order.ID, "", topScore, len(result.Candidates), model.LookupUnresolved); updErr != nil {
		return nil, eris.Wrap(updErr, "detector: store unresolved lookup")
	}

	contextPayload, _ := json.Marshal(map[string]interface{}{
		"vat":        id.VAT,
		"name":       id.Name,
		"candidates": result.Candidates,
		"resolvable": result.Outcome == lookup.OutcomeReview,
	})
	return &model.Anomaly{
		OrderID:        order.ID,
		Kind:           model.AnomalyKindLookup,
		Severity:       model.SeverityBlocking,
		State:          model.AnomalyOpen,
		OffendingValue: id.VAT + " " + id.Name,
		Context:        string(contextPayload),
		Signature:      pattern.Lookup(id.VAT, id.Name),
	}, nil
}

func deviationPercent(expected, found int) float64 {
	if expected <= 0 {
		return 0
	}
	diff := expected - found
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(expected) * 100
}

func deviationBand(pct float64, cfg config.DetectorConfig) string {
	switch {
	case pct == 0:
		return model.BandExact
	case pct <= cfg.BandMinorPct:
		return model.BandMinor
	case pct <= cfg.BandModeratePct:
		return model.BandModerate
	default:
		return model.BandMajor
	}
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
