package service

import (
	"context"
	"encoding/json"

	"backend/internal/apperr"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// corrector applies the corrective action of a decision or an ordinary rule
// to the order data and produces the before/after record stored on the
// anomaly. Shared by the queue service and the auto-resolver so a human
// decision and its learned rule always correct the data the same way.
type corrector struct {
	orders repository.OrderRepository
}

// apply mutates order data per action type and returns the serialized
// before/after payload. ESPOSITORE acceptance changes nothing; the anomaly
// closure itself is the decision.
func (c *corrector) apply(ctx context.Context, anomaly *model.Anomaly, actionType, actionValue string) (string, error) {
	switch actionType {
	case model.RuleActionSetProductCode:
		return c.setLineField(ctx, anomaly, "product_code", actionValue, func(l *model.OrderLine) string {
			return l.ProductCode
		})

	case model.RuleActionSetNetPrice:
		price, err := decimal.NewFromString(actionValue)
		if err != nil {
			return "", apperr.Validation("net price is not a decimal: " + actionValue)
		}
		return c.setLineField(ctx, anomaly, "net_price", price, func(l *model.OrderLine) string {
			return l.NetPrice.StringFixed(2)
		})

	case model.RuleActionSetCustomerKey:
		order, err := c.orders.FindByID(ctx, anomaly.OrderID)
		if err != nil {
			return "", eris.Wrap(err, "correction: load order")
		}
		before := order.CustomerKey
		if err := c.orders.UpdateCustomer(ctx, order.ID, actionValue,
			order.LookupScore.InexactFloat64(), order.LookupCandidates, model.LookupSupervised); err != nil {
			return "", eris.Wrap(err, "correction: set customer key")
		}
		return beforeAfter(before, actionValue)

	case model.RuleActionAcceptBand:
		return beforeAfter(anomaly.OffendingValue, "accepted:"+actionValue)

	default:
		return "", apperr.Invariant("unknown rule action type " + actionType)
	}
}

func (c *corrector) setLineField(ctx context.Context, anomaly *model.Anomaly, field string, value interface{}, read func(*model.OrderLine) string) (string, error) {
	if anomaly.LineID == nil {
		return "", apperr.Invariant("line correction on a header anomaly")
	}
	line, err := c.orders.FindLine(ctx, *anomaly.LineID)
	if err != nil {
		return "", eris.Wrap(err, "correction: load line")
	}
	before := read(line)
	if err := c.orders.UpdateLineField(ctx, line.ID, field, value); err != nil {
		return "", eris.Wrapf(err, "correction: set %s", field)
	}

	var after string
	switch v := value.(type) {
	case string:
		after = v
	case decimal.Decimal:
		after = v.StringFixed(2)
	}
	return beforeAfter(before, after)
}

func beforeAfter(before, after string) (string, error) {
	raw, err := json.Marshal(map[string]string{"before": before, "after": after})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// actionTypeFor maps an anomaly kind to its canonical corrective action.
func actionTypeFor(kind string) string {
	switch kind {
	case model.AnomalyKindAIC:
		return model.RuleActionSetProductCode
	case model.AnomalyKindListino:
		return model.RuleActionSetNetPrice
	case model.AnomalyKindLookup:
		return model.RuleActionSetCustomerKey
	case model.AnomalyKindEspositore:
		return model.RuleActionAcceptBand
	default:
		return ""
	}
}
