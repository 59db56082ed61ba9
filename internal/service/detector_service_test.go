package service

import (
	"context"
	"testing"

	"backend/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanOne(t *testing.T, e *testEnv, order *model.Order) []model.Anomaly {
	t.Helper()
	anomalies, err := e.detector.Scan(context.Background(), order)
	require.NoError(t, err)
	return anomalies
}

func anomaliesOfKind(anomalies []model.Anomaly, kind string) []model.Anomaly {
	var out []model.Anomaly
	for _, a := range anomalies {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func TestScanCleanOrderFindsNothing(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	order := e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano",
		[]model.OrderLine{cleanLine(1)})

	anomalies := scanOne(t, e, order)
	assert.Empty(t, anomalies)

	// Exact VAT hit resolved the customer inline.
	reloaded, err := e.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "C001", reloaded.CustomerKey)
	assert.Equal(t, model.LookupAuto, reloaded.LookupStatus)
}

func TestScanUnknownProductCode(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	line := cleanLine(1)
	line.ProductCode = "099999999" // well-formed but not in the catalogue
	order := e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano",
		[]model.OrderLine{line})

	anomalies := scanOne(t, e, order)
	aic := anomaliesOfKind(anomalies, model.AnomalyKindAIC)
	require.Len(t, aic, 1)
	assert.Equal(t, model.SeverityBlocking, aic[0].Severity)
	assert.Equal(t, "099999999", aic[0].OffendingValue)
	assert.NotEmpty(t, aic[0].Signature)
	assert.Contains(t, aic[0].Context, "aspirina c 10 cpr")
}

func TestScanMalformedProductCode(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	for _, code := range []string{"", "12345", "03455201A", "0345520111"} {
		line := cleanLine(1)
		line.ProductCode = code
		order := e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano",
			[]model.OrderLine{line})

		anomalies := scanOne(t, e, order)
		assert.Len(t, anomaliesOfKind(anomalies, model.AnomalyKindAIC), 1, "code %q", code)
	}
}

func TestScanPriceDeltaThreshold(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	// List price is 10.00, threshold 5%: 10.50 is tolerated, 10.51 is not.
	within := cleanLine(1)
	within.NetPrice = decimal.RequireFromString("10.50")
	order := e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano",
		[]model.OrderLine{within})
	assert.Empty(t, anomaliesOfKind(scanOne(t, e, order), model.AnomalyKindListino))

	above := cleanLine(1)
	above.NetPrice = decimal.RequireFromString("10.51")
	order = e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano",
		[]model.OrderLine{above})

	listino := anomaliesOfKind(scanOne(t, e, order), model.AnomalyKindListino)
	require.Len(t, listino, 1)
	assert.Equal(t, model.SeverityAttention, listino[0].Severity)
	assert.Equal(t, "10.51", listino[0].OffendingValue)
}

func TestScanPriceSkipsLinesWithoutReference(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	// No price list entry for this product: nothing to compare against.
	line := cleanLine(1)
	line.ProductCode = "025940016"
	line.NetPrice = decimal.RequireFromString("99.99")
	order := e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano",
		[]model.OrderLine{line})

	assert.Empty(t, anomaliesOfKind(scanOne(t, e, order), model.AnomalyKindListino))
}

func TestScanDisplayCasePieceCount(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	parentOrd := 1
	makeOrder := func(children int) *model.Order {
		lines := []model.OrderLine{{
			Ordinal:       1,
			ProductCode:   "034552011",
			Description:   "Espositore",
			IsDisplayCase: true,
			CaseCode:      "ESP-01",
			State:         model.OrderStateExtracted,
		}}
		for i := 0; i < children; i++ {
			child := cleanLine(i + 2)
			child.ParentOrdinal = &parentOrd
			lines = append(lines, child)
		}
		return e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano", lines)
	}

	// 12 of 12 expected pieces: exact, no anomaly.
	assert.Empty(t, anomaliesOfKind(scanOne(t, e, makeOrder(12)), model.AnomalyKindEspositore))

	// 10 of 12 is a 16.7% deviation: MAJOR band.
	esp := anomaliesOfKind(scanOne(t, e, makeOrder(10)), model.AnomalyKindEspositore)
	require.Len(t, esp, 1)
	assert.Equal(t, model.SeverityAttention, esp[0].Severity)
	assert.Equal(t, "10/12", esp[0].OffendingValue)
	assert.Contains(t, esp[0].Context, model.BandMajor)
}

func TestScanUnknownDisplayCaseIsIgnored(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	line := cleanLine(1)
	line.IsDisplayCase = true
	line.CaseCode = "ESP-SCONOSCIUTO"
	order := e.persistOrder(t, "IT01234567890", "Farmacia Rossi", "Milano",
		[]model.OrderLine{line})

	assert.Empty(t, anomaliesOfKind(scanOne(t, e, order), model.AnomalyKindEspositore))
}

func TestScanLookupUnresolvedWithoutVAT(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	// Without a VAT the best achievable score is name+city = 35, below the
	// review threshold: the order stays unresolved and blocks.
	order := e.persistOrder(t, "", "Farmacia Rossi S.R.L.", "Milano",
		[]model.OrderLine{cleanLine(1)})

	anomalies := scanOne(t, e, order)
	lookups := anomaliesOfKind(anomalies, model.AnomalyKindLookup)
	require.Len(t, lookups, 1)
	assert.Equal(t, model.SeverityBlocking, lookups[0].Severity)

	reloaded, err := e.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LookupUnresolved, reloaded.LookupStatus)
	assert.Empty(t, reloaded.CustomerKey)
}

func TestScanExactVATBeatsFuzzyName(t *testing.T) {
	e := newTestEnv(t)
	e.seedMasterData(t)

	// VAT matches C001 in the directory lookup but is paired with a foreign
	// name: the exact path wins regardless, exercising the precedence of the
	// unique VAT hit over fuzzy scoring.
	order := e.persistOrder(t, "IT01234567890", "Parafarmacia Qualcosa", "Bari",
		[]model.OrderLine{cleanLine(1)})

	anomalies := scanOne(t, e, order)
	assert.Empty(t, anomaliesOfKind(anomalies, model.AnomalyKindLookup))

	reloaded, err := e.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "C001", reloaded.CustomerKey)
}
