package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// testEnv wires the full service stack against an in-memory store, with a
// no-op notifier in place of the websocket hub.
type testEnv struct {
	db  *gorm.DB
	cfg *config.Store

	master       repository.MasterDataRepository
	acquisitions repository.AcquisitionRepository
	orders       repository.OrderRepository
	anomalies    repository.AnomalyRepository
	supervision  repository.SupervisionRepository
	rules        repository.RuleRepository

	audit     AuditService
	lifecycle LifecycleService
	detector  DetectorService
	learner   LearnerService
	resolver  AutoResolverService
	queue     QueueService
	ingestion IngestionService
	export    ExportService
	admin     AdminService
}

func testConfig(t *testing.T) *config.Store {
	t.Helper()
	return config.NewStore(&config.Config{
		Detector: config.DetectorConfig{PriceDeltaPct: 5, BandMinorPct: 5, BandModeratePct: 15},
		Lookup: config.LookupConfig{
			WeightVAT: 50, WeightName: 30, WeightAddress: 10, WeightZIP: 5, WeightCity: 5,
			AutoAcceptScore: 85, AutoAcceptGap: 10, ReviewScore: 60, MaxCandidates: 5,
		},
		Learner:  config.LearnerConfig{MinApprovals: 3, MinOperators: 2},
		Resolver: config.ResolverConfig{SoftDeadlineMS: 2000},
		Retry:    config.RetryConfig{MaxAttempts: 2, InitialBackoffMS: 1, MaxBackoffMS: 5},
		Backup:   config.BackupConfig{Dir: t.TempDir()},
	})
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	e := &testEnv{db: db, cfg: testConfig(t)}

	txManager := repository.NewTransactionManager(db)
	e.master = repository.NewMasterDataRepository(db)
	e.acquisitions = repository.NewAcquisitionRepository(db)
	e.orders = repository.NewOrderRepository(db)
	e.anomalies = repository.NewAnomalyRepository(db)
	e.supervision = repository.NewSupervisionRepository(db)
	e.rules = repository.NewRuleRepository(db)
	maintenance := repository.NewMaintenanceRepository(db)
	operators := repository.NewOperatorRepository(db)

	notifier := NopNotifier{}
	e.audit = NewAuditService(repository.NewAuditRepository(db))
	e.lifecycle = NewLifecycleService(e.orders, e.anomalies, e.audit)
	e.detector = NewDetectorService(e.cfg, e.master, e.orders, e.anomalies)
	e.learner = NewLearnerService(e.cfg, e.rules, e.audit, notifier)
	e.resolver = NewAutoResolverService(e.cfg, e.anomalies, e.rules, e.orders, e.audit)
	e.queue = NewQueueService(txManager, e.supervision, e.anomalies, e.orders, e.rules, e.master,
		e.learner, e.lifecycle, e.audit, notifier)
	e.ingestion = NewIngestionService(e.cfg, txManager, e.acquisitions, e.orders,
		e.detector, e.resolver, e.queue, e.lifecycle, e.audit, notifier)
	e.export = NewExportService(txManager, e.orders, e.lifecycle, e.audit)
	e.admin = NewAdminService(e.cfg, maintenance, e.orders, e.anomalies, e.supervision,
		e.rules, operators, e.audit)

	return e
}

// seedMasterData loads the reference fixtures every scenario leans on: two
// catalogue products, one price list entry, one display case spec and two
// directory customers.
func (e *testEnv) seedMasterData(t *testing.T) {
	t.Helper()
	fixtures := []interface{}{
		&model.CatalogProduct{Code: "034552011", Description: "ASPIRINA C 10 CPR"},
		&model.CatalogProduct{Code: "025940016", Description: "TACHIPIRINA 500MG"},
		&model.PriceListEntry{VendorCode: "ACME", ProductCode: "034552011", NetPrice: decimal.RequireFromString("10.00")},
		&model.DisplayCaseSpec{VendorCode: "ACME", CaseCode: "ESP-01", ExpectedPieces: 12},
		&model.Customer{Code: "C001", VATNumber: "IT01234567890", Name: "FARMACIA ROSSI SRL", City: "MILANO"},
		&model.Customer{Code: "C002", VATNumber: "IT09999999999", Name: "FARMACIA BIANCHI SNC", City: "TORINO"},
	}
	for _, f := range fixtures {
		require.NoError(t, e.db.Create(f).Error)
	}
}

// persistOrder stores an order straight into the repository, bypassing
// ingestion, for detector and lifecycle tests.
func (e *testEnv) persistOrder(t *testing.T, vat, name, city string, lines []model.OrderLine) *model.Order {
	t.Helper()
	ctx := context.Background()

	acq := model.Acquisition{
		Origin:      model.OriginUpload,
		VendorCode:  "ACME",
		ContentHash: fmt.Sprintf("%s-%d", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano()),
		ReceivedAt:  time.Now(),
	}
	require.NoError(t, e.acquisitions.Create(ctx, &acq))

	order := model.Order{
		AcquisitionID: acq.ID,
		VendorCode:    "ACME",
		OrderNumber:   fmt.Sprintf("ORD-%d", time.Now().UnixNano()),
		CustomerVAT:   vat,
		CustomerName:  name,
		CustomerCity:  city,
		State:         model.OrderStateExtracted,
	}
	require.NoError(t, e.orders.PersistOrder(ctx, &order, lines))
	order.Lines = lines
	return &order
}

func cleanLine(ordinal int) model.OrderLine {
	return model.OrderLine{
		Ordinal:     ordinal,
		ProductCode: "034552011",
		Description: "Aspirina C 10 cpr",
		QtySold:     2,
		NetPrice:    decimal.RequireFromString("10.00"),
		State:       model.OrderStateExtracted,
	}
}

// ingestRequest builds a single-order acquisition with a resolvable customer.
func ingestRequest(number string, lines ...IngestLine) IngestRequest {
	return IngestRequest{
		Origin:     model.OriginUpload,
		VendorCode: "ACME",
		Orders: []IngestOrder{{
			OrderNumber:  number,
			OrderDate:    "2026-08-31",
			CustomerVAT:  "IT01234567890",
			CustomerName: "Farmacia Rossi SRL",
			CustomerCity: "Milano",
			Lines:        lines,
		}},
	}
}

func cleanIngestLine(ordinal int) IngestLine {
	return IngestLine{
		Ordinal:     ordinal,
		ProductCode: "034552011",
		Description: "Aspirina C 10 cpr",
		QtySold:     2,
		NetPrice:    decimal.RequireFromString("10.00"),
	}
}

// openAnomalies is a shorthand for the anomalies still open on an order.
func (e *testEnv) openAnomalies(t *testing.T, orderID uuid.UUID) []model.Anomaly {
	t.Helper()
	var out []model.Anomaly
	require.NoError(t, e.db.Where("order_id = ? AND state = ?", orderID, model.AnomalyOpen).Find(&out).Error)
	return out
}
