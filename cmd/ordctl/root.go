package main

import (
	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/repository"
	"backend/internal/service"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	flagOperator    string
	flagDatabaseURL string
)

var rootCmd = &cobra.Command{
	Use:   "ordctl",
	Short: "Admin CLI for the order ingestion supervision pipeline",
	Long: `ordctl drives the administrative surface of the order ingestion
pipeline: pipeline reset, snapshot backup, rule management and queue
decisions, without going through the HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagOperator, "operator", "admin-cli", "operator name recorded in the activity log")
	rootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "override store.database_url")

	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(statsCmd)
}

// app bundles the wired services a subcommand needs.
type app struct {
	db        *gorm.DB
	cfgStore  *config.Store
	queue     service.QueueService
	learner   service.LearnerService
	admin     service.AdminService
	lifecycle service.LifecycleService
}

func newApp() (*app, error) {
	_ = godotenv.Load("configs/.env")

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := config.InitLogger(config.LogConfig{Level: "warn", Format: "console"}); err != nil {
		return nil, err
	}
	if flagDatabaseURL != "" {
		cfg.Store.DatabaseURL = flagDatabaseURL
	}
	cfgStore := config.NewStore(cfg)

	db, err := database.NewConnection(cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}

	txManager := repository.NewTransactionManager(db)
	operatorRepo := repository.NewOperatorRepository(db)
	masterRepo := repository.NewMasterDataRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	anomalyRepo := repository.NewAnomalyRepository(db)
	supervisionRepo := repository.NewSupervisionRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	maintenanceRepo := repository.NewMaintenanceRepository(db)

	auditService := service.NewAuditService(auditRepo)
	lifecycleService := service.NewLifecycleService(orderRepo, anomalyRepo, auditService)
	learnerService := service.NewLearnerService(cfgStore, ruleRepo, auditService, service.NopNotifier{})
	queueService := service.NewQueueService(txManager, supervisionRepo, anomalyRepo, orderRepo, ruleRepo, masterRepo,
		learnerService, lifecycleService, auditService, service.NopNotifier{})
	adminService := service.NewAdminService(cfgStore, maintenanceRepo, orderRepo, anomalyRepo, supervisionRepo,
		ruleRepo, operatorRepo, auditService)

	return &app{
		db:        db,
		cfgStore:  cfgStore,
		queue:     queueService,
		learner:   learnerService,
		admin:     adminService,
		lifecycle: lifecycleService,
	}, nil
}
