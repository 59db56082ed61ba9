package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "backend/api/swagger" // swagger docs
	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/handler"
	"backend/internal/middleware"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Order Ingestion Supervision API
// @version         1.0
// @description     Anomaly detection, supervision queues and pattern learning for pharma purchase orders.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		fmt.Println("No configs/.env file found or error loading it")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration failed: %v\n", err)
		os.Exit(1)
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zap.L().Sync() }()

	cfgStore := config.NewStore(cfg)

	db, err := database.NewConnection(cfg.Store.DatabaseURL)
	if err != nil {
		zap.L().Fatal("database connection failed", zap.Error(err))
	}
	zap.L().Info("connected to PostgreSQL")

	// SIGHUP reloads thresholds without a restart.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := cfgStore.Reload(); err != nil {
				zap.L().Error("config reload failed", zap.Error(err))
			}
		}
	}()

	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Repository -> Service -> Handler
	txManager := repository.NewTransactionManager(db)
	operatorRepo := repository.NewOperatorRepository(db)
	masterRepo := repository.NewMasterDataRepository(db)
	acquisitionRepo := repository.NewAcquisitionRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	anomalyRepo := repository.NewAnomalyRepository(db)
	supervisionRepo := repository.NewSupervisionRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	maintenanceRepo := repository.NewMaintenanceRepository(db)

	auditService := service.NewAuditService(auditRepo)
	authService := service.NewAuthService(operatorRepo)
	lifecycleService := service.NewLifecycleService(orderRepo, anomalyRepo, auditService)
	detectorService := service.NewDetectorService(cfgStore, masterRepo, orderRepo, anomalyRepo)
	learnerService := service.NewLearnerService(cfgStore, ruleRepo, auditService, wsHub)
	resolverService := service.NewAutoResolverService(cfgStore, anomalyRepo, ruleRepo, orderRepo, auditService)
	queueService := service.NewQueueService(txManager, supervisionRepo, anomalyRepo, orderRepo, ruleRepo, masterRepo,
		learnerService, lifecycleService, auditService, wsHub)
	ingestionService := service.NewIngestionService(cfgStore, txManager, acquisitionRepo, orderRepo,
		detectorService, resolverService, queueService, lifecycleService, auditService, wsHub)
	orderService := service.NewOrderService(orderRepo, anomalyRepo)
	exportService := service.NewExportService(txManager, orderRepo, lifecycleService, auditService)
	adminService := service.NewAdminService(cfgStore, maintenanceRepo, orderRepo, anomalyRepo, supervisionRepo,
		ruleRepo, operatorRepo, auditService)

	authHandler := handler.NewAuthHandler(authService)
	ingestionHandler := handler.NewIngestionHandler(ingestionService)
	queueHandler := handler.NewQueueHandler(queueService)
	orderHandler := handler.NewOrderHandler(orderService, exportService, lifecycleService)
	ruleHandler := handler.NewRuleHandler(learnerService)
	auditHandler := handler.NewAuditHandler(auditService)
	adminHandler := handler.NewAdminHandler(adminService)

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.RequestTimeout(time.Duration(cfg.Server.RequestTimeoutS) * time.Second))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	authHandler.RegisterRoutes(router.Group(""))
	ingestionHandler.RegisterRoutes(router.Group(""))
	queueHandler.RegisterRoutes(router.Group(""))
	orderHandler.RegisterRoutes(router.Group(""))
	ruleHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))
	adminHandler.RegisterRoutes(router.Group(""))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	zap.L().Info("server listening", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		zap.L().Fatal("server failed", zap.Error(err))
	}
}
