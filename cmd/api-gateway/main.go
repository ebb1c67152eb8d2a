package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/ims-admission-api/api/swagger"
	"github.com/noah-isme/ims-admission-api/internal/events"
	"github.com/noah-isme/ims-admission-api/internal/handler"
	"github.com/noah-isme/ims-admission-api/internal/lifecycle"
	"github.com/noah-isme/ims-admission-api/internal/middleware"
	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/internal/notify"
	"github.com/noah-isme/ims-admission-api/internal/repository"
	"github.com/noah-isme/ims-admission-api/internal/service"
	"github.com/noah-isme/ims-admission-api/internal/stream"
	"github.com/noah-isme/ims-admission-api/pkg/cache"
	"github.com/noah-isme/ims-admission-api/pkg/config"
	"github.com/noah-isme/ims-admission-api/pkg/database"
	"github.com/noah-isme/ims-admission-api/pkg/export"
	"github.com/noah-isme/ims-admission-api/pkg/hashchain"
	"github.com/noah-isme/ims-admission-api/pkg/jobs"
	"github.com/noah-isme/ims-admission-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/ims-admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ims-admission-api/pkg/middleware/requestid"
	"github.com/noah-isme/ims-admission-api/pkg/storage"
)

// @title IMS Admission API
// @version 1.0.0
// @description Admission lifecycle service extracted from the legacy Node admin (migration phase 1)
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	sugar := logr.Sugar()

	// The transition table is validated before anything else: a registry
	// that references an undefined state or role must never serve traffic.
	registry, err := lifecycle.DefaultRegistry()
	if err != nil {
		sugar.Fatalw("invalid transition table", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		sugar.Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	chainer := hashchain.New(cfg.Audit.ChainKey)

	admissionRepo := repository.NewAdmissionRepository(db, chainer)
	transitionRepo := repository.NewTransitionRepository(db)
	auditLogRepo := repository.NewAuditLogRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Admissions.CacheTTL, logr, true)
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}, logr)
	cutoverSvc := service.NewCutoverService(cfg.Cutover, metrics)

	var producer *events.Producer
	if cfg.Events.Enabled {
		producer, err = events.NewProducer(redisClient, cfg.Events.PublishTimeout, logr)
		if err != nil {
			sugar.Fatalw("failed to build event producer", "error", err)
		}
	}
	defer producer.Close()

	var sender notify.Sender
	if cfg.Notifications.Enabled {
		switch cfg.Notifications.Provider {
		case "sendgrid":
			sender = notify.NewSendGridSender(cfg.Notifications.SendGridAPIKey, cfg.Notifications.FromName, cfg.Notifications.FromEmail)
		default:
			sender = notify.NewConsoleSender(logr)
		}
	}
	notifier := notify.NewDispatcher(sender)

	admissions := service.NewAdmissionService(service.AdmissionServiceParams{
		Repo:      admissionRepo,
		Registry:  registry,
		Audit:     auditLogRepo,
		Cache:     cacheSvc,
		Metrics:   metrics,
		Notifier:  notifier,
		Publisher: producer,
		Logger:    logr,
		Config: service.AdmissionServiceConfig{
			CacheTTL:         cfg.Admissions.CacheTTL,
			InstallmentCycle: cfg.Admissions.InstallmentCycle,
		},
	})
	audit := service.NewAuditService(transitionRepo, chainer, auditLogRepo, metrics, logr)

	var hub *stream.Hub
	if cfg.Stream.Enabled {
		hub = stream.NewHub(cfg.Stream.SendBuffer, logr)
		go hub.Run()
		defer hub.Close()
		metrics.SetStreamClientSource(hub.ClientCount)

		if cfg.Events.Enabled {
			relay, err := events.NewRelay(redisClient, cfg.Events.ConsumerGroup, []events.TransitionSink{hub}, logr)
			if err != nil {
				sugar.Fatalw("failed to build event relay", "error", err)
			}
			defer relay.Close() //nolint:errcheck
			go func() {
				if err := relay.Run(ctx); err != nil {
					sugar.Errorw("event relay stopped", "error", err)
				}
			}()
		} else {
			sugar.Warnw("stream enabled without events, dashboards will not receive transitions")
		}
	}

	sweeper := service.NewSweeperService(admissions, audit, cfg.Sweep, logr)
	if err := sweeper.Start(); err != nil {
		sugar.Fatalw("failed to start sweeper", "error", err)
	}
	defer sweeper.Stop()

	var reports *service.ReportService
	if cfg.Reports.Enabled {
		localStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			sugar.Fatalw("failed to prepare report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exporter := service.NewExportService(
			admissionRepo,
			transitionRepo,
			localStorage,
			signer,
			service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Reports.SignedURLTTL},
			logr,
			export.NewCSVExporter(),
			export.NewPDFExporter(),
		)
		worker := service.NewReportWorker(reportRepo, exporter, cfg.Reports.WorkerRetries, logr)
		reportQueue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(ctx)
		defer reportQueue.Stop()
		metrics.SetReportQueueDepthSource(reportQueue.Depth)

		reports = service.NewReportService(reportRepo, reportQueue, exporter, nil, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
		reports.RecoverPendingJobs(ctx)
		reports.StartCleanup(ctx)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.CutoverStage(cutoverSvc))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metrics)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/health", metricsHandler.Health)

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admissionHandler := handler.NewAdmissionHandler(admissions)
	auditHandler := handler.NewAuditHandler(audit)
	lifecycleHandler := handler.NewLifecycleHandler(registry)
	cutoverHandler := handler.NewCutoverHandler(cutoverSvc)

	api := r.Group(cfg.APIPrefix)
	authed := api.Group("")
	authed.Use(middleware.JWT(tokens))

	admissionsGroup := authed.Group("/admissions")
	{
		admissionsGroup.GET("", admissionHandler.List)
		admissionsGroup.GET("/:id", admissionHandler.Get)
		admissionsGroup.GET("/:id/actions", admissionHandler.Actions)
		admissionsGroup.GET("/:id/transitions", auditHandler.History)
		admissionsGroup.GET("/:id/chain/verify", auditHandler.VerifyChain)

		// Role checks live in the transition table, not in route
		// middleware, so a denial always carries the validator's reason.
		admissionsGroup.POST("/:id/approve", admissionHandler.Approve)
		admissionsGroup.POST("/:id/reject", admissionHandler.Reject)
		admissionsGroup.POST("/:id/verify-full-payment", admissionHandler.VerifyFullPayment)
		admissionsGroup.POST("/:id/verify-installment", admissionHandler.VerifyInstallment)
		admissionsGroup.POST("/:id/enable", admissionHandler.Enable)
		admissionsGroup.POST("/:id/disable", admissionHandler.Disable)
		admissionsGroup.POST("/:id/mark-overdue", admissionHandler.MarkOverdue)
		admissionsGroup.POST("/:id/collect-payment", admissionHandler.CollectPayment)
		admissionsGroup.POST("/:id/suspend", admissionHandler.Suspend)
		admissionsGroup.POST("/:id/reactivate", admissionHandler.Reactivate)
		admissionsGroup.POST("/:id/drop", admissionHandler.Drop)
		admissionsGroup.POST("/:id/complete", admissionHandler.Complete)
	}

	lifecycleGroup := authed.Group("/lifecycle")
	{
		lifecycleGroup.GET("/states", lifecycleHandler.States)
		lifecycleGroup.GET("/actions", lifecycleHandler.Actions)
	}

	transitionsGroup := authed.Group("/transitions")
	{
		transitionsGroup.GET("/recent",
			middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleFinance),
			auditHandler.Recent)
		transitionsGroup.GET("/chain/verify",
			middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin),
			auditHandler.VerifyAll)
	}

	if reports != nil {
		reportHandler := handler.NewReportHandler(reports, logr)
		reportsGroup := authed.Group("/reports")
		reportsGroup.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleFinance))
		reportsGroup.Use(middleware.Audit(auditLogRepo, logr, "REPORT_REQUEST", "report"))
		{
			reportsGroup.POST("/generate", reportHandler.GenerateReport)
			reportsGroup.GET("/status/:id", reportHandler.ReportStatus)
		}
		// Downloads authenticate with the signed token in the path.
		api.GET("/export/:token", reportHandler.DownloadReport)
	}

	if hub != nil {
		streamHandler := handler.NewStreamHandler(hub, logr)
		authed.GET("/stream", streamHandler.Serve)
	}

	internalGroup := authed.Group("/internal")
	internalGroup.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
	{
		internalGroup.GET("/metrics", metricsHandler.Snapshot)
		internalGroup.GET("/cutover/status", cutoverHandler.Status)
		internalGroup.GET("/cutover/ping-legacy", cutoverHandler.PingLegacy)
		internalGroup.GET("/cutover/ping-go", cutoverHandler.PingGo)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("server shutdown", "error", err)
	}
	sugar.Infow("server stopped")
}
