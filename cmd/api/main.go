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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/cmcs-platform/claims-api/api/swagger"
	"github.com/cmcs-platform/claims-api/internal/handler"
	"github.com/cmcs-platform/claims-api/internal/middleware"
	"github.com/cmcs-platform/claims-api/internal/models"
	"github.com/cmcs-platform/claims-api/internal/repository"
	"github.com/cmcs-platform/claims-api/internal/service"
	"github.com/cmcs-platform/claims-api/pkg/cache"
	"github.com/cmcs-platform/claims-api/pkg/config"
	"github.com/cmcs-platform/claims-api/pkg/database"
	"github.com/cmcs-platform/claims-api/pkg/jobs"
	"github.com/cmcs-platform/claims-api/pkg/logger"
	corsmiddleware "github.com/cmcs-platform/claims-api/pkg/middleware/cors"
	reqidmiddleware "github.com/cmcs-platform/claims-api/pkg/middleware/requestid"
	"github.com/cmcs-platform/claims-api/pkg/storage"
)

// @title CMCS Claims API
// @version 1.0.0
// @description Contract lecturer monthly claims management
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, dashboard cache disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	validate := validator.New()

	claimRepo := repository.NewClaimRepository(db)
	lecturerRepo := repository.NewLecturerRepository(db)
	userRepo := repository.NewUserRepository(db)
	reportRepo := repository.NewReportRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "claims-api",
		Audience:           []string{"claims-clients"},
	})
	lecturerSvc := service.NewLecturerService(lecturerRepo, validate, logr)
	claimSvc := service.NewClaimService(claimRepo, lecturerSvc, cfg.Claims, logr)
	approvalSvc := service.NewApprovalService(claimRepo, metricsSvc, logr)
	exportSvc := service.NewExportService(claimRepo, userRepo, lecturerRepo, logr)
	reportSvc := service.NewReportService(reportRepo, exportSvc, store, signer, metricsSvc, validate, logr, cfg.Reports.SignedURLTTL)
	dashboardSvc := service.NewDashboardService(claimRepo, redisClient, metricsSvc, logr, cfg.Dashboard.CacheTTL)
	userSvc := service.NewUserService(userRepo, validate, logr)

	// Mutations that move the dashboard counters drop the cached snapshot.
	claimSvc.SetDashboardCache(dashboardSvc)
	approvalSvc.SetDashboardCache(dashboardSvc)
	lecturerSvc.SetDashboardCache(dashboardSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := jobs.NewQueue("reports", reportSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportSvc.SetQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()
	reportSvc.StartCleanupLoop(ctx, cfg.Reports.CleanupInterval)

	authHandler := handler.NewAuthHandler(authSvc)
	claimHandler := handler.NewClaimHandler(claimSvc, cfg.Claims)
	approvalHandler := handler.NewApprovalHandler(approvalSvc)
	lecturerHandler := handler.NewLecturerHandler(lecturerSvc)
	userHandler := handler.NewUserHandler(userSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	// Download is token-gated by the signed URL itself, not by a session.
	api.GET("/reports/download/:token", reportHandler.Download)

	secured := api.Group("", middleware.JWT(authSvc))

	claims := secured.Group("/claims")
	{
		claims.POST("", middleware.RequireRoles(models.RoleLecturer), claimHandler.Submit)
		claims.GET("", claimHandler.List)
		claims.GET("/:id", claimHandler.Get)
		claims.GET("/:id/documents/:docId", claimHandler.DownloadDocument)

		claims.POST("/:id/approve",
			middleware.RequireRoles(models.RoleCoordinator, models.RoleManager),
			middleware.Audit(userRepo, models.AuditActionClaimApprove, "claim"),
			approvalHandler.Approve)
		claims.POST("/:id/reject",
			middleware.RequireRoles(models.RoleCoordinator, models.RoleManager),
			middleware.Audit(userRepo, models.AuditActionClaimReject, "claim"),
			approvalHandler.Reject)
		claims.POST("/:id/pay",
			middleware.RequireRoles(models.RoleHR),
			middleware.Audit(userRepo, models.AuditActionClaimPay, "claim"),
			approvalHandler.MarkPaid)
	}

	approvals := secured.Group("/approvals")
	{
		approvals.GET("/pending", middleware.RequireRoles(models.RoleCoordinator), approvalHandler.PendingQueue)
		approvals.GET("/review", middleware.RequireRoles(models.RoleManager), approvalHandler.ReviewQueue)
	}

	lecturers := secured.Group("/lecturers", middleware.RequireRoles(models.RoleHR))
	{
		lecturers.GET("", lecturerHandler.List)
		lecturers.GET("/:id", lecturerHandler.Get)
		lecturers.POST("", middleware.Audit(userRepo, models.AuditActionLecturerCreate, "lecturer"), lecturerHandler.Create)
		lecturers.PUT("/:id", middleware.Audit(userRepo, models.AuditActionLecturerUpdate, "lecturer"), lecturerHandler.Update)
		lecturers.DELETE("/:id", middleware.Audit(userRepo, models.AuditActionLecturerDelete, "lecturer"), lecturerHandler.Deactivate)
	}

	users := secured.Group("/users")
	{
		users.GET("", middleware.RequireRoles(models.RoleHR), userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleHR), "SELF"), userHandler.Get)
		users.POST("", middleware.RequireRoles(models.RoleHR), middleware.Audit(userRepo, models.AuditActionUserCreate, "user"), userHandler.Create)
		users.PUT("/:id", middleware.RequireRoles(models.RoleHR), middleware.Audit(userRepo, models.AuditActionUserUpdate, "user"), userHandler.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleHR), middleware.Audit(userRepo, models.AuditActionUserDelete, "user"), userHandler.Deactivate)
	}

	reports := secured.Group("/reports", middleware.RequireRoles(models.RoleCoordinator, models.RoleManager, models.RoleHR))
	{
		reports.POST("", reportHandler.Create)
		reports.GET("/:id", reportHandler.Status)
	}

	secured.GET("/dashboard", middleware.RequireRoles(models.RoleHR), dashboardHandler.Stats)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
