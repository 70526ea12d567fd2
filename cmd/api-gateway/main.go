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

	_ "github.com/edupath/assessment-api/api/swagger"
	"github.com/edupath/assessment-api/internal/handler"
	"github.com/edupath/assessment-api/internal/middleware"
	"github.com/edupath/assessment-api/internal/notify"
	"github.com/edupath/assessment-api/internal/repository"
	"github.com/edupath/assessment-api/internal/service"
	"github.com/edupath/assessment-api/pkg/cache"
	"github.com/edupath/assessment-api/pkg/config"
	"github.com/edupath/assessment-api/pkg/database"
	"github.com/edupath/assessment-api/pkg/logger"
	corsmiddleware "github.com/edupath/assessment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edupath/assessment-api/pkg/middleware/requestid"
	"github.com/edupath/assessment-api/pkg/storage"
)

// @title Assessment API
// @version 1.0.0
// @description Assessment distribution, submission and review workflow
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
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, listing cache disabled", "error", err)
		redisClient = nil
	}

	objectStore, err := storage.NewLocalObjectStore(cfg.Storage.BaseDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init object store", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	cleanup := service.NewCleanupService(objectStore, metrics, logr, cfg.Cleanup)

	var sender notify.Sender
	if cfg.Notifications.Enabled && cfg.Notifications.ResendKey != "" {
		sender = notify.NewResendSender(cfg.Notifications.ResendKey, cfg.Notifications.FromAddress, logr)
	}
	notifier := service.NewNotificationService(sender, cfg.Notifications.Enabled, logr)

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "assessment-api",
	})

	assessmentSvc := service.NewAssessmentService(assessmentRepo, submissionRepo, userRepo, objectStore, signer, cleanup, cacheSvc, auditRepo, notifier, metrics, validate, logr, service.AssessmentServiceConfig{
		MaxFileSize:   cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs:  cfg.Uploads.AllowedMIMEs,
		UploadTimeout: cfg.Storage.UploadTimeout,
		APIPrefix:     cfg.APIPrefix,
	})

	submissionSvc := service.NewSubmissionService(submissionRepo, assessmentRepo, objectStore, signer, cleanup, cacheSvc, auditRepo, metrics, logr, service.SubmissionServiceConfig{
		MaxFileSize:   cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs:  cfg.Uploads.AllowedMIMEs,
		UploadTimeout: cfg.Storage.UploadTimeout,
		APIPrefix:     cfg.APIPrefix,
	})

	reviewSvc := service.NewReviewService(submissionRepo, assessmentRepo, userRepo, auditRepo, notifier, cacheSvc, metrics, validate, logr)
	exportSvc := service.NewExportService(submissionRepo, assessmentRepo, userRepo, nil, nil, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	assessmentHandler := handler.NewAssessmentHandler(assessmentSvc, cfg.Uploads.MaxFileSizeBytes)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc, reviewSvc, exportSvc, cfg.Uploads.MaxFileSizeBytes)
	metricsHandler := handler.NewMetricsHandler(metrics)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanup.Start(rootCtx)
	defer cleanup.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/summary", metricsHandler.Summary)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
			auth.PUT("/password", middleware.JWT(authSvc), authHandler.ChangePassword)
		}

		authed := api.Group("")
		authed.Use(middleware.JWT(authSvc))
		{
			authed.GET("/me/assessments", assessmentHandler.ListMine)

			assessments := authed.Group("/assessments")
			{
				assessments.POST("", middleware.RequireAdmin(), assessmentHandler.Create)
				assessments.GET("", middleware.RequireAdmin(), assessmentHandler.List)
				assessments.GET("/:id", assessmentHandler.Get)
				assessments.PATCH("/:id", middleware.RequireAdmin(), assessmentHandler.Update)
				assessments.PUT("/:id/assignees", middleware.RequireAdmin(), assessmentHandler.AssignUsers)
				assessments.DELETE("/:id", middleware.RequireAdmin(), assessmentHandler.Delete)
				assessments.GET("/:id/media", assessmentHandler.DownloadMedia)
				assessments.POST("/:id/submissions", submissionHandler.Submit)
			}

			submissions := authed.Group("/submissions")
			{
				submissions.GET("", middleware.RequireAdmin(), submissionHandler.List)
				submissions.GET("/export", middleware.RequireAdmin(), submissionHandler.Export)
				submissions.GET("/:id", submissionHandler.Get)
				submissions.PUT("/:id/review", middleware.RequireAdmin(), submissionHandler.Review)
				submissions.DELETE("/:id", middleware.RequireAdmin(), submissionHandler.Delete)
				submissions.GET("/:id/file", submissionHandler.DownloadFile)
			}
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
