package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	_ "github.com/Danilnaisov/praktika05/api/swagger"
	"github.com/Danilnaisov/praktika05/internal/handler"
	"github.com/Danilnaisov/praktika05/internal/repository"
	"github.com/Danilnaisov/praktika05/internal/router"
	"github.com/Danilnaisov/praktika05/internal/service"
	"github.com/Danilnaisov/praktika05/pkg/cache"
	"github.com/Danilnaisov/praktika05/pkg/config"
	"github.com/Danilnaisov/praktika05/pkg/database"
	"github.com/Danilnaisov/praktika05/pkg/jobs"
	"github.com/Danilnaisov/praktika05/pkg/logger"
	"github.com/Danilnaisov/praktika05/pkg/storage"
)

// @title Student Records API
// @version 1.0.0
// @description Welfare office student records administration
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			sugar.Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.RoomsTTL, logr, true)
		}
	}
	if cacheSvc == nil {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Cache.RoomsTTL, logr, false)
	}

	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		sugar.Fatalw("failed to init upload storage", "error", err)
	}
	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		sugar.Fatalw("failed to init report storage", "error", err)
	}
	reportSigner := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	studentRepo := repository.NewStudentRepository(db)
	statusRepo := repository.NewStatusRepository(db)
	meetingRepo := repository.NewMeetingRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	userRepo := repository.NewUserRepository(db)
	errorLogRepo := repository.NewErrorLogRepository(db)
	reportJobRepo := repository.NewReportJobRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "student-records",
		Audience:           []string{"student-records"},
	})
	studentSvc := service.NewStudentService(studentRepo, statusRepo, meetingRepo, attachmentRepo, roomRepo, validate, logr)
	roomSvc := service.NewRoomService(roomRepo, statusRepo, cacheSvc, cfg.Cache.RoomsTTL, validate, logr)
	studentSvc.SetOccupancyInvalidator(roomSvc)
	departmentSvc := service.NewDepartmentService(departmentRepo, validate, logr)
	meetingSvc := service.NewMeetingService(meetingRepo, studentRepo, validate, logr)
	attachmentSvc := service.NewAttachmentService(attachmentRepo, uploadStore, cfg.Uploads.MaxFileSizeBytes, cfg.Uploads.AllowedMIMEs, logr)
	errorLogSvc := service.NewErrorLogService(errorLogRepo, logr)
	exportSvc := service.NewExportService(studentSvc, roomSvc, reportStore, reportSigner, logr)

	worker := service.NewReportWorker(reportJobRepo, exportSvc, metricsSvc, cfg.Reports.WorkerRetries, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})

	reportSvc := service.NewReportService(reportJobRepo, queue, exportSvc, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue.Start(ctx)
	defer queue.Stop()
	reportSvc.RecoverPendingJobs(ctx)
	reportSvc.StartCleanup(ctx)

	engine := router.New(cfg, logr, router.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Students:    handler.NewStudentHandler(studentSvc),
		Rooms:       handler.NewRoomHandler(roomSvc),
		Departments: handler.NewDepartmentHandler(departmentSvc),
		Meetings:    handler.NewMeetingHandler(meetingSvc),
		Attachments: handler.NewAttachmentHandler(attachmentSvc),
		Reports:     handler.NewReportHandler(reportSvc),
		ErrorLogs:   handler.NewErrorLogHandler(errorLogSvc),
	}, router.Services{
		Auth:      authSvc,
		Metrics:   metricsSvc,
		ErrorLogs: errorLogSvc,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugar.Infow("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("graceful shutdown failed", "error", err)
	}
}
