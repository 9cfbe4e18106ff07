package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/familyhub/calendar-sync-api/internal/handler"
	"github.com/familyhub/calendar-sync-api/internal/ical"
	"github.com/familyhub/calendar-sync-api/internal/middleware"
	"github.com/familyhub/calendar-sync-api/internal/repository"
	"github.com/familyhub/calendar-sync-api/internal/scheduler"
	"github.com/familyhub/calendar-sync-api/internal/service"
	"github.com/familyhub/calendar-sync-api/pkg/cache"
	"github.com/familyhub/calendar-sync-api/pkg/config"
	"github.com/familyhub/calendar-sync-api/pkg/database"
	"github.com/familyhub/calendar-sync-api/pkg/jobs"
	"github.com/familyhub/calendar-sync-api/pkg/logger"
	corsmiddleware "github.com/familyhub/calendar-sync-api/pkg/middleware/cors"
	reqidmiddleware "github.com/familyhub/calendar-sync-api/pkg/middleware/requestid"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, calendar view caching disabled", "error", err)
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Events.CacheTTL, logr, false)
	} else {
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Events.CacheTTL, logr, true)
	}

	subRepo := repository.NewSubscriptionRepository(db)
	eventRepo := repository.NewEventRepository(db)

	fetcher := ical.NewFetcher(cfg.Sync.FetchTimeout, cfg.Sync.UserAgent, logr)
	parser := ical.NewParser(logr)

	syncSvc := service.NewSyncService(subRepo, eventRepo, fetcher, parser, cacheSvc, metricsSvc, logr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := jobs.NewQueue("calendar-sync", func(ctx context.Context, job jobs.SyncJob) error {
		result := syncSvc.SyncOne(ctx, job.SubscriptionID, job.UserID)
		if !result.Success {
			return fmt.Errorf("sync %s: %s", job.SubscriptionID, result.Error)
		}
		return nil
	}, jobs.QueueConfig{
		Workers:    cfg.Sync.WorkerConcurrency,
		MaxRetries: cfg.Sync.WorkerRetries,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	subSvc := service.NewSubscriptionService(subRepo, queue, validator.New(), logr)
	eventSvc := service.NewEventService(eventRepo, cacheSvc, cfg.Events.CacheTTL, logr)

	subHandler := handler.NewSubscriptionHandler(subSvc, syncSvc)
	eventHandler := handler.NewEventHandler(eventSvc, cfg.Events.ExportEnabled)
	syncHandler := handler.NewSyncHandler(syncSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group("/api/v1")
	api.GET("/cron/sync-calendars", middleware.CronAuth(cfg.Sync.CronSecret), syncHandler.CronSyncAll)

	authed := api.Group("/calendar", middleware.JWT(cfg.JWT.Secret))
	{
		authed.GET("/subscriptions", subHandler.List)
		authed.POST("/subscriptions", subHandler.Create)
		authed.GET("/subscriptions/:id", subHandler.Get)
		authed.PUT("/subscriptions/:id", subHandler.Update)
		authed.DELETE("/subscriptions/:id", subHandler.Delete)
		authed.POST("/subscriptions/:id/sync", subHandler.Sync)
		authed.POST("/sync", syncHandler.SyncUser)
		authed.GET("/events", eventHandler.List)
		authed.GET("/events/export", eventHandler.Export)
	}

	var sched *scheduler.Scheduler
	if cfg.Sync.CronEnabled {
		sched, err = scheduler.New(cfg.Sync.CronSpec, syncSvc, logr)
		if err != nil {
			logr.Sugar().Fatalw("invalid sync cron spec", "spec", cfg.Sync.CronSpec, "error", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logr.Sugar().Infow("signal received, shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
