package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/oncall-api/internal/handler"
	"github.com/noah-isme/oncall-api/internal/middleware"
	"github.com/noah-isme/oncall-api/internal/repository"
	"github.com/noah-isme/oncall-api/internal/service"
	"github.com/noah-isme/oncall-api/internal/source"
	"github.com/noah-isme/oncall-api/pkg/cache"
	"github.com/noah-isme/oncall-api/pkg/config"
	"github.com/noah-isme/oncall-api/pkg/database"
	"github.com/noah-isme/oncall-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/oncall-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/oncall-api/pkg/middleware/requestid"
	"github.com/noah-isme/oncall-api/pkg/notify"
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache or fired guard", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	loader := source.NewFileSource(
		cfg.Schedule.SourcePath,
		cfg.Schedule.OverridesPath,
		cfg.Schedule.DefaultOffset,
		logr,
	)
	store := source.NewDocumentStore(loader, logr)
	if err := store.Reload(); err != nil {
		// The scheduler refuses to arm until a document loads; the API
		// still starts so reload and history endpoints stay reachable.
		logr.Warn("initial schedule load failed", zap.Error(err))
	}

	metrics := service.NewMetricsService()
	rotation := service.NewRotationService(logr)
	occurrences := service.NewOccurrenceService(logr)

	sink, err := buildSink(cfg, logr)
	if err != nil {
		logr.Fatal("failed to build notification sink", zap.Error(err))
	}
	notifier := service.NewNotificationService(sink, cfg.Notifier.DispatchTimeout, metrics, logr)

	ledger := service.NewLedgerService(
		repository.NewVersionRepository(db),
		repository.NewAssignmentRepository(db),
		repository.NewOverrideRepository(db),
		repository.NewMetadataRepository(db),
		store,
		rotation,
		redisClient,
		metrics,
		logr,
		service.LedgerConfig{
			RetentionMonths: cfg.Ledger.RetentionMonths,
			AutoVersion:     cfg.Ledger.AutoVersion,
			CacheTTL:        cfg.Redis.CacheTTL,
		},
	)

	scheduler := service.NewSchedulerService(
		store,
		rotation,
		occurrences,
		notifier,
		ledger,
		service.NewFiredGuard(redisClient, logr),
		metrics,
		logr,
		service.SchedulerConfig{
			TickInterval:  cfg.Scheduler.TickInterval,
			LookAhead:     cfg.Scheduler.LookAhead,
			NotifyLead:    cfg.Scheduler.NotifyLead,
			UpcomingCount: cfg.Scheduler.UpcomingCount,
		},
	)

	exporter := service.NewExportService(ledger, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, _, err := ledger.EnsureVersion(ctx, "startup", "captured on startup"); err != nil {
		logr.Warn("initial version capture failed", zap.Error(err))
	}

	notifier.Start(ctx)
	defer notifier.Stop()
	go scheduler.Run(ctx)
	go runCleanupLoop(ctx, ledger, cfg.Ledger.CleanupInterval, logr)

	router := buildRouter(cfg, logr, metrics, scheduler, ledger, exporter, store)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
}

func buildRouter(
	cfg *config.Config,
	logr *zap.Logger,
	metrics *service.MetricsService,
	scheduler *service.SchedulerService,
	ledger *service.LedgerService,
	exporter *service.ExportService,
	store *source.DocumentStore,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	oncallHandler := handler.NewOnCallHandler(scheduler)
	historyHandler := handler.NewHistoryHandler(ledger, exporter)
	overrideHandler := handler.NewOverrideHandler(ledger)
	scheduleHandler := handler.NewScheduleHandler(store, ledger, scheduler)

	r.GET("/health", scheduleHandler.Health)
	r.GET("/ready", scheduleHandler.Ready)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/oncall/current", oncallHandler.Current)
		api.GET("/oncall/upcoming", oncallHandler.Upcoming)

		api.GET("/history/assignments", historyHandler.Assignment)
		api.GET("/history/schedule", historyHandler.Schedule)
		api.GET("/history/versions", historyHandler.Versions)
		api.POST("/history/versions", historyHandler.CreateVersion)
		api.POST("/history/cleanup", historyHandler.Cleanup)
		api.GET("/history/export", historyHandler.Export)

		api.GET("/overrides/:month", overrideHandler.Get)
		api.PUT("/overrides/:month", overrideHandler.Put)

		api.POST("/schedule/reload", scheduleHandler.Reload)
	}

	return r
}

func buildSink(cfg *config.Config, logr *zap.Logger) (notify.Sink, error) {
	switch cfg.Notifier.Sink {
	case "", "log":
		return notify.NewLogSink(logr), nil
	case "webhook":
		if cfg.Notifier.WebhookURL == "" {
			return nil, fmt.Errorf("webhook sink requires NOTIFIER_WEBHOOK_URL")
		}
		return notify.NewWebhookSink(cfg.Notifier.WebhookURL, nil), nil
	case "smtp":
		return notify.NewSMTPSink(cfg.Notifier.SMTP)
	case "amqp":
		conn, err := amqp.Dial(cfg.Notifier.AMQP.URL)
		if err != nil {
			return nil, fmt.Errorf("dial amqp broker: %w", err)
		}
		return notify.NewAMQPSink(conn, cfg.Notifier.AMQP.Queue)
	}
	return nil, fmt.Errorf("unknown notifier sink %q", cfg.Notifier.Sink)
}

func runCleanupLoop(ctx context.Context, ledger *service.LedgerService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := ledger.Cleanup(ctx, 0); err != nil {
				logr.Error("scheduled cleanup failed", zap.Error(err))
			}
		}
	}
}
