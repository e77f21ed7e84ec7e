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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/course-registration-api/api/swagger"
	"github.com/noah-isme/course-registration-api/internal/dto"
	"github.com/noah-isme/course-registration-api/internal/handler"
	"github.com/noah-isme/course-registration-api/internal/middleware"
	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/repository"
	"github.com/noah-isme/course-registration-api/internal/router"
	"github.com/noah-isme/course-registration-api/internal/service"
	"github.com/noah-isme/course-registration-api/pkg/cache"
	"github.com/noah-isme/course-registration-api/pkg/config"
	"github.com/noah-isme/course-registration-api/pkg/database"
	"github.com/noah-isme/course-registration-api/pkg/jobs"
	"github.com/noah-isme/course-registration-api/pkg/logger"
	"github.com/noah-isme/course-registration-api/pkg/realtime"
)

// @title Course Registration API
// @version 1.0.0
// @description Slot allocation for academy course registration: admin slot management, public registration and atomic seat claims.
// @BasePath /api/v1
// @schemes http https
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, running without cache, rate limit and cross-instance events", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metrics := service.NewMetricsService()
	validate := dto.NewValidator()

	hub := realtime.NewHub(0)
	metrics.TrackSubscribers(hub.Subscribers)
	var (
		events    realtime.Publisher = hub
		bridge    *realtime.RedisBridge
		limiter   middleware.RateLimiter
		cacheRepo service.CacheRepository
	)
	if redisClient != nil {
		bridge = realtime.NewRedisBridge(redisClient, hub, cfg.Realtime.RedisChannel, logr)
		events = bridge
		limiter = repository.NewRateLimitRepository(redisClient)

		redisCache := repository.NewCacheRepository(redisClient, logr)
		// grids cached by a previous build may not match the current shape
		if err := redisCache.DeleteByPattern(ctx, service.SlotGridCacheKey("*")); err != nil {
			logr.Warn("failed to flush slot grid cache", zap.Error(err))
		}
		cacheRepo = redisCache
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.SlotCache.TTL, logr, cfg.SlotCache.Enabled && cacheRepo != nil)

	var sink service.NotificationSink = service.NewLogSink(logr)
	if cfg.Notify.WebhookURL != "" {
		sink = service.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	}
	notifier := service.NewQueueNotifier(sink, metrics, jobs.QueueConfig{
		Workers:    cfg.Notify.Workers,
		MaxRetries: cfg.Notify.Retries,
		RetryDelay: time.Second,
		Logger:     logr,
	})

	location, err := time.LoadLocation(cfg.Registration.Timezone)
	if err != nil {
		logr.Warn("unknown export timezone, using UTC", zap.String("timezone", cfg.Registration.Timezone), zap.Error(err))
		location = time.UTC
	}

	periodRepo := repository.NewPeriodRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)

	authSvc := service.NewAuthService(validate, logr, service.AuthConfig{
		Secret:           cfg.JWT.Secret,
		Issuer:           cfg.JWT.Issuer,
		Expiration:       cfg.JWT.Expiration,
		BootstrapKeyHash: cfg.JWT.BootstrapKeyHash,
	})
	periodSvc := service.NewPeriodService(periodRepo, validate, cacheSvc, logr)
	slotSvc := service.NewSlotService(slotRepo, periodSvc, validate, cacheSvc, events, logr, service.SlotServiceConfig{CacheTTL: cfg.SlotCache.TTL})
	registrationSvc := service.NewRegistrationService(registrationRepo, slotRepo, periodSvc, validate, cacheSvc, events, notifier, metrics, logr, service.RegistrationServiceConfig{
		InitialStatus: models.RegistrationStatus(cfg.Registration.InitialStatus),
		Location:      location,
	})

	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	engine := router.Setup(router.Handlers{
		Public:        handler.NewPublicHandler(periodSvc, slotSvc, registrationSvc, hub, cfg.Realtime.Heartbeat, logr),
		Periods:       handler.NewPeriodHandler(periodSvc),
		Slots:         handler.NewSlotHandler(slotSvc),
		Registrations: handler.NewRegistrationHandler(registrationSvc),
		Auth:          handler.NewAuthHandler(authSvc),
		Metrics:       handler.NewMetricsHandler(metrics, checks, logr),
	}, router.Options{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		EnableMetrics:  cfg.Metrics.Enabled,
		Tokens:         authSvc,
		RateLimiter:    limiter,
		RateLimit:      cfg.Registration.RateLimit,
		RateWindow:     cfg.Registration.RateWindow,
		MetricsSvc:     metrics,
		Logger:         logr,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	notifier.Start(ctx)
	defer notifier.Stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logr.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if bridge != nil {
		// Run retries Redis on its own and only returns once gctx is done.
		group.Go(func() error { return bridge.Run(gctx) })
	}
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logr.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
