package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/ambassador-api/api/swagger"
	"github.com/noah-isme/ambassador-api/internal/handler"
	internalmiddleware "github.com/noah-isme/ambassador-api/internal/middleware"
	"github.com/noah-isme/ambassador-api/internal/repository"
	"github.com/noah-isme/ambassador-api/internal/service"
	"github.com/noah-isme/ambassador-api/internal/waitlist"
	"github.com/noah-isme/ambassador-api/pkg/cache"
	"github.com/noah-isme/ambassador-api/pkg/config"
	"github.com/noah-isme/ambassador-api/pkg/database"
	"github.com/noah-isme/ambassador-api/pkg/export"
	"github.com/noah-isme/ambassador-api/pkg/jobs"
	"github.com/noah-isme/ambassador-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/ambassador-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ambassador-api/pkg/middleware/requestid"
	"github.com/noah-isme/ambassador-api/pkg/storage"
)

// @title Ambassador Program API
// @version 1.0.0
// @description Intake, waitlist, portal and admin API for the student ambassador program.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const maintenanceInterval = 15 * time.Minute

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	metrics := service.NewMetricsService()

	var redisRepo *repository.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			redisRepo = repository.NewCacheRepository(client, cache.Namespace(cfg.Redis.KeyPrefix), logr)
			defer redisRepo.Close() //nolint:errcheck
		}
	}
	var cacheRepo service.CacheRepository
	if redisRepo != nil {
		cacheRepo = redisRepo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr)

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewRefreshTokenRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	applicantRepo := repository.NewApplicantRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	typeRepo := repository.NewAmbassadorTypeRepository(db)
	challengeRepo := repository.NewChallengeRepository(db)
	opportunityRepo := repository.NewOpportunityRepository(db)

	validate := validator.New()
	scoring := waitlist.Config{
		BaseScore:          cfg.Scoring.BaseScore,
		PerInterest:        cfg.Scoring.PerInterest,
		ContentBonus:       cfg.Scoring.ContentBonus,
		PerHouseholdMember: cfg.Scoring.PerHouseholdMember,
		HouseholdCap:       cfg.Scoring.HouseholdCap,
		PoolSize:           cfg.Scoring.PoolSize,
		PointsPerRank:      cfg.Scoring.PointsPerRank,
	}

	notifier, queue := buildNotifier(ctx, cfg, metrics, logr)
	if queue != nil {
		defer queue.Stop()
	}

	authSvc := service.NewAuthService(userRepo, sessionRepo, applicantRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		PortalTokenExpiry:  cfg.JWT.PortalExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr)
	intakeSvc, err := service.NewIntakeService(service.IntakeServiceParams{
		Applicants: applicantRepo,
		Schools:    schoolRepo,
		Types:      typeRepo,
		Tokens:     authSvc,
		Notifier:   notifier,
		Cache:      cacheSvc,
		Metrics:    metrics,
		Validator:  validate,
		Logger:     logr,
		Random:     rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec
		Config: service.IntakeConfig{
			Enabled:              cfg.Intake.Enabled,
			Waitlist:             scoring,
			ReferralBonus:        cfg.Scoring.ReferralBonus,
			ReferralCodeAttempts: cfg.Intake.ReferralCodeAttempts,
		},
	})
	if err != nil {
		logr.Fatal("failed to build intake service", zap.Error(err))
	}
	applicantSvc := service.NewApplicantService(applicantRepo, auditRepo, notifier, cacheSvc, validate, logr, scoring, cfg.Scoring.ReferralBonus)
	schoolSvc := service.NewSchoolService(schoolRepo, cacheSvc, validate, logr)
	catalogSvc := service.NewCatalogService(typeRepo, challengeRepo, validate, logr)
	boostSvc := service.NewBoostService(challengeRepo, cacheSvc, metrics, logr, scoring)
	opportunitySvc := service.NewOpportunityService(opportunityRepo, applicantRepo, auditRepo, cacheSvc, validate, logr)
	leaderboardSvc := service.NewLeaderboardService(applicantRepo, cacheSvc, cfg.Leaderboard.Size, cfg.Leaderboard.CacheTTL)
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Applicants:    applicantRepo,
		Completions:   challengeRepo,
		Opportunities: opportunityRepo,
		Cache:         cacheSvc,
		Config:        service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})
	auditSvc := service.NewAuditService(auditRepo)

	store, err := storage.NewDisk(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare storage", zap.Error(err))
	}
	signer := storage.NewDownloadSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)
	uploadSvc := service.NewUploadService(store, signer, service.UploadConfig{
		APIPrefix:    cfg.APIPrefix,
		MaxBytes:     cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
	}, logr)
	exportSvc := service.NewExportService(applicantRepo, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: time.Hour,
	}, logr, export.NewCSVExporter(), export.NewPDFExporter())
	go runMaintenance(ctx, exportSvc, sessionRepo, logr)

	routes := &handler.Router{
		Tokens:        authSvc,
		AuditRepo:     auditRepo,
		Metrics:       metrics,
		RateLimiter:   internalmiddleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Logger:        logr,
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Intake:        handler.NewIntakeHandler(intakeSvc),
		Schools:       handler.NewSchoolHandler(schoolSvc),
		Uploads:       handler.NewUploadHandler(uploadSvc),
		Portal:        handler.NewPortalHandler(authSvc, applicantSvc, boostSvc, opportunitySvc, leaderboardSvc),
		Applicants:    handler.NewApplicantHandler(applicantSvc, exportSvc),
		Exports:       handler.NewExportHandler(exportSvc),
		Catalog:       handler.NewCatalogHandler(catalogSvc),
		Opportunities: handler.NewOpportunityHandler(opportunitySvc),
		Dashboard:     handler.NewDashboardHandler(dashboardSvc),
		Audit:         handler.NewAuditHandler(auditSvc),
		MetricsView:   handler.NewMetricsHandler(metrics, dependencies(db, redisRepo)...),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/health", "/ready", "/metrics"))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", routes.MetricsView.Health)
	r.GET("/ready", routes.MetricsView.Ready)
	r.GET("/metrics", routes.MetricsView.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	routes.Register(r.Group(path.Clean("/" + cfg.APIPrefix)))

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
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
}

// buildNotifier returns the email notifier and, when enabled, the started queue feeding it.
func buildNotifier(ctx context.Context, cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger) (*service.NotificationService, *jobs.Queue) {
	notifyCfg := service.NotificationConfig{
		Enabled:   cfg.Notifications.Enabled,
		Sender:    cfg.Notifications.Sender,
		PortalURL: cfg.Notifications.PortalURL,
	}
	if !notifyCfg.Enabled {
		return service.NewNotificationService(nil, metrics, logr, notifyCfg), nil
	}
	client, err := service.NewSESClient(ctx, cfg.Notifications.AWSRegion)
	if err != nil {
		logr.Warn("notifications disabled", zap.Error(err))
		notifyCfg.Enabled = false
		return service.NewNotificationService(nil, metrics, logr, notifyCfg), nil
	}
	notifier := service.NewNotificationService(client, metrics, logr, notifyCfg)
	queue := jobs.NewQueue("notifications", notifier.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: 256,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		JobTimeout: cfg.Notifications.SendTimeout,
		OnFailure:  notifier.OnFailure,
		Logger:     logr,
	})
	queue.Start(context.WithoutCancel(ctx))
	metrics.TrackQueue("notifications", queue.Stats)
	notifier.SetQueue(queue)
	return notifier, queue
}

// dependencies lists what /ready pings. Redis is optional; an outage
// degrades to uncached reads.
func dependencies(db *sqlx.DB, redisRepo *repository.CacheRepository) []handler.Dependency {
	deps := []handler.Dependency{{Name: "database", Ping: db.PingContext}}
	cacheDep := handler.Dependency{Name: "cache", Optional: true}
	if redisRepo != nil {
		cacheDep.Ping = redisRepo.Ping
	}
	return append(deps, cacheDep)
}

// runMaintenance removes expired export files and purges staff sessions
// that expired more than a day ago.
func runMaintenance(ctx context.Context, exports *service.ExportService, sessions *repository.RefreshTokenRepository, logr *zap.Logger) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed, err := exports.Cleanup(time.Hour); err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
			} else if len(removed) > 0 {
				logr.Info("expired exports removed", zap.Int("count", len(removed)))
			}
			purged, err := sessions.DeleteExpired(ctx, time.Now().UTC().Add(-24*time.Hour))
			if err != nil {
				logr.Warn("session purge failed", zap.Error(err))
			} else if purged > 0 {
				logr.Info("expired sessions purged", zap.Int64("count", purged))
			}
		}
	}
}
