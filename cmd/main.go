package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenant-service/internal/audit"
	"tenant-service/internal/credential"
	"tenant-service/internal/handler"
	"tenant-service/internal/middleware"
	"tenant-service/internal/model"
	"tenant-service/internal/provisioning"
	"tenant-service/internal/publisher"
	"tenant-service/internal/repository"
	"tenant-service/internal/service"
	"tenant-service/pkg/config"
	"tenant-service/pkg/database"
	"tenant-service/pkg/jwtutil"
	"tenant-service/pkg/logger"
	"tenant-service/pkg/telemetry"
	"tenant-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer func() { _ = log.Sync() }()
	log.Info("Starting tenant service...", cfg.LogConfig()...)

	shutdownTelemetry := telemetry.Setup(context.Background(), cfg.ServiceName, cfg.Telemetry, log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	db, err := database.Open(&cfg.DB, log, model.Models()...)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	prometheus.InitMetrics(cfg)

	// Repositories
	tenantRepo := repository.NewTenantRepository(db)
	actorRepo := repository.NewActorRepository(db)
	branchRepo := repository.NewBranchRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Audit trail, mirrored to Kafka when brokers are configured
	var trailOpts []audit.Option
	if cfg.Audit.KafkaBrokers != "" {
		pub, err := publisher.NewAuditPublisher(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic, log)
		if err != nil {
			log.Warn("Audit mirror disabled", zap.Error(err))
		} else {
			defer pub.Close()
			trailOpts = append(trailOpts, audit.WithPublisher(pub))
		}
	}
	trail := audit.NewTrail(auditRepo, trailOpts...)
	defer trail.Wait()

	// Two independently keyed session contexts
	companySessions := jwtutil.NewJWTUtil(model.AccountCompany, jwtutil.JWTConfig{
		SigningKey: cfg.Session.CompanyKey,
		TTL:        cfg.Session.TTL,
		Issuer:     cfg.Session.Issuer,
	})
	managerSessions := jwtutil.NewJWTUtil(model.AccountManager, jwtutil.JWTConfig{
		SigningKey: cfg.Session.ManagerKey,
		TTL:        cfg.Session.TTL,
		Issuer:     cfg.Session.Issuer,
	})

	e := echo.New()
	e.HideBanner = true
	ipExtractor, err := middleware.ClientIPExtractor(cfg.Server.TrustedProxies)
	if err != nil {
		log.Fatal("Invalid trusted proxy configuration", zap.Error(err))
	}
	e.IPExtractor = ipExtractor

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	routes := handler.RouterConfig{
		Provisioner: provisioning.NewProvisioner(tenantRepo, cfg.Provisioning),
		Admin:       service.NewAdminService(tenantRepo, branchRepo, actorRepo, trail, cfg.Provisioning.BcryptCost),
		Company: handler.Surface{
			Credentials:   credential.NewStore(model.AccountCompany, actorRepo),
			Sessions:      companySessions,
			CookieName:    cfg.Session.CompanyCookieName,
			SecureCookies: cfg.Session.SecureCookies,
			LoginPath:     "/login",
			HomeRoot:      "/dashboard",
		},
		Manager: handler.Surface{
			Credentials:   credential.NewStore(model.AccountManager, actorRepo),
			Sessions:      managerSessions,
			CookieName:    cfg.Session.ManagerCookieName,
			SecureCookies: cfg.Session.SecureCookies,
			LoginPath:     "/manager/login",
			HomeRoot:      "/manager",
		},
		Health: handler.NewHealthHandler(cfg.ServiceName, func() error { return database.Ping(db) }),
	}
	if cfg.Metrics.Enabled {
		routes.Metrics = prometheus.GetPrometheusHandler()
	}
	handler.RegisterRoutes(e, routes)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(e, cfg.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
