package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	accessapp "github.com/agentmarket/backend/internal/application/access"
	agentapp "github.com/agentmarket/backend/internal/application/agent"
	catalogapp "github.com/agentmarket/backend/internal/application/catalog"
	paymentapp "github.com/agentmarket/backend/internal/application/payment"
	"github.com/agentmarket/backend/internal/infrastructure/cache"
	"github.com/agentmarket/backend/internal/infrastructure/config"
	"github.com/agentmarket/backend/internal/infrastructure/event"
	"github.com/agentmarket/backend/internal/infrastructure/inference"
	"github.com/agentmarket/backend/internal/infrastructure/ledger"
	"github.com/agentmarket/backend/internal/infrastructure/logger"
	"github.com/agentmarket/backend/internal/infrastructure/persistence"
	"github.com/agentmarket/backend/internal/infrastructure/stream"
	"github.com/agentmarket/backend/internal/infrastructure/telemetry"
	"github.com/agentmarket/backend/internal/interfaces/http/handler"
	"github.com/agentmarket/backend/internal/interfaces/http/middleware"
	"github.com/agentmarket/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting AgentMarket Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Telemetry providers (no-ops when disabled)
	ctx := context.Background()
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	var marketplaceMetrics *telemetry.MarketplaceMetrics
	if meterProvider.IsEnabled() {
		marketplaceMetrics, err = telemetry.NewMarketplaceMetrics(telemetry.MarketplaceMetricsConfig{
			Meter:  meterProvider.Meter("agentmarket-backend"),
			Logger: log,
		})
		if err != nil {
			log.Fatal("Failed to initialize marketplace metrics", zap.Error(err))
		}
	}

	// Database connection with zap-backed GORM logging
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Repositories
	agentRepo := persistence.NewGormAgentRepository(db.DB)
	tierRepo := persistence.NewGormTierRepository(db.DB)
	entitlementRepo := persistence.NewGormEntitlementRepository(db.DB)
	usageRepo := persistence.NewGormUsageCounterRepository(db.DB)
	settlementRepo := persistence.NewGormSettlementRepository(db.DB)
	eventStore := persistence.NewGormEventStore(db.DB)

	// Idempotency store, Redis with in-memory fallback
	idempotencyFactory := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log))
	idempotencyStore, err := idempotencyFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Event stream: durable per-topic log with live fan-out
	bus := stream.NewStoreBackedBus(eventStore, stream.BusConfig{
		SubscriberQueue: cfg.Stream.SubscriberQueue,
		HistoryLimit:    cfg.Stream.HistoryLimit,
	}, log)
	defer func() {
		if err := bus.Close(); err != nil {
			log.Error("Error closing stream bus", zap.Error(err))
		}
	}()

	hub := stream.NewHub(bus, stream.HubConfig{
		WriteWait: cfg.Stream.WriteWait,
		PongWait:  cfg.Stream.PongWait,
	}, log)
	defer hub.Close()

	// Ledger provider for settlements
	ledgerProvider, err := ledger.NewHTTPProvider(&ledger.Config{
		BaseURL: cfg.Payment.LedgerBaseURL,
		APIKey:  cfg.Payment.LedgerAPIKey,
		Timeout: cfg.Payment.LedgerTimeout,
	})
	if err != nil {
		log.Fatal("Failed to create ledger provider", zap.Error(err))
	}

	// Inference completer, offline unless an upstream is configured
	var completer agentapp.Completer
	if cfg.Inference.BaseURL != "" {
		completer, err = inference.NewHTTPCompleter(&inference.Config{
			BaseURL:        cfg.Inference.BaseURL,
			APIKey:         cfg.Inference.APIKey,
			Timeout:        cfg.Inference.Timeout,
			MaxReplyTokens: cfg.Inference.MaxReplyTokens,
		})
		if err != nil {
			log.Fatal("Failed to create inference client", zap.Error(err))
		}
		log.Info("Inference upstream configured", zap.String("base_url", cfg.Inference.BaseURL))
		if cfg.Inference.FallbackEnabled {
			completer = inference.NewFallbackCompleter(completer, log)
			log.Info("Inference fallback enabled, provider failures degrade to canned replies")
		}
	} else {
		completer = inference.NewOfflineCompleter()
		log.Warn("No inference upstream configured, serving canned offline replies")
	}

	// Application services
	dayLocation := time.UTC
	if cfg.Access.DayLocation != "" {
		dayLocation, err = time.LoadLocation(cfg.Access.DayLocation)
		if err != nil {
			log.Fatal("Invalid day location", zap.String("location", cfg.Access.DayLocation), zap.Error(err))
		}
	}

	// Domain event bus. The stream relay republishes catalog and access
	// events onto the stream bus so subscribed buyers see them live.
	eventSerializer := event.NewEventSerializer()
	event.RegisterAllEvents(eventSerializer)

	eventBus := event.NewInMemoryEventBus(log)
	streamRelay := event.NewStreamRelay(bus, eventSerializer, log)
	eventBus.Subscribe(event.NewIdempotentHandler(streamRelay, idempotencyStore, log))
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	agentService := catalogapp.NewAgentService(agentRepo, tierRepo, log)
	gateService := accessapp.NewGateService(agentRepo, tierRepo, entitlementRepo, usageRepo, log, accessapp.GateConfig{
		FreeDailyLimit: cfg.Access.FreeDailyLimit,
		Location:       dayLocation,
	})
	invocationService := agentapp.NewInvocationService(gateService, agentRepo, completer, bus, log)
	settlementService := paymentapp.NewSettlementService(
		settlementRepo,
		tierRepo,
		entitlementRepo,
		ledgerProvider,
		idempotencyStore,
		bus,
		log,
		paymentapp.SettlementConfig{
			AllowConnectingCancel: cfg.Payment.AllowConnectingCancel,
			IdempotencyTTL:        cfg.Payment.IdempotencyTTL,
		},
	)
	agentService.SetEventPublisher(eventBus)
	settlementService.SetEventPublisher(eventBus)

	// HTTP handlers
	agentHandler := handler.NewAgentHandler(agentService, invocationService, marketplaceMetrics)
	accessHandler := handler.NewAccessHandler(gateService)
	settlementHandler := handler.NewSettlementHandler(settlementService, marketplaceMetrics)
	streamHandler := handler.NewStreamHandler(bus, hub)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.SpanErrorMarker())
		engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: meterProvider,
			ServiceName:   cfg.Telemetry.ServiceName,
			Enabled:       true,
		}))
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db))

	// API routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(agentHandler).
		Register(accessHandler).
		Register(settlementHandler).
		Register(streamHandler).
		Register(systemHandler)
	r.Setup()

	// Simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
