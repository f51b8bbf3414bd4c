package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/reviewgate/backend/internal/adapters/cache"
	"github.com/zatekoja/reviewgate/backend/internal/adapters/events"
	"github.com/zatekoja/reviewgate/backend/internal/adapters/sessions"
	"github.com/zatekoja/reviewgate/backend/internal/adapters/store"
	"github.com/zatekoja/reviewgate/backend/internal/api/handlers"
	"github.com/zatekoja/reviewgate/backend/internal/api/middleware"
	"github.com/zatekoja/reviewgate/backend/internal/api/routes"
	"github.com/zatekoja/reviewgate/backend/internal/application/services"
	"github.com/zatekoja/reviewgate/backend/internal/domain/providers"
	"github.com/zatekoja/reviewgate/backend/internal/domain/repositories"
	"github.com/zatekoja/reviewgate/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/reviewgate/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/reviewgate/backend/internal/infrastructure/observability"
	"github.com/zatekoja/reviewgate/backend/pkg/config"
)

const (
	memoryCacheBytes     = 64 << 20
	adminJanitorInterval = time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithSecrets(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Redis backs the session cache and change notifications. Without it
	// both fall back to in-process implementations.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, continuing with in-process cache")
		} else {
			defer redisClient.Close()
			log.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Redis client initialized")
		}
	}

	var (
		cacheProvider providers.CacheProvider
		eventBus      providers.EventBus
	)
	if redisClient != nil {
		cacheProvider = cache.NewRedisAdapter(redisClient, "reviewgate")
		eventBus = events.NewRedisEventBus(redisClient)
		defer eventBus.Close()
	} else {
		memoryCache, err := cache.NewMemoryAdapter(memoryCacheBytes, handlers.ComplaintFingerprintPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create in-process cache")
		}
		defer memoryCache.Close()
		cacheProvider = memoryCache
	}

	documentStore, closeStore := openStore(ctx, cfg, eventBus)
	defer closeStore()

	// Initialize services
	notices := services.NewNoticeBoard(0)
	gateway := services.NewPersistenceGateway(documentStore, cfg.StoreConfigured(), notices, metrics)
	if !gateway.Configured() {
		notices.Post(services.NoticeError, "document store is not configured; feedback will not be saved")
	}

	submissionService := services.NewSubmissionService(
		sessions.NewCacheSessionStore(cacheProvider, cfg.Widget.SessionTTL),
		gateway,
		cfg.Widget.ReviewURL,
	)

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(submissionService, cacheProvider)
	statusHandler := handlers.NewStatusHandler(gateway, notices)

	var (
		adminHandler  *handlers.AdminHandler
		streamHandler *handlers.StreamHandler
		adminSessions middleware.AdminSessions
		adminManager  *services.AdminSessionManager
	)
	gate := services.NewAdminGate(cfg.Admin.Secret)
	if gate.Enabled() {
		adminManager = services.NewAdminSessionManager(gate, gateway, metrics, cfg.Admin.ConfirmWindow, cfg.Admin.SessionTTL)
		defer adminManager.Close()
		go adminManager.RunJanitor(ctx, adminJanitorInterval)

		adminHandler = handlers.NewAdminHandler(adminManager, handlers.RulesText{
			Statement: store.GrantStatement(cfg.Database.User),
			Guidance:  services.GuidancePermissionDenied,
		})
		streamHandler = handlers.NewStreamHandler(0)
		adminSessions = adminManager
	} else {
		log.Warn().Msg("ADMIN_SECRET is not set; admin console disabled")
	}

	// Set up router
	router := routes.NewRouter(
		sessionHandler,
		statusHandler,
		adminHandler,
		streamHandler,
		adminSessions,
		cfg.Server.AllowedOrigins,
		metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     router.SetupRoutes(),
		ReadTimeout: 15 * time.Second,
		// The admin stream clears its own write deadline
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down")

	// Cancelling the base context ends open admin streams so Shutdown can drain.
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	// Let detached feedback writes land before the store closes.
	submissionService.Wait()

	log.Info().Msg("Server stopped")
}

// openStore picks the document store for the configured driver. Missing
// credentials yield a nil store and the persistence gateway refuses
// operations. With real credentials the Postgres store is always built, so an
// unreachable server fails each write or delete as unavailable.
func openStore(ctx context.Context, cfg *config.Config, bus providers.EventBus) (repositories.DocumentStore, func()) {
	noop := func() {}

	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Warn().Msg("Using in-memory document store; feedback is lost on restart")
		return store.NewMemoryStore(), noop
	}

	if !cfg.StoreConfigured() {
		log.Error().Msg("Database credentials are still the placeholder; feedback will not be saved")
		return nil, noop
	}

	pgClient, err := connectPostgres(ctx, &cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize PostgreSQL client")
		return nil, noop
	}

	pgStore := store.NewPostgresStore(pgClient, bus, cfg.Store.PollInterval)
	if err := pgStore.InitSchema(ctx); err != nil {
		// A role without DDL rights can still use an existing table.
		log.Warn().Err(err).Msg("Failed to initialize documents schema")
	}

	log.Info().Bool("event_bus", bus != nil).Msg("PostgreSQL document store ready")
	return pgStore, func() {
		if err := pgClient.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing PostgreSQL client")
		}
	}
}

// connectPostgres waits for the database like postgres.NewClient. When the
// server stays unreachable it returns a lazily connecting client instead.
func connectPostgres(ctx context.Context, cfg *config.DatabaseConfig) (*postgres.Client, error) {
	client, err := postgres.NewClient(ctx, cfg)
	if err == nil {
		return client, nil
	}
	log.Warn().Err(err).Msg("PostgreSQL is unreachable; writes will fail until it recovers")
	return postgres.Open(cfg)
}
