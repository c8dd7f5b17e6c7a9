package bootstrap

import (
	"context"
	"fmt"

	"crm_server/adapter/out/messaging"
	"crm_server/adapter/out/mongodb"
	"crm_server/adapter/out/persistence"
	"crm_server/adapter/out/realtime"
	"crm_server/config"
	"crm_server/core/port/out"
	"crm_server/core/service/resolution"
	"crm_server/infra/database"
	"crm_server/pkg/cache"
	"crm_server/pkg/logger"
	"crm_server/pkg/metrics"
	"crm_server/pkg/ratelimit"
	"crm_server/pkg/resilience"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	domainCachePrefix = "crm:org:"
	latencyWindow     = 1000
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Metrics
	Registry *prometheus.Registry
	Metrics  *metrics.ResolutionMetrics
	Latency  *metrics.LatencyRegistry

	// Repositories
	OrganizationRepo out.OrganizationRepository
	ContactRepo      out.ContactRepository
	DecisionLog      out.ResolutionLogRepository

	// Rate limiting
	ComputeLimiter *ratelimit.SlidingWindowLimiter

	// Events
	Hub       *realtime.SuggestionHub
	Forwarder *messaging.EventForwarder

	// Resolution
	Store             *resolution.SuggestionStore
	ResolutionService *resolution.Service
}

func NewDependencies(ctx context.Context, cfg *config.Config, zlog zerolog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// PostgreSQL
	pool, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.DefaultPostgresConfig(cfg.DBMaxConns))
	if err != nil {
		return fail(fmt.Errorf("connect postgres: %w", err))
	}
	deps.DB = pool
	cleanups = append(cleanups, pool.Close)

	sqlDB, err := database.NewSQLX(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fail(fmt.Errorf("connect sqlx: %w", err))
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	if cfg.AutoMigrate {
		if err := database.EnsureSchema(ctx, sqlDB); err != nil {
			return fail(fmt.Errorf("ensure schema: %w", err))
		}
		logger.Info("Database schema ensured")
	}

	// Redis (optional: domain cache, event stream and rate limiting)
	if cfg.RedisURL != "" {
		client, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, running without domain cache and event stream")
		} else {
			deps.Redis = client
			cleanups = append(cleanups, func() { client.Close() })
		}
	}

	// MongoDB (optional: decision log)
	if cfg.MongoDBURL != "" {
		client, decisionLog, err := mongodb.OpenDecisionLog(ctx, cfg.MongoDBURL, cfg.MongoDBName)
		if err != nil {
			logger.WithError(err).Warn("MongoDB unavailable, decision log disabled")
		} else {
			deps.MongoDB = client
			cleanups = append(cleanups, func() { client.Disconnect(context.Background()) })

			if err := decisionLog.EnsureIndexes(ctx); err != nil {
				logger.WithError(err).Warn("Failed to ensure decision log indexes")
			}
			deps.DecisionLog = decisionLog
		}
	}

	// Metrics
	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = metrics.NewResolutionMetrics(deps.Registry)
	deps.Latency = metrics.NewLatencyRegistry(latencyWindow)

	// Repositories
	orgAdapter := persistence.NewOrganizationAdapter(sqlDB)
	deps.OrganizationRepo = orgAdapter
	if deps.Redis != nil {
		deps.OrganizationRepo = persistence.NewCachedOrganizationAdapter(
			orgAdapter,
			cache.NewRedisCache(deps.Redis, domainCachePrefix),
			cfg.DomainCacheTTL,
		)
	}
	deps.ContactRepo = persistence.NewContactAdapter(sqlDB)

	// Without Redis the limiter admits every request.
	deps.ComputeLimiter = ratelimit.NewSlidingWindowLimiter(deps.Redis, cfg.ComputeRateLimit, cfg.ComputeRateWindow)

	// Events
	deps.Hub = realtime.NewSuggestionHub(zlog)
	deps.Store = resolution.NewSuggestionStore(deps.Hub)

	if deps.Redis != nil {
		forwarder := messaging.NewEventForwarder(
			messaging.NewRedisProducer(deps.Redis, cfg.EventStreamMaxLen), 0, zlog)
		fctx, cancel := context.WithCancel(context.Background())
		go forwarder.Run(fctx)
		cleanups = append(cleanups, func() {
			cancel()
			forwarder.Wait()
		})
		deps.Forwarder = forwarder
		deps.Store.AddSink(forwarder)
	}

	// Resolution
	breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("organization_store"))

	resolver := resolution.NewResolver(deps.OrganizationRepo, resolution.ResolverConfig{
		VariantLimit:    cfg.VariantLimit,
		VariantMinScore: cfg.VariantMinScore,
		DefaultCategory: cfg.DefaultCategory,
	}).WithBreaker(breaker).WithMetrics(deps.Metrics, deps.Latency)

	scheduler := resolution.NewBatchScheduler(resolver, deps.Store, resolution.SchedulerConfig{
		GroupSize: cfg.GroupSize,
		Pacing:    cfg.Pacing,
	}, zlog).WithMetrics(deps.Metrics, deps.Latency)

	workflow := resolution.NewConfirmationWorkflow(deps.OrganizationRepo, deps.Store, deps.DecisionLog).
		WithMetrics(deps.Metrics)

	deps.ResolutionService = resolution.NewService(scheduler, workflow)

	return deps, cleanup, nil
}
