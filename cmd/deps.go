package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/events"
	"github.com/frahmantamala/care-access/internal/core/observability"
	"github.com/frahmantamala/care-access/internal/expiry"
	"github.com/frahmantamala/care-access/internal/grants"
	grantsPostgres "github.com/frahmantamala/care-access/internal/grants/postgres"
	"github.com/frahmantamala/care-access/internal/module"
	"github.com/frahmantamala/care-access/internal/permission"
	"github.com/frahmantamala/care-access/internal/preference"
	prefPostgres "github.com/frahmantamala/care-access/internal/preference/postgres"
	prefRedis "github.com/frahmantamala/care-access/internal/preference/redis"
	"github.com/frahmantamala/care-access/internal/role"
	"github.com/frahmantamala/care-access/internal/routing"
	"github.com/frahmantamala/care-access/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Services is everything the commands share.
type Services struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Redis    *goredis.Client
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Bus      *events.EventBus
	Store    grants.Store

	Roles       *role.Service
	Permissions *permission.Resolver
	Modules     *module.Resolver
	Preferences *preference.Store
	PrefKV      *preference.ResilientKV
	Engine      *routing.Engine
	Sweeper     *expiry.Sweeper

	Logger *slog.Logger
}

func buildServices(ctx context.Context, cfg *internal.Config) (*Services, error) {
	lg := logger.L()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s := &Services{
		Config:   cfg,
		DB:       db,
		Gorm:     gdb,
		Registry: registry,
		Metrics:  metrics,
		Bus:      events.NewEventBus(lg),
		Store:    grantsPostgres.NewGrantRepository(gdb),
		Logger:   lg,
	}

	backend, err := s.preferenceBackend(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.PrefKV = preference.NewResilientKV(backend, cfg.Access.CacheSize, cfg.Access.SessionTTL, metrics, lg)

	reporter := observability.NewLogReporter(lg, metrics)
	s.Permissions = permission.NewResolver(s.Store, permission.Config{
		CacheTTL:  cfg.Access.CacheTTL,
		CacheSize: cfg.Access.CacheSize,
	}, metrics, reporter, s.Bus, lg)
	s.Modules = module.NewResolver(s.Store, module.Config{
		CacheTTL:  cfg.Access.CacheTTL,
		CacheSize: cfg.Access.CacheSize,
	}, metrics, reporter, s.Bus, lg)
	s.Roles = role.NewService(s.Store, s.Bus, lg, s.Permissions, s.Modules)
	s.Preferences = preference.NewStore(s.PrefKV, s.Roles, preference.Config{
		ProgressLimit: cfg.Access.ProgressLimit,
		Timeout:       cfg.Preferences.Timeout,
		SessionTTL:    cfg.Access.SessionTTL,
		SessionSize:   cfg.Access.SessionCacheSize,
	}, lg)
	s.Engine = routing.NewEngine(s.Roles, s.Modules, s.Preferences, nil, routing.Config{
		SessionTTL:  cfg.Access.SessionTTL,
		SessionSize: cfg.Access.SessionCacheSize,
	}, metrics, lg)
	s.Sweeper = expiry.NewSweeper(s.Store, s.Bus, metrics, lg)

	// Every access event drops the affected users from both resolvers.
	for _, eventType := range []string{events.EventTypeAccessChanged, events.EventTypeAccessExpired} {
		s.Bus.Subscribe(eventType, s.Permissions.HandleAccessEvent)
		s.Bus.Subscribe(eventType, s.Modules.HandleAccessEvent)
	}

	return s, nil
}

func (s *Services) preferenceBackend(ctx context.Context) (preference.KV, error) {
	switch s.Config.Preferences.Backend {
	case "redis":
		client, err := prefRedis.Connect(ctx, s.Config.Redis.Addr, s.Config.Redis.Password, s.Config.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		s.Redis = client
		return prefRedis.NewKV(client, "care-access:"), nil
	case "memory":
		s.Logger.Warn("preferences are kept in memory and lost on restart")
		return preference.NewMemoryKV(), nil
	default:
		return prefPostgres.NewKVRepository(s.Gorm), nil
	}
}

func (s *Services) Close() {
	s.Bus.Wait()
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.Logger.Error("redis close error", "error", err)
		}
	}
	if err := s.DB.Close(); err != nil {
		s.Logger.Error("database close error", "error", err)
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return dbConn, nil
}
