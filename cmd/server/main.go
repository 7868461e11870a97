// Command server runs the referral service HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/idorecall/referral-service/config"
	"github.com/idorecall/referral-service/internal/application/command"
	"github.com/idorecall/referral-service/internal/application/query"
	"github.com/idorecall/referral-service/internal/domain/user"
	"github.com/idorecall/referral-service/internal/infrastructure/persistence/memory"
	"github.com/idorecall/referral-service/internal/infrastructure/persistence/postgres"
	rediscache "github.com/idorecall/referral-service/internal/infrastructure/persistence/redis"
	"github.com/idorecall/referral-service/internal/infrastructure/service"
	httpapi "github.com/idorecall/referral-service/internal/interface/http"
	"github.com/idorecall/referral-service/pkg/logger"
	"github.com/idorecall/referral-service/pkg/referralcode"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)

	log.Info("starting",
		logger.String("environment", string(cfg.App.Environment)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────
	// Storage
	// ─────────────────────────────────────────────────────────────────────
	var (
		repo   user.Repository
		pgConn *postgres.Connection
	)

	if cfg.Database.URL != "" {
		pgConn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.PoolSettings{
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgConn.Close()

		if err := postgres.NewMigrator(pgConn).Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		repo = postgres.NewUserRepository(pgConn)
		log.Info("postgres storage ready")
	} else {
		// No database configured: in-memory storage, development only.
		repo = memory.NewUserRepository()
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	// ─────────────────────────────────────────────────────────────────────
	// Cache (optional)
	// ─────────────────────────────────────────────────────────────────────
	var (
		cache     user.Cache
		redisConn *rediscache.Cache
	)

	if !cfg.Redis.Disabled {
		redisConn, err = rediscache.NewCache(rediscache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolTimeout:  cfg.Redis.DialTimeout,
		})
		if err != nil {
			// Cache is an optimization, not a dependency.
			log.Warn("redis unavailable, running without cache", logger.Err(err))
		} else {
			defer redisConn.Close()
			cache = rediscache.NewUserCache(redisConn)
			log.Info("redis cache ready")
		}
	}

	// ─────────────────────────────────────────────────────────────────────
	// Application wiring
	// ─────────────────────────────────────────────────────────────────────
	var award user.AwardPolicy
	if cfg.Referral.AwardPoints > 0 {
		award = service.NewFixedAwardPolicy(repo, user.Points(cfg.Referral.AwardPoints), log)
	} else {
		award = service.NewNoopAwardPolicy()
	}

	notifier := service.NewLogEnrollmentNotifier(log)
	codes := referralcode.New(cfg.Referral.CodeLength)

	deps := httpapi.Dependencies{
		CreateUserHandler: command.NewCreateUserHandler(repo, codes, award, notifier, cache, log).
			WithCodeAttempts(cfg.Referral.CodeAttempts),
		GetUserHandler:     query.NewGetUserHandler(repo, cache),
		UsersBehindHandler: query.NewUsersBehindHandler(repo),
		UsersAheadHandler:  query.NewUsersAheadHandler(repo),
		TopUserHandler:     query.NewTopUserHandler(repo),
		Logger:             log,
		HealthChecker:      newHealthChecker(pgConn, redisConn),
	}

	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.RateLimitPerMinute = cfg.HTTP.SignupRateLimit

	server := httpapi.NewServer(serverCfg, deps)

	// ─────────────────────────────────────────────────────────────────────
	// Run until signalled
	// ─────────────────────────────────────────────────────────────────────
	errCh := server.StartAsync()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("stopped")
	return nil
}

// healthChecker reports readiness of the storage backends.
type healthChecker struct {
	pg    *postgres.Connection
	redis *rediscache.Cache
}

func newHealthChecker(pg *postgres.Connection, redis *rediscache.Cache) *healthChecker {
	return &healthChecker{pg: pg, redis: redis}
}

func (h *healthChecker) Check(ctx context.Context) httpapi.HealthStatus {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := httpapi.HealthStatus{
		Healthy:    true,
		Ready:      true,
		Components: make(map[string]string),
	}

	if h.pg != nil {
		if err := h.pg.Ping(checkCtx); err != nil {
			status.Healthy = false
			status.Ready = false
			status.Message = "database unreachable"
			status.Components["postgres"] = err.Error()
		} else {
			status.Components["postgres"] = "ok"
		}
	} else {
		status.Components["storage"] = "in-memory"
	}

	// Redis is optional: an outage degrades performance, not readiness.
	if h.redis != nil {
		if err := h.redis.Ping(checkCtx); err != nil {
			status.Components["redis"] = err.Error()
		} else {
			status.Components["redis"] = "ok"
		}
	}

	return status
}
