// Package main - точка входа для Discord Rank Hub.
//
// Бот поддерживает ручную таблицу рангов сообщества: плотную,
// непрерывную (1..N), без дыр и дублей. Ранг участника виден прямо
// в его серверном нике ("Alice #3") и в закреплённом списке рангов.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries)
// - Infrastructure: реализация хранилищ, Discord API
// - Interface: HTTP endpoints (interactions, health, metrics)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rankhub/discord-rank-hub/config"

	// Application layer
	"github.com/rankhub/discord-rank-hub/internal/application/command"
	"github.com/rankhub/discord-rank-hub/internal/application/query"
	"github.com/rankhub/discord-rank-hub/internal/application/ranking"

	// Domain layer
	"github.com/rankhub/discord-rank-hub/internal/domain/member"
	"github.com/rankhub/discord-rank-hub/internal/domain/rank"

	// Infrastructure layer
	"github.com/rankhub/discord-rank-hub/internal/infrastructure/external/discord"
	"github.com/rankhub/discord-rank-hub/internal/infrastructure/persistence/file"
	"github.com/rankhub/discord-rank-hub/internal/infrastructure/persistence/postgres"
	"github.com/rankhub/discord-rank-hub/internal/infrastructure/persistence/redis"
	"github.com/rankhub/discord-rank-hub/internal/infrastructure/scheduler"
	"github.com/rankhub/discord-rank-hub/internal/infrastructure/scheduler/jobs"

	// Interface layer
	httpserver "github.com/rankhub/discord-rank-hub/internal/interface/http"
	"github.com/rankhub/discord-rank-hub/internal/interface/http/handlers"

	// Packages
	"github.com/rankhub/discord-rank-hub/pkg/metrics"
	"github.com/rankhub/discord-rank-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем приложение
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Discord Rank Hub",
		"env", cfg.App.Environment,
		"debug", cfg.App.Debug,
		"version", cfg.App.Version,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ СОСТОЯНИЯ (Postgres или JSON-файл)
	// ─────────────────────────────────────────────────────────────────────────
	var states rank.StateRepository
	var dbConn *postgres.Connection

	if cfg.Storage.DatabaseURL != "" {
		log.Info("connecting to database...")

		err := retry.DatabaseRetrier().Do(ctx, func(ctx context.Context) error {
			var connErr error
			dbConn, connErr = postgres.NewConnectionFromURL(ctx, cfg.Storage.DatabaseURL)
			return connErr
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		log.Info("running database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		states = postgres.NewStateRepository(dbConn, cfg.Discord.GuildID)
		log.Info("using Postgres state store")
	} else {
		store, err := file.NewStore(cfg.Storage.DataFile, log)
		if err != nil {
			return fmt.Errorf("failed to open state file: %w", err)
		}
		states = store
		log.Info("using JSON file state store", "path", cfg.Storage.DataFile)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. DISCORD КЛИЕНТ И КАТАЛОГ УЧАСТНИКОВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing Discord client...")

	clientCfg := discord.DefaultClientConfig(cfg.Discord.Token)
	clientCfg.ApplicationID = cfg.Discord.ApplicationID
	clientCfg.GuildID = cfg.Discord.GuildID
	clientCfg.BaseURL = cfg.Discord.BaseURL
	clientCfg.Timeout = cfg.Discord.RequestTimeout
	clientCfg.RetryAttempts = cfg.Discord.MaxRetries
	clientCfg.RetryDelay = cfg.Discord.RetryBaseDelay
	clientCfg.RateLimiterConfig.RequestsPerSecond = float64(cfg.Discord.RateLimit)
	clientCfg.RateLimiterConfig.BurstSize = cfg.Discord.RateLimitBurst
	clientCfg.CircuitBreakerConfig.FailureThreshold = cfg.Discord.CircuitBreakerThreshold
	clientCfg.CircuitBreakerConfig.Timeout = cfg.Discord.CircuitBreakerTimeout
	clientCfg.Logger = log
	clientCfg.Debug = cfg.App.Debug

	client := discord.NewClient(clientCfg)

	directory, err := discord.NewDirectory(client, discord.DirectoryConfig{
		RankChannelName: cfg.Ranking.RankChannelName,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("failed to create member directory: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS-КЕШ КАТАЛОГА (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var dir member.Directory = directory
	var redisCache *redis.Cache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, directory caching disabled", "error", err)
		} else {
			defer redisCache.Close()
			dir = redis.NewMemberCache(directory, redisCache, cfg.Discord.GuildID, log)
			log.Info("Redis directory cache enabled")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. СЕРВИС РАНЖИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing ranking service...")

	ranks, err := ranking.NewService(ranking.ServiceConfig{
		States:    states,
		Directory: dir,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("failed to create ranking service: %w", err)
	}

	if err := ranks.Load(ctx); err != nil {
		return fmt.Errorf("failed to load rank state: %w", err)
	}

	// Начальная сверка: имена следуют за таблицей, список публикуется
	if err := ranks.Bootstrap(ctx); err != nil {
		log.Warn("bootstrap reconciliation incomplete", "error", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")

	authorizer := discord.NewRoleAuthorizer(client, cfg.Ranking.AuthorizedRole, log)

	setRankCmd := command.NewSetRankHandler(ranks, authorizer, log)
	removeRankCmd := command.NewRemoveRankHandler(ranks, authorizer, log)
	rankingQuery := query.NewGetRankingHandler(ranks, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. РЕГИСТРАЦИЯ SLASH-КОМАНД
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("registering slash commands...")
	err = retry.DiscordRetrier().Do(ctx, func(ctx context.Context) error {
		return client.RegisterGuildCommands(ctx, []discord.ApplicationCommand{discord.RankCommand()})
	})
	if err != nil {
		return fmt.Errorf("failed to register slash commands: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. МЕТРИКИ И HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
	}

	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("state_store", handlers.NewStateStoreCheck(states))
	if dbConn != nil {
		healthChecker.AddCheck("postgres", handlers.NewPingCheck(dbConn))
	}
	if redisCache != nil {
		healthChecker.AddCheck("redis", handlers.NewPingCheck(redisCache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HTTP SERVER (interactions, health, API, metrics)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	interactions, err := handlers.NewInteractionHandler(handlers.InteractionConfig{
		PublicKey:  cfg.Discord.PublicKey,
		SetRank:    setRankCmd,
		RemoveRank: removeRankCmd,
		Metrics:    m,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("failed to create interaction handler: %w", err)
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.EnableMetrics = cfg.Observability.MetricsEnabled

	httpServer := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Interactions:      interactions,
		GetRankingHandler: rankingQuery,
		HealthChecker:     healthChecker,
		Metrics:           m,
		Logger:            log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 11. ПЛАНИРОВЩИК ФОНОВОЙ СВЕРКИ
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		log.Info("initializing scheduler...", "reconcile_interval", cfg.Scheduler.ReconcileInterval.String())

		sched = scheduler.NewScheduler(log)
		reconcileJob := jobs.NewReconcileNamesJob(
			&instrumentedReconciler{ranks: ranks, metrics: m},
			cfg.Scheduler.JobTimeout,
			log,
		)
		if err := sched.Register(reconcileJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ReconcileInterval)); err != nil {
			return fmt.Errorf("failed to register reconcile job: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)

	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	log.Info("Discord Rank Hub is running",
		"http_address", httpServer.Address(),
		"rank_channel", cfg.Ranking.RankChannelName,
	)

	// Ожидаем сигнал завершения или ошибку
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	if sched != nil {
		log.Info("stopping scheduler...")
		if err := sched.Stop(); err != nil {
			log.Error("failed to stop scheduler gracefully", "error", err)
			shutdownErr = err
		}
	}

	log.Info("stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		shutdownErr = err
	}

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Observability.LogLevel),
	}

	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" {
		// JSON формат для production (лучше для агрегаторов логов)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Текстовый формат для development (лучше читается)
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

// parseLogLevel преобразует строковый уровень в slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ADAPTERS
// ══════════════════════════════════════════════════════════════════════════════

// instrumentedReconciler записывает результат каждой фоновой сверки в метрики.
type instrumentedReconciler struct {
	ranks   *ranking.Service
	metrics *metrics.Metrics
}

// Reconcile implements jobs.Reconciler.
func (r *instrumentedReconciler) Reconcile(ctx context.Context) error {
	err := r.ranks.Reconcile(ctx)
	if err != nil {
		r.metrics.RecordReconcileRun("error")
		return err
	}
	r.metrics.RecordReconcileRun("success")
	return nil
}
