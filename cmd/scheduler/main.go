package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"forum-digest/internal/adapters/repo"
	"forum-digest/internal/adapters/userservice"
	"forum-digest/internal/domain"
	"forum-digest/internal/infra/cache"
	"forum-digest/internal/infra/config"
	"forum-digest/internal/infra/db"
	apphttp "forum-digest/internal/infra/http"
	applog "forum-digest/internal/infra/log"
	"forum-digest/internal/infra/metrics"
	"forum-digest/internal/infra/queue"
	"forum-digest/internal/usecase/dispatch"
	"forum-digest/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apphttp.NewServer(applog.Component(logger, "http")).Run(ctx, cfg.MetricsAddr)

	pipelineCfg, err := cfg.Pipeline()
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: некорректная конфигурация")
	}

	ledger, closeLedger := openLedger(ctx, cfg, logger)
	defer closeLedger()

	batches, closer, err := queue.Open(cfg.Queue.Backend, cfg.RedisAddr, cfg.Queue.RabbitURL, cfg.Queue.Key)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось открыть очередь")
	}
	defer closer.Close()

	store, err := userservice.New(cfg.UserService.URL, cfg.UserService.APIKey,
		userservice.WithBasicAuth(cfg.UserService.HTTPUser, cfg.UserService.HTTPPass),
		userservice.WithPageSize(cfg.UserService.PageSize),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать клиент сервиса пользователей")
	}

	dispatcher, err := dispatch.NewDispatcher(batches, pipelineCfg.BatchSize, applog.Component(logger, "dispatch"))
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать диспетчер")
	}

	node, _ := os.Hostname()
	svc, err := schedule.NewService(store, ledger, dispatcher, schedule.Options{
		IntervalMinutes: cfg.Digest.IntervalMinutes,
		GCDays:          cfg.Digest.TaskGCDays,
		Node:            node,
		Retries:         cfg.Digest.TaskMaxRetries,
		RetryDelay:      time.Minute,
	}, applog.Component(logger, "schedule"))
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: некорректный интервал")
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(cfg.Digest.Cron, func() {
		if err := svc.Tick(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduler: плановый запуск завершился ошибкой")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.Digest.Cron).Msg("scheduler: некорректное расписание")
	}

	logger.Info().Str("cron", cfg.Digest.Cron).Str("node", node).Msg("scheduler: запущен")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("scheduler: остановлен")
}

func openLedger(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (domain.RunLedger, func()) {
	if cfg.LedgerBackend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ttl := time.Duration(cfg.Digest.TaskGCDays) * 24 * time.Hour
		return cache.NewRedisLedger(client, "", ttl), func() { _ = client.Close() }
	}
	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось применить схему")
	}
	return repo.NewPostgres(pool), pool.Close
}
