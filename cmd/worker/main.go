package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"forum-digest/internal/adapters/comments"
	"forum-digest/internal/adapters/heartbeat"
	"forum-digest/internal/adapters/mailer"
	"forum-digest/internal/adapters/render"
	"forum-digest/internal/adapters/repo"
	"forum-digest/internal/adapters/telegram"
	"forum-digest/internal/domain"
	"forum-digest/internal/infra/config"
	"forum-digest/internal/infra/db"
	apphttp "forum-digest/internal/infra/http"
	applog "forum-digest/internal/infra/log"
	"forum-digest/internal/infra/metrics"
	"forum-digest/internal/infra/queue"
	"forum-digest/internal/usecase/aggregate"
	"forum-digest/internal/usecase/delivery"
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
		logger.Fatal().Err(err).Msg("worker: некорректная конфигурация")
	}

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось применить схему")
	}
	statuses := repo.NewPostgres(pool)

	batches, closer, err := queue.Open(cfg.Queue.Backend, cfg.RedisAddr, cfg.Queue.RabbitURL, cfg.Queue.Key)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось открыть очередь")
	}
	defer closer.Close()

	source, err := comments.New(cfg.Comments.URL, cfg.Comments.APIKey,
		comments.WithHTTPClient(&http.Client{Timeout: cfg.Comments.Timeout}),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось создать клиент сервиса обсуждений")
	}
	aggregator := aggregate.NewAggregator(source, aggregate.Links{LMSBase: cfg.Email.LMSURLBase}, applog.Component(logger, "aggregate"))

	renderer, err := render.New(render.Options{
		LMSBase:       cfg.Email.LMSURLBase,
		LogoURL:       cfg.Email.LogoImageURL,
		PostalAddress: cfg.Email.PostalAddress,
	}, applog.Component(logger, "render"))
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось разобрать шаблоны")
	}

	smtp, err := mailer.NewSMTP(cfg.Email.SMTPAddr, cfg.Email.SMTPUsername, cfg.Email.SMTPPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: некорректный адрес SMTP")
	}

	worker := delivery.NewWorker(batches, statuses, aggregator, renderer, smtp, heartbeats(cfg, logger), pipelineCfg, delivery.Options{
		Sender:      cfg.Digest.Sender,
		Subject:     cfg.Digest.Subject,
		MaxAttempts: cfg.Digest.TaskMaxRetries,
		RatePerSec:  cfg.Digest.TaskRatePerSec,
		GCDays:      cfg.Digest.TaskGCDays,
	}, applog.Component(logger, "delivery"))

	logger.Info().Str("queue", cfg.Queue.Backend).Msg("worker: запуск обработки очереди")
	if err := worker.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: очередь закрыта брокером, перезапуск")
	}
	logger.Info().Msg("worker: остановлен")
}

func heartbeats(cfg config.AppConfig, logger zerolog.Logger) domain.Heartbeat {
	var ops domain.Heartbeat
	if cfg.Heartbeat.TGToken != "" && cfg.Heartbeat.TGChatID != 0 {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Heartbeat.TGToken)
		if err != nil {
			logger.Error().Err(err).Msg("worker: не удалось создать бота, сводки в Telegram отключены")
		} else {
			ops = telegram.NewNotifier(botAPI, cfg.Heartbeat.TGChatID)
		}
	}
	return heartbeat.NewMulti(heartbeat.NewSnitch(cfg.Heartbeat.SnitchURL, nil), ops)
}
