package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"forum-digest/internal/adapters/comments"
	"forum-digest/internal/adapters/render"
	"forum-digest/internal/adapters/userservice"
	"forum-digest/internal/domain"
	"forum-digest/internal/infra/config"
	applog "forum-digest/internal/infra/log"
	"forum-digest/internal/infra/metrics"
	"forum-digest/internal/infra/queue"
	"forum-digest/internal/usecase/aggregate"
	"forum-digest/internal/usecase/digest"
	"forum-digest/internal/usecase/dispatch"
	"forum-digest/internal/usecase/pipeline"
	"forum-digest/internal/usecase/preview"
	"forum-digest/internal/usecase/window"
)

type options struct {
	to          string
	minutes     int
	users       string
	broad       bool
	format      string
	diagnostics pipeline.Flags
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("forums-digest", flag.ContinueOnError)
	fs.StringVar(&opts.to, "to_datetime", "", "конец окна (ISO 8601), по умолчанию полночь UTC сегодня")
	fs.IntVar(&opts.minutes, "minutes", window.DefaultMinutes, "длина окна в минутах")
	fs.StringVar(&opts.users, "users", "", "идентификаторы пользователей через запятую")
	fs.BoolVar(&opts.broad, "broad", false, "общий дайджест по всем курсам пользователя")
	fs.BoolVar(&opts.diagnostics.ShowUsers, "show-users", false, "вывести подписчиков и выйти")
	fs.BoolVar(&opts.diagnostics.ShowContent, "show-content", false, "вывести собранные дайджесты и выйти")
	fs.BoolVar(&opts.diagnostics.ShowText, "show-text", false, "вывести текст первого письма и выйти")
	fs.BoolVar(&opts.diagnostics.ShowHTML, "show-html", false, "вывести HTML первого письма и выйти")
	fs.StringVar(&opts.format, "format", "json", "формат --show-content: json или cbor")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func main() {
	cfg := config.Load()
	logger := applog.NewCLILogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Fatal().Err(err).Msg("forums-digest: некорректные аргументы")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error().Err(err).Msg("forums-digest: запуск завершился ошибкой")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AppConfig, opts options, logger zerolog.Logger) error {
	runMode, err := pipeline.ResolveRunMode(opts.diagnostics)
	if err != nil {
		return err
	}
	pipelineCfg, err := cfg.Pipeline()
	if err != nil {
		return err
	}

	store, err := userservice.New(cfg.UserService.URL, cfg.UserService.APIKey,
		userservice.WithBasicAuth(cfg.UserService.HTTPUser, cfg.UserService.HTTPPass),
		userservice.WithPageSize(cfg.UserService.PageSize),
	)
	if err != nil {
		return fmt.Errorf("user service client: %w", err)
	}
	source, err := comments.New(cfg.Comments.URL, cfg.Comments.APIKey,
		comments.WithHTTPClient(&http.Client{Timeout: cfg.Comments.Timeout}),
	)
	if err != nil {
		return fmt.Errorf("comments client: %w", err)
	}
	aggregator := aggregate.NewAggregator(source, aggregate.Links{LMSBase: cfg.Email.LMSURLBase}, applog.Component(logger, "aggregate"))

	deps := pipeline.Deps{
		Resolver:   window.NewResolver(time.Now),
		Store:      store,
		Aggregator: aggregator,
		Out:        os.Stdout,
	}

	switch runMode.Kind {
	case pipeline.RunShowContent:
		codec, err := digest.CodecByName(opts.format)
		if err != nil {
			return err
		}
		deps.Serializer = digest.NewSerializer(codec)
	case pipeline.RunShowRendered:
		renderer, err := render.New(render.Options{
			LMSBase:       cfg.Email.LMSURLBase,
			LogoURL:       cfg.Email.LogoImageURL,
			PostalAddress: cfg.Email.PostalAddress,
		}, applog.Component(logger, "render"))
		if err != nil {
			return err
		}
		deps.Preview = preview.NewRenderer(aggregator, renderer, pipelineCfg, applog.Component(logger, "preview"))
	case pipeline.RunDispatch:
		batches, closer, err := queue.Open(cfg.Queue.Backend, cfg.RedisAddr, cfg.Queue.RabbitURL, cfg.Queue.Key)
		if err != nil {
			return fmt.Errorf("queue: %w", err)
		}
		defer closer.Close()
		dispatcher, err := dispatch.NewDispatcher(batches, pipelineCfg.BatchSize, applog.Component(logger, "dispatch"))
		if err != nil {
			return err
		}
		deps.Dispatcher = dispatcher
	}

	p := pipeline.New(deps, applog.Component(logger, "pipeline"))
	return p.Run(ctx, pipeline.Request{
		To:      opts.to,
		Minutes: opts.minutes,
		UserIDs: splitIDs(opts.users),
		Mode:    domain.ModeFromBroad(opts.broad),
		RunMode: runMode,
	})
}
