// Package delivery обрабатывает пачки дайджеста на стороне воркера:
// собирает дайджесты, отрисовывает письма и отправляет их.
package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"forum-digest/internal/domain"
	"forum-digest/internal/infra/metrics"
	"forum-digest/internal/usecase/preview"
	"forum-digest/internal/usecase/subscribers"
)

const (
	defaultMaxAttempts = 5
	gcInterval         = 24 * time.Hour
)

type jobOutcome int

const (
	jobOutcomeCompleted jobOutcome = iota
	jobOutcomeRetry
)

// Options задаёт параметры отправки.
type Options struct {
	Sender      string
	Subject     string
	MaxAttempts int
	// RatePerSec ограничивает число обрабатываемых пачек в секунду, 0 отключает ограничение.
	RatePerSec float64
	// GCDays задаёт срок хранения статусов пачек, 0 отключает очистку.
	GCDays int
}

// Worker читает пачки из очереди и доставляет дайджесты.
type Worker struct {
	log        zerolog.Logger
	queue      domain.BatchQueue
	statuses   domain.BatchJobStatusRepo
	aggregator preview.Aggregator
	render     domain.DigestRenderer
	mailer     domain.Mailer
	heartbeat  domain.Heartbeat
	cfg        domain.PipelineConfig
	opts       Options
	limiter    *rate.Limiter
	pause      time.Duration
	now        func() time.Time
	lastGC     time.Time
}

// NewWorker создаёт воркер. heartbeat может быть nil.
func NewWorker(
	queue domain.BatchQueue,
	statuses domain.BatchJobStatusRepo,
	aggregator preview.Aggregator,
	render domain.DigestRenderer,
	mailer domain.Mailer,
	heartbeat domain.Heartbeat,
	cfg domain.PipelineConfig,
	opts Options,
	logger zerolog.Logger,
) *Worker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	return &Worker{
		log:        logger,
		queue:      queue,
		statuses:   statuses,
		aggregator: aggregator,
		render:     render,
		mailer:     mailer,
		heartbeat:  heartbeat,
		cfg:        cfg,
		opts:       opts,
		limiter:    rate.NewLimiter(limit, 1),
		pause:      time.Second,
		now:        time.Now,
	}
}

// Run обрабатывает очередь до отмены ctx. Закрытая брокером очередь
// завершает Run с ошибкой.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := w.ProcessNext(ctx); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, domain.ErrQueueClosed) {
				return err
			}
			w.log.Error().Err(err).Msg("delivery: ошибка чтения очереди")
			w.sleep(ctx)
		}
	}
}

// ProcessNext получает и обрабатывает одну задачу. Возвращает только ошибки
// чтения очереди, исход обработки задачи выражается подтверждением.
func (w *Worker) ProcessNext(ctx context.Context) error {
	w.collectGarbage(ctx)

	job, ack, err := w.queue.Receive(ctx)
	if err != nil {
		return err
	}

	jobLog := w.log.With().
		Str("job_id", job.ID).
		Str("mode", job.Mode.String()).
		Int("users", len(job.Users)).
		Logger()

	if job.ID == "" {
		jobLog.Error().Msg("delivery: получена задача без идентификатора, подтверждаем и пропускаем")
		w.finish(ack, true, jobLog)
		metrics.WorkerJobs.WithLabelValues("invalid").Inc()
		return nil
	}

	done, attempt, err := w.statuses.EnsureBatchJob(ctx, job.ID)
	if err != nil {
		jobLog.Error().Err(err).Msg("delivery: не удалось зарегистрировать задачу")
		w.finish(ack, false, jobLog)
		w.sleep(ctx)
		return nil
	}
	jobLog = jobLog.With().Int("attempt", attempt).Logger()

	if done {
		jobLog.Info().Msg("delivery: задача уже обработана, подтверждаем")
		w.finish(ack, true, jobLog)
		metrics.WorkerJobs.WithLabelValues("duplicate").Inc()
		return nil
	}

	outcome := w.handleJob(ctx, job, jobLog)

	if outcome == jobOutcomeRetry && attempt < w.opts.MaxAttempts {
		jobLog.Warn().Msg("delivery: задача завершилась ошибкой, повторим позже")
		w.finish(ack, false, jobLog)
		metrics.WorkerJobs.WithLabelValues("retry").Inc()
		return nil
	}
	if outcome == jobOutcomeRetry {
		jobLog.Error().Msg("delivery: достигнут предел попыток, помечаем задачу как завершённую")
		metrics.WorkerJobs.WithLabelValues("exhausted").Inc()
	} else {
		metrics.WorkerJobs.WithLabelValues("completed").Inc()
	}

	if err := w.statuses.MarkBatchJobDone(ctx, job.ID); err != nil {
		jobLog.Error().Err(err).Msg("delivery: не удалось пометить задачу завершённой")
		w.finish(ack, false, jobLog)
		w.sleep(ctx)
		return nil
	}
	w.finish(ack, true, jobLog)
	return nil
}

func (w *Worker) handleJob(ctx context.Context, job domain.DigestBatchJob, jobLog zerolog.Logger) jobOutcome {
	if err := w.limiter.Wait(ctx); err != nil {
		return jobOutcomeRetry
	}
	window := job.Window()
	if !window.Valid() {
		jobLog.Error().Time("from", job.From).Time("to", job.To).Msg("delivery: некорректное окно задачи, пропускаем")
		return jobOutcomeCompleted
	}

	start := time.Now()
	usersByID := subscribers.IndexByID(job.Users)
	seq, err := w.aggregator.Aggregate(ctx, usersByID, window, job.Mode)
	if err != nil {
		jobLog.Error().Err(err).Msg("delivery: не удалось получить активность форума")
		return jobOutcomeRetry
	}

	report := domain.BatchReport{JobID: job.ID, Mode: job.Mode, Window: window, Users: len(job.Users)}
	title, description := w.cfg.Titles(job.Mode)
	for userID, digest := range seq {
		report.Digests++
		user := usersByID[userID]
		text, html, err := w.render.Render(user, digest, title, description, job.Mode)
		if err != nil {
			jobLog.Error().Err(err).Str("user", userID).Msg("delivery: не удалось отрисовать письмо")
			report.Failed++
			continue
		}
		metrics.DigestsRendered.WithLabelValues(job.Mode.String()).Inc()

		msg := domain.MailMessage{To: user.Email, From: w.opts.Sender, Subject: w.opts.Subject, Text: text, HTML: html}
		if err := w.mailer.Send(ctx, msg); err != nil {
			metrics.EmailsSent.WithLabelValues("error").Inc()
			if errors.Is(err, domain.ErrPermanentRecipient) {
				jobLog.Warn().Err(err).Str("user", userID).Msg("delivery: получатель отклонён, пропускаем")
				report.Failed++
				continue
			}
			if report.Sent == 0 {
				jobLog.Error().Err(err).Str("user", userID).Msg("delivery: отправка не удалась до первого письма, повторим пачку")
				return jobOutcomeRetry
			}
			jobLog.Error().Err(err).Str("user", userID).Msg("delivery: не удалось отправить письмо")
			report.Failed++
			continue
		}
		metrics.EmailsSent.WithLabelValues("sent").Inc()
		report.Sent++
	}
	metrics.DigestBuildSeconds.Observe(time.Since(start).Seconds())

	jobLog.Info().Int("digests", report.Digests).Int("sent", report.Sent).Int("failed", report.Failed).Msg("delivery: пачка обработана")
	if report.Digests > 0 && report.Sent == 0 {
		jobLog.Warn().Msg("delivery: ни одно письмо не отправлено, heartbeat пропущен")
		return jobOutcomeCompleted
	}
	if w.heartbeat != nil {
		if err := w.heartbeat.Beat(ctx, report); err != nil {
			jobLog.Warn().Err(err).Msg("delivery: не удалось отправить heartbeat")
		}
	}
	return jobOutcomeCompleted
}

// collectGarbage не чаще раза в сутки удаляет устаревшие статусы пачек.
func (w *Worker) collectGarbage(ctx context.Context) {
	if w.opts.GCDays <= 0 {
		return
	}
	now := w.now()
	if !w.lastGC.IsZero() && now.Sub(w.lastGC) < gcInterval {
		return
	}
	w.lastGC = now
	before := now.AddDate(0, 0, -w.opts.GCDays)
	removed, err := w.statuses.PruneBatchJobs(ctx, before)
	if err != nil {
		w.log.Error().Err(err).Msg("delivery: не удалось очистить статусы пачек")
		return
	}
	if removed > 0 {
		w.log.Info().Int64("removed", removed).Time("before", before).Msg("delivery: статусы пачек очищены")
	}
}

func (w *Worker) finish(ack domain.AckFunc, success bool, jobLog zerolog.Logger) {
	if err := ack(success); err != nil {
		jobLog.Error().Err(err).Bool("success", success).Msg("delivery: не удалось подтвердить задачу")
	}
}

func (w *Worker) sleep(ctx context.Context) {
	if w.pause <= 0 {
		return
	}
	t := time.NewTimer(w.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
